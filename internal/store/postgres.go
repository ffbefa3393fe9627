package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"deliverysync/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgresDB wraps an already opened handle.
func NewPostgresDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// mapErr folds driver errors into the package sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	q querier
}

const deliveryCols = `id, tracking_number, platform_id, external_order_id, order_number, status, priority,
pickup, recipient, package_description, package_weight, declared_value, is_fragile, requires_signature,
courier_id, delivery_fee, total_amount, payment_status, pickup_time, actual_delivery_time, metadata, created_at, updated_at`

func scanDelivery(r rowScanner) (model.DeliveryRequest, error) {
	var d model.DeliveryRequest
	var pickup, recipient, meta []byte
	var courier sql.NullString
	var pickupAt, deliveredAt sql.NullTime
	err := r.Scan(&d.ID, &d.TrackingNumber, &d.PlatformID, &d.ExternalOrderID, &d.OrderNumber, &d.Status, &d.Priority,
		&pickup, &recipient, &d.PackageDescription, &d.PackageWeight, &d.DeclaredValue, &d.IsFragile, &d.RequiresSignature,
		&courier, &d.DeliveryFee, &d.TotalAmount, &d.PaymentStatus, &pickupAt, &deliveredAt, &meta, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, mapErr(err)
	}
	for _, c := range []struct {
		name string
		raw  []byte
		v    any
	}{{"pickup", pickup, &d.Pickup}, {"recipient", recipient, &d.Recipient}, {"metadata", meta, &d.Metadata}} {
		if err := decodeColumn(c.name, c.raw, c.v); err != nil {
			return d, fmt.Errorf("delivery %s: %w", d.ID, err)
		}
	}
	d.CourierID = courier.String
	if pickupAt.Valid {
		t := pickupAt.Time
		d.PickupTime = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		d.ActualDeliveryTime = &t
	}
	return d, nil
}

// decodeColumn unmarshals a JSON column. NULL or empty leaves v untouched.
func decodeColumn(name string, raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (t *pgTx) GetDelivery(ctx context.Context, id string) (model.DeliveryRequest, error) {
	return scanDelivery(t.q.QueryRowContext(ctx, `SELECT `+deliveryCols+` FROM delivery_requests WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTx) CreateDelivery(ctx context.Context, d *model.DeliveryRequest) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, `INSERT INTO delivery_requests (`+deliveryCols+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		d.ID, d.TrackingNumber, d.PlatformID, d.ExternalOrderID, d.OrderNumber, d.Status, d.Priority,
		mustJSON(d.Pickup), mustJSON(d.Recipient), d.PackageDescription, d.PackageWeight, d.DeclaredValue, d.IsFragile, d.RequiresSignature,
		nullIfEmpty(d.CourierID), d.DeliveryFee, d.TotalAmount, d.PaymentStatus, d.PickupTime, d.ActualDeliveryTime, jsonOrNil(d.Metadata), d.CreatedAt, d.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateDelivery(ctx context.Context, d model.DeliveryRequest) error {
	res, err := t.q.ExecContext(ctx, `UPDATE delivery_requests SET order_number=$2, status=$3, priority=$4, pickup=$5, recipient=$6,
package_description=$7, package_weight=$8, declared_value=$9, is_fragile=$10, requires_signature=$11, courier_id=$12,
delivery_fee=$13, total_amount=$14, payment_status=$15, pickup_time=$16, actual_delivery_time=$17, metadata=$18, updated_at=now()
WHERE id=$1`,
		d.ID, d.OrderNumber, d.Status, d.Priority, mustJSON(d.Pickup), mustJSON(d.Recipient),
		d.PackageDescription, d.PackageWeight, d.DeclaredValue, d.IsFragile, d.RequiresSignature, nullIfEmpty(d.CourierID),
		d.DeliveryFee, d.TotalAmount, d.PaymentStatus, d.PickupTime, d.ActualDeliveryTime, jsonOrNil(d.Metadata))
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (t *pgTx) AppendHistory(ctx context.Context, h *model.StatusHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx, `INSERT INTO delivery_status_history (id, delivery_id, old_status, new_status, actor, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, h.ID, h.DeliveryID, h.OldStatus, h.NewStatus, h.Actor, h.Note, h.CreatedAt)
	return mapErr(err)
}

const mappingCols = `id, platform_id, external_order_id, order_number, delivery_id, raw_payload, created_at, updated_at`

func scanMapping(r rowScanner) (model.OrderMapping, error) {
	var m model.OrderMapping
	var raw []byte
	if err := r.Scan(&m.ID, &m.PlatformID, &m.ExternalOrderID, &m.OrderNumber, &m.DeliveryID, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return m, mapErr(err)
	}
	if len(raw) > 0 {
		m.RawPayload = json.RawMessage(raw)
	}
	return m, nil
}

func (t *pgTx) GetMapping(ctx context.Context, platformID, externalOrderID string) (model.OrderMapping, error) {
	return scanMapping(t.q.QueryRowContext(ctx, `SELECT `+mappingCols+` FROM order_mappings WHERE platform_id=$1 AND external_order_id=$2 FOR UPDATE`, platformID, externalOrderID))
}

func (t *pgTx) CreateMapping(ctx context.Context, m *model.OrderMapping) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := t.q.ExecContext(ctx, `INSERT INTO order_mappings (`+mappingCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		m.ID, m.PlatformID, m.ExternalOrderID, m.OrderNumber, m.DeliveryID, rawOrNil(m.RawPayload), m.CreatedAt, m.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) UpdateMapping(ctx context.Context, m model.OrderMapping) error {
	res, err := t.q.ExecContext(ctx, `UPDATE order_mappings SET order_number=$3, raw_payload=$4, updated_at=now() WHERE platform_id=$1 AND external_order_id=$2`,
		m.PlatformID, m.ExternalOrderID, m.OrderNumber, rawOrNil(m.RawPayload))
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (t *pgTx) IncrementCourierDeliveries(ctx context.Context, courierID string) error {
	res, err := t.q.ExecContext(ctx, `UPDATE couriers SET completed_deliveries = completed_deliveries + 1 WHERE id=$1`, courierID)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (p *Postgres) GetDelivery(ctx context.Context, id string) (model.DeliveryRequest, error) {
	return scanDelivery(p.db.QueryRowContext(ctx, `SELECT `+deliveryCols+` FROM delivery_requests WHERE id=$1`, id))
}

func (p *Postgres) GetDeliveryByTracking(ctx context.Context, tracking string) (model.DeliveryRequest, error) {
	return scanDelivery(p.db.QueryRowContext(ctx, `SELECT `+deliveryCols+` FROM delivery_requests WHERE tracking_number=$1`, tracking))
}

func (p *Postgres) ListHistory(ctx context.Context, deliveryID string) ([]model.StatusHistory, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, delivery_id, old_status, new_status, actor, note, created_at
FROM delivery_status_history WHERE delivery_id=$1 ORDER BY created_at, id`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.StatusHistory{}
	for rows.Next() {
		var h model.StatusHistory
		if err := rows.Scan(&h.ID, &h.DeliveryID, &h.OldStatus, &h.NewStatus, &h.Actor, &h.Note, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *Postgres) GetMapping(ctx context.Context, platformID, externalOrderID string) (model.OrderMapping, error) {
	return scanMapping(p.db.QueryRowContext(ctx, `SELECT `+mappingCols+` FROM order_mappings WHERE platform_id=$1 AND external_order_id=$2`, platformID, externalOrderID))
}

func (p *Postgres) GetMappingByDelivery(ctx context.Context, deliveryID string) (model.OrderMapping, error) {
	return scanMapping(p.db.QueryRowContext(ctx, `SELECT `+mappingCols+` FROM order_mappings WHERE delivery_id=$1`, deliveryID))
}

func (p *Postgres) UpsertCourier(ctx context.Context, c model.Courier) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO couriers (id, name, completed_deliveries) VALUES ($1,$2,$3)
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`, c.ID, c.Name, c.CompletedDeliveries)
	return mapErr(err)
}

func (p *Postgres) GetCourier(ctx context.Context, id string) (model.Courier, error) {
	var c model.Courier
	err := p.db.QueryRowContext(ctx, `SELECT id, name, completed_deliveries FROM couriers WHERE id=$1`, id).Scan(&c.ID, &c.Name, &c.CompletedDeliveries)
	return c, mapErr(err)
}

const platformCols = `id, name, type, base_url, api_key, api_secret, webhook_secret, active, sync_enabled, last_sync, poll_interval_sec`

func scanPlatform(r rowScanner) (model.PlatformConnection, error) {
	var pc model.PlatformConnection
	var last sql.NullTime
	var pollSec int64
	if err := r.Scan(&pc.ID, &pc.Name, &pc.Type, &pc.BaseURL, &pc.APIKey, &pc.APISecret, &pc.WebhookSecret, &pc.Active, &pc.SyncEnabled, &last, &pollSec); err != nil {
		return pc, mapErr(err)
	}
	if last.Valid {
		t := last.Time
		pc.LastSync = &t
	}
	pc.PollInterval = time.Duration(pollSec) * time.Second
	return pc, nil
}

// UpsertPlatform keeps last_sync owned by the orchestrator.
func (p *Postgres) UpsertPlatform(ctx context.Context, pc model.PlatformConnection) error {
	if pc.ID == "" {
		pc.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO platform_connections (`+platformCols+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, type=EXCLUDED.type, base_url=EXCLUDED.base_url, api_key=EXCLUDED.api_key,
api_secret=EXCLUDED.api_secret, webhook_secret=EXCLUDED.webhook_secret, active=EXCLUDED.active, sync_enabled=EXCLUDED.sync_enabled,
poll_interval_sec=EXCLUDED.poll_interval_sec`,
		pc.ID, pc.Name, pc.Type, pc.BaseURL, pc.APIKey, pc.APISecret, pc.WebhookSecret, pc.Active, pc.SyncEnabled, pc.LastSync, int64(pc.PollInterval/time.Second))
	return mapErr(err)
}

func (p *Postgres) GetPlatform(ctx context.Context, id string) (model.PlatformConnection, error) {
	return scanPlatform(p.db.QueryRowContext(ctx, `SELECT `+platformCols+` FROM platform_connections WHERE id=$1`, id))
}

func (p *Postgres) GetPlatformByName(ctx context.Context, name string) (model.PlatformConnection, error) {
	return scanPlatform(p.db.QueryRowContext(ctx, `SELECT `+platformCols+` FROM platform_connections WHERE name=$1`, name))
}

func (p *Postgres) ListPlatforms(ctx context.Context) ([]model.PlatformConnection, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+platformCols+` FROM platform_connections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.PlatformConnection{}
	for rows.Next() {
		pc, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (p *Postgres) SetLastSync(ctx context.Context, platformID string, at time.Time) error {
	res, err := p.db.ExecContext(ctx, `UPDATE platform_connections SET last_sync=$2 WHERE id=$1`, platformID, at)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (p *Postgres) UpsertSyncRule(ctx context.Context, r model.SyncRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO sync_rules (id, platform_id, name, type, priority, active, allowed_statuses, require_payment, max_age_days, min_value)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET platform_id=EXCLUDED.platform_id, name=EXCLUDED.name, type=EXCLUDED.type, priority=EXCLUDED.priority,
active=EXCLUDED.active, allowed_statuses=EXCLUDED.allowed_statuses, require_payment=EXCLUDED.require_payment,
max_age_days=EXCLUDED.max_age_days, min_value=EXCLUDED.min_value`,
		r.ID, r.PlatformID, r.Name, r.Type, r.Priority, r.Active, mustJSON(r.AllowedStatuses), r.RequirePayment, r.MaxAgeDays, r.MinValue)
	return mapErr(err)
}

func (p *Postgres) ListSyncRules(ctx context.Context, platformID string) ([]model.SyncRule, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id, platform_id, name, type, priority, active, allowed_statuses, require_payment, max_age_days, min_value
FROM sync_rules WHERE platform_id=$1 ORDER BY priority, id`, platformID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SyncRule{}
	for rows.Next() {
		var r model.SyncRule
		var allowed []byte
		if err := rows.Scan(&r.ID, &r.PlatformID, &r.Name, &r.Type, &r.Priority, &r.Active, &allowed, &r.RequirePayment, &r.MaxAgeDays, &r.MinValue); err != nil {
			return nil, err
		}
		if err := decodeColumn("allowed_statuses", allowed, &r.AllowedStatuses); err != nil {
			return nil, fmt.Errorf("sync rule %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const eventCols = `id, platform_id, event_type, payload, headers, status, error, attempts, received_at, updated_at, processed_at`

func scanEvent(r rowScanner) (model.WebhookEvent, error) {
	var e model.WebhookEvent
	var payload, headers []byte
	var processed sql.NullTime
	if err := r.Scan(&e.ID, &e.PlatformID, &e.EventType, &payload, &headers, &e.Status, &e.Error, &e.Attempts, &e.ReceivedAt, &e.UpdatedAt, &processed); err != nil {
		return e, mapErr(err)
	}
	e.Payload = json.RawMessage(payload)
	if err := decodeColumn("headers", headers, &e.Headers); err != nil {
		return e, fmt.Errorf("webhook event %s: %w", e.ID, err)
	}
	if processed.Valid {
		t := processed.Time
		e.ProcessedAt = &t
	}
	return e, nil
}

func (p *Postgres) CreateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = model.WebhookReceived
	}
	now := time.Now().UTC()
	e.ReceivedAt, e.UpdatedAt = now, now
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_events (id, platform_id, event_type, payload, headers, status, received_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, e.ID, e.PlatformID, e.EventType, []byte(e.Payload), jsonOrNil(e.Headers), e.Status, e.ReceivedAt, e.UpdatedAt)
	return mapErr(err)
}

func (p *Postgres) GetWebhookEvent(ctx context.Context, id string) (model.WebhookEvent, error) {
	return scanEvent(p.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM webhook_events WHERE id=$1`, id))
}

func (p *Postgres) ClaimWebhookEvent(ctx context.Context, id string, staleBefore time.Time) (model.WebhookEvent, bool, error) {
	e, err := scanEvent(p.db.QueryRowContext(ctx, `UPDATE webhook_events SET status='processing', attempts=attempts+1, updated_at=now()
WHERE id=$1 AND (status IN ('received','failed') OR (status='processing' AND updated_at < $2)) RETURNING `+eventCols, id, staleBefore))
	if err == nil {
		return e, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return e, false, err
	}
	// Either missing or held by another processor.
	e, err = p.GetWebhookEvent(ctx, id)
	if err != nil {
		return e, false, err
	}
	return e, false, nil
}

func (p *Postgres) FinishWebhookEvent(ctx context.Context, id string, status model.WebhookEventStatus, errText string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE webhook_events SET status=$2, error=$3, updated_at=now(),
processed_at = CASE WHEN $2 = 'processed' THEN now() ELSE processed_at END WHERE id=$1`, id, status, errText)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (p *Postgres) ListWebhookEvents(ctx context.Context, f WebhookEventFilter) ([]model.WebhookEvent, error) {
	if f.Limit <= 0 || f.Limit > 500 { f.Limit = 100 }
	rows, err := p.db.QueryContext(ctx, `SELECT `+eventCols+` FROM webhook_events
WHERE ($1 = '' OR platform_id = $1) AND ($2 = '' OR status = $2) ORDER BY received_at DESC LIMIT $3`, f.PlatformID, string(f.Status), f.Limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (p *Postgres) ListRetryableWebhookEvents(ctx context.Context, since, staleBefore time.Time, limit int) ([]model.WebhookEvent, error) {
	if limit <= 0 { limit = 50 }
	rows, err := p.db.QueryContext(ctx, `SELECT `+eventCols+` FROM webhook_events
WHERE received_at >= $1 AND (status='failed' OR (status='processing' AND updated_at < $2))
ORDER BY received_at LIMIT $3`, since, staleBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]model.WebhookEvent, error) {
	defer rows.Close()
	out := []model.WebhookEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteWebhookEventsBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE status IN ('processed','failed') AND received_at < $1`, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *Postgres) CreateSyncLog(ctx context.Context, l *model.SyncLog) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO sync_logs (id, platform_id, trigger, status, started_at) VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.PlatformID, l.Trigger, l.Status, l.StartedAt)
	return mapErr(err)
}

func (p *Postgres) FinishSyncLog(ctx context.Context, l model.SyncLog) error {
	res, err := p.db.ExecContext(ctx, `UPDATE sync_logs SET status=$2, synced=$3, failed=$4, skipped=$5, failures=$6, error=$7, completed_at=$8 WHERE id=$1`,
		l.ID, l.Status, l.Synced, l.Failed, l.Skipped, jsonOrNil(l.Failures), l.Error, l.CompletedAt)
	if err != nil {
		return mapErr(err)
	}
	return expectOne(res)
}

func (p *Postgres) ListSyncLogs(ctx context.Context, platformID string, limit int) ([]model.SyncLog, error) {
	if limit <= 0 || limit > 500 { limit = 50 }
	rows, err := p.db.QueryContext(ctx, `SELECT id, platform_id, trigger, status, synced, failed, skipped, failures, error, started_at, completed_at
FROM sync_logs WHERE ($1 = '' OR platform_id = $1) ORDER BY started_at DESC LIMIT $2`, platformID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SyncLog{}
	for rows.Next() {
		var l model.SyncLog
		var failures []byte
		var completed sql.NullTime
		if err := rows.Scan(&l.ID, &l.PlatformID, &l.Trigger, &l.Status, &l.Synced, &l.Failed, &l.Skipped, &failures, &l.Error, &l.StartedAt, &completed); err != nil {
			return nil, err
		}
		if err := decodeColumn("failures", failures, &l.Failures); err != nil {
			return nil, fmt.Errorf("sync log %s: %w", l.ID, err)
		}
		if completed.Valid {
			t := completed.Time
			l.CompletedAt = &t
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func jsonOrNil[T any](v T) any {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
