package store

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliverysync/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
// Transactions run serialized against a copy of the delivery state and swap it in on commit.
type Memory struct {
	mu        sync.Mutex
	st        *memState
	platforms map[string]model.PlatformConnection // id -> platform
	rules     map[string][]model.SyncRule         // platformId -> rules
	events    map[string]*model.WebhookEvent      // id -> event
	logs      []model.SyncLog                     // newest last
	now       func() time.Time
}

type memState struct {
	deliveries map[string]model.DeliveryRequest // id -> delivery
	byTracking map[string]string                // tracking -> id
	byExternal map[string]string                // platform|external -> id
	history    map[string][]model.StatusHistory // deliveryId -> rows
	mappings   map[string]model.OrderMapping    // platform|external -> mapping
	couriers   map[string]model.Courier
}

func NewMemory() *Memory {
	return &Memory{
		st: &memState{
			deliveries: map[string]model.DeliveryRequest{},
			byTracking: map[string]string{},
			byExternal: map[string]string{},
			history:    map[string][]model.StatusHistory{},
			mappings:   map[string]model.OrderMapping{},
			couriers:   map[string]model.Courier{},
		},
		platforms: map[string]model.PlatformConnection{},
		rules:     map[string][]model.SyncRule{},
		events:    map[string]*model.WebhookEvent{},
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		deliveries: maps.Clone(s.deliveries),
		byTracking: maps.Clone(s.byTracking),
		byExternal: maps.Clone(s.byExternal),
		history:    make(map[string][]model.StatusHistory, len(s.history)),
		mappings:   maps.Clone(s.mappings),
		couriers:   maps.Clone(s.couriers),
	}
	for k, v := range s.history {
		c.history[k] = slices.Clone(v)
	}
	return c
}

func extKey(platformID, externalID string) string { return platformID + "|" + externalID }

func cloneDelivery(d model.DeliveryRequest) model.DeliveryRequest {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}

func cloneMapping(m model.OrderMapping) model.OrderMapping {
	m.RawPayload = slices.Clone(m.RawPayload)
	return m
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{st: m.st.clone(), now: m.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st = tx.st
	return nil
}

type memTx struct {
	st  *memState
	now func() time.Time
}

func (t *memTx) GetDelivery(ctx context.Context, id string) (model.DeliveryRequest, error) {
	d, ok := t.st.deliveries[id]
	if !ok {
		return model.DeliveryRequest{}, ErrNotFound
	}
	return cloneDelivery(d), nil
}

func (t *memTx) CreateDelivery(ctx context.Context, d *model.DeliveryRequest) error {
	if _, ok := t.st.byTracking[d.TrackingNumber]; ok {
		return ErrDuplicate
	}
	key := extKey(d.PlatformID, d.ExternalOrderID)
	if _, ok := t.st.byExternal[key]; ok {
		return ErrDuplicate
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := t.now()
	d.CreatedAt, d.UpdatedAt = now, now
	t.st.deliveries[d.ID] = cloneDelivery(*d)
	t.st.byTracking[d.TrackingNumber] = d.ID
	t.st.byExternal[key] = d.ID
	return nil
}

func (t *memTx) UpdateDelivery(ctx context.Context, d model.DeliveryRequest) error {
	old, ok := t.st.deliveries[d.ID]
	if !ok {
		return ErrNotFound
	}
	d.TrackingNumber, d.PlatformID, d.ExternalOrderID, d.CreatedAt = old.TrackingNumber, old.PlatformID, old.ExternalOrderID, old.CreatedAt
	d.UpdatedAt = t.now()
	t.st.deliveries[d.ID] = cloneDelivery(d)
	return nil
}

func (t *memTx) AppendHistory(ctx context.Context, h *model.StatusHistory) error {
	if _, ok := t.st.deliveries[h.DeliveryID]; !ok {
		return ErrNotFound
	}
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = t.now()
	}
	t.st.history[h.DeliveryID] = append(t.st.history[h.DeliveryID], *h)
	return nil
}

func (t *memTx) GetMapping(ctx context.Context, platformID, externalOrderID string) (model.OrderMapping, error) {
	mp, ok := t.st.mappings[extKey(platformID, externalOrderID)]
	if !ok {
		return model.OrderMapping{}, ErrNotFound
	}
	return cloneMapping(mp), nil
}

func (t *memTx) CreateMapping(ctx context.Context, mp *model.OrderMapping) error {
	key := extKey(mp.PlatformID, mp.ExternalOrderID)
	if _, ok := t.st.mappings[key]; ok {
		return ErrDuplicate
	}
	for _, other := range t.st.mappings {
		if other.DeliveryID == mp.DeliveryID {
			return ErrDuplicate
		}
	}
	if mp.ID == "" {
		mp.ID = uuid.New().String()
	}
	now := t.now()
	mp.CreatedAt, mp.UpdatedAt = now, now
	t.st.mappings[key] = cloneMapping(*mp)
	return nil
}

func (t *memTx) UpdateMapping(ctx context.Context, mp model.OrderMapping) error {
	key := extKey(mp.PlatformID, mp.ExternalOrderID)
	old, ok := t.st.mappings[key]
	if !ok {
		return ErrNotFound
	}
	mp.ID, mp.DeliveryID, mp.CreatedAt = old.ID, old.DeliveryID, old.CreatedAt
	mp.UpdatedAt = t.now()
	t.st.mappings[key] = cloneMapping(mp)
	return nil
}

func (t *memTx) IncrementCourierDeliveries(ctx context.Context, courierID string) error {
	c, ok := t.st.couriers[courierID]
	if !ok {
		return ErrNotFound
	}
	c.CompletedDeliveries++
	t.st.couriers[courierID] = c
	return nil
}

func (m *Memory) GetDelivery(ctx context.Context, id string) (model.DeliveryRequest, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	d, ok := m.st.deliveries[id]
	if !ok {
		return model.DeliveryRequest{}, ErrNotFound
	}
	return cloneDelivery(d), nil
}

func (m *Memory) GetDeliveryByTracking(ctx context.Context, tracking string) (model.DeliveryRequest, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	id, ok := m.st.byTracking[tracking]
	if !ok {
		return model.DeliveryRequest{}, ErrNotFound
	}
	return cloneDelivery(m.st.deliveries[id]), nil
}

func (m *Memory) ListHistory(ctx context.Context, deliveryID string) ([]model.StatusHistory, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	return slices.Clone(m.st.history[deliveryID]), nil
}

func (m *Memory) GetMapping(ctx context.Context, platformID, externalOrderID string) (model.OrderMapping, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	mp, ok := m.st.mappings[extKey(platformID, externalOrderID)]
	if !ok {
		return model.OrderMapping{}, ErrNotFound
	}
	return cloneMapping(mp), nil
}

func (m *Memory) GetMappingByDelivery(ctx context.Context, deliveryID string) (model.OrderMapping, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	for _, mp := range m.st.mappings {
		if mp.DeliveryID == deliveryID {
			return cloneMapping(mp), nil
		}
	}
	return model.OrderMapping{}, ErrNotFound
}

func (m *Memory) UpsertCourier(ctx context.Context, c model.Courier) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	m.st.couriers[c.ID] = c
	return nil
}

func (m *Memory) GetCourier(ctx context.Context, id string) (model.Courier, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	c, ok := m.st.couriers[id]
	if !ok {
		return model.Courier{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) UpsertPlatform(ctx context.Context, p model.PlatformConnection) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	for id, other := range m.platforms {
		if id != p.ID && other.Name == p.Name {
			return ErrDuplicate
		}
	}
	if old, ok := m.platforms[p.ID]; ok && p.LastSync == nil {
		p.LastSync = old.LastSync
	}
	m.platforms[p.ID] = p
	return nil
}

func (m *Memory) GetPlatform(ctx context.Context, id string) (model.PlatformConnection, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	p, ok := m.platforms[id]
	if !ok {
		return model.PlatformConnection{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) GetPlatformByName(ctx context.Context, name string) (model.PlatformConnection, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	for _, p := range m.platforms {
		if p.Name == name {
			return p, nil
		}
	}
	return model.PlatformConnection{}, ErrNotFound
}

func (m *Memory) ListPlatforms(ctx context.Context) ([]model.PlatformConnection, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := make([]model.PlatformConnection, 0, len(m.platforms))
	for _, p := range m.platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetLastSync(ctx context.Context, platformID string, at time.Time) error {
	m.mu.Lock(); defer m.mu.Unlock()
	p, ok := m.platforms[platformID]
	if !ok {
		return ErrNotFound
	}
	p.LastSync = &at
	m.platforms[platformID] = p
	return nil
}

func (m *Memory) UpsertSyncRule(ctx context.Context, r model.SyncRule) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	rules := m.rules[r.PlatformID]
	for i := range rules {
		if rules[i].ID == r.ID {
			rules[i] = r
			return nil
		}
	}
	m.rules[r.PlatformID] = append(rules, r)
	return nil
}

func (m *Memory) ListSyncRules(ctx context.Context, platformID string) ([]model.SyncRule, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	return slices.Clone(m.rules[platformID]), nil
}

func (m *Memory) CreateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = model.WebhookReceived
	}
	now := m.now()
	e.ReceivedAt, e.UpdatedAt = now, now
	cp := cloneEvent(*e)
	m.events[e.ID] = &cp
	return nil
}

func cloneEvent(e model.WebhookEvent) model.WebhookEvent {
	e.Payload = slices.Clone(e.Payload)
	e.Headers = maps.Clone(e.Headers)
	return e
}

func (m *Memory) GetWebhookEvent(ctx context.Context, id string) (model.WebhookEvent, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return model.WebhookEvent{}, ErrNotFound
	}
	return cloneEvent(*e), nil
}

func (m *Memory) ClaimWebhookEvent(ctx context.Context, id string, staleBefore time.Time) (model.WebhookEvent, bool, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return model.WebhookEvent{}, false, ErrNotFound
	}
	if !claimable(e, staleBefore) {
		return cloneEvent(*e), false, nil
	}
	e.Status = model.WebhookProcessing
	e.Attempts++
	e.UpdatedAt = m.now()
	return cloneEvent(*e), true, nil
}

func (m *Memory) FinishWebhookEvent(ctx context.Context, id string, status model.WebhookEventStatus, errText string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	now := m.now()
	e.Status = status
	e.Error = errText
	e.UpdatedAt = now
	if status == model.WebhookProcessed {
		e.ProcessedAt = &now
	}
	return nil
}

func (m *Memory) ListWebhookEvents(ctx context.Context, f WebhookEventFilter) ([]model.WebhookEvent, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := []model.WebhookEvent{}
	for _, e := range m.events {
		if f.PlatformID != "" && e.PlatformID != f.PlatformID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, cloneEvent(*e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func claimable(e *model.WebhookEvent, staleBefore time.Time) bool {
	switch e.Status {
	case model.WebhookReceived, model.WebhookFailed:
		return true
	case model.WebhookProcessing:
		return e.UpdatedAt.Before(staleBefore)
	}
	return false
}

func (m *Memory) ListRetryableWebhookEvents(ctx context.Context, since, staleBefore time.Time, limit int) ([]model.WebhookEvent, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := []model.WebhookEvent{}
	for _, e := range m.events {
		if e.Status != model.WebhookReceived && claimable(e, staleBefore) && !e.ReceivedAt.Before(since) {
			out = append(out, cloneEvent(*e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) DeleteWebhookEventsBefore(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	n := 0
	for id, e := range m.events {
		if (e.Status == model.WebhookProcessed || e.Status == model.WebhookFailed) && e.ReceivedAt.Before(before) {
			delete(m.events, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateSyncLog(ctx context.Context, l *model.SyncLog) error {
	m.mu.Lock(); defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	m.logs = append(m.logs, cloneLog(*l))
	return nil
}

func (m *Memory) FinishSyncLog(ctx context.Context, l model.SyncLog) error {
	m.mu.Lock(); defer m.mu.Unlock()
	for i := range m.logs {
		if m.logs[i].ID == l.ID {
			m.logs[i] = cloneLog(l)
			return nil
		}
	}
	return ErrNotFound
}

func cloneLog(l model.SyncLog) model.SyncLog {
	l.Failures = slices.Clone(l.Failures)
	return l
}

func (m *Memory) ListSyncLogs(ctx context.Context, platformID string, limit int) ([]model.SyncLog, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if limit <= 0 { limit = 50 }
	out := []model.SyncLog{}
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if platformID == "" || m.logs[i].PlatformID == platformID {
			out = append(out, cloneLog(m.logs[i]))
		}
	}
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
