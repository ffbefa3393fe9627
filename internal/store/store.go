package store

import (
	"context"
	"errors"
	"time"

	"deliverysync/internal/model"
)

// Tx is the unit-of-work view used while a delivery and its mapping change together.
// Reads through Tx lock the row until the transaction ends.
type Tx interface {
	GetDelivery(ctx context.Context, id string) (model.DeliveryRequest, error)
	CreateDelivery(ctx context.Context, d *model.DeliveryRequest) error
	UpdateDelivery(ctx context.Context, d model.DeliveryRequest) error
	AppendHistory(ctx context.Context, h *model.StatusHistory) error

	GetMapping(ctx context.Context, platformID, externalOrderID string) (model.OrderMapping, error)
	CreateMapping(ctx context.Context, m *model.OrderMapping) error
	UpdateMapping(ctx context.Context, m model.OrderMapping) error

	IncrementCourierDeliveries(ctx context.Context, courierID string) error
}

// Store is the persistence interface used by the integration layer.
type Store interface {
	// WithTx runs fn atomically. Any error returned by fn rolls everything back.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Deliveries
	GetDelivery(ctx context.Context, id string) (model.DeliveryRequest, error)
	GetDeliveryByTracking(ctx context.Context, tracking string) (model.DeliveryRequest, error)
	ListHistory(ctx context.Context, deliveryID string) ([]model.StatusHistory, error)

	// Mappings
	GetMapping(ctx context.Context, platformID, externalOrderID string) (model.OrderMapping, error)
	GetMappingByDelivery(ctx context.Context, deliveryID string) (model.OrderMapping, error)

	// Couriers
	UpsertCourier(ctx context.Context, c model.Courier) error
	GetCourier(ctx context.Context, id string) (model.Courier, error)

	// Platforms
	UpsertPlatform(ctx context.Context, p model.PlatformConnection) error
	GetPlatform(ctx context.Context, id string) (model.PlatformConnection, error)
	GetPlatformByName(ctx context.Context, name string) (model.PlatformConnection, error)
	ListPlatforms(ctx context.Context) ([]model.PlatformConnection, error)
	SetLastSync(ctx context.Context, platformID string, at time.Time) error

	// Sync rules
	UpsertSyncRule(ctx context.Context, r model.SyncRule) error
	ListSyncRules(ctx context.Context, platformID string) ([]model.SyncRule, error)

	// Webhook events
	CreateWebhookEvent(ctx context.Context, e *model.WebhookEvent) error
	GetWebhookEvent(ctx context.Context, id string) (model.WebhookEvent, error)
	// ClaimWebhookEvent moves a received or failed event to processing. A processing
	// event last updated before staleBefore is abandoned and can be claimed again.
	// ok is false when the event is in any other state.
	ClaimWebhookEvent(ctx context.Context, id string, staleBefore time.Time) (e model.WebhookEvent, ok bool, err error)
	FinishWebhookEvent(ctx context.Context, id string, status model.WebhookEventStatus, errText string) error
	ListWebhookEvents(ctx context.Context, f WebhookEventFilter) ([]model.WebhookEvent, error)
	// ListRetryableWebhookEvents returns failed and abandoned processing events received
	// at or after since, oldest first. Retries never move received_at.
	ListRetryableWebhookEvents(ctx context.Context, since, staleBefore time.Time, limit int) ([]model.WebhookEvent, error)
	// DeleteWebhookEventsBefore removes processed and failed events older than before.
	DeleteWebhookEventsBefore(ctx context.Context, before time.Time) (int, error)

	// Sync logs
	CreateSyncLog(ctx context.Context, l *model.SyncLog) error
	FinishSyncLog(ctx context.Context, l model.SyncLog) error
	ListSyncLogs(ctx context.Context, platformID string, limit int) ([]model.SyncLog, error)

	Ping(ctx context.Context) error
}

type WebhookEventFilter struct {
	PlatformID string
	Status     model.WebhookEventStatus
	Limit      int
}

var (
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique key (tracking number, platform external
	// order id, mapping key) already exists.
	ErrDuplicate = errors.New("duplicate")
)
