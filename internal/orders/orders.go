// Package orders is the client side of the marketplace order system: its read
// model and the narrow delivery-status field the integration layer may write.
package orders

import (
	"context"
	"errors"
	"time"

	"deliverysync/internal/model"
)

var ErrNotFound = errors.New("order not found")

// System is the order subsystem as seen from delivery reconciliation. It never
// exposes the order's primary status for writing.
type System interface {
	GetOrder(ctx context.Context, id string) (model.Order, error)
	FindByTracking(ctx context.Context, tracking string) (model.Order, error)
	SetDeliveryStatus(ctx context.Context, orderID, status string, at time.Time) error
}
