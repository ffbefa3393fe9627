// Package reconcile propagates committed delivery status changes back to the
// marketplace order system and to realtime subscribers.
package reconcile

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"deliverysync/internal/metrics"
	"deliverysync/internal/model"
	"deliverysync/internal/orders"
	"deliverysync/internal/realtime"
	"deliverysync/internal/store"
)

// ErrUnresolved means no order could be found for a delivery.
var ErrUnresolved = errors.New("order not resolved")

// deliveryToOrder maps a delivery status onto the order's delivery-status field.
var deliveryToOrder = map[model.DeliveryStatus]string{
	model.StatusAccepted:       "processing",
	model.StatusAssigned:       "processing",
	model.StatusPickedUp:       "shipped",
	model.StatusInTransit:      "shipped",
	model.StatusOutForDelivery: "out_for_delivery",
	model.StatusDelivered:      "delivered",
	model.StatusFailed:         "delivery_failed",
	model.StatusReturned:       "returned",
	model.StatusCancelled:      "cancelled",
}

// OrderDeliveryStatus returns the order-side delivery status for s, or "" when s has none.
func OrderDeliveryStatus(s model.DeliveryStatus) string { return deliveryToOrder[s] }

type Bridge struct {
	Store    store.Store
	Orders   orders.System
	Realtime realtime.Publisher
	// UpdateOrders enables writing the order's delivery-status field.
	UpdateOrders bool
	Log          *zap.Logger
	// StepTimeout bounds each outbound call.
	StepTimeout time.Duration
}

// Run consumes changes until ctx is cancelled, then drains what is already buffered.
func (b *Bridge) Run(ctx context.Context, ch <-chan model.StatusChange) {
	for {
		select {
		case <-ctx.Done():
			b.drain(ch)
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			b.Handle(ctx, c)
		}
	}
}

func (b *Bridge) drain(ch <-chan model.StatusChange) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-ch:
			if !ok {
				return
			}
			b.Handle(ctx, c)
		default:
			return
		}
	}
}

// Handle reconciles one change. Every step is best-effort and independent of the others;
// nothing here can undo the transition.
func (b *Bridge) Handle(ctx context.Context, c model.StatusChange) {
	log := b.Log.With(zap.String("delivery_id", c.DeliveryID), zap.String("tracking_number", c.TrackingNumber))

	order, err := b.resolve(ctx, c)
	if err != nil {
		metrics.ReconcileFailures.WithLabelValues("resolve").Inc()
		log.Info("order not resolved for delivery", zap.Error(err))
	}

	if b.UpdateOrders && order.ID != "" {
		if status := OrderDeliveryStatus(c.NewStatus); status != "" {
			sctx, cancel := context.WithTimeout(ctx, b.stepTimeout())
			err := b.Orders.SetDeliveryStatus(sctx, order.ID, status, c.At)
			cancel()
			if err != nil {
				metrics.ReconcileFailures.WithLabelValues("project").Inc()
				log.Warn("order delivery status not updated", zap.String("order_id", order.ID), zap.Error(err))
			}
		}
	}

	if b.Realtime == nil {
		return
	}
	evt := realtime.Event{Type: "status_update", Data: map[string]any{
		"tracking_number": c.TrackingNumber,
		"old_status":      string(c.OldStatus),
		"new_status":      string(c.NewStatus),
		"note":            c.Note,
		"timestamp":       c.At.UTC().Format(time.RFC3339),
	}}
	b.publish(log, realtime.OrderTopic(c.TrackingNumber), evt)
	userID := order.UserID
	if userID == "" {
		userID, _ = c.Metadata["user_id"].(string)
	}
	if userID != "" {
		b.publish(log, realtime.UserTopic(userID), evt)
	}
}

func (b *Bridge) publish(log *zap.Logger, topic string, evt realtime.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ReconcileFailures.WithLabelValues("publish").Inc()
			log.Error("realtime publish panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	b.Realtime.Publish(topic, evt)
}

// resolve finds the originating order: marketplace mappings carry the order id
// directly; anything else falls back to a tracking-number lookup.
func (b *Bridge) resolve(ctx context.Context, c model.StatusChange) (model.Order, error) {
	if b.Orders == nil {
		return model.Order{}, ErrUnresolved
	}
	rctx, cancel := context.WithTimeout(ctx, b.stepTimeout())
	defer cancel()
	var firstErr error
	if conn, err := b.Store.GetPlatform(rctx, c.PlatformID); err == nil && conn.Type == model.PlatformMarketplace {
		m, err := b.Store.GetMappingByDelivery(rctx, c.DeliveryID)
		if err == nil {
			o, err := b.Orders.GetOrder(rctx, m.ExternalOrderID)
			if err == nil {
				return o, nil
			}
			firstErr = err
		} else {
			firstErr = err
		}
	}
	if c.TrackingNumber != "" {
		o, err := b.Orders.FindByTracking(rctx, c.TrackingNumber)
		if err == nil {
			return o, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = ErrUnresolved
	}
	return model.Order{}, firstErr
}

func (b *Bridge) stepTimeout() time.Duration {
	if b.StepTimeout > 0 {
		return b.StepTimeout
	}
	return 5 * time.Second
}
