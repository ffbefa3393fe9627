package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"deliverysync/internal/delivery"
	"deliverysync/internal/model"
	"deliverysync/internal/store"
)

// Unit is the in-transaction view handed to an Options.Step.
type Unit struct {
	Tx       store.Tx
	Delivery *model.DeliveryRequest
	Mapping  model.OrderMapping
	Order    model.CanonicalOrder
	// Created reports whether this run created the delivery.
	Created bool

	pipeline *Pipeline
	actor    string
	changes  []model.StatusChange
}

// Transition moves the delivery through the machine. The change is emitted after commit.
func (u *Unit) Transition(ctx context.Context, to model.DeliveryStatus, note string) error {
	c, err := u.pipeline.Machine.TransitionTx(ctx, u.Tx, u.Delivery, to, note, actorOf(Options{Actor: u.actor}))
	if err != nil {
		return err
	}
	u.changes = append(u.changes, c)
	return nil
}

// TransitionUnlessFinal transitions unless the delivery is delivered, cancelled or
// already at to. A move the table does not allow from the current status is skipped:
// the delivery keeps its status and the skipped move is recorded in its metadata.
func (u *Unit) TransitionUnlessFinal(ctx context.Context, to model.DeliveryStatus, note string) error {
	if delivery.IsTerminal(u.Delivery.Status) || u.Delivery.Status == to {
		return nil
	}
	if !delivery.CanTransition(u.Delivery.Status, to) {
		return u.skip(ctx, to, note)
	}
	return u.Transition(ctx, to, note)
}

func (u *Unit) skip(ctx context.Context, to model.DeliveryStatus, note string) error {
	u.pipeline.Log.Info("skipping disallowed status move",
		zap.String("delivery_id", u.Delivery.ID),
		zap.String("from", string(u.Delivery.Status)),
		zap.String("to", string(to)),
		zap.String("actor", u.actor),
	)
	if u.Delivery.Metadata == nil {
		u.Delivery.Metadata = map[string]any{}
	}
	u.Delivery.Metadata["skipped_transition"] = map[string]any{
		"from": string(u.Delivery.Status),
		"to":   string(to),
		"note": note,
		"at":   u.pipeline.Now().Format(time.RFC3339),
	}
	u.Delivery.UpdatedAt = u.pipeline.Now()
	return u.Tx.UpdateDelivery(ctx, *u.Delivery)
}

// Project applies an externally observed status when the table allows it. It
// never errors on a disallowed move and never leaves delivered.
func (u *Unit) Project(ctx context.Context, to model.DeliveryStatus, note string) error {
	if to == "" || u.Delivery.Status == to || u.Delivery.Status == model.StatusDelivered {
		return nil
	}
	if !delivery.CanTransition(u.Delivery.Status, to) {
		return nil
	}
	return u.Transition(ctx, to, note)
}

// SetPayment records a payment status change without touching the delivery status.
func (u *Unit) SetPayment(ctx context.Context, s model.PaymentStatus) error {
	if u.Delivery.PaymentStatus == s {
		return nil
	}
	u.Delivery.PaymentStatus = s
	u.Delivery.UpdatedAt = u.pipeline.Now()
	return u.Tx.UpdateDelivery(ctx, *u.Delivery)
}

// ProjectOrderStatus maps a platform's order status to the delivery status it implies.
// Empty means the status carries no delivery meaning.
func ProjectOrderStatus(status string) model.DeliveryStatus {
	switch status {
	case "cancelled", "canceled", "refunded":
		return model.StatusCancelled
	case "shipped", "fulfilled", "completed", "in_transit":
		return model.StatusInTransit
	case "out_for_delivery":
		return model.StatusOutForDelivery
	case "processing":
		return model.StatusAccepted
	case "delivered":
		return model.StatusDelivered
	}
	return ""
}
