// Package delivery owns the DeliveryRequest status field: its transition table,
// its history log and the status-changed event.
package delivery

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.uber.org/zap"

	"deliverysync/internal/metrics"
	"deliverysync/internal/model"
	"deliverysync/internal/store"
)

// Emitter receives status changes after they commit.
type Emitter interface {
	Emit(ctx context.Context, change model.StatusChange) error
}

type Machine struct {
	Store  store.Store
	Events Emitter
	Log    *zap.Logger
	Now    func() time.Time
}

func NewMachine(s store.Store, events Emitter, log *zap.Logger) *Machine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Machine{Store: s, Events: events, Log: log, Now: func() time.Time { return time.Now().UTC() }}
}

// Transition moves a delivery to to in its own transaction and emits the change after commit.
func (m *Machine) Transition(ctx context.Context, deliveryID string, to model.DeliveryStatus, note, actor string) (model.DeliveryRequest, error) {
	var d model.DeliveryRequest
	var change model.StatusChange
	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		d, err = tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		change, err = m.TransitionTx(ctx, tx, &d, to, note, actor)
		return err
	})
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	m.Publish(ctx, change)
	return d, nil
}

// TransitionTx validates and applies a transition inside tx. The status update and the
// history row are written through the same tx. The caller emits the returned change once tx commits.
func (m *Machine) TransitionTx(ctx context.Context, tx store.Tx, d *model.DeliveryRequest, to model.DeliveryStatus, note, actor string) (model.StatusChange, error) {
	from := d.Status
	if err := checkTransition(from, to); err != nil {
		return model.StatusChange{}, err
	}
	now := m.Now()
	d.Status = to
	switch to {
	case model.StatusPickedUp:
		d.PickupTime = &now
	case model.StatusDelivered:
		d.ActualDeliveryTime = &now
		if d.CourierID != "" {
			if err := tx.IncrementCourierDeliveries(ctx, d.CourierID); err != nil {
				return model.StatusChange{}, fmt.Errorf("courier %s: %w", d.CourierID, err)
			}
		}
	}
	if err := tx.UpdateDelivery(ctx, *d); err != nil {
		return model.StatusChange{}, err
	}
	h := &model.StatusHistory{DeliveryID: d.ID, OldStatus: from, NewStatus: to, Actor: actor, Note: note, CreatedAt: now}
	if err := tx.AppendHistory(ctx, h); err != nil {
		return model.StatusChange{}, err
	}
	return changeFor(*d, from, note, actor, now), nil
}

// RecordCreated writes the initial history row for a new delivery.
func (m *Machine) RecordCreated(ctx context.Context, tx store.Tx, d model.DeliveryRequest, actor string) error {
	return tx.AppendHistory(ctx, &model.StatusHistory{
		DeliveryID: d.ID,
		NewStatus:  d.Status,
		Actor:      actor,
		Note:       "Delivery created",
		CreatedAt:  m.Now(),
	})
}

// Assign attaches a courier and moves the delivery to assigned.
func (m *Machine) Assign(ctx context.Context, deliveryID, courierID, actor string) (model.DeliveryRequest, error) {
	if _, err := m.Store.GetCourier(ctx, courierID); err != nil {
		return model.DeliveryRequest{}, fmt.Errorf("courier %s: %w", courierID, err)
	}
	var d model.DeliveryRequest
	var change model.StatusChange
	err := m.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		d, err = tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		d.CourierID = courierID
		change, err = m.TransitionTx(ctx, tx, &d, model.StatusAssigned, "Assigned to courier "+courierID, actor)
		return err
	})
	if err != nil {
		return model.DeliveryRequest{}, err
	}
	m.Publish(ctx, change)
	return d, nil
}

// Publish hands committed changes to the emitter. Failures are logged and never returned.
func (m *Machine) Publish(ctx context.Context, changes ...model.StatusChange) {
	for _, c := range changes {
		metrics.StatusTransitions.WithLabelValues(string(c.OldStatus), string(c.NewStatus)).Inc()
		if m.Events == nil {
			continue
		}
		if err := m.Events.Emit(ctx, c); err != nil {
			m.Log.Warn("status change not delivered",
				zap.String("delivery_id", c.DeliveryID),
				zap.String("status", string(c.NewStatus)),
				zap.Error(err),
			)
		}
	}
}

func changeFor(d model.DeliveryRequest, from model.DeliveryStatus, note, actor string, at time.Time) model.StatusChange {
	return model.StatusChange{
		DeliveryID:      d.ID,
		TrackingNumber:  d.TrackingNumber,
		PlatformID:      d.PlatformID,
		ExternalOrderID: d.ExternalOrderID,
		RecipientEmail:  d.Recipient.Email,
		OldStatus:       from,
		NewStatus:       d.Status,
		Note:            note,
		Actor:           actor,
		Metadata:        maps.Clone(d.Metadata),
		At:              at,
	}
}
