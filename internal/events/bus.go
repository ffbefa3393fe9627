// Package events carries committed delivery status changes from the state machine
// to the reconciliation bridge.
package events

import (
	"context"

	"go.uber.org/zap"

	"deliverysync/internal/metrics"
	"deliverysync/internal/model"
)

type Bus struct {
	ch  chan model.StatusChange
	log *zap.Logger
}

func NewBus(buffer int, log *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{ch: make(chan model.StatusChange, buffer), log: log}
}

// Emit enqueues a change without blocking. A full buffer drops the change:
// the transition it describes is already committed and stays so.
func (b *Bus) Emit(ctx context.Context, change model.StatusChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case b.ch <- change:
		return nil
	default:
		metrics.EventsDropped.Inc()
		b.log.Warn("status change dropped, bus full",
			zap.String("delivery_id", change.DeliveryID),
			zap.String("status", string(change.NewStatus)),
		)
		return nil
	}
}

func (b *Bus) Channel() <-chan model.StatusChange {
	return b.ch
}
