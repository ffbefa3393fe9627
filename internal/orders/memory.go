package orders

import (
	"context"
	"sync"
	"time"

	"deliverysync/internal/model"
)

// Memory is an in-process order system for development and tests.
type Memory struct {
	mu     sync.Mutex
	orders map[string]model.Order
}

func NewMemory(seed ...model.Order) *Memory {
	m := &Memory{orders: map[string]model.Order{}}
	for _, o := range seed {
		m.orders[o.ID] = o
	}
	return m
}

func (m *Memory) Put(o model.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) FindByTracking(ctx context.Context, tracking string) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.TrackingNumber == tracking {
			return o, nil
		}
	}
	return model.Order{}, ErrNotFound
}

// SetDeliveryStatus writes only the delivery-status field, stamping delivered_at on delivery.
func (m *Memory) SetDeliveryStatus(ctx context.Context, orderID, status string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.DeliveryStatus = status
	if status == "delivered" {
		t := at.UTC()
		o.DeliveredAt = &t
	}
	m.orders[orderID] = o
	return nil
}
