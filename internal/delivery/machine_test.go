package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverysync/internal/model"
	"deliverysync/internal/store"
)

type recordEmitter struct {
	changes []model.StatusChange
	err     error
}

func (r *recordEmitter) Emit(ctx context.Context, c model.StatusChange) error {
	r.changes = append(r.changes, c)
	return r.err
}

func newDelivery(t *testing.T, s *store.Memory, status model.DeliveryStatus) model.DeliveryRequest {
	t.Helper()
	d := model.DeliveryRequest{TrackingNumber: "DLV-" + string(status) + time.Now().Format("150405.000000000"), PlatformID: "p1", ExternalOrderID: "X-" + time.Now().Format("150405.000000000"), Status: status}
	require.NoError(t, s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateDelivery(context.Background(), &d)
	}))
	return d
}

var want = map[model.DeliveryStatus][]model.DeliveryStatus{
	model.StatusPending:        {model.StatusAccepted, model.StatusCancelled},
	model.StatusAccepted:       {model.StatusAssigned, model.StatusCancelled},
	model.StatusAssigned:       {model.StatusPickedUp, model.StatusCancelled},
	model.StatusPickedUp:       {model.StatusInTransit, model.StatusCancelled},
	model.StatusInTransit:      {model.StatusOutForDelivery, model.StatusDelivered, model.StatusFailed},
	model.StatusOutForDelivery: {model.StatusDelivered, model.StatusFailed},
	model.StatusFailed:         {model.StatusReturned, model.StatusAccepted},
	model.StatusReturned:       {model.StatusAccepted, model.StatusCancelled},
}

func TestTransitionTableExhaustive(t *testing.T) {
	for _, from := range model.DeliveryStatuses {
		for _, to := range model.DeliveryStatuses {
			expected := false
			for _, ok := range want[from] {
				if ok == to {
					expected = true
				}
			}
			assert.Equal(t, expected, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, IsTerminal(model.StatusDelivered))
	assert.True(t, IsTerminal(model.StatusCancelled))
	assert.False(t, IsTerminal(model.StatusFailed))
}

func TestTransitionEveryPairAgainstStore(t *testing.T) {
	ctx := context.Background()
	for _, from := range model.DeliveryStatuses {
		for _, to := range model.DeliveryStatuses {
			s := store.NewMemory()
			em := &recordEmitter{}
			m := NewMachine(s, em, nil)
			d := newDelivery(t, s, from)

			got, err := m.Transition(ctx, d.ID, to, "", "test")
			hist, _ := s.ListHistory(ctx, d.ID)
			if CanTransition(from, to) {
				require.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, got.Status)
				require.Len(t, hist, 1)
				assert.Equal(t, from, hist[0].OldStatus)
				assert.Equal(t, to, hist[0].NewStatus)
				require.Len(t, em.changes, 1)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", from, to)
				assert.Empty(t, hist)
				assert.Empty(t, em.changes)
				stored, _ := s.GetDelivery(ctx, d.ID)
				assert.Equal(t, from, stored.Status)
			}
		}
	}
}

func TestTransitionStampsTimesAndCountsCourier(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.UpsertCourier(ctx, model.Courier{ID: "c1", Name: "Amina"}))
	m := NewMachine(s, nil, nil)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	m.Now = func() time.Time { return fixed }

	d := newDelivery(t, s, model.StatusAccepted)
	_, err := m.Assign(ctx, d.ID, "c1", "dispatcher")
	require.NoError(t, err)
	got, err := m.Transition(ctx, d.ID, model.StatusPickedUp, "collected", "courier")
	require.NoError(t, err)
	require.NotNil(t, got.PickupTime)
	assert.True(t, got.PickupTime.Equal(fixed))
	assert.Nil(t, got.ActualDeliveryTime)

	_, err = m.Transition(ctx, d.ID, model.StatusInTransit, "", "courier")
	require.NoError(t, err)
	got, err = m.Transition(ctx, d.ID, model.StatusDelivered, "", "courier")
	require.NoError(t, err)
	require.NotNil(t, got.ActualDeliveryTime)
	assert.Equal(t, "c1", got.CourierID)

	c, err := s.GetCourier(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CompletedDeliveries)

	hist, err := s.ListHistory(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, hist, 4)
	for i := 1; i < len(hist); i++ {
		assert.Equal(t, hist[i-1].NewStatus, hist[i].OldStatus)
	}
}

func TestEmitterFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	em := &recordEmitter{err: errors.New("bus closed")}
	m := NewMachine(s, em, nil)
	d := newDelivery(t, s, model.StatusPending)

	got, err := m.Transition(ctx, d.ID, model.StatusAccepted, "", "system")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, got.Status)
	stored, err := s.GetDelivery(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, stored.Status)
	require.Len(t, em.changes, 1)
	assert.Equal(t, model.StatusPending, em.changes[0].OldStatus)
	assert.Equal(t, d.TrackingNumber, em.changes[0].TrackingNumber)
}

func TestAssignUnknownCourier(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	m := NewMachine(s, nil, nil)
	d := newDelivery(t, s, model.StatusAccepted)
	_, err := m.Assign(ctx, d.ID, "nobody", "dispatcher")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransitionUnknownDelivery(t *testing.T) {
	m := NewMachine(store.NewMemory(), nil, nil)
	_, err := m.Transition(context.Background(), "missing", model.StatusAccepted, "", "")
	require.ErrorIs(t, err, store.ErrNotFound)
}
