package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverysync/internal/model"
)

func TestHTTPClient(t *testing.T) {
	var patched map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "17" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"17","user_id":"u9","status":"paid","total_price":"12.00"}`))
	})
	mux.HandleFunc("GET /api/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tracking_number") == "DLV1" {
			_, _ = w.Write([]byte(`{"results":[{"id":"17","tracking_number":"DLV1"}]}`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("PATCH /api/orders/{id}/delivery-status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&patched)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", "k", time.Second)
	ctx := context.Background()

	o, err := c.GetOrder(ctx, "17")
	require.NoError(t, err)
	assert.Equal(t, "u9", o.UserID)
	_, err = c.GetOrder(ctx, "18")
	assert.ErrorIs(t, err, ErrNotFound)

	o, err = c.FindByTracking(ctx, "DLV1")
	require.NoError(t, err)
	assert.Equal(t, "17", o.ID)
	_, err = c.FindByTracking(ctx, "DLV2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.SetDeliveryStatus(ctx, "17", "shipped", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "shipped", patched["delivery_status"])
	_, touchedPrimary := patched["status"]
	assert.False(t, touchedPrimary)
}

func TestMemorySetDeliveryStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Put(orderFixture())
	at := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.SetDeliveryStatus(ctx, "1", "delivered", at))
	o, err := m.GetOrder(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "paid", o.Status)
	assert.Equal(t, "delivered", o.DeliveryStatus)
	require.NotNil(t, o.DeliveredAt)
	assert.ErrorIs(t, m.SetDeliveryStatus(ctx, "2", "shipped", at), ErrNotFound)
}

func orderFixture() model.Order {
	return model.Order{ID: "1", Status: "paid", TrackingNumber: "T1"}
}
