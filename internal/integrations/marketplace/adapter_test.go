package marketplace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deliverysync/internal/integrations"
	"deliverysync/internal/model"
)

const pushOrder = `{
  "event": "order_created",
  "order_id": 881,
  "customer": {"name": "Wanjiru K", "email": "w@example.com", "phone": "+254700000001"},
  "delivery_address": {"address": "12 Kenyatta Ave", "city": "Nairobi", "postal_code": "00100"},
  "total_amount": "2450.00",
  "items": [
    {"title": "Kettle", "quantity": 1, "price": "1450.00", "seller": "HomeCo"},
    {"title": "Mug", "quantity": 4, "price": "250.00", "seller": "HomeCo"}
  ]
}`

const pullOrder = `{
  "id": 9001,
  "order_number": "BS-9001",
  "status": "Paid",
  "payment_status": "completed",
  "total_price": "3200.50",
  "created_at": "2026-04-02T08:15:00Z",
  "user_id": 77,
  "shipping_address": {"full_name": "Otieno J", "line1": "4 Moi Rd", "line2": "Flat 2", "city": "Kisumu", "state": "Kisumu", "postal_code": "40100", "country": "KE", "phone": "+254711"},
  "store": {"name": "", "phone": "+254722", "address": "Store St 1"},
  "items": [
    {"product": {"name": "Vase", "weight": "1.2", "is_fragile": true, "price": "1600.25"}, "quantity": 2}
  ]
}`

func TestNormalizePushShape(t *testing.T) {
	a := New(nil, 0)
	o, err := a.Normalize([]byte(pushOrder))
	require.NoError(t, err)
	assert.Equal(t, "881", o.ID)
	assert.Equal(t, "881", o.Number)
	assert.Equal(t, "KES", o.Currency)
	assert.Equal(t, "Wanjiru K", o.Shipping.Name)
	assert.Equal(t, "12 Kenyatta Ave\nNairobi\n00100", o.Shipping.Address)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("2450")))
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Mug", o.Items[1].Name)
	assert.Equal(t, 4, o.Items[1].Quantity)
	assert.True(t, o.WeightKg.Equal(integrations.DefaultWeightKg))
	assert.Nil(t, o.Store)
	assert.Equal(t, model.PaymentPending, o.PaymentStatus)
}

func TestNormalizePullShape(t *testing.T) {
	a := New(nil, 0)
	o, err := a.Normalize([]byte(pullOrder))
	require.NoError(t, err)
	assert.Equal(t, "9001", o.ID)
	assert.Equal(t, "BS-9001", o.Number)
	assert.Equal(t, "paid", o.Status)
	assert.Equal(t, model.PaymentPaid, o.PaymentStatus)
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, "4 Moi Rd\nFlat 2\nKisumu, Kisumu\n40100\nKE", o.Shipping.Address)
	require.NotNil(t, o.Store)
	assert.Equal(t, "Marketplace Store", o.Store.Name)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Fragile)
	assert.True(t, o.Items[0].Price.Equal(decimal.RequireFromString("1600.25")))
	assert.True(t, o.WeightKg.Equal(decimal.RequireFromString("2.4")))
	assert.Equal(t, "77", o.Metadata["user_id"])
}

func TestNormalizeMissingID(t *testing.T) {
	_, err := New(nil, 0).Normalize([]byte(`{"items":[]}`))
	require.ErrorIs(t, err, integrations.ErrFieldMissing)
}

func TestFetchOrders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":2,"results":[` + pullOrder + `,{"id":9002}]}`))
	}))
	defer srv.Close()

	a := New(integrations.NewHTTPClient(time.Second), 50)
	since := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	docs, err := a.FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL + "/", APIKey: "k"}, since)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	require.NotNil(t, got)
	assert.Equal(t, "/api/orders/", got.URL.Path)
	assert.Equal(t, "Bearer k", got.Header.Get("Authorization"))
	assert.Equal(t, "2026-04-01T00:00:00Z", got.URL.Query().Get("date_from"))
	assert.Equal(t, "50", got.URL.Query().Get("limit"))
}

func TestFetchOrdersUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	a := New(integrations.NewHTTPClient(time.Second), 0)
	_, err := a.FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Now())
	require.ErrorIs(t, err, integrations.ErrExternalCall)
}

func TestEventTypeHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Event-Type", "order_cancelled")
	assert.Equal(t, model.EventOrderCancelled, New(nil, 0).EventType(h, []byte(pushOrder)))
	assert.Equal(t, model.EventOrderCreated, New(nil, 0).EventType(http.Header{}, []byte(pushOrder)))
}

func TestFetchOrdersFollowsNext(t *testing.T) {
	var paths []string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		if r.URL.Query().Get("page") == "" {
			_, _ = w.Write([]byte(`{"count":3,"next":"` + srv.URL + `/api/orders/?page=2","results":[{"id":1},{"id":2}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"count":3,"next":null,"results":[{"id":3}]}`))
	}))
	defer srv.Close()

	docs, err := New(integrations.NewHTTPClient(time.Second), 2).FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	require.Len(t, paths, 2)
	assert.Equal(t, "/api/orders/?page=2", paths[1])
}
