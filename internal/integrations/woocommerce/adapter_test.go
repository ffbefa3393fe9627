package woocommerce

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

const order = `{
  "id": 727,
  "number": "727",
  "status": "processing",
  "currency": "EUR",
  "total": "29.35",
  "shipping_total": "10.00",
  "date_created": "2026-05-10T19:22:04",
  "date_paid": null,
  "customer_id": 0,
  "billing": {"first_name": "John", "last_name": "Doe", "address_1": "969 Market", "city": "San Francisco", "state": "CA", "postcode": "94103", "country": "US", "email": "john.doe@example.com", "phone": "(555) 555-5555"},
  "shipping": {"first_name": "", "last_name": "", "address_1": ""},
  "line_items": [{"name": "Woo Single #1", "quantity": 2, "price": 3, "weight": "0.4"}]
}`

func TestNormalizeFallsBackToBilling(t *testing.T) {
	o, err := New(nil, 0).Normalize([]byte(order))
	require.NoError(t, err)
	assert.Equal(t, "727", o.ID)
	assert.Equal(t, model.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "John Doe", o.Shipping.Name)
	assert.Equal(t, "969 Market\nSan Francisco, CA\n94103\nUS", o.Shipping.Address)
	assert.Equal(t, "(555) 555-5555", o.Shipping.Phone)
	assert.True(t, o.ShippingCost.Equal(decimal.NewFromInt(10)))
	assert.True(t, o.WeightKg.Equal(decimal.RequireFromString("0.8")))
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, time.Date(2026, 5, 10, 19, 22, 4, 0, time.UTC), *o.CreatedAt)
	_, hasCustomer := o.Metadata["customer_id"]
	assert.False(t, hasCustomer)
}

func TestPaymentStatus(t *testing.T) {
	assert.Equal(t, model.PaymentPaid, paymentStatus("completed", ""))
	assert.Equal(t, model.PaymentPaid, paymentStatus("on-hold", "2026-05-10T19:22:04"))
	assert.Equal(t, model.PaymentFailed, paymentStatus("failed", ""))
	assert.Equal(t, model.PaymentPending, paymentStatus("pending", ""))
}

func TestEventType(t *testing.T) {
	h := http.Header{}
	h.Set("X-WC-Webhook-Topic", "order.deleted")
	assert.Equal(t, model.EventOrderCancelled, New(nil, 0).EventType(h, nil))
}

func TestFetchOrdersBasicAuth(t *testing.T) {
	var user, pass string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		path = r.URL.Path
		_, _ = w.Write([]byte(`[` + order + `]`))
	}))
	defer srv.Close()

	a := New(integrations.NewHTTPClient(time.Second), 0)
	docs, err := a.FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL, APIKey: "ck_1", APISecret: "cs_1"}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "ck_1", user)
	assert.Equal(t, "cs_1", pass)
	assert.Equal(t, "/wp-json/wc/v3/orders", path)
}

func TestFetchOrdersWalksPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		if page == "1" {
			_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":3}]`))
	}))
	defer srv.Close()

	docs, err := New(integrations.NewHTTPClient(time.Second), 2).FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	assert.Equal(t, []string{"1", "2"}, pages)
}

func TestFetchOrdersHonoursTotalPages(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("X-WP-TotalPages", "2")
		_, _ = w.Write([]byte(`[{"id":1},{"id":2}]`))
	}))
	defer srv.Close()

	docs, err := New(integrations.NewHTTPClient(time.Second), 2).FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, docs, 4)
	assert.Equal(t, 2, calls)
}
