package shopify

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
  "id": 450789469,
  "name": "#1001",
  "order_number": 1001,
  "email": "bob@example.com",
  "financial_status": "paid",
  "fulfillment_status": null,
  "cancelled_at": null,
  "currency": "USD",
  "total_price": "598.94",
  "created_at": "2026-03-13T16:09:54-04:00",
  "customer": {"first_name": "Bob", "last_name": "Norman"},
  "shipping_address": {"first_name": "Bob", "last_name": "Norman", "address1": "Chestnut Street 92", "city": "Louisville", "province": "Kentucky", "zip": "40202", "country": "United States", "phone": "555-625-1199"},
  "line_items": [
    {"name": "IPod Nano - 8gb", "quantity": 2, "price": "199.00", "grams": 500},
    {"title": "Case", "quantity": 1, "price": "200.94", "grams": 0}
  ]
}`

func TestNormalize(t *testing.T) {
	o, err := New(nil, 0).Normalize([]byte(order))
	require.NoError(t, err)
	assert.Equal(t, "450789469", o.ID)
	assert.Equal(t, "1001", o.Number)
	assert.Equal(t, "paid", o.Status)
	assert.Equal(t, model.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "Bob Norman", o.Customer.Name)
	assert.Equal(t, "Bob Norman", o.Shipping.Name)
	assert.Equal(t, "Chestnut Street 92\nLouisville, Kentucky\n40202\nUnited States", o.Shipping.Address)
	require.Len(t, o.Items, 2)
	assert.True(t, o.Items[0].WeightKg.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, "Case", o.Items[1].Name)
	assert.True(t, o.WeightKg.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, o.CreatedAt)
	assert.Equal(t, 20, o.CreatedAt.Hour())
	assert.Nil(t, o.Store)
}

func TestOrderStatusFolding(t *testing.T) {
	cases := map[string]string{
		`{"id":1,"cancelled_at":"2026-01-01T00:00:00Z","financial_status":"paid"}`: "cancelled",
		`{"id":1,"financial_status":"refunded"}`:                                   "refunded",
		`{"id":1,"financial_status":"paid","fulfillment_status":"fulfilled"}`:      "shipped",
		`{"id":1,"financial_status":"pending"}`:                                    "open",
	}
	for in, want := range cases {
		o, err := New(nil, 0).Normalize([]byte(in))
		require.NoError(t, err)
		assert.Equal(t, want, o.Status, in)
	}
	o, err := New(nil, 0).Normalize([]byte(`{"id":1,"financial_status":"partially_paid"}`))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentPartial, o.PaymentStatus)
}

func TestEventTypeFromTopic(t *testing.T) {
	a := New(nil, 0)
	h := http.Header{}
	h.Set("X-Shopify-Topic", "orders/fulfilled")
	assert.Equal(t, model.EventOrderShipped, a.EventType(h, nil))
	h.Set("X-Shopify-Topic", "refunds/create")
	assert.Equal(t, model.EventOrderRefunded, a.EventType(h, nil))
	h.Set("X-Shopify-Topic", "carts/update")
	assert.Equal(t, model.EventOrderUpdated, a.EventType(h, []byte(`{}`)))
}

func TestFetchOrders(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`{"orders":[` + order + `]}`))
	}))
	defer srv.Close()

	a := New(integrations.NewHTTPClient(time.Second), 1000)
	assert.Equal(t, 250, a.Limit)
	docs, err := a.FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL, APIKey: "shpat_x"}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Equal(t, "/admin/api/2023-07/orders.json", got.URL.Path)
	assert.Equal(t, "shpat_x", got.Header.Get("X-Shopify-Access-Token"))
	assert.Equal(t, "any", got.URL.Query().Get("status"))
	assert.Equal(t, "2026-03-01T00:00:00Z", got.URL.Query().Get("updated_at_min"))
}

func TestFetchOrdersFollowsLinkHeader(t *testing.T) {
	var queries []string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if r.URL.Query().Get("page_info") == "" {
			w.Header().Set("Link", `<`+srv.URL+`/admin/api/2023-07/orders.json?limit=250&page_info=p2>; rel="next"`)
			_, _ = w.Write([]byte(`{"orders":[{"id":1},{"id":2}]}`))
			return
		}
		w.Header().Set("Link", `<`+srv.URL+`/admin/api/2023-07/orders.json?limit=250&page_info=p1>; rel="previous"`)
		_, _ = w.Write([]byte(`{"orders":[{"id":3}]}`))
	}))
	defer srv.Close()

	docs, err := New(integrations.NewHTTPClient(time.Second), 0).FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, docs, 3)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[0], "updated_at_min=")
	assert.Equal(t, "limit=250&page_info=p2", queries[1])
}
