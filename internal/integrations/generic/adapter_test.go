package generic

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

func TestNormalizeFlat(t *testing.T) {
	o, err := New(nil).Normalize([]byte(`{"order":{"id":"A-1","status":"Processing","payment_status":"paid","total":"15.5","customer_name":"Ama","phone":"+233","shipping_address":"1 Ring Rd, Accra","weight":"3","items":[{"name":"Shoes","quantity":1,"weight":"0.9"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, "A-1", o.ID)
	assert.Equal(t, "A-1", o.Number)
	assert.Equal(t, "processing", o.Status)
	assert.Equal(t, model.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "1 Ring Rd, Accra", o.Shipping.Address)
	assert.Equal(t, "Ama", o.Shipping.Name)
	assert.True(t, o.WeightKg.Equal(decimal.NewFromInt(3)))
}

func TestNormalizeStructuredAddress(t *testing.T) {
	o, err := New(nil).Normalize([]byte(`{"order_id":5,"shipping_address":{"line1":"2 High St","city":"Leeds","postal_code":"LS1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "2 High St\nLeeds\nLS1", o.Shipping.Address)
	assert.True(t, o.WeightKg.Equal(integrations.DefaultWeightKg))
}

func TestNormalizeMissingID(t *testing.T) {
	_, err := New(nil).Normalize([]byte(`{"status":"paid"}`))
	require.ErrorIs(t, err, integrations.ErrFieldMissing)
}

func TestSignatureScheme(t *testing.T) {
	s := New(nil).Signature()
	assert.Equal(t, "sha256=", s.Prefix)
	assert.Equal(t, integrations.EncodingHex, s.Encoding)
}

func TestFetchOrders(t *testing.T) {
	var since string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		since = r.URL.Query().Get("since")
		_, _ = w.Write([]byte(`{"orders":[{"id":"a"},{"id":"b"}]}`))
	}))
	defer srv.Close()
	docs, err := New(integrations.NewHTTPClient(time.Second)).FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, "2026-01-02T03:04:05Z", since)
}

func TestFetchOrdersFollowsNext(t *testing.T) {
	calls := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"orders":[{"id":"a"}],"next":"` + srv.URL + `/api/orders?cursor=2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"orders":[{"id":"b"}]}`))
	}))
	defer srv.Close()
	docs, err := New(integrations.NewHTTPClient(time.Second)).FetchOrders(context.Background(), model.PlatformConnection{BaseURL: srv.URL}, time.Now())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, calls)
}
