package woocommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"deliverysync/internal/integrations"
	"deliverysync/internal/model"
)

var topics = map[string]model.EventType{
	"order.created":  model.EventOrderCreated,
	"order.updated":  model.EventOrderUpdated,
	"order.restored": model.EventOrderUpdated,
	"order.deleted":  model.EventOrderCancelled,
}

// Adapter is a WooCommerce-style store: wc/v3 REST API with basic auth,
// billing and shipping blocks, base64 HMAC signatures.
type Adapter struct {
	HTTP  *integrations.HTTPClient
	Limit int
}

func New(client *integrations.HTTPClient, limit int) *Adapter {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return &Adapter{HTTP: client, Limit: limit}
}

func (a *Adapter) Type() model.PlatformType { return model.PlatformWooCommerce }

func (a *Adapter) Signature() integrations.SignatureScheme {
	return integrations.SignatureScheme{Header: "X-WC-Webhook-Signature", Encoding: integrations.EncodingBase64}
}

func (a *Adapter) EventType(h http.Header, body []byte) model.EventType {
	return integrations.EventTypeFromTopic(h.Get("X-WC-Webhook-Topic"), topics, h, body)
}

func (a *Adapter) Normalize(raw json.RawMessage) (model.CanonicalOrder, error) {
	doc, err := integrations.ParseDoc(raw)
	if err != nil {
		return model.CanonicalOrder{}, err
	}
	id := doc.Str("id")
	if id == "" {
		return model.CanonicalOrder{}, fmt.Errorf("woocommerce order: id: %w", integrations.ErrFieldMissing)
	}
	status := strings.ToLower(doc.Str("status"))
	billing := doc.Obj("billing")
	o := model.CanonicalOrder{
		ID:            id,
		Number:        integrations.FirstNonEmpty(doc.Str("number"), id),
		Status:        status,
		PaymentStatus: paymentStatus(status, doc.Str("date_paid")),
		Total:         doc.Num("total"),
		ShippingCost:  doc.Num("shipping_total"),
		Currency:      doc.Str("currency"),
		CreatedAt:     integrations.ParseTime(integrations.FirstNonEmpty(doc.Str("date_created_gmt"), doc.Str("date_created"))),
		Customer: model.Contact{
			Name:  integrations.JoinName(billing.Str("first_name"), billing.Str("last_name")),
			Email: billing.Str("email"),
			Phone: billing.Str("phone"),
		},
		Raw: raw,
	}
	ship := doc.Obj("shipping")
	if ship.Str("address_1") == "" {
		ship = billing
	}
	o.Shipping = model.Contact{
		Name:    integrations.FirstNonEmpty(integrations.JoinName(ship.Str("first_name"), ship.Str("last_name")), o.Customer.Name),
		Phone:   integrations.FirstNonEmpty(ship.Str("phone"), o.Customer.Phone),
		Email:   o.Customer.Email,
		Address: integrations.FormatAddress(ship.Str("address_1"), ship.Str("address_2"), ship.Str("city"), ship.Str("state"), ship.Str("postcode"), ship.Str("country")),
	}
	for _, it := range doc.List("line_items") {
		o.Items = append(o.Items, model.LineItem{
			Name:     integrations.FirstNonEmpty(it.Str("name"), "Item"),
			Quantity: it.Int("quantity", 1),
			Price:    it.Num("price"),
			WeightKg: it.Num("weight"),
		})
	}
	o.WeightKg = integrations.TotalWeight(o.Items)
	o.Metadata = map[string]any{"order_status": status, "items_count": len(o.Items)}
	if cid := doc.Str("customer_id"); cid != "" && cid != "0" {
		o.Metadata["customer_id"] = cid
	}
	return o, nil
}

// paymentStatus treats processing and completed as paid, matching WooCommerce's
// own is_paid statuses.
func paymentStatus(status, datePaid string) model.PaymentStatus {
	switch status {
	case "processing", "completed":
		return model.PaymentPaid
	case "failed":
		return model.PaymentFailed
	}
	if datePaid != "" {
		return model.PaymentPaid
	}
	return model.PaymentPending
}

// FetchOrders walks page=1..N. It stops at X-WP-TotalPages when the store sends it,
// otherwise at the first short page.
func (a *Adapter) FetchOrders(ctx context.Context, conn model.PlatformConnection, since time.Time) ([]json.RawMessage, error) {
	url := strings.TrimRight(conn.BaseURL, "/") + "/wp-json/wc/v3/orders"
	return integrations.FetchPages(func(page int) ([]json.RawMessage, bool, error) {
		req := a.HTTP.R(ctx).
			SetBasicAuth(conn.APIKey, conn.APISecret).
			SetQueryParams(map[string]string{
				"status":   "processing,completed",
				"after":    since.UTC().Format(time.RFC3339),
				"per_page": fmt.Sprint(a.Limit),
				"page":     strconv.Itoa(page + 1),
			})
		p, err := a.HTTP.GetPage(req, url)
		if err != nil {
			return nil, false, err
		}
		orders, err := integrations.SplitOrders(p.Body)
		if err != nil {
			return nil, false, err
		}
		if total, err := strconv.Atoi(p.Header.Get("X-WP-TotalPages")); err == nil {
			return orders, page+1 < total, nil
		}
		return orders, len(orders) >= a.Limit, nil
	})
}
