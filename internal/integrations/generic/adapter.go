// Package generic is the fallback adapter for platforms posting flat order documents.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"deliverysync/internal/integrations"
	"deliverysync/internal/model"
)

type Adapter struct {
	HTTP *integrations.HTTPClient
}

func New(client *integrations.HTTPClient) *Adapter { return &Adapter{HTTP: client} }

func (a *Adapter) Type() model.PlatformType { return model.PlatformGeneric }

func (a *Adapter) Signature() integrations.SignatureScheme {
	return integrations.SignatureScheme{Header: "X-Webhook-Signature", Encoding: integrations.EncodingHex, Prefix: "sha256="}
}

func (a *Adapter) EventType(h http.Header, body []byte) model.EventType {
	return integrations.EventTypeFromTopic("", nil, h, body)
}

func (a *Adapter) Normalize(raw json.RawMessage) (model.CanonicalOrder, error) {
	doc, err := integrations.ParseDoc(raw)
	if err != nil {
		return model.CanonicalOrder{}, err
	}
	if nested := doc.Obj("order"); !nested.Empty() {
		doc = nested
	}
	id := doc.Str("id", "order_id", "external_id")
	if id == "" {
		return model.CanonicalOrder{}, fmt.Errorf("order: id: %w", integrations.ErrFieldMissing)
	}
	customer := doc.Obj("customer")
	o := model.CanonicalOrder{
		ID:            id,
		Number:        integrations.FirstNonEmpty(doc.Str("order_number", "number"), id),
		Status:        strings.ToLower(doc.Str("status")),
		PaymentStatus: paymentStatus(doc.Str("payment_status")),
		Total:         doc.Num("total", "total_amount", "total_price"),
		ShippingCost:  doc.Num("shipping_cost"),
		Currency:      doc.Str("currency"),
		CreatedAt:     integrations.ParseTime(doc.Str("created_at")),
		Customer: model.Contact{
			Name:  integrations.FirstNonEmpty(doc.Str("customer_name"), customer.Str("name")),
			Email: integrations.FirstNonEmpty(doc.Str("customer_email", "email"), customer.Str("email")),
			Phone: integrations.FirstNonEmpty(doc.Str("customer_phone", "phone"), customer.Str("phone")),
		},
		Raw: raw,
	}
	address := doc.Str("shipping_address")
	if ship := doc.Obj("shipping_address"); !ship.Empty() {
		address = integrations.FormatAddress(ship.Str("line1", "address1", "address"), ship.Str("line2", "address2"), ship.Str("city"), ship.Str("state"), ship.Str("postal_code", "zip"), ship.Str("country"))
	}
	o.Shipping = model.Contact{Name: o.Customer.Name, Phone: o.Customer.Phone, Email: o.Customer.Email, Address: address}
	for _, it := range doc.List("items") {
		o.Items = append(o.Items, model.LineItem{
			Name:     integrations.FirstNonEmpty(it.Str("name", "title"), "Item"),
			Quantity: it.Int("quantity", 1),
			Price:    it.Num("price"),
			WeightKg: it.Num("weight"),
			Fragile:  it.Bool("fragile"),
		})
	}
	o.WeightKg = integrations.TotalWeight(o.Items)
	if w := doc.Num("weight"); w.IsPositive() {
		o.WeightKg = w
	}
	o.Metadata = map[string]any{"order_status": o.Status, "items_count": len(o.Items)}
	return o, nil
}

func paymentStatus(s string) model.PaymentStatus {
	switch strings.ToLower(s) {
	case "paid", "completed":
		return model.PaymentPaid
	case "partial":
		return model.PaymentPartial
	case "failed":
		return model.PaymentFailed
	}
	return model.PaymentPending
}

func (a *Adapter) FetchOrders(ctx context.Context, conn model.PlatformConnection, since time.Time) ([]json.RawMessage, error) {
	url := strings.TrimRight(conn.BaseURL, "/") + "/api/orders"
	return integrations.FetchPages(func(page int) ([]json.RawMessage, bool, error) {
		req := a.HTTP.R(ctx).SetAuthToken(conn.APIKey)
		if page == 0 {
			req.SetQueryParam("since", since.UTC().Format(time.RFC3339))
		}
		p, err := a.HTTP.GetPage(req, url)
		if err != nil {
			return nil, false, err
		}
		orders, err := integrations.SplitOrders(p.Body, "orders", "results")
		if err != nil {
			return nil, false, err
		}
		url = integrations.NextField(p.Body)
		return orders, url != "", nil
	})
}
