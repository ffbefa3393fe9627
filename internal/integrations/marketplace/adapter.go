// Package marketplace adapts orders from the in-house marketplace, both its
// outbound order webhooks and its order listing API.
package marketplace

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
	HTTP  *integrations.HTTPClient
	Limit int
}

func New(client *integrations.HTTPClient, limit int) *Adapter {
	if limit <= 0 {
		limit = 100
	}
	return &Adapter{HTTP: client, Limit: limit}
}

func (a *Adapter) Type() model.PlatformType { return model.PlatformMarketplace }

func (a *Adapter) Signature() integrations.SignatureScheme {
	return integrations.SignatureScheme{Header: "X-Webhook-Signature", Encoding: integrations.EncodingHex}
}

func (a *Adapter) EventType(h http.Header, body []byte) model.EventType {
	return integrations.EventTypeFromTopic("", nil, h, body)
}

// Normalize accepts both the webhook shape (order_id, delivery_address, items with
// title) and the listing shape (id, shipping_address, items with product).
func (a *Adapter) Normalize(raw json.RawMessage) (model.CanonicalOrder, error) {
	doc, err := integrations.ParseDoc(raw)
	if err != nil {
		return model.CanonicalOrder{}, err
	}
	id := doc.Str("id", "order_id")
	if id == "" {
		return model.CanonicalOrder{}, fmt.Errorf("marketplace order: id: %w", integrations.ErrFieldMissing)
	}
	customer := doc.Obj("customer")
	o := model.CanonicalOrder{
		ID:            id,
		Number:        doc.Str("order_number", "number"),
		Status:        strings.ToLower(doc.Str("status")),
		PaymentStatus: paymentStatus(doc.Str("payment_status")),
		Total:         doc.Num("total_amount", "total_price"),
		ShippingCost:  doc.Num("shipping_cost"),
		Currency:      doc.Str("currency"),
		CreatedAt:     integrations.ParseTime(doc.Str("created_at", "timestamp")),
		Customer: model.Contact{
			Name:  customer.Str("name", "full_name"),
			Email: customer.Str("email"),
			Phone: customer.Str("phone"),
		},
		Raw: raw,
	}
	if o.Number == "" {
		o.Number = id
	}
	if o.Currency == "" {
		o.Currency = "KES"
	}

	ship := doc.Obj("shipping_address")
	if ship.Empty() {
		ship = doc.Obj("delivery_address")
	}
	line1 := ship.Str("line1", "address_line1", "address")
	o.Shipping = model.Contact{
		Name:    integrations.FirstNonEmpty(ship.Str("full_name", "name"), o.Customer.Name),
		Phone:   integrations.FirstNonEmpty(ship.Str("phone"), o.Customer.Phone),
		Email:   o.Customer.Email,
		Address: integrations.FormatAddress(line1, ship.Str("line2", "address_line2"), ship.Str("city"), ship.Str("state"), ship.Str("postal_code"), ship.Str("country")),
	}

	if st := doc.Obj("store"); !st.Empty() {
		o.Store = &model.Contact{
			Name:    integrations.FirstNonEmpty(st.Str("name"), "Marketplace Store"),
			Phone:   st.Str("phone"),
			Email:   st.Str("email"),
			Address: st.Str("address"),
		}
	}

	for _, it := range doc.List("items") {
		product := it.Obj("product")
		item := model.LineItem{
			Name:     integrations.FirstNonEmpty(product.Str("name"), it.Str("title", "name"), "Item"),
			Quantity: it.Int("quantity", 1),
			Price:    it.Num("price"),
			WeightKg: product.Num("weight"),
			Fragile:  product.Bool("is_fragile") || it.Bool("is_fragile"),
		}
		if item.Price.IsZero() {
			item.Price = product.Num("price")
		}
		if item.WeightKg.IsZero() {
			item.WeightKg = it.Num("weight")
		}
		o.Items = append(o.Items, item)
	}
	o.WeightKg = integrations.TotalWeight(o.Items)

	o.Metadata = map[string]any{"order_status": o.Status, "items_count": len(o.Items)}
	if uid := integrations.FirstNonEmpty(doc.Str("user_id"), customer.Str("id", "user_id")); uid != "" {
		o.Metadata["user_id"] = uid
	}
	return o, nil
}

// FetchOrders lists paid and in-flight orders updated in [since, now].
// The listing is paginated through the envelope's "next" URL, which already carries
// the filters.
func (a *Adapter) FetchOrders(ctx context.Context, conn model.PlatformConnection, since time.Time) ([]json.RawMessage, error) {
	url := strings.TrimRight(conn.BaseURL, "/") + "/api/orders/"
	until := time.Now().UTC().Format(time.RFC3339)
	return integrations.FetchPages(func(page int) ([]json.RawMessage, bool, error) {
		req := a.HTTP.R(ctx).SetAuthToken(conn.APIKey)
		if page == 0 {
			req.SetQueryParams(map[string]string{
				"status":    "paid,processing,shipped",
				"date_from": since.UTC().Format(time.RFC3339),
				"date_to":   until,
				"limit":     fmt.Sprint(a.Limit),
			})
		}
		p, err := a.HTTP.GetPage(req, url)
		if err != nil {
			return nil, false, err
		}
		orders, err := integrations.SplitOrders(p.Body, "results", "orders")
		if err != nil {
			return nil, false, err
		}
		url = integrations.NextField(p.Body)
		return orders, url != "", nil
	})
}

func paymentStatus(s string) model.PaymentStatus {
	switch strings.ToLower(s) {
	case "paid", "completed":
		return model.PaymentPaid
	case "partial", "partially_paid":
		return model.PaymentPartial
	case "failed":
		return model.PaymentFailed
	}
	return model.PaymentPending
}
