package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"deliverysync/internal/integrations"
	"deliverysync/internal/model"
)

const apiVersion = "2023-07"

var topics = map[string]model.EventType{
	"orders/create":    model.EventOrderCreated,
	"orders/updated":   model.EventOrderUpdated,
	"orders/edited":    model.EventOrderUpdated,
	"orders/cancelled": model.EventOrderCancelled,
	"orders/paid":      model.EventOrderPaid,
	"orders/fulfilled": model.EventOrderShipped,
	"refunds/create":   model.EventOrderRefunded,
}

var gramsPerKg = decimal.NewFromInt(1000)

// Adapter is a Shopify-style storefront: REST admin API, weights in grams,
// base64 HMAC signatures.
type Adapter struct {
	HTTP  *integrations.HTTPClient
	Limit int
}

func New(client *integrations.HTTPClient, limit int) *Adapter {
	if limit <= 0 || limit > 250 {
		limit = 250
	}
	return &Adapter{HTTP: client, Limit: limit}
}

func (a *Adapter) Type() model.PlatformType { return model.PlatformShopify }

func (a *Adapter) Signature() integrations.SignatureScheme {
	return integrations.SignatureScheme{Header: "X-Shopify-Hmac-Sha256", Encoding: integrations.EncodingBase64}
}

func (a *Adapter) EventType(h http.Header, body []byte) model.EventType {
	return integrations.EventTypeFromTopic(h.Get("X-Shopify-Topic"), topics, h, body)
}

func (a *Adapter) Normalize(raw json.RawMessage) (model.CanonicalOrder, error) {
	doc, err := integrations.ParseDoc(raw)
	if err != nil {
		return model.CanonicalOrder{}, err
	}
	id := doc.Str("id")
	if id == "" {
		return model.CanonicalOrder{}, fmt.Errorf("shopify order: id: %w", integrations.ErrFieldMissing)
	}
	financial := strings.ToLower(doc.Str("financial_status"))
	customer := doc.Obj("customer")
	o := model.CanonicalOrder{
		ID:            id,
		Number:        integrations.FirstNonEmpty(doc.Str("order_number"), strings.TrimPrefix(doc.Str("name"), "#"), id),
		Status:        orderStatus(doc, financial),
		PaymentStatus: paymentStatus(financial),
		Total:         doc.Num("total_price"),
		ShippingCost:  doc.Obj("total_shipping_price_set").Obj("shop_money").Num("amount"),
		Currency:      doc.Str("currency"),
		CreatedAt:     integrations.ParseTime(doc.Str("created_at")),
		Customer: model.Contact{
			Name:  integrations.JoinName(customer.Str("first_name"), customer.Str("last_name")),
			Email: integrations.FirstNonEmpty(doc.Str("email"), customer.Str("email")),
			Phone: integrations.FirstNonEmpty(doc.Str("phone"), customer.Str("phone")),
		},
		Raw: raw,
	}
	ship := doc.Obj("shipping_address")
	o.Shipping = model.Contact{
		Name:    integrations.FirstNonEmpty(ship.Str("name"), integrations.JoinName(ship.Str("first_name"), ship.Str("last_name")), o.Customer.Name),
		Phone:   integrations.FirstNonEmpty(ship.Str("phone"), o.Customer.Phone),
		Email:   o.Customer.Email,
		Address: integrations.FormatAddress(ship.Str("address1"), ship.Str("address2"), ship.Str("city"), ship.Str("province"), ship.Str("zip"), ship.Str("country")),
	}
	for _, it := range doc.List("line_items") {
		o.Items = append(o.Items, model.LineItem{
			Name:     integrations.FirstNonEmpty(it.Str("name", "title"), "Item"),
			Quantity: it.Int("quantity", 1),
			Price:    it.Num("price"),
			WeightKg: it.Num("grams").Div(gramsPerKg),
			Fragile:  strings.Contains(strings.ToLower(doc.Str("tags")), "fragile"),
		})
	}
	o.WeightKg = integrations.TotalWeight(o.Items)
	o.Metadata = map[string]any{
		"order_status":       o.Status,
		"financial_status":   financial,
		"fulfillment_status": doc.Str("fulfillment_status"),
		"items_count":        len(o.Items),
	}
	return o, nil
}

// orderStatus folds Shopify's financial, fulfillment and cancellation fields into one status.
func orderStatus(doc integrations.Doc, financial string) string {
	switch {
	case doc.Str("cancelled_at") != "":
		return "cancelled"
	case financial == "refunded":
		return "refunded"
	case strings.EqualFold(doc.Str("fulfillment_status"), "fulfilled"):
		return "shipped"
	case financial == "paid":
		return "paid"
	}
	return "open"
}

func paymentStatus(financial string) model.PaymentStatus {
	switch financial {
	case "paid":
		return model.PaymentPaid
	case "partially_paid", "partially_refunded":
		return model.PaymentPartial
	case "voided":
		return model.PaymentFailed
	}
	return model.PaymentPending
}

// FetchOrders follows the Link rel="next" cursor. Later pages carry only page_info,
// so the filters are sent on the first request alone.
func (a *Adapter) FetchOrders(ctx context.Context, conn model.PlatformConnection, since time.Time) ([]json.RawMessage, error) {
	url := strings.TrimRight(conn.BaseURL, "/") + "/admin/api/" + apiVersion + "/orders.json"
	return integrations.FetchPages(func(page int) ([]json.RawMessage, bool, error) {
		req := a.HTTP.R(ctx).SetHeader("X-Shopify-Access-Token", conn.APIKey)
		if page == 0 {
			req.SetQueryParams(map[string]string{
				"status":         "any",
				"updated_at_min": since.UTC().Format(time.RFC3339),
				"limit":          fmt.Sprint(a.Limit),
			})
		}
		p, err := a.HTTP.GetPage(req, url)
		if err != nil {
			return nil, false, err
		}
		orders, err := integrations.SplitOrders(p.Body, "orders")
		if err != nil {
			return nil, false, err
		}
		url = integrations.NextLink(p.Header)
		return orders, url != "", nil
	})
}
