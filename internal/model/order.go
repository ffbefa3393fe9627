package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalOrder is the platform-neutral order every adapter normalizes into.
type CanonicalOrder struct {
	ID            string
	Number        string
	Status        string
	PaymentStatus PaymentStatus
	Total         decimal.Decimal
	ShippingCost  decimal.Decimal
	Currency      string
	CreatedAt     *time.Time
	Customer      Contact
	Shipping      Contact
	// Store is the pickup origin when the platform knows it.
	Store    *Contact
	Items    []LineItem
	// WeightKg is the package weight, already defaulted by the adapter.
	WeightKg decimal.Decimal
	Metadata map[string]any
	Raw      json.RawMessage
}

type LineItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	// WeightKg is per unit.
	WeightKg decimal.Decimal
	Fragile  bool
}

// Order is the marketplace order-system read model.
type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id,omitempty"`
	Status         string          `json:"status"`
	DeliveryStatus string          `json:"delivery_status,omitempty"`
	TrackingNumber string          `json:"tracking_number,omitempty"`
	Total          decimal.Decimal `json:"total_price"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
}
