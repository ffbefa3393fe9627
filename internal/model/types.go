package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Core domain types shared by the store, the pipeline and the HTTP layer.

type Contact struct {
	Name    string `json:"name,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

// DeliveryRequest is one fulfillment job per external order.
type DeliveryRequest struct {
	ID                 string          `json:"id"`
	TrackingNumber     string          `json:"trackingNumber"`
	PlatformID         string          `json:"platformId"`
	ExternalOrderID    string          `json:"externalOrderId"`
	OrderNumber        string          `json:"orderNumber,omitempty"`
	Status             DeliveryStatus  `json:"status"`
	Priority           int             `json:"priority"`
	Pickup             Contact         `json:"pickup"`
	Recipient          Contact         `json:"recipient"`
	PackageDescription string          `json:"packageDescription,omitempty"`
	PackageWeight      decimal.Decimal `json:"packageWeight"`
	DeclaredValue      decimal.Decimal `json:"declaredValue"`
	IsFragile          bool            `json:"isFragile"`
	RequiresSignature  bool            `json:"requiresSignature"`
	CourierID          string          `json:"courierId,omitempty"`
	DeliveryFee        decimal.Decimal `json:"deliveryFee"`
	TotalAmount        decimal.Decimal `json:"totalAmount"`
	PaymentStatus      PaymentStatus   `json:"paymentStatus"`
	PickupTime         *time.Time      `json:"pickupTime,omitempty"`
	ActualDeliveryTime *time.Time      `json:"actualDeliveryTime,omitempty"`
	Metadata           map[string]any  `json:"metadata,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// StatusHistory is an append-only audit row, one per accepted transition.
type StatusHistory struct {
	ID         string         `json:"id"`
	DeliveryID string         `json:"deliveryId"`
	OldStatus  DeliveryStatus `json:"oldStatus,omitempty"`
	NewStatus  DeliveryStatus `json:"newStatus"`
	Actor      string         `json:"actor,omitempty"`
	Note       string         `json:"note,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type Courier struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	CompletedDeliveries int    `json:"completedDeliveries"`
}

// PlatformConnection is a configured external e-commerce platform.
type PlatformConnection struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Type          PlatformType  `json:"type"`
	BaseURL       string        `json:"baseUrl,omitempty"`
	APIKey        string        `json:"-"`
	APISecret     string        `json:"-"`
	WebhookSecret string        `json:"-"`
	Active        bool          `json:"active"`
	SyncEnabled   bool          `json:"syncEnabled"`
	LastSync      *time.Time    `json:"lastSync,omitempty"`
	PollInterval  time.Duration `json:"pollInterval"`
}

// OrderMapping is the dedup index from (platform, external order id) to a delivery.
type OrderMapping struct {
	ID              string          `json:"id"`
	PlatformID      string          `json:"platformId"`
	ExternalOrderID string          `json:"externalOrderId"`
	OrderNumber     string          `json:"orderNumber,omitempty"`
	DeliveryID      string          `json:"deliveryId"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// WebhookEvent records one inbound webhook call.
type WebhookEvent struct {
	ID          string             `json:"id"`
	PlatformID  string             `json:"platformId"`
	EventType   EventType          `json:"eventType"`
	Payload     json.RawMessage    `json:"payload"`
	Headers     map[string]string  `json:"headers,omitempty"`
	Status      WebhookEventStatus `json:"status"`
	Error       string             `json:"error,omitempty"`
	Attempts    int                `json:"attempts"`
	ReceivedAt  time.Time          `json:"receivedAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	ProcessedAt *time.Time         `json:"processedAt,omitempty"`
}

// SyncRule filters pulled orders before a delivery is created.
type SyncRule struct {
	ID              string          `json:"id"`
	PlatformID      string          `json:"platformId"`
	Name            string          `json:"name,omitempty"`
	Type            SyncRuleType    `json:"type"`
	Priority        int             `json:"priority"`
	Active          bool            `json:"active"`
	AllowedStatuses []string        `json:"allowedStatuses,omitempty"`
	RequirePayment  bool            `json:"requirePayment,omitempty"`
	MaxAgeDays      int             `json:"maxAgeDays,omitempty"`
	MinValue        decimal.Decimal `json:"minValue"`
}

// SyncLog is the record of one sync run.
type SyncLog struct {
	ID          string        `json:"id"`
	PlatformID  string        `json:"platformId"`
	Trigger     SyncTrigger   `json:"trigger"`
	Status      SyncStatus    `json:"status"`
	Synced      int           `json:"synced"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Failures    []SyncFailure `json:"failures,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

type SyncFailure struct {
	ExternalOrderID string `json:"externalOrderId,omitempty"`
	Error           string `json:"error"`
}

// StatusChange is emitted after a transition commits.
type StatusChange struct {
	DeliveryID      string         `json:"deliveryId"`
	TrackingNumber  string         `json:"trackingNumber"`
	PlatformID      string         `json:"platformId"`
	ExternalOrderID string         `json:"externalOrderId"`
	RecipientEmail  string         `json:"recipientEmail,omitempty"`
	OldStatus       DeliveryStatus `json:"oldStatus,omitempty"`
	NewStatus       DeliveryStatus `json:"newStatus"`
	Note            string         `json:"note,omitempty"`
	Actor           string         `json:"actor,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	At              time.Time      `json:"at"`
}
