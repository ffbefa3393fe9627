package model

type DeliveryStatus string

const (
	StatusPending        DeliveryStatus = "pending"
	StatusAccepted       DeliveryStatus = "accepted"
	StatusAssigned       DeliveryStatus = "assigned"
	StatusPickedUp       DeliveryStatus = "picked_up"
	StatusInTransit      DeliveryStatus = "in_transit"
	StatusOutForDelivery DeliveryStatus = "out_for_delivery"
	StatusDelivered      DeliveryStatus = "delivered"
	StatusFailed         DeliveryStatus = "failed"
	StatusReturned       DeliveryStatus = "returned"
	StatusCancelled      DeliveryStatus = "cancelled"
)

// DeliveryStatuses lists every status in lifecycle order.
var DeliveryStatuses = []DeliveryStatus{
	StatusPending, StatusAccepted, StatusAssigned, StatusPickedUp, StatusInTransit,
	StatusOutForDelivery, StatusDelivered, StatusFailed, StatusReturned, StatusCancelled,
}

func (s DeliveryStatus) Valid() bool {
	for _, v := range DeliveryStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentPartial PaymentStatus = "partial"
	PaymentFailed  PaymentStatus = "failed"
)

type PlatformType string

const (
	PlatformMarketplace PlatformType = "marketplace"
	PlatformShopify     PlatformType = "shopify"
	PlatformWooCommerce PlatformType = "woocommerce"
	PlatformGeneric     PlatformType = "generic"
)

type EventType string

const (
	EventOrderCreated   EventType = "order_created"
	EventOrderUpdated   EventType = "order_updated"
	EventOrderCancelled EventType = "order_cancelled"
	EventOrderPaid      EventType = "order_paid"
	EventOrderShipped   EventType = "order_shipped"
	EventOrderDelivered EventType = "order_delivered"
	EventOrderRefunded  EventType = "order_refunded"
	EventPaymentFailed  EventType = "payment_failed"
)

type WebhookEventStatus string

const (
	WebhookReceived   WebhookEventStatus = "received"
	WebhookProcessing WebhookEventStatus = "processing"
	WebhookProcessed  WebhookEventStatus = "processed"
	WebhookFailed     WebhookEventStatus = "failed"
)

type SyncRuleType string

const (
	RuleStatusFilter  SyncRuleType = "status_filter"
	RulePaymentFilter SyncRuleType = "payment_filter"
	RuleDateFilter    SyncRuleType = "date_filter"
	RuleValueFilter   SyncRuleType = "value_filter"
)

type SyncTrigger string

const (
	TriggerWebhook   SyncTrigger = "webhook"
	TriggerManual    SyncTrigger = "manual"
	TriggerScheduled SyncTrigger = "scheduled"
)

type SyncStatus string

const (
	SyncInProgress SyncStatus = "in_progress"
	SyncSuccess    SyncStatus = "success"
	SyncPartial    SyncStatus = "partial"
	SyncFailed     SyncStatus = "failed"
	SyncSkipped    SyncStatus = "skipped"
)
