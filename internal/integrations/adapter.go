package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"deliverysync/internal/model"
)

var (
	// ErrFieldMissing marks an order document without a field no default can stand in for.
	ErrFieldMissing = errors.New("required field missing")
	// ErrExternalCall marks a failed or non-2xx call to a platform API.
	ErrExternalCall = errors.New("external call failed")
)

// Adapter defines the per-platform integration surface: pull, push normalization and
// the webhook signing scheme.
type Adapter interface {
	Type() model.PlatformType
	Signature() SignatureScheme
	// EventType derives the event tag from platform headers or the payload.
	EventType(h http.Header, body []byte) model.EventType
	Normalize(raw json.RawMessage) (model.CanonicalOrder, error)
	// FetchOrders returns raw order documents changed since since. Each document is
	// normalized separately so one bad order does not fail the batch.
	FetchOrders(ctx context.Context, conn model.PlatformConnection, since time.Time) ([]json.RawMessage, error)
}

type Encoding int

const (
	EncodingHex Encoding = iota
	EncodingBase64
)

// SignatureScheme is an HMAC-SHA256 over the raw body, carried in Header.
type SignatureScheme struct {
	Header   string
	Encoding Encoding
	// Prefix is stripped from the header value when present, e.g. "sha256=".
	Prefix string
}

// Registry selects an adapter by the connection's type tag.
type Registry struct {
	adapters map[model.PlatformType]Adapter
	fallback Adapter
}

// NewRegistry builds a registry; fallback serves every type without a dedicated adapter.
func NewRegistry(fallback Adapter, adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[model.PlatformType]Adapter{}, fallback: fallback}
	for _, a := range adapters {
		r.adapters[a.Type()] = a
	}
	if fallback != nil {
		if _, ok := r.adapters[fallback.Type()]; !ok {
			r.adapters[fallback.Type()] = fallback
		}
	}
	return r
}

func (r *Registry) For(t model.PlatformType) Adapter {
	if a, ok := r.adapters[t]; ok {
		return a
	}
	return r.fallback
}

// EventTypeFromTopic maps a platform topic header through table, then falls back to an
// explicit X-Event-Type header, an event field in the body, and finally order_updated.
func EventTypeFromTopic(topic string, table map[string]model.EventType, h http.Header, body []byte) model.EventType {
	if et, ok := table[topic]; ok {
		return et
	}
	if v := h.Get("X-Event-Type"); v != "" {
		return model.EventType(v)
	}
	var probe struct {
		Event     string `json:"event"`
		EventType string `json:"event_type"`
	}
	if json.Unmarshal(body, &probe) == nil {
		if probe.Event != "" {
			return model.EventType(probe.Event)
		}
		if probe.EventType != "" {
			return model.EventType(probe.EventType)
		}
	}
	return model.EventOrderUpdated
}
