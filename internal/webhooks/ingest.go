// Package webhooks receives platform order webhooks, verifies and records them,
// and processes recorded events into deliveries.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"deliverysync/internal/integrations"
	"deliverysync/internal/metrics"
	"deliverysync/internal/model"
	"deliverysync/internal/store"
)

var (
	ErrUnauthorized     = errors.New("webhook signature rejected")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrUnknownPlatform  = errors.New("unknown or inactive platform")
	// ErrProcessing marks a recorded event whose processing failed. The event stays retryable.
	ErrProcessing = errors.New("webhook processing failed")
)

// Request is one inbound webhook call.
type Request struct {
	// Platform is a connection id or name.
	Platform string
	// Type, when set, must match the connection's type.
	Type   model.PlatformType
	Header http.Header
	Body   []byte
}

type Ingestor struct {
	Store     store.Store
	Registry  *integrations.Registry
	Verifier  Verifier
	Processor *Processor
	Timeout   time.Duration
	Log       *zap.Logger
}

// Ingest resolves the platform, verifies the signature, records the event and processes it.
// Nothing is recorded for requests rejected before the record step.
func (in *Ingestor) Ingest(ctx context.Context, req Request) (Outcome, error) {
	conn, err := in.resolve(ctx, req.Platform, req.Type)
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues("unknown", "unknown_platform").Inc()
		return Outcome{}, err
	}
	platform := string(conn.Type)
	adapter := in.Registry.For(conn.Type)
	if err := in.Verifier.Verify(conn, adapter.Signature(), req.Header, req.Body); err != nil {
		metrics.WebhooksReceived.WithLabelValues(platform, "unauthorized").Inc()
		in.Log.Warn("webhook signature rejected", zap.String("platform", conn.Name), zap.Error(err))
		return Outcome{}, err
	}
	if !json.Valid(req.Body) {
		metrics.WebhooksReceived.WithLabelValues(platform, "malformed").Inc()
		return Outcome{}, ErrMalformedPayload
	}

	et := adapter.EventType(req.Header, req.Body)
	e := &model.WebhookEvent{
		PlatformID: conn.ID,
		EventType:  et,
		Payload:    json.RawMessage(req.Body),
		Headers:    recordedHeaders(req.Header, adapter.Signature().Header),
		Status:     model.WebhookReceived,
	}
	if err := in.Store.CreateWebhookEvent(ctx, e); err != nil {
		return Outcome{}, fmt.Errorf("record webhook: %w", err)
	}
	metrics.WebhooksReceived.WithLabelValues(platform, "recorded").Inc()
	log := in.Log.With(zap.String("platform", conn.Name), zap.String("event_type", string(et)), zap.String("event_id", e.ID))

	pctx, cancel := context.WithTimeout(ctx, in.timeout())
	defer cancel()
	out, err := in.Processor.Process(pctx, e.ID)
	if err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		return out, err
	}
	log.Info("webhook processed", zap.String("status", string(out.Status)))
	return out, nil
}

func (in *Ingestor) timeout() time.Duration {
	if in.Timeout > 0 {
		return in.Timeout
	}
	return 10 * time.Second
}

func (in *Ingestor) resolve(ctx context.Context, key string, want model.PlatformType) (model.PlatformConnection, error) {
	if key == "" {
		return model.PlatformConnection{}, fmt.Errorf("%w: no platform given", ErrUnknownPlatform)
	}
	conn, err := in.Store.GetPlatform(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		conn, err = in.Store.GetPlatformByName(ctx, key)
	}
	if errors.Is(err, store.ErrNotFound) {
		return model.PlatformConnection{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, key)
	}
	if err != nil {
		return model.PlatformConnection{}, err
	}
	if !conn.Active || (want != "" && conn.Type != want) {
		return model.PlatformConnection{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, key)
	}
	return conn, nil
}

// recordedHeaders keeps the first value of each header, minus credentials.
func recordedHeaders(h http.Header, signatureHeader string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 || strings.EqualFold(k, signatureHeader) || strings.EqualFold(k, "Authorization") || strings.EqualFold(k, "Cookie") {
			continue
		}
		out[k] = v[0]
	}
	return out
}
