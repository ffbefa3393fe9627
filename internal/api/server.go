// Package api implements the HTTP surface of the integration service.
package api

import (
    "net/http"

    "github.com/go-playground/validator/v10"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "go.uber.org/zap"

    "deliverysync/internal/delivery"
    "deliverysync/internal/integrations"
    "deliverysync/internal/metrics"
    "deliverysync/internal/pipeline"
    "deliverysync/internal/realtime"
    "deliverysync/internal/store"
    "deliverysync/internal/syncer"
    "deliverysync/internal/webhooks"
)

type Server struct {
    Store        store.Store
    Machine      *delivery.Machine
    Registry     *integrations.Registry
    Pipeline     *pipeline.Pipeline
    Ingestor     *webhooks.Ingestor
    Processor    *webhooks.Processor
    Orchestrator *syncer.Orchestrator
    Broker       realtime.EventBroker
    Log          *zap.Logger

    validate *validator.Validate
}

// NewServer wires the handlers. The ingestor and processor share the given pipeline.
func NewServer(s store.Store, m *delivery.Machine, reg *integrations.Registry, p *pipeline.Pipeline,
    in *webhooks.Ingestor, o *syncer.Orchestrator, b realtime.EventBroker, log *zap.Logger) *Server {
    if log == nil {
        log = zap.NewNop()
    }
    return &Server{
        Store:        s,
        Machine:      m,
        Registry:     reg,
        Pipeline:     p,
        Ingestor:     in,
        Processor:    in.Processor,
        Orchestrator: o,
        Broker:       b,
        Log:          log,
        validate:     validator.New(),
    }
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
    mux := http.NewServeMux()

    // Inbound webhooks
    mux.HandleFunc("POST /v1/webhooks", s.WebhookByHeaderHandler)
    mux.HandleFunc("POST /v1/webhooks/{platform}", s.WebhookHandler)
    mux.HandleFunc("POST /v1/webhooks/type/{type}/{platform}", s.TypedWebhookHandler)

    // Pull sync
    mux.HandleFunc("POST /v1/sync", s.SyncAllHandler)
    mux.HandleFunc("POST /v1/sync/{platform}", s.SyncHandler)

    // Deliveries
    mux.HandleFunc("POST /v1/deliveries/from-order", s.FromOrderHandler)
    mux.HandleFunc("POST /v1/deliveries/{id}/status", s.StatusHandler)
    mux.HandleFunc("POST /v1/deliveries/{id}/assign", s.AssignHandler)

    // Tracking
    mux.HandleFunc("GET /v1/track/{tracking}", s.TrackHandler)
    mux.HandleFunc("GET /v1/track/{tracking}/stream", s.TrackStreamHandler)
    mux.HandleFunc("GET /v1/realtime/ws", s.RealtimeWSHandler)

    // Admin
    mux.HandleFunc("GET /v1/admin/webhook-events", s.WebhookEventsHandler)
    mux.HandleFunc("POST /v1/admin/webhook-events/{id}/retry", s.WebhookEventRetryHandler)
    mux.HandleFunc("GET /v1/admin/sync-logs", s.SyncLogsHandler)

    // Health
    mux.HandleFunc("GET /healthz", s.HealthHandler)
    mux.HandleFunc("GET /readyz", s.ReadyHandler)
    mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    return mux
}
