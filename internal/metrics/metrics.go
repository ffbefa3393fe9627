package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // WebhooksReceived counts inbound webhook calls by platform type and ingestion outcome
    WebhooksReceived = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhooks_received_total", Help: "Inbound webhooks by platform type and outcome."},
        []string{"platform", "outcome"},
    )
    // WebhookProcessing tracks processing latency by event type and final status
    WebhookProcessing = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_processing_seconds", Help: "Webhook event processing time in seconds.", Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5}},
        []string{"event_type", "status"},
    )
    // StatusTransitions counts committed delivery status transitions
    StatusTransitions = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "delivery_status_transitions_total", Help: "Committed delivery status transitions."},
        []string{"from", "to"},
    )
    // SyncRuns counts sync runs by platform and final status
    SyncRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "sync_runs_total", Help: "Sync runs by platform and status."},
        []string{"platform", "status"},
    )
    // SyncOrders counts per-order outcomes during sync runs
    SyncOrders = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "sync_orders_total", Help: "Orders seen by sync runs by outcome."},
        []string{"platform", "outcome"},
    )
    // ReconcileFailures counts best-effort reconciliation steps that failed
    ReconcileFailures = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "reconcile_failures_total", Help: "Reconciliation step failures."},
        []string{"stage"},
    )
    // EventsDropped counts status-change events dropped because the bus was full
    EventsDropped = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "status_events_dropped_total", Help: "Status change events dropped on a full bus."},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(WebhooksReceived)
        Registry.MustRegister(WebhookProcessing)
        Registry.MustRegister(StatusTransitions)
        Registry.MustRegister(SyncRuns)
        Registry.MustRegister(SyncOrders)
        Registry.MustRegister(ReconcileFailures)
        Registry.MustRegister(EventsDropped)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
