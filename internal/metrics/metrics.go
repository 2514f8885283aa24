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
        []string{"method", "path"},
    )

    // PlanMutations counts plan edits by operation and outcome
    PlanMutations = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "plan_mutations_total", Help: "Plan mutations by operation and outcome."},
        []string{"op", "outcome"},
    )
    // Exports counts approval export attempts by outcome
    Exports = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "plan_exports_total", Help: "Approval exports by outcome."},
        []string{"outcome"},
    )
    // TrackingPoints counts GPS point ingest by result (accepted, dropped)
    TrackingPoints = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "tracking_points_total", Help: "Tracking points ingested by result."},
        []string{"result"},
    )
    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers collectors to the registry.
func RegisterDefault() {
    regOnce.Do(func() {
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(PlanMutations)
        Registry.MustRegister(Exports)
        Registry.MustRegister(TrackingPoints)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
