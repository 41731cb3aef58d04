package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for ledger operations and the
// webhook surface. It satisfies service.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	WebhooksTotal     *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
}

// NewMetrics creates the instruments and registers them on registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerbot_ledger_operations_total",
				Help: "Total ledger operations by outcome.",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wagerbot_ledger_operation_duration_seconds",
				Help:    "Ledger operation duration in seconds, lock waits included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerbot_webhooks_total",
				Help: "Total inbound webhooks by source and HTTP status.",
			},
			[]string{"source", "status"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wagerbot_events_published_total",
				Help: "Total domain events forwarded to NATS.",
			},
			[]string{"event_type", "status"},
		),
	}

	registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.WebhooksTotal,
		m.EventsPublished,
	)
	return m
}

// ObserveOperation records one ledger operation; result is the error kind or "ok"
func (m *Metrics) ObserveOperation(operation string, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveWebhook records one inbound webhook response
func (m *Metrics) ObserveWebhook(source string, status string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(source, status).Inc()
}

// ObserveEventPublished records one outbound event publish attempt
func (m *Metrics) ObserveEventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(eventType, status).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
