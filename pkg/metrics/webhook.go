package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics counts inbound gateway events by type and outcome.
type WebhookMetrics struct {
	received  *prometheus.CounterVec
	duplicate *prometheus.CounterVec
	failed    *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook ingest counters.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received",
		Help: "Inbound gateway webhook events accepted for processing.",
	}, []string{"event_type"})
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_duplicate",
		Help: "Redelivered events absorbed by the idempotency guard.",
	}, []string{"event_type"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed",
		Help: "Events whose dispatch rolled back and await gateway redelivery.",
	}, []string{"event_type"})
	reg.MustRegister(received, duplicate, failed)
	return &WebhookMetrics{
		received:  received,
		duplicate: duplicate,
		failed:    failed,
	}
}

// IncReceived counts an accepted event.
func (m *WebhookMetrics) IncReceived(eventType string) {
	if m == nil || m.received == nil {
		return
	}
	m.received.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncDuplicate counts a redelivery absorbed without side effects.
func (m *WebhookMetrics) IncDuplicate(eventType string) {
	if m == nil || m.duplicate == nil {
		return
	}
	m.duplicate.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncFailed counts a dispatch failure returned as 5xx.
func (m *WebhookMetrics) IncFailed(eventType string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(eventType)).Inc()
}
