package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics counts outbound calls to the billing provider. Stub calls
// are tracked on their own counter so a disabled gateway is impossible to
// mistake for real provider traffic on a dashboard.
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	stub     *prometheus.CounterVec
}

// NewGatewayMetrics registers the gateway counters.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests",
		Help: "Requests issued to the billing gateway.",
	}, []string{"operation", "outcome"})
	stub := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_stub_requests",
		Help: "Calls answered by the disabled-gateway stub (never a real charge).",
	}, []string{"operation"})
	reg.MustRegister(requests, stub)
	return &GatewayMetrics{requests: requests, stub: stub}
}

// IncRequest counts one gateway call with its outcome (ok/error/timeout).
func (m *GatewayMetrics) IncRequest(operation, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncStub counts a call absorbed by the disabled stub.
func (m *GatewayMetrics) IncStub(operation string) {
	if m == nil || m.stub == nil {
		return
	}
	m.stub.WithLabelValues(normalizeLabel(operation)).Inc()
}
