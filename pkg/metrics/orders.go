package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records checkout and reconciliation outcomes.
type OrderMetrics struct {
	created         *prometheus.CounterVec
	settled         prometheus.Counter
	cancelled       prometheus.Counter
	stockConflicts  prometheus.Counter
	gatewayDuration *prometheus.HistogramVec
	gatewayFailures *prometheus.CounterVec
}

// NewOrderMetrics registers the storefront metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created, by payment method.",
	}, []string{"method"})
	settled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Orders that reached the paid state.",
	})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Orders cancelled or expired.",
	})
	stockConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reservation_conflicts_total",
		Help: "Reservations lost to a concurrent claim.",
	})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_duration_seconds",
		Help:    "Duration of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	gatewayFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_call_failures_total",
		Help: "Failed payment gateway calls, by operation.",
	}, []string{"operation"})
	reg.MustRegister(created, settled, cancelled, stockConflicts, gatewayDuration, gatewayFailures)
	return &OrderMetrics{
		created:         created,
		settled:         settled,
		cancelled:       cancelled,
		stockConflicts:  stockConflicts,
		gatewayDuration: gatewayDuration,
		gatewayFailures: gatewayFailures,
	}
}

// IncCreated increments the created counter for the given payment method.
func (m *OrderMetrics) IncCreated(method string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(method)).Inc()
}

// IncPaid increments the paid counter.
func (m *OrderMetrics) IncPaid() {
	if m == nil || m.settled == nil {
		return
	}
	m.settled.Inc()
}

// IncCancelled increments the cancelled counter.
func (m *OrderMetrics) IncCancelled() {
	if m == nil || m.cancelled == nil {
		return
	}
	m.cancelled.Inc()
}

// IncStockConflict increments the lost-claim counter.
func (m *OrderMetrics) IncStockConflict() {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Inc()
}

// ObserveGatewayCall records the duration of a gateway call.
func (m *OrderMetrics) ObserveGatewayCall(operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncGatewayFailure increments the failure counter for the named operation.
func (m *OrderMetrics) IncGatewayFailure(operation string) {
	if m == nil || m.gatewayFailures == nil {
		return
	}
	m.gatewayFailures.WithLabelValues(normalizeLabel(operation)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
