// Package metrics provides Prometheus metrics collection for the promotion
// lifecycle core.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the promotion core.
type Metrics struct {
	// Promotion lifecycle
	PromotionsTotal   *prometheus.CounterVec
	PromotionDuration *prometheus.HistogramVec
	RollbacksTotal    *prometheus.CounterVec

	// Gate runner
	GateRunsTotal    *prometheus.CounterVec
	GateDuration     *prometheus.HistogramVec

	// Webhook notifier
	WebhookDeliveriesTotal *prometheus.CounterVec
	WebhookDeliveryAttempts *prometheus.HistogramVec

	// Registry adapter resilience
	CircuitBreakerState *prometheus.GaugeVec
	RegistryCallsTotal  *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec

	// Service health
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a new Metrics instance with all collectors registered against
// the default Prometheus registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		PromotionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floe_promotions_total",
				Help: "Total number of promotion attempts",
			},
			[]string{"service", "from_env", "to_env", "status"},
		),
		PromotionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floe_promotion_duration_seconds",
				Help:    "Promotion duration in seconds, start to finish",
				Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service", "from_env", "to_env"},
		),
		RollbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floe_rollbacks_total",
				Help: "Total number of rollback operations",
			},
			[]string{"service", "environment", "status"},
		),

		GateRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floe_gate_runs_total",
				Help: "Total number of gate evaluations",
			},
			[]string{"service", "gate", "status"},
		),
		GateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floe_gate_duration_seconds",
				Help:    "Gate evaluation duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"service", "gate"},
		),

		WebhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floe_webhook_deliveries_total",
				Help: "Total number of webhook delivery outcomes",
			},
			[]string{"service", "event_type", "status"},
		),
		WebhookDeliveryAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "floe_webhook_delivery_attempts",
				Help:    "Number of attempts taken per webhook delivery",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"service", "event_type"},
		),

		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "floe_registry_circuit_breaker_state",
				Help: "Registry adapter circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"service", "registry"},
		),
		RegistryCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floe_registry_calls_total",
				Help: "Total number of registry adapter calls",
			},
			[]string{"service", "operation", "status"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "floe_errors_total",
				Help: "Total number of errors by taxonomy code",
			},
			[]string{"service", "code"},
		),

		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "floe_service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "floe_service_info",
				Help: "Service build information",
			},
			[]string{"service", "version"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.PromotionsTotal,
			m.PromotionDuration,
			m.RollbacksTotal,
			m.GateRunsTotal,
			m.GateDuration,
			m.WebhookDeliveriesTotal,
			m.WebhookDeliveryAttempts,
			m.CircuitBreakerState,
			m.RegistryCallsTotal,
			m.ErrorsTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0").Set(1)

	return m
}

// RecordPromotion records the outcome and duration of a promotion attempt.
func (m *Metrics) RecordPromotion(service, fromEnv, toEnv, status string, duration time.Duration) {
	m.PromotionsTotal.WithLabelValues(service, fromEnv, toEnv, status).Inc()
	m.PromotionDuration.WithLabelValues(service, fromEnv, toEnv).Observe(duration.Seconds())
}

// RecordRollback records the outcome of a rollback operation.
func (m *Metrics) RecordRollback(service, environment, status string) {
	m.RollbacksTotal.WithLabelValues(service, environment, status).Inc()
}

// RecordGateRun records the outcome and duration of a single gate.
func (m *Metrics) RecordGateRun(service, gate, status string, duration time.Duration) {
	m.GateRunsTotal.WithLabelValues(service, gate, status).Inc()
	m.GateDuration.WithLabelValues(service, gate).Observe(duration.Seconds())
}

// RecordWebhookDelivery records the final outcome of a webhook delivery and
// how many attempts it took.
func (m *Metrics) RecordWebhookDelivery(service, eventType, status string, attempts int) {
	m.WebhookDeliveriesTotal.WithLabelValues(service, eventType, status).Inc()
	m.WebhookDeliveryAttempts.WithLabelValues(service, eventType).Observe(float64(attempts))
}

// SetCircuitBreakerState records the registry adapter's current breaker
// state as a gauge (0=closed, 1=half_open, 2=open).
func (m *Metrics) SetCircuitBreakerState(service, registry string, state int) {
	m.CircuitBreakerState.WithLabelValues(service, registry).Set(float64(state))
}

// RecordRegistryCall records a single registry adapter operation outcome.
func (m *Metrics) RecordRegistryCall(service, operation, status string) {
	m.RegistryCallsTotal.WithLabelValues(service, operation, status).Inc()
}

// RecordError increments the error counter for a given taxonomy code.
func (m *Metrics) RecordError(service, code string) {
	m.ErrorsTotal.WithLabelValues(service, code).Inc()
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// Enabled returns whether Prometheus metrics should be exposed, gated by the
// FLOE_METRICS_ENABLED environment variable (default: enabled).
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("FLOE_METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing a fallback one
// under the "floe" service name if Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("floe")
	}
	return globalMetrics
}
