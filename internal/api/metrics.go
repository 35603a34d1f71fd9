package api

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"binance-signal-engine/internal/events"
)

// Metrics holds the Prometheus collectors exposed at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal        prometheus.Counter
	signalsGenerated  *prometheus.CounterVec
	signalsRejected   *prometheus.CounterVec
	signalsSuppressed *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		scansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_scans_total",
			Help: "Completed market scan cycles.",
		}),
		signalsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_generated_total",
			Help: "Signals emitted, by strategy.",
		}, []string{"strategy"}),
		signalsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_rejected_total",
			Help: "Candidate signals rejected by validation, by reason.",
		}, []string{"reason"}),
		signalsSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_suppressed_total",
			Help: "Valid signals suppressed by cooldown or the daily cap.",
		}, []string{"reason"}),
	}
}

// Observe wires the collectors to the event bus.
func (m *Metrics) Observe(bus *events.Bus) {
	bus.Subscribe(events.EventScanCompleted, func(events.Event) {
		m.scansTotal.Inc()
	})
	bus.Subscribe(events.EventSignalGenerated, func(e events.Event) {
		m.signalsGenerated.WithLabelValues(eventLabel(e, "strategy")).Inc()
	})
	bus.Subscribe(events.EventSignalRejected, func(e events.Event) {
		m.signalsRejected.WithLabelValues(coarseReason(eventLabel(e, "reason"))).Inc()
	})
	bus.Subscribe(events.EventSignalSuppressed, func(e events.Event) {
		m.signalsSuppressed.WithLabelValues(eventLabel(e, "reason")).Inc()
	})
}

// coarseReason buckets free-form validation messages so the label set
// stays bounded.
func coarseReason(reason string) string {
	switch {
	case strings.HasPrefix(reason, "confidence"):
		return "confidence"
	case strings.Contains(reason, "target ordering"):
		return "target_ordering"
	case strings.HasPrefix(reason, "risk-reward"):
		return "risk_reward"
	default:
		return "other"
	}
}

func eventLabel(e events.Event, key string) string {
	if v, ok := e.Data[key].(string); ok && v != "" {
		return v
	}
	return "unknown"
}
