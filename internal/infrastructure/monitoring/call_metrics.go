package monitoring

import (
	"time"

	"famcall/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCallMetrics exports engine counters to Prometheus.
type PrometheusCallMetrics struct {
	callsStarted    *prometheus.CounterVec
	callsEnded      *prometheus.CounterVec
	callDuration    prometheus.Histogram
	callSetup       prometheus.Histogram
	currentTier     prometheus.Gauge
	tierChanges     *prometheus.CounterVec
	signalsSent     *prometheus.CounterVec
	signalsReceived *prometheus.CounterVec
	iceRestarts     prometheus.Counter
	reconnections   *prometheus.CounterVec
}

func NewPrometheusCallMetrics() *PrometheusCallMetrics {
	return &PrometheusCallMetrics{
		callsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "famcall_calls_started_total",
			Help: "Total calls started, by local role",
		}, []string{"role"}),

		callsEnded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "famcall_calls_ended_total",
			Help: "Total calls ended, by end reason",
		}, []string{"reason"}),

		callDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "famcall_call_duration_seconds",
			Help:    "Duration of completed calls",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),

		callSetup: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "famcall_call_setup_seconds",
			Help:    "Time from placing a call to media flowing",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		currentTier: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "famcall_quality_tier",
			Help: "Current quality tier (0=critical .. 4=excellent)",
		}),

		tierChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "famcall_quality_tier_changes_total",
			Help: "Total quality tier transitions, by new tier",
		}, []string{"tier"}),

		signalsSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "famcall_signals_sent_total",
			Help: "Total signaling messages sent, by kind",
		}, []string{"kind"}),

		signalsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "famcall_signals_received_total",
			Help: "Total signaling messages received, by kind",
		}, []string{"kind"}),

		iceRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "famcall_ice_restarts_total",
			Help: "Total ICE restart attempts",
		}),

		reconnections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "famcall_reconnections_total",
			Help: "Total reconnection attempts handled, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *PrometheusCallMetrics) CallStarted(role domain.Role) {
	m.callsStarted.WithLabelValues(string(role)).Inc()
}

func (m *PrometheusCallMetrics) CallEnded(reason domain.EndReason, duration time.Duration) {
	m.callsEnded.WithLabelValues(string(reason)).Inc()
	if duration > 0 {
		m.callDuration.Observe(duration.Seconds())
	}
}

func (m *PrometheusCallMetrics) CallEstablished(setup time.Duration) {
	m.callSetup.Observe(setup.Seconds())
}

func (m *PrometheusCallMetrics) TierChanged(tier domain.QualityTier) {
	m.currentTier.Set(float64(tier))
	m.tierChanges.WithLabelValues(tier.String()).Inc()
}

func (m *PrometheusCallMetrics) SignalSent(kind domain.MessageKind) {
	m.signalsSent.WithLabelValues(string(kind)).Inc()
}

func (m *PrometheusCallMetrics) SignalReceived(kind domain.MessageKind) {
	m.signalsReceived.WithLabelValues(string(kind)).Inc()
}

func (m *PrometheusCallMetrics) ICERestartAttempted() {
	m.iceRestarts.Inc()
}

func (m *PrometheusCallMetrics) ReconnectionHandled(success bool) {
	outcome := "abandoned"
	if success {
		outcome = "recovered"
	}
	m.reconnections.WithLabelValues(outcome).Inc()
}

// NopCallMetrics discards everything. Used in tests and when monitoring is
// disabled.
type NopCallMetrics struct{}

func (NopCallMetrics) CallStarted(domain.Role)                   {}
func (NopCallMetrics) CallEnded(domain.EndReason, time.Duration) {}
func (NopCallMetrics) CallEstablished(time.Duration)             {}
func (NopCallMetrics) TierChanged(domain.QualityTier)            {}
func (NopCallMetrics) SignalSent(domain.MessageKind)             {}
func (NopCallMetrics) SignalReceived(domain.MessageKind)         {}
func (NopCallMetrics) ICERestartAttempted()                      {}
func (NopCallMetrics) ReconnectionHandled(bool)                  {}
