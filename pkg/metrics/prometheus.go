package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	refreshes   *prometheus.CounterVec
	signals     *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a Prometheus recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_refresh_total",
				Help: "Signal list fetches by source (cache, generated, fallback, warm)",
			},
			[]string{"source"},
		),
		signals: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsignal_signals",
				Help: "Signals produced in the last run per pipeline stage",
			},
			[]string{"stage"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsignal_status_transitions_total",
				Help: "Signal status transitions by resulting status",
			},
			[]string{"status"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRefresh counts a fetch served from source.
func (r *Recorder) RecordRefresh(source string) {
	r.refreshes.WithLabelValues(source).Inc()
}

// RecordSignals sets how many signals a stage produced.
func (r *Recorder) RecordSignals(stage string, n int) {
	r.signals.WithLabelValues(stage).Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordStatusTransition counts a signal moving into status.
func (r *Recorder) RecordStatusTransition(status string) {
	r.transitions.WithLabelValues(status).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
