package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	sessionsOpen      prometheus.Gauge
	sessionsTotal     *prometheus.CounterVec
	transformOps      *prometheus.CounterVec
	normalizeTotal    *prometheus.CounterVec
	normalizeDuration *prometheus.HistogramVec
	normalizeInFlight prometheus.Gauge
	lateCompletions   prometheus.Counter
	notifyFailures    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &metrics{
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cropper_sessions_open",
			Help: "Current number of open editing sessions.",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cropper_sessions_total",
			Help: "Total editing sessions by how they ended.",
		}, []string{"outcome"}),
		transformOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cropper_transform_ops_total",
			Help: "Total transform edits applied, by op.",
		}, []string{"op"}),
		normalizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cropper_normalize_total",
			Help: "Total crop normalizations by outcome.",
		}, []string{"outcome"}),
		normalizeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cropper_normalize_duration_seconds",
			Help:    "Time from crop commit to normalized result.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		normalizeInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cropper_normalize_in_flight",
			Help: "Current number of normalizations in progress.",
		}),
		lateCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cropper_late_completions_discarded_total",
			Help: "Normalizations that finished after their session was closed or reloaded.",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cropper_notify_failures_total",
			Help: "Host notifications that could not be delivered.",
		}),
	}

	reg.MustRegister(
		m.sessionsOpen,
		m.sessionsTotal,
		m.transformOps,
		m.normalizeTotal,
		m.normalizeDuration,
		m.normalizeInFlight,
		m.lateCompletions,
		m.notifyFailures,
	)
	return m
}
