package kds

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's prometheus collectors.
type Metrics struct {
	EventsApplied    *prometheus.CounterVec
	Anomalies        *prometheus.CounterVec
	Alerts           *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	PushConnected    prometheus.Gauge
	ActiveTimers     prometheus.Gauge
	SnapshotDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kds_events_applied_total",
			Help: "Feed inputs merged into the order store, by source.",
		}, []string{"source"}),
		Anomalies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kds_anomalies_total",
			Help: "Feed inputs dropped as data anomalies, by reason.",
		}, []string{"reason"}),
		Alerts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kds_alerts_total",
			Help: "Alerts fired, by kind and whether sound was requested.",
		}, []string{"kind", "audible"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kds_commands_total",
			Help: "Status and priority commands, by kind and result.",
		}, []string{"kind", "result"}),
		PushConnected: f.NewGauge(prometheus.GaugeOpts{
			Name: "kds_push_connected",
			Help: "1 when the push channel is connected.",
		}),
		ActiveTimers: f.NewGauge(prometheus.GaugeOpts{
			Name: "kds_active_timers",
			Help: "Countdown timers currently tracked.",
		}),
		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kds_snapshot_duration_seconds",
			Help:    "Latency of snapshot fetches.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
