package filewarden

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors. Registered once at package load on the default
// registry; embedding services expose them through their own /metrics
// endpoint.
var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filewarden_scans_total",
		Help: "Completed classification passes by resulting risk level.",
	}, []string{"risk"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "filewarden_scan_duration_seconds",
		Help:    "Duration of one validate or classify pass.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filewarden_findings_total",
		Help: "Security findings surfaced by validation, by severity.",
	}, []string{"severity"})

	quarantineTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filewarden_quarantine_transitions_total",
		Help: "Quarantine state transitions by operation and outcome.",
	}, []string{"op", "outcome"})

	quarantinedFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "filewarden_quarantined_files",
		Help: "Files currently held in quarantine by this instance.",
	})

	traversalAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewarden_traversal_attempts_total",
		Help: "Composed paths that resolved outside their base directory.",
	})

	tamperTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filewarden_quarantine_tamper_total",
		Help: "Quarantine copies whose checksum no longer matches the record.",
	})
)
