package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscan_scan_passes_total",
		Help: "Total number of completed scan passes",
	})

	ScanPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedscan_scan_pass_duration_seconds",
		Help:    "Duration of snapshot fetch and candidate dispatch per pass",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	SnapshotFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscan_snapshot_failures_total",
		Help: "Total number of scan passes skipped due to snapshot errors",
	})

	CandidatesSeenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscan_candidates_seen_total",
		Help: "Total number of media elements enumerated across all passes",
	})

	CandidatesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedscan_candidates_in_flight",
		Help: "Number of identity keys currently mid-pipeline",
	})

	ClassifierCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedscan_classifier_calls_total",
		Help: "Classifier adapter outcomes, by verdict",
	}, []string{"outcome"})

	MatchesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscan_matches_recorded_total",
		Help: "Total number of match records appended to the store",
	})

	DuplicatesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedscan_duplicates_skipped_total",
		Help: "Total number of records rejected by the dedup rule",
	})
)
