package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the curation engine
type Metrics struct {
	CandidatesIngested prometheus.Counter
	DuplicatesDetected prometheus.Counter

	// Curation actions by kind ("approve", "reject", "gem", "undo")
	CurationActions *prometheus.CounterVec

	BucketsCommitted prometheus.Counter
	BucketsDiscarded prometheus.Counter
	CommitFailures   prometheus.Counter
	CommitDuration   prometheus.Histogram
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	return &Metrics{
		CandidatesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bindery_candidates_ingested_total",
			Help: "Total number of candidate passages added to harvest buckets",
		}),

		DuplicatesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bindery_duplicates_detected_total",
			Help: "Total number of passages rejected as near-duplicates on ingestion",
		}),

		CurationActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bindery_curation_actions_total",
			Help: "Total number of curation actions by kind",
		}, []string{"action"}),

		BucketsCommitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bindery_buckets_committed_total",
			Help: "Total number of harvest buckets committed into books",
		}),

		BucketsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bindery_buckets_discarded_total",
			Help: "Total number of harvest buckets discarded without a commit",
		}),

		CommitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bindery_commit_failures_total",
			Help: "Total number of failed bucket commit attempts",
		}),

		CommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "bindery_commit_duration_seconds",
			Help:    "Duration of bucket commit operations including the book write",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
