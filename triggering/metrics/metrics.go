// Package metrics declares the stable-named gauges and counters for the
// triggering engine, grounded on the prometheus/client_golang promauto
// idiom used throughout grafana-tempo.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every triggering-engine metric, labeled by bucket for a
// per-bucket breakdown.
type Metrics struct {
	PollingBuckets prometheus.Gauge

	OffsetsToBeCommitted     *prometheus.GaugeVec
	OffsetsCompleted         *prometheus.GaugeVec
	UnprocessedFetchedRecord *prometheus.GaugeVec
	Offsets                  *prometheus.GaugeVec

	TriggersReceived        *prometheus.CounterVec
	Commits                 *prometheus.CounterVec
	FailedCommits           *prometheus.CounterVec
	AlreadyCommittedOffsets *prometheus.CounterVec
	TasksMarkedError        *prometheus.CounterVec
	FailedStatusChanges     *prometheus.CounterVec
}

// New registers every metric against reg and returns the bound handle. Pass
// a fresh prometheus.NewRegistry() in tests to avoid collisions with other
// instances registered in the same process.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PollingBuckets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "triggering_polling_buckets",
			Help: "Number of buckets whose poll loop is currently running.",
		}),
		OffsetsToBeCommitted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triggering_offsets_to_be_committed",
			Help: "Offsets staged for commit but not yet sent to the broker, per bucket.",
		}, []string{"bucket"}),
		OffsetsCompleted: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triggering_offsets_completed",
			Help: "Offsets marked complete but blocked behind an earlier in-flight offset, per bucket.",
		}, []string{"bucket"}),
		UnprocessedFetchedRecord: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triggering_unprocessed_fetched_records",
			Help: "Records fetched in the current poll batch not yet handed to processing, per bucket.",
		}, []string{"bucket"}),
		Offsets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triggering_offsets_outstanding",
			Help: "Polled offsets not yet committed, per bucket.",
		}, []string{"bucket"}),
		TriggersReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggering_triggers_received_total",
			Help: "Trigger calls received, per bucket.",
		}, []string{"bucket"}),
		Commits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggering_commits_total",
			Help: "Successful offset commit attempts, per bucket.",
		}, []string{"bucket"}),
		FailedCommits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggering_failed_commits_total",
			Help: "Offset commit attempts that returned an error, per bucket.",
		}, []string{"bucket"}),
		AlreadyCommittedOffsets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggering_already_committed_offsets_total",
			Help: "ReleaseCompleted calls for an offset no longer tracked (already committed past), per bucket.",
		}, []string{"bucket"}),
		TasksMarkedError: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggering_tasks_marked_error_total",
			Help: "Tasks marked ERROR due to a missing handler or bucket, per bucket.",
		}, []string{"bucket"}),
		FailedStatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "triggering_failed_status_changes_total",
			Help: "SetStatus calls to the task store that failed, per bucket.",
		}, []string{"bucket"}),
	}
}
