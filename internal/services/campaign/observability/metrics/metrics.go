// Package metrics holds the Prometheus instruments of the campaign store.
//
// Every method is safe on a nil *Metrics so components can run without a
// registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "campaignlog"

// Metrics groups the campaign store instruments.
type Metrics struct {
	eventsAppended   *prometheus.CounterVec
	appendConflicts  prometheus.Counter
	appendFailures   prometheus.Counter
	snapshotsWritten prometheus.Counter
	snapshotFailures prometheus.Counter
	snapshotsSkipped prometheus.Counter
	replayEvents     prometheus.Histogram
	branchesCreated  prometheus.Counter
}

// New registers the instruments on reg. A nil reg uses a private registry,
// which keeps repeated construction in tests from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		eventsAppended: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events committed to campaign logs by event type.",
		}, []string{"type"}),
		appendConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_conflicts_total",
			Help:      "Append attempts that lost the sequence race and were retried.",
		}),
		appendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_failures_total",
			Help:      "Appends that failed after exhausting retries or on a store error.",
		}),
		snapshotsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Snapshots persisted.",
		}),
		snapshotFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Snapshot writes that failed and were logged.",
		}),
		snapshotsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_skipped_total",
			Help:      "Background snapshot writes skipped because every writer slot was busy.",
		}),
		replayEvents: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_events",
			Help:      "Events folded per state reconstruction.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		branchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_created_total",
			Help:      "Campaigns created by branching.",
		}),
	}
}

// EventAppended counts one committed event.
func (m *Metrics) EventAppended(eventType string) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(eventType).Inc()
}

// AppendConflict counts one retried append.
func (m *Metrics) AppendConflict() {
	if m == nil {
		return
	}
	m.appendConflicts.Inc()
}

// AppendFailed counts one failed append.
func (m *Metrics) AppendFailed() {
	if m == nil {
		return
	}
	m.appendFailures.Inc()
}

// SnapshotWritten counts one persisted snapshot.
func (m *Metrics) SnapshotWritten() {
	if m == nil {
		return
	}
	m.snapshotsWritten.Inc()
}

// SnapshotFailed counts one failed snapshot write.
func (m *Metrics) SnapshotFailed() {
	if m == nil {
		return
	}
	m.snapshotFailures.Inc()
}

// SnapshotSkipped counts one background write dropped for lack of capacity.
func (m *Metrics) SnapshotSkipped() {
	if m == nil {
		return
	}
	m.snapshotsSkipped.Inc()
}

// ReplayFolded records how many events one reconstruction applied.
func (m *Metrics) ReplayFolded(applied int) {
	if m == nil {
		return
	}
	m.replayEvents.Observe(float64(applied))
}

// BranchCreated counts one branch.
func (m *Metrics) BranchCreated() {
	if m == nil {
		return
	}
	m.branchesCreated.Inc()
}
