package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.EventAppended("simulation_step")
	m.AppendConflict()
	m.AppendFailed()
	m.SnapshotWritten()
	m.SnapshotFailed()
	m.SnapshotSkipped()
	m.ReplayFolded(3)
	m.BranchCreated()
}

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventAppended("simulation_step")
	m.EventAppended("simulation_step")
	m.EventAppended("campaign_created")
	m.AppendConflict()
	m.SnapshotWritten()
	m.SnapshotFailed()
	m.BranchCreated()

	if got := testutil.ToFloat64(m.eventsAppended.WithLabelValues("simulation_step")); got != 2 {
		t.Fatalf("expected 2 step events, got %v", got)
	}
	if got := testutil.ToFloat64(m.eventsAppended.WithLabelValues("campaign_created")); got != 1 {
		t.Fatalf("expected 1 created event, got %v", got)
	}
	if got := testutil.ToFloat64(m.appendConflicts); got != 1 {
		t.Fatalf("expected 1 conflict, got %v", got)
	}
	if got := testutil.ToFloat64(m.snapshotsWritten); got != 1 {
		t.Fatalf("expected 1 snapshot, got %v", got)
	}
	if got := testutil.ToFloat64(m.snapshotFailures); got != 1 {
		t.Fatalf("expected 1 snapshot failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.branchesCreated); got != 1 {
		t.Fatalf("expected 1 branch, got %v", got)
	}
}

func TestReplayHistogramRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ReplayFolded(4)
	m.ReplayFolded(12)

	if got := testutil.CollectAndCount(m.replayEvents); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
	if got, err := testutil.GatherAndCount(reg, "campaignlog_replay_events"); err != nil || got != 1 {
		t.Fatalf("expected gathered histogram, got %d (%v)", got, err)
	}
}

func TestNewWithoutRegistererDoesNotPanicTwice(t *testing.T) {
	New(nil)
	New(nil)
}
