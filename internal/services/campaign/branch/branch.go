// Package branch forks a campaign timeline into an independent campaign.
//
// The parent record and log prefix are copied in one store transaction, so
// a crash leaves either no branch or a complete one. After the copy the
// branch state is reconstructed and snapshotted at the branch point, which
// spares later reads from folding the whole inherited prefix.
package branch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/eventlog"
	"github.com/louisbranch/campaignlog/internal/services/campaign/observability/metrics"
	"github.com/louisbranch/campaignlog/internal/services/campaign/registry"
	"github.com/louisbranch/campaignlog/internal/services/campaign/replay"
	"github.com/louisbranch/campaignlog/internal/services/campaign/snapshot"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

var (
	// ErrRegistryRequired indicates a missing registry.
	ErrRegistryRequired = errors.New("campaign registry is required")
	// ErrEventLogRequired indicates a missing event log.
	ErrEventLogRequired = errors.New("event log is required")
	// ErrReplayRequired indicates a missing replay engine.
	ErrReplayRequired = errors.New("replay engine is required")
	// ErrSnapshotsRequired indicates a missing snapshot manager.
	ErrSnapshotsRequired = errors.New("snapshot manager is required")
)

// Point identifies the last parent event a branch inherits, either by
// sequence or by simulation step.
type Point struct {
	Seq    uint64
	Step   int64
	ByStep bool
}

// AtSeq is the branch point at parent sequence seq.
func AtSeq(seq uint64) Point {
	return Point{Seq: seq}
}

// AtStep is the branch point at the parent event that produced step. Step 0
// is the creation event.
func AtStep(step int64) Point {
	return Point{Step: step, ByStep: true}
}

func (p Point) String() string {
	if p.ByStep {
		return fmt.Sprintf("step %d", p.Step)
	}
	return fmt.Sprintf("seq %d", p.Seq)
}

// Input describes a branch request.
type Input struct {
	ParentCampaignID string
	Point            Point
	// Name defaults to "<parent name> (Branch)".
	Name string
}

// Result is a created branch.
type Result struct {
	Campaign storage.CampaignRecord
	State    state.State
	// Snapshotted reports whether the branch-point snapshot was persisted.
	Snapshotted bool
}

// Manager creates branches.
type Manager struct {
	registry  *registry.Registry
	events    *eventlog.Log
	replay    *replay.Engine
	snapshots *snapshot.Manager
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for swallowed snapshot failures.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics counts created branches.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// New builds a Manager.
func New(reg *registry.Registry, events *eventlog.Log, engine *replay.Engine, snapshots *snapshot.Manager, opts ...Option) (*Manager, error) {
	if reg == nil {
		return nil, ErrRegistryRequired
	}
	if events == nil {
		return nil, ErrEventLogRequired
	}
	if engine == nil {
		return nil, ErrReplayRequired
	}
	if snapshots == nil {
		return nil, ErrSnapshotsRequired
	}
	m := &Manager{
		registry:  reg,
		events:    events,
		replay:    engine,
		snapshots: snapshots,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Branch forks in.ParentCampaignID at in.Point. An unknown parent is
// CAMPAIGN_NOT_FOUND; a point with no parent event is INVALID_BRANCH_POINT
// and creates nothing. A failed branch-point snapshot is logged only.
func (m *Manager) Branch(ctx context.Context, in Input) (Result, error) {
	parentID := strings.TrimSpace(in.ParentCampaignID)
	if parentID == "" {
		return Result{}, fmt.Errorf("parent campaign id is required")
	}
	parent, err := m.registry.Get(ctx, parentID)
	if err != nil {
		return Result{}, err
	}
	seq, err := m.Resolve(ctx, parent.ID, in.Point)
	if err != nil {
		return Result{}, err
	}

	rec, err := m.registry.CreateBranch(ctx, registry.BranchInput{
		Parent:         parent,
		Name:           in.Name,
		BranchPointSeq: seq,
	})
	if err != nil {
		return Result{}, err
	}
	m.metrics.BranchCreated()

	resumed, err := m.replay.Resume(ctx, rec.ID)
	if err != nil {
		return Result{Campaign: rec}, err
	}
	result := Result{Campaign: rec, State: resumed.State}
	if _, err := m.snapshots.Save(ctx, rec.ID, resumed.Seq, resumed.State); err != nil {
		m.metrics.SnapshotFailed()
		m.logger.Printf("branch snapshot failed campaign_id=%s seq=%d: %v", rec.ID, resumed.Seq, err)
		return result, nil
	}
	result.Snapshotted = true
	return result, nil
}

// Resolve maps a branch point to a sequence in the parent's log. The bound is
// the committed log head, not a previously loaded record.
func (m *Manager) Resolve(ctx context.Context, parentID string, point Point) (uint64, error) {
	invalid := campaign.InvalidBranchPoint(parentID, point.String())
	head, err := m.events.Latest(ctx, parentID)
	if err != nil {
		return 0, err
	}
	if !point.ByStep {
		if point.Seq == 0 || point.Seq > head {
			return 0, invalid
		}
		return point.Seq, nil
	}

	if point.Step < 0 {
		return 0, invalid
	}
	for evt, err := range m.events.EventsUntil(ctx, parentID, 1, head) {
		if err != nil {
			return 0, err
		}
		switch evt.Type {
		case event.TypeCampaignCreated:
			if point.Step == 0 {
				return evt.Seq, nil
			}
		case event.TypeSimulationStep:
			var payload event.SimulationStepPayload
			if err := event.DecodePayload(evt, &payload); err != nil {
				return 0, campaign.InvalidState(parentID, err)
			}
			if payload.Step == point.Step {
				return evt.Seq, nil
			}
		}
	}
	return 0, invalid
}
