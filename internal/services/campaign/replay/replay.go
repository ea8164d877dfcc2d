// Package replay reconstructs campaign state by folding the log onto the
// nearest snapshot.
//
// The fold is pure: it touches no persisted data, so a cancelled replay
// simply discards its partial state.
package replay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/eventlog"
	"github.com/louisbranch/campaignlog/internal/services/campaign/observability/metrics"
	"github.com/louisbranch/campaignlog/internal/services/campaign/snapshot"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

// snapshotSearchLimit bounds the snapshots scanned for one older than
// Options.UntilSeq.
const snapshotSearchLimit = 1000

var (
	// ErrCampaignStoreRequired indicates a missing campaign store.
	ErrCampaignStoreRequired = errors.New("campaign store is required")
	// ErrEventLogRequired indicates a missing event log.
	ErrEventLogRequired = errors.New("event log is required")
	// ErrSnapshotsRequired indicates a missing snapshot manager.
	ErrSnapshotsRequired = errors.New("snapshot manager is required")
	// ErrCampaignIDRequired indicates a missing campaign id.
	ErrCampaignIDRequired = errors.New("campaign id is required")

	errMissingResultingState = errors.New("simulation step has no resulting state")
)

// Options narrows a reconstruction.
type Options struct {
	// UntilSeq stops the fold at this sequence. Zero means the committed head.
	UntilSeq uint64
	// IgnoreSnapshots folds from seq 1.
	IgnoreSnapshots bool
}

// Result is a reconstructed state.
type Result struct {
	State state.State
	// Seq is the last folded sequence.
	Seq uint64
	// SnapshotSeq is the snapshot the fold started from; FromSnapshot tells
	// a seq 0 snapshot apart from none.
	SnapshotSeq  uint64
	FromSnapshot bool
	// Applied counts folded events.
	Applied int
}

// Engine reconstructs campaign state.
type Engine struct {
	campaigns storage.CampaignStore
	events    *eventlog.Log
	snapshots *snapshot.Manager
	reducers  map[event.Type]Reducer
	metrics   *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithReducer registers or replaces the reducer for one event type.
func WithReducer(eventType event.Type, reducer Reducer) Option {
	return func(e *Engine) {
		if reducer != nil {
			e.reducers[eventType] = reducer
		}
	}
}

// WithMetrics records fold sizes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New builds an Engine with the default reducers.
func New(campaigns storage.CampaignStore, events *eventlog.Log, snapshots *snapshot.Manager, opts ...Option) (*Engine, error) {
	if campaigns == nil {
		return nil, ErrCampaignStoreRequired
	}
	if events == nil {
		return nil, ErrEventLogRequired
	}
	if snapshots == nil {
		return nil, ErrSnapshotsRequired
	}
	e := &Engine{
		campaigns: campaigns,
		events:    events,
		snapshots: snapshots,
		reducers:  DefaultReducers(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Resume returns the current state of campaignID.
func (e *Engine) Resume(ctx context.Context, campaignID string) (Result, error) {
	return e.ResumeWith(ctx, campaignID, Options{})
}

// ResumeWith reconstructs the state of campaignID as of options.UntilSeq.
// It seeds from the newest verified snapshot at or before that sequence, or
// from the campaign's default state, then folds the following events in
// order. Every folded event's checksum is verified and the sequence must be
// contiguous up to the target.
func (e *Engine) ResumeWith(ctx context.Context, campaignID string, options Options) (Result, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return Result{}, ErrCampaignIDRequired
	}
	rec, err := e.campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return Result{}, storage.CampaignError(campaignID, "load campaign", err)
	}

	target := rec.CurrentSeq
	if options.UntilSeq > 0 {
		if options.UntilSeq > rec.CurrentSeq {
			return Result{}, campaign.EventNotFound(campaignID, options.UntilSeq, rec.CurrentSeq)
		}
		target = options.UntilSeq
	}

	result := Result{State: state.Default(rec.Seed)}
	if !options.IgnoreSnapshots {
		snap, ok, err := e.nearestSnapshot(ctx, campaignID, target)
		if err != nil {
			return Result{}, err
		}
		if ok {
			result.State = snap.State
			result.Seq = snap.Seq
			result.SnapshotSeq = snap.Seq
			result.FromSnapshot = true
		}
	}

	if result.Seq < target {
		prevChain := ""
		for evt, err := range e.events.EventsUntil(ctx, campaignID, result.Seq+1, target) {
			if err != nil {
				return Result{}, err
			}
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if result.Applied > 0 && evt.PrevHash != prevChain {
				return Result{}, campaign.IntegrityMismatch(campaignID, evt.Seq, "event chain", integrity.ErrPrevHashMismatch)
			}
			if err := e.apply(&result, evt); err != nil {
				return Result{}, err
			}
			prevChain = evt.ChainHash
		}
	}
	if result.Seq != target {
		return Result{}, campaign.IntegrityMismatch(campaignID, target, "event log",
			fmt.Errorf("log ends at seq %d", result.Seq))
	}
	e.metrics.ReplayFolded(result.Applied)
	return result, nil
}

func (e *Engine) apply(result *Result, evt event.Event) error {
	expected := result.Seq + 1
	if evt.Seq != expected {
		return campaign.IntegrityMismatch(evt.CampaignID, expected, "event sequence",
			fmt.Errorf("expected seq %d, found %d", expected, evt.Seq))
	}
	if err := integrity.VerifyPayload(evt); err != nil {
		return campaign.IntegrityMismatch(evt.CampaignID, evt.Seq, "event", err)
	}
	if reducer, ok := e.reducers[evt.Type]; ok {
		next, err := reducer(result.State, evt)
		if err != nil {
			return campaign.InvalidState(evt.CampaignID, fmt.Errorf("apply %s seq %d: %w", evt.Type, evt.Seq, err))
		}
		result.State = next
	}
	result.Seq = evt.Seq
	result.Applied++
	return nil
}

// nearestSnapshot returns the newest snapshot with seq <= target.
func (e *Engine) nearestSnapshot(ctx context.Context, campaignID string, target uint64) (storage.Snapshot, bool, error) {
	latest, ok, err := e.snapshots.Latest(ctx, campaignID)
	if err != nil || !ok {
		return storage.Snapshot{}, false, err
	}
	if latest.Seq <= target {
		return latest, true, nil
	}
	snaps, err := e.snapshots.List(ctx, campaignID, snapshotSearchLimit)
	if err != nil {
		return storage.Snapshot{}, false, err
	}
	for _, snap := range snaps {
		if snap.Seq <= target {
			return snap, true, nil
		}
	}
	return storage.Snapshot{}, false, nil
}
