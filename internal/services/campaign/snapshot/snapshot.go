// Package snapshot manages replay checkpoints: full campaign states captured
// at a committed sequence.
//
// Snapshots only shorten replay. The log stays authoritative, so a failed
// background write is logged and counted, never returned to the step that
// scheduled it; the next cadence point writes a fresh one.
package snapshot

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/louisbranch/campaignlog/internal/platform/timeouts"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/observability/metrics"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

const (
	// DefaultCadence is the number of committed events between snapshots.
	DefaultCadence = 10
	// DefaultWorkers bounds concurrent background writes.
	DefaultWorkers = 4
)

var (
	// ErrStoreRequired indicates a missing snapshot store.
	ErrStoreRequired = errors.New("snapshot store is required")
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
)

// Manager validates, seals and persists snapshots.
type Manager struct {
	store   storage.SnapshotStore
	events  storage.EventStore
	cadence uint64
	workers *semaphore.Weighted
	timeout time.Duration
	logger  *log.Logger
	metrics *metrics.Metrics
	pending sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithCadence sets K, the committed-sequence interval between snapshots.
// Zero disables scheduled snapshots.
func WithCadence(k uint64) Option {
	return func(m *Manager) {
		m.cadence = k
	}
}

// WithWorkers bounds concurrent background writes.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithWriteTimeout bounds each background write.
func WithWriteTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger for swallowed write failures.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics records writes, failures and skips.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// New builds a Manager. events supplies the committed sequence that bounds
// valid snapshot positions.
func New(store storage.SnapshotStore, events storage.EventStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if events == nil {
		return nil, ErrEventStoreRequired
	}
	m := &Manager{
		store:   store,
		events:  events,
		cadence: DefaultCadence,
		workers: semaphore.NewWeighted(DefaultWorkers),
		timeout: timeouts.SnapshotWrite,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Cadence returns K.
func (m *Manager) Cadence() uint64 {
	return m.cadence
}

// Due reports whether seq falls on the snapshot cadence.
func (m *Manager) Due(seq uint64) bool {
	return m.cadence > 0 && seq > 0 && seq%m.cadence == 0
}

// Save upserts the snapshot of campaignID at seq. seq must not exceed the
// committed sequence; zero captures the initial state. Saving twice at the
// same seq keeps one record holding the latest content.
func (m *Manager) Save(ctx context.Context, campaignID string, seq uint64, st state.State) (storage.Snapshot, error) {
	campaignID = strings.TrimSpace(campaignID)
	canonical, err := state.Parse(st)
	if err != nil {
		return storage.Snapshot{}, campaign.InvalidState(campaignID, err)
	}

	latest, err := m.events.GetLatestEventSeq(ctx, campaignID)
	if err != nil {
		return storage.Snapshot{}, storage.CampaignError(campaignID, "read latest sequence", err)
	}
	if seq > latest {
		return storage.Snapshot{}, campaign.InvalidSnapshotSeq(campaignID, seq, latest)
	}

	checksum, err := integrity.SnapshotChecksum(campaignID, seq, canonical)
	if err != nil {
		return storage.Snapshot{}, campaign.InvalidState(campaignID, err)
	}
	snap := storage.Snapshot{
		CampaignID: campaignID,
		Seq:        seq,
		State:      canonical,
		Checksum:   checksum,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.store.PutSnapshot(ctx, snap); err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return storage.Snapshot{}, err
		case errors.Is(err, storage.ErrNotFound):
			return storage.Snapshot{}, campaign.NotFound(campaignID)
		default:
			return storage.Snapshot{}, campaign.SnapshotWriteFailed(campaignID, seq, err)
		}
	}
	m.metrics.SnapshotWritten()
	return snap, nil
}

// Schedule saves the snapshot in the background. It never blocks on a busy
// writer pool: when every slot is taken the write is skipped. Failures are
// logged, not returned. The write outlives ctx's cancellation but keeps its
// values.
func (m *Manager) Schedule(ctx context.Context, campaignID string, seq uint64, st state.State) {
	if !m.workers.TryAcquire(1) {
		m.metrics.SnapshotSkipped()
		m.logger.Printf("snapshot skipped campaign_id=%s seq=%d: all writers busy", campaignID, seq)
		return
	}
	m.pending.Add(1)
	st = st.Clone()
	writeCtx := context.WithoutCancel(ctx)
	go func() {
		defer m.pending.Done()
		defer m.workers.Release(1)

		ctx, cancel := context.WithTimeout(writeCtx, m.timeout)
		defer cancel()
		if _, err := m.Save(ctx, campaignID, seq, st); err != nil {
			m.metrics.SnapshotFailed()
			m.logger.Printf("snapshot write failed campaign_id=%s seq=%d: %v", campaignID, seq, err)
		}
	}()
}

// Wait blocks until every scheduled write has finished.
func (m *Manager) Wait() {
	m.pending.Wait()
}

// Latest returns the greatest-seq snapshot of campaignID after verifying its
// checksum. ok is false when the campaign has no snapshot.
func (m *Manager) Latest(ctx context.Context, campaignID string) (storage.Snapshot, bool, error) {
	snap, err := m.store.GetLatestSnapshot(ctx, campaignID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Snapshot{}, false, nil
		}
		return storage.Snapshot{}, false, storage.CampaignError(campaignID, "read latest snapshot", err)
	}
	if err := verify(snap); err != nil {
		return storage.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Get returns the verified snapshot at seq. ok is false when none exists.
func (m *Manager) Get(ctx context.Context, campaignID string, seq uint64) (storage.Snapshot, bool, error) {
	snap, err := m.store.GetSnapshot(ctx, campaignID, seq)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Snapshot{}, false, nil
		}
		return storage.Snapshot{}, false, storage.CampaignError(campaignID, "read snapshot", err)
	}
	if err := verify(snap); err != nil {
		return storage.Snapshot{}, false, err
	}
	return snap, true, nil
}

// List returns up to limit verified snapshots, newest first.
func (m *Manager) List(ctx context.Context, campaignID string, limit int) ([]storage.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	snaps, err := m.store.ListSnapshots(ctx, campaignID, limit)
	if err != nil {
		return nil, storage.CampaignError(campaignID, "list snapshots", err)
	}
	for _, snap := range snaps {
		if err := verify(snap); err != nil {
			return nil, err
		}
	}
	return snaps, nil
}

func verify(snap storage.Snapshot) error {
	if err := integrity.VerifySnapshot(snap.CampaignID, snap.Seq, snap.State, snap.Checksum); err != nil {
		return campaign.IntegrityMismatch(snap.CampaignID, snap.Seq, "snapshot", err)
	}
	return nil
}
