package eventlog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/observability/metrics"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/memory"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/storagetest"
)

func newTestLog(t *testing.T, opts ...Option) (*Log, *memory.Store, *integrity.Keyring) {
	t.Helper()
	ring := storagetest.Keyring(t)
	store, err := memory.New(ring)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	log, err := New(store, ring, opts...)
	if err != nil {
		t.Fatalf("new event log: %v", err)
	}
	return log, store, ring
}

func stepPayload(t *testing.T, step int64) event.SimulationStepPayload {
	t.Helper()
	resulting, err := state.New(map[string]any{"step": step, "credits": 1000 + 50*step})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	payload, err := event.NewSimulationStep("seed", nil, resulting)
	if err != nil {
		t.Fatalf("new step payload: %v", err)
	}
	return payload
}

// conflictStore fails the first n appends with an append conflict.
type conflictStore struct {
	storage.Store
	remaining atomic.Int32
	calls     atomic.Int32
}

func (s *conflictStore) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	s.calls.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return event.Event{}, fmt.Errorf("insert event: %w", storage.ErrAppendConflict)
	}
	return s.Store.AppendEvent(ctx, evt)
}

// brokenStore fails every append with an engine error.
type brokenStore struct {
	storage.Store
}

func (brokenStore) AppendEvent(context.Context, event.Event) (event.Event, error) {
	return event.Event{}, errors.New("disk I/O error (10)")
}

func TestNewValidatesDependencies(t *testing.T) {
	ring := storagetest.Keyring(t)
	if _, err := New(nil, ring); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
	store, err := memory.New(ring)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	if _, err := New(store, nil); !errors.Is(err, ErrKeyringRequired) {
		t.Fatalf("expected ErrKeyringRequired, got %v", err)
	}
}

func TestAppendAssignsContiguousSequence(t *testing.T) {
	ctx := context.Background()
	log, store, _ := newTestLog(t)
	storagetest.CreateTestCampaign(t, store, "c1")

	for step := int64(1); step <= 4; step++ {
		evt, err := log.Append(ctx, "c1", event.TypeSimulationStep, stepPayload(t, step))
		if err != nil {
			t.Fatalf("append step %d: %v", step, err)
		}
		if evt.Seq != uint64(step+1) {
			t.Fatalf("expected seq %d, got %d", step+1, evt.Seq)
		}
	}
	latest, err := log.Latest(ctx, "c1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != 5 {
		t.Fatalf("expected latest 5, got %d", latest)
	}
}

func TestAppendUnknownCampaign(t *testing.T) {
	log, _, _ := newTestLog(t)
	_, err := log.Append(context.Background(), "ghost", event.TypeSimulationStep, stepPayload(t, 1))
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected campaign not found, got %v", err)
	}
}

func TestAppendRejectsInactiveCampaign(t *testing.T) {
	ctx := context.Background()
	log, store, _ := newTestLog(t)
	storagetest.CreateTestCampaign(t, store, "c1")
	if _, err := store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
		CampaignID: "c1", From: campaign.StatusActive, To: campaign.StatusArchived,
	}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	_, err := log.Append(ctx, "c1", event.TypeSimulationStep, stepPayload(t, 1))
	if !errors.Is(err, campaign.ErrNotActive) {
		t.Fatalf("expected campaign not active, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "c1") || !strings.Contains(msg, "archived") {
		t.Fatalf("expected message to name campaign and status, got %q", msg)
	}
	seq, err := log.Latest(ctx, "c1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if seq != 1 {
		t.Fatalf("expected seq to stay at 1, got %d", seq)
	}
}

func TestAppendRejectsEmptyCampaignID(t *testing.T) {
	log, _, _ := newTestLog(t)
	if _, err := log.Append(context.Background(), "  ", event.TypeSimulationStep, stepPayload(t, 1)); err == nil {
		t.Fatal("expected error for empty campaign id")
	}
}

func TestAppendRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	ring := storagetest.Keyring(t)
	mem, err := memory.New(ring)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	store := &conflictStore{Store: mem}
	store.remaining.Store(2)
	storagetest.CreateTestCampaign(t, store, "c1")

	m := metrics.New(nil)
	log, err := New(store, ring, WithRetryBackoff(0), WithMaxAttempts(3), WithMetrics(m))
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	evt, err := log.Append(ctx, "c1", event.TypeSimulationStep, stepPayload(t, 1))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if evt.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", evt.Seq)
	}
	if got := store.calls.Load(); got != 3 {
		t.Fatalf("expected 3 store calls, got %d", got)
	}
}

func TestAppendConflictExhaustionIsStoreUnavailable(t *testing.T) {
	ring := storagetest.Keyring(t)
	mem, err := memory.New(ring)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	store := &conflictStore{Store: mem}
	store.remaining.Store(100)
	storagetest.CreateTestCampaign(t, store, "c1")

	log, err := New(store, ring, WithRetryBackoff(0), WithMaxAttempts(4))
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	_, err = log.Append(context.Background(), "c1", event.TypeSimulationStep, stepPayload(t, 1))
	if !errors.Is(err, campaign.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if errors.Is(err, campaign.ErrNotFound) {
		t.Fatal("conflict must not read as not found")
	}
	if got := store.calls.Load(); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}
}

func TestAppendEngineErrorIsStoreUnavailable(t *testing.T) {
	ring := storagetest.Keyring(t)
	mem, err := memory.New(ring)
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	storagetest.CreateTestCampaign(t, mem, "c1")
	log, err := New(brokenStore{Store: mem}, ring)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	_, err = log.Append(context.Background(), "c1", event.TypeSimulationStep, stepPayload(t, 1))
	if !errors.Is(err, campaign.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestAppendHonorsCanceledContextWhileWaitingForLock(t *testing.T) {
	log, store, _ := newTestLog(t)
	storagetest.CreateTestCampaign(t, store, "c1")

	unlock, err := log.locks.acquire(context.Background(), "c1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = log.Append(ctx, "c1", event.TypeSimulationStep, stepPayload(t, 1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestConcurrentAppendsStayContiguous(t *testing.T) {
	ctx := context.Background()
	log, store, ring := newTestLog(t)
	storagetest.CreateTestCampaign(t, store, "c1")

	const writers, perWriter = 10, 10
	payloads := make([][]event.SimulationStepPayload, writers)
	for w := range payloads {
		for i := 0; i < perWriter; i++ {
			payloads[w] = append(payloads[w], stepPayload(t, int64(w*perWriter+i+1)))
		}
	}

	var g errgroup.Group
	for _, batch := range payloads {
		g.Go(func() error {
			for _, payload := range batch {
				if _, err := log.Append(ctx, "c1", event.TypeSimulationStep, payload); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent append: %v", err)
	}

	events := storagetest.AllEvents(t, store, "c1")
	if len(events) != writers*perWriter+1 {
		t.Fatalf("expected %d events, got %d", writers*perWriter+1, len(events))
	}
	storagetest.VerifyChain(t, ring, events)
	if n := log.locks.size(); n != 0 {
		t.Fatalf("expected campaign locks to be released, %d remain", n)
	}
}

func TestEventsStreamsFromSequence(t *testing.T) {
	ctx := context.Background()
	log, store, _ := newTestLog(t, WithPageSize(3))
	storagetest.CreateTestCampaign(t, store, "c1")
	for step := int64(1); step <= 9; step++ {
		if _, err := log.Append(ctx, "c1", event.TypeSimulationStep, stepPayload(t, step)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var got []uint64
	for evt, err := range log.Events(ctx, "c1", 4) {
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		got = append(got, evt.Seq)
	}
	if fmt.Sprint(got) != "[4 5 6 7 8 9 10]" {
		t.Fatalf("unexpected sequence %v", got)
	}

	got = got[:0]
	for evt, err := range log.Events(ctx, "c1", 0) {
		if err != nil {
			t.Fatalf("events: %v", err)
		}
		got = append(got, evt.Seq)
		if evt.Seq == 5 {
			break
		}
	}
	if fmt.Sprint(got) != "[1 2 3 4 5]" {
		t.Fatalf("expected early stop at 5, got %v", got)
	}

	got = got[:0]
	for evt, err := range log.EventsUntil(ctx, "c1", 2, 6) {
		if err != nil {
			t.Fatalf("events until: %v", err)
		}
		got = append(got, evt.Seq)
	}
	if fmt.Sprint(got) != "[2 3 4 5 6]" {
		t.Fatalf("unexpected bounded sequence %v", got)
	}
}

func TestEventsUnknownCampaign(t *testing.T) {
	log, _, _ := newTestLog(t)
	count := 0
	for _, err := range log.Events(context.Background(), "ghost", 1) {
		count++
		if !errors.Is(err, campaign.ErrNotFound) {
			t.Fatalf("expected campaign not found, got %v", err)
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one yielded error, got %d", count)
	}
}

func TestGetMissingEvent(t *testing.T) {
	log, store, _ := newTestLog(t)
	storagetest.CreateTestCampaign(t, store, "c1")
	if _, err := log.Get(context.Background(), "c1", 9); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	evt, err := log.Get(context.Background(), "c1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if evt.Type != event.TypeCampaignCreated {
		t.Fatalf("expected creation event, got %s", evt.Type)
	}
}

func createSteps(t *testing.T, log *Log, store storage.Store, campaignID string, steps int64) {
	t.Helper()
	storagetest.CreateTestCampaign(t, store, campaignID)
	for step := int64(1); step <= steps; step++ {
		if _, err := log.Append(context.Background(), campaignID, event.TypeSimulationStep, stepPayload(t, step)); err != nil {
			t.Fatalf("append step %d: %v", step, err)
		}
	}
}
