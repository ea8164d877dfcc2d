// Package storagetest holds the conformance suite every campaign storage
// backend must pass.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

// Factory opens a fresh, empty store sealing with ring. It registers its own
// cleanup.
type Factory func(t *testing.T, ring *integrity.Keyring) storage.Store

// Run executes the conformance suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(*testing.T, storage.Store, *integrity.Keyring)
	}{
		{"CreateCampaign", testCreateCampaign},
		{"GetCampaignNotFound", testGetCampaignNotFound},
		{"AppendSequential", testAppendSequential},
		{"AppendUnknownCampaign", testAppendUnknownCampaign},
		{"AppendInactiveCampaign", testAppendInactiveCampaign},
		{"AppendConcurrent", testAppendConcurrent},
		{"AppendIndependentCampaigns", testAppendIndependentCampaigns},
		{"ListEventsPaging", testListEventsPaging},
		{"Snapshots", testSnapshots},
		{"SnapshotUpsert", testSnapshotUpsert},
		{"SnapshotUnknownCampaign", testSnapshotUnknownCampaign},
		{"ListCampaigns", testListCampaigns},
		{"UpdateCampaignStatus", testUpdateCampaignStatus},
		{"CreateBranch", testCreateBranch},
		{"CreateBranchInvalidPoint", testCreateBranchInvalidPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ring := Keyring(t)
			tt.fn(t, open(t, ring), ring)
		})
	}
}

// Keyring returns the single-key ring used by the suite.
func Keyring(t *testing.T) *integrity.Keyring {
	t.Helper()
	ring, err := integrity.NewKeyring(
		map[string][]byte{"test-key-1": []byte("0123456789abcdef0123456789abcdef")},
		"test-key-1",
	)
	if err != nil {
		t.Fatalf("create test keyring: %v", err)
	}
	return ring
}

// CreateTestCampaign inserts an active campaign seeded with the default state.
func CreateTestCampaign(t *testing.T, store storage.Store, id string) storage.CampaignRecord {
	t.Helper()
	payload, err := event.EncodePayload(event.CampaignCreatedPayload{
		Name:         "Campaign " + id,
		Seed:         "seed-" + id,
		InitialState: state.Default("seed-" + id),
	})
	if err != nil {
		t.Fatalf("encode created payload: %v", err)
	}
	rec, _, err := store.CreateCampaign(context.Background(), storage.CampaignRecord{
		ID:     id,
		Name:   "Campaign " + id,
		Seed:   "seed-" + id,
		Status: campaign.StatusActive,
	}, event.Event{
		Type:          event.TypeCampaignCreated,
		SchemaVersion: event.SchemaVersion,
		PayloadJSON:   payload,
	})
	if err != nil {
		t.Fatalf("create campaign %s: %v", id, err)
	}
	return rec
}

// StepEvent builds an unsealed simulation_step event at the given step.
func StepEvent(t *testing.T, campaignID string, step int64) event.Event {
	t.Helper()
	resulting, err := state.New(map[string]any{"step": step, "credits": 1000 + 50*step})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	payload, err := event.EncodePayload(event.SimulationStepPayload{
		Seed:           "seed",
		Actions:        json.RawMessage(`{"credits":50}`),
		ResultingState: resulting,
		Step:           step,
	})
	if err != nil {
		t.Fatalf("encode step payload: %v", err)
	}
	return event.Event{
		CampaignID:    campaignID,
		Type:          event.TypeSimulationStep,
		SchemaVersion: event.SchemaVersion,
		PayloadJSON:   payload,
	}
}

// AppendWithRetry appends, retrying append conflicts the way the event log does.
func AppendWithRetry(ctx context.Context, store storage.EventStore, evt event.Event) (event.Event, error) {
	for attempt := 0; ; attempt++ {
		stored, err := store.AppendEvent(ctx, evt)
		if err == nil || !errors.Is(err, storage.ErrAppendConflict) || attempt >= 50 {
			return stored, err
		}
		time.Sleep(time.Duration(attempt+1) * time.Millisecond)
	}
}

// AllEvents pages through a campaign log.
func AllEvents(t *testing.T, store storage.EventStore, campaignID string) []event.Event {
	t.Helper()
	var (
		all   []event.Event
		after uint64
	)
	for {
		page, err := store.ListEvents(context.Background(), campaignID, after, 7)
		if err != nil {
			t.Fatalf("list events: %v", err)
		}
		if len(page) == 0 {
			return all
		}
		all = append(all, page...)
		after = page[len(page)-1].Seq
	}
}

// VerifyChain checks contiguity and every seal of a campaign log.
func VerifyChain(t *testing.T, ring *integrity.Keyring, events []event.Event) {
	t.Helper()
	prev := ""
	for i, evt := range events {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, evt.Seq)
		}
		if err := integrity.VerifyEvent(evt, prev, ring); err != nil {
			t.Fatalf("verify event seq %d: %v", evt.Seq, err)
		}
		prev = evt.ChainHash
	}
}

func testCreateCampaign(t *testing.T, store storage.Store, ring *integrity.Keyring) {
	ctx := context.Background()
	rec := CreateTestCampaign(t, store, "c1")
	if rec.CurrentSeq != 1 {
		t.Fatalf("expected current seq 1, got %d", rec.CurrentSeq)
	}
	if rec.OriginCampaignID != "c1" {
		t.Fatalf("expected origin to default to id, got %q", rec.OriginCampaignID)
	}

	got, err := store.GetCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if got.Name != "Campaign c1" || got.Seed != "seed-c1" || got.Status != campaign.StatusActive {
		t.Fatalf("unexpected campaign %+v", got)
	}
	if got.CurrentSeq != 1 || got.IsBranch() {
		t.Fatalf("unexpected lineage %+v", got)
	}

	events := AllEvents(t, store, "c1")
	if len(events) != 1 || events[0].Type != event.TypeCampaignCreated {
		t.Fatalf("expected single creation event, got %+v", events)
	}
	VerifyChain(t, ring, events)

	_, _, err = store.CreateCampaign(ctx, storage.CampaignRecord{
		ID: "c1", Name: "dup", Seed: "s", Status: campaign.StatusActive,
	}, StepEvent(t, "c1", 0))
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func testGetCampaignNotFound(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	if _, err := store.GetCampaign(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetLatestEventSeq(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for latest seq, got %v", err)
	}
	if _, err := store.GetEventBySeq(ctx, "missing", 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for event, got %v", err)
	}
}

func testAppendSequential(t *testing.T, store storage.Store, ring *integrity.Keyring) {
	ctx := context.Background()
	created := CreateTestCampaign(t, store, "c1")

	for step := int64(1); step <= 5; step++ {
		stored, err := store.AppendEvent(ctx, StepEvent(t, "c1", step))
		if err != nil {
			t.Fatalf("append step %d: %v", step, err)
		}
		if stored.Seq != uint64(step+1) {
			t.Fatalf("expected seq %d, got %d", step+1, stored.Seq)
		}
		if stored.Checksum == "" || stored.ChainHash == "" || stored.Signature == "" {
			t.Fatalf("expected sealed event, got %+v", stored)
		}
	}

	latest, err := store.GetLatestEventSeq(ctx, "c1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if latest != 6 {
		t.Fatalf("expected latest seq 6, got %d", latest)
	}
	rec, err := store.GetCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if rec.CurrentSeq != 6 {
		t.Fatalf("expected current seq 6, got %d", rec.CurrentSeq)
	}
	if rec.LastActivityAt.Before(created.LastActivityAt) {
		t.Fatalf("expected last activity to advance, got %s before %s", rec.LastActivityAt, created.LastActivityAt)
	}

	evt, err := store.GetEventBySeq(ctx, "c1", 4)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	var payload event.SimulationStepPayload
	if err := event.DecodePayload(evt, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Step != 3 {
		t.Fatalf("expected step 3 at seq 4, got %d", payload.Step)
	}
	if _, err := store.GetEventBySeq(ctx, "c1", 7); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound past the end, got %v", err)
	}

	VerifyChain(t, ring, AllEvents(t, store, "c1"))
}

func testAppendUnknownCampaign(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	if _, err := store.AppendEvent(ctx, StepEvent(t, "ghost", 1)); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetCampaign(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected append to create nothing, got %v", err)
	}
}

func testAppendInactiveCampaign(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	for _, to := range []campaign.Status{campaign.StatusPaused, campaign.StatusArchived} {
		id := "c-" + string(to)
		CreateTestCampaign(t, store, id)
		if _, err := store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
			CampaignID: id, From: campaign.StatusActive, To: to,
		}); err != nil {
			t.Fatalf("set %s: %v", to, err)
		}
		_, err := store.AppendEvent(ctx, StepEvent(t, id, 1))
		if !errors.Is(err, storage.ErrCampaignInactive) {
			t.Fatalf("expected ErrCampaignInactive for %s campaign, got %v", to, err)
		}
		var inactive *storage.InactiveError
		if !errors.As(err, &inactive) || inactive.Status != to {
			t.Fatalf("expected rejection to carry status %s, got %v", to, err)
		}
		rec, err := store.GetCampaign(ctx, id)
		if err != nil {
			t.Fatalf("get campaign: %v", err)
		}
		if rec.CurrentSeq != 1 {
			t.Fatalf("expected rejected append to leave seq 1, got %d", rec.CurrentSeq)
		}
		if got := seqs(AllEvents(t, store, id)); fmt.Sprint(got) != "[1]" {
			t.Fatalf("expected only the creation event, got %v", got)
		}
	}
}

func testAppendConcurrent(t *testing.T, store storage.Store, ring *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "c1")

	const writers, perWriter = 8, 5
	batches := make([][]event.Event, writers)
	for w := range batches {
		for i := 0; i < perWriter; i++ {
			batches[w] = append(batches[w], StepEvent(t, "c1", int64(w*perWriter+i+1)))
		}
	}

	var g errgroup.Group
	for w, batch := range batches {
		g.Go(func() error {
			for i, evt := range batch {
				if _, err := AppendWithRetry(ctx, store, evt); err != nil {
					return fmt.Errorf("writer %d append %d: %w", w, i, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent append: %v", err)
	}

	events := AllEvents(t, store, "c1")
	if len(events) != writers*perWriter+1 {
		t.Fatalf("expected %d events, got %d", writers*perWriter+1, len(events))
	}
	VerifyChain(t, ring, events)

	latest, err := store.GetLatestEventSeq(ctx, "c1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if latest != uint64(writers*perWriter+1) {
		t.Fatalf("expected latest seq %d, got %d", writers*perWriter+1, latest)
	}
}

func testAppendIndependentCampaigns(t *testing.T, store storage.Store, ring *integrity.Keyring) {
	ctx := context.Background()
	campaignIDs := []string{"a", "b", "c"}
	for _, id := range campaignIDs {
		CreateTestCampaign(t, store, id)
	}

	batches := make(map[string][]event.Event, len(campaignIDs))
	for _, id := range campaignIDs {
		for step := int64(1); step <= 4; step++ {
			batches[id] = append(batches[id], StepEvent(t, id, step))
		}
	}

	var g errgroup.Group
	for _, batch := range batches {
		g.Go(func() error {
			for _, evt := range batch {
				if _, err := AppendWithRetry(ctx, store, evt); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("append: %v", err)
	}
	for _, id := range campaignIDs {
		events := AllEvents(t, store, id)
		if len(events) != 5 {
			t.Fatalf("campaign %s: expected 5 events, got %d", id, len(events))
		}
		VerifyChain(t, ring, events)
	}
}

func testListEventsPaging(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "c1")
	for step := int64(1); step <= 9; step++ {
		if _, err := store.AppendEvent(ctx, StepEvent(t, "c1", step)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, err := store.ListEvents(ctx, "c1", 3, 4)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(page) != 4 || page[0].Seq != 4 || page[3].Seq != 7 {
		t.Fatalf("unexpected page %v", seqs(page))
	}
	tail, err := store.ListEvents(ctx, "c1", 8, 100)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(tail) != 2 || tail[1].Seq != 10 {
		t.Fatalf("unexpected tail %v", seqs(tail))
	}
	empty, err := store.ListEvents(ctx, "c1", 10, 5)
	if err != nil {
		t.Fatalf("list past end: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no events past the end, got %v", seqs(empty))
	}
	if _, err := store.ListEvents(ctx, "c1", 0, 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func testSnapshots(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "c1")

	if _, err := store.GetLatestSnapshot(ctx, "c1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no snapshot yet, got %v", err)
	}

	for _, seq := range []uint64{10, 30, 20} {
		snap := testSnapshot(t, "c1", seq, int64(seq))
		if err := store.PutSnapshot(ctx, snap); err != nil {
			t.Fatalf("put snapshot %d: %v", seq, err)
		}
	}

	latest, err := store.GetLatestSnapshot(ctx, "c1")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if latest.Seq != 30 {
		t.Fatalf("expected latest seq 30, got %d", latest.Seq)
	}
	if err := integrity.VerifySnapshot("c1", latest.Seq, latest.State, latest.Checksum); err != nil {
		t.Fatalf("expected stored state to verify: %v", err)
	}

	got, err := store.GetSnapshot(ctx, "c1", 20)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	want := testSnapshot(t, "c1", 20, 20)
	if !got.State.Equal(want.State) {
		t.Fatalf("expected state %s, got %s", want.State, got.State)
	}
	if _, err := store.GetSnapshot(ctx, "c1", 15); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := store.ListSnapshots(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(list) != 2 || list[0].Seq != 30 || list[1].Seq != 20 {
		t.Fatalf("expected [30 20], got %v", snapshotSeqs(list))
	}
}

func testSnapshotUpsert(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "c1")

	if err := store.PutSnapshot(ctx, testSnapshot(t, "c1", 10, 1)); err != nil {
		t.Fatalf("put first: %v", err)
	}
	second := testSnapshot(t, "c1", 10, 2)
	if err := store.PutSnapshot(ctx, second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	list, err := store.ListSnapshots(ctx, "c1", 10)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", len(list))
	}
	if !list[0].State.Equal(second.State) || list[0].Checksum != second.Checksum {
		t.Fatalf("expected latest content to win, got %s", list[0].State)
	}
}

func testSnapshotUnknownCampaign(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	err := store.PutSnapshot(context.Background(), testSnapshot(t, "ghost", 1, 1))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testListCampaigns(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		CreateTestCampaign(t, store, id)
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := store.AppendEvent(ctx, StepEvent(t, "c1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
		CampaignID: "c2", From: campaign.StatusActive, To: campaign.StatusPaused,
	}); err != nil {
		t.Fatalf("pause: %v", err)
	}

	all, err := store.ListCampaigns(ctx, storage.ListCampaignsRequest{})
	if err != nil {
		t.Fatalf("list campaigns: %v", err)
	}
	if got := ids(all); fmt.Sprint(got) != "[c1 c3 c2]" {
		t.Fatalf("expected most recently active first [c1 c3 c2], got %v", got)
	}

	active, err := store.ListCampaigns(ctx, storage.ListCampaignsRequest{Statuses: []campaign.Status{campaign.StatusActive}})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	got := ids(active)
	sort.Strings(got)
	if fmt.Sprint(got) != "[c1 c3]" {
		t.Fatalf("expected active [c1 c3], got %v", got)
	}

	limited, err := store.ListCampaigns(ctx, storage.ListCampaignsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "c1" {
		t.Fatalf("expected [c1], got %v", ids(limited))
	}
}

func testUpdateCampaignStatus(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "c1")

	rec, err := store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
		CampaignID: "c1", From: campaign.StatusActive, To: campaign.StatusArchived,
	})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if rec.Status != campaign.StatusArchived || rec.ArchivedAt == nil {
		t.Fatalf("expected archived record with timestamp, got %+v", rec)
	}
	if rec.CurrentSeq != 1 {
		t.Fatalf("expected status change to leave seq alone, got %d", rec.CurrentSeq)
	}

	_, err = store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
		CampaignID: "c1", From: campaign.StatusActive, To: campaign.StatusPaused,
	})
	if !errors.Is(err, storage.ErrStatusChanged) {
		t.Fatalf("expected ErrStatusChanged, got %v", err)
	}
	_, err = store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
		CampaignID: "ghost", From: campaign.StatusActive, To: campaign.StatusPaused,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testCreateBranch(t *testing.T, store storage.Store, ring *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "parent")
	for step := int64(1); step <= 6; step++ {
		if _, err := store.AppendEvent(ctx, StepEvent(t, "parent", step)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec, err := store.CreateBranch(ctx, storage.BranchRequest{
		Record: storage.CampaignRecord{
			ID:               "branch",
			Name:             "Branch",
			Seed:             "seed-parent/branch",
			Status:           campaign.StatusActive,
			ParentCampaignID: "parent",
			OriginCampaignID: "parent",
		},
		UptoSeq: 5,
	})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if rec.CurrentSeq != 5 || rec.BranchPointSeq != 5 || rec.ParentCampaignID != "parent" {
		t.Fatalf("unexpected branch record %+v", rec)
	}

	branchEvents := AllEvents(t, store, "branch")
	if len(branchEvents) != 5 {
		t.Fatalf("expected 5 copied events, got %d", len(branchEvents))
	}
	VerifyChain(t, ring, branchEvents)

	parentEvents := AllEvents(t, store, "parent")
	for i, evt := range branchEvents {
		if evt.CampaignID != "branch" {
			t.Fatalf("expected copied event under branch id, got %q", evt.CampaignID)
		}
		if string(evt.PayloadJSON) != string(parentEvents[i].PayloadJSON) || evt.Checksum != parentEvents[i].Checksum {
			t.Fatalf("expected identical payload at seq %d", evt.Seq)
		}
		if evt.ChainHash == parentEvents[i].ChainHash {
			t.Fatalf("expected branch chain to be re-sealed at seq %d", evt.Seq)
		}
	}

	if _, err := store.AppendEvent(ctx, StepEvent(t, "parent", 7)); err != nil {
		t.Fatalf("append parent: %v", err)
	}
	branchSeq, err := store.GetLatestEventSeq(ctx, "branch")
	if err != nil {
		t.Fatalf("branch seq: %v", err)
	}
	if branchSeq != 5 {
		t.Fatalf("expected branch seq to stay 5, got %d", branchSeq)
	}
	stored, err := store.AppendEvent(ctx, StepEvent(t, "branch", 5))
	if err != nil {
		t.Fatalf("append branch: %v", err)
	}
	if stored.Seq != 6 {
		t.Fatalf("expected branch append at seq 6, got %d", stored.Seq)
	}
	VerifyChain(t, ring, AllEvents(t, store, "branch"))

	children, err := store.ListCampaigns(ctx, storage.ListCampaignsRequest{ParentCampaignID: "parent"})
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].ID != "branch" {
		t.Fatalf("expected [branch], got %v", ids(children))
	}
}

func testCreateBranchInvalidPoint(t *testing.T, store storage.Store, _ *integrity.Keyring) {
	ctx := context.Background()
	CreateTestCampaign(t, store, "parent")

	req := storage.BranchRequest{
		Record: storage.CampaignRecord{
			ID: "branch", Name: "Branch", Seed: "s", Status: campaign.StatusActive, ParentCampaignID: "parent",
		},
		UptoSeq: 2,
	}
	if _, err := store.CreateBranch(ctx, req); !errors.Is(err, storage.ErrBranchPointMissing) {
		t.Fatalf("expected ErrBranchPointMissing, got %v", err)
	}
	if _, err := store.GetCampaign(ctx, "branch"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no branch campaign, got %v", err)
	}

	req.UptoSeq = 0
	if _, err := store.CreateBranch(ctx, req); !errors.Is(err, storage.ErrBranchPointMissing) {
		t.Fatalf("expected ErrBranchPointMissing for seq 0, got %v", err)
	}

	req.UptoSeq = 1
	req.Record.ParentCampaignID = "ghost"
	if _, err := store.CreateBranch(ctx, req); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func testSnapshot(t *testing.T, campaignID string, seq uint64, credits int64) storage.Snapshot {
	t.Helper()
	st, err := state.New(map[string]any{"credits": credits, "step": int64(seq)})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	sum, err := integrity.SnapshotChecksum(campaignID, seq, st)
	if err != nil {
		t.Fatalf("snapshot checksum: %v", err)
	}
	return storage.Snapshot{CampaignID: campaignID, Seq: seq, State: st, Checksum: sum}
}

func seqs(events []event.Event) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Seq)
	}
	return out
}

func snapshotSeqs(snaps []storage.Snapshot) []uint64 {
	out := make([]uint64, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, snap.Seq)
	}
	return out
}

func ids(records []storage.CampaignRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.ID)
	}
	return out
}
