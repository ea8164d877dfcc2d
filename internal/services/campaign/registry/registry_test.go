package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/louisbranch/campaignlog/internal/platform/errors"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/memory"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/storagetest"
)

func sequentialIDs() func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("camp-%d", n), nil
	}
}

func newTestRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	store, err := memory.New(storagetest.Keyring(t))
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	reg, err := New(store, WithIDGenerator(sequentialIDs()))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, store
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)

	initial, err := state.New(map[string]any{"credits": 1000, "step": 0})
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	rec, err := reg.Create(ctx, CreateInput{Name: " Harbor ", Seed: "S1", InitialState: initial})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID != "camp-1" || rec.Name != "Harbor" || rec.Status != campaign.StatusActive || rec.CurrentSeq != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.OriginCampaignID != rec.ID || rec.IsBranch() {
		t.Fatalf("expected root lineage, got %+v", rec)
	}

	evt, err := store.GetEventBySeq(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("get creation event: %v", err)
	}
	var payload event.CampaignCreatedPayload
	if err := event.DecodePayload(evt, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Name != "Harbor" || payload.Seed != "S1" || !payload.InitialState.Equal(initial) {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCreateDefaultsInitialState(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)
	rec, err := reg.Create(ctx, CreateInput{Name: "Harbor", Seed: "S1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	evt, err := store.GetEventBySeq(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	var payload event.CampaignCreatedPayload
	if err := event.DecodePayload(evt, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !payload.InitialState.Equal(state.Default("S1")) {
		t.Fatalf("expected default state, got %s", payload.InitialState)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)

	if _, err := reg.Create(ctx, CreateInput{Seed: "S1"}); !errors.Is(err, campaign.ErrEmptyName) {
		t.Fatalf("expected empty name, got %v", err)
	}
	if _, err := reg.Create(ctx, CreateInput{Name: "n"}); !errors.Is(err, campaign.ErrEmptySeed) {
		t.Fatalf("expected empty seed, got %v", err)
	}
	if _, err := reg.Create(ctx, CreateInput{Name: "n", Seed: "s", InitialState: state.State(`"text"`)}); !errors.Is(err, campaign.ErrInvalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestCreateIDCollision(t *testing.T) {
	ctx := context.Background()
	store, err := memory.New(storagetest.Keyring(t))
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	reg, err := New(store, WithIDGenerator(func() (string, error) { return "same", nil }))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := reg.Create(ctx, CreateInput{Name: "a", Seed: "s"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = reg.Create(ctx, CreateInput{Name: "b", Seed: "s"})
	if apperrors.CodeOf(err) != apperrors.CodeAlreadyExists {
		t.Fatalf("expected ALREADY_EXISTS, got %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)
	a, err := reg.Create(ctx, CreateInput{Name: "a", Seed: "s"})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := reg.Create(ctx, CreateInput{Name: "b", Seed: "s"})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := store.AppendEvent(ctx, storagetest.StepEvent(t, a.ID, 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := reg.SetStatus(ctx, b.ID, campaign.StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}

	got, err := reg.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentSeq != 2 {
		t.Fatalf("expected append to move current seq to 2, got %d", got.CurrentSeq)
	}
	if _, err := reg.Get(ctx, "ghost"); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	all, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(all))
	}
	paused, err := reg.List(ctx, campaign.StatusPaused)
	if err != nil {
		t.Fatalf("list paused: %v", err)
	}
	if len(paused) != 1 || paused[0].ID != b.ID {
		t.Fatalf("expected only %s, got %+v", b.ID, paused)
	}
	if _, err := reg.List(ctx, campaign.Status("deleted")); err == nil {
		t.Fatal("expected error for unknown status filter")
	}
}

func TestSetStatusTransitions(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	rec, err := reg.Create(ctx, CreateInput{Name: "a", Seed: "s"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		to      campaign.Status
		allowed bool
	}{
		{campaign.StatusPaused, true},
		{campaign.StatusPaused, false},
		{campaign.StatusActive, true},
		{campaign.StatusCompleted, true},
		{campaign.StatusActive, false},
		{campaign.StatusArchived, true},
		{campaign.StatusActive, false},
	}
	for _, step := range steps {
		updated, err := reg.SetStatus(ctx, rec.ID, step.to)
		if step.allowed {
			if err != nil {
				t.Fatalf("set %s: %v", step.to, err)
			}
			if updated.Status != step.to {
				t.Fatalf("expected status %s, got %s", step.to, updated.Status)
			}
			continue
		}
		if !errors.Is(err, campaign.ErrInvalidStatusTransition) {
			t.Fatalf("expected invalid transition to %s, got %v", step.to, err)
		}
	}

	archived, err := reg.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if archived.ArchivedAt == nil {
		t.Fatal("expected archived timestamp")
	}
}

func TestCreateBranch(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)
	parent, err := reg.Create(ctx, CreateInput{Name: "Harbor", Seed: "S1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for step := int64(1); step <= 3; step++ {
		if _, err := store.AppendEvent(ctx, storagetest.StepEvent(t, parent.ID, step)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	parent, err = reg.Get(ctx, parent.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}

	branch, err := reg.CreateBranch(ctx, BranchInput{Parent: parent, BranchPointSeq: 3})
	if err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if branch.Name != "Harbor (Branch)" {
		t.Fatalf("expected default branch name, got %q", branch.Name)
	}
	if branch.Seed != "S1/"+branch.ID {
		t.Fatalf("expected derived seed, got %q", branch.Seed)
	}
	if branch.ParentCampaignID != parent.ID || branch.BranchPointSeq != 3 || branch.OriginCampaignID != parent.ID {
		t.Fatalf("unexpected lineage %+v", branch)
	}

	grandchild, err := reg.CreateBranch(ctx, BranchInput{Parent: branch, Name: "Deep", BranchPointSeq: 2})
	if err != nil {
		t.Fatalf("create grandchild: %v", err)
	}
	if grandchild.OriginCampaignID != parent.ID {
		t.Fatalf("expected origin %s carried through, got %s", parent.ID, grandchild.OriginCampaignID)
	}

	children, err := reg.ListBranches(ctx, parent.ID)
	if err != nil {
		t.Fatalf("list branches: %v", err)
	}
	if len(children) != 1 || children[0].ID != branch.ID {
		t.Fatalf("expected only direct branch, got %+v", children)
	}
	if _, err := reg.ListBranches(ctx, "ghost"); !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateBranchInvalidPoint(t *testing.T) {
	ctx := context.Background()
	reg, store := newTestRegistry(t)
	parent, err := reg.Create(ctx, CreateInput{Name: "Harbor", Seed: "S1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = reg.CreateBranch(ctx, BranchInput{Parent: parent, BranchPointSeq: 4})
	if !errors.Is(err, campaign.ErrInvalidBranchPoint) {
		t.Fatalf("expected invalid branch point, got %v", err)
	}
	all, err := store.ListCampaigns(ctx, storage.ListCampaignsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected no branch campaign, got %d campaigns", len(all))
	}

	_, err = reg.CreateBranch(ctx, BranchInput{Parent: storage.CampaignRecord{ID: "ghost", Name: "g", Seed: "s"}, BranchPointSeq: 1})
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeriveBranchSeed(t *testing.T) {
	if got := DeriveBranchSeed("S1", "b1"); got != "S1/b1" {
		t.Fatalf("unexpected seed %q", got)
	}
	if got := DefaultBranchName(" Harbor "); got != "Harbor (Branch)" {
		t.Fatalf("unexpected name %q", got)
	}
}
