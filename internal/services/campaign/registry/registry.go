// Package registry owns campaign records: identity, lifecycle status and
// lineage.
//
// The registry never moves a campaign's current sequence itself. That
// pointer only changes inside the store transactions that append events or
// copy a branch prefix, so it cannot drift from the log.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/campaignlog/internal/platform/errors"
	"github.com/louisbranch/campaignlog/internal/platform/id"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

// statusRetries bounds re-reads when a status update races another writer.
const statusRetries = 3

// ErrStoreRequired indicates a missing campaign store.
var ErrStoreRequired = errors.New("campaign store is required")

// Registry creates and reads campaign records.
type Registry struct {
	store storage.Store
	newID func() (string, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator overrides campaign id generation.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(r *Registry) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// New builds a Registry over store.
func New(store storage.Store, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	r := &Registry{store: store, newID: id.NewID}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// CreateInput describes a new root campaign.
type CreateInput struct {
	Name string
	Seed string
	// InitialState defaults to state.Default(Seed).
	InitialState state.State
}

// Create registers an active campaign and records its campaign_created event
// at seq 1 in the same transaction.
func (r *Registry) Create(ctx context.Context, in CreateInput) (storage.CampaignRecord, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return storage.CampaignRecord{}, campaign.ErrEmptyName
	}
	seed := strings.TrimSpace(in.Seed)
	if seed == "" {
		return storage.CampaignRecord{}, campaign.ErrEmptySeed
	}
	campaignID, err := r.newID()
	if err != nil {
		return storage.CampaignRecord{}, fmt.Errorf("generate campaign id: %w", err)
	}

	initial := state.Default(seed)
	if len(in.InitialState) > 0 {
		initial, err = state.Parse(in.InitialState)
		if err != nil {
			return storage.CampaignRecord{}, campaign.InvalidState(campaignID, err)
		}
	}
	payload, err := event.EncodePayload(event.CampaignCreatedPayload{
		Name:         name,
		Seed:         seed,
		InitialState: initial,
	})
	if err != nil {
		return storage.CampaignRecord{}, err
	}

	rec, _, err := r.store.CreateCampaign(ctx, storage.CampaignRecord{
		ID:     campaignID,
		Name:   name,
		Seed:   seed,
		Status: campaign.StatusActive,
	}, event.Event{
		Type:          event.TypeCampaignCreated,
		SchemaVersion: event.SchemaVersion,
		PayloadJSON:   payload,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return storage.CampaignRecord{}, campaign.AlreadyExists(campaignID)
		}
		return storage.CampaignRecord{}, storage.CampaignError(campaignID, "create campaign", err)
	}
	return rec, nil
}

// BranchInput describes a campaign forked from parent's log prefix.
type BranchInput struct {
	Parent storage.CampaignRecord
	// Name defaults to "<parent name> (Branch)".
	Name string
	// BranchPointSeq is the last parent sequence copied.
	BranchPointSeq uint64
}

// CreateBranch registers the branch record and copies the parent's events
// 1..BranchPointSeq in one store transaction. The branch seed is derived
// from the parent seed and the branch id so branch replays are reproducible
// and independent of the parent. A branch point past the parent log is
// INVALID_BRANCH_POINT and creates nothing.
func (r *Registry) CreateBranch(ctx context.Context, in BranchInput) (storage.CampaignRecord, error) {
	parent := in.Parent
	if strings.TrimSpace(parent.ID) == "" {
		return storage.CampaignRecord{}, fmt.Errorf("parent campaign is required")
	}
	branchID, err := r.newID()
	if err != nil {
		return storage.CampaignRecord{}, fmt.Errorf("generate campaign id: %w", err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultBranchName(parent.Name)
	}
	origin := parent.OriginCampaignID
	if origin == "" {
		origin = parent.ID
	}

	rec, err := r.store.CreateBranch(ctx, storage.BranchRequest{
		Record: storage.CampaignRecord{
			ID:               branchID,
			Name:             name,
			Seed:             DeriveBranchSeed(parent.Seed, branchID),
			Status:           campaign.StatusActive,
			ParentCampaignID: parent.ID,
			OriginCampaignID: origin,
		},
		UptoSeq: in.BranchPointSeq,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrBranchPointMissing):
			return storage.CampaignRecord{}, campaign.InvalidBranchPoint(parent.ID, fmt.Sprintf("seq %d", in.BranchPointSeq))
		case errors.Is(err, storage.ErrAlreadyExists):
			return storage.CampaignRecord{}, campaign.AlreadyExists(branchID)
		case errors.Is(err, storage.ErrNotFound):
			return storage.CampaignRecord{}, campaign.NotFound(parent.ID)
		default:
			return storage.CampaignRecord{}, storage.CampaignError(parent.ID, "create branch", err)
		}
	}
	return rec, nil
}

// DefaultBranchName names a branch after its parent.
func DefaultBranchName(parentName string) string {
	return strings.TrimSpace(parentName) + " (Branch)"
}

// DeriveBranchSeed returns the seed of a branch of a campaign seeded with
// parentSeed.
func DeriveBranchSeed(parentSeed, branchID string) string {
	return parentSeed + "/" + branchID
}

// Get returns the record of campaignID.
func (r *Registry) Get(ctx context.Context, campaignID string) (storage.CampaignRecord, error) {
	rec, err := r.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return storage.CampaignRecord{}, storage.CampaignError(campaignID, "load campaign", err)
	}
	return rec, nil
}

// List returns campaigns, most recently active first. With statuses given,
// only campaigns in one of them are returned.
func (r *Registry) List(ctx context.Context, statuses ...campaign.Status) ([]storage.CampaignRecord, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, fmt.Errorf("campaign status %q is invalid", status)
		}
	}
	records, err := r.store.ListCampaigns(ctx, storage.ListCampaignsRequest{Statuses: statuses})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, apperrors.Wrap(apperrors.CodeStoreUnavailable, "list campaigns failed: store unavailable", err)
	}
	return records, nil
}

// ListBranches returns the direct branches of parentID.
func (r *Registry) ListBranches(ctx context.Context, parentID string) ([]storage.CampaignRecord, error) {
	if _, err := r.Get(ctx, parentID); err != nil {
		return nil, err
	}
	records, err := r.store.ListCampaigns(ctx, storage.ListCampaignsRequest{ParentCampaignID: parentID})
	if err != nil {
		return nil, storage.CampaignError(parentID, "list branches", err)
	}
	return records, nil
}

// SetStatus moves campaignID to status. Archived is terminal; campaigns are
// never deleted.
func (r *Registry) SetStatus(ctx context.Context, campaignID string, status campaign.Status) (storage.CampaignRecord, error) {
	if !status.Valid() {
		return storage.CampaignRecord{}, fmt.Errorf("campaign status %q is invalid", status)
	}
	for attempt := 0; ; attempt++ {
		rec, err := r.Get(ctx, campaignID)
		if err != nil {
			return storage.CampaignRecord{}, err
		}
		if !campaign.IsStatusTransitionAllowed(rec.Status, status) {
			return storage.CampaignRecord{}, campaign.InvalidStatusTransition(campaignID, rec.Status, status)
		}
		updated, err := r.store.UpdateCampaignStatus(ctx, storage.StatusUpdate{
			CampaignID: campaignID,
			From:       rec.Status,
			To:         status,
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, storage.ErrStatusChanged) || attempt+1 >= statusRetries {
			if errors.Is(err, storage.ErrStatusChanged) {
				return storage.CampaignRecord{}, campaign.InvalidStatusTransition(campaignID, rec.Status, status)
			}
			return storage.CampaignRecord{}, storage.CampaignError(campaignID, "update status", err)
		}
	}
}
