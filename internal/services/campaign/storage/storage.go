package storage

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/campaignlog/internal/platform/errors"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates a campaign id collision.
var ErrAlreadyExists = apperrors.New(apperrors.CodeAlreadyExists, "record already exists")

// ErrAppendConflict indicates the append lost a race for the next sequence
// number. No event was written; the caller may retry.
var ErrAppendConflict = apperrors.New(apperrors.CodeAppendConflict, "append conflict")

// ErrStatusChanged indicates the campaign status no longer matched the
// expected value when the update ran.
var ErrStatusChanged = apperrors.New(apperrors.CodeCampaignInvalidStatusTransition, "campaign status changed concurrently")

// ErrBranchPointMissing indicates the parent log does not contain the
// requested branch point.
var ErrBranchPointMissing = apperrors.New(apperrors.CodeInvalidBranchPoint, "branch point missing from parent log")

// ErrCampaignInactive indicates an append to a campaign whose status does not
// accept events. No event was written.
var ErrCampaignInactive = apperrors.New(apperrors.CodeCampaignNotActive, "campaign does not accept events")

// InactiveError reports the status that rejected an append. It matches
// ErrCampaignInactive.
type InactiveError struct {
	Status campaign.Status
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("campaign is %s: %v", e.Status, ErrCampaignInactive)
}

func (e *InactiveError) Unwrap() error { return ErrCampaignInactive }

// CampaignRecord is the registry row for one campaign.
type CampaignRecord struct {
	ID     string
	Name   string
	Seed   string
	Status campaign.Status
	// CurrentSeq is the highest committed event sequence. It only moves inside
	// the append and branch transactions.
	CurrentSeq       uint64
	ParentCampaignID string
	BranchPointSeq   uint64
	OriginCampaignID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastActivityAt   time.Time
	ArchivedAt       *time.Time
}

// IsBranch reports whether the campaign was created by branching.
func (r CampaignRecord) IsBranch() bool {
	return r.ParentCampaignID != ""
}

// ListCampaignsRequest filters campaign listings. Zero values mean no filter.
type ListCampaignsRequest struct {
	Statuses         []campaign.Status
	ParentCampaignID string
	Limit            int
}

// StatusUpdate is a compare-and-set on the campaign status.
type StatusUpdate struct {
	CampaignID string
	From       campaign.Status
	To         campaign.Status
	At         time.Time
}

// Snapshot is a materialized state at a committed sequence. Snapshots
// accelerate replay; the log remains authoritative.
type Snapshot struct {
	CampaignID string
	Seq        uint64
	State      state.State
	Checksum   string
	CreatedAt  time.Time
}

// BranchRequest describes a new campaign seeded from a parent prefix.
type BranchRequest struct {
	// Record is the branch registry row; CurrentSeq is set by the store.
	Record CampaignRecord
	// UptoSeq is the last parent sequence copied into the branch.
	UptoSeq uint64
}

// CampaignStore persists registry rows.
type CampaignStore interface {
	// CreateCampaign inserts the record together with its first event in one
	// transaction. The event is sealed and assigned seq 1.
	CreateCampaign(ctx context.Context, record CampaignRecord, first event.Event) (CampaignRecord, event.Event, error)
	// GetCampaign returns ErrNotFound for unknown ids.
	GetCampaign(ctx context.Context, campaignID string) (CampaignRecord, error)
	// ListCampaigns orders by last activity, newest first.
	ListCampaigns(ctx context.Context, req ListCampaignsRequest) ([]CampaignRecord, error)
	// UpdateCampaignStatus applies a compare-and-set status change.
	UpdateCampaignStatus(ctx context.Context, update StatusUpdate) (CampaignRecord, error)
}

// EventStore persists the append-only event journal.
type EventStore interface {
	// AppendEvent assigns the next sequence, seals the event and bumps the
	// campaign's current sequence and activity time in one transaction.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// GetEventBySeq returns ErrNotFound when the event does not exist.
	GetEventBySeq(ctx context.Context, campaignID string, seq uint64) (event.Event, error)
	// ListEvents returns up to limit events with seq > afterSeq, ascending.
	ListEvents(ctx context.Context, campaignID string, afterSeq uint64, limit int) ([]event.Event, error)
	// GetLatestEventSeq returns the campaign's committed sequence, or
	// ErrNotFound for unknown campaigns.
	GetLatestEventSeq(ctx context.Context, campaignID string) (uint64, error)
}

// SnapshotStore persists replay checkpoints.
type SnapshotStore interface {
	// PutSnapshot upserts on (campaign id, seq).
	PutSnapshot(ctx context.Context, snapshot Snapshot) error
	// GetSnapshot returns ErrNotFound when missing.
	GetSnapshot(ctx context.Context, campaignID string, seq uint64) (Snapshot, error)
	// GetLatestSnapshot returns the greatest-seq snapshot or ErrNotFound.
	GetLatestSnapshot(ctx context.Context, campaignID string) (Snapshot, error)
	// ListSnapshots returns snapshots ordered by seq descending.
	ListSnapshots(ctx context.Context, campaignID string, limit int) ([]Snapshot, error)
}

// BranchStore creates branches atomically.
type BranchStore interface {
	// CreateBranch inserts the branch record and copies parent events
	// 1..UptoSeq, re-sealed under the branch id, in one transaction.
	CreateBranch(ctx context.Context, req BranchRequest) (CampaignRecord, error)
}

// Store is the full persistence surface used by the campaign services.
type Store interface {
	CampaignStore
	EventStore
	SnapshotStore
	BranchStore
	Close() error
}
