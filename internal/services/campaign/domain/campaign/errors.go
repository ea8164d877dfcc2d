package campaign

import (
	"fmt"

	apperrors "github.com/louisbranch/campaignlog/internal/platform/errors"
)

// Sentinels for errors.Is matching. Domain errors compare by code, so any
// constructor result below matches its sentinel.
var (
	// ErrNotFound indicates an unknown campaign id.
	ErrNotFound = apperrors.New(apperrors.CodeCampaignNotFound, "campaign not found")
	// ErrEmptyName indicates a missing campaign name.
	ErrEmptyName = apperrors.New(apperrors.CodeCampaignNameEmpty, "campaign name is required")
	// ErrEmptySeed indicates a missing campaign seed.
	ErrEmptySeed = apperrors.New(apperrors.CodeCampaignSeedEmpty, "campaign seed is required")
	// ErrNotActive indicates a write against a campaign that does not accept events.
	ErrNotActive = apperrors.New(apperrors.CodeCampaignNotActive, "campaign is not active")
	// ErrInvalidStatusTransition indicates a disallowed campaign status change.
	ErrInvalidStatusTransition = apperrors.New(apperrors.CodeCampaignInvalidStatusTransition, "campaign status transition is not allowed")
	// ErrInvalidBranchPoint indicates a branch point missing from the parent log.
	ErrInvalidBranchPoint = apperrors.New(apperrors.CodeInvalidBranchPoint, "branch point does not exist")
	// ErrStoreUnavailable indicates the backing store could not complete a write.
	ErrStoreUnavailable = apperrors.New(apperrors.CodeStoreUnavailable, "campaign store is unavailable")
	// ErrIntegrityMismatch indicates stored data failed checksum verification.
	ErrIntegrityMismatch = apperrors.New(apperrors.CodeIntegrityMismatch, "campaign data failed integrity verification")
	// ErrInvalidSnapshotSeq indicates a snapshot for a sequence that has no event.
	ErrInvalidSnapshotSeq = apperrors.New(apperrors.CodeInvalidSnapshotSeq, "snapshot sequence does not exist")
	// ErrInvalidState indicates state bytes that are not a json object.
	ErrInvalidState = apperrors.New(apperrors.CodeInvalidState, "campaign state is invalid")
	// ErrSnapshotWriteFailed indicates a snapshot could not be persisted.
	ErrSnapshotWriteFailed = apperrors.New(apperrors.CodeSnapshotWriteFailed, "snapshot write failed")
)

// NotFound reports an unknown campaign id.
func NotFound(campaignID string) error {
	return apperrors.WithMetadata(apperrors.CodeCampaignNotFound,
		fmt.Sprintf("campaign %s not found", campaignID),
		map[string]string{"campaign_id": campaignID})
}

// NotActive reports a step against a campaign outside the active status.
func NotActive(campaignID string, status Status) error {
	return apperrors.WithMetadata(apperrors.CodeCampaignNotActive,
		fmt.Sprintf("campaign %s is %s: only active campaigns accept steps", campaignID, status),
		map[string]string{"campaign_id": campaignID, "status": string(status)})
}

// InvalidStatusTransition reports a disallowed lifecycle change.
func InvalidStatusTransition(campaignID string, from, to Status) error {
	return apperrors.WithMetadata(apperrors.CodeCampaignInvalidStatusTransition,
		fmt.Sprintf("campaign %s cannot move from %s to %s", campaignID, from, to),
		map[string]string{"campaign_id": campaignID, "from": string(from), "to": string(to)})
}

// InvalidBranchPoint reports a branch point with no matching parent event.
// point describes the requested position, e.g. "seq 7" or "step 4".
func InvalidBranchPoint(parentID, point string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidBranchPoint,
		fmt.Sprintf("campaign %s has no event at %s: branch point must exist in the parent log", parentID, point),
		map[string]string{"campaign_id": parentID, "branch_point": point})
}

// StoreUnavailable reports a storage failure without rendering engine text.
func StoreUnavailable(campaignID, operation string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeStoreUnavailable,
		fmt.Sprintf("campaign %s: %s failed: store unavailable", campaignID, operation),
		map[string]string{"campaign_id": campaignID, "operation": operation}, cause)
}

// IntegrityMismatch reports corrupted or tampered data at seq.
func IntegrityMismatch(campaignID string, seq uint64, what string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeIntegrityMismatch,
		fmt.Sprintf("campaign %s seq %d: %s failed integrity verification", campaignID, seq, what),
		map[string]string{"campaign_id": campaignID, "seq": fmt.Sprint(seq), "subject": what}, cause)
}

// InvalidSnapshotSeq reports a snapshot request beyond the committed log.
func InvalidSnapshotSeq(campaignID string, seq, latest uint64) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidSnapshotSeq,
		fmt.Sprintf("campaign %s has no event at seq %d: latest committed seq is %d", campaignID, seq, latest),
		map[string]string{"campaign_id": campaignID, "seq": fmt.Sprint(seq), "latest_seq": fmt.Sprint(latest)})
}

// InvalidState reports a state value that is not a json object.
func InvalidState(campaignID string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeInvalidState,
		fmt.Sprintf("campaign %s: state must be a json object", campaignID),
		map[string]string{"campaign_id": campaignID}, cause)
}

// SnapshotWriteFailed reports a failed snapshot persistence attempt.
func SnapshotWriteFailed(campaignID string, seq uint64, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeSnapshotWriteFailed,
		fmt.Sprintf("campaign %s seq %d: snapshot write failed", campaignID, seq),
		map[string]string{"campaign_id": campaignID, "seq": fmt.Sprint(seq)}, cause)
}

// EventNotFound reports a sequence past the end of the campaign log.
func EventNotFound(campaignID string, seq, latest uint64) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("campaign %s has no event at seq %d: latest committed seq is %d", campaignID, seq, latest),
		map[string]string{"campaign_id": campaignID, "seq": fmt.Sprint(seq), "latest_seq": fmt.Sprint(latest)})
}

// AlreadyExists reports a campaign id collision.
func AlreadyExists(campaignID string) error {
	return apperrors.WithMetadata(apperrors.CodeAlreadyExists,
		fmt.Sprintf("campaign %s already exists", campaignID),
		map[string]string{"campaign_id": campaignID})
}
