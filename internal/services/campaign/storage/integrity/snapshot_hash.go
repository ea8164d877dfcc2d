package integrity

import (
	"errors"
	"fmt"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/core/encoding"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

// ErrSnapshotChecksumMismatch indicates a snapshot no longer matches its checksum.
var ErrSnapshotChecksumMismatch = errors.New("snapshot checksum mismatch")

// SnapshotChecksum hashes a snapshot state bound to its campaign and
// sequence, so a state copied under another key fails verification.
func SnapshotChecksum(campaignID string, seq uint64, st state.State) (string, error) {
	if len(st) == 0 {
		return "", fmt.Errorf("snapshot state is required")
	}
	return encoding.ContentHash(map[string]any{
		"campaign_id":    campaignID,
		"seq":            seq,
		"state_checksum": st.Checksum(),
	})
}

// VerifySnapshot recomputes the snapshot checksum.
func VerifySnapshot(campaignID string, seq uint64, st state.State, checksum string) error {
	want, err := SnapshotChecksum(campaignID, seq, st)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotChecksumMismatch, err)
	}
	if want != checksum {
		return ErrSnapshotChecksumMismatch
	}
	return nil
}
