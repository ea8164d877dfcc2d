package integrity

import (
	"errors"
	"testing"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
)

func TestSnapshotChecksumBindsCampaignAndSeq(t *testing.T) {
	st := state.Default("S1")
	sum, err := SnapshotChecksum("c1", 10, st)
	if err != nil {
		t.Fatalf("snapshot checksum: %v", err)
	}
	if err := VerifySnapshot("c1", 10, st, sum); err != nil {
		t.Fatalf("verify snapshot: %v", err)
	}
	if err := VerifySnapshot("c2", 10, st, sum); !errors.Is(err, ErrSnapshotChecksumMismatch) {
		t.Fatalf("expected mismatch for other campaign, got %v", err)
	}
	if err := VerifySnapshot("c1", 20, st, sum); !errors.Is(err, ErrSnapshotChecksumMismatch) {
		t.Fatalf("expected mismatch for other seq, got %v", err)
	}
	if err := VerifySnapshot("c1", 10, state.Default("S2"), sum); !errors.Is(err, ErrSnapshotChecksumMismatch) {
		t.Fatalf("expected mismatch for other state, got %v", err)
	}
}

func TestSnapshotChecksumRequiresState(t *testing.T) {
	if _, err := SnapshotChecksum("c1", 1, nil); err == nil {
		t.Fatal("expected error for empty state")
	}
}
