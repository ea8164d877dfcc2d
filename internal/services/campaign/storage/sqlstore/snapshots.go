package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/state"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

const snapshotColumns = `campaign_id, seq, state_json, checksum, created_at`

func scanSnapshot(row rowScanner) (storage.Snapshot, error) {
	var (
		snap      storage.Snapshot
		seq       int64
		raw       []byte
		createdAt int64
	)
	if err := row.Scan(&snap.CampaignID, &seq, &raw, &snap.Checksum, &createdAt); err != nil {
		return storage.Snapshot{}, err
	}
	snap.Seq = uint64(seq)
	snap.State = state.State(append([]byte(nil), raw...))
	snap.CreatedAt = fromMillis(createdAt)
	return snap, nil
}

// PutSnapshot upserts a snapshot keyed by campaign and sequence. The state is
// stored verbatim so checksums computed over it stay valid on read.
func (s *Store) PutSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.CampaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}
	if len(snapshot.State) == 0 {
		return fmt.Errorf("snapshot state is required")
	}
	if strings.TrimSpace(snapshot.Checksum) == "" {
		return fmt.Errorf("snapshot checksum is required")
	}
	createdAt := snapshot.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.timestamp()
	}

	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO snapshots (`+snapshotColumns+`)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (campaign_id, seq) DO UPDATE SET
    state_json = excluded.state_json,
    checksum = excluded.checksum,
    created_at = excluded.created_at`),
		snapshot.CampaignID, int64(snapshot.Seq), string(snapshot.State), snapshot.Checksum, toMillis(createdAt))
	if err != nil {
		if s.dialect.foreignKey(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("put snapshot campaign_id=%s seq=%d: %w", snapshot.CampaignID, snapshot.Seq, err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot at seq.
func (s *Store) GetSnapshot(ctx context.Context, campaignID string, seq uint64) (storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Snapshot{}, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return storage.Snapshot{}, fmt.Errorf("campaign id is required")
	}
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+snapshotColumns+` FROM snapshots WHERE campaign_id = ? AND seq = ?`),
		campaignID, int64(seq))
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get snapshot campaign_id=%s seq=%d: %w", campaignID, seq, err)
	}
	return snap, nil
}

// GetLatestSnapshot retrieves the greatest-seq snapshot for a campaign.
func (s *Store) GetLatestSnapshot(ctx context.Context, campaignID string) (storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Snapshot{}, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return storage.Snapshot{}, fmt.Errorf("campaign id is required")
	}
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+snapshotColumns+` FROM snapshots WHERE campaign_id = ?
ORDER BY seq DESC LIMIT 1`), campaignID)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get latest snapshot campaign_id=%s: %w", campaignID, err)
	}
	return snap, nil
}

// ListSnapshots returns snapshots ordered by seq descending.
func (s *Store) ListSnapshots(ctx context.Context, campaignID string, limit int) ([]storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+snapshotColumns+` FROM snapshots WHERE campaign_id = ?
ORDER BY seq DESC LIMIT ?`), campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots campaign_id=%s: %w", campaignID, err)
	}
	defer rows.Close()

	var snapshots []storage.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snapshots, nil
}
