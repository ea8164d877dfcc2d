package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

const campaignColumns = `id, name, seed, status, current_seq, parent_campaign_id, branch_point_seq,
origin_campaign_id, created_at, updated_at, last_activity_at, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (storage.CampaignRecord, error) {
	var (
		rec          storage.CampaignRecord
		status       string
		currentSeq   int64
		branchPoint  int64
		createdAt    int64
		updatedAt    int64
		lastActivity int64
		archivedAt   sql.NullInt64
	)
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Seed, &status, &currentSeq, &rec.ParentCampaignID,
		&branchPoint, &rec.OriginCampaignID, &createdAt, &updatedAt, &lastActivity, &archivedAt); err != nil {
		return storage.CampaignRecord{}, err
	}
	rec.Status = campaign.Status(status)
	rec.CurrentSeq = uint64(currentSeq)
	rec.BranchPointSeq = uint64(branchPoint)
	rec.CreatedAt = fromMillis(createdAt)
	rec.UpdatedAt = fromMillis(updatedAt)
	rec.LastActivityAt = fromMillis(lastActivity)
	rec.ArchivedAt = fromNullMillis(archivedAt)
	return rec, nil
}

func validateRecord(rec storage.CampaignRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("campaign id is required")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("campaign name is required")
	}
	if strings.TrimSpace(rec.Seed) == "" {
		return fmt.Errorf("campaign seed is required")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("campaign status %q is invalid", rec.Status)
	}
	return nil
}

func (s *Store) insertCampaign(ctx context.Context, tx *sql.Tx, rec storage.CampaignRecord) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO campaigns (`+campaignColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.Name, rec.Seed, string(rec.Status), int64(rec.CurrentSeq), rec.ParentCampaignID,
		int64(rec.BranchPointSeq), rec.OriginCampaignID, toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt),
		toMillis(rec.LastActivityAt), toNullMillis(rec.ArchivedAt))
	if err != nil {
		if s.dialect.unique(err) {
			return fmt.Errorf("insert campaign id=%s: %w", rec.ID, storage.ErrAlreadyExists)
		}
		return fmt.Errorf("insert campaign id=%s: %w", rec.ID, err)
	}
	return nil
}

// CreateCampaign inserts the registry row and its first event atomically.
func (s *Store) CreateCampaign(ctx context.Context, rec storage.CampaignRecord, first event.Event) (storage.CampaignRecord, event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}
	if err := validateRecord(rec); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}

	now := s.timestamp()
	first.CampaignID = rec.ID
	first.Seq = 1
	if first.Timestamp.IsZero() {
		first.Timestamp = now
	}
	first.Timestamp = first.Timestamp.UTC().Truncate(time.Millisecond)
	if err := first.Validate(); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}

	rec.CurrentSeq = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.LastActivityAt = first.Timestamp
	if rec.OriginCampaignID == "" {
		rec.OriginCampaignID = rec.ID
	}

	sealed, err := s.sealEvent(first, "")
	if err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.CampaignRecord{}, event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	if err := s.insertCampaign(ctx, tx, rec); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}
	if err := s.insertEvent(ctx, tx, sealed); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return storage.CampaignRecord{}, event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return rec, sealed, nil
}

// GetCampaign returns the registry row for campaignID.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return storage.CampaignRecord{}, fmt.Errorf("campaign id is required")
	}
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`), campaignID)
	rec, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CampaignRecord{}, storage.ErrNotFound
		}
		return storage.CampaignRecord{}, fmt.Errorf("get campaign id=%s: %w", campaignID, err)
	}
	return rec, nil
}

// ListCampaigns returns campaigns ordered by most recent activity.
func (s *Store) ListCampaigns(ctx context.Context, req storage.ListCampaignsRequest) ([]storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if len(req.Statuses) > 0 {
		marks := make([]string, 0, len(req.Statuses))
		for _, status := range req.Statuses {
			marks = append(marks, "?")
			args = append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if req.ParentCampaignID != "" {
		where = append(where, "parent_campaign_id = ?")
		args = append(args, req.ParentCampaignID)
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_activity_at DESC, created_at DESC, id ASC"
	if req.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, req.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var records []storage.CampaignRecord
	for rows.Next() {
		rec, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate campaigns: %w", err)
	}
	return records, nil
}

// UpdateCampaignStatus applies a compare-and-set status change.
func (s *Store) UpdateCampaignStatus(ctx context.Context, update storage.StatusUpdate) (storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, err
	}
	if strings.TrimSpace(update.CampaignID) == "" {
		return storage.CampaignRecord{}, fmt.Errorf("campaign id is required")
	}
	if !update.To.Valid() {
		return storage.CampaignRecord{}, fmt.Errorf("campaign status %q is invalid", update.To)
	}
	at := update.At
	if at.IsZero() {
		at = s.timestamp()
	}
	var archivedAt sql.NullInt64
	if update.To == campaign.StatusArchived {
		archivedAt = sql.NullInt64{Int64: toMillis(at), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, s.q(`UPDATE campaigns
SET status = ?, updated_at = ?, archived_at = COALESCE(?, archived_at)
WHERE id = ? AND status = ?`),
		string(update.To), toMillis(at), archivedAt, update.CampaignID, string(update.From))
	if err != nil {
		return storage.CampaignRecord{}, fmt.Errorf("update campaign status id=%s: %w", update.CampaignID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storage.CampaignRecord{}, fmt.Errorf("update campaign status id=%s: %w", update.CampaignID, err)
	}
	if affected == 0 {
		if _, err := s.GetCampaign(ctx, update.CampaignID); err != nil {
			return storage.CampaignRecord{}, err
		}
		return storage.CampaignRecord{}, storage.ErrStatusChanged
	}
	return s.GetCampaign(ctx, update.CampaignID)
}
