package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
)

// CreateBranch inserts the branch row and copies the parent prefix in one
// transaction. Copied events keep their type, payload and timestamp and are
// re-sealed under the branch id, so the branch chain verifies on its own.
func (s *Store) CreateBranch(ctx context.Context, req storage.BranchRequest) (storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, err
	}
	rec := req.Record
	if err := validateRecord(rec); err != nil {
		return storage.CampaignRecord{}, err
	}
	parentID := strings.TrimSpace(rec.ParentCampaignID)
	if parentID == "" {
		return storage.CampaignRecord{}, fmt.Errorf("parent campaign id is required")
	}
	if req.UptoSeq == 0 {
		return storage.CampaignRecord{}, storage.ErrBranchPointMissing
	}

	now := s.timestamp()
	rec.CurrentSeq = req.UptoSeq
	rec.BranchPointSeq = req.UptoSeq
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.LastActivityAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.CampaignRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var parentSeq int64
	err = tx.QueryRowContext(ctx, s.q(`SELECT current_seq FROM campaigns WHERE id = ?`), parentID).Scan(&parentSeq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CampaignRecord{}, storage.ErrNotFound
		}
		return storage.CampaignRecord{}, fmt.Errorf("load parent campaign id=%s: %w", parentID, err)
	}
	if req.UptoSeq > uint64(parentSeq) {
		return storage.CampaignRecord{}, storage.ErrBranchPointMissing
	}

	if err := s.insertCampaign(ctx, tx, rec); err != nil {
		return storage.CampaignRecord{}, err
	}

	var (
		afterSeq  uint64
		prevChain string
	)
	for afterSeq < req.UptoSeq {
		// A page is fully read before inserting; drivers hold one result set per connection.
		page, err := s.listEvents(ctx, tx, parentID, afterSeq, req.UptoSeq, pageSize)
		if err != nil {
			return storage.CampaignRecord{}, err
		}
		if len(page) == 0 {
			break
		}
		for _, parentEvt := range page {
			if parentEvt.Seq != afterSeq+1 {
				return storage.CampaignRecord{}, fmt.Errorf("parent campaign id=%s seq gap at %d: %w",
					parentID, afterSeq+1, storage.ErrBranchPointMissing)
			}
			copied := event.Event{
				CampaignID:    rec.ID,
				Seq:           parentEvt.Seq,
				Type:          parentEvt.Type,
				SchemaVersion: parentEvt.SchemaVersion,
				PayloadJSON:   parentEvt.PayloadJSON,
				Timestamp:     parentEvt.Timestamp,
			}
			sealed, err := s.sealEvent(copied, prevChain)
			if err != nil {
				return storage.CampaignRecord{}, err
			}
			if err := s.insertEvent(ctx, tx, sealed); err != nil {
				return storage.CampaignRecord{}, err
			}
			prevChain = sealed.ChainHash
			afterSeq = parentEvt.Seq
		}
	}
	if afterSeq != req.UptoSeq {
		return storage.CampaignRecord{}, storage.ErrBranchPointMissing
	}

	if err := tx.Commit(); err != nil {
		return storage.CampaignRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}
