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
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

const eventColumns = `campaign_id, seq, event_type, schema_version, payload_json, timestamp,
checksum, prev_hash, chain_hash, signature, signature_key_id`

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		evt       event.Event
		seq       int64
		eventType string
		payload   []byte
		timestamp int64
	)
	if err := row.Scan(&evt.CampaignID, &seq, &eventType, &evt.SchemaVersion, &payload, &timestamp,
		&evt.Checksum, &evt.PrevHash, &evt.ChainHash, &evt.Signature, &evt.SignatureKeyID); err != nil {
		return event.Event{}, err
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.PayloadJSON = append([]byte(nil), payload...)
	evt.Timestamp = fromMillis(timestamp)
	return evt, nil
}

func (s *Store) sealEvent(evt event.Event, prevChainHash string) (event.Event, error) {
	sealed, err := integrity.Seal(evt, prevChainHash, s.keyring)
	if err != nil {
		return event.Event{}, fmt.Errorf("seal event campaign_id=%s seq=%d: %w", evt.CampaignID, evt.Seq, err)
	}
	return sealed, nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, evt event.Event) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO events (`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		evt.CampaignID, int64(evt.Seq), string(evt.Type), evt.SchemaVersion, string(evt.PayloadJSON),
		toMillis(evt.Timestamp), evt.Checksum, evt.PrevHash, evt.ChainHash, evt.Signature, evt.SignatureKeyID)
	if err != nil {
		if s.dialect.unique(err) || s.dialect.retryable(err) {
			return conflict(fmt.Sprintf("insert event campaign_id=%s seq=%d", evt.CampaignID, evt.Seq), err)
		}
		return fmt.Errorf("insert event campaign_id=%s seq=%d: %w", evt.CampaignID, evt.Seq, err)
	}
	return nil
}

func (s *Store) chainHashAt(ctx context.Context, tx *sql.Tx, campaignID string, seq uint64) (string, error) {
	var chainHash string
	err := tx.QueryRowContext(ctx, s.q(`SELECT chain_hash FROM events WHERE campaign_id = ? AND seq = ?`),
		campaignID, int64(seq)).Scan(&chainHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("previous event campaign_id=%s seq=%d is missing", campaignID, seq)
		}
		return "", err
	}
	return chainHash, nil
}

// AppendEvent assigns the next sequence and writes the sealed event. The
// campaign row update comes first so the transaction holds the campaign's
// write lock before reading the previous chain hash. The update only matches
// an active campaign, so a status change either commits before the append and
// rejects it, or waits for the append to commit.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.timestamp()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if s.dialect.retryable(err) {
			return event.Event{}, conflict("begin tx", err)
		}
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var seq int64
	err = tx.QueryRowContext(ctx, s.q(`UPDATE campaigns
SET current_seq = current_seq + 1, updated_at = ?, last_activity_at = ?
WHERE id = ? AND status = ?
RETURNING current_seq`),
		toMillis(evt.Timestamp), toMillis(evt.Timestamp), evt.CampaignID, string(campaign.StatusActive)).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, s.appendRejected(ctx, tx, evt.CampaignID)
		}
		if s.dialect.retryable(err) {
			return event.Event{}, conflict(fmt.Sprintf("advance seq campaign_id=%s", evt.CampaignID), err)
		}
		return event.Event{}, fmt.Errorf("advance seq campaign_id=%s: %w", evt.CampaignID, err)
	}
	evt.Seq = uint64(seq)

	prevHash := ""
	if evt.Seq > 1 {
		prevHash, err = s.chainHashAt(ctx, tx, evt.CampaignID, evt.Seq-1)
		if err != nil {
			if s.dialect.retryable(err) {
				return event.Event{}, conflict("load previous event", err)
			}
			return event.Event{}, fmt.Errorf("load previous event: %w", err)
		}
	}

	sealed, err := s.sealEvent(evt, prevHash)
	if err != nil {
		return event.Event{}, err
	}
	if err := s.insertEvent(ctx, tx, sealed); err != nil {
		return event.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		if s.dialect.retryable(err) {
			return event.Event{}, conflict("commit", err)
		}
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return sealed, nil
}

// appendRejected tells a missing campaign from one that does not accept
// events after the guarded sequence update matched no row.
func (s *Store) appendRejected(ctx context.Context, tx *sql.Tx, campaignID string) error {
	var status string
	err := tx.QueryRowContext(ctx, s.q(`SELECT status FROM campaigns WHERE id = ?`), campaignID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return storage.ErrNotFound
	case err != nil:
		if s.dialect.retryable(err) {
			return conflict(fmt.Sprintf("read status campaign_id=%s", campaignID), err)
		}
		return fmt.Errorf("read status campaign_id=%s: %w", campaignID, err)
	}
	return &storage.InactiveError{Status: campaign.Status(status)}
}

// GetEventBySeq returns one event.
func (s *Store) GetEventBySeq(ctx context.Context, campaignID string, seq uint64) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return event.Event{}, fmt.Errorf("campaign id is required")
	}
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+eventColumns+` FROM events WHERE campaign_id = ? AND seq = ?`),
		campaignID, int64(seq))
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, fmt.Errorf("get event campaign_id=%s seq=%d: %w", campaignID, seq, err)
	}
	return evt, nil
}

// ListEvents returns up to limit events after afterSeq in ascending order.
func (s *Store) ListEvents(ctx context.Context, campaignID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return nil, fmt.Errorf("campaign id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	return s.listEvents(ctx, s.db, campaignID, afterSeq, 0, limit)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// listEvents reads one page. uptoSeq of zero means unbounded.
func (s *Store) listEvents(ctx context.Context, q queryer, campaignID string, afterSeq, uptoSeq uint64, limit int) ([]event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE campaign_id = ? AND seq > ?`
	args := []any{campaignID, int64(afterSeq)}
	if uptoSeq > 0 {
		query += ` AND seq <= ?`
		args = append(args, int64(uptoSeq))
	}
	query += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list events campaign_id=%s: %w", campaignID, err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, limit)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetLatestEventSeq returns the committed sequence held on the campaign row.
func (s *Store) GetLatestEventSeq(ctx context.Context, campaignID string) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if strings.TrimSpace(campaignID) == "" {
		return 0, fmt.Errorf("campaign id is required")
	}
	var seq int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT current_seq FROM campaigns WHERE id = ?`), campaignID).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get latest event seq campaign_id=%s: %w", campaignID, err)
	}
	return uint64(seq), nil
}
