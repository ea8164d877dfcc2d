package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

// pageSize bounds the rows read per round trip when copying a branch prefix.
const pageSize = 200

var _ storage.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Store implements storage.Store over a database/sql handle.
type Store struct {
	db      *sql.DB
	dialect Dialect
	keyring *integrity.Keyring
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open, migrated database. The store owns db and closes it.
func New(db *sql.DB, dialect Dialect, keyring *integrity.Keyring, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sql db is required")
	}
	if keyring == nil {
		return nil, fmt.Errorf("event integrity keyring is required")
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		keyring: keyring,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DB exposes the underlying handle for backend-specific tests.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close closes the underlying database. It is nil-safe so callers can defer
// it on every startup path.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

// conflict marks err as a retryable append conflict while keeping the cause.
func conflict(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, storage.ErrAppendConflict, err)
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}
