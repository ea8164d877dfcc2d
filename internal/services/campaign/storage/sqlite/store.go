package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/louisbranch/campaignlog/internal/platform/storage/migrate"
	"github.com/louisbranch/campaignlog/internal/platform/timeouts"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/sqlite/migrations"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/sqlstore"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Dialect is the SQLite flavour of the shared campaign SQL.
var Dialect = sqlstore.Dialect{
	Name:                  "sqlite",
	Rebind:                sqlstore.QuestionRebind,
	IsUniqueViolation:     isConstraintError,
	IsForeignKeyViolation: isForeignKeyError,
	IsRetryable:           isSQLiteBusyError,
}

// Open opens (creating when needed) a SQLite campaign store at path and
// applies the embedded migrations.
func Open(ctx context.Context, path string, keyring *integrity.Keyring, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	inMemory := path == MemoryPath
	if !inMemory {
		path = filepath.Clean(path)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		// Each connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreOpen)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrate.SQLite, migrations.CampaignsFS, migrations.Root); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := sqlstore.New(sqlDB, Dialect, keyring, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return store, nil
}

// DSN renders the modernc connection string with the pragmas the store relies on.
func DSN(path string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", timeouts.SQLiteBusy.Milliseconds()))
	if path != MemoryPath {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}
	params.Set("_txlock", "immediate")
	return path + "?" + params.Encode()
}

func sqliteCode(err error) (int, bool) {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return 0, false
	}
	return sqliteErr.Code(), true
}

func isConstraintError(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE")
	default:
		return false
	}
}

func isForeignKeyError(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(strings.ToUpper(err.Error()), "FOREIGN KEY")
	default:
		return false
	}
}

// isSQLiteBusyError matches SQLITE_BUSY and SQLITE_LOCKED including their
// extended codes.
func isSQLiteBusyError(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	primary := code & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}
