// Package postgres opens the Postgres-backed campaign store through the pgx
// database/sql driver.
//
// The append transaction's first statement updates the campaign row, so
// concurrent appends to one campaign queue on its row lock under READ
// COMMITTED; different campaigns never touch the same row.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/louisbranch/campaignlog/internal/platform/storage/migrate"
	"github.com/louisbranch/campaignlog/internal/platform/timeouts"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/postgres/migrations"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/sqlstore"
)

const driverName = "pgx"

// SQLSTATE codes classified by the store.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

var sqlOpen = sql.Open

// Dialect is the Postgres flavour of the shared campaign SQL.
var Dialect = sqlstore.Dialect{
	Name:                  "postgres",
	Rebind:                sqlstore.DollarRebind,
	IsUniqueViolation:     isUniqueViolation,
	IsForeignKeyViolation: isForeignKeyViolation,
	IsRetryable:           isRetryable,
}

// Open connects to dsn, applies the embedded migrations and returns the store.
func Open(ctx context.Context, dsn string, keyring *integrity.Keyring, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	sqlDB, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.StoreOpen)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := migrate.Apply(ctx, sqlDB, migrate.Postgres, migrations.CampaignsFS, migrations.Root); err != nil {
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

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

func isRetryable(err error) bool {
	switch pgCode(err) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	default:
		return false
	}
}
