package app

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	entrypoint "github.com/louisbranch/campaignlog/internal/platform/cmd"
	"github.com/louisbranch/campaignlog/internal/platform/timeouts"
	"github.com/louisbranch/campaignlog/internal/services/campaign/eventlog"
	"github.com/louisbranch/campaignlog/internal/services/campaign/snapshot"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Archive drivers.
const (
	ArchiveNone = "none"
	ArchiveFS   = "fs"
	ArchiveS3   = "s3"
)

// Config holds store configuration. Env names omit the CAMPAIGNLOG_ prefix.
type Config struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/campaignlog.sqlite"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	SnapshotCadence uint64        `env:"SNAPSHOT_CADENCE" envDefault:"10"`
	SnapshotWorkers int           `env:"SNAPSHOT_WORKERS" envDefault:"4"`
	SnapshotTimeout time.Duration `env:"SNAPSHOT_TIMEOUT" envDefault:"10s"`

	AppendMaxAttempts  int           `env:"APPEND_MAX_ATTEMPTS" envDefault:"5"`
	AppendRetryBackoff time.Duration `env:"APPEND_RETRY_BACKOFF" envDefault:"10ms"`

	ArchiveDriver      string `env:"ARCHIVE_DRIVER" envDefault:"none"`
	ArchiveDir         string `env:"ARCHIVE_DIR" envDefault:"data/archive"`
	ArchiveS3Bucket    string `env:"ARCHIVE_S3_BUCKET"`
	ArchiveS3Region    string `env:"ARCHIVE_S3_REGION"`
	ArchiveS3Endpoint  string `env:"ARCHIVE_S3_ENDPOINT"`
	ArchiveS3PathStyle bool   `env:"ARCHIVE_S3_PATH_STYLE"`
	ArchiveS3Prefix    string `env:"ARCHIVE_S3_PREFIX"`
}

// DefaultConfig returns the values used when no environment is set.
func DefaultConfig() Config {
	return Config{
		StoreDriver:        DriverSQLite,
		SQLitePath:         filepath.Join("data", "campaignlog.sqlite"),
		SnapshotCadence:    snapshot.DefaultCadence,
		SnapshotWorkers:    snapshot.DefaultWorkers,
		SnapshotTimeout:    timeouts.SnapshotWrite,
		AppendMaxAttempts:  eventlog.DefaultMaxAttempts,
		AppendRetryBackoff: 10 * time.Millisecond,
		ArchiveDriver:      ArchiveNone,
		ArchiveDir:         filepath.Join("data", "archive"),
	}
}

// LoadConfig reads CAMPAIGNLOG_* variables and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate normalizes driver names and rejects unusable settings.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.ArchiveDriver = strings.ToLower(strings.TrimSpace(c.ArchiveDriver))
	if c.ArchiveDriver == "" {
		c.ArchiveDriver = ArchiveNone
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if c.SnapshotCadence == 0 {
		return fmt.Errorf("snapshot cadence must be positive")
	}
	if c.SnapshotWorkers <= 0 {
		return fmt.Errorf("snapshot workers must be positive")
	}
	if c.SnapshotTimeout <= 0 {
		return fmt.Errorf("snapshot timeout must be positive")
	}
	if c.AppendMaxAttempts <= 0 {
		return fmt.Errorf("append max attempts must be positive")
	}
	if c.AppendRetryBackoff < 0 {
		return fmt.Errorf("append retry backoff must not be negative")
	}

	switch c.ArchiveDriver {
	case ArchiveNone:
	case ArchiveFS:
		if strings.TrimSpace(c.ArchiveDir) == "" {
			return fmt.Errorf("archive dir is required for the fs archive driver")
		}
	case ArchiveS3:
		if strings.TrimSpace(c.ArchiveS3Bucket) == "" {
			return fmt.Errorf("archive s3 bucket is required for the s3 archive driver")
		}
	default:
		return fmt.Errorf("unknown archive driver %q", c.ArchiveDriver)
	}
	return nil
}
