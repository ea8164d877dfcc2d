package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/sqlstore"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/storagetest"
)

func openTestStore(t *testing.T, ring *integrity.Keyring) *sqlstore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "campaigns.sqlite")
	store, err := Open(context.Background(), path, ring)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close sqlite store: %v", err)
		}
	})
	return store
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, ring *integrity.Keyring) storage.Store {
		return openTestStore(t, ring)
	})
}

func TestConformanceInMemory(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, ring *integrity.Keyring) storage.Store {
		store, err := Open(context.Background(), MemoryPath, ring)
		if err != nil {
			t.Fatalf("open memory sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " ", storagetest.Keyring(t)); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenRequiresKeyring(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.sqlite")
	if _, err := Open(context.Background(), path, nil); err == nil {
		t.Fatal("expected error without keyring")
	}
}

func TestReopenKeepsDataAndSkipsMigrations(t *testing.T) {
	ctx := context.Background()
	ring := storagetest.Keyring(t)
	path := filepath.Join(t.TempDir(), "nested", "campaigns.sqlite")

	first, err := Open(ctx, path, ring)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	storagetest.CreateTestCampaign(t, first, "c1")
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, path, ring)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	rec, err := second.GetCampaign(ctx, "c1")
	if err != nil {
		t.Fatalf("get campaign after reopen: %v", err)
	}
	if rec.CurrentSeq != 1 {
		t.Fatalf("expected seq 1 after reopen, got %d", rec.CurrentSeq)
	}

	var applied int
	if err := second.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected one applied migration, got %d", applied)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	store := openTestStore(t, storagetest.Keyring(t))
	var enabled int
	if err := store.DB().QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("expected foreign keys on, got %d", enabled)
	}
}

func TestTamperedPayloadIsDetected(t *testing.T) {
	ctx := context.Background()
	ring := storagetest.Keyring(t)
	store := openTestStore(t, ring)
	storagetest.CreateTestCampaign(t, store, "c1")
	if _, err := store.AppendEvent(ctx, storagetest.StepEvent(t, "c1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := store.DB().Exec(`UPDATE events SET payload_json = '{"step":1,"credits":999999}' WHERE campaign_id = 'c1' AND seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	evt, err := store.GetEventBySeq(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if err := integrity.VerifyPayload(evt); !errors.Is(err, integrity.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/c.sqlite")
	for _, want := range []string{"foreign_keys%281%29", "journal_mode%28WAL%29", "busy_timeout%285000%29", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("expected dsn %q to contain %q", dsn, want)
		}
	}
	if strings.Contains(DSN(MemoryPath), "journal_mode") {
		t.Fatal("expected in-memory dsn without WAL")
	}
}

func TestErrorClassifiersIgnoreForeignErrors(t *testing.T) {
	err := errors.New("database is locked")
	if isSQLiteBusyError(err) || isConstraintError(err) || isForeignKeyError(err) {
		t.Fatal("expected non-sqlite errors to be unclassified")
	}
}
