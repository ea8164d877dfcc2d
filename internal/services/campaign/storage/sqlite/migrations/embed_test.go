package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestCampaignMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(CampaignsFS, Root)
	if err != nil {
		t.Fatalf("read campaign migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".sql") {
			t.Fatalf("unexpected migration file %s", entry.Name())
		}
		content, err := fs.ReadFile(CampaignsFS, Root+"/"+entry.Name())
		if err != nil {
			t.Fatalf("read %s: %v", entry.Name(), err)
		}
		if !strings.Contains(string(content), "-- +migrate Up") {
			t.Fatalf("migration %s is missing an Up section", entry.Name())
		}
	}
}
