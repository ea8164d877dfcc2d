package campaignlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/campaignlog/internal/services/campaign/app"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
)

type cli struct {
	t      *testing.T
	dbPath string
	next   int
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("CAMPAIGNLOG_EVENT_HMAC_KEY", "cli-test-secret")
	t.Setenv("CAMPAIGNLOG_STORE_DRIVER", "")
	t.Setenv("CAMPAIGNLOG_OTEL_ENDPOINT", "")
	return &cli{t: t, dbPath: filepath.Join(t.TempDir(), "campaignlog.sqlite")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	root := NewRootCmd(WithAppOptions(
		app.WithLogger(log.New(io.Discard, "", 0)),
		app.WithIDGenerator(func() (string, error) {
			c.next++
			return fmt.Sprintf("camp-%d", c.next), nil
		}),
	))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--db", c.dbPath, "--no-color"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("campaignlog %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func expectContains(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Fatalf("expected output to contain %q, got:\n%s", w, out)
		}
	}
}

func TestCampaignLifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("create", "Harbor", "--seed", "S1", "--state", `{"credits":1000,"step":0}`)
	expectContains(t, out, "Created campaign camp-1: Harbor")

	out = c.mustRun("step", "camp-1", "--actions", `{"credits":50}`, "--count", "12")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 step lines, got %d:\n%s", len(lines), out)
	}
	expectContains(t, lines[8], "seq 10 [snapshot]")

	out = c.mustRun("resume", "camp-1")
	expectContains(t, out, "seq 13 (snapshot 10 + 3 events)", `"credits":1600`)

	out = c.mustRun("resume", "camp-1", "--until", "5", "--full")
	expectContains(t, out, "seq 5 (log + 5 events)", `"credits":1200`)

	out = c.mustRun("snapshots", "camp-1")
	expectContains(t, out, "SEQ", "10 ")

	out = c.mustRun("show", "camp-1")
	expectContains(t, out, "Seed:", "S1", "Current seq:", "13", "active")

	out = c.mustRun("verify", "camp-1")
	expectContains(t, out, "13 events verified through seq 13")

	out = c.mustRun("events", "camp-1", "--from", "12", "--json")
	if got := strings.Count(out, "\n"); got != 2 {
		t.Fatalf("expected 2 json lines, got %d:\n%s", got, out)
	}
	expectContains(t, out, `"seq":12`, `"seq":13`)
}

func TestBranchCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun("create", "Harbor", "--seed", "S1", "--state", `{"credits":1000,"step":0}`)
	c.mustRun("step", "camp-1", "--actions", `{"credits":50}`, "--count", "6")

	out := c.mustRun("branch", "camp-1", "--step", "4")
	expectContains(t, out, "Created branch camp-2: Harbor (Branch)", "Parent: camp-1 at seq 5")

	out = c.mustRun("branch", "camp-1", "--seq", "3", "--name", "Detour")
	expectContains(t, out, "Created branch camp-3: Detour")

	out = c.mustRun("branches", "camp-1")
	expectContains(t, out, "camp-2", "camp-3", "camp-1@5", "camp-1@3")

	out = c.mustRun("resume", "camp-2")
	expectContains(t, out, "seq 5 (snapshot 5 + 0 events)", `"credits":1200`)

	_, err := c.run("branch", "camp-1", "--seq", "99")
	if !errors.Is(err, campaign.ErrInvalidBranchPoint) {
		t.Fatalf("expected invalid branch point, got %v", err)
	}
	if _, err := c.run("branch", "camp-1"); err == nil || !strings.Contains(err.Error(), "exactly one of --seq or --step") {
		t.Fatalf("expected point flag error, got %v", err)
	}
	out = c.mustRun("list")
	if strings.Count(out, "camp-") < 3 {
		t.Fatalf("expected three campaigns listed, got:\n%s", out)
	}
}

func TestStatusAndArchiveCommands(t *testing.T) {
	c := newCLI(t)
	c.mustRun("create", "Harbor", "--seed", "S1")
	c.mustRun("create", "Reef", "--seed", "S2")

	out := c.mustRun("status", "camp-1", "paused")
	expectContains(t, out, "camp-1 is now paused")

	if _, err := c.run("step", "camp-1"); !errors.Is(err, campaign.ErrNotActive) {
		t.Fatalf("expected not active, got %v", err)
	}

	out = c.mustRun("list", "--status", "paused")
	expectContains(t, out, "camp-1")
	if strings.Contains(out, "camp-2") {
		t.Fatalf("expected status filter to hide camp-2:\n%s", out)
	}

	out = c.mustRun("archive", "camp-2")
	expectContains(t, out, "camp-2 is now archived")
	if _, err := c.run("status", "camp-2", "active"); !errors.Is(err, campaign.ErrInvalidStatusTransition) {
		t.Fatalf("expected archived to be terminal, got %v", err)
	}
	if _, err := c.run("status", "camp-1", "sleeping"); err == nil {
		t.Fatal("expected unknown status error")
	}
}

func TestArchiveExportsToDirectory(t *testing.T) {
	c := newCLI(t)
	dir := t.TempDir()
	t.Setenv("CAMPAIGNLOG_ARCHIVE_DRIVER", "fs")
	t.Setenv("CAMPAIGNLOG_ARCHIVE_DIR", dir)

	c.mustRun("create", "Harbor", "--seed", "S1")
	c.mustRun("step", "camp-1", "--count", "2")
	out := c.mustRun("archive", "camp-1")
	expectContains(t, out, "Exported 3 events to campaigns/camp-1/events-3.ndjson")
}

func TestUnknownCampaign(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{
		{"show", "ghost"},
		{"resume", "ghost"},
		{"step", "ghost"},
		{"verify", "ghost"},
		{"events", "ghost"},
		{"snapshots", "ghost"},
		{"branches", "ghost"},
	} {
		if _, err := c.run(args...); !errors.Is(err, campaign.ErrNotFound) {
			t.Fatalf("%v: expected campaign not found, got %v", args, err)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	c := newCLI(t)
	if _, err := c.run("create", "Harbor"); !errors.Is(err, campaign.ErrEmptySeed) {
		t.Fatalf("expected empty seed error, got %v", err)
	}
	if _, err := c.run("create", "Harbor", "--seed", "S1", "--state", "[1,2]"); err == nil {
		t.Fatal("expected non-object state to be rejected")
	}
	if _, err := c.run("step", "camp-1", "--count", "0"); err == nil {
		t.Fatal("expected count error")
	}
}

func TestRunUsesMemoryDriver(t *testing.T) {
	t.Setenv("CAMPAIGNLOG_EVENT_HMAC_KEY", "cli-test-secret")
	t.Setenv("CAMPAIGNLOG_OTEL_ENDPOINT", "")
	var out bytes.Buffer
	if err := Run(context.Background(), []string{"--driver", "memory", "--no-color", "list"}, &out, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	expectContains(t, out.String(), "No campaigns found")
}

func TestFlagsOverrideConfig(t *testing.T) {
	c := newCLI(t)
	c.mustRun("create", "Harbor", "--seed", "S1")
	out := c.mustRun("--cadence", "2", "step", "camp-1", "--count", "3")
	expectContains(t, out, "seq 2 [snapshot]", "seq 4 [snapshot]")
}
