// Package timeouts defines shared timeout constants for campaign storage and
// command entrypoints.
package timeouts

import "time"

// StoreOpen caps the wait time when opening and migrating a backing store.
const StoreOpen = 10 * time.Second

// SQLiteBusy is the busy_timeout applied to SQLite connections so that
// concurrent writers queue instead of failing immediately.
const SQLiteBusy = 5 * time.Second

// AppendRetryBackoff is the base pause between append conflict retries.
const AppendRetryBackoff = 5 * time.Millisecond

// SnapshotWrite limits how long a background snapshot may run.
const SnapshotWrite = 10 * time.Second

// Shutdown limits how long a command waits for pending snapshots and
// telemetry flushes while stopping.
const Shutdown = 5 * time.Second
