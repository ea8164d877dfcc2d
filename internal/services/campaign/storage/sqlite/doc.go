// Package sqlite opens the SQLite-backed campaign store.
//
// Connections run in WAL mode with foreign keys on, a busy timeout, and
// immediate transactions, so two writers on the same database queue on the
// write lock instead of failing with SQLITE_BUSY at commit time.
package sqlite
