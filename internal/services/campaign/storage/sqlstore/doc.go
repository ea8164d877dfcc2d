// Package sqlstore implements the campaign storage contracts over database/sql.
//
// The SQL is shared by the SQLite and Postgres backends; a Dialect supplies
// placeholder rebinding and engine error classification. Every write that
// touches the event log runs in a single transaction whose first statement is
// the write-first fetch-and-increment of campaigns.current_seq, so sequence
// assignment is serialized per campaign by the engine's row lock.
package sqlstore
