// Package app wires the campaign store components into one service.
//
// Bootstrap opens the configured backend, keyring and archive sink, then
// builds the event log, snapshot manager, replay engine, registry and branch
// manager on top of it. Service is the query surface consumed by the CLI and
// by any transport layered above it.
package app
