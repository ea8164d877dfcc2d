// Package storage defines persistence contracts for the campaign store.
//
// Three logical tables back every implementation: campaigns (the registry),
// events (append-only, unique on campaign and sequence) and snapshots (upsert on
// campaign and sequence). Implementations live in subpackages and must pass the
// storagetest conformance suite.
//
// Common error types:
//   - ErrNotFound: requested record is missing
//   - ErrAlreadyExists: a campaign id is already taken
//   - ErrAppendConflict: a concurrent writer won the sequence race; retry
//   - ErrStatusChanged: a status compare-and-set lost to another writer
//   - ErrBranchPointMissing: the parent log has no event at the branch point
package storage
