// Package event defines the campaign event envelope and the versioned payloads
// recorded in a campaign's append-only log.
//
// Events carry the already-computed resulting state of a step, so replay is a
// pure fold that never re-runs simulation logic.
package event
