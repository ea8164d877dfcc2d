// Package campaign defines the campaign lifecycle model and the coded errors
// surfaced by the campaign store.
//
// A campaign is one simulation timeline: an identity, a deterministic seed, a
// status and an append-only event log. Branches are campaigns whose log starts
// with a copy of another campaign's prefix; the parent and branch point are
// provenance only.
package campaign
