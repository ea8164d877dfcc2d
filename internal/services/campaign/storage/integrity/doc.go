// Package integrity provides the checksum, chain hash and signing helpers that
// make the campaign event log tamper-evident.
//
// Every event carries a checksum of its canonical payload, a chain hash linking
// it to its predecessor within the campaign, and an HMAC signature over the
// chain hash using a key derived per campaign. Snapshots carry a checksum bound
// to their campaign and sequence.
package integrity
