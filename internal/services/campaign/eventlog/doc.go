// Package eventlog is the append-only, per-campaign event journal.
//
// Appends to one campaign are serialized twice: an in-process lock keeps
// goroutines of this process from racing, and the store's transactional
// fetch-and-increment keeps other processes sharing the database from
// assigning the same sequence. A lost race surfaces as an append conflict,
// which Append retries a bounded number of times before reporting the store
// as unavailable. Different campaigns never share a lock.
//
// Reads stream through Events, which pages the store lazily and can resume
// from any sequence.
package eventlog
