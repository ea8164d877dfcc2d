// Package memory implements the campaign store in process memory. It backs
// tests and ephemeral runs; nothing survives Close.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

var _ storage.Store = (*Store)(nil)

// journal holds one campaign. Its mutex orders writers on that campaign only.
type journal struct {
	mu        sync.RWMutex
	record    storage.CampaignRecord
	events    []event.Event
	snapshots map[uint64]storage.Snapshot
}

// Store keeps campaigns, events and snapshots in memory. The store mutex
// guards the campaign index; each journal guards its own contents, so writers
// on different campaigns never wait on each other.
type Store struct {
	mu        sync.RWMutex
	campaigns map[string]*journal
	keyring   *integrity.Keyring
	now       func() time.Time
	closed    bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty store sealing events with keyring.
func New(keyring *integrity.Keyring, opts ...Option) (*Store, error) {
	if keyring == nil {
		return nil, fmt.Errorf("event integrity keyring is required")
	}
	s := &Store{
		campaigns: make(map[string]*journal),
		keyring:   keyring,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Close drops all data.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = nil
	s.closed = true
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("storage is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// lookup returns the journal of campaignID, holding the index lock only for
// the map read.
func (s *Store) lookup(campaignID string) (*journal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.campaigns[campaignID]
	return j, ok
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func requireID(campaignID string) error {
	if strings.TrimSpace(campaignID) == "" {
		return fmt.Errorf("campaign id is required")
	}
	return nil
}

func validateRecord(rec storage.CampaignRecord) error {
	if err := requireID(rec.ID); err != nil {
		return err
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("campaign name is required")
	}
	if strings.TrimSpace(rec.Seed) == "" {
		return fmt.Errorf("campaign seed is required")
	}
	if !rec.Status.Valid() {
		return fmt.Errorf("campaign status %q is invalid", rec.Status)
	}
	return nil
}

func cloneRecord(rec storage.CampaignRecord) storage.CampaignRecord {
	if rec.ArchivedAt != nil {
		at := *rec.ArchivedAt
		rec.ArchivedAt = &at
	}
	return rec
}

func cloneEvent(evt event.Event) event.Event {
	evt.PayloadJSON = append([]byte(nil), evt.PayloadJSON...)
	return evt
}

func cloneSnapshot(snap storage.Snapshot) storage.Snapshot {
	snap.State = snap.State.Clone()
	return snap
}

func (s *Store) seal(evt event.Event, prevChainHash string) (event.Event, error) {
	sealed, err := integrity.Seal(evt, prevChainHash, s.keyring)
	if err != nil {
		return event.Event{}, fmt.Errorf("seal event campaign_id=%s seq=%d: %w", evt.CampaignID, evt.Seq, err)
	}
	return sealed, nil
}

// CreateCampaign stores the record and its sealed first event.
func (s *Store) CreateCampaign(ctx context.Context, rec storage.CampaignRecord, first event.Event) (storage.CampaignRecord, event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}
	if err := validateRecord(rec); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}

	now := s.timestamp()
	first = cloneEvent(first)
	first.CampaignID = rec.ID
	first.Seq = 1
	if first.Timestamp.IsZero() {
		first.Timestamp = now
	}
	first.Timestamp = first.Timestamp.UTC().Truncate(time.Millisecond)
	if err := first.Validate(); err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}
	sealed, err := s.seal(first, "")
	if err != nil {
		return storage.CampaignRecord{}, event.Event{}, err
	}

	rec.CurrentSeq = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.LastActivityAt = first.Timestamp
	if rec.OriginCampaignID == "" {
		rec.OriginCampaignID = rec.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.CampaignRecord{}, event.Event{}, fmt.Errorf("storage is not configured")
	}
	if _, ok := s.campaigns[rec.ID]; ok {
		return storage.CampaignRecord{}, event.Event{}, fmt.Errorf("insert campaign id=%s: %w", rec.ID, storage.ErrAlreadyExists)
	}
	s.campaigns[rec.ID] = &journal{
		record:    cloneRecord(rec),
		events:    []event.Event{sealed},
		snapshots: make(map[uint64]storage.Snapshot),
	}
	return rec, cloneEvent(sealed), nil
}

// GetCampaign returns the record for campaignID.
func (s *Store) GetCampaign(ctx context.Context, campaignID string) (storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, err
	}
	if err := requireID(campaignID); err != nil {
		return storage.CampaignRecord{}, err
	}
	j, ok := s.lookup(campaignID)
	if !ok {
		return storage.CampaignRecord{}, storage.ErrNotFound
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return cloneRecord(j.record), nil
}

// ListCampaigns returns campaigns ordered by most recent activity.
func (s *Store) ListCampaigns(ctx context.Context, req storage.ListCampaignsRequest) ([]storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	statuses := make(map[campaign.Status]struct{}, len(req.Statuses))
	for _, status := range req.Statuses {
		statuses[status] = struct{}{}
	}

	s.mu.RLock()
	journals := make([]*journal, 0, len(s.campaigns))
	for _, j := range s.campaigns {
		journals = append(journals, j)
	}
	s.mu.RUnlock()

	records := make([]storage.CampaignRecord, 0, len(journals))
	for _, j := range journals {
		j.mu.RLock()
		rec := cloneRecord(j.record)
		j.mu.RUnlock()
		if len(statuses) > 0 {
			if _, ok := statuses[rec.Status]; !ok {
				continue
			}
		}
		if req.ParentCampaignID != "" && rec.ParentCampaignID != req.ParentCampaignID {
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, k int) bool {
		a, b := records[i], records[k]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if req.Limit > 0 && len(records) > req.Limit {
		records = records[:req.Limit]
	}
	return records, nil
}

// UpdateCampaignStatus applies a compare-and-set status change.
func (s *Store) UpdateCampaignStatus(ctx context.Context, update storage.StatusUpdate) (storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, err
	}
	if err := requireID(update.CampaignID); err != nil {
		return storage.CampaignRecord{}, err
	}
	if !update.To.Valid() {
		return storage.CampaignRecord{}, fmt.Errorf("campaign status %q is invalid", update.To)
	}
	at := update.At
	if at.IsZero() {
		at = s.timestamp()
	}
	at = at.UTC().Truncate(time.Millisecond)

	j, ok := s.lookup(update.CampaignID)
	if !ok {
		return storage.CampaignRecord{}, storage.ErrNotFound
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.record.Status != update.From {
		return storage.CampaignRecord{}, storage.ErrStatusChanged
	}
	j.record.Status = update.To
	j.record.UpdatedAt = at
	if update.To == campaign.StatusArchived {
		j.record.ArchivedAt = &at
	}
	return cloneRecord(j.record), nil
}

// AppendEvent assigns the next sequence and stores the sealed event.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}
	evt = cloneEvent(evt)
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.timestamp()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	j, ok := s.lookup(evt.CampaignID)
	if !ok {
		return event.Event{}, storage.ErrNotFound
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.record.Status.AcceptsEvents() {
		return event.Event{}, &storage.InactiveError{Status: j.record.Status}
	}
	evt.Seq = j.record.CurrentSeq + 1
	prevHash := ""
	if n := len(j.events); n > 0 {
		prevHash = j.events[n-1].ChainHash
	}
	sealed, err := s.seal(evt, prevHash)
	if err != nil {
		return event.Event{}, err
	}
	j.events = append(j.events, sealed)
	j.record.CurrentSeq = sealed.Seq
	j.record.UpdatedAt = sealed.Timestamp
	j.record.LastActivityAt = sealed.Timestamp
	return cloneEvent(sealed), nil
}

// GetEventBySeq returns one event.
func (s *Store) GetEventBySeq(ctx context.Context, campaignID string, seq uint64) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	if err := requireID(campaignID); err != nil {
		return event.Event{}, err
	}
	j, ok := s.lookup(campaignID)
	if !ok {
		return event.Event{}, storage.ErrNotFound
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if seq == 0 || seq > uint64(len(j.events)) {
		return event.Event{}, storage.ErrNotFound
	}
	return cloneEvent(j.events[seq-1]), nil
}

// ListEvents returns up to limit events after afterSeq in ascending order.
func (s *Store) ListEvents(ctx context.Context, campaignID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := requireID(campaignID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	j, ok := s.lookup(campaignID)
	if !ok {
		return []event.Event{}, nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if afterSeq >= uint64(len(j.events)) {
		return []event.Event{}, nil
	}
	tail := j.events[afterSeq:]
	if len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]event.Event, 0, len(tail))
	for _, evt := range tail {
		out = append(out, cloneEvent(evt))
	}
	return out, nil
}

// GetLatestEventSeq returns the campaign's committed sequence.
func (s *Store) GetLatestEventSeq(ctx context.Context, campaignID string) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if err := requireID(campaignID); err != nil {
		return 0, err
	}
	j, ok := s.lookup(campaignID)
	if !ok {
		return 0, storage.ErrNotFound
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.record.CurrentSeq, nil
}

// PutSnapshot upserts a snapshot keyed by campaign and sequence.
func (s *Store) PutSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := requireID(snapshot.CampaignID); err != nil {
		return err
	}
	if len(snapshot.State) == 0 {
		return fmt.Errorf("snapshot state is required")
	}
	if strings.TrimSpace(snapshot.Checksum) == "" {
		return fmt.Errorf("snapshot checksum is required")
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = s.timestamp()
	}

	j, ok := s.lookup(snapshot.CampaignID)
	if !ok {
		return storage.ErrNotFound
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snapshots[snapshot.Seq] = cloneSnapshot(snapshot)
	return nil
}

// GetSnapshot retrieves the snapshot at seq.
func (s *Store) GetSnapshot(ctx context.Context, campaignID string, seq uint64) (storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Snapshot{}, err
	}
	if err := requireID(campaignID); err != nil {
		return storage.Snapshot{}, err
	}
	j, ok := s.lookup(campaignID)
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	snap, ok := j.snapshots[seq]
	if !ok {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// GetLatestSnapshot retrieves the greatest-seq snapshot for a campaign.
func (s *Store) GetLatestSnapshot(ctx context.Context, campaignID string) (storage.Snapshot, error) {
	list, err := s.ListSnapshots(ctx, campaignID, 1)
	if err != nil {
		return storage.Snapshot{}, err
	}
	if len(list) == 0 {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return list[0], nil
}

// ListSnapshots returns snapshots ordered by seq descending.
func (s *Store) ListSnapshots(ctx context.Context, campaignID string, limit int) ([]storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if err := requireID(campaignID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	j, ok := s.lookup(campaignID)
	if !ok {
		return nil, nil
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]storage.Snapshot, 0, len(j.snapshots))
	for _, snap := range j.snapshots {
		out = append(out, cloneSnapshot(snap))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Seq > out[k].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateBranch inserts the branch record with the parent prefix re-sealed
// under the branch id. Nothing is stored unless the whole copy succeeds.
func (s *Store) CreateBranch(ctx context.Context, req storage.BranchRequest) (storage.CampaignRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CampaignRecord{}, err
	}
	rec := req.Record
	if err := validateRecord(rec); err != nil {
		return storage.CampaignRecord{}, err
	}
	parentID := strings.TrimSpace(rec.ParentCampaignID)
	if parentID == "" {
		return storage.CampaignRecord{}, fmt.Errorf("parent campaign id is required")
	}
	if req.UptoSeq == 0 {
		return storage.CampaignRecord{}, storage.ErrBranchPointMissing
	}

	now := s.timestamp()
	rec.CurrentSeq = req.UptoSeq
	rec.BranchPointSeq = req.UptoSeq
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.LastActivityAt = now

	parent, ok := s.lookup(parentID)
	if !ok {
		return storage.CampaignRecord{}, storage.ErrNotFound
	}
	// Sealed events are never modified, so the prefix can be re-sealed after
	// the parent lock is released.
	parent.mu.RLock()
	if req.UptoSeq > parent.record.CurrentSeq || req.UptoSeq > uint64(len(parent.events)) {
		parent.mu.RUnlock()
		return storage.CampaignRecord{}, storage.ErrBranchPointMissing
	}
	prefix := parent.events[:req.UptoSeq:req.UptoSeq]
	parent.mu.RUnlock()

	copied := make([]event.Event, 0, req.UptoSeq)
	prevChain := ""
	for _, parentEvt := range prefix {
		sealed, err := s.seal(event.Event{
			CampaignID:    rec.ID,
			Seq:           parentEvt.Seq,
			Type:          parentEvt.Type,
			SchemaVersion: parentEvt.SchemaVersion,
			PayloadJSON:   append([]byte(nil), parentEvt.PayloadJSON...),
			Timestamp:     parentEvt.Timestamp,
		}, prevChain)
		if err != nil {
			return storage.CampaignRecord{}, err
		}
		copied = append(copied, sealed)
		prevChain = sealed.ChainHash
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.CampaignRecord{}, fmt.Errorf("storage is not configured")
	}
	if _, ok := s.campaigns[rec.ID]; ok {
		return storage.CampaignRecord{}, fmt.Errorf("insert campaign id=%s: %w", rec.ID, storage.ErrAlreadyExists)
	}
	s.campaigns[rec.ID] = &journal{
		record:    cloneRecord(rec),
		events:    copied,
		snapshots: make(map[uint64]storage.Snapshot),
	}
	return rec, nil
}
