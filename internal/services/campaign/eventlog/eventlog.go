package eventlog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/louisbranch/campaignlog/internal/platform/timeouts"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/campaign"
	"github.com/louisbranch/campaignlog/internal/services/campaign/domain/event"
	"github.com/louisbranch/campaignlog/internal/services/campaign/observability/metrics"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage"
	"github.com/louisbranch/campaignlog/internal/services/campaign/storage/integrity"
)

const (
	// DefaultMaxAttempts bounds store calls per append.
	DefaultMaxAttempts = 5
	// DefaultPageSize is the number of events read per store round trip.
	DefaultPageSize = 200
)

var (
	// ErrStoreRequired indicates a missing event store.
	ErrStoreRequired = errors.New("event store is required")
	// ErrKeyringRequired indicates a missing integrity keyring.
	ErrKeyringRequired = errors.New("event integrity keyring is required")
)

// Log appends to and reads from campaign event journals.
type Log struct {
	store       storage.EventStore
	keyring     *integrity.Keyring
	locks       *campaignLocks
	maxAttempts int
	backoff     time.Duration
	pageSize    int
	metrics     *metrics.Metrics
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option configures a Log.
type Option func(*Log)

// WithMaxAttempts sets how many times a conflicting append is attempted.
func WithMaxAttempts(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base delay between conflicting attempts. The
// delay grows linearly with the attempt number.
func WithRetryBackoff(d time.Duration) Option {
	return func(l *Log) {
		if d >= 0 {
			l.backoff = d
		}
	}
}

// WithPageSize sets the number of events fetched per page.
func WithPageSize(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithMetrics records appends and conflicts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) {
		l.metrics = m
	}
}

// New builds a Log over store. The keyring verifies chains in Verify.
func New(store storage.EventStore, keyring *integrity.Keyring, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if keyring == nil {
		return nil, ErrKeyringRequired
	}
	l := &Log{
		store:       store,
		keyring:     keyring,
		locks:       newCampaignLocks(),
		maxAttempts: DefaultMaxAttempts,
		backoff:     timeouts.AppendRetryBackoff,
		pageSize:    DefaultPageSize,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Append records payload as the next event of campaignID and returns the
// committed, sealed event. The registry's current sequence and activity time
// move in the same store transaction. A campaign that is no longer active
// when the append commits is CAMPAIGN_NOT_ACTIVE and gets no event.
func (l *Log) Append(ctx context.Context, campaignID string, eventType event.Type, payload any) (event.Event, error) {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return event.Event{}, fmt.Errorf("campaign id is required")
	}
	data, err := event.EncodePayload(payload)
	if err != nil {
		return event.Event{}, err
	}
	evt := event.Event{
		CampaignID:    campaignID,
		Type:          eventType,
		SchemaVersion: event.SchemaVersion,
		PayloadJSON:   data,
	}
	if err := evt.Validate(); err != nil {
		return event.Event{}, err
	}

	unlock, err := l.locks.acquire(ctx, campaignID)
	if err != nil {
		return event.Event{}, err
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		stored, err := l.store.AppendEvent(ctx, evt)
		if err == nil {
			l.metrics.EventAppended(string(stored.Type))
			return stored, nil
		}
		var inactive *storage.InactiveError
		if errors.As(err, &inactive) {
			return event.Event{}, campaign.NotActive(campaignID, inactive.Status)
		}
		if !errors.Is(err, storage.ErrAppendConflict) {
			l.metrics.AppendFailed()
			return event.Event{}, storage.CampaignError(campaignID, "append event", err)
		}
		lastErr = err
		l.metrics.AppendConflict()
		if attempt == l.maxAttempts {
			break
		}
		if err := l.sleep(ctx, l.backoff*time.Duration(attempt)); err != nil {
			return event.Event{}, err
		}
	}
	l.metrics.AppendFailed()
	return event.Event{}, campaign.StoreUnavailable(campaignID,
		fmt.Sprintf("append event after %d attempts", l.maxAttempts), lastErr)
}

// Get returns the event at seq. A missing event or campaign is reported as
// CAMPAIGN_NOT_FOUND.
func (l *Log) Get(ctx context.Context, campaignID string, seq uint64) (event.Event, error) {
	evt, err := l.store.GetEventBySeq(ctx, campaignID, seq)
	if err != nil {
		return event.Event{}, storage.CampaignError(campaignID, "get event", err)
	}
	return evt, nil
}

// Latest returns the campaign's committed sequence.
func (l *Log) Latest(ctx context.Context, campaignID string) (uint64, error) {
	seq, err := l.store.GetLatestEventSeq(ctx, campaignID)
	if err != nil {
		return 0, storage.CampaignError(campaignID, "read latest sequence", err)
	}
	return seq, nil
}

// Events streams the events of campaignID with seq >= fromSeq in ascending
// order. Pages are fetched lazily, so iteration can stop at any point and be
// restarted by calling Events again with a later fromSeq. An unknown
// campaign yields a single CAMPAIGN_NOT_FOUND error. Iteration stops after
// the first error.
func (l *Log) Events(ctx context.Context, campaignID string, fromSeq uint64) iter.Seq2[event.Event, error] {
	return l.events(ctx, campaignID, fromSeq, 0)
}

// EventsUntil is Events bounded to seq <= untilSeq. A zero untilSeq is
// unbounded.
func (l *Log) EventsUntil(ctx context.Context, campaignID string, fromSeq, untilSeq uint64) iter.Seq2[event.Event, error] {
	return l.events(ctx, campaignID, fromSeq, untilSeq)
}

func (l *Log) events(ctx context.Context, campaignID string, fromSeq, untilSeq uint64) iter.Seq2[event.Event, error] {
	return func(yield func(event.Event, error) bool) {
		if _, err := l.Latest(ctx, campaignID); err != nil {
			yield(event.Event{}, err)
			return
		}
		afterSeq := uint64(0)
		if fromSeq > 0 {
			afterSeq = fromSeq - 1
		}
		for {
			if untilSeq > 0 && afterSeq >= untilSeq {
				return
			}
			page, err := l.store.ListEvents(ctx, campaignID, afterSeq, l.pageSize)
			if err != nil {
				yield(event.Event{}, storage.CampaignError(campaignID, "list events", err))
				return
			}
			for _, evt := range page {
				if untilSeq > 0 && evt.Seq > untilSeq {
					return
				}
				if !yield(evt, nil) {
					return
				}
				afterSeq = evt.Seq
			}
			if len(page) < l.pageSize {
				return
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
