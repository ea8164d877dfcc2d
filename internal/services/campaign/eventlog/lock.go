package eventlog

import (
	"context"
	"sync"
)

// campaignLocks hands out one lock per campaign id. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type campaignLocks struct {
	mu    sync.Mutex
	locks map[string]*campaignLock
}

type campaignLock struct {
	ch   chan struct{}
	refs int
}

func newCampaignLocks() *campaignLocks {
	return &campaignLocks{locks: make(map[string]*campaignLock)}
}

// acquire blocks until the campaign lock is held or ctx is done. The
// returned func releases the lock.
func (c *campaignLocks) acquire(ctx context.Context, campaignID string) (func(), error) {
	c.mu.Lock()
	entry, ok := c.locks[campaignID]
	if !ok {
		entry = &campaignLock{ch: make(chan struct{}, 1)}
		c.locks[campaignID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			c.release(campaignID, entry)
		}, nil
	case <-ctx.Done():
		c.release(campaignID, entry)
		return nil, ctx.Err()
	}
}

func (c *campaignLocks) release(campaignID string, entry *campaignLock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(c.locks, campaignID)
	}
}

func (c *campaignLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
