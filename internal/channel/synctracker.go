package channel

import (
	"sync"

	"vpnctl/internal/reconciler"
)

// SyncTracker hands the sync-status stream (ServeSyncStatus) a way to find
// whichever reconciliation SYNC most recently started, without coupling the
// control endpoint's dispatch to any particular stream connection — grounded
// on handler.rs's single shared SyncStatus being readable from any socket.
type SyncTracker struct {
	mu     sync.Mutex
	latest <-chan reconciler.Progress
}

// NewSyncTracker constructs an empty tracker.
func NewSyncTracker() *SyncTracker {
	return &SyncTracker{}
}

// publish records progress as the most recently started sync's feed.
func (t *SyncTracker) publish(progress <-chan reconciler.Progress) {
	t.mu.Lock()
	t.latest = progress
	t.mu.Unlock()
}

// Latest returns the most recently started sync's progress feed, if any.
func (t *SyncTracker) Latest() (<-chan reconciler.Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest, t.latest != nil
}
