// Package activeconn implements the in-memory active-connections map the
// proxy bridges (C9) register cancel signals into, grounded on
// original_source/src/proxy.rs's ConexoesAtivas (a DashMap<Uuid,
// oneshot::Sender<()>>) and the teacher's internal/xray/manager.go's
// sync.RWMutex-guarded map idiom.
package activeconn

import (
	"sync"

	"vpnctl/internal/metrics"

	"github.com/google/uuid"
)

// Registry maps an authorized connection's uuid to a cancel channel.
// Closing the channel fires the cancel signal (close-to-fire semantics, the
// Go equivalent of a oneshot sender).
type Registry struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]chan struct{}
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uuid.UUID]chan struct{})}
}

// Register inserts a fresh cancel channel for id, replacing and dropping
// (not firing) any prior entry for the same uuid — spec.md §4.9 step 3.
func (r *Registry) Register(id uuid.UUID) chan struct{} {
	cancel := make(chan struct{})
	r.mu.Lock()
	r.entries[id] = cancel
	count := len(r.entries)
	r.mu.Unlock()
	metrics.ActiveProxyConnections.Set(float64(count))
	return cancel
}

// Cancel fires and removes the entry for id, if present. Returns true if an
// entry was found.
func (r *Registry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	ch, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if ok {
		close(ch)
	}
	return ok
}

// Remove deletes the entry for id without firing it — used by a bridge's
// own teardown once it has already observed the cancel or terminated for
// another reason (spec.md §4.9 step 7).
func (r *Registry) Remove(id uuid.UUID, ch chan struct{}) {
	r.mu.Lock()
	if current, ok := r.entries[id]; ok && current == ch {
		delete(r.entries, id)
	}
	count := len(r.entries)
	r.mu.Unlock()
	metrics.ActiveProxyConnections.Set(float64(count))
}

// Len reports the current number of active registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
