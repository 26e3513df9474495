package reconciler

import "sync"

// Progress mirrors sincronizar.rs's ProcessingMetrics, broadcast to any
// subscriber (the Command Channel's sync-status stream, spec.md §4.10).
type Progress struct {
	TotalUsers     int      `json:"total_users"`
	ProcessedUsers int      `json:"processed_users"`
	Errors         []string `json:"errors"`
}

// Percent computes the same integer progress percentage as SyncStatus::update.
func (p Progress) Percent() int {
	if p.TotalUsers == 0 {
		return 100
	}
	return int(float64(p.ProcessedUsers) / float64(p.TotalUsers) * 100.0)
}

// broadcaster fans out Progress updates to subscribed channels, grounded on
// SyncStatus's tokio::sync::broadcast::Sender.
type broadcaster struct {
	mu    sync.Mutex
	subs  map[chan Progress]struct{}
	state Progress
}

func newBroadcaster(total int) *broadcaster {
	return &broadcaster{
		subs:  make(map[chan Progress]struct{}),
		state: Progress{TotalUsers: total},
	}
}

// subscribe returns a channel that receives every future update. Callers
// must call the returned cancel func when done.
func (b *broadcaster) subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 8)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}
}

// update advances processed by delta, appends errMsg if non-empty, and
// publishes the new state to every subscriber — grounded on
// SyncStatus::update.
func (b *broadcaster) update(delta int, errMsg string) Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.ProcessedUsers += delta
	if errMsg != "" {
		b.state.Errors = append(b.state.Errors, errMsg)
	}
	snapshot := b.state
	for ch := range b.subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return snapshot
}
