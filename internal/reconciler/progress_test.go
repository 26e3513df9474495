package reconciler

import "testing"

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name string
		p    Progress
		want int
	}{
		{"zero total", Progress{TotalUsers: 0, ProcessedUsers: 0}, 100},
		{"half done", Progress{TotalUsers: 10, ProcessedUsers: 5}, 50},
		{"complete", Progress{TotalUsers: 10, ProcessedUsers: 10}, 100},
		{"not started", Progress{TotalUsers: 10, ProcessedUsers: 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBroadcasterUpdate(t *testing.T) {
	b := newBroadcaster(4)
	sub, cancel := b.subscribe()
	defer cancel()

	got := b.update(1, "")
	if got.ProcessedUsers != 1 {
		t.Errorf("ProcessedUsers = %d, want 1", got.ProcessedUsers)
	}
	select {
	case p := <-sub:
		if p.ProcessedUsers != 1 {
			t.Errorf("subscriber got ProcessedUsers = %d, want 1", p.ProcessedUsers)
		}
	default:
		t.Fatal("subscriber received no update")
	}

	got = b.update(0, "boom")
	if len(got.Errors) != 1 || got.Errors[0] != "boom" {
		t.Errorf("Errors = %v, want [\"boom\"]", got.Errors)
	}
}

func TestBroadcasterSubscribeCancelClosesChannel(t *testing.T) {
	b := newBroadcaster(1)
	sub, cancel := b.subscribe()
	cancel()

	if _, ok := <-sub; ok {
		t.Errorf("expected channel closed after cancel, got a value")
	}
}

func TestBroadcasterDoesNotBlockOnFullSubscriber(t *testing.T) {
	b := newBroadcaster(100)
	sub, cancel := b.subscribe()
	defer cancel()

	for i := 0; i < 20; i++ {
		b.update(1, "")
	}
	// subscriber channel has capacity 8; further updates must not block the
	// publisher even though the subscriber never drains.
	if len(sub) == 0 {
		t.Errorf("expected subscriber channel to have buffered updates")
	}
}
