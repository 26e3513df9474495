package channel

import (
	"testing"

	"vpnctl/internal/reconciler"
)

func TestSyncTrackerLatestEmptyByDefault(t *testing.T) {
	tr := NewSyncTracker()
	ch, active := tr.Latest()
	if active {
		t.Errorf("active = true, want false before any publish")
	}
	if ch != nil {
		t.Errorf("channel = %v, want nil before any publish", ch)
	}
}

func TestSyncTrackerPublishThenLatest(t *testing.T) {
	tr := NewSyncTracker()
	progress := make(chan reconciler.Progress, 1)
	progress <- reconciler.Progress{TotalUsers: 2, ProcessedUsers: 1}

	tr.publish(progress)

	ch, active := tr.Latest()
	if !active {
		t.Fatalf("active = false, want true after publish")
	}
	p := <-ch
	if p.TotalUsers != 2 || p.ProcessedUsers != 1 {
		t.Errorf("got %+v, want {TotalUsers:2 ProcessedUsers:1}", p)
	}
}

func TestSyncTrackerPublishReplacesEarlierSync(t *testing.T) {
	tr := NewSyncTracker()
	first := make(chan reconciler.Progress)
	second := make(chan reconciler.Progress, 1)
	second <- reconciler.Progress{TotalUsers: 9}

	tr.publish(first)
	tr.publish(second)

	ch, active := tr.Latest()
	if !active {
		t.Fatalf("active = false, want true")
	}
	if ch != (<-chan reconciler.Progress)(second) {
		t.Errorf("Latest() did not return the most recently published channel")
	}
}
