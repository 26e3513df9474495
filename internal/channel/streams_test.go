package channel

import (
	"testing"

	"vpnctl/internal/reconciler"
)

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 {
		t.Errorf("boolToInt(true) = %d, want 1", boolToInt(true))
	}
	if boolToInt(false) != 0 {
		t.Errorf("boolToInt(false) = %d, want 0", boolToInt(false))
	}
}

func TestSyncState(t *testing.T) {
	tests := []struct {
		name string
		p    reconciler.Progress
		want string
	}{
		{"in progress", reconciler.Progress{TotalUsers: 10, ProcessedUsers: 3}, "running"},
		{"complete", reconciler.Progress{TotalUsers: 10, ProcessedUsers: 10}, "complete"},
		{"zero total treated complete", reconciler.Progress{TotalUsers: 0, ProcessedUsers: 0}, "complete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := syncState(tt.p); got != tt.want {
				t.Errorf("syncState(%+v) = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}
