package activeconn

import (
	"testing"

	"github.com/google/uuid"
)

func TestRegisterAndLen(t *testing.T) {
	r := New()
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 on a fresh registry", r.Len())
	}

	id := uuid.New()
	r.Register(id)
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after Register", r.Len())
	}
}

func TestRegisterReplacesWithoutFiringPriorEntry(t *testing.T) {
	r := New()
	id := uuid.New()

	first := r.Register(id)
	r.Register(id)

	select {
	case <-first:
		t.Errorf("prior cancel channel was fired by a second Register, want it dropped silently")
	default:
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (replacement, not addition)", r.Len())
	}
}

func TestCancelFiresAndRemoves(t *testing.T) {
	r := New()
	id := uuid.New()
	ch := r.Register(id)

	if !r.Cancel(id) {
		t.Fatalf("Cancel() = false, want true for a registered id")
	}
	select {
	case <-ch:
	default:
		t.Errorf("expected the cancel channel to be closed after Cancel")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Cancel", r.Len())
	}
}

func TestCancelUnknownReturnsFalse(t *testing.T) {
	r := New()
	if r.Cancel(uuid.New()) {
		t.Errorf("Cancel() = true for an unregistered id, want false")
	}
}

func TestRemoveOnlyDeletesMatchingChannel(t *testing.T) {
	r := New()
	id := uuid.New()
	first := r.Register(id)

	// A stale reference from a prior generation must not evict the current
	// registration.
	stale := make(chan struct{})
	r.Remove(id, stale)
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (stale Remove must be a no-op)", r.Len())
	}

	r.Remove(id, first)
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after Remove with the matching channel", r.Len())
	}
}
