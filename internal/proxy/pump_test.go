package proxy

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestPumpCopiesAndTracksActivity(t *testing.T) {
	src := bytes.NewReader([]byte("hello vless"))
	var dst bytes.Buffer
	var lastActivity int64
	done := make(chan struct{})

	err := pump(&dst, src, &lastActivity, done)
	if err != io.EOF {
		t.Fatalf("pump() error = %v, want io.EOF at end of src", err)
	}
	if dst.String() != "hello vless" {
		t.Errorf("dst = %q, want %q", dst.String(), "hello vless")
	}
	if lastActivity == 0 {
		t.Errorf("lastActivity was never updated")
	}
}

func TestPumpStopsWhenDoneClosed(t *testing.T) {
	r, _ := io.Pipe() // never written to, so a Read would block forever; done is checked first
	var lastActivity int64
	done := make(chan struct{})
	close(done)

	err := pump(io.Discard, r, &lastActivity, done)
	if err != nil {
		t.Errorf("pump() error = %v, want nil when done is already closed", err)
	}
}

func TestCloseOnceDoesNotPanicOnDoubleClose(t *testing.T) {
	ch := make(chan struct{})
	closeOnce(ch)
	closeOnce(ch) // must not panic

	select {
	case <-ch:
	default:
		t.Errorf("channel was not closed")
	}
}

func TestIdleWatchFiresKeepaliveThenTimesOut(t *testing.T) {
	var lastActivity int64
	lastActivity = time.Now().UnixNano()

	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)

	// idleWatch ticks once per second internally; pick a timeout/keepalive
	// window wide enough for at least one keepalive tick to land before the
	// idle timeout fires.
	keepaliveCount := 0
	go idleWatch(&lastActivity, 2500*time.Millisecond, 500*time.Millisecond, func() {
		keepaliveCount++
	}, done, stop)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("idleWatch did not close done before the timeout")
	}
	if keepaliveCount == 0 {
		t.Errorf("expected at least one keepalive before the idle timeout fired")
	}
}
