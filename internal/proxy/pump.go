package proxy

import (
	"io"
	"sync/atomic"
	"time"
)

// copyBufSize is the bridge's bidirectional copy buffer size (spec.md §4.9
// step 5).
const copyBufSize = 32 * 1024

// pump copies from src to dst in 32 KiB chunks, bumping lastActivity on
// every successful transfer, until src/dst errors or done closes.
func pump(dst io.Writer, src io.Reader, lastActivity *int64, done <-chan struct{}) error {
	buf := make([]byte, copyBufSize)
	for {
		select {
		case <-done:
			return nil
		default:
		}
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			atomic.StoreInt64(lastActivity, time.Now().UnixNano())
		}
		if err != nil {
			return err
		}
	}
}

// idleWatch closes done once more than timeout has elapsed since the last
// activity timestamp, or fires keepalive every keepaliveInterval of quiet
// (spec.md §4.9 steps 5-6). It returns once it has closed done itself or
// stop is closed; a caller closing done does not stop it.
func idleWatch(lastActivity *int64, timeout, keepaliveEvery time.Duration, keepalive func(), done chan<- struct{}, stop <-chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	var lastKeepalive time.Time

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			last := time.Unix(0, atomic.LoadInt64(lastActivity))
			idle := time.Since(last)
			if idle > timeout {
				closeOnce(done)
				return
			}
			if idle > keepaliveEvery && time.Since(lastKeepalive) > keepaliveEvery {
				keepalive()
				lastKeepalive = time.Now()
			}
		}
	}
}

func closeOnce(ch chan<- struct{}) {
	defer func() { recover() }()
	close(ch)
}
