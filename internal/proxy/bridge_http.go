package proxy

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// bridgeHTTP implements Proxy Session Bridge C: HTTP-framed VLESS. Unlike
// bridges A and B, the original Rust source has no precedent for this
// bridge (SPEC_FULL.md Supplemented Feature #7) — it is built by extension
// of bridgeRaw's handshake-forward-then-copy idiom, substituting the raw
// 17-byte prefix for a captured HTTP request head.
func (d *Dispatcher) bridgeHTTP(ctx context.Context, conn net.Conn, r *bufio.Reader) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(peekTimeout))
	raw, req, err := readHTTPHead(r)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		return
	}
	d.bridgeHTTPWith(ctx, conn, raw, req)
}

// bridgeHTTPRequest handles the fallback from bridgeWebSocket when a "GET"
// connection turns out not to carry an Upgrade header.
func (d *Dispatcher) bridgeHTTPRequest(ctx context.Context, conn net.Conn, req *http.Request) {
	defer conn.Close()
	raw, err := reconstructHead(req)
	if err != nil {
		return
	}
	d.bridgeHTTPWith(ctx, conn, raw, req)
}

func (d *Dispatcher) bridgeHTTPWith(ctx context.Context, conn net.Conn, rawHead []byte, req *http.Request) {
	id, ok := extractHTTPUUID(req)
	if !ok {
		conn.Write([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"))
		return
	}

	u := d.authorize(id.String())
	if u == nil {
		conn.Write([]byte("HTTP/1.1 403 Forbidden\r\nContent-Length: 0\r\n\r\n"))
		return
	}

	cancel := d.beginSession(ctx, id, u)
	defer d.endSession(ctx, id, cancel, u.Login)

	upstream, err := net.Dial("tcp", d.upstreamAddr)
	if err != nil {
		return
	}
	defer upstream.Close()
	if _, err := upstream.Write(rawHead); err != nil {
		return
	}

	var lastActivity int64 = time.Now().UnixNano()
	done := make(chan struct{})
	stop := make(chan struct{})
	defer closeOnce(stop)
	go idleWatch(&lastActivity, connectionTimeout, keepaliveInterval, func() {
		conn.Write([]byte("\r\n"))
	}, done, stop)

	go func() {
		pump(upstream, conn, &lastActivity, done)
		closeOnce(done)
	}()
	go func() {
		pump(conn, upstream, &lastActivity, done)
		closeOnce(done)
	}()

	select {
	case <-done:
	case <-cancel:
	case <-ctx.Done():
	}
}

// extractHTTPUUID resolves the connection's uuid per spec.md §4.9 step 1:
// the X-UUID header first, then the first path segment that parses as a
// UUID.
func extractHTTPUUID(req *http.Request) (uuid.UUID, bool) {
	if h := req.Header.Get("X-UUID"); h != "" {
		if id, err := uuid.Parse(h); err == nil {
			return id, true
		}
	}
	for _, seg := range strings.Split(req.URL.Path, "/") {
		if id, err := uuid.Parse(seg); err == nil {
			return id, true
		}
	}
	return uuid.UUID{}, false
}

// readHTTPHead reads raw bytes up to and including the blank line
// terminating an HTTP request head, returning both the raw bytes (for
// verbatim forwarding) and the parsed request.
func readHTTPHead(r *bufio.Reader) ([]byte, *http.Request, error) {
	var buf bytes.Buffer
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return nil, nil, err
		}
		buf.Write(line)
		if len(strings.TrimRight(string(line), "\r\n")) == 0 {
			break
		}
	}
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(buf.Bytes())))
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), req, nil
}

// reconstructHead re-serializes an already-parsed *http.Request's head,
// used only on the WS-upgrade-fallback path where the original raw bytes
// were already consumed by http.ReadRequest.
func reconstructHead(req *http.Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := req.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
