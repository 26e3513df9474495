package proxy

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"
)

// bridgeRaw implements Proxy Session Bridge A: raw TCP VLESS, grounded on
// proxy_server.rs's handle_tcp_vless.
func (d *Dispatcher) bridgeRaw(ctx context.Context, conn net.Conn, r *bufio.Reader) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(peekTimeout))
	handshake := make([]byte, handshakeLen)
	if _, err := io.ReadFull(r, handshake); err != nil {
		d.log.WithError(err).Debug("raw bridge: handshake read failed")
		return
	}
	conn.SetReadDeadline(time.Time{})

	id, err := parseHandshakeUUID(handshake)
	if err != nil {
		conn.Write([]byte("UUID INVALIDO\n"))
		return
	}

	u := d.authorize(id.String())
	if u == nil {
		conn.Write([]byte("UUID INVALIDO\n"))
		return
	}

	cancel := d.beginSession(ctx, id, u)
	defer d.endSession(ctx, id, cancel, u.Login)

	upstream, err := net.Dial("tcp", d.upstreamAddr)
	if err != nil {
		d.log.WithError(err).Debug("raw bridge: upstream dial failed")
		return
	}
	defer upstream.Close()
	if tc, ok := upstream.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	if _, err := upstream.Write(handshake); err != nil {
		return
	}

	var lastActivity int64 = time.Now().UnixNano()
	done := make(chan struct{})
	stop := make(chan struct{})
	defer closeOnce(stop)

	go idleWatch(&lastActivity, connectionTimeout, keepaliveInterval, func() {
		upstream.Write([]byte{0})
	}, done, stop)

	go func() {
		pump(upstream, r, &lastActivity, done)
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
