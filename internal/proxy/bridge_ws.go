package proxy

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// bridgeWebSocket implements Proxy Session Bridge B: WebSocket VLESS,
// grounded on proxy_server.rs's handle_ws_vless (tokio-tungstenite), adapted
// to gorilla/websocket's server-upgrade idiom.
func (d *Dispatcher) bridgeWebSocket(ctx context.Context, conn net.Conn, r *bufio.Reader) {
	req, err := http.ReadRequest(r)
	if err != nil {
		conn.Close()
		return
	}

	if !websocket.IsWebSocketUpgrade(req) {
		// Not actually a WebSocket upgrade request (no Upgrade header) —
		// spec.md §4.8's table falls through to HTTP-framed VLESS.
		d.bridgeHTTPRequest(ctx, conn, req)
		return
	}

	responder := &rawResponder{conn: conn}
	ws, err := upgrader.Upgrade(responder, req, nil)
	if err != nil {
		conn.Close()
		return
	}
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(peekTimeout))
	_, handshake, err := ws.ReadMessage()
	ws.SetReadDeadline(time.Time{})
	if err != nil || len(handshake) < handshakeLen {
		ws.WriteMessage(websocket.TextMessage, []byte("UUID INVALIDO"))
		return
	}

	id, err := parseHandshakeUUID(handshake)
	if err != nil {
		ws.WriteMessage(websocket.TextMessage, []byte("UUID INVALIDO"))
		return
	}
	u := d.authorize(id.String())
	if u == nil {
		ws.WriteMessage(websocket.TextMessage, []byte("UUID INVALIDO"))
		return
	}

	cancel := d.beginSession(ctx, id, u)
	defer d.endSession(ctx, id, cancel, u.Login)

	upstream, err := net.Dial("tcp", d.upstreamAddr)
	if err != nil {
		return
	}
	defer upstream.Close()
	if _, err := upstream.Write(handshake); err != nil {
		return
	}

	var lastActivity int64 = time.Now().UnixNano()
	done := make(chan struct{})
	stop := make(chan struct{})
	defer closeOnce(stop)
	go idleWatch(&lastActivity, connectionTimeout, keepaliveInterval, func() {
		ws.WriteMessage(websocket.PingMessage, nil)
	}, done, stop)

	go func() {
		wsToUpstream(ws, upstream, &lastActivity)
		closeOnce(done)
	}()
	go func() {
		pump(wsWriter{ws}, upstream, &lastActivity, done)
		closeOnce(done)
	}()

	select {
	case <-done:
	case <-cancel:
	case <-ctx.Done():
	}
}

// wsToUpstream forwards binary WS frames to upstream until the connection
// closes.
func wsToUpstream(ws *websocket.Conn, upstream net.Conn, lastActivity *int64) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if _, err := upstream.Write(data); err != nil {
			return
		}
		*lastActivity = time.Now().UnixNano()
	}
}

// wsWriter adapts a *websocket.Conn to io.Writer by framing every write as
// one binary message, so pump's generic copy loop can drive it.
type wsWriter struct{ ws *websocket.Conn }

func (w wsWriter) Write(p []byte) (int, error) {
	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// rawResponder adapts a net.Conn to http.ResponseWriter/http.Hijacker so
// gorilla's Upgrader can take over a connection the dispatcher has already
// accepted and partially buffered.
type rawResponder struct {
	conn   net.Conn
	header http.Header
}

func (r *rawResponder) Header() http.Header {
	if r.header == nil {
		r.header = make(http.Header)
	}
	return r.header
}

func (r *rawResponder) Write(p []byte) (int, error) { return r.conn.Write(p) }
func (r *rawResponder) WriteHeader(int)              {}

func (r *rawResponder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw := bufio.NewReadWriter(bufio.NewReader(r.conn), bufio.NewWriter(r.conn))
	return r.conn, rw, nil
}
