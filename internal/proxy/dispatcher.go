// Package proxy implements the Proxy Listener & Dispatcher (C8) and the
// three Proxy Session Bridges (C9), grounded on
// original_source/src/proxy_server.rs's start_proxy_server /
// handle_proxy_conn and src/proxy.rs's ConexoesAtivas bookkeeping, extended
// per spec.md §4.8/§4.9 with the 14-byte three-way classification
// (raw/WS/HTTP), keepalive frames, and the 300s inactivity timeout — none
// of which the original source implements.
package proxy

import (
	"bufio"
	"context"
	"net"
	"time"

	"vpnctl/internal/activeconn"
	"vpnctl/internal/models"
	"vpnctl/internal/presence"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// peekTimeout bounds how long the dispatcher waits for the first bytes of a
// new connection before giving up (spec.md §4.8).
const peekTimeout = 5 * time.Second

// connectionTimeout is the inactivity window after which a bridge tears
// down both flows (spec.md §4.9 step 5).
const connectionTimeout = 300 * time.Second

// keepaliveInterval is the quiet-period threshold at which a bridge emits
// its kind-specific keepalive (spec.md §4.9 step 6).
const keepaliveInterval = 30 * time.Second

// Authorizer resolves a uuid to its authoritative user record (C1), so a
// bridge can populate the live-session entry it writes on authorization.
type Authorizer interface {
	GetByUUID(uuid string) (*models.User, error)
}

// Dispatcher binds the proxy listener and classifies each new connection
// into one of the three bridge kinds.
type Dispatcher struct {
	upstreamAddr string
	authz        Authorizer
	registry     *activeconn.Registry
	presence     *presence.Store
	log          *logrus.Logger
}

// New constructs a Dispatcher. upstreamAddr is the loopback address the
// configured upstream (xray/v2ray) listens on.
func New(upstreamAddr string, authz Authorizer, registry *activeconn.Registry, pr *presence.Store, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{upstreamAddr: upstreamAddr, authz: authz, registry: registry, presence: pr, log: log}
}

// Serve accepts connections on addr until ctx is cancelled, grounded on
// start_proxy_server's accept loop.
func (d *Dispatcher) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	d.log.WithField("addr", addr).Info("proxy listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				d.log.WithError(err).Warn("accept failed")
				continue
			}
		}
		go d.handle(ctx, conn)
	}
}

func (d *Dispatcher) handle(ctx context.Context, conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(30 * time.Second)
	}

	conn.SetReadDeadline(time.Now().Add(peekTimeout))
	r := bufio.NewReaderSize(conn, 4096)
	peek, err := r.Peek(14)
	conn.SetReadDeadline(time.Time{})
	if err != nil && len(peek) == 0 {
		d.log.WithError(err).Debug("peek failed, closing connection")
		conn.Close()
		return
	}

	switch classify(peek) {
	case kindWebSocket:
		d.bridgeWebSocket(ctx, conn, r)
	case kindHTTP:
		d.bridgeHTTP(ctx, conn, r)
	default:
		d.bridgeRaw(ctx, conn, r)
	}
}

// authorize resolves uuid against the authoritative store (C1), returning
// nil if unknown or on any store error.
func (d *Dispatcher) authorize(uuid string) *models.User {
	u, err := d.authz.GetByUUID(uuid)
	if err != nil {
		return nil
	}
	return u
}

// beginSession registers id in the active-connections map and writes its
// live-session presence entry (spec.md §3), tagged by uuid per the
// xray/v2ray convention (observer.go's observeXray uses the same tag).
func (d *Dispatcher) beginSession(ctx context.Context, id uuid.UUID, u *models.User) chan struct{} {
	cancel := d.registry.Register(id)
	now := time.Now().Unix()
	entry := presence.Entry{
		Status:       presence.On,
		Kind:         string(u.Kind),
		SessionStart: now,
		Owner:        u.Owner,
		OwnerID:      u.OwnerID,
		Limit:        u.Limit,
		LastSeen:     now,
	}
	if err := d.presence.PutEntry(ctx, u.Login, id.String(), entry); err != nil {
		d.log.WithError(err).WithField("login", u.Login).Warn("failed to write presence entry")
	}
	return cancel
}

// endSession tears down the active-connections entry and deletes the
// live-session presence entry, mirroring beginSession.
func (d *Dispatcher) endSession(ctx context.Context, id uuid.UUID, cancel chan struct{}, login string) {
	d.registry.Remove(id, cancel)
	if err := d.presence.DeleteEntry(ctx, login, id.String()); err != nil {
		d.log.WithError(err).WithField("login", login).Debug("failed to delete presence entry")
	}
}

type connKind int

const (
	kindRaw connKind = iota
	kindWebSocket
	kindHTTP
)

// classify inspects the first bytes of a connection per spec.md §4.8's
// table: an HTTP request line with Upgrade semantics is WebSocket; any
// other recognizable HTTP method line is HTTP-framed VLESS; anything else
// is raw TCP VLESS.
func classify(peek []byte) connKind {
	s := string(peek)
	if len(s) >= 3 && s[:3] == "GET" {
		// Disambiguating WS vs. plain HTTP GET requires the Upgrade header,
		// which arrives later in the request; the dispatcher peeks only the
		// first 14 bytes and defers to the WS bridge, which hands the
		// request to the HTTP-framed bridge if no Upgrade header follows.
		return kindWebSocket
	}
	if len(s) >= 4 && s[:4] == "POST" {
		return kindHTTP
	}
	return kindRaw
}
