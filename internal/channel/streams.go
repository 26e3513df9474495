package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vpnctl/internal/presence"
	"vpnctl/internal/reconciler"
	"vpnctl/internal/store"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// liveSessionTick is the live-session endpoint's snapshot period (spec.md
// §4.10 — a deliberate 2s deviation from handle_online_socket's 1s loop).
const liveSessionTick = 2 * time.Second

// Streams hosts the three read-only streaming endpoints that share the
// channel's authentication shape but not its control framing, grounded on
// handler.rs's handle_online_socket loop, generalized into three distinct
// feeds per spec.md §4.10.
type Streams struct {
	token      string
	store      *store.Store
	presence   *presence.Store
	reconciler *reconciler.Reconciler
	sync       *SyncTracker
	domain     func() (string, error)
	log        *logrus.Logger
}

// NewStreams constructs a Streams host.
func NewStreams(token string, st *store.Store, pr *presence.Store, rc *reconciler.Reconciler, sync *SyncTracker, domain func() (string, error), log *logrus.Logger) *Streams {
	return &Streams{token: token, store: st, presence: pr, reconciler: rc, sync: sync, domain: domain, log: log}
}

func (s *Streams) authenticate(ws *websocket.Conn) bool {
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return false
	}
	if string(msg) != s.token {
		ws.WriteJSON(map[string]string{"error": "invalid token"})
		return false
	}
	return true
}

// liveSessionUser is one entry in the live-session endpoint's users array,
// matching spec.md §6's documented shape exactly.
type liveSessionUser struct {
	Login      string `json:"login"`
	Kind       string `json:"kind"`
	Limit      int    `json:"limit"`
	Concurrent int    `json:"concurrent"`
	UptimeHMS  string `json:"uptime_hms"`
	Status     string `json:"status"`
	Owner      string `json:"owner"`
	OwnerID    int    `json:"owner_id"`
}

// liveSessionSnapshot is the envelope emitted by the live-session endpoint
// (spec.md §6: `{status:"success", total:N, users:[...]}`).
type liveSessionSnapshot struct {
	Status string            `json:"status"`
	Total  int               `json:"total"`
	Users  []liveSessionUser `json:"users"`
}

// ServeLiveSessions emits one JSON snapshot of every live entry every 2s,
// grounded on handle_online_socket's ticker-push loop.
func (s *Streams) ServeLiveSessions(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()
	if !s.authenticate(ws) {
		return
	}

	ticker := time.NewTicker(liveSessionTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := s.collectLiveSessions(ctx)
			if err != nil {
				if writeErr := ws.WriteJSON(map[string]string{"error": err.Error()}); writeErr != nil {
					return
				}
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(clientCloseDeadline))
			if err := ws.WriteJSON(snapshot); err != nil {
				return
			}
		}
	}
}

func (s *Streams) collectLiveSessions(ctx context.Context) (liveSessionSnapshot, error) {
	keys, err := s.presence.Keys(ctx, "live:*")
	if err != nil {
		return liveSessionSnapshot{}, err
	}
	now := time.Now().Unix()
	users := make([]liveSessionUser, 0, len(keys))
	for _, key := range keys {
		fields, err := s.presence.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		login, _ := presence.SplitLiveKey(key)
		entry := presence.EntryFromFields(fields)
		var uptime int64
		if entry.SessionStart > 0 {
			uptime = now - entry.SessionStart
		}
		users = append(users, liveSessionUser{
			Login:      login,
			Kind:       entry.Kind,
			Limit:      entry.Limit,
			Concurrent: entry.ConcurrentCount,
			UptimeHMS:  uptimeHMS(uptime),
			Status:     string(entry.Status),
			Owner:      entry.Owner,
			OwnerID:    entry.OwnerID,
		})
	}
	return liveSessionSnapshot{Status: "success", Total: len(users), Users: users}, nil
}

// uptimeHMS formats a duration in seconds as spec.md §6's "uptime_hms"
// HH:MM:SS string. Negative or zero durations (clock skew, entries with no
// recorded session_start) render as zero.
func uptimeHMS(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

// ServeSyncStatus relays the most recently started SYNC's progress
// broadcasts, emitting a one-shot "connected" frame first — spec.md §4.10's
// sync-status stream shape. If no SYNC has started yet, it only sends the
// one-shot frame and waits for the client to disconnect.
func (s *Streams) ServeSyncStatus(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()
	if !s.authenticate(ws) {
		return
	}

	progress, active := s.sync.Latest()
	connected := map[string]interface{}{
		"status":       "connected",
		"active_syncs": boolToInt(active),
		"message":      "sync-status stream open",
	}
	if err := ws.WriteJSON(connected); err != nil {
		return
	}
	if !active {
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-progress:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(clientCloseDeadline))
			update := map[string]interface{}{
				"status":              "sync_update",
				"total":               p.TotalUsers,
				"processed":           p.ProcessedUsers,
				"progress_percentage": p.Percent(),
				"errors":              p.Errors,
				"state":               syncState(p),
			}
			if err := ws.WriteJSON(update); err != nil {
				return
			}
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func syncState(p reconciler.Progress) string {
	if p.ProcessedUsers >= p.TotalUsers {
		return "complete"
	}
	return "running"
}

// ServeTunnelEndpoint emits the current external hostname once, then stays
// open responding to pings (gorilla's default ping handler answers
// automatically), per spec.md §4.10.
func (s *Streams) ServeTunnelEndpoint(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()
	if !s.authenticate(ws) {
		return
	}

	hostname, err := s.domain()
	if err != nil {
		ws.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	payload, _ := json.Marshal(map[string]string{"hostname": hostname})
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return
	}

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
