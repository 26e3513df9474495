// Package channel implements the Command Channel (C10): a duplex
// authenticated text protocol with four streaming endpoints, grounded on
// original_source/src/ws_handler/handler.rs's handle_socket /
// handle_message framing, extended with the live-session, sync-status, and
// tunnel-endpoint streams per spec.md §4.10 (none of which the original
// source's single websocket_handler distinguishes as separate endpoints).
package channel

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"vpnctl/internal/apperr"
	"vpnctl/internal/models"
	"vpnctl/internal/mutator"
	"vpnctl/internal/reconciler"
	"vpnctl/internal/store"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Channel wires the control endpoint's verb dispatch to the mutator and
// reconciler.
type Channel struct {
	token      string
	store      *store.Store
	mutator    *mutator.Mutator
	reconciler *reconciler.Reconciler
	sync       *SyncTracker
	log        *logrus.Logger
}

// New constructs a Channel. sync may be nil, in which case SYNC still runs
// but no stream can observe its progress.
func New(token string, st *store.Store, mu *mutator.Mutator, rc *reconciler.Reconciler, sync *SyncTracker, log *logrus.Logger) *Channel {
	return &Channel{token: token, store: st, mutator: mu, reconciler: rc, sync: sync, log: log}
}

// authenticate reads the first frame and requires it to equal the
// configured token, per spec.md §4.10's shared Authentication clause.
func (c *Channel) authenticate(ws *websocket.Conn) bool {
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return false
	}
	if string(msg) != c.token {
		ws.WriteJSON(map[string]string{"error": "invalid token"})
		return false
	}
	return true
}

// ServeControl runs the control endpoint: authenticate, then dispatch
// TOKEN:VERB:PAYLOAD frames to the corresponding mutator/reconciler call as
// a background task, replying "<verb> accepted" immediately — grounded on
// handler.rs's handle_socket/handle_message.
func (c *Channel) ServeControl(ctx context.Context, ws *websocket.Conn) {
	defer ws.Close()
	if !c.authenticate(ws) {
		return
	}

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		reply := c.dispatch(ctx, string(msg))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

func (c *Channel) dispatch(ctx context.Context, frame string) string {
	parts := strings.SplitN(frame, ":", 3)
	if len(parts) != 3 {
		return apperr.New(apperr.BadFrame, "expected TOKEN:VERB:PAYLOAD").Error()
	}
	token, verb, payload := parts[0], parts[1], parts[2]
	if token != c.token {
		return apperr.New(apperr.AuthRejected, "invalid token").Error()
	}

	switch verb {
	case "CREATE":
		var u models.User
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			return apperr.New(apperr.BadPayload, "invalid user payload").Error()
		}
		go func() {
			if err := c.mutator.Create(context.Background(), u); err != nil {
				c.log.WithError(err).WithField("login", u.Login).Error("background CREATE failed")
			}
		}()
		return "CREATE accepted"

	case "EDIT":
		var req mutator.EditRequest
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return apperr.New(apperr.BadPayload, "invalid edit payload").Error()
		}
		go func() {
			if err := c.mutator.Edit(context.Background(), req); err != nil {
				c.log.WithError(err).WithField("login", req.OldLogin).Error("background EDIT failed")
			}
		}()
		return "EDIT accepted"

	case "DELETE":
		var req struct {
			User string `json:"user"`
			UUID string `json:"uuid,omitempty"`
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return apperr.New(apperr.BadPayload, "invalid delete payload").Error()
		}
		go func() {
			if err := c.mutator.Delete(context.Background(), req.User); err != nil {
				c.log.WithError(err).WithField("login", req.User).Error("background DELETE failed")
			}
		}()
		return "DELETE accepted"

	case "DELETE_GLOBAL":
		var req struct {
			Users []struct {
				User string `json:"user"`
				UUID string `json:"uuid,omitempty"`
			} `json:"users"`
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return apperr.New(apperr.BadPayload, "invalid delete_global payload").Error()
		}
		logins := make([]string, len(req.Users))
		for i, u := range req.Users {
			logins[i] = u.User
		}
		go func() {
			if err := c.mutator.DeleteGlobal(context.Background(), logins); err != nil {
				c.log.WithError(err).Error("background DELETE_GLOBAL failed")
			}
		}()
		return "DELETE_GLOBAL accepted"

	case "SYNC":
		var target []models.User
		if err := json.Unmarshal([]byte(payload), &target); err != nil {
			return apperr.New(apperr.BadPayload, "invalid sync payload").Error()
		}
		progress, errCh := c.reconciler.Sync(context.Background(), target)
		if c.sync != nil {
			c.sync.publish(progress)
		}
		go func() {
			if c.sync == nil {
				for range progress {
				}
			}
			if err := <-errCh; err != nil {
				c.log.WithError(err).Error("background SYNC failed")
			}
		}()
		return "SYNC accepted"

	default:
		return apperr.New(apperr.BadFrame, "unknown verb: "+verb).Error()
	}
}

// clientCloseDeadline bounds how long a streaming endpoint waits on writes
// so a dead client doesn't leak the goroutine forever. Ping control frames
// are answered with pong by gorilla/websocket's default handler.
const clientCloseDeadline = 10 * time.Second
