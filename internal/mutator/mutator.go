// Package mutator implements the Single-user Mutators (C6): Create, Edit,
// Delete, and bulk DeleteGlobal, each driving the store, OS account adapter,
// and upstream config writer end-to-end for one or more users. Grounded on
// original_source/src/routes/criar.rs, editar.rs, excluir.rs, and
// excluir_global.rs.
package mutator

import (
	"context"
	"fmt"

	"vpnctl/internal/apperr"
	"vpnctl/internal/metrics"
	"vpnctl/internal/models"
	"vpnctl/internal/osaccount"
	"vpnctl/internal/store"
	"vpnctl/internal/upstreamconfig"

	"github.com/sirupsen/logrus"
)

// observeOutcome records a mutator invocation's verb/outcome pair.
func observeOutcome(verb string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.MutationsTotal.WithLabelValues(verb, outcome).Inc()
}

// Mutator wires together the three collaborators a single-user lifecycle
// operation touches.
type Mutator struct {
	store  *store.Store
	os     *osaccount.Adapter
	writer *upstreamconfig.Writer
	log    *logrus.Logger
}

// New constructs a Mutator.
func New(st *store.Store, os *osaccount.Adapter, writer *upstreamconfig.Writer, log *logrus.Logger) *Mutator {
	return &Mutator{store: st, os: os, writer: writer, log: log}
}

func upstreamKind(k models.Kind) (upstreamconfig.Kind, bool) {
	switch k {
	case models.KindXray:
		return upstreamconfig.Xray, true
	case models.KindV2Ray:
		return upstreamconfig.V2Ray, true
	default:
		return "", false
	}
}

// Create validates kind, rejects a duplicate login, inserts the user row,
// provisions the OS account, and — if this kind carries an upstream
// identity — appends (deduplicating on uuid) and reloads its client list.
// Grounded on criar.rs's criar_usuario / process_user_data.
func (m *Mutator) Create(ctx context.Context, u models.User) (err error) {
	defer func() { observeOutcome("CREATE", err) }()
	if !u.Kind.Valid() {
		return apperr.New(apperr.BadPayload, "invalid kind: "+string(u.Kind))
	}
	if u.Kind.RequiresUUID() && u.UUID == "" {
		return apperr.New(apperr.BadPayload, "uuid required for kind "+string(u.Kind))
	}

	if _, err := m.store.GetByLogin(u.Login); err == nil {
		return apperr.New(apperr.Conflict, "login already exists: "+u.Login)
	} else if err != store.ErrUserNotFound {
		return apperr.Wrap(apperr.StoreTransient, "check existing login", err)
	}

	if err := m.store.Create(&u); err != nil {
		if err == store.ErrUserExists {
			return apperr.New(apperr.Conflict, "login already exists: "+u.Login)
		}
		return apperr.Wrap(apperr.StoreTransient, "insert user row", err)
	}

	if err := m.os.Create(ctx, u.Login, u.Password, u.Days, u.Limit); err != nil {
		return err
	}

	if kind, ok := upstreamKind(u.Kind); ok {
		if err := m.writer.AddClient(kind, u); err != nil {
			return apperr.Wrap(apperr.UpstreamWriteFailed, "add upstream client", err)
		}
	}
	return nil
}

// EditRequest carries the full set of fields an edit may change, mirroring
// original_source/src/models/edit.rs's EditRequest and spec.md §6's EDIT
// payload shape.
type EditRequest struct {
	OldLogin string      `json:"old_login"`
	NewLogin string      `json:"new_login"`
	Password string      `json:"password"`
	Days     int         `json:"days"`
	Limit    int         `json:"limit"`
	UUID     string      `json:"uuid"`
	Kind     models.Kind `json:"kind"`
}

// Edit reads the existing row, removes the old upstream client if the
// upstream identity changed (or re-writes that client with the new login as
// its email if only the login changed), recreates the OS account under the new login, and
// (re-)adds the client under the new identity if it changed. Grounded on
// editar.rs's editar_usuario / process_user_data.
func (m *Mutator) Edit(ctx context.Context, req EditRequest) (err error) {
	defer func() { observeOutcome("EDIT", err) }()
	existing, err := m.store.GetByLogin(req.OldLogin)
	if err != nil {
		if err == store.ErrUserNotFound {
			return apperr.New(apperr.NotFound, "user not found: "+req.OldLogin)
		}
		return apperr.Wrap(apperr.StoreTransient, "read existing user", err)
	}

	identityChanged := existing.UUID != req.UUID || existing.Kind != req.Kind
	loginOnlyChanged := !identityChanged && existing.Login != req.NewLogin

	if oldKind, ok := upstreamKind(existing.Kind); ok && existing.UUID != "" {
		switch {
		case identityChanged:
			if err := m.writer.RemoveClient(oldKind, existing.UUID); err != nil {
				return apperr.Wrap(apperr.UpstreamWriteFailed, "remove old upstream client", err)
			}
		case loginOnlyChanged:
			// AddClient skips a uuid that is already present, so the old
			// entry is dropped first and re-added with the new email.
			updated := *existing
			updated.Login = req.NewLogin
			if err := m.writer.RemoveClient(oldKind, existing.UUID); err != nil {
				return apperr.Wrap(apperr.UpstreamWriteFailed, "remove client for email update", err)
			}
			if err := m.writer.AddClient(oldKind, updated); err != nil {
				return apperr.Wrap(apperr.UpstreamWriteFailed, "re-add client with new email", err)
			}
		}
	}

	if err := m.os.Delete(ctx, existing.Login); err != nil {
		m.log.WithError(err).WithField("login", existing.Login).Warn("failed to tear down old OS account during edit")
	}
	if err := m.os.Create(ctx, req.NewLogin, req.Password, req.Days, req.Limit); err != nil {
		return err
	}

	updated := *existing
	updated.Login = req.NewLogin
	updated.Password = req.Password
	updated.Days = req.Days
	updated.Limit = req.Limit
	updated.UUID = req.UUID
	updated.Kind = req.Kind
	if err := m.store.Update(&updated); err != nil {
		return apperr.Wrap(apperr.StoreTransient, "update user row", err)
	}

	if newKind, ok := upstreamKind(req.Kind); ok && req.UUID != "" && identityChanged {
		if err := m.writer.AddClient(newKind, updated); err != nil {
			return apperr.Wrap(apperr.UpstreamWriteFailed, "add new upstream client", err)
		}
	}
	return nil
}

// Delete removes the upstream client (if any), kills and deletes the OS
// account if it exists, and unconditionally deletes the user row. Grounded
// on excluir.rs's excluir_usuario.
func (m *Mutator) Delete(ctx context.Context, login string) (err error) {
	defer func() { observeOutcome("DELETE", err) }()
	u, err := m.store.GetByLogin(login)
	if err != nil && err != store.ErrUserNotFound {
		return apperr.Wrap(apperr.StoreTransient, "read user for delete", err)
	}

	if u != nil {
		if kind, ok := upstreamKind(u.Kind); ok && u.UUID != "" {
			if err := m.writer.RemoveClient(kind, u.UUID); err != nil {
				m.log.WithError(err).WithField("login", login).Warn("failed to remove upstream client during delete")
			}
		}
		if m.os.Exists(ctx, login) {
			if err := m.os.Delete(ctx, login); err != nil {
				m.log.WithError(err).WithField("login", login).Warn("failed to delete OS account")
			}
		}
	}

	if err := m.store.DeleteByLogin(login); err != nil {
		return apperr.Wrap(apperr.StoreTransient, "delete user row", err)
	}
	return nil
}

// DeleteGlobal tears down every existing login in logins, then rewrites the
// full client list for both upstream kinds from the post-delete
// authoritative state — grounded on excluir_global.rs's excluir_global,
// which rewrites (not per-element removes) to stay correct under duplicate
// uuids.
func (m *Mutator) DeleteGlobal(ctx context.Context, logins []string) (err error) {
	defer func() { observeOutcome("DELETE_GLOBAL", err) }()
	var deleted int
	for _, login := range logins {
		if _, err := m.store.GetByLogin(login); err != nil {
			continue // excluir_global.rs skips logins absent from the DB
		}
		deleted++

		if m.os.Exists(ctx, login) {
			if err := m.os.Delete(ctx, login); err != nil {
				m.log.WithError(err).WithField("login", login).Warn("failed to delete OS account during global delete")
			}
		}
		if err := m.store.DeleteByLogin(login); err != nil {
			return apperr.Wrap(apperr.StoreTransient, fmt.Sprintf("delete user row %s", login), err)
		}
	}
	if deleted == 0 {
		return apperr.New(apperr.NotFound, "no matching users found to delete")
	}

	remaining, err := m.store.GetAll()
	if err != nil {
		return apperr.Wrap(apperr.StoreTransient, "read remaining users", err)
	}
	if err := m.writer.ReplaceClients(upstreamconfig.Xray, filterKind(remaining, models.KindXray)); err != nil {
		return apperr.Wrap(apperr.UpstreamWriteFailed, "rewrite xray clients", err)
	}
	if err := m.writer.ReplaceClients(upstreamconfig.V2Ray, filterKind(remaining, models.KindV2Ray)); err != nil {
		return apperr.Wrap(apperr.UpstreamWriteFailed, "rewrite v2ray clients", err)
	}
	return nil
}

func filterKind(users []models.User, kind models.Kind) []models.User {
	var out []models.User
	for _, u := range users {
		if u.Kind == kind {
			out = append(out, u)
		}
	}
	return out
}
