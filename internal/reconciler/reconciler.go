// Package reconciler implements the Reconciler (C5): bringing the
// authoritative store and the OS/upstream surfaces back in sync with a
// caller-supplied target user set, grounded on
// original_source/src/routes/sincronizar.rs's sincronizar_usuarios /
// processar_usuarios_em_lotes.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"vpnctl/internal/metrics"
	"vpnctl/internal/models"
	"vpnctl/internal/osaccount"
	"vpnctl/internal/store"
	"vpnctl/internal/upstreamconfig"

	"github.com/sirupsen/logrus"
)

// Reconciler drives one sync run: diff target against current, apply
// removals and additions against the OS/DB, commit, then rewrite both
// upstream config documents.
type Reconciler struct {
	store   *store.Store
	os      *osaccount.Adapter
	writer  *upstreamconfig.Writer
	log     *logrus.Logger
}

// New constructs a Reconciler.
func New(st *store.Store, os *osaccount.Adapter, writer *upstreamconfig.Writer, log *logrus.Logger) *Reconciler {
	return &Reconciler{store: st, os: os, writer: writer, log: log}
}

// Sync runs one reconciliation pass against target, returning a live
// progress stream, which closes once the pass (including the upstream config
// rewrite) finishes, and an error channel that receives the pass's result
// (nil on success) and then closes. Grounded on sincronizar_usuarios's
// background-spawn-and-return-immediately shape.
func (r *Reconciler) Sync(ctx context.Context, target []models.User) (<-chan Progress, <-chan error) {
	b := newBroadcaster(len(target))
	sub, cancel := b.subscribe()
	errCh := make(chan error, 1)

	progressOut := make(chan Progress, 8)
	go func() {
		defer close(progressOut)
		for p := range sub {
			progressOut <- p
		}
	}()

	go func() {
		defer close(errCh)
		err := r.run(ctx, target, b)
		cancel() // closes sub, which ends the forwarder above
		errCh <- err
	}()

	return progressOut, errCh
}

func (r *Reconciler) run(ctx context.Context, target []models.User, b *broadcaster) error {
	r.log.WithField("target_count", len(target)).Info("starting reconciliation")
	start := time.Now()
	defer func() { metrics.ReconciliationDuration.Observe(time.Since(start).Seconds()) }()

	tx, err := r.store.Begin()
	if err != nil {
		return fmt.Errorf("open reconciliation transaction: %w", err)
	}

	current, err := tx.GetAll()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("read current user set: %w", err)
	}

	targetByLogin := make(map[string]models.User, len(target))
	for _, u := range target {
		targetByLogin[u.Login] = u
	}
	currentByLogin := make(map[string]models.User, len(current))
	for _, u := range current {
		currentByLogin[u.Login] = u
	}

	var toRemove []models.User
	for _, u := range current {
		if _, ok := targetByLogin[u.Login]; !ok {
			toRemove = append(toRemove, u)
		}
	}
	var toAdd []models.User
	var toUpdate []models.User
	for _, u := range target {
		cur, ok := currentByLogin[u.Login]
		switch {
		case !ok:
			toAdd = append(toAdd, u)
		case differs(u, cur):
			toUpdate = append(toUpdate, u)
		}
	}

	if err := r.processRemovals(ctx, tx, toRemove, b); err != nil {
		tx.Rollback()
		return err
	}
	// to_add and to_update are processed identically (spec.md §4.5 step 4):
	// idempotent pre-delete of any lingering OS account, create, row upsert.
	if err := r.processAdditions(ctx, tx, append(toAdd, toUpdate...), b); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reconciliation transaction: %w", err)
	}

	r.refreshUpstreamConfigs(target, b)
	return nil
}

// processRemovals tears down each removed user's OS account in
// BatchSize-sized, retried, concurrent batches, then deletes the whole
// batch's rows in one statement — grounded on processar_usuarios_em_lotes's
// removal loop.
func (r *Reconciler) processRemovals(ctx context.Context, tx *store.Tx, users []models.User, b *broadcaster) error {
	for start := 0; start < len(users); start += BatchSize {
		end := start + BatchSize
		if end > len(users) {
			end = len(users)
		}
		chunk := users[start:end]

		results := make(chan string, len(chunk))
		for _, u := range chunk {
			u := u
			go func() {
				err := withRetry(ctx, r.log, "remove "+u.Login, func(ctx context.Context) error {
					return r.teardownUser(ctx, u)
				})
				if err != nil {
					b.update(0, err.Error())
					r.log.WithError(err).WithField("login", u.Login).Error("failed to remove user")
					results <- ""
					return
				}
				b.update(1, "")
				results <- u.Login
			}()
		}

		var logins []string
		for range chunk {
			if login := <-results; login != "" {
				logins = append(logins, login)
			}
		}
		if err := tx.DeleteLogins(logins); err != nil {
			return fmt.Errorf("batch delete logins: %w", err)
		}
	}
	return nil
}

func (r *Reconciler) teardownUser(ctx context.Context, u models.User) error {
	switch u.Kind {
	case models.KindXray:
		if u.UUID != "" {
			if err := r.writer.RemoveClient(upstreamconfig.Xray, u.UUID); err != nil {
				return err
			}
		}
	case models.KindV2Ray:
		if u.UUID != "" {
			if err := r.writer.RemoveClient(upstreamconfig.V2Ray, u.UUID); err != nil {
				return err
			}
		}
	}
	if err := r.os.KillSessions(ctx, u.Login); err != nil {
		return err
	}
	return r.os.Delete(ctx, u.Login)
}

// processAdditions provisions each added user's OS account in
// BatchSize-sized, retried, concurrent batches, upserting each row into the
// transaction as it's queued — grounded on processar_usuarios_em_lotes's
// addition loop.
func (r *Reconciler) processAdditions(ctx context.Context, tx *store.Tx, users []models.User, b *broadcaster) error {
	for start := 0; start < len(users); start += BatchSize {
		end := start + BatchSize
		if end > len(users) {
			end = len(users)
		}
		chunk := users[start:end]

		for _, u := range chunk {
			u := u
			if err := tx.Upsert(&u); err != nil {
				return fmt.Errorf("upsert user %s: %w", u.Login, err)
			}
		}

		results := make(chan error, len(chunk))
		for _, u := range chunk {
			u := u
			go func() {
				results <- withRetry(ctx, r.log, "add "+u.Login, func(ctx context.Context) error {
					// Idempotently pre-delete any lingering OS account with
					// the same login (spec.md §4.5 step 4) — osaccount.Create
					// is a no-op on an existing account, so an update (e.g. a
					// changed password) would never take effect without this.
					if r.os.Exists(ctx, u.Login) {
						if err := r.os.Delete(ctx, u.Login); err != nil {
							return err
						}
					}
					return r.os.Create(ctx, u.Login, u.Password, u.Days, u.Limit)
				})
			}()
		}
		for _, u := range chunk {
			if err := <-results; err != nil {
				b.update(0, err.Error())
				r.log.WithError(err).WithField("login", u.Login).Error("failed to provision user")
				continue
			}
			b.update(1, "")
		}
	}
	return nil
}

// refreshUpstreamConfigs rewrites both upstream documents to exactly the
// target set, in parallel — grounded on processar_usuarios_em_lotes's
// tokio::join! of atualizar_configs_xray/v2ray. Errors are logged, not
// fatal: the DB commit has already landed.
func (r *Reconciler) refreshUpstreamConfigs(target []models.User, b *broadcaster) {
	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		xray := filterKind(target, models.KindXray)
		if err := r.writer.ReplaceClients(upstreamconfig.Xray, xray); err != nil {
			r.log.WithError(err).Error("failed to refresh xray config")
			b.update(0, err.Error())
		}
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		v2ray := filterKind(target, models.KindV2Ray)
		if err := r.writer.ReplaceClients(upstreamconfig.V2Ray, v2ray); err != nil {
			r.log.WithError(err).Error("failed to refresh v2ray config")
			b.update(0, err.Error())
		}
	}()
	<-done
	<-done
}

// differs reports whether target's fields diverge from current's,
// identifying a to_update candidate (spec.md §4.5 step 2).
func differs(target, current models.User) bool {
	return target.Password != current.Password ||
		target.Days != current.Days ||
		target.Limit != current.Limit ||
		target.UUID != current.UUID ||
		target.Kind != current.Kind ||
		target.Suspended != current.Suspended ||
		target.Owner != current.Owner ||
		target.OwnerID != current.OwnerID
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
