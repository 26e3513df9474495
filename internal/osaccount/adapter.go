// Package osaccount implements the OS Account Adapter (C4): the shell-out
// boundary between the control plane and the system's user database,
// grounded on original_source/src/utils/user_utils.rs's
// adicionar_usuario_sistema and src/routes/editar.rs's pkill/userdel
// sequence. Every command is tolerant of a missing binary or non-fatal
// failure — spec.md §4.4 requires this adapter to never panic the caller.
package osaccount

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"vpnctl/internal/apperr"

	"github.com/sirupsen/logrus"
)

const (
	passwordDir   = "/etc/SSHPlus/senha"
	usersDBPath   = "/root/usuarios.db"
	loginShell    = "/bin/false"
	dateLayout    = "2006-01-02"
)

// Adapter shells out to the system's user-management tools.
type Adapter struct {
	log *logrus.Logger
}

// New constructs an Adapter.
func New(log *logrus.Logger) *Adapter {
	return &Adapter{log: log}
}

// Exists reports whether username already has a system account, grounded on
// user_utils.rs's `id <username>` idempotency probe.
func (a *Adapter) Exists(ctx context.Context, username string) bool {
	return exec.CommandContext(ctx, "id", username).Run() == nil
}

// Create provisions a system account for username: idempotent (a no-op if
// the account already exists), expiring on days from now, with password set
// via crypt(3) through perl — grounded on user_utils.rs's
// adicionar_usuario_sistema. It also writes the two legacy auxiliary files
// (SPEC_FULL.md Supplemented Feature #1): an append-only "{login} {limit}"
// line in usuarios.db, and a raw-password mirror file under
// /etc/SSHPlus/senha/{login}.
func (a *Adapter) Create(ctx context.Context, username, password string, days, limit int) error {
	if a.Exists(ctx, username) {
		return nil
	}

	hash, err := a.cryptPassword(ctx, password)
	if err != nil {
		return apperr.Wrap(apperr.OsAccountFailed, "hash password", err)
	}

	expiry := time.Now().AddDate(0, 0, days).Format(dateLayout)
	cmd := exec.CommandContext(ctx, "useradd",
		"-e", expiry,
		"-M",
		"-s", loginShell,
		"-p", hash,
		username,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return apperr.Wrap(apperr.OsAccountFailed, "useradd failed: "+string(out), err)
	}

	if err := a.appendUsersDB(username, limit); err != nil {
		a.log.WithError(err).WithField("login", username).Warn("failed to append usuarios.db entry")
	}
	if err := a.writePasswordMirror(username, password); err != nil {
		a.log.WithError(err).WithField("login", username).Warn("failed to write password mirror file")
	}
	return nil
}

// cryptPassword hashes password via `perl -e 'print crypt($ARGV[0], "password")'`,
// grounded verbatim on user_utils.rs's perl invocation.
func (a *Adapter) cryptPassword(ctx context.Context, password string) (string, error) {
	out, err := exec.CommandContext(ctx, "perl", "-e", `print crypt($ARGV[0], "password")`, password).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (a *Adapter) appendUsersDB(username string, limit int) error {
	f, err := os.OpenFile(usersDBPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s %d\n", username, limit)
	return err
}

func (a *Adapter) writePasswordMirror(username, password string) error {
	if err := os.MkdirAll(passwordDir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(passwordDir, username), []byte(password), 0o600)
}

// KillSessions terminates every process owned by username, grounded on
// editar.rs's `pkill -u`. Absence of any matching process is not an error.
func (a *Adapter) KillSessions(ctx context.Context, username string) error {
	err := exec.CommandContext(ctx, "pkill", "-u", username).Run()
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return nil // pkill exits 1 when no process matched
	}
	if err != nil {
		if _, ok := err.(*exec.Error); ok {
			return nil // pkill binary missing
		}
		return apperr.Wrap(apperr.OsAccountFailed, "pkill failed", err)
	}
	return nil
}

// Delete removes username's system account, killing its sessions first —
// grounded on editar.rs's pkill-then-userdel sequence (used there ahead of
// a delete-then-recreate edit).
func (a *Adapter) Delete(ctx context.Context, username string) error {
	if err := a.KillSessions(ctx, username); err != nil {
		a.log.WithError(err).WithField("login", username).Warn("failed to kill sessions before delete")
	}
	if !a.Exists(ctx, username) {
		return nil
	}
	if out, err := exec.CommandContext(ctx, "userdel", username).CombinedOutput(); err != nil {
		return apperr.Wrap(apperr.OsAccountFailed, "userdel failed: "+string(out), err)
	}
	_ = os.Remove(filepath.Join(passwordDir, username))
	return nil
}
