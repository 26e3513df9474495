// Package observer implements the Session Observer (C7): an endless ticking
// loop that enumerates live ssh/openvpn/xray sessions and converges the
// Presence Store to reality, grounded on
// original_source/src/utils/online_utils.rs and the teacher's
// xpanel-agent/internal/agent/activity.go delta-activity idiom.
package observer

import (
	"context"
	"time"

	"vpnctl/internal/metrics"
	"vpnctl/internal/models"
	"vpnctl/internal/osaccount"
	"vpnctl/internal/presence"
	"vpnctl/internal/store"

	"github.com/sirupsen/logrus"
)

// deltaThreshold is T in spec.md §4.7 step 5: 5 KiB.
const deltaThreshold = 5 * 1024

// staleAfter is the unconditional live-entry expiry window (spec.md §4.7
// step 7).
const staleAfter = 8 * time.Second

// noChangeLimit is the consecutive no-traffic tick count at which an xray
// entry transitions On->Off (spec.md §4.7 step 5).
const noChangeLimit = 3

// Observer runs the C7 tick loop.
type Observer struct {
	store     *store.Store
	presence  *presence.Store
	os        *osaccount.Adapter
	telemetry *XrayTelemetry
	log       *logrus.Logger
	period    time.Duration
}

// New constructs an Observer. period should fall within spec.md §4.7's
// 500ms-1s target range.
func New(st *store.Store, pr *presence.Store, os *osaccount.Adapter, telemetry *XrayTelemetry, period time.Duration, log *logrus.Logger) *Observer {
	return &Observer{store: st, presence: pr, os: os, telemetry: telemetry, period: period, log: log}
}

// Run ticks until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	ticker := time.NewTicker(o.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.tick(ctx); err != nil {
				o.log.WithError(err).Warn("observer tick failed")
			}
		}
	}
}

func (o *Observer) tick(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserverTickDuration.Observe(time.Since(start).Seconds()) }()
	now := start.Unix()

	sshLogins, err := EnumerateSSH(ctx)
	if err != nil {
		o.log.WithError(err).Debug("ssh enumeration failed")
	}
	ovpnLogins, err := EnumerateOpenVPN(ctx)
	if err != nil {
		o.log.WithError(err).Debug("openvpn enumeration failed")
	}

	sshSet := toSet(sshLogins)
	ovpnSet := toSet(ovpnLogins)

	users, err := o.store.GetAll()
	if err != nil {
		return err
	}

	for _, u := range users {
		switch u.Kind {
		case models.KindSSH:
			o.observeProcessBacked(ctx, u, sshSet[u.Login], now)
		case models.KindOpenVPN:
			o.observeProcessBacked(ctx, u, ovpnSet[u.Login], now)
		case models.KindXray:
			o.observeXray(ctx, u, now)
		}
	}

	o.sweepStaleEntries(ctx, now)
	o.enforceConcurrencyLimits(ctx, users)
	o.updateConcurrentCounts(ctx)
	o.reportOnlineLogins(ctx)
	return nil
}

// updateConcurrentCounts stamps each On entry with how many entries its
// login currently has, so the live-session stream (spec.md §6) can report
// "concurrent" without recomputing it per request.
func (o *Observer) updateConcurrentCounts(ctx context.Context) {
	logins, err := o.presence.SMembers(ctx, presence.OnlineLoginsSet)
	if err != nil {
		o.log.WithError(err).Debug("failed to read online logins set")
		return
	}
	for _, login := range logins {
		keys, err := o.presence.Keys(ctx, presence.LiveKeyPattern(login))
		if err != nil {
			continue
		}
		count := len(keys)
		for _, key := range keys {
			fields, err := o.presence.HGetAll(ctx, key)
			if err != nil || len(fields) == 0 {
				continue
			}
			entry := presence.EntryFromFields(fields)
			if entry.Status != presence.On || entry.ConcurrentCount == count {
				continue
			}
			_, tag := presence.SplitLiveKey(key)
			entry.ConcurrentCount = count
			if err := o.presence.PutEntry(ctx, login, tag, entry); err != nil {
				o.log.WithError(err).WithField("login", login).Debug("failed to stamp concurrent count")
			}
		}
	}
}

// reportOnlineLogins publishes the online_logins set's current size — the
// set itself is kept correct by presence.Store's PutEntry/DeleteEntry.
func (o *Observer) reportOnlineLogins(ctx context.Context) {
	logins, err := o.presence.SMembers(ctx, presence.OnlineLoginsSet)
	if err != nil {
		o.log.WithError(err).Debug("failed to read online logins set")
		return
	}
	metrics.OnlineLogins.Set(float64(len(logins)))
}

// sweepStaleEntries unconditionally deletes any live entry whose last_seen
// is older than staleAfter, regardless of kind — spec.md §4.7 step 7's
// first clause.
func (o *Observer) sweepStaleEntries(ctx context.Context, now int64) {
	keys, err := o.presence.Keys(ctx, "live:*")
	if err != nil {
		o.log.WithError(err).Debug("failed to list live entries for staleness sweep")
		return
	}
	for _, key := range keys {
		fields, err := o.presence.HGetAll(ctx, key)
		if err != nil || len(fields) == 0 {
			continue
		}
		entry := presence.EntryFromFields(fields)
		if now-entry.LastSeen > int64(staleAfter/time.Second) {
			login, tag := presence.SplitLiveKey(key)
			if err := o.presence.DeleteEntry(ctx, login, tag); err != nil {
				o.log.WithError(err).WithField("key", key).Debug("failed to delete stale entry")
			}
		}
	}
}

// observeProcessBacked handles ssh/openvpn presence: liveness of the
// process/session is the presence signal (spec.md §4.7 step 5, ssh/openvpn
// branch).
func (o *Observer) observeProcessBacked(ctx context.Context, u models.User, live bool, now int64) {
	tag := u.Login
	entry, existed, err := o.presence.GetEntry(ctx, u.Login, tag)
	if err != nil {
		o.log.WithError(err).WithField("login", u.Login).Debug("failed to read presence entry")
		return
	}

	if !live {
		// Next tick confirming absence is enough: the 8s staleness sweep
		// (step 7) deletes the entry once last_seen goes stale.
		return
	}

	wasOff := !existed || entry.Status == presence.Off
	entry.Status = presence.On
	entry.Kind = string(u.Kind)
	entry.Owner = u.Owner
	entry.OwnerID = u.OwnerID
	entry.Limit = u.Limit
	entry.LastSeen = now
	if wasOff {
		entry.SessionStart = now
	}
	if err := o.presence.PutEntry(ctx, u.Login, tag, entry); err != nil {
		o.log.WithError(err).WithField("login", u.Login).Debug("failed to write presence entry")
	}
}

// observeXray handles xray presence via delta-activity with hysteresis
// (spec.md §4.7 step 5, xray branch), grounded on the teacher's
// trackActivity delta comparison, generalized to the spec's threshold +
// no_change_ticks formulation.
func (o *Observer) observeXray(ctx context.Context, u models.User, now int64) {
	if u.UUID == "" || o.telemetry == nil {
		return
	}
	tag := u.UUID
	counters, err := o.telemetry.Query(u.Login)
	if err != nil {
		o.log.WithError(err).WithField("login", u.Login).Debug("xray telemetry query failed")
		return
	}

	entry, existed, err := o.presence.GetEntry(ctx, u.Login, tag)
	if err != nil {
		o.log.WithError(err).WithField("login", u.Login).Debug("failed to read presence entry")
		return
	}

	deltaDown := counters.Downlink - entry.DownlinkPrev
	deltaUp := counters.Uplink - entry.UplinkPrev

	active := (deltaDown > deltaThreshold || deltaUp > deltaThreshold) &&
		(counters.Downlink > deltaThreshold || counters.Uplink > deltaThreshold)

	wasOff := !existed || entry.Status == presence.Off
	entry.Kind = string(u.Kind)
	entry.Owner = u.Owner
	entry.OwnerID = u.OwnerID
	entry.Limit = u.Limit
	entry.Downlink = counters.Downlink
	entry.Uplink = counters.Uplink
	entry.LastSeen = now

	if active {
		entry.NoChangeTicks = 0
		entry.Status = presence.On
		if wasOff {
			entry.SessionStart = now
		}
	} else {
		entry.NoChangeTicks++
		if entry.NoChangeTicks >= noChangeLimit {
			entry.Status = presence.Off
		}
	}
	entry.DownlinkPrev = counters.Downlink
	entry.UplinkPrev = counters.Uplink

	if entry.Status == presence.Off {
		// xray entries transitioning to Off are deleted immediately
		// (spec.md §4.7 step 7).
		if err := o.presence.DeleteEntry(ctx, u.Login, tag); err != nil {
			o.log.WithError(err).WithField("login", u.Login).Debug("failed to delete stale xray entry")
		}
		return
	}
	if err := o.presence.PutEntry(ctx, u.Login, tag, entry); err != nil {
		o.log.WithError(err).WithField("login", u.Login).Debug("failed to write presence entry")
	}
}

// enforceConcurrencyLimits counts the live entries (any status) of each
// login in the online set and, if over limit, kills ssh/openvpn sessions for
// that login (spec.md §4.7 step 8).
func (o *Observer) enforceConcurrencyLimits(ctx context.Context, users []models.User) {
	logins, err := o.presence.SMembers(ctx, presence.OnlineLoginsSet)
	if err != nil {
		o.log.WithError(err).Debug("failed to read online logins set")
		return
	}
	byLogin := make(map[string]models.User, len(users))
	for _, u := range users {
		byLogin[u.Login] = u
	}

	for _, login := range logins {
		u, ok := byLogin[login]
		if !ok || u.Limit <= 0 || (u.Kind != models.KindSSH && u.Kind != models.KindOpenVPN) {
			continue
		}
		keys, err := o.presence.Keys(ctx, presence.LiveKeyPattern(login))
		if err != nil {
			continue
		}
		if len(keys) > u.Limit {
			if err := o.os.KillSessions(ctx, login); err != nil {
				o.log.WithError(err).WithField("login", login).Warn("failed to enforce concurrency limit")
			}
		}
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}
