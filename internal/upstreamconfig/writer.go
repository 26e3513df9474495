// Package upstreamconfig implements the Upstream Config Writer (C3):
// crash-safe rewrites of the v2ray/xray JSON config documents' client lists,
// grounded on original_source/src/sincronizar.rs's atualizar_configs_xray /
// atualizar_configs_v2ray and src/utils/user_utils.rs's per-user
// add/remove helpers. Documents are navigated as generic
// map[string]interface{} / []interface{} trees (mirroring the original's
// serde_json::Value navigation) so every field the writer doesn't know
// about — listener settings, routing rules, log config — survives a
// rewrite untouched.
package upstreamconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vpnctl/internal/metrics"
	"vpnctl/internal/models"

	"github.com/sirupsen/logrus"
)

// staleAfter is the cache staleness threshold: a cached document older than
// this is reloaded from disk before the next write. Grounded verbatim on
// sincronizar.rs's ConfigCache::need_refresh() (elapsed() > 300s, strictly
// greater-than).
const staleAfter = 300 * time.Second

// Paths locates the two upstream config documents on disk.
type Paths struct {
	V2Ray string
	Xray  string
}

type cacheEntry struct {
	doc      map[string]interface{}
	loadedAt time.Time
}

// Writer owns the on-disk upstream config documents and an in-memory cache
// of their parsed form.
type Writer struct {
	paths  Paths
	log    *logrus.Logger
	reload Reloader

	mu    sync.Mutex
	cache map[Kind]*cacheEntry
}

// Reloader signals the upstream process to pick up a rewritten document.
type Reloader interface {
	Reload(kind Kind) error
}

// New constructs a Writer. reload may be nil, in which case reloads are
// skipped (useful in tests).
func New(paths Paths, reload Reloader, log *logrus.Logger) *Writer {
	return &Writer{
		paths:  paths,
		log:    log,
		reload: reload,
		cache:  make(map[Kind]*cacheEntry),
	}
}

func (w *Writer) path(kind Kind) string {
	if kind == Xray {
		return w.paths.Xray
	}
	return w.paths.V2Ray
}

// load returns the parsed document for kind, reusing the cache unless it is
// stale or empty.
func (w *Writer) load(kind Kind) (map[string]interface{}, error) {
	if e, ok := w.cache[kind]; ok && time.Since(e.loadedAt) <= staleAfter {
		return e.doc, nil
	}
	raw, err := os.ReadFile(w.path(kind))
	if err != nil {
		return nil, fmt.Errorf("read upstream config %s: %w", w.path(kind), err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse upstream config %s: %w", w.path(kind), err)
	}
	w.cache[kind] = &cacheEntry{doc: doc, loadedAt: time.Now()}
	return doc, nil
}

// inbounds returns the subset of inbounds[] a write should touch: every
// protocol=="vless" inbound for xray, or just the first inbound for v2ray
// (spec.md §4.3, sincronizar.rs's two update functions).
func inbounds(doc map[string]interface{}, kind Kind) []map[string]interface{} {
	raw, _ := doc["inbounds"].([]interface{})
	var out []map[string]interface{}
	for _, item := range raw {
		ib, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if kind == Xray {
			if proto, _ := ib["protocol"].(string); proto == "vless" {
				out = append(out, ib)
			}
			continue
		}
		out = append(out, ib)
		break
	}
	return out
}

func clientsOf(ib map[string]interface{}) []interface{} {
	settings, ok := ib["settings"].(map[string]interface{})
	if !ok {
		return nil
	}
	clients, _ := settings["clients"].([]interface{})
	return clients
}

func setClients(ib map[string]interface{}, clients []interface{}) {
	settings, ok := ib["settings"].(map[string]interface{})
	if !ok {
		settings = map[string]interface{}{}
		ib["settings"] = settings
	}
	settings["clients"] = clients
}

// RemoveClient drops every client entry whose id matches uuid from every
// inbound this kind writes to, grounded on user_utils.rs's
// remover_uuid_v2ray / remover_uuids_xray.
func (w *Writer) RemoveClient(kind Kind, uuid string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, err := w.load(kind)
	if err != nil {
		return err
	}
	changed := false
	for _, ib := range inbounds(doc, kind) {
		clients := clientsOf(ib)
		kept := make([]interface{}, 0, len(clients))
		for _, c := range clients {
			if id, ok := clientID(c); ok && id == uuid {
				changed = true
				continue
			}
			kept = append(kept, c)
		}
		if changed {
			setClients(ib, kept)
		}
	}
	if !changed {
		return nil
	}
	return w.commit(kind, doc)
}

// AddClient appends one user's client entry, skipping the write entirely if
// a client with the same uuid is already present in any written inbound —
// grounded on user_utils.rs's adicionar_usuario_xray / adicionar_uuid_ao_v2ray
// idempotency probe.
func (w *Writer) AddClient(kind Kind, u models.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, err := w.load(kind)
	if err != nil {
		return err
	}
	targets := inbounds(doc, kind)
	for _, ib := range targets {
		for _, c := range clientsOf(ib) {
			if id, ok := clientID(c); ok && id == u.UUID {
				return nil
			}
		}
	}
	entry := clientMap(clientFor(u, kind))
	for _, ib := range targets {
		setClients(ib, append(clientsOf(ib), entry))
	}
	return w.commit(kind, doc)
}

// ReplaceClients rewrites every written inbound's clients[] to exactly the
// given user set, deduplicated by uuid (first occurrence wins) — the
// Reconciler's (C5) bulk path, grounded on sincronizar.rs's
// atualizar_configs_xray/v2ray full rewrite.
func (w *Writer) ReplaceClients(kind Kind, users []models.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	doc, err := w.load(kind)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(users))
	entries := make([]interface{}, 0, len(users))
	for _, u := range users {
		if u.UUID == "" || seen[u.UUID] {
			continue
		}
		seen[u.UUID] = true
		entries = append(entries, clientMap(clientFor(u, kind)))
	}
	for _, ib := range inbounds(doc, kind) {
		setClients(ib, entries)
	}
	return w.commit(kind, doc)
}

// commit marshals doc and writes it crash-safely: write to a temp file in
// the same directory, fsync, then atomic rename over the target — grounded
// on sincronizar.rs's fs::write(tmp_path,...) + fs::rename(tmp_path, target).
func (w *Writer) commit(kind Kind, doc map[string]interface{}) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.UpstreamWritesTotal.WithLabelValues(string(kind), outcome).Inc()
	}()

	target := w.path(kind)
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal upstream config %s: %w", target, err)
	}

	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".upstreamconfig-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", target, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file for %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", target, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename temp file onto %s: %w", target, err)
	}

	w.cache[kind] = &cacheEntry{doc: doc, loadedAt: time.Now()}

	if w.reload != nil {
		if err := w.reload.Reload(kind); err != nil {
			w.log.WithError(err).WithField("kind", kind).Warn("upstream reload failed")
		}
	}
	return nil
}
