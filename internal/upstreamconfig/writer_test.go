package upstreamconfig

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"vpnctl/internal/models"

	"github.com/sirupsen/logrus"
)

func newTestWriter(t *testing.T, xrayDoc, v2rayDoc string) (*Writer, Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		Xray:  filepath.Join(dir, "xray.json"),
		V2Ray: filepath.Join(dir, "v2ray.json"),
	}
	if err := os.WriteFile(paths.Xray, []byte(xrayDoc), 0o644); err != nil {
		t.Fatalf("seed xray config: %v", err)
	}
	if err := os.WriteFile(paths.V2Ray, []byte(v2rayDoc), 0o644); err != nil {
		t.Fatalf("seed v2ray config: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(paths, nil, log), paths
}

const xraySeed = `{
  "inbounds": [
    {"protocol": "vless", "settings": {"clients": [{"id": "uuid-1", "email": "alice", "level": 0}]}}
  ]
}`

const v2raySeed = `{
  "inbounds": [
    {"protocol": "vmess", "settings": {"clients": [{"id": "uuid-2", "email": "bob", "alterId": 0}]}}
  ]
}`

func readDoc(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return doc
}

func firstClients(t *testing.T, doc map[string]interface{}) []interface{} {
	t.Helper()
	inbounds := doc["inbounds"].([]interface{})
	ib := inbounds[0].(map[string]interface{})
	settings := ib["settings"].(map[string]interface{})
	return settings["clients"].([]interface{})
}

func TestAddClientAppendsNewEntry(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)
	u := models.User{Login: "carol", UUID: "uuid-3", Kind: models.KindXray}

	if err := w.AddClient(Xray, u); err != nil {
		t.Fatalf("AddClient() error = %v", err)
	}

	clients := firstClients(t, readDoc(t, paths.Xray))
	if len(clients) != 2 {
		t.Fatalf("got %d clients, want 2", len(clients))
	}
	id, _ := clientID(clients[1])
	if id != "uuid-3" {
		t.Errorf("appended client id = %q, want uuid-3", id)
	}
}

func TestAddClientIsIdempotentOnDuplicateUUID(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)
	u := models.User{Login: "alice-renamed", UUID: "uuid-1", Kind: models.KindXray}

	if err := w.AddClient(Xray, u); err != nil {
		t.Fatalf("AddClient() error = %v", err)
	}

	clients := firstClients(t, readDoc(t, paths.Xray))
	if len(clients) != 1 {
		t.Fatalf("got %d clients, want 1 (no duplicate written)", len(clients))
	}
}

func TestRemoveClientDropsMatchingEntry(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)

	if err := w.RemoveClient(Xray, "uuid-1"); err != nil {
		t.Fatalf("RemoveClient() error = %v", err)
	}

	clients := firstClients(t, readDoc(t, paths.Xray))
	if len(clients) != 0 {
		t.Errorf("got %d clients, want 0 after removing the only client", len(clients))
	}
}

func TestRemoveClientUnknownUUIDIsNoop(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)

	if err := w.RemoveClient(Xray, "does-not-exist"); err != nil {
		t.Fatalf("RemoveClient() error = %v", err)
	}

	clients := firstClients(t, readDoc(t, paths.Xray))
	if len(clients) != 1 {
		t.Errorf("got %d clients, want 1 (unchanged)", len(clients))
	}
}

func TestReplaceClientsDeduplicatesByUUID(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)
	users := []models.User{
		{Login: "dave", UUID: "uuid-4", Kind: models.KindXray},
		{Login: "dave-dup", UUID: "uuid-4", Kind: models.KindXray},
		{Login: "no-uuid", UUID: "", Kind: models.KindXray},
		{Login: "erin", UUID: "uuid-5", Kind: models.KindXray},
	}

	if err := w.ReplaceClients(Xray, users); err != nil {
		t.Fatalf("ReplaceClients() error = %v", err)
	}

	clients := firstClients(t, readDoc(t, paths.Xray))
	if len(clients) != 2 {
		t.Fatalf("got %d clients, want 2 (deduped, empty-uuid dropped)", len(clients))
	}
	first, _ := clientID(clients[0])
	if first != "uuid-4" {
		t.Errorf("first kept client = %q, want uuid-4 (first occurrence wins)", first)
	}
}

func TestV2RayClientCarriesAlterIDNotLevel(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)
	u := models.User{Login: "frank", UUID: "uuid-6", Kind: models.KindV2Ray}

	if err := w.AddClient(V2Ray, u); err != nil {
		t.Fatalf("AddClient() error = %v", err)
	}

	clients := firstClients(t, readDoc(t, paths.V2Ray))
	appended := clients[len(clients)-1].(map[string]interface{})
	if _, ok := appended["alterId"]; !ok {
		t.Errorf("v2ray client missing alterId field: %+v", appended)
	}
	if _, ok := appended["level"]; ok {
		t.Errorf("v2ray client unexpectedly carries a level field: %+v", appended)
	}
}

func TestCommitIsCrashSafeNoTempFileSurvives(t *testing.T) {
	w, paths := newTestWriter(t, xraySeed, v2raySeed)
	if err := w.RemoveClient(Xray, "uuid-1"); err != nil {
		t.Fatalf("RemoveClient() error = %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(paths.Xray))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file after commit: %s", e.Name())
		}
	}
}
