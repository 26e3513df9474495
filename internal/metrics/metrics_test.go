package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesRegisteredMetrics(t *testing.T) {
	MutationsTotal.WithLabelValues("CREATE", "ok").Inc()
	OnlineLogins.Set(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"vpnctl_active_proxy_connections",
		"vpnctl_online_logins",
		"vpnctl_mutations_total",
		"vpnctl_reconciliation_duration_seconds",
		"vpnctl_observer_tick_duration_seconds",
		"vpnctl_upstream_writes_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}
