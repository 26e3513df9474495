// Package metrics exposes prometheus counters/gauges for the control
// plane's core operations, grounded on
// etalazz-vsa/internal/ratelimiter/telemetry/churn/prom_counters.go's
// global-metric-variable + promhttp.Handler idiom.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveProxyConnections tracks the current size of the active-connections
	// registry (C9's live bridge count).
	ActiveProxyConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vpnctl_active_proxy_connections",
		Help: "Number of currently bridged proxy sessions",
	})

	// OnlineLogins tracks the current size of the presence store's online set.
	OnlineLogins = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vpnctl_online_logins",
		Help: "Number of logins with at least one On live-session entry",
	})

	// MutationsTotal counts C6 mutator invocations by verb and outcome.
	MutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnctl_mutations_total",
		Help: "Single-user mutator invocations by verb and outcome",
	}, []string{"verb", "outcome"})

	// ReconciliationDuration tracks how long each C5 sync run takes.
	ReconciliationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vpnctl_reconciliation_duration_seconds",
		Help:    "Duration of reconciler sync runs",
		Buckets: prometheus.DefBuckets,
	})

	// ObserverTickDuration tracks each C7 tick's wall time.
	ObserverTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vpnctl_observer_tick_duration_seconds",
		Help:    "Duration of session observer ticks",
		Buckets: prometheus.DefBuckets,
	})

	// UpstreamWritesTotal counts C3 config rewrites by kind and outcome.
	UpstreamWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vpnctl_upstream_writes_total",
		Help: "Upstream config document rewrites by kind and outcome",
	}, []string{"kind", "outcome"})
)

func init() {
	prometheus.MustRegister(
		ActiveProxyConnections,
		OnlineLogins,
		MutationsTotal,
		ReconciliationDuration,
		ObserverTickDuration,
		UpstreamWritesTotal,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
