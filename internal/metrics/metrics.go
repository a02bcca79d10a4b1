package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	syncRuns       *prometheus.CounterVec // total syncs
	syncDuration   prometheus.Histogram   // time to sync
	ipLookups      *prometheus.CounterVec // public address lookups per source
	publicAddress  *prometheus.GaugeVec   // last resolved address
	dnsOperations  *prometheus.CounterVec // reconcile outcomes
	dnsRequests    *prometheus.CounterVec // dns provider requests
	badgerRequests *prometheus.CounterVec // badgerdb requests
}

func (m *Metrics) IncSyncRun(success bool) {
	status := boolToResult(success)
	m.syncRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) SetSyncDuration(duration time.Duration) {
	m.syncDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncIPLookup(source string, success bool) {
	if source == "" {
		return
	}
	m.ipLookups.WithLabelValues(source, boolToResult(success)).Inc()
}

// SetPublicAddress exposes addr as the only labelled series of the gauge.
func (m *Metrics) SetPublicAddress(addr string) {
	m.publicAddress.Reset()
	if addr == "" {
		return
	}
	m.publicAddress.WithLabelValues(addr).Set(1)
}

func (m *Metrics) IncDNSOperation(operation, zone string) {
	if !isValidOperation(operation) {
		return
	}
	if zone == "" {
		zone = "unknown"
	}
	m.dnsOperations.WithLabelValues(operation, zone).Inc()
}

func (m *Metrics) IncDNSRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.dnsRequests.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) IncBadgerRequest(operation string, success bool) {
	if !isValidOperation(operation) {
		return
	}
	status := boolToResult(success)
	m.badgerRequests.WithLabelValues(operation, status).Inc()
}

func boolToResult(b bool) string {
	if b {
		return "success"
	}
	return "failure"
}

func isValidOperation(op string) bool {
	switch op {
	case "read", "update", "skip", "error":
		return true
	}
	return false
}

func New(register bool) *Metrics {
	registry := prometheus.NewRegistry()
	namespace := "dns_ip_sync"

	m := &Metrics{
		registry: registry,

		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Total number of synchronization runs",
		}, []string{"status"}),

		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		ipLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ip_lookups_total",
			Help:      "Total public address lookups by source",
		}, []string{"source", "status"}),

		publicAddress: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "public_address_info",
			Help:      "Last resolved public address",
		}, []string{"address"}),

		dnsOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_operations_total",
			Help:      "Total record reconciliation outcomes",
		}, []string{"operation", "zone"}),

		dnsRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_requests_total",
			Help:      "Total DNS provider requests",
		}, []string{"operation", "status"}),

		badgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badgerdb_requests_total",
			Help:      "Total badgerdb requests",
		}, []string{"operation", "status"}),
	}

	if register {
		registry.MustRegister(
			m.syncRuns,
			m.syncDuration,
			m.ipLookups,
			m.publicAddress,
			m.dnsOperations,
			m.dnsRequests,
			m.badgerRequests,
		)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
