// Package metrics exposes the Prometheus collectors the ingestion pipeline
// updates as it runs: device counts, NetFlow collector health, agent
// session counts, and alert volume. The registry is a singleton (mirroring
// the teacher's own metrics package) so every component that wants a
// counter just calls metrics.Get() rather than threading a Registry handle
// through every constructor.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds every Prometheus collector this repository registers.
type Registry struct {
	DevicesOnline      prometheus.Gauge
	DiscoveryTicks     prometheus.Counter
	DiscoveryFaults    prometheus.Counter
	DeviceEvents       *prometheus.CounterVec
	EnrichmentsApplied *prometheus.CounterVec

	NetflowFlowsTotal  prometheus.Counter
	NetflowParseErrors prometheus.Counter
	NetflowFlushes     prometheus.Counter

	AgentSessionsActive prometheus.Gauge
	AgentReportsTotal   prometheus.Counter
	AgentAuthFailures   prometheus.Counter

	AlertsTotal *prometheus.CounterVec

	RetentionRowsPruned *prometheus.CounterVec
}

// Get returns the process-wide metrics registry, creating it on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.DevicesOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "panoptikon_devices_online",
		Help: "Number of devices currently marked online.",
	})
	r.DiscoveryTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_discovery_ticks_total",
		Help: "Total number of completed discovery loop ticks.",
	})
	r.DiscoveryFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_discovery_scan_faults_total",
		Help: "Total number of discovery ticks skipped due to a scan-source failure.",
	})
	r.DeviceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panoptikon_device_events_total",
		Help: "Total device lifecycle events emitted, by type.",
	}, []string{"event_type"})
	r.EnrichmentsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panoptikon_enrichments_applied_total",
		Help: "Total enrichment writes applied, by winning source.",
	}, []string{"source"})

	r.NetflowFlowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_netflow_flows_total",
		Help: "Total NetFlow v5 records received.",
	})
	r.NetflowParseErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_netflow_parse_errors_total",
		Help: "Total NetFlow packets dropped for failing to parse.",
	})
	r.NetflowFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_netflow_flushes_total",
		Help: "Total traffic-sample flush cycles completed.",
	})

	r.AgentSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "panoptikon_agent_sessions_active",
		Help: "Number of agent WebSocket sessions currently authenticated.",
	})
	r.AgentReportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_agent_reports_total",
		Help: "Total agent health reports ingested.",
	})
	r.AgentAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "panoptikon_agent_auth_failures_total",
		Help: "Total agent session authentication failures.",
	})

	r.AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panoptikon_alerts_total",
		Help: "Total alerts raised, by type and severity.",
	}, []string{"type", "severity"})

	r.RetentionRowsPruned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "panoptikon_retention_rows_pruned_total",
		Help: "Total rows deleted by the retention sweeper, by table.",
	}, []string{"table"})

	return r
}
