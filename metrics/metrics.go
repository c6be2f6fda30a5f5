// Package metrics exposes cost engine telemetry to Prometheus.
//
// Metrics implements cost.Observer and cost.HistoryObserver, so the
// engine and recorder report into it without importing prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/budget-engine/cost"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	degenerate  *prometheus.CounterVec
	excluded    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	requests    *prometheus.HistogramVec
}

// New creates and registers all collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		degenerate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budget_degenerate_allocations_total",
			Help: "Tenant software lines priced at zero because no headcount is covered.",
		}, []string{"software_id"}),
		excluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budget_excluded_lines_total",
			Help: "Requirement lines or coverage rules left out of a calculation.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budget_cost_history_transitions_total",
			Help: "Cost history records opened, by item kind and whether a prior record was closed.",
		}, []string{"kind", "closed"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "budget_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.Registry.MustRegister(
		m.degenerate,
		m.excluded,
		m.transitions,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// DegenerateAllocation implements cost.Observer.
func (m *Metrics) DegenerateAllocation(softwareID cost.SoftwareID) {
	m.degenerate.WithLabelValues(strconv.FormatInt(int64(softwareID), 10)).Inc()
}

// ExcludedLine implements cost.Observer.
func (m *Metrics) ExcludedLine(reason string) {
	m.excluded.WithLabelValues(reason).Inc()
}

// CostHistoryTransition implements cost.HistoryObserver.
func (m *Metrics) CostHistoryTransition(kind cost.ItemKind, closed bool) {
	m.transitions.WithLabelValues(string(kind), strconv.FormatBool(closed)).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
