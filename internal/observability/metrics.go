package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors codegraph exports.
type Metrics struct {
	Registry *prometheus.Registry

	FilesAnalyzed   *prometheus.CounterVec
	FilesSkipped    prometheus.Counter
	FilesRemoved    prometheus.Counter
	ParseFailures   prometheus.Counter
	EdgesAdded      *prometheus.CounterVec
	EdgesRemoved    *prometheus.CounterVec
	Violations      *prometheus.CounterVec
	ViolationsFixed *prometheus.CounterVec
	StoreCommits    *prometheus.CounterVec
	UpdateDuration  *prometheus.HistogramVec
	StoreNodes      *prometheus.GaugeVec
	StoreEdges      *prometheus.GaugeVec
	QueriesTotal    *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FilesAnalyzed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_files_analyzed_total",
			Help: "Files analyzed by node type",
		}, []string{"type"}),
		FilesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_files_skipped_total",
			Help: "Files skipped because their digest was unchanged",
		}),
		FilesRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_files_removed_total",
			Help: "Deleted files removed from graph stores",
		}),
		ParseFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_parse_failures_total",
			Help: "Files that produced a degraded node because they failed to parse",
		}),
		EdgesAdded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_edges_added_total",
			Help: "Edges added by synchronization",
		}, []string{"graph"}),
		EdgesRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_edges_removed_total",
			Help: "Edges removed by synchronization",
		}, []string{"graph"}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_violations_total",
			Help: "Integrity violations found by kind",
		}, []string{"graph", "kind"}),
		ViolationsFixed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_violations_fixed_total",
			Help: "Integrity repairs applied by kind",
		}, []string{"graph", "kind"}),
		StoreCommits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_store_commits_total",
			Help: "Graph store commits by result",
		}, []string{"graph", "result"}),
		UpdateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codegraph_update_duration_seconds",
			Help:    "Duration of mutation operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"operation"}),
		StoreNodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codegraph_store_nodes",
			Help: "Nodes in each committed graph store",
		}, []string{"graph"}),
		StoreEdges: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "codegraph_store_edges",
			Help: "Edges in each committed graph store",
		}, []string{"graph"}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codegraph_queries_total",
			Help: "Read-only queries by operation and result",
		}, []string{"operation", "result"}),
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveDuration records how long operation took since start.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	m.UpdateDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordSync records an edge synchronization.
func (m *Metrics) RecordSync(graph string, added, removed int) {
	if added > 0 {
		m.EdgesAdded.WithLabelValues(graph).Add(float64(added))
	}
	if removed > 0 {
		m.EdgesRemoved.WithLabelValues(graph).Add(float64(removed))
	}
}

// RecordCommit records a store commit and its resulting size.
func (m *Metrics) RecordCommit(graph string, nodes, edges int, err error) {
	if err != nil {
		m.StoreCommits.WithLabelValues(graph, "error").Inc()
		return
	}
	m.StoreCommits.WithLabelValues(graph, "ok").Inc()
	m.StoreNodes.WithLabelValues(graph).Set(float64(nodes))
	m.StoreEdges.WithLabelValues(graph).Set(float64(edges))
}

// RecordQuery counts a query by outcome.
func (m *Metrics) RecordQuery(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.QueriesTotal.WithLabelValues(operation, result).Inc()
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = NewMetrics()
	})
	return globalMetrics
}
