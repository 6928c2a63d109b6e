// Package metrics exposes toolgate's Prometheus metrics. Collector
// implements tool.Observer, so the registry feeds it directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flemzord/toolgate/internal/tool"
)

const namespace = "toolgate"

// Collector holds every metric on a private registry.
type Collector struct {
	registry *prometheus.Registry

	executions       *prometheus.CounterVec
	executionSeconds *prometheus.HistogramVec
	approvals        *prometheus.CounterVec
	pendingApprovals prometheus.Gauge
	prunedFiles      prometheus.Counter
	scriptReloads    *prometheus.CounterVec
}

var _ tool.Observer = (*Collector)(nil)

// New creates a Collector. Process and Go runtime collectors are included.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool and final status.",
		}, []string{"tool", "status"}),
		executionSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Time from call to final result, approvals included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_decisions_total",
			Help:      "Approval decisions by tool, checkpoint and verdict.",
		}, []string{"tool", "checkpoint", "verdict"}),
		pendingApprovals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_approvals",
			Help:      "Remote approval requests waiting for an answer.",
		}),
		prunedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_files_pruned_total",
			Help:      "Result cache files removed by pruning.",
		}),
		scriptReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "script_reloads_total",
			Help:      "Script tool directory reloads by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		c.executions,
		c.executionSeconds,
		c.approvals,
		c.pendingApprovals,
		c.prunedFiles,
		c.scriptReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveExecution implements tool.Observer.
func (c *Collector) ObserveExecution(toolName string, status tool.Status, elapsed time.Duration) {
	c.executions.WithLabelValues(toolName, string(status)).Inc()
	c.executionSeconds.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// ObserveApproval implements tool.Observer.
func (c *Collector) ObserveApproval(toolName string, checkpoint tool.Checkpoint, approved bool) {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	c.approvals.WithLabelValues(toolName, string(checkpoint), verdict).Inc()
}

// SetPendingApprovals records the number of open remote approvals.
func (c *Collector) SetPendingApprovals(n int) {
	c.pendingApprovals.Set(float64(n))
}

// AddPrunedFiles counts cache files removed by a prune.
func (c *Collector) AddPrunedFiles(n int) {
	if n > 0 {
		c.prunedFiles.Add(float64(n))
	}
}

// ObserveScriptReload counts a script directory reload.
func (c *Collector) ObserveScriptReload(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.scriptReloads.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
