// Package telemetry defines operational Prometheus metrics for the
// sandbox, tool executor, and audit pipeline. Only the tool metrics are
// recorded in this module (by sheettool's telemetry middleware); the
// sandbox, queue, SIEM and DLP collectors are defined and registered
// but nothing here updates them. It replaces what used to
// be a hand-rolled in-process event hub: this module has no terminal
// UI or workflow/plan pipeline to fan event structs out to, and a
// battle-tested metrics client covers the counters and histograms this
// system actually needs.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the set of operational counters/histograms/gauges this
// module exports. Construct one with NewMetrics and register it with
// a prometheus.Registerer (promhttp.Handler or a pushgateway client).
type Metrics struct {
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	SandboxRunsTotal  *prometheus.CounterVec
	SandboxRunDuration prometheus.Histogram
	QueueDepth        prometheus.Gauge
	QueueFlushTotal   *prometheus.CounterVec
	QueueFlushLatency prometheus.Histogram
	SIEMExportTotal   *prometheus.CounterVec
	DLPDecisionsTotal *prometheus.CounterVec
}

// NewMetrics constructs the metric set without registering it.
func NewMetrics() *Metrics {
	return &Metrics{
		ToolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellwarden",
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cellwarden",
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Tool invocation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		SandboxRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellwarden",
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Total sandboxed runs by settlement kind.",
		}, []string{"kind"}),
		SandboxRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cellwarden",
			Subsystem: "sandbox",
			Name:      "run_duration_seconds",
			Help:      "Sandboxed run wall-clock duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cellwarden",
			Subsystem: "auditqueue",
			Name:      "depth",
			Help:      "Number of undelivered audit events across all segments.",
		}),
		QueueFlushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellwarden",
			Subsystem: "auditqueue",
			Name:      "flush_total",
			Help:      "Total queue flush attempts by outcome.",
		}, []string{"outcome"}),
		QueueFlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cellwarden",
			Subsystem: "auditqueue",
			Name:      "flush_latency_seconds",
			Help:      "Time to flush one segment batch to the SIEM exporter.",
			Buckets:   prometheus.DefBuckets,
		}),
		SIEMExportTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellwarden",
			Subsystem: "siem",
			Name:      "export_total",
			Help:      "Total SIEM export calls by outcome.",
		}, []string{"outcome"}),
		DLPDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cellwarden",
			Subsystem: "dlp",
			Name:      "decisions_total",
			Help:      "Total DLP policy decisions by action.",
		}, []string{"action"}),
	}
}

// MustRegister registers every collector with reg, panicking on a
// duplicate registration the way prometheus' own MustRegister does.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.SandboxRunsTotal,
		m.SandboxRunDuration,
		m.QueueDepth,
		m.QueueFlushTotal,
		m.QueueFlushLatency,
		m.SIEMExportTotal,
		m.DLPDecisionsTotal,
	)
}
