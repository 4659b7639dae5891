package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports dispatch counters and latency histograms as Prometheus
// series, matching the teacher's client_golang usage elsewhere in the
// stack. The original's own record_success_metrics/record_failure_metrics
// were stubs (`fn record_success_metrics(...) {}`); we give them a real
// body since a library is actually wired in here.
type Metrics struct {
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failed    *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	waitMs    *prometheus.HistogramVec
	runMs     *prometheus.HistogramVec
	pending   prometheus.Gauge
	slots     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		started:   counter(reg, "started_total", "Dispatches started, by tool."),
		completed: counter(reg, "completed_total", "Dispatches completed successfully, by tool."),
		failed:    counter(reg, "failed_total", "Dispatches that exhausted retries, by tool."),
		cancelled: counter(reg, "cancelled_total", "Dispatches cancelled before completion, by tool."),
		waitMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soulbrowser", Subsystem: "orchestrator", Name: "wait_ms",
			Help: "Queue wait time in milliseconds, by tool.", Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		runMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soulbrowser", Subsystem: "orchestrator", Name: "run_ms",
			Help: "Execution time in milliseconds, by tool.", Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulbrowser", Subsystem: "scheduler", Name: "pending",
			Help: "Jobs queued or eligible but not yet running.",
		}),
		slots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "soulbrowser", Subsystem: "scheduler", Name: "slots_available",
			Help: "Concurrency slots currently free.",
		}),
	}
	reg.MustRegister(m.started, m.completed, m.failed, m.cancelled, m.waitMs, m.runMs, m.pending, m.slots)
	return m
}

// recordQueueState refreshes the scheduler's queue-depth/slots-available
// gauges, sampled at every dispatch outcome alongside the per-tool
// counters.
func (m *Metrics) recordQueueState(pending, slots int) {
	m.pending.Set(float64(pending))
	m.slots.Set(float64(slots))
}

func counter(reg prometheus.Registerer, name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soulbrowser", Subsystem: "orchestrator", Name: name, Help: help,
	}, []string{"tool"})
}

func (m *Metrics) recordStarted(tool string)   { m.started.WithLabelValues(tool).Inc() }
func (m *Metrics) recordCancelled(tool string) { m.cancelled.WithLabelValues(tool).Inc() }

func (m *Metrics) recordSuccess(tool string, waitMs, runMs int64) {
	m.completed.WithLabelValues(tool).Inc()
	m.waitMs.WithLabelValues(tool).Observe(float64(waitMs))
	m.runMs.WithLabelValues(tool).Observe(float64(runMs))
}

func (m *Metrics) recordFailure(tool string, waitMs, runMs int64) {
	m.failed.WithLabelValues(tool).Inc()
	m.waitMs.WithLabelValues(tool).Observe(float64(waitMs))
	m.runMs.WithLabelValues(tool).Observe(float64(runMs))
}
