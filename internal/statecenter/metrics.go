package statecenter

import "github.com/prometheus/client_golang/prometheus"

// Metrics exports the running counters as Prometheus series, following the
// teacher's client_golang usage elsewhere in the stack.
type Metrics struct {
	eventsTotal    *prometheus.CounterVec
	dispatchByTool *prometheus.CounterVec
}

// NewMetrics registers the state center's counters against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soulbrowser",
			Subsystem: "statecenter",
			Name:      "events_total",
			Help:      "Events appended to the state center, by kind.",
		}, []string{"kind"}),
		dispatchByTool: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soulbrowser",
			Subsystem: "statecenter",
			Name:      "dispatch_events_total",
			Help:      "Dispatch events appended to the state center, by tool and status.",
		}, []string{"tool", "status"}),
	}
	reg.MustRegister(m.eventsTotal, m.dispatchByTool)
	return m
}

func (m *Metrics) observe(event StateEvent, _ StateCenterStats) {
	switch event.Kind {
	case EventDispatch:
		m.eventsTotal.WithLabelValues("dispatch").Inc()
		m.dispatchByTool.WithLabelValues(event.Dispatch.Tool, event.Dispatch.Status.String()).Inc()
	case EventRegistry:
		m.eventsTotal.WithLabelValues("registry").Inc()
	}
}
