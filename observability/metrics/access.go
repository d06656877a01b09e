package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AccessMetrics exposes the Prometheus instrumentation for the PAP and PDP
// engines: how many policies were admitted (and with what result), how many
// decisions were rendered (and with what code), and how long evaluation took.
type AccessMetrics struct {
	policiesAdmitted *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	decisionSeconds  prometheus.Histogram
}

var (
	accessOnce     sync.Once
	accessRegistry *AccessMetrics
)

// Access returns the process-wide AccessMetrics registry, registering its
// collectors with the default Prometheus registerer on first use.
func Access() *AccessMetrics {
	accessOnce.Do(func() {
		accessRegistry = &AccessMetrics{
			policiesAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "access_policies_admitted_total",
				Help: "Count of add_policy outcomes by result.",
			}, []string{"result"}),
			decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "access_decisions_total",
				Help: "Count of PDP decisions by code.",
			}, []string{"code"}),
			decisionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "access_decision_seconds",
				Help:    "Time spent evaluating a single decide() call.",
				Buckets: prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			accessRegistry.policiesAdmitted,
			accessRegistry.decisions,
			accessRegistry.decisionSeconds,
		)
	})
	return accessRegistry
}

// ObservePolicyAdmitted records the outcome of an add_policy call.
func (m *AccessMetrics) ObservePolicyAdmitted(result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.policiesAdmitted.WithLabelValues(result).Inc()
}

// ObserveDecision records a rendered decision code.
func (m *AccessMetrics) ObserveDecision(code int) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(strconv.Itoa(code)).Inc()
}

// ObserveDecisionSeconds records how long a decide() call took.
func (m *AccessMetrics) ObserveDecisionSeconds(seconds float64) {
	if m == nil {
		return
	}
	m.decisionSeconds.Observe(seconds)
}
