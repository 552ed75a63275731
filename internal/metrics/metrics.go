// Package metrics exposes prometheus counters for a running session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the session counters on a private registry so tests and
// repeated runs never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	trialsPresented   *prometheus.CounterVec
	responsesRecorded *prometheus.CounterVec
	blocksScored      *prometheus.CounterVec
}

// New creates and registers the session counters.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trialsPresented: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmback_trials_presented_total",
			Help: "Trials presented, labeled by stimulus category.",
		}, []string{"category"}),
		responsesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmback_responses_recorded_total",
			Help: "Responses recorded, labeled by response key.",
		}, []string{"key"}),
		blocksScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pmback_blocks_scored_total",
			Help: "Blocks scored, labeled by stimulus category.",
		}, []string{"category"}),
	}
	m.registry.MustRegister(
		m.trialsPresented,
		m.responsesRecorded,
		m.blocksScored,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TrialPresented implements session.Metrics.
func (m *Metrics) TrialPresented(category string) {
	m.trialsPresented.WithLabelValues(category).Inc()
}

// ResponseRecorded implements session.Metrics.
func (m *Metrics) ResponseRecorded(key string) {
	m.responsesRecorded.WithLabelValues(key).Inc()
}

// BlockScored implements session.Metrics.
func (m *Metrics) BlockScored(category string) {
	m.blocksScored.WithLabelValues(category).Inc()
}
