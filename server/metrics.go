package server

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sharedauto/session"
)

// Metrics exposes the per-step inference telemetry as prometheus gauges.
type Metrics struct {
	registry   *prometheus.Registry
	confidence prometheus.Gauge
	belief     *prometheus.GaugeVec
	steps      prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sharedauto_confidence",
			Help: "Maximum probability in the current belief distribution",
		}),
		belief: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sharedauto_belief",
			Help: "Belief probability per candidate goal",
		}, []string{"goal"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sharedauto_steps_total",
			Help: "Executed control steps",
		}),
	}
	m.registry.MustRegister(m.confidence, m.belief, m.steps)
	return m
}

// Observe records one step. goalNames labels the belief entries; indices
// beyond the name list fall back to the goal index.
func (m *Metrics) Observe(res session.StepResult, goalNames []string) {
	m.confidence.Set(res.Confidence)
	m.steps.Inc()
	for i, p := range res.Belief {
		label := fmt.Sprintf("g%d", i)
		if i < len(goalNames) {
			label = goalNames[i]
		}
		m.belief.WithLabelValues(label).Set(p)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
