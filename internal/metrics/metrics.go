package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Maxopoly/ExilePearl/internal/gate"
	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

// Metrics holds all Prometheus metrics for the pearl service.
type Metrics struct {
	Registry *prometheus.Registry

	PearlsExiled prometheus.Counter
	PearlsFreed  *prometheus.CounterVec
	Vetoes       *prometheus.CounterVec
	DecayTicks   prometheus.Counter
	ActivePearls prometheus.Gauge
}

// New creates and registers all metrics on a fresh registry, so tests and
// multiple instances never collide on the global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PearlsExiled: f.NewCounter(prometheus.CounterOpts{
			Name: "exilepearl_pearls_exiled_total",
			Help: "Total number of committed exiles",
		}),
		PearlsFreed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exilepearl_pearls_freed_total",
			Help: "Total number of committed releases by reason",
		}, []string{"reason"}),
		Vetoes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "exilepearl_transitions_vetoed_total",
			Help: "Total number of transitions cancelled by an observer",
		}, []string{"transition"}),
		DecayTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "exilepearl_decay_ticks_total",
			Help: "Total number of decay passes",
		}),
		ActivePearls: f.NewGauge(prometheus.GaugeOpts{
			Name: "exilepearl_active_pearls",
			Help: "Number of currently active pearls",
		}),
	}
}

// OnCommitted implements gate.Sink.
func (m *Metrics) OnCommitted(_ context.Context, kind gate.Kind, p pearl.Pearl) error {
	switch kind {
	case gate.KindNew:
		m.PearlsExiled.Inc()
	case gate.KindFreed:
		m.PearlsFreed.WithLabelValues(string(p.FreeReason)).Inc()
	}
	return nil
}

// IncrementVetoes records a cancelled transition.
func (m *Metrics) IncrementVetoes(kind gate.Kind) {
	m.Vetoes.WithLabelValues(kind.String()).Inc()
}

// IncrementDecayTicks records one decay pass.
func (m *Metrics) IncrementDecayTicks() {
	m.DecayTicks.Inc()
}

// SetActive records the current registry size.
func (m *Metrics) SetActive(n int) {
	m.ActivePearls.Set(float64(n))
}
