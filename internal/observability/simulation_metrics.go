package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Simulation run modes.
const (
	ModeSimulate   = "simulate"
	ModeResimulate = "resimulate"
)

// SimulationCollector exposes simulation and artifact store metrics.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	Runs            *prometheus.CounterVec
	RunDurations    *prometheus.HistogramVec
	StoreOperations *prometheus.CounterVec
	Rollbacks       prometheus.Counter
}

// NewSimulationCollector registers simulation metrics against the provided
// registerer.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulation_runs_total",
		Help: "Engine invocations, labeled by request mode and outcome.",
	}, []string{"mode", "outcome"})
	runs, err := registerCounterVec(reg, runs, "simulation_runs_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simulation_run_duration_seconds",
		Help:    "Duration of engine invocations.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"mode"})
	durations, err = registerHistogramVec(reg, durations, "simulation_run_duration_seconds")
	if err != nil {
		return nil, err
	}

	storeOps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenario_store_operations_total",
		Help: "Artifact store operations, labeled by operation and outcome.",
	}, []string{"op", "outcome"})
	storeOps, err = registerCounterVec(reg, storeOps, "scenario_store_operations_total")
	if err != nil {
		return nil, err
	}

	rollbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scenario_rollbacks_total",
		Help: "Stored artifacts removed because their first simulation failed.",
	})
	rollbacks, err = registerCounter(reg, rollbacks, "scenario_rollbacks_total")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:        gatherer,
		Runs:            runs,
		RunDurations:    durations,
		StoreOperations: storeOps,
		Rollbacks:       rollbacks,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveRun records one engine invocation.
func (c *SimulationCollector) ObserveRun(mode string, d time.Duration, err error) {
	if c == nil {
		return
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(mode, outcome(err)).Inc()
	}
	if c.RunDurations != nil {
		c.RunDurations.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// ObserveStore records one artifact store operation.
func (c *SimulationCollector) ObserveStore(op string, err error) {
	if c == nil || c.StoreOperations == nil {
		return
	}
	c.StoreOperations.WithLabelValues(op, outcome(err)).Inc()
}

// IncRollbacks increments the rollback counter.
func (c *SimulationCollector) IncRollbacks() {
	if c == nil || c.Rollbacks == nil {
		return
	}
	c.Rollbacks.Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
