package stats

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"gridforage/internal/evo"
	"gridforage/internal/model"
)

const metricsNamespace = "gridforage"

// Metrics exports per-run generation progress. One Metrics value serves many
// runs; each run reports through its own observer.
type Metrics struct {
	generations  *prometheus.CounterVec
	bestFitness  *prometheus.GaugeVec
	meanFitness  *prometheus.GaugeVec
	reachedFood  *prometheus.GaugeVec
	strayed      *prometheus.GaugeVec
	guards       *prometheus.CounterVec
	ticksPerGen  prometheus.Histogram
	runsFinished *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "generations_total",
			Help:      "Scored generations.",
		}, []string{"run_id"}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "best_fitness",
			Help:      "Best fitness of the latest generation.",
		}, []string{"run_id"}),
		meanFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "mean_fitness",
			Help:      "Mean fitness of the latest generation.",
		}, []string{"run_id"}),
		reachedFood: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "reached_food_agents",
			Help:      "Agents of the latest generation that reached the food.",
		}, []string{"run_id"}),
		strayed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "strayed_agents",
			Help:      "Agents of the latest generation that left the world.",
		}, []string{"run_id"}),
		guards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "guarded_conditions_total",
			Help:      "Guarded fitness conditions.",
		}, []string{"run_id"}),
		ticksPerGen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "generation_ticks",
			Help:      "Ticks simulated per generation.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_finished_total",
			Help:      "Finished runs by stop reason.",
		}, []string{"stop_reason"}),
	}

	for _, c := range []prometheus.Collector{
		m.generations, m.bestFitness, m.meanFitness, m.reachedFood,
		m.strayed, m.guards, m.ticksPerGen, m.runsFinished,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observer returns a generation observer labelled with runID.
func (m *Metrics) Observer(runID string) evo.GenerationObserver {
	return evo.GenerationObserverFunc(func(_ context.Context, _ evo.GenerationRun, d model.GenerationDiagnostics) error {
		m.observe(runID, d)
		return nil
	})
}

func (m *Metrics) observe(runID string, d model.GenerationDiagnostics) {
	m.generations.WithLabelValues(runID).Inc()
	m.bestFitness.WithLabelValues(runID).Set(d.BestFitness)
	m.meanFitness.WithLabelValues(runID).Set(d.MeanFitness)
	m.reachedFood.WithLabelValues(runID).Set(float64(d.ReachedFood))
	m.strayed.WithLabelValues(runID).Set(float64(d.StrayedOutOfBounds))
	m.guards.WithLabelValues(runID).Add(float64(d.GuardedConditions))
	m.ticksPerGen.Observe(float64(d.TicksRun))
}

func (m *Metrics) RunFinished(stopReason string) {
	m.runsFinished.WithLabelValues(stopReason).Inc()
}
