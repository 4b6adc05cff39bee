package stats

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gridforage/internal/evo"
	"gridforage/internal/model"
)

func TestMetricsObserverRecordsGeneration(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}

	observer := metrics.Observer("run-1")
	for _, d := range []model.GenerationDiagnostics{
		{Generation: 0, BestFitness: 5, MeanFitness: 1, ReachedFood: 0, StrayedOutOfBounds: 3, TicksRun: 100, GuardedConditions: 1},
		{Generation: 1, BestFitness: 90, MeanFitness: 12, ReachedFood: 2, StrayedOutOfBounds: 1, TicksRun: 64},
	} {
		if err := observer.ObserveGeneration(context.Background(), evo.GenerationRun{}, d); err != nil {
			t.Fatalf("observe: %v", err)
		}
	}

	if got := testutil.ToFloat64(metrics.generations.WithLabelValues("run-1")); got != 2 {
		t.Fatalf("generations: got %v", got)
	}
	if got := testutil.ToFloat64(metrics.bestFitness.WithLabelValues("run-1")); got != 90 {
		t.Fatalf("best fitness: got %v", got)
	}
	if got := testutil.ToFloat64(metrics.meanFitness.WithLabelValues("run-1")); got != 12 {
		t.Fatalf("mean fitness: got %v", got)
	}
	if got := testutil.ToFloat64(metrics.reachedFood.WithLabelValues("run-1")); got != 2 {
		t.Fatalf("reached food: got %v", got)
	}
	if got := testutil.ToFloat64(metrics.strayed.WithLabelValues("run-1")); got != 1 {
		t.Fatalf("strayed: got %v", got)
	}
	if got := testutil.ToFloat64(metrics.guards.WithLabelValues("run-1")); got != 1 {
		t.Fatalf("guards: got %v", got)
	}

	metrics.RunFinished(evo.StopReasonCompleted)
	if got := testutil.ToFloat64(metrics.runsFinished.WithLabelValues(evo.StopReasonCompleted)); got != 1 {
		t.Fatalf("runs finished: got %v", got)
	}
}

func TestNewMetricsRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}
