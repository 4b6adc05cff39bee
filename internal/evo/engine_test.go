package evo

import (
	"context"
	"math/rand"
	"reflect"
	"testing"

	"gridforage/internal/model"
)

func TestEngineRunGenerationScoresPositiveFitness(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	population, err := engine.CreatePopulation(rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("create population: %v", err)
	}
	run, err := engine.RunGeneration(context.Background(), population, engine.Config().GenomeLength)
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}
	if len(run.Final.Agents) != len(population.Agents) {
		t.Fatalf("expected %d agents, got %d", len(population.Agents), len(run.Final.Agents))
	}
	for _, agent := range run.Final.Agents {
		if agent.Fitness <= 0 {
			t.Fatalf("agent %d: expected positive fitness, got %v", agent.ID, agent.Fitness)
		}
	}
	for _, agent := range population.Agents {
		if agent.Fitness != 0 || agent.TicksElapsed != 0 {
			t.Fatal("run generation modified its input population")
		}
	}
}

func TestGenerationRunSnapshotsAreLazyAndRestartable(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	population, err := engine.CreatePopulation(rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("create population: %v", err)
	}
	run, err := engine.RunGeneration(context.Background(), population, engine.Config().GenomeLength)
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}

	collect := func() []model.Snapshot {
		var out []model.Snapshot
		for snap := range run.Snapshots() {
			out = append(out, snap)
		}
		return out
	}
	first := collect()
	second := collect()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected snapshot sequence to replay identically")
	}
	if len(first) != run.TicksRun*len(population.Agents) {
		t.Fatalf("expected %d snapshots, got %d", run.TicksRun*len(population.Agents), len(first))
	}

	last := first[len(first)-len(population.Agents):]
	for i, snap := range last {
		agent := run.Final.Agents[i]
		if snap.Tick != run.TicksRun || snap.X != agent.Position.X || snap.Y != agent.Position.Y ||
			snap.ReachedFood != agent.ReachedFood || snap.StrayedOutOfBounds != agent.StrayedOutOfBounds {
			t.Fatalf("last snapshot %+v does not match final agent %+v", snap, agent)
		}
	}

	taken := 0
	for range run.Snapshots() {
		taken++
		if taken == 3 {
			break
		}
	}
	if taken != 3 {
		t.Fatalf("expected early break after 3 snapshots, got %d", taken)
	}
}

func TestGenerationRunFramesGroupByTick(t *testing.T) {
	cfg := testConfig()
	cfg.PopulationSize = 3
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	population, err := engine.CreatePopulation(rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("create population: %v", err)
	}
	run, err := engine.RunGeneration(context.Background(), population, 10)
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}
	want := 1
	for tick, frame := range run.Frames() {
		if tick != want {
			t.Fatalf("expected tick %d, got %d", want, tick)
		}
		if len(frame) != 3 {
			t.Fatalf("tick %d: expected 3 snapshots, got %d", tick, len(frame))
		}
		want++
	}
	if want-1 != run.TicksRun {
		t.Fatalf("expected %d frames, got %d", run.TicksRun, want-1)
	}
}

func TestEngineSameSeedReproducesGeneration(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	cycle := func(seed int64) model.Population {
		rng := rand.New(rand.NewSource(seed))
		population, err := engine.CreatePopulation(rng)
		if err != nil {
			t.Fatalf("create population: %v", err)
		}
		run, err := engine.RunGeneration(context.Background(), population, engine.Config().GenomeLength)
		if err != nil {
			t.Fatalf("run generation: %v", err)
		}
		next, err := engine.BreedNextGeneration(rng, run.Final, engine.Config().PopulationSize)
		if err != nil {
			t.Fatalf("breed: %v", err)
		}
		return next
	}
	if !reflect.DeepEqual(cycle(42), cycle(42)) {
		t.Fatal("expected identical generations for identical seeds")
	}
}

func TestEngineBreedNextGenerationSize(t *testing.T) {
	engine, err := NewEngine(testConfig())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	population, err := engine.CreatePopulation(rng)
	if err != nil {
		t.Fatalf("create population: %v", err)
	}
	run, err := engine.RunGeneration(context.Background(), population, engine.Config().GenomeLength)
	if err != nil {
		t.Fatalf("run generation: %v", err)
	}
	next, err := engine.BreedNextGeneration(rng, run.Final, 17)
	if err != nil {
		t.Fatalf("breed: %v", err)
	}
	if len(next.Agents) != 17 {
		t.Fatalf("expected 17 agents, got %d", len(next.Agents))
	}
	for _, agent := range next.Agents {
		if agent.Position != engine.World().Start || agent.TicksElapsed != 0 || agent.Fitness != 0 || agent.ReachedFood || agent.StrayedOutOfBounds {
			t.Fatalf("agent not reset: %+v", agent)
		}
	}
}
