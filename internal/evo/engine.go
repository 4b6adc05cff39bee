package evo

import (
	"context"
	"fmt"
	"iter"
	"math/rand"

	"gridforage/internal/model"
)

// Engine is the simulation context: a validated configuration shared by the
// operations of every generation. It holds no mutable state.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) World() model.World {
	return e.cfg.World()
}

func (e *Engine) CreatePopulation(rng *rand.Rand) (model.Population, error) {
	return CreatePopulation(rng, e.cfg.PopulationSize, e.cfg.GenomeLength, e.cfg.Start)
}

// GenerationRun is the outcome of simulating and scoring one generation.
type GenerationRun struct {
	Final    model.Population
	TicksRun int
	Guards   []error

	cfg      Config
	initial  model.Population
	maxTicks int
}

// Snapshots replays the generation lazily, one element per tick per agent.
// Every iteration restarts from the initial population, so the sequence can
// be consumed any number of times.
func (g GenerationRun) Snapshots() iter.Seq[model.Snapshot] {
	return func(yield func(model.Snapshot) bool) {
		runner, err := NewGenerationRunner(g.cfg, g.initial, g.maxTicks)
		if err != nil {
			return
		}
		ctx := context.Background()
		for {
			advanced, err := runner.Step(ctx)
			if err != nil || !advanced {
				return
			}
			for _, snap := range runner.Snapshot() {
				if !yield(snap) {
					return
				}
			}
		}
	}
}

// Frames groups the replay by tick.
func (g GenerationRun) Frames() iter.Seq2[int, []model.Snapshot] {
	return func(yield func(int, []model.Snapshot) bool) {
		var frame []model.Snapshot
		tick := 0
		for snap := range g.Snapshots() {
			if snap.Tick != tick && len(frame) > 0 {
				if !yield(tick, frame) {
					return
				}
				frame = nil
			}
			tick = snap.Tick
			frame = append(frame, snap)
		}
		if len(frame) > 0 {
			yield(tick, frame)
		}
	}
}

// RunGeneration simulates population to completion and scores it. The input
// population is not modified.
func (e *Engine) RunGeneration(ctx context.Context, population model.Population, maxTicks int) (GenerationRun, error) {
	runner, err := NewGenerationRunner(e.cfg, population, maxTicks)
	if err != nil {
		return GenerationRun{}, err
	}
	if err := runner.Run(ctx, nil); err != nil {
		return GenerationRun{}, err
	}
	if err := runner.Score(); err != nil {
		return GenerationRun{}, err
	}
	return GenerationRun{
		Final:    runner.Population(),
		TicksRun: runner.Tick(),
		Guards:   runner.Guards(),
		cfg:      e.cfg,
		initial:  population.Clone(),
		maxTicks: maxTicks,
	}, nil
}

// BreedNextGeneration consumes a scored population and returns size new agents.
func (e *Engine) BreedNextGeneration(rng *rand.Rand, scored model.Population, size int) (model.Population, error) {
	if rng == nil {
		return model.Population{}, fmt.Errorf("random source is required")
	}
	return BreedPopulation(rng, scored, size, e.cfg.Start, Breeder{Mutation: PointMutation{Rate: e.cfg.Mutability}})
}
