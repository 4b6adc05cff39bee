package evo

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sourcegraph/conc/pool"

	"gridforage/internal/model"
)

type RunnerState int

const (
	StateInitialized RunnerState = iota
	StateRunning
	StateScored
	StateNextGenerationReady
)

func (s RunnerState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateScored:
		return "scored"
	case StateNextGenerationReady:
		return "next_generation_ready"
	default:
		return fmt.Sprintf("RunnerState(%d)", int(s))
	}
}

// GenerationRunner drives one generation through
// initialized -> running -> scored -> next generation ready.
type GenerationRunner struct {
	cfg      Config
	sim      MovementSimulator
	eval     FitnessEvaluator
	maxTicks int

	population model.Population
	tick       int
	state      RunnerState
	guards     []error
	next       model.Population
}

// NewGenerationRunner takes ownership of a copy of population.
func NewGenerationRunner(cfg Config, population model.Population, maxTicks int) (*GenerationRunner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maxTicks < 0 || maxTicks > cfg.GenomeLength {
		return nil, fmt.Errorf("%w: max ticks must be in [0, %d], got %d", ErrInvalidConfiguration, cfg.GenomeLength, maxTicks)
	}
	if len(population.Agents) == 0 {
		return nil, fmt.Errorf("%w: population is empty", ErrInvalidConfiguration)
	}
	for _, agent := range population.Agents {
		if len(agent.Genome) != cfg.GenomeLength {
			return nil, fmt.Errorf("%w: agent %d has %d genes, want %d", ErrGenomeLengthMismatch, agent.ID, len(agent.Genome), cfg.GenomeLength)
		}
	}

	world := cfg.World()
	return &GenerationRunner{
		cfg: cfg,
		sim: MovementSimulator{
			World:      world,
			Directions: cfg.Directions,
			Policy:     cfg.OutOfBounds,
		},
		eval: FitnessEvaluator{
			Ticks: cfg.GenomeLength,
			Food:  world.Food,
		},
		maxTicks:   maxTicks,
		population: population.Clone(),
		state:      StateInitialized,
	}, nil
}

func (r *GenerationRunner) State() RunnerState {
	return r.state
}

func (r *GenerationRunner) Tick() int {
	return r.tick
}

// Done reports whether running has stopped: the tick budget is spent or every
// agent is terminal.
func (r *GenerationRunner) Done() bool {
	if r.tick >= r.maxTicks {
		return true
	}
	for i := range r.population.Agents {
		if !r.sim.Terminal(&r.population.Agents[i]) {
			return false
		}
	}
	return true
}

// Step advances every non-terminal agent by one tick. It returns false once
// running has stopped.
func (r *GenerationRunner) Step(ctx context.Context) (bool, error) {
	if r.state != StateInitialized && r.state != StateRunning {
		return false, fmt.Errorf("%w: step in state %s", ErrInvalidState, r.state)
	}
	if r.Done() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.state = StateRunning

	tick := r.tick + 1
	if err := r.moveAll(tick); err != nil {
		return false, err
	}
	r.tick = tick
	return true, nil
}

func (r *GenerationRunner) moveAll(tick int) error {
	agents := r.population.Agents
	if r.cfg.Workers <= 1 {
		for i := range agents {
			if err := r.sim.Step(&agents[i], tick); err != nil {
				return err
			}
		}
		return nil
	}

	p := pool.New().WithErrors().WithMaxGoroutines(r.cfg.Workers)
	for i := range agents {
		p.Go(func() error {
			return r.sim.Step(&agents[i], tick)
		})
	}
	return p.Wait()
}

// Snapshot reports every agent at the current tick.
func (r *GenerationRunner) Snapshot() []model.Snapshot {
	out := make([]model.Snapshot, len(r.population.Agents))
	for i, agent := range r.population.Agents {
		out[i] = model.Snapshot{
			Tick:               r.tick,
			AgentID:            agent.ID,
			X:                  agent.Position.X,
			Y:                  agent.Position.Y,
			ReachedFood:        agent.ReachedFood,
			StrayedOutOfBounds: agent.StrayedOutOfBounds,
		}
	}
	return out
}

// Run steps until done, handing each tick's snapshot to observe when set.
func (r *GenerationRunner) Run(ctx context.Context, observe func([]model.Snapshot)) error {
	for {
		advanced, err := r.Step(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			return nil
		}
		if observe != nil {
			observe(r.Snapshot())
		}
	}
}

// Score evaluates every agent once, including agents that never moved.
func (r *GenerationRunner) Score() error {
	if r.state != StateInitialized && r.state != StateRunning {
		return fmt.Errorf("%w: score in state %s", ErrInvalidState, r.state)
	}
	if !r.Done() {
		return fmt.Errorf("%w: score before running finished at tick %d/%d", ErrInvalidState, r.tick, r.maxTicks)
	}
	for i := range r.population.Agents {
		if guard := r.eval.Score(&r.population.Agents[i]); guard != nil {
			r.guards = append(r.guards, guard)
		}
	}
	r.state = StateScored
	return nil
}

// Guards returns the guarded conditions raised while scoring.
func (r *GenerationRunner) Guards() []error {
	return append([]error(nil), r.guards...)
}

// Population returns a copy of the runner's current population.
func (r *GenerationRunner) Population() model.Population {
	return r.population.Clone()
}

// BreedNext produces the replacement population from the scored one.
func (r *GenerationRunner) BreedNext(rng *rand.Rand, size int) (model.Population, error) {
	if r.state != StateScored {
		return model.Population{}, fmt.Errorf("%w: breed in state %s", ErrInvalidState, r.state)
	}
	next, err := BreedPopulation(rng, r.population, size, r.cfg.Start, Breeder{Mutation: PointMutation{Rate: r.cfg.Mutability}})
	if err != nil {
		return model.Population{}, err
	}
	r.next = next
	r.state = StateNextGenerationReady
	return next.Clone(), nil
}

// Next returns the bred population once the runner reached the final state.
func (r *GenerationRunner) Next() (model.Population, bool) {
	if r.state != StateNextGenerationReady {
		return model.Population{}, false
	}
	return r.next.Clone(), true
}
