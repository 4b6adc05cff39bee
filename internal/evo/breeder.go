package evo

import (
	"fmt"
	"math/rand"

	"gridforage/internal/model"
)

// Crossover draws a cut point m in [0, len) and returns a[:m] ++ b[m:].
func Crossover(rng *rand.Rand, a, b model.Genome) (model.Genome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrGenomeLengthMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return model.Genome{}, nil
	}
	return CrossoverAt(a, b, rng.Intn(len(a)))
}

func CrossoverAt(a, b model.Genome, cut int) (model.Genome, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d", ErrGenomeLengthMismatch, len(a), len(b))
	}
	if cut < 0 || cut > len(a) {
		return nil, fmt.Errorf("crossover cut %d outside [0, %d]", cut, len(a))
	}
	child := make(model.Genome, len(a))
	copy(child[:cut], a[:cut])
	copy(child[cut:], b[cut:])
	return child, nil
}

// PointMutation replaces each gene with a fresh random one with probability Rate.
type PointMutation struct {
	Rate float64
}

func (PointMutation) Name() string {
	return "point_mutation"
}

func (m PointMutation) Apply(rng *rand.Rand, genome model.Genome) (model.Genome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	return Mutate(rng, genome, m.Rate), nil
}

func Mutate(rng *rand.Rand, genome model.Genome, rate float64) model.Genome {
	mutated := make(model.Genome, len(genome))
	for i, gene := range genome {
		if rng.Float64() < rate {
			mutated[i] = RandomGene(rng)
			continue
		}
		mutated[i] = gene
	}
	return mutated
}

// Breeder produces offspring as mutate(crossover(a, b)).
type Breeder struct {
	Mutation Operator
}

func (b Breeder) Breed(rng *rand.Rand, parentA, parentB model.Genome) (model.Genome, error) {
	if b.Mutation == nil {
		return nil, fmt.Errorf("mutation operator is required")
	}
	child, err := Crossover(rng, parentA, parentB)
	if err != nil {
		return nil, err
	}
	return b.Mutation.Apply(rng, child)
}

// Offspring draws both parents independently from selector; the same parent
// may be drawn twice.
func (b Breeder) Offspring(rng *rand.Rand, selector Selector) (model.Genome, error) {
	parentA, err := selector.PickParent(rng)
	if err != nil {
		return nil, err
	}
	parentB, err := selector.PickParent(rng)
	if err != nil {
		return nil, err
	}
	return b.Breed(rng, parentA, parentB)
}

// BreedPopulation builds size fresh agents at start from the scored population.
func BreedPopulation(rng *rand.Rand, scored model.Population, size int, start model.Position, breeder Breeder) (model.Population, error) {
	if size <= 0 {
		return model.Population{}, fmt.Errorf("%w: population size must be > 0, got %d", ErrInvalidConfiguration, size)
	}
	pool := BuildSelectionPool(scored)
	if pool.Len() == 0 {
		return model.Population{}, fmt.Errorf("%w: generation %d", ErrDegenerateSelectionPool, scored.Generation)
	}

	agents := make([]model.Agent, size)
	for i := range agents {
		genome, err := breeder.Offspring(rng, pool)
		if err != nil {
			return model.Population{}, fmt.Errorf("breed agent %d: %w", i, err)
		}
		agents[i] = newAgent(i, start, genome)
	}
	return model.Population{Generation: scored.Generation + 1, Agents: agents}, nil
}
