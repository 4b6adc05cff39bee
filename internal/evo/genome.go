package evo

import (
	"fmt"
	"math/rand"

	"gridforage/internal/model"
)

func RandomGene(rng *rand.Rand) model.Gene {
	return model.AllGenes[rng.Intn(len(model.AllGenes))]
}

func RandomGenome(rng *rand.Rand, length int) model.Genome {
	genome := make(model.Genome, length)
	for i := range genome {
		genome[i] = RandomGene(rng)
	}
	return genome
}

// CreatePopulation builds size agents with random genomes, all placed at start.
func CreatePopulation(rng *rand.Rand, size, genomeLength int, start model.Position) (model.Population, error) {
	if rng == nil {
		return model.Population{}, fmt.Errorf("random source is required")
	}
	if size <= 0 {
		return model.Population{}, fmt.Errorf("%w: population size must be > 0, got %d", ErrInvalidConfiguration, size)
	}
	if genomeLength <= 0 {
		return model.Population{}, fmt.Errorf("%w: genome length must be > 0, got %d", ErrInvalidConfiguration, genomeLength)
	}
	agents := make([]model.Agent, size)
	for i := range agents {
		agents[i] = newAgent(i, start, RandomGenome(rng, genomeLength))
	}
	return model.Population{Agents: agents}, nil
}

func newAgent(id int, start model.Position, genome model.Genome) model.Agent {
	return model.Agent{
		ID:       id,
		Position: start,
		Genome:   genome,
	}
}
