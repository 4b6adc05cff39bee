package evo

import (
	"fmt"
	"math"
	"math/rand"

	"gridforage/internal/model"
)

// Selector chooses parents for replication.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand) (model.Genome, error)
}

type poolEntry struct {
	agentID int
	genome  model.Genome
}

// SelectionPool is a fitness-proportionate multiset of genomes: every agent
// appears round(fitness) times. Entries reference the population's genomes
// and must be treated as read-only.
type SelectionPool struct {
	entries []poolEntry
}

func BuildSelectionPool(population model.Population) *SelectionPool {
	total := 0
	for _, agent := range population.Agents {
		total += PoolCopies(agent.Fitness)
	}
	entries := make([]poolEntry, 0, total)
	for _, agent := range population.Agents {
		for n := PoolCopies(agent.Fitness); n > 0; n-- {
			entries = append(entries, poolEntry{agentID: agent.ID, genome: agent.Genome})
		}
	}
	return &SelectionPool{entries: entries}
}

// PoolCopies rounds fitness to the nearest integer, ties rounding up.
func PoolCopies(fitness float64) int {
	if math.IsNaN(fitness) || fitness <= 0 {
		return 0
	}
	return int(math.Floor(fitness + 0.5))
}

func (*SelectionPool) Name() string {
	return "fitness_proportionate"
}

func (p *SelectionPool) Len() int {
	return len(p.entries)
}

// PickParent draws uniformly with replacement.
func (p *SelectionPool) PickParent(rng *rand.Rand) (model.Genome, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(p.entries) == 0 {
		return nil, fmt.Errorf("%w: no agent has rounded fitness above zero", ErrDegenerateSelectionPool)
	}
	return p.entries[rng.Intn(len(p.entries))].genome, nil
}
