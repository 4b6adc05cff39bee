package evo

import (
	"math/rand"

	"gridforage/internal/model"
)

// Operator transforms a genome into a new one. The input is never modified.
type Operator interface {
	Name() string
	Apply(rng *rand.Rand, genome model.Genome) (model.Genome, error)
}
