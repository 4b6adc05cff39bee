package evo

import (
	"fmt"

	"gridforage/internal/model"
)

// DirectionSet maps each gene to the displacement it applies.
type DirectionSet [len(model.AllGenes)]model.Vector

// CardinalDirections is the screen-oriented set: UP decreases y.
func CardinalDirections() DirectionSet {
	var set DirectionSet
	set[model.GeneUp] = model.Vector{DX: 0, DY: -1}
	set[model.GeneDown] = model.Vector{DX: 0, DY: 1}
	set[model.GeneLeft] = model.Vector{DX: -1, DY: 0}
	set[model.GeneRight] = model.Vector{DX: 1, DY: 0}
	return set
}

func (d DirectionSet) Displacement(g model.Gene) (model.Vector, error) {
	if !g.Valid() {
		return model.Vector{}, fmt.Errorf("unknown gene %d", uint8(g))
	}
	return d[g], nil
}

func (d DirectionSet) validate() error {
	for _, gene := range model.AllGenes {
		v := d[gene]
		if abs(v.DX)+abs(v.DY) != 1 {
			return fmt.Errorf("%w: direction %s must be a unit vector, got (%d,%d)", ErrInvalidConfiguration, gene, v.DX, v.DY)
		}
	}
	return nil
}

// Config carries every engine parameter. The engine has no built-in defaults;
// callers supply all of them.
type Config struct {
	PopulationSize int
	GenomeLength   int
	Width          int
	Height         int
	Start          model.Position
	Food           model.Position
	Mutability     float64
	Directions     DirectionSet
	OutOfBounds    OutOfBoundsPolicy
	// Workers > 1 fans out the moves of a tick to a bounded goroutine pool.
	Workers int
}

func (c Config) Validate() error {
	if c.PopulationSize <= 0 {
		return fmt.Errorf("%w: population size must be > 0, got %d", ErrInvalidConfiguration, c.PopulationSize)
	}
	if c.GenomeLength <= 0 {
		return fmt.Errorf("%w: genome length must be > 0, got %d", ErrInvalidConfiguration, c.GenomeLength)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: world dimensions must be > 0, got %dx%d", ErrInvalidConfiguration, c.Width, c.Height)
	}
	if c.Mutability < 0 || c.Mutability > 1 {
		return fmt.Errorf("%w: mutability must be in [0, 1], got %v", ErrInvalidConfiguration, c.Mutability)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfiguration, c.Workers)
	}
	if !c.OutOfBounds.Valid() {
		return fmt.Errorf("%w: unknown out-of-bounds policy %d", ErrInvalidConfiguration, int(c.OutOfBounds))
	}
	world := c.World()
	if !world.Contains(c.Start) {
		return fmt.Errorf("%w: start %v outside %dx%d world", ErrInvalidConfiguration, c.Start, c.Width, c.Height)
	}
	if !world.Contains(c.Food) {
		return fmt.Errorf("%w: food %v outside %dx%d world", ErrInvalidConfiguration, c.Food, c.Width, c.Height)
	}
	return c.Directions.validate()
}

func (c Config) World() model.World {
	return model.World{
		Width:  c.Width,
		Height: c.Height,
		Food:   c.Food,
		Start:  c.Start,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
