package evo

import (
	"strings"

	"gridforage/internal/model"
)

func testConfig() Config {
	return Config{
		PopulationSize: 10,
		GenomeLength:   100,
		Width:          20,
		Height:         20,
		Start:          model.Position{X: 10, Y: 10},
		Food:           model.Position{X: 1, Y: 1},
		Mutability:     0.01,
		Directions:     CardinalDirections(),
		OutOfBounds:    OutOfBoundsFreeze,
	}
}

func mustGenome(s string) model.Genome {
	genome, err := model.ParseGenome(s)
	if err != nil {
		panic(err)
	}
	return genome
}

// padGenome fills s up to length with fill.
func padGenome(s string, fill string, length int) model.Genome {
	if len(s) < length {
		s += strings.Repeat(fill, length-len(s))
	}
	return mustGenome(s)
}

func testWorld() model.World {
	return testConfig().World()
}
