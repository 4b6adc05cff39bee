package evo

import (
	"fmt"

	"gridforage/internal/model"
)

const (
	foodReward        = 5.0
	proximityScale    = 10.0
	outOfBoundsFactor = 0.5
)

// FitnessEvaluator scores finished agents. Ticks is the genome length, so the
// arrival reward does not depend on a truncated tick budget.
type FitnessEvaluator struct {
	Ticks int
	Food  model.Position
}

// Score writes the agent's fitness. A non-nil error is a guarded condition:
// the fitness is still written and remains positive.
func (e FitnessEvaluator) Score(a *model.Agent) error {
	var guard error
	if a.ReachedFood {
		a.Fitness = foodReward + float64(e.Ticks-a.TicksElapsed)
	} else {
		distance := ManhattanDistance(a.Position, e.Food)
		if distance == 0 {
			guard = fmt.Errorf("%w: agent %d at %v without reaching food", ErrDivisionByZeroFitness, a.ID, a.Position)
			distance = 1
		}
		a.Fitness = proximityScale / float64(distance)
	}

	if a.StrayedOutOfBounds {
		a.Fitness *= outOfBoundsFactor
	}
	return guard
}

func ManhattanDistance(a, b model.Position) int {
	return abs(b.X-a.X) + abs(b.Y-a.Y)
}
