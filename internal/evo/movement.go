package evo

import (
	"fmt"
	"strings"

	"gridforage/internal/model"
)

// OutOfBoundsPolicy decides whether an agent that leaves the world keeps moving.
type OutOfBoundsPolicy int

const (
	OutOfBoundsFreeze OutOfBoundsPolicy = iota
	OutOfBoundsContinue
)

func (p OutOfBoundsPolicy) String() string {
	switch p {
	case OutOfBoundsFreeze:
		return "freeze"
	case OutOfBoundsContinue:
		return "continue"
	default:
		return fmt.Sprintf("OutOfBoundsPolicy(%d)", int(p))
	}
}

func (p OutOfBoundsPolicy) Valid() bool {
	return p == OutOfBoundsFreeze || p == OutOfBoundsContinue
}

func ParseOutOfBoundsPolicy(s string) (OutOfBoundsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "freeze":
		return OutOfBoundsFreeze, nil
	case "continue", "continue_moving":
		return OutOfBoundsContinue, nil
	default:
		return 0, fmt.Errorf("%w: unknown out-of-bounds policy %q", ErrInvalidConfiguration, s)
	}
}

// MovementSimulator advances a single agent by one tick.
type MovementSimulator struct {
	World      model.World
	Directions DirectionSet
	Policy     OutOfBoundsPolicy
}

// Terminal reports whether the agent has stopped moving for good.
func (s MovementSimulator) Terminal(a *model.Agent) bool {
	if a.ReachedFood {
		return true
	}
	return a.StrayedOutOfBounds && s.Policy == OutOfBoundsFreeze
}

// Step applies genome[tick-1] to a. Terminal agents are left untouched.
func (s MovementSimulator) Step(a *model.Agent, tick int) error {
	if s.Terminal(a) {
		return nil
	}
	if tick < 1 || tick > len(a.Genome) {
		return fmt.Errorf("%w: agent %d tick %d genome length %d", ErrGenomeIndexOutOfRange, a.ID, tick, len(a.Genome))
	}
	v, err := s.Directions.Displacement(a.Genome[tick-1])
	if err != nil {
		return fmt.Errorf("agent %d tick %d: %w", a.ID, tick, err)
	}

	a.Position = a.Position.Add(v)
	a.TicksElapsed = tick

	if !s.World.Contains(a.Position) {
		a.StrayedOutOfBounds = true
	}
	if a.Position == s.World.Food {
		a.ReachedFood = true
	}
	return nil
}
