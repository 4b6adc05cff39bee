package evo

import (
	"errors"
	"testing"

	"gridforage/internal/model"
)

func newSimulator(policy OutOfBoundsPolicy) MovementSimulator {
	return MovementSimulator{World: testWorld(), Directions: CardinalDirections(), Policy: policy}
}

func TestMovementSimulatorAppliesGeneForTick(t *testing.T) {
	sim := newSimulator(OutOfBoundsFreeze)
	agent := model.Agent{Position: model.Position{X: 10, Y: 10}, Genome: mustGenome("LURD")}

	want := []model.Position{{X: 9, Y: 10}, {X: 9, Y: 9}, {X: 10, Y: 9}, {X: 10, Y: 10}}
	for i, pos := range want {
		if err := sim.Step(&agent, i+1); err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
		if agent.Position != pos {
			t.Fatalf("tick %d: expected %v, got %v", i+1, pos, agent.Position)
		}
		if agent.TicksElapsed != i+1 {
			t.Fatalf("tick %d: expected ticks elapsed %d, got %d", i+1, i+1, agent.TicksElapsed)
		}
	}
}

func TestMovementSimulatorReachedFoodFreezesAgent(t *testing.T) {
	sim := newSimulator(OutOfBoundsContinue)
	agent := model.Agent{Position: model.Position{X: 2, Y: 1}, Genome: mustGenome("LLLL")}

	for tick := 1; tick <= 4; tick++ {
		if err := sim.Step(&agent, tick); err != nil {
			t.Fatalf("step %d: %v", tick, err)
		}
		if !agent.ReachedFood {
			t.Fatalf("tick %d: expected reached food", tick)
		}
		if agent.Position != (model.Position{X: 1, Y: 1}) {
			t.Fatalf("tick %d: agent moved after reaching food: %v", tick, agent.Position)
		}
		if agent.TicksElapsed != 1 {
			t.Fatalf("tick %d: expected ticks elapsed to stay 1, got %d", tick, agent.TicksElapsed)
		}
	}
}

func TestMovementSimulatorOutOfBoundsOnFirstMove(t *testing.T) {
	sim := newSimulator(OutOfBoundsFreeze)
	agent := model.Agent{Position: model.Position{X: 0, Y: 0}, Genome: mustGenome("UDDD")}

	if err := sim.Step(&agent, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !agent.StrayedOutOfBounds {
		t.Fatal("expected strayed out of bounds after tick 1")
	}
	if agent.Position != (model.Position{X: 0, Y: -1}) {
		t.Fatalf("unexpected position %v", agent.Position)
	}
	if !sim.Terminal(&agent) {
		t.Fatal("expected frozen agent to be terminal")
	}
	if err := sim.Step(&agent, 2); err != nil {
		t.Fatalf("step: %v", err)
	}
	if agent.Position != (model.Position{X: 0, Y: -1}) || agent.TicksElapsed != 1 {
		t.Fatalf("frozen agent moved: %+v", agent)
	}
}

func TestMovementSimulatorUpperBoundIsExclusive(t *testing.T) {
	sim := newSimulator(OutOfBoundsFreeze)
	agent := model.Agent{Position: model.Position{X: 19, Y: 5}, Genome: mustGenome("R")}
	if err := sim.Step(&agent, 1); err != nil {
		t.Fatalf("step: %v", err)
	}
	if !agent.StrayedOutOfBounds {
		t.Fatal("expected x == width to be out of bounds")
	}
}

func TestMovementSimulatorContinuePolicyKeepsMoving(t *testing.T) {
	sim := newSimulator(OutOfBoundsContinue)
	agent := model.Agent{Position: model.Position{X: 0, Y: 0}, Genome: mustGenome("UDDR")}

	for tick := 1; tick <= 4; tick++ {
		if err := sim.Step(&agent, tick); err != nil {
			t.Fatalf("step %d: %v", tick, err)
		}
	}
	if sim.Terminal(&agent) {
		t.Fatal("strayed agent must not be terminal under continue policy")
	}
	if !agent.StrayedOutOfBounds {
		t.Fatal("expected strayed flag to stay set after returning in bounds")
	}
	if agent.Position != (model.Position{X: 1, Y: 1}) || !agent.ReachedFood {
		t.Fatalf("expected agent to walk back onto food, got %+v", agent)
	}
}

func TestMovementSimulatorRejectsTickOutsideGenome(t *testing.T) {
	sim := newSimulator(OutOfBoundsFreeze)
	agent := model.Agent{Position: model.Position{X: 5, Y: 5}, Genome: mustGenome("UU")}

	for _, tick := range []int{0, 3} {
		err := sim.Step(&agent, tick)
		if !errors.Is(err, ErrGenomeIndexOutOfRange) {
			t.Fatalf("tick %d: expected out of range error, got %v", tick, err)
		}
	}
	if agent.Position != (model.Position{X: 5, Y: 5}) {
		t.Fatalf("agent moved on rejected tick: %v", agent.Position)
	}
}

func TestParseOutOfBoundsPolicy(t *testing.T) {
	cases := map[string]OutOfBoundsPolicy{
		"":         OutOfBoundsFreeze,
		"freeze":   OutOfBoundsFreeze,
		"Continue": OutOfBoundsContinue,
	}
	for input, want := range cases {
		got, err := ParseOutOfBoundsPolicy(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", input, want, got)
		}
	}
	if _, err := ParseOutOfBoundsPolicy("bounce"); !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected invalid configuration, got %v", err)
	}
}
