package evo

import (
	"errors"
	"math/rand"
	"testing"

	"gridforage/internal/model"
)

func TestCrossoverTakesPrefixAndSuffix(t *testing.T) {
	a := mustGenome("UUUUUUUUUU")
	b := mustGenome("DDDDDDDDDD")

	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		child, err := Crossover(rng, a, b)
		if err != nil {
			t.Fatalf("crossover: %v", err)
		}
		if len(child) != len(a) {
			t.Fatalf("expected length %d, got %d", len(a), len(child))
		}
		cut := rand.New(rand.NewSource(seed)).Intn(len(a))
		for i := range child {
			want := b[i]
			if i < cut {
				want = a[i]
			}
			if child[i] != want {
				t.Fatalf("seed %d: gene %d expected %s, got %s", seed, i, want, child[i])
			}
		}
	}
}

func TestCrossoverAtBoundaries(t *testing.T) {
	a := mustGenome("UDLR")
	b := mustGenome("RLDU")

	child, err := CrossoverAt(a, b, 0)
	if err != nil {
		t.Fatalf("crossover: %v", err)
	}
	if child.String() != "RLDU" {
		t.Fatalf("cut 0 should copy second parent, got %s", child)
	}
	child, err = CrossoverAt(a, b, 2)
	if err != nil {
		t.Fatalf("crossover: %v", err)
	}
	if child.String() != "UDDU" {
		t.Fatalf("expected UDDU, got %s", child)
	}
	if a.String() != "UDLR" || b.String() != "RLDU" {
		t.Fatal("crossover modified a parent")
	}
}

func TestCrossoverRejectsLengthMismatch(t *testing.T) {
	_, err := Crossover(rand.New(rand.NewSource(1)), mustGenome("UU"), mustGenome("UUU"))
	if !errors.Is(err, ErrGenomeLengthMismatch) {
		t.Fatalf("expected length mismatch, got %v", err)
	}
}

func TestMutateZeroRateIsIdentity(t *testing.T) {
	genome := RandomGenome(rand.New(rand.NewSource(5)), 200)
	mutated := Mutate(rand.New(rand.NewSource(9)), genome, 0)
	if mutated.String() != genome.String() {
		t.Fatal("expected identity with zero mutability")
	}
}

func TestMutateFullRateRedrawsEveryGene(t *testing.T) {
	genome := padGenome("", "U", 400)
	mutated := Mutate(rand.New(rand.NewSource(9)), genome, 1)
	if len(mutated) != len(genome) {
		t.Fatalf("expected length %d, got %d", len(genome), len(mutated))
	}
	seen := map[model.Gene]bool{}
	for _, gene := range mutated {
		seen[gene] = true
	}
	if len(seen) != len(model.AllGenes) {
		t.Fatalf("expected all genes after full redraw, got %v", seen)
	}
	if genome.String() != padGenome("", "U", 400).String() {
		t.Fatal("mutate modified its input")
	}
}

func TestBreederAllowsSelfFertilization(t *testing.T) {
	population := model.Population{Agents: []model.Agent{{ID: 0, Genome: mustGenome("UDLRUDLR"), Fitness: 3}}}
	pool := BuildSelectionPool(population)
	breeder := Breeder{Mutation: PointMutation{Rate: 0}}

	child, err := breeder.Offspring(rand.New(rand.NewSource(2)), pool)
	if err != nil {
		t.Fatalf("offspring: %v", err)
	}
	if child.String() != "UDLRUDLR" {
		t.Fatalf("expected clone of the only parent, got %s", child)
	}
}

func TestBreedPopulationResetsAgents(t *testing.T) {
	cfg := testConfig()
	scored := model.Population{Generation: 3}
	for i := 0; i < 6; i++ {
		scored.Agents = append(scored.Agents, model.Agent{
			ID:                 i,
			Position:           model.Position{X: i, Y: -1},
			Genome:             RandomGenome(rand.New(rand.NewSource(int64(i))), cfg.GenomeLength),
			TicksElapsed:       40,
			Fitness:            float64(i + 1),
			ReachedFood:        i%2 == 0,
			StrayedOutOfBounds: i%2 == 1,
		})
	}

	for _, size := range []int{1, 6, 25} {
		next, err := BreedPopulation(rand.New(rand.NewSource(11)), scored, size, cfg.Start, Breeder{Mutation: PointMutation{Rate: cfg.Mutability}})
		if err != nil {
			t.Fatalf("breed size %d: %v", size, err)
		}
		if len(next.Agents) != size {
			t.Fatalf("expected %d agents, got %d", size, len(next.Agents))
		}
		if next.Generation != 4 {
			t.Fatalf("expected generation 4, got %d", next.Generation)
		}
		for i, agent := range next.Agents {
			if agent.ID != i || agent.Position != cfg.Start || agent.TicksElapsed != 0 || agent.Fitness != 0 || agent.ReachedFood || agent.StrayedOutOfBounds {
				t.Fatalf("agent %d not reset: %+v", i, agent)
			}
			if len(agent.Genome) != cfg.GenomeLength {
				t.Fatalf("agent %d genome length %d", i, len(agent.Genome))
			}
		}
	}
}

func TestBreedPopulationRejectsDegeneratePool(t *testing.T) {
	scored := scoredPopulation(0.1, 0.3)
	_, err := BreedPopulation(rand.New(rand.NewSource(1)), scored, 2, model.Position{}, Breeder{Mutation: PointMutation{}})
	if !errors.Is(err, ErrDegenerateSelectionPool) {
		t.Fatalf("expected degenerate pool error, got %v", err)
	}
}
