package evo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"

	"gridforage/internal/model"
)

type MonitorCommand string

const (
	CommandPause    MonitorCommand = "pause"
	CommandContinue MonitorCommand = "continue"
	CommandStop     MonitorCommand = "stop"
)

const (
	StopReasonCompleted   = "completed"
	StopReasonFitnessGoal = "fitness_goal"
	StopReasonStopped     = "stopped"
)

// GenerationObserver receives every scored generation.
type GenerationObserver interface {
	ObserveGeneration(ctx context.Context, run GenerationRun, diagnostics model.GenerationDiagnostics) error
}

type GenerationObserverFunc func(ctx context.Context, run GenerationRun, diagnostics model.GenerationDiagnostics) error

func (f GenerationObserverFunc) ObserveGeneration(ctx context.Context, run GenerationRun, diagnostics model.GenerationDiagnostics) error {
	return f(ctx, run, diagnostics)
}

type MonitorConfig struct {
	Engine      *Engine
	Generations int
	Seed        int64
	// FitnessGoal stops the run once the best fitness reaches it. 0 disables.
	FitnessGoal float64
	Control     <-chan MonitorCommand
	Observers   []GenerationObserver
	Logger      *slog.Logger
}

type RunResult struct {
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	FinalPopulation       model.Population
	Guards                []error
	StopReason            string
}

type PopulationMonitor struct {
	cfg    MonitorConfig
	rng    *rand.Rand
	logger *slog.Logger
	paused bool
}

func NewPopulationMonitor(cfg MonitorConfig) (*PopulationMonitor, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("%w: generations must be > 0", ErrInvalidConfiguration)
	}
	if cfg.FitnessGoal < 0 {
		return nil, fmt.Errorf("%w: fitness goal must be >= 0", ErrInvalidConfiguration)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PopulationMonitor{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger,
	}, nil
}

// Run evolves initial for the configured number of generations. An empty
// initial population is replaced by a random one drawn from the monitor seed.
func (m *PopulationMonitor) Run(ctx context.Context, initial model.Population) (RunResult, error) {
	engineCfg := m.cfg.Engine.Config()

	population := initial
	if len(population.Agents) == 0 {
		var err error
		population, err = m.cfg.Engine.CreatePopulation(m.rng)
		if err != nil {
			return RunResult{}, err
		}
	}
	if len(population.Agents) != engineCfg.PopulationSize {
		return RunResult{}, fmt.Errorf("initial population mismatch: got=%d want=%d", len(population.Agents), engineCfg.PopulationSize)
	}

	result := RunResult{
		BestByGeneration:      make([]float64, 0, m.cfg.Generations),
		GenerationDiagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.Generations),
		StopReason:            StopReasonCompleted,
	}

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}
		stop, err := m.handleControl(ctx)
		if err != nil {
			return RunResult{}, err
		}
		if stop {
			result.StopReason = StopReasonStopped
			break
		}

		run, err := m.cfg.Engine.RunGeneration(ctx, population, engineCfg.GenomeLength)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", population.Generation, err)
		}
		diagnostics := SummarizeGeneration(run)
		result.BestByGeneration = append(result.BestByGeneration, diagnostics.BestFitness)
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diagnostics)
		result.FinalPopulation = run.Final
		result.Guards = append(result.Guards, run.Guards...)

		for _, guard := range run.Guards {
			m.logger.Warn("guarded condition", "generation", diagnostics.Generation, "err", guard)
		}
		m.logger.Debug("generation scored",
			"generation", diagnostics.Generation,
			"best", diagnostics.BestFitness,
			"mean", diagnostics.MeanFitness,
			"reached_food", diagnostics.ReachedFood,
			"strayed", diagnostics.StrayedOutOfBounds,
			"ticks", diagnostics.TicksRun,
		)

		for _, observer := range m.cfg.Observers {
			if err := observer.ObserveGeneration(ctx, run, diagnostics); err != nil {
				return RunResult{}, fmt.Errorf("observe generation %d: %w", diagnostics.Generation, err)
			}
		}

		if m.cfg.FitnessGoal > 0 && diagnostics.BestFitness >= m.cfg.FitnessGoal {
			result.StopReason = StopReasonFitnessGoal
			break
		}
		if gen == m.cfg.Generations-1 {
			break
		}

		population, err = m.cfg.Engine.BreedNextGeneration(m.rng, run.Final, engineCfg.PopulationSize)
		if err != nil {
			return RunResult{}, fmt.Errorf("breed generation %d: %w", run.Final.Generation+1, err)
		}
	}

	m.logger.Info("run finished",
		"generations", len(result.BestByGeneration),
		"stop_reason", result.StopReason,
		"guards", len(result.Guards),
	)
	return result, nil
}

// handleControl drains pending commands and blocks while paused.
func (m *PopulationMonitor) handleControl(ctx context.Context) (bool, error) {
	if m.cfg.Control == nil {
		return false, nil
	}
	for {
		if m.paused {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case cmd, ok := <-m.cfg.Control:
				if !ok {
					return false, errors.New("control channel closed while paused")
				}
				if stop := m.apply(cmd); stop {
					return true, nil
				}
			}
			continue
		}
		select {
		case cmd, ok := <-m.cfg.Control:
			if !ok {
				return false, nil
			}
			if stop := m.apply(cmd); stop {
				return true, nil
			}
		default:
			return false, nil
		}
	}
}

func (m *PopulationMonitor) apply(cmd MonitorCommand) bool {
	switch cmd {
	case CommandPause:
		m.paused = true
		m.logger.Info("run paused")
	case CommandContinue:
		if m.paused {
			m.logger.Info("run resumed")
		}
		m.paused = false
	case CommandStop:
		m.logger.Info("run stop requested")
		return true
	default:
		m.logger.Warn("unknown monitor command", "command", string(cmd))
	}
	return false
}

func SummarizeGeneration(run GenerationRun) model.GenerationDiagnostics {
	agents := run.Final.Agents
	diagnostics := model.GenerationDiagnostics{
		Generation:        run.Final.Generation,
		TicksRun:          run.TicksRun,
		GuardedConditions: len(run.Guards),
		SelectionPoolSize: BuildSelectionPool(run.Final).Len(),
	}
	if len(agents) == 0 {
		return diagnostics
	}

	total := 0.0
	diagnostics.BestFitness = agents[0].Fitness
	diagnostics.MinFitness = agents[0].Fitness
	for _, agent := range agents {
		total += agent.Fitness
		if agent.Fitness > diagnostics.BestFitness {
			diagnostics.BestFitness = agent.Fitness
		}
		if agent.Fitness < diagnostics.MinFitness {
			diagnostics.MinFitness = agent.Fitness
		}
		if agent.ReachedFood {
			diagnostics.ReachedFood++
		}
		if agent.StrayedOutOfBounds {
			diagnostics.StrayedOutOfBounds++
		}
	}
	diagnostics.MeanFitness = total / float64(len(agents))
	return diagnostics
}

// RankAgents returns the agents ordered by descending fitness, ties by id.
func RankAgents(population model.Population) []model.Agent {
	ranked := make([]model.Agent, len(population.Agents))
	copy(ranked, population.Agents)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Fitness == ranked[j].Fitness {
			return ranked[i].ID < ranked[j].ID
		}
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}
