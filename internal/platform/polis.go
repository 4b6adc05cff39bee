package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridforage/internal/evo"
	"gridforage/internal/model"
	"gridforage/internal/storage"
)

type Config struct {
	Store          storage.Store
	SupportModules []SupportModule
	Logger         *slog.Logger
	// Now stamps run records. Defaults to time.Now.
	Now func() time.Time
}

// SupportModule is a long-lived helper whose lifetime follows the polis,
// such as the metrics endpoint.
type SupportModule interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

const defaultTopCount = 5

type EvolutionConfig struct {
	// RunID names the persisted run. A random UUID is used when empty.
	RunID       string
	Engine      evo.Config
	Generations int
	Seed        int64
	FitnessGoal float64
	// TopCount bounds the persisted top genomes. Defaults to 5.
	TopCount  int
	Control   chan evo.MonitorCommand
	Observers []evo.GenerationObserver
	// Initial seeds generation 0. Empty draws a random population from Seed.
	Initial model.Population
	Notes   []string
}

type EvolutionResult struct {
	Run                   model.RunRecord
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	BestFinalFitness      float64
	TopFinal              []model.TopGenomeRecord
	FinalPopulation       model.Population
	Guards                []error
	StopReason            string
}

// Polis owns the run-history store and the support modules, and executes
// evolution runs against them.
type Polis struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time

	mu sync.RWMutex

	supportModules map[string]SupportModule
	started        bool
	lastStopReason StopReason
	runs           map[string]chan evo.MonitorCommand

	config Config
}

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Polis{
		store:          cfg.Store,
		logger:         logger,
		now:            now,
		supportModules: make(map[string]SupportModule),
		runs:           make(map[string]chan evo.MonitorCommand),
		config:         cfg,
		lastStopReason: StopReasonNormal,
	}
}

func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}

	startedModules := make([]SupportModule, 0, len(p.config.SupportModules))
	fail := func(err error) error {
		stopSupportModules(ctx, startedModules)
		p.supportModules = make(map[string]SupportModule)
		return err
	}
	for i, module := range p.config.SupportModules {
		if module == nil {
			return fail(fmt.Errorf("support module is nil at index %d", i))
		}
		name := module.Name()
		if name == "" {
			return fail(fmt.Errorf("support module name is required at index %d", i))
		}
		if _, exists := p.supportModules[name]; exists {
			return fail(fmt.Errorf("duplicate support module: %s", name))
		}
		if err := module.Start(ctx); err != nil {
			return fail(fmt.Errorf("start support module %s: %w", name, err))
		}
		p.supportModules[name] = module
		startedModules = append(startedModules, module)
		p.logger.Debug("support module started", "module", name)
	}

	p.started = true
	return nil
}

// Reset stops active runs, clears the store and starts again.
func (p *Polis) Reset(ctx context.Context) error {
	_ = p.StopWithReason(StopReasonShutdown)
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	if err := p.store.Reset(ctx); err != nil {
		return err
	}
	return p.Init(ctx)
}

func (p *Polis) Stop() {
	_ = p.StopWithReason(StopReasonNormal)
}

func (p *Polis) Shutdown() {
	_ = p.StopWithReason(StopReasonShutdown)
}

func (p *Polis) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if !isValidStopReason(reason) {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, control := range p.runs {
		select {
		case control <- evo.CommandStop:
		default:
		}
	}
	modules := make([]SupportModule, 0, len(p.supportModules))
	for _, module := range p.supportModules {
		modules = append(modules, module)
	}
	stopSupportModules(context.Background(), modules)

	p.started = false
	p.lastStopReason = reason
	p.supportModules = make(map[string]SupportModule)
	p.runs = make(map[string]chan evo.MonitorCommand)
	return nil
}

// RunEvolution runs the monitor to completion and persists the run record,
// final population, fitness history, diagnostics and top genomes.
func (p *Polis) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if !p.Started() {
		return EvolutionResult{}, fmt.Errorf("polis is not initialized")
	}
	engine, err := evo.NewEngine(cfg.Engine)
	if err != nil {
		return EvolutionResult{}, err
	}
	topCount := cfg.TopCount
	if topCount <= 0 {
		topCount = defaultTopCount
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	control := cfg.Control
	if control == nil {
		control = make(chan evo.MonitorCommand, 16)
	}
	if err := p.registerRunControl(runID, control); err != nil {
		return EvolutionResult{}, err
	}
	defer p.unregisterRunControl(runID)

	logger := p.logger.With("run_id", runID)
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig{
		Engine:      engine,
		Generations: cfg.Generations,
		Seed:        cfg.Seed,
		FitnessGoal: cfg.FitnessGoal,
		Control:     control,
		Observers:   cfg.Observers,
		Logger:      logger,
	})
	if err != nil {
		return EvolutionResult{}, err
	}

	logger.Info("run started",
		"population", cfg.Engine.PopulationSize,
		"genome_length", cfg.Engine.GenomeLength,
		"generations", cfg.Generations,
		"seed", cfg.Seed,
	)
	result, err := monitor.Run(ctx, cfg.Initial)
	if err != nil {
		return EvolutionResult{}, err
	}

	ranked := evo.RankAgents(result.FinalPopulation)
	bestFinal := 0.0
	if len(ranked) > 0 {
		bestFinal = ranked[0].Fitness
	}
	if len(ranked) > topCount {
		ranked = ranked[:topCount]
	}
	topFinal := toTopGenomeRecords(ranked)

	run := model.RunRecord{
		VersionedRecord:  storage.CurrentVersion(),
		ID:               runID,
		CreatedAtUTC:     p.now().UTC().Format(time.RFC3339Nano),
		Seed:             cfg.Seed,
		PopulationSize:   cfg.Engine.PopulationSize,
		GenomeLength:     cfg.Engine.GenomeLength,
		Generations:      len(result.BestByGeneration),
		Mutability:       cfg.Engine.Mutability,
		World:            engine.World(),
		OutOfBounds:      cfg.Engine.OutOfBounds.String(),
		FinalBestFitness: bestFinal,
		StopReason:       result.StopReason,
		Notes:            append([]string(nil), cfg.Notes...),
	}
	if len(result.Guards) > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("guarded conditions: %d", len(result.Guards)))
	}

	if err := p.persist(ctx, run, result, topFinal); err != nil {
		return EvolutionResult{}, fmt.Errorf("persist run %s: %w", runID, err)
	}

	return EvolutionResult{
		Run:                   run,
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		BestFinalFitness:      bestFinal,
		TopFinal:              topFinal,
		FinalPopulation:       result.FinalPopulation,
		Guards:                result.Guards,
		StopReason:            result.StopReason,
	}, nil
}

func (p *Polis) persist(ctx context.Context, run model.RunRecord, result evo.RunResult, top []model.TopGenomeRecord) error {
	if err := p.store.SaveRun(ctx, run); err != nil {
		return err
	}
	if err := p.store.SavePopulation(ctx, toPopulationRecord(run.ID, result.FinalPopulation)); err != nil {
		return err
	}
	if err := p.store.SaveFitnessHistory(ctx, run.ID, result.BestByGeneration); err != nil {
		return err
	}
	if err := p.store.SaveGenerationDiagnostics(ctx, run.ID, result.GenerationDiagnostics); err != nil {
		return err
	}
	return p.store.SaveTopGenomes(ctx, run.ID, top)
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func toPopulationRecord(id string, population model.Population) model.PopulationRecord {
	genomes := make([]string, len(population.Agents))
	for i, agent := range population.Agents {
		genomes[i] = agent.Genome.String()
	}
	return model.PopulationRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              id,
		Generation:      population.Generation,
		Genomes:         genomes,
	}
}

func toTopGenomeRecords(ranked []model.Agent) []model.TopGenomeRecord {
	out := make([]model.TopGenomeRecord, 0, len(ranked))
	for i, agent := range ranked {
		out = append(out, model.TopGenomeRecord{
			VersionedRecord: storage.CurrentVersion(),
			Rank:            i + 1,
			AgentID:         agent.ID,
			Fitness:         agent.Fitness,
			Genome:          agent.Genome.String(),
			Final:           agent.Position,
			ReachedFood:     agent.ReachedFood,
			TicksElapsed:    agent.TicksElapsed,
		})
	}
	return out
}

func (p *Polis) PauseRun(runID string) error {
	return p.sendRunCommand(runID, evo.CommandPause)
}

func (p *Polis) ContinueRun(runID string) error {
	return p.sendRunCommand(runID, evo.CommandContinue)
}

func (p *Polis) StopRun(runID string) error {
	return p.sendRunCommand(runID, evo.CommandStop)
}

func (p *Polis) registerRunControl(runID string, control chan evo.MonitorCommand) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	if _, exists := p.runs[runID]; exists {
		return fmt.Errorf("run already active: %s", runID)
	}
	p.runs[runID] = control
	return nil
}

func (p *Polis) unregisterRunControl(runID string) {
	if runID == "" {
		return
	}
	p.mu.Lock()
	delete(p.runs, runID)
	p.mu.Unlock()
}

func (p *Polis) sendRunCommand(runID string, cmd evo.MonitorCommand) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	p.mu.RLock()
	control, ok := p.runs[runID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("run not active: %s", runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}

func (p *Polis) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]string, 0, len(p.runs))
	for id := range p.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Polis) ActiveSupportModules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.supportModules))
	for name := range p.supportModules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) LastStopReason() StopReason {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastStopReason
}

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}

func stopSupportModules(ctx context.Context, modules []SupportModule) {
	for i := len(modules) - 1; i >= 0; i-- {
		_ = modules[i].Stop(ctx)
	}
}
