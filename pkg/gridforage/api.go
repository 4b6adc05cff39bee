// Package gridforage is the library facade over the engine, the run-history
// store and the on-disk run artifacts.
package gridforage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"gridforage/internal/config"
	"gridforage/internal/evo"
	"gridforage/internal/model"
	"gridforage/internal/platform"
	"gridforage/internal/stats"
	"gridforage/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "gridforage.db"
	defaultRunsLimit     = 20
)

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	Logger        *slog.Logger
	// Metrics, when set, records every generation of every run.
	Metrics        *stats.Metrics
	SupportModules []platform.SupportModule
	// Now stamps run records and the run index. Defaults to time.Now.
	Now func() time.Time
}

type Client struct {
	store   storage.Store
	polis   *platform.Polis
	logger  *slog.Logger
	metrics *stats.Metrics
	modules []platform.SupportModule
	now     func() time.Time

	benchmarksDir string
	exportsDir    string
}

type RunRequest struct {
	RunID string
	// Settings carries every engine and run parameter. Nil loads the
	// embedded defaults.
	Settings  *config.Config
	Control   chan evo.MonitorCommand
	Observers []evo.GenerationObserver
	// Plot renders fitness.png into the run directory after the run.
	Plot  bool
	Notes []string
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	BestByGeneration []float64
	FinalBestFitness float64
	StopReason       string
	GuardedCount     int
	PlotPath         string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	Seed             int64
	Population       int
	GenomeLength     int
	Generations      int
	OutOfBounds      string
	FinalBestFitness float64
	StopReason       string
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type PlotRequest struct {
	RunID  string
	Latest bool
	// OutPath defaults to fitness.png inside the run directory.
	OutPath string
}

type PlotSummary struct {
	RunID string
	Path  string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopGenomesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		logger:        logger,
		metrics:       opts.Metrics,
		modules:       opts.SupportModules,
		now:           now,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	if c.polis != nil {
		c.polis.Stop()
	}
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Reset clears the run-history store and the run index. Artifact
// directories stay on disk.
func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	if err := p.Reset(ctx); err != nil {
		return err
	}
	return stats.ResetRunIndex(c.benchmarksDir)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	settings := req.Settings
	if settings == nil {
		var err error
		settings, err = config.Default()
		if err != nil {
			return RunSummary{}, err
		}
	}
	engineCfg, err := settings.EngineConfig()
	if err != nil {
		return RunSummary{}, err
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	observers := append([]evo.GenerationObserver(nil), req.Observers...)
	if c.metrics != nil {
		if runID == "" {
			runID = uuid.NewString()
		}
		observers = append(observers, c.metrics.Observer(runID))
	}

	result, err := p.RunEvolution(ctx, platform.EvolutionConfig{
		RunID:       runID,
		Engine:      engineCfg,
		Generations: settings.Run.Generations,
		Seed:        settings.Run.Seed,
		FitnessGoal: settings.Run.FitnessGoal,
		TopCount:    settings.Run.Top,
		Control:     req.Control,
		Observers:   observers,
		Notes:       req.Notes,
	})
	if err != nil {
		return RunSummary{}, err
	}
	runID = result.Run.ID
	if c.metrics != nil {
		c.metrics.RunFinished(result.StopReason)
	}

	directions := make([]model.Vector, 0, len(model.AllGenes))
	for _, gene := range model.AllGenes {
		directions = append(directions, engineCfg.Directions[gene])
	}
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:          runID,
			Seed:           settings.Run.Seed,
			PopulationSize: engineCfg.PopulationSize,
			GenomeLength:   engineCfg.GenomeLength,
			Generations:    settings.Run.Generations,
			Mutability:     engineCfg.Mutability,
			Width:          engineCfg.Width,
			Height:         engineCfg.Height,
			Food:           engineCfg.Food,
			Start:          engineCfg.Start,
			Directions:     directions,
			OutOfBounds:    engineCfg.OutOfBounds.String(),
			Workers:        engineCfg.Workers,
			FitnessGoal:    settings.Run.FitnessGoal,
		},
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      result.BestFinalFitness,
		StopReason:            result.StopReason,
		TopGenomes:            result.TopFinal,
		FinalPopulation: model.PopulationRecord{
			VersionedRecord: storage.CurrentVersion(),
			ID:              runID,
			Generation:      result.FinalPopulation.Generation,
			Genomes:         genomeStrings(result.FinalPopulation),
		},
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            runID,
		PopulationSize:   engineCfg.PopulationSize,
		GenomeLength:     engineCfg.GenomeLength,
		Generations:      len(result.BestByGeneration),
		Seed:             settings.Run.Seed,
		Workers:          engineCfg.Workers,
		OutOfBounds:      engineCfg.OutOfBounds.String(),
		FinalBestFitness: result.BestFinalFitness,
		StopReason:       result.StopReason,
		CreatedAtUTC:     result.Run.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:            runID,
		ArtifactsDir:     filepath.Clean(runDir),
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		FinalBestFitness: result.BestFinalFitness,
		StopReason:       result.StopReason,
		GuardedCount:     len(result.Guards),
	}
	if req.Plot {
		path, err := stats.PlotRun(c.benchmarksDir, runID, "")
		if err != nil {
			return RunSummary{}, err
		}
		summary.PlotPath = filepath.Clean(path)
	}
	c.logger.Info("run persisted", "run_id", runID, "dir", summary.ArtifactsDir, "best", summary.FinalBestFitness)
	return summary, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = defaultRunsLimit
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Seed:             e.Seed,
			Population:       e.PopulationSize,
			GenomeLength:     e.GenomeLength,
			Generations:      e.Generations,
			OutOfBounds:      e.OutOfBounds,
			FinalBestFitness: e.FinalBestFitness,
			StopReason:       e.StopReason,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	outDir := req.OutDir
	if outDir == "" {
		outDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, outDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) Plot(_ context.Context, req PlotRequest) (PlotSummary, error) {
	if req.RunID == "" && !req.Latest {
		return PlotSummary{}, errors.New("plot requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return PlotSummary{}, err
	}
	path, err := stats.PlotRun(c.benchmarksDir, runID, req.OutPath)
	if err != nil {
		return PlotSummary{}, err
	}
	return PlotSummary{RunID: runID, Path: filepath.Clean(path)}, nil
}

// FitnessHistory reads the store first and falls back to the run artifacts,
// so runs recorded by another process stay readable with the memory store.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	runID, err := c.resolveReadRequest(req.RunID, req.Latest, req.Limit, "fitness history")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessHistory(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	runID, err := c.resolveReadRequest(req.RunID, req.Latest, req.Limit, "diagnostics")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("generation diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	return append([]model.GenerationDiagnostics(nil), diagnostics...), nil
}

func (c *Client) TopGenomes(ctx context.Context, req TopGenomesRequest) ([]model.TopGenomeRecord, error) {
	runID, err := c.resolveReadRequest(req.RunID, req.Latest, req.Limit, "top genomes")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		top, ok, err = stats.ReadTopGenomes(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	return append([]model.TopGenomeRecord(nil), top...), nil
}

// PauseRun holds an active run before its next generation.
func (c *Client) PauseRun(ctx context.Context, runID string) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.PauseRun(runID)
}

func (c *Client) ContinueRun(ctx context.Context, runID string) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.ContinueRun(runID)
}

// StopRun ends an active run after its current generation. The run is still
// persisted with stop reason "stopped".
func (c *Client) StopRun(ctx context.Context, runID string) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.StopRun(runID)
}

// ActiveRuns lists the ids of runs in progress.
func (c *Client) ActiveRuns(ctx context.Context) ([]string, error) {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return nil, err
	}
	return p.ActiveRuns(), nil
}

// Polis exposes the running platform for callers that steer runs directly.
func (c *Client) Polis(ctx context.Context) (*platform.Polis, error) {
	return c.ensurePolis(ctx)
}

func (c *Client) resolveReadRequest(runID string, latest bool, limit int, what string) (string, error) {
	if limit < 0 {
		return "", errors.New("limit must be >= 0")
	}
	if runID == "" && !latest {
		return "", fmt.Errorf("%s requires run id or latest", what)
	}
	return c.resolveRunID(runID, latest)
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil && c.polis.Started() {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{
		Store:          c.store,
		SupportModules: c.modules,
		Logger:         c.logger,
		Now:            c.now,
	})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func genomeStrings(population model.Population) []string {
	out := make([]string, len(population.Agents))
	for i, agent := range population.Agents {
		out[i] = agent.Genome.String()
	}
	return out
}
