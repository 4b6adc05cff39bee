package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"

	"gridforage/internal/config"
	"gridforage/internal/evo"
	"gridforage/internal/platform"
	"gridforage/internal/render"
	"gridforage/internal/stats"
	"gridforage/internal/storage"
	"gridforage/pkg/gridforage"
)

// newScreen is swapped for a simulation screen in tests.
var newScreen = tcell.NewScreen

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "watch":
		return runWatch(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "config":
		return runConfig(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	client, err := common.newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "initialized store=%s\n", storeKindOf(cfg))
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	client, err := common.newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "reset store=%s\n", storeKindOf(cfg))
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	common := addCommonFlags(fs)
	addRunFlags(fs)
	runID := fs.String("run-id", "", "explicit run id (optional)")
	plot := fs.Bool("plot", false, "render fitness.png into the run directory")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address during the run")
	jsonOut := fs.Bool("json", false, "emit the run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}

	var (
		metrics *stats.Metrics
		modules []platform.SupportModule
	)
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metrics, err = stats.NewMetrics(reg)
		if err != nil {
			return err
		}
		modules = append(modules, platform.NewMetricsServer(*metricsAddr, reg))
	}

	client, err := common.newClient(cfg, metrics, modules)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, gridforage.RunRequest{
		RunID:    *runID,
		Settings: cfg,
		Plot:     *plot,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}
	printRunSummary(summary)
	return nil
}

// runWatch runs an evolution while animating every generation in the
// terminal. p or space pauses, q or Esc stops the run. With -ascii every
// tick is printed to stdout instead.
func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	common := addCommonFlags(fs)
	addRunFlags(fs)
	runID := fs.String("run-id", "", "explicit run id (optional)")
	frameDelay := fs.Int("frame-delay-ms", 0, "pause between ticks in milliseconds")
	ascii := fs.Bool("ascii", false, "print plain-text frames to stdout instead of the interactive viewer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	if isFlagSet(fs, "frame-delay-ms") {
		cfg.Render.FrameDelayMS = *frameDelay
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}

	client, err := common.newClient(cfg, nil, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if *ascii {
		summary, err := client.Run(ctx, gridforage.RunRequest{
			RunID:     *runID,
			Settings:  cfg,
			Observers: []evo.GenerationObserver{render.NewFrameWriter(stdout, engineCfg.World())},
		})
		if err != nil {
			return err
		}
		printRunSummary(summary)
		return nil
	}

	screen, err := newScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	var finiOnce sync.Once
	fini := func() { finiOnce.Do(screen.Fini) }
	defer fini()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	control := make(chan evo.MonitorCommand, 16)
	viewer := render.NewViewer(screen, engineCfg.World(), render.ViewerOptions{
		FrameDelay: cfg.FrameDelay(),
		Control:    control,
	})
	go viewer.HandleEvents(ctx)

	summary, err := client.Run(ctx, gridforage.RunRequest{
		RunID:     *runID,
		Settings:  cfg,
		Control:   control,
		Observers: []evo.GenerationObserver{viewer},
	})
	cancel()
	fini()
	if err != nil {
		return err
	}
	printRunSummary(summary)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	common := addCommonFlags(fs)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}
	client, _, err := common.open(fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, gridforage.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s seed=%d creatures=%d ticks=%d generations=%d out_of_bounds=%s final_best=%.6f stop_reason=%s\n",
			r.RunID, r.CreatedAtUTC, r.Seed, r.Population, r.GenomeLength, r.Generations, r.OutOfBounds, r.FinalBestFitness, r.StopReason)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sel := addRunSelector(fs, "show fitness history for the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("fitness"); err != nil {
		return err
	}
	client, _, err := common.open(fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, gridforage.FitnessHistoryRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(history)
	}
	if len(history) == 0 {
		fmt.Fprintln(stdout, "no fitness history")
		return nil
	}
	for i, best := range history {
		fmt.Fprintf(stdout, "generation=%d best_fitness=%.6f\n", i, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sel := addRunSelector(fs, "show diagnostics for the most recent run")
	limit := fs.Int("limit", 50, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("diagnostics"); err != nil {
		return err
	}
	client, _, err := common.open(fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, gridforage.DiagnosticsRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(diagnostics)
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(stdout, "no diagnostics")
		return nil
	}
	for _, d := range diagnostics {
		fmt.Fprintf(stdout, "generation=%d best=%.6f mean=%.6f min=%.6f reached_food=%d strayed=%d pool=%d ticks=%d guards=%d\n",
			d.Generation, d.BestFitness, d.MeanFitness, d.MinFitness, d.ReachedFood, d.StrayedOutOfBounds, d.SelectionPoolSize, d.TicksRun, d.GuardedConditions)
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sel := addRunSelector(fs, "show top genomes for the most recent run")
	limit := fs.Int("limit", 10, "max genomes to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit top genomes as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("top"); err != nil {
		return err
	}
	client, _, err := common.open(fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopGenomes(ctx, gridforage.TopGenomesRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(top)
	}
	if len(top) == 0 {
		fmt.Fprintln(stdout, "no top genomes")
		return nil
	}
	for _, g := range top {
		fmt.Fprintf(stdout, "rank=%d agent=%d fitness=%.6f reached_food=%t ticks=%d final=(%d,%d) genome=%s\n",
			g.Rank, g.AgentID, g.Fitness, g.ReachedFood, g.TicksElapsed, g.Final.X, g.Final.Y, g.Genome)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sel := addRunSelector(fs, "export the most recent run")
	outDir := fs.String("out", "", "export output directory (defaults to storage.exports_dir)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("export"); err != nil {
		return err
	}
	client, _, err := common.open(fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, gridforage.ExportRequest{
		RunID:  *sel.runID,
		Latest: *sel.latest,
		OutDir: *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("plot", flag.ContinueOnError)
	common := addCommonFlags(fs)
	sel := addRunSelector(fs, "plot the most recent run")
	out := fs.String("out", "", "png output path (defaults to fitness.png in the run directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := sel.validate("plot"); err != nil {
		return err
	}
	client, _, err := common.open(fs)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	plotted, err := client.Plot(ctx, gridforage.PlotRequest{
		RunID:   *sel.runID,
		Latest:  *sel.latest,
		OutPath: *out,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "plotted run_id=%s to=%s\n", plotted.RunID, plotted.Path)
	return nil
}

// runConfig writes the effective configuration, defaults merged with
// -config and flag overrides, as YAML.
func runConfig(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	common := addCommonFlags(fs)
	addRunFlags(fs)
	out := fs.String("out", "", "write the YAML to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	if _, err := cfg.EngineConfig(); err != nil {
		return err
	}
	if *out != "" {
		if err := cfg.WriteYAML(*out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote config to=%s\n", *out)
		return nil
	}
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	_, err = stdout.Write(data)
	return err
}

type runSelector struct {
	runID  *string
	latest *bool
}

func addRunSelector(fs *flag.FlagSet, latestUsage string) runSelector {
	return runSelector{
		runID:  fs.String("run-id", "", "run id"),
		latest: fs.Bool("latest", false, latestUsage),
	}
}

func (s runSelector) validate(command string) error {
	if *s.runID != "" && *s.latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *s.runID == "" && !*s.latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

func printRunSummary(summary gridforage.RunSummary) {
	fmt.Fprintf(stdout, "run_id=%s generations=%d final_best=%.6f stop_reason=%s guards=%d artifacts=%s\n",
		summary.RunID, len(summary.BestByGeneration), summary.FinalBestFitness, summary.StopReason, summary.GuardedCount, summary.ArtifactsDir)
	if summary.PlotPath != "" {
		fmt.Fprintf(stdout, "plot=%s\n", summary.PlotPath)
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func storeKindOf(cfg *config.Config) string {
	if cfg.Storage.Kind == "" {
		return storage.DefaultStoreKind()
	}
	return cfg.Storage.Kind
}

func usageError(msg string) error {
	commands := []string{"init", "reset", "run", "watch", "runs", "fitness", "diagnostics", "top", "export", "plot", "config"}
	return fmt.Errorf("%s\nusage: gridforagectl <%s> [flags]", msg, strings.Join(commands, "|"))
}
