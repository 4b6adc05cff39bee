package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"gridforage/internal/config"
	"gridforage/internal/stats"
	"gridforage/pkg/gridforage"
)

type workspace struct {
	configPath    string
	benchmarksDir string
	exportsDir    string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	base := t.TempDir()
	ws := workspace{
		configPath:    filepath.Join(base, "gridforage.yaml"),
		benchmarksDir: filepath.Join(base, "benchmarks"),
		exportsDir:    filepath.Join(base, "exports"),
	}
	body := fmt.Sprintf(`population:
  creatures: 8
  ticks: 16
world:
  out_of_bounds: freeze
run:
  generations: 3
  seed: 5
  top: 4
render:
  frame_delay_ms: 0
storage:
  kind: memory
  benchmarks_dir: %s
  exports_dir: %s
`, ws.benchmarksDir, ws.exportsDir)
	if err := os.WriteFile(ws.configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return ws
}

func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevLog := stdout, logOutput
	stdout, logOutput = &buf, io.Discard
	t.Cleanup(func() {
		stdout, logOutput = prevOut, prevLog
	})
	err := fn()
	stdout, logOutput = prevOut, prevLog
	return buf.String(), err
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	out, err := captureOutput(t, func() error {
		return run(context.Background(), args)
	})
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestRunCommandCreatesArtifacts(t *testing.T) {
	ws := newWorkspace(t)
	out := runCommand(t, "run", "--config", ws.configPath, "--seed", "11", "--gens", "2", "--run-id", "cli-run")
	if !strings.Contains(out, "run_id=cli-run") || !strings.Contains(out, "generations=2") {
		t.Fatalf("unexpected run output: %q", out)
	}

	entries, err := stats.ListRunIndex(ws.benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %+v", entries)
	}
	if entries[0].RunID != "cli-run" || entries[0].Seed != 11 || entries[0].Generations != 2 || entries[0].PopulationSize != 8 {
		t.Fatalf("unexpected index entry: %+v", entries[0])
	}
	for _, file := range []string{"config.json", "fitness_history.json", "top_genomes.json", "generation_diagnostics.json", "final_population.json", "fitness_series.csv"} {
		path := filepath.Join(ws.benchmarksDir, "cli-run", file)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}
}

func TestRunCommandJSONAndMetricsEndpoint(t *testing.T) {
	ws := newWorkspace(t)
	out := runCommand(t, "run", "--config", ws.configPath, "--json", "--metrics-addr", "127.0.0.1:0")

	var summary gridforage.RunSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.RunID == "" || len(summary.BestByGeneration) != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestReadCommandsUsePersistedArtifacts(t *testing.T) {
	ws := newWorkspace(t)
	runCommand(t, "run", "--config", ws.configPath, "--run-id", "read-run")

	// Every command below opens a fresh memory store, so reads come from
	// the artifacts written by the run command.
	runs := runCommand(t, "runs", "--config", ws.configPath)
	if !strings.Contains(runs, "run_id=read-run") {
		t.Fatalf("expected run in list: %q", runs)
	}

	fitness := runCommand(t, "fitness", "--config", ws.configPath, "--latest")
	if got := strings.Count(fitness, "best_fitness="); got != 3 {
		t.Fatalf("expected 3 fitness lines, got %d: %q", got, fitness)
	}
	if !strings.HasPrefix(fitness, "generation=0 ") {
		t.Fatalf("expected generation 0 first: %q", fitness)
	}

	diagnostics := runCommand(t, "diagnostics", "--config", ws.configPath, "--run-id", "read-run", "--limit", "2")
	if got := strings.Count(diagnostics, "\n"); got != 2 {
		t.Fatalf("expected 2 diagnostics lines, got %d: %q", got, diagnostics)
	}

	top := runCommand(t, "top", "--config", ws.configPath, "--latest")
	if got := strings.Count(top, "rank="); got != 4 {
		t.Fatalf("expected 4 top genomes, got %d: %q", got, top)
	}

	var history []float64
	if err := json.Unmarshal([]byte(runCommand(t, "fitness", "--config", ws.configPath, "--latest", "--json")), &history); err != nil {
		t.Fatalf("decode fitness json: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("unexpected json history: %v", history)
	}
}

func TestExportAndPlotLatest(t *testing.T) {
	ws := newWorkspace(t)
	runCommand(t, "run", "--config", ws.configPath, "--run-id", "export-run")

	out := runCommand(t, "export", "--config", ws.configPath, "--latest")
	if !strings.Contains(out, "exported run_id=export-run") {
		t.Fatalf("unexpected export output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(ws.exportsDir, "export-run", "fitness_history.json")); err != nil {
		t.Fatalf("expected exported artifact: %v", err)
	}

	out = runCommand(t, "plot", "--config", ws.configPath, "--run-id", "export-run")
	if !strings.Contains(out, "plotted run_id=export-run") {
		t.Fatalf("unexpected plot output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(ws.benchmarksDir, "export-run", "fitness.png")); err != nil {
		t.Fatalf("expected plot: %v", err)
	}
}

func TestResetClearsRunIndex(t *testing.T) {
	ws := newWorkspace(t)
	runCommand(t, "run", "--config", ws.configPath)
	runCommand(t, "init", "--config", ws.configPath)

	out := runCommand(t, "reset", "--config", ws.configPath)
	if !strings.Contains(out, "reset store=memory") {
		t.Fatalf("unexpected reset output: %q", out)
	}
	if runs := runCommand(t, "runs", "--config", ws.configPath); !strings.Contains(runs, "no runs found") {
		t.Fatalf("expected empty run list: %q", runs)
	}
}

func TestConfigCommandAppliesOnlySetFlags(t *testing.T) {
	ws := newWorkspace(t)
	outPath := filepath.Join(t.TempDir(), "effective.yaml")
	runCommand(t, "config", "--config", ws.configPath,
		"--creatures", "12",
		"--food", "3,4",
		"--start", " 6, 7",
		"--out-of-bounds", "continue",
		"--out", outPath,
	)

	cfg, err := config.Load(outPath)
	if err != nil {
		t.Fatalf("load effective config: %v", err)
	}
	if cfg.Population.Creatures != 12 {
		t.Fatalf("creatures: got %d", cfg.Population.Creatures)
	}
	if cfg.Population.Ticks != 16 {
		t.Fatalf("ticks from file lost: got %d", cfg.Population.Ticks)
	}
	if cfg.World.Food.X != 3 || cfg.World.Food.Y != 4 {
		t.Fatalf("food: got %+v", cfg.World.Food)
	}
	if cfg.World.Start.X != 6 || cfg.World.Start.Y != 7 {
		t.Fatalf("start: got %+v", cfg.World.Start)
	}
	if cfg.World.OutOfBounds != "continue" {
		t.Fatalf("out of bounds: got %q", cfg.World.OutOfBounds)
	}
	if cfg.World.Width != 20 || cfg.Population.Mutability != 0.01 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestCommandErrors(t *testing.T) {
	ws := newWorkspace(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing command", args: nil, want: "missing command"},
		{name: "unknown command", args: []string{"fly"}, want: "unknown command"},
		{name: "no selector", args: []string{"fitness", "--config", ws.configPath}, want: "requires --run-id or --latest"},
		{name: "both selectors", args: []string{"top", "--config", ws.configPath, "--run-id", "x", "--latest"}, want: "not both"},
		{name: "bad position", args: []string{"run", "--config", ws.configPath, "--food", "3"}, want: "want x,y"},
		{name: "bad policy", args: []string{"run", "--config", ws.configPath, "--out-of-bounds", "wrap"}, want: "out-of-bounds"},
		{name: "bad log level", args: []string{"run", "--config", ws.configPath, "--log-level", "loud"}, want: "--log-level"},
		{name: "bad runs limit", args: []string{"runs", "--config", ws.configPath, "--limit", "0"}, want: "limit must be > 0"},
		{name: "no runs", args: []string{"export", "--config", ws.configPath, "--latest"}, want: "no runs available"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := captureOutput(t, func() error {
				return run(context.Background(), tc.args)
			})
			if err == nil {
				t.Fatalf("expected error for %v", tc.args)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestWatchCommandAnimatesOnSimulationScreen(t *testing.T) {
	ws := newWorkspace(t)
	prev := newScreen
	newScreen = func() (tcell.Screen, error) {
		return tcell.NewSimulationScreen("UTF-8"), nil
	}
	t.Cleanup(func() {
		newScreen = prev
	})

	out := runCommand(t, "watch", "--config", ws.configPath, "--run-id", "watched", "--gens", "2")
	if !strings.Contains(out, "run_id=watched") || !strings.Contains(out, "generations=2") {
		t.Fatalf("unexpected watch output: %q", out)
	}
	entries, err := stats.ListRunIndex(ws.benchmarksDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "watched" {
		t.Fatalf("expected watched run in index: %+v", entries)
	}
}

func TestWatchCommandASCIIPrintsFrames(t *testing.T) {
	ws := newWorkspace(t)
	prev := newScreen
	newScreen = func() (tcell.Screen, error) {
		t.Fatal("ascii mode must not open a terminal screen")
		return nil, nil
	}
	t.Cleanup(func() {
		newScreen = prev
	})

	out := runCommand(t, "watch", "--config", ws.configPath, "--ascii", "--gens", "1", "--ticks", "4", "--run-id", "ascii")
	if !strings.HasPrefix(out, "gen 0  tick 1/") {
		t.Fatalf("expected first frame header, got %q", out)
	}
	if !strings.Contains(out, "gen 0  best ") || !strings.Contains(out, "run_id=ascii") {
		t.Fatalf("expected generation and run summaries: %q", out)
	}
	if !strings.Contains(out, "x") {
		t.Fatalf("expected agent glyphs: %q", out)
	}
}
