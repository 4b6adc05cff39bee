package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gridforage/internal/config"
	"gridforage/internal/model"
	"gridforage/internal/platform"
	"gridforage/internal/stats"
	"gridforage/pkg/gridforage"
)

var logOutput io.Writer = os.Stderr

type commonFlags struct {
	configPath *string
	storeKind  *string
	dbPath     *string
	logLevel   *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "optional YAML config merged over the embedded defaults"),
		storeKind:  fs.String("store", "", "store backend: memory|sqlite (defaults to storage.kind or the build default)"),
		dbPath:     fs.String("db-path", "", "sqlite database path (defaults to storage.db_path)"),
		logLevel:   fs.String("log-level", "warn", "log level: debug|info|warn|error"),
	}
}

// addRunFlags registers engine and run overrides. Only flags that were set
// on the command line replace config values.
func addRunFlags(fs *flag.FlagSet) {
	fs.Int("creatures", 0, "population size")
	fs.Int("ticks", 0, "genome length and ticks per generation")
	fs.Float64("mutability", 0, "per-gene mutation probability")
	fs.Int("workers", 0, "intra-tick workers (1 runs sequentially)")
	fs.Int("width", 0, "world width")
	fs.Int("height", 0, "world height")
	fs.String("food", "", "food position as x,y")
	fs.String("start", "", "start position as x,y")
	fs.String("out-of-bounds", "", "out-of-bounds policy: freeze|continue")
	fs.Int("gens", 0, "generation count")
	fs.Int64("seed", 0, "rng seed")
	fs.Float64("fitness-goal", 0, "early-stop best fitness goal (0 disables)")
	fs.Int("top", 0, "top genomes persisted per run")
}

func (c *commonFlags) load(fs *flag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}
	if *c.storeKind != "" {
		cfg.Storage.Kind = *c.storeKind
	}
	if *c.dbPath != "" {
		cfg.Storage.DBPath = *c.dbPath
	}
	return cfg, nil
}

func (c *commonFlags) newClient(cfg *config.Config, metrics *stats.Metrics, modules []platform.SupportModule) (*gridforage.Client, error) {
	logger, err := newLogger(*c.logLevel)
	if err != nil {
		return nil, err
	}
	return gridforage.New(gridforage.Options{
		StoreKind:      cfg.Storage.Kind,
		DBPath:         cfg.Storage.DBPath,
		BenchmarksDir:  cfg.Storage.BenchmarksDir,
		ExportsDir:     cfg.Storage.ExportsDir,
		Logger:         logger,
		Metrics:        metrics,
		SupportModules: modules,
	})
}

func (c *commonFlags) open(fs *flag.FlagSet) (*gridforage.Client, *config.Config, error) {
	cfg, err := c.load(fs)
	if err != nil {
		return nil, nil, err
	}
	client, err := c.newClient(cfg, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

func applyFlagOverrides(cfg *config.Config, fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		v := getter.Get()
		switch f.Name {
		case "creatures":
			cfg.Population.Creatures = v.(int)
		case "ticks":
			cfg.Population.Ticks = v.(int)
		case "mutability":
			cfg.Population.Mutability = v.(float64)
		case "workers":
			cfg.Population.Workers = v.(int)
		case "width":
			cfg.World.Width = v.(int)
		case "height":
			cfg.World.Height = v.(int)
		case "food":
			cfg.World.Food, err = parsePosition(f.Name, v.(string))
		case "start":
			cfg.World.Start, err = parsePosition(f.Name, v.(string))
		case "out-of-bounds":
			cfg.World.OutOfBounds = v.(string)
		case "gens":
			cfg.Run.Generations = v.(int)
		case "seed":
			cfg.Run.Seed = v.(int64)
		case "fitness-goal":
			cfg.Run.FitnessGoal = v.(float64)
		case "top":
			cfg.Run.Top = v.(int)
		}
	})
	return err
}

func parsePosition(name, raw string) (model.Position, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return model.Position{}, fmt.Errorf("--%s: want x,y, got %q", name, raw)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return model.Position{}, fmt.Errorf("--%s x: %w", name, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return model.Position{}, fmt.Errorf("--%s y: %w", name, err)
	}
	return model.Position{X: x, Y: y}, nil
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(logOutput, &slog.HandlerOptions{Level: lvl})), nil
}
