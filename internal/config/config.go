// Package config loads gridforage settings from the embedded defaults and an
// optional user YAML file.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gridforage/internal/evo"
	"gridforage/internal/model"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Population PopulationConfig `yaml:"population"`
	World      WorldConfig      `yaml:"world"`
	Directions DirectionsConfig `yaml:"directions"`
	Run        RunConfig        `yaml:"run"`
	Render     RenderConfig     `yaml:"render"`
	Storage    StorageConfig    `yaml:"storage"`
}

type PopulationConfig struct {
	Creatures  int     `yaml:"creatures"`
	Ticks      int     `yaml:"ticks"` // genome length and ticks per generation
	Mutability float64 `yaml:"mutability"`
	Workers    int     `yaml:"workers"`
}

type WorldConfig struct {
	Width       int            `yaml:"width"`
	Height      int            `yaml:"height"`
	Food        model.Position `yaml:"food"`
	Start       model.Position `yaml:"start"`
	OutOfBounds string         `yaml:"out_of_bounds"` // freeze | continue
}

type DirectionsConfig struct {
	Up    model.Vector `yaml:"up"`
	Down  model.Vector `yaml:"down"`
	Left  model.Vector `yaml:"left"`
	Right model.Vector `yaml:"right"`
}

type RunConfig struct {
	Generations int     `yaml:"generations"`
	Seed        int64   `yaml:"seed"`
	FitnessGoal float64 `yaml:"fitness_goal"` // 0 disables the early stop
	Top         int     `yaml:"top"`
}

type RenderConfig struct {
	FrameDelayMS int `yaml:"frame_delay_ms"`
}

type StorageConfig struct {
	Kind          string `yaml:"kind"` // empty picks the build default
	DBPath        string `yaml:"db_path"`
	BenchmarksDir string `yaml:"benchmarks_dir"`
	ExportsDir    string `yaml:"exports_dir"`
}

// Default returns the embedded defaults.
func Default() (*Config, error) {
	return Load("")
}

// Load parses the embedded defaults, then overlays path when it is non-empty.
// Keys missing from the user file keep their default value.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	return cfg, nil
}

func (c *Config) DirectionSet() evo.DirectionSet {
	var set evo.DirectionSet
	set[model.GeneUp] = c.Directions.Up
	set[model.GeneDown] = c.Directions.Down
	set[model.GeneLeft] = c.Directions.Left
	set[model.GeneRight] = c.Directions.Right
	return set
}

// EngineConfig maps the file layout onto a validated engine configuration.
func (c *Config) EngineConfig() (evo.Config, error) {
	policy, err := evo.ParseOutOfBoundsPolicy(c.World.OutOfBounds)
	if err != nil {
		return evo.Config{}, err
	}
	engineCfg := evo.Config{
		PopulationSize: c.Population.Creatures,
		GenomeLength:   c.Population.Ticks,
		Width:          c.World.Width,
		Height:         c.World.Height,
		Start:          c.World.Start,
		Food:           c.World.Food,
		Mutability:     c.Population.Mutability,
		Directions:     c.DirectionSet(),
		OutOfBounds:    policy,
		Workers:        c.Population.Workers,
	}
	if err := engineCfg.Validate(); err != nil {
		return evo.Config{}, err
	}
	return engineCfg, nil
}

func (c *Config) FrameDelay() time.Duration {
	return time.Duration(c.Render.FrameDelayMS) * time.Millisecond
}

// Encode renders the configuration in the same layout Load reads.
func (c *Config) Encode() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

func (c *Config) WriteYAML(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
