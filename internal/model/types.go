package model

import (
	"fmt"
	"strings"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Gene is one directional move instruction.
type Gene uint8

const (
	GeneUp Gene = iota
	GeneDown
	GeneLeft
	GeneRight
)

// AllGenes lists every gene in draw order.
var AllGenes = [...]Gene{GeneUp, GeneDown, GeneLeft, GeneRight}

func (g Gene) String() string {
	switch g {
	case GeneUp:
		return "UP"
	case GeneDown:
		return "DOWN"
	case GeneLeft:
		return "LEFT"
	case GeneRight:
		return "RIGHT"
	default:
		return fmt.Sprintf("Gene(%d)", uint8(g))
	}
}

// Letter returns the single character used by the compact genome encoding.
func (g Gene) Letter() byte {
	switch g {
	case GeneUp:
		return 'U'
	case GeneDown:
		return 'D'
	case GeneLeft:
		return 'L'
	case GeneRight:
		return 'R'
	default:
		return '?'
	}
}

func (g Gene) Valid() bool {
	return g <= GeneRight
}

func ParseGene(s string) (Gene, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U", "UP":
		return GeneUp, nil
	case "D", "DOWN":
		return GeneDown, nil
	case "L", "LEFT":
		return GeneLeft, nil
	case "R", "RIGHT":
		return GeneRight, nil
	default:
		return 0, fmt.Errorf("unknown gene: %q", s)
	}
}

// Genome is the move program of one agent. Index i is applied on tick i+1.
type Genome []Gene

func (g Genome) Clone() Genome {
	return append(Genome(nil), g...)
}

// String encodes the genome as a run of U/D/L/R letters.
func (g Genome) String() string {
	buf := make([]byte, len(g))
	for i, gene := range g {
		buf[i] = gene.Letter()
	}
	return string(buf)
}

func ParseGenome(s string) (Genome, error) {
	genome := make(Genome, 0, len(s))
	for i := 0; i < len(s); i++ {
		gene, err := ParseGene(s[i : i+1])
		if err != nil {
			return nil, fmt.Errorf("genome position %d: %w", i, err)
		}
		genome = append(genome, gene)
	}
	return genome, nil
}

type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (p Position) Add(v Vector) Position {
	return Position{X: p.X + v.DX, Y: p.Y + v.DY}
}

// Vector is a unit displacement applied by one gene.
type Vector struct {
	DX int `json:"dx" yaml:"dx"`
	DY int `json:"dy" yaml:"dy"`
}

type World struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Food   Position `json:"food"`
	Start  Position `json:"start"`
}

// Contains reports whether p lies inside [0,width) x [0,height).
func (w World) Contains(p Position) bool {
	return p.X >= 0 && p.X < w.Width && p.Y >= 0 && p.Y < w.Height
}

type Agent struct {
	ID                 int      `json:"id"`
	Position           Position `json:"position"`
	Genome             Genome   `json:"genome"`
	TicksElapsed       int      `json:"ticks_elapsed"`
	Fitness            float64  `json:"fitness"`
	ReachedFood        bool     `json:"reached_food"`
	StrayedOutOfBounds bool     `json:"strayed_out_of_bounds"`
}

// Clone returns a copy that shares nothing with a.
func (a Agent) Clone() Agent {
	a.Genome = a.Genome.Clone()
	return a
}

type Population struct {
	Generation int     `json:"generation"`
	Agents     []Agent `json:"agents"`
}

func (p Population) Clone() Population {
	agents := make([]Agent, len(p.Agents))
	for i := range p.Agents {
		agents[i] = p.Agents[i].Clone()
	}
	return Population{Generation: p.Generation, Agents: agents}
}

// Snapshot is the per-tick view of one agent handed to renderers.
type Snapshot struct {
	Tick               int  `json:"tick"`
	AgentID            int  `json:"agent_id"`
	X                  int  `json:"x"`
	Y                  int  `json:"y"`
	ReachedFood        bool `json:"reached_food"`
	StrayedOutOfBounds bool `json:"strayed_out_of_bounds"`
}

type GenerationDiagnostics struct {
	Generation         int     `json:"generation"`
	BestFitness        float64 `json:"best_fitness"`
	MeanFitness        float64 `json:"mean_fitness"`
	MinFitness         float64 `json:"min_fitness"`
	ReachedFood        int     `json:"reached_food"`
	StrayedOutOfBounds int     `json:"strayed_out_of_bounds"`
	SelectionPoolSize  int     `json:"selection_pool_size"`
	TicksRun           int     `json:"ticks_run"`
	GuardedConditions  int     `json:"guarded_conditions"`
}

// RunRecord describes one finished evolution run.
type RunRecord struct {
	VersionedRecord
	ID               string   `json:"id"`
	CreatedAtUTC     string   `json:"created_at_utc"`
	Seed             int64    `json:"seed"`
	PopulationSize   int      `json:"population_size"`
	GenomeLength     int      `json:"genome_length"`
	Generations      int      `json:"generations"`
	Mutability       float64  `json:"mutability"`
	World            World    `json:"world"`
	OutOfBounds      string   `json:"out_of_bounds"`
	FinalBestFitness float64  `json:"final_best_fitness"`
	StopReason       string   `json:"stop_reason,omitempty"`
	Notes            []string `json:"notes,omitempty"`
}

// PopulationRecord stores the final genomes of a run in compact text form.
type PopulationRecord struct {
	VersionedRecord
	ID         string   `json:"id"`
	Generation int      `json:"generation"`
	Genomes    []string `json:"genomes"`
}

type TopGenomeRecord struct {
	VersionedRecord
	Rank         int      `json:"rank"`
	AgentID      int      `json:"agent_id"`
	Fitness      float64  `json:"fitness"`
	Genome       string   `json:"genome"`
	Final        Position `json:"final"`
	ReachedFood  bool     `json:"reached_food"`
	TicksElapsed int      `json:"ticks_elapsed"`
}
