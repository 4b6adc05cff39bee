// Package render draws generation snapshots. It reads engine output and
// keeps its own presentation state; nothing here feeds back into a run.
package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gridforage/internal/evo"
	"gridforage/internal/model"
)

const (
	GlyphAgent = 'x'
	GlyphFood  = 'o'
	GlyphEmpty = ' '
)

// Grid lays out one frame as rows of glyphs. Agents are drawn over the food
// cell; agents outside the world are skipped.
func Grid(world model.World, frame []model.Snapshot) [][]rune {
	grid := make([][]rune, world.Height)
	for y := range grid {
		row := make([]rune, world.Width)
		for x := range row {
			row[x] = GlyphEmpty
		}
		grid[y] = row
	}
	if world.Contains(world.Food) {
		grid[world.Food.Y][world.Food.X] = GlyphFood
	}
	for _, s := range frame {
		p := model.Position{X: s.X, Y: s.Y}
		if !world.Contains(p) {
			continue
		}
		grid[p.Y][p.X] = GlyphAgent
	}
	return grid
}

// Frame renders one tick as newline separated rows.
func Frame(world model.World, frame []model.Snapshot) string {
	grid := Grid(world, frame)
	rows := make([]string, len(grid))
	for y, row := range grid {
		rows[y] = string(row)
	}
	return strings.Join(rows, "\n")
}

func WriteFrame(w io.Writer, world model.World, frame []model.Snapshot) error {
	_, err := io.WriteString(w, Frame(world, frame)+"\n")
	return err
}

// FrameWriter prints every tick of every generation as plain text. It is the
// non-interactive counterpart of Viewer.
type FrameWriter struct {
	w     io.Writer
	world model.World
}

func NewFrameWriter(w io.Writer, world model.World) *FrameWriter {
	return &FrameWriter{w: w, world: world}
}

func (f *FrameWriter) ObserveGeneration(ctx context.Context, run evo.GenerationRun, diagnostics model.GenerationDiagnostics) error {
	for tick, frame := range run.Frames() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(f.w, "gen %d  tick %d/%d\n", run.Final.Generation, tick, run.TicksRun); err != nil {
			return err
		}
		if err := WriteFrame(f.w, f.world, frame); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(f.w, "gen %d  best %.2f  mean %.2f  food %d  strayed %d\n",
		diagnostics.Generation, diagnostics.BestFitness, diagnostics.MeanFitness, diagnostics.ReachedFood, diagnostics.StrayedOutOfBounds)
	return err
}
