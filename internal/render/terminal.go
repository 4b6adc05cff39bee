package render

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"

	"gridforage/internal/evo"
	"gridforage/internal/model"
)

const pausePoll = 50 * time.Millisecond

var agentPalette = []tcell.Color{
	tcell.ColorGreen,
	tcell.ColorYellow,
	tcell.ColorAqua,
	tcell.ColorFuchsia,
	tcell.ColorSilver,
	tcell.ColorOrange,
}

type ViewerOptions struct {
	// FrameDelay is the wall-clock pause between ticks. Zero draws as fast
	// as possible.
	FrameDelay time.Duration
	// Control receives the stop command when the user quits.
	Control chan<- evo.MonitorCommand
}

// Viewer animates each scored generation on a tcell screen. It is a
// GenerationObserver; keyboard input is handled by HandleEvents.
type Viewer struct {
	screen  tcell.Screen
	world   model.World
	delay   time.Duration
	control chan<- evo.MonitorCommand
	handles *HandleRegistry[tcell.Style]

	drawMu   sync.Mutex
	paused   atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once
}

func NewViewer(screen tcell.Screen, world model.World, opts ViewerOptions) *Viewer {
	return &Viewer{
		screen:  screen,
		world:   world,
		delay:   opts.FrameDelay,
		control: opts.Control,
		handles: NewHandleRegistry[tcell.Style](),
		quit:    make(chan struct{}),
	}
}

// Done is closed once the user asked to quit.
func (v *Viewer) Done() <-chan struct{} {
	return v.quit
}

func (v *Viewer) Paused() bool {
	return v.paused.Load()
}

func (v *Viewer) ObserveGeneration(ctx context.Context, run evo.GenerationRun, diagnostics model.GenerationDiagnostics) error {
	generation := run.Final.Generation
	v.handles.Prune(generation)

	for tick, frame := range run.Frames() {
		if err := v.waitWhilePaused(ctx); err != nil {
			return err
		}
		select {
		case <-v.quit:
			return nil
		default:
		}

		status := fmt.Sprintf("gen %d  tick %d/%d", generation, tick, run.TicksRun)
		v.DrawFrame(generation, frame, status)

		if v.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-v.quit:
				return nil
			case <-time.After(v.delay):
			}
		}
	}

	v.DrawSummary(diagnostics)
	return nil
}

func (v *Viewer) waitWhilePaused(ctx context.Context) error {
	for v.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.quit:
			return nil
		case <-time.After(pausePoll):
		}
	}
	return nil
}

// DrawFrame paints the status line on row 0 and the world below it.
func (v *Viewer) DrawFrame(generation int, frame []model.Snapshot, status string) {
	v.drawMu.Lock()
	defer v.drawMu.Unlock()

	v.screen.Clear()
	v.drawText(0, 0, tcell.StyleDefault.Bold(true), status)

	grid := Grid(v.world, frame)
	foodStyle := tcell.StyleDefault.Foreground(tcell.ColorRed)
	for y, row := range grid {
		for x, glyph := range row {
			if glyph == GlyphFood {
				v.screen.SetContent(x, y+1, glyph, nil, foodStyle)
			}
		}
	}
	for _, s := range frame {
		p := model.Position{X: s.X, Y: s.Y}
		if !v.world.Contains(p) {
			continue
		}
		style := v.handles.Ensure(AgentKey{Generation: generation, ID: s.AgentID}, agentStyle)
		if s.ReachedFood {
			style = style.Bold(true)
		}
		v.screen.SetContent(p.X, p.Y+1, grid[p.Y][p.X], nil, style)
	}
	v.screen.Show()
}

// DrawSummary writes the generation result below the world.
func (v *Viewer) DrawSummary(d model.GenerationDiagnostics) {
	v.drawMu.Lock()
	defer v.drawMu.Unlock()

	line := fmt.Sprintf("gen %d  best %.2f  mean %.2f  food %d  strayed %d",
		d.Generation, d.BestFitness, d.MeanFitness, d.ReachedFood, d.StrayedOutOfBounds)
	v.drawText(0, v.world.Height+1, tcell.StyleDefault, line)
	if d.GuardedConditions > 0 {
		v.drawText(0, v.world.Height+2, tcell.StyleDefault.Foreground(tcell.ColorRed),
			fmt.Sprintf("guarded conditions: %d", d.GuardedConditions))
	}
	v.drawText(0, v.world.Height+3, tcell.StyleDefault.Dim(true), "[p]ause  [q]uit")
	v.screen.Show()
}

func (v *Viewer) drawText(x, y int, style tcell.Style, text string) {
	for i, r := range []rune(text) {
		v.screen.SetContent(x+i, y, r, nil, style)
	}
}

// HandleEvents forwards keyboard input until ctx ends or the user quits.
func (v *Viewer) HandleEvents(ctx context.Context) {
	events := make(chan tcell.Event, 16)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-v.quit:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				v.handleKey(ev.Key(), ev.Rune())
			case *tcell.EventResize:
				v.screen.Sync()
			}
		}
	}
}

func (v *Viewer) handleKey(key tcell.Key, r rune) {
	switch {
	case key == tcell.KeyEscape || key == tcell.KeyCtrlC || (key == tcell.KeyRune && r == 'q'):
		v.Quit()
	case key == tcell.KeyRune && (r == 'p' || r == ' '):
		// Pausing blocks ObserveGeneration, which holds the monitor between
		// generations, so no command is forwarded.
		v.paused.Store(!v.paused.Load())
	}
}

// Quit stops the animation and asks the monitor to stop.
func (v *Viewer) Quit() {
	v.quitOnce.Do(func() {
		v.paused.Store(false)
		close(v.quit)
		v.send(evo.CommandStop)
	})
}

// send never blocks: a full control channel already holds commands the
// monitor has yet to drain.
func (v *Viewer) send(cmd evo.MonitorCommand) {
	if v.control == nil {
		return
	}
	select {
	case v.control <- cmd:
	default:
	}
}

func agentStyle(key AgentKey) tcell.Style {
	return tcell.StyleDefault.Foreground(agentPalette[key.ID%len(agentPalette)])
}
