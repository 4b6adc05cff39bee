package stats

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"gridforage/internal/model"
)

// WriteFitnessPlot renders best and mean fitness per generation to a PNG (or
// any extension gonum/plot understands) at outPath.
func WriteFitnessPlot(outPath, title string, diagnostics []model.GenerationDiagnostics) error {
	if len(diagnostics) == 0 {
		return fmt.Errorf("no generations to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	bestPts := make(plotter.XYs, len(diagnostics))
	meanPts := make(plotter.XYs, len(diagnostics))
	for i, d := range diagnostics {
		bestPts[i].X = float64(d.Generation)
		bestPts[i].Y = d.BestFitness
		meanPts[i].X = float64(d.Generation)
		meanPts[i].Y = d.MeanFitness
	}

	bestLine, err := plotter.NewLine(bestPts)
	if err != nil {
		return err
	}
	meanLine, err := plotter.NewLine(meanPts)
	if err != nil {
		return err
	}
	meanLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}

	p.Add(plotter.NewGrid(), bestLine, meanLine)
	p.Legend.Add("best", bestLine)
	p.Legend.Add("mean", meanLine)
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, outPath)
}

// PlotRun renders the stored diagnostics of runID. An empty outPath writes
// fitness.png inside the run directory.
func PlotRun(baseDir, runID, outPath string) (string, error) {
	diagnostics, ok, err := ReadGenerationDiagnostics(baseDir, runID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("generation diagnostics not found for run id: %s", runID)
	}
	if outPath == "" {
		outPath = filepath.Join(baseDir, runID, fitnessPlotFile)
	}
	if err := WriteFitnessPlot(outPath, "Run "+runID, diagnostics); err != nil {
		return "", err
	}
	return outPath, nil
}
