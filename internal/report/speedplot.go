package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/pitchdata/match.report/internal/kinematics"
	"github.com/pitchdata/match.report/internal/track"
)

// WriteSpeedProfiles renders one PNG per player track: smoothed speed
// against elapsed match time, with the sprint threshold drawn as a
// horizontal rule. Tracks without at least two observations are skipped.
func WriteSpeedProfiles(dir string, tracks []*track.Track, cfg kinematics.Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create plot dir: %w", err)
	}

	for _, tr := range tracks {
		if tr.Class == track.ClassBall || len(tr.History) < 2 {
			continue
		}
		if err := writeSpeedProfile(dir, tr, cfg); err != nil {
			return err
		}
	}
	return nil
}

func writeSpeedProfile(dir string, tr *track.Track, cfg kinematics.Config) error {
	series := kinematics.Derive(tr.History, cfg)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Speed profile %s", tr.ID)
	p.X.Label.Text = "elapsed (s)"
	p.Y.Label.Text = "speed (m/s)"

	start := series.Times[0]
	pts := make(plotter.XYs, 0, len(series.Speeds))
	for i, v := range series.Speeds {
		pts = append(pts, plotter.XY{X: series.Times[i].Sub(start).Seconds(), Y: v})
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to build speed line for %s: %w", tr.ID, err)
	}
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("speed", line)

	if cfg.SprintSpeedMps > 0 && len(pts) > 0 {
		rule := plotter.XYs{
			{X: pts[0].X, Y: cfg.SprintSpeedMps},
			{X: pts[len(pts)-1].X, Y: cfg.SprintSpeedMps},
		}
		ruleLine, err := plotter.NewLine(rule)
		if err != nil {
			return fmt.Errorf("failed to build sprint rule for %s: %w", tr.ID, err)
		}
		ruleLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
		ruleLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(ruleLine)
		p.Legend.Add("sprint threshold", ruleLine)
	}

	file := filepath.Join(dir, fmt.Sprintf("speed_%s.png", tr.ID))
	if err := p.Save(10*vg.Inch, 4*vg.Inch, file); err != nil {
		return fmt.Errorf("failed to save %s: %w", file, err)
	}
	return nil
}
