// Package tactical derives team-shape metrics from tracked positions:
// centroids, convex-hull areas, zone occupancy and positional heatmaps,
// computed over sliding time windows.
package tactical

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/pitchdata/match.report/internal/config"
	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

// Config controls windowing and heatmap resolution.
type Config struct {
	Window   time.Duration
	Stride   time.Duration
	GridSize int
}

// ConfigFromAnalysis builds a tactical Config from a loaded AnalysisConfig.
func ConfigFromAnalysis(cfg *config.AnalysisConfig) Config {
	return Config{
		Window:   cfg.GetTacticalWindow(),
		Stride:   cfg.GetTacticalStride(),
		GridSize: cfg.GetHeatmapGridSize(),
	}
}

// TeamShape summarises one team's spatial organisation in a window.
type TeamShape struct {
	Team        events.Team            `json:"team"`
	PlayerCount int                    `json:"player_count"`
	SampleCount int                    `json:"sample_count"`
	Centroid    pitch.Point            `json:"centroid"`
	HullAreaM2  float64                `json:"hull_area_m2"`
	Compactness float64                `json:"compactness_m"` // mean player distance to centroid
	ZoneShares  map[pitch.Zone]float64 `json:"zone_shares"`
}

// Snapshot is the tactical picture for one time window.
type Snapshot struct {
	Start time.Time              `json:"start"`
	End   time.Time              `json:"end"`
	Home  TeamShape              `json:"home"`
	Away  TeamShape              `json:"away"`
}

// Heatmap is a row-major occupancy grid normalised so the densest cell
// is 1.0. Rows follow Y, columns follow X.
type Heatmap struct {
	Size  int         `json:"size"`
	Cells [][]float64 `json:"cells"`
}

// Aggregator computes tactical metrics. It is a pure function of its
// inputs: the same tracks and window always produce the same Snapshot.
type Aggregator struct {
	cfg   Config
	pitch *pitch.Pitch
	grid  *pitch.Grid
}

func (cfg Config) validate() error {
	if cfg.Window <= 0 {
		return fmt.Errorf("tactical: window must be positive, got %s", cfg.Window)
	}
	if cfg.Stride <= 0 {
		return fmt.Errorf("tactical: stride must be positive, got %s", cfg.Stride)
	}
	return nil
}

// NewAggregator creates an Aggregator for the given pitch. Window and
// Stride must be positive or the sliding in Windows could not advance.
func NewAggregator(cfg Config, p *pitch.Pitch) (*Aggregator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	grid, err := p.NewGrid(cfg.GridSize)
	if err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg, pitch: p, grid: grid}, nil
}

// Windows slides a window of cfg.Window by cfg.Stride across [start, end)
// and computes a Snapshot per window. Windows with no samples for either
// team are still emitted with zero shapes so the timeline stays regular.
func (a *Aggregator) Windows(tracks []*track.Track, teams events.TeamMap, start, end time.Time) []Snapshot {
	var out []Snapshot
	if !start.Before(end) || a.cfg.Stride <= 0 {
		return out
	}
	for ws := start; ws.Before(end); ws = ws.Add(a.cfg.Stride) {
		we := ws.Add(a.cfg.Window)
		if we.After(end) {
			we = end
		}
		out = append(out, a.ComputeWindow(tracks, teams, ws, we))
		if !ws.Add(a.cfg.Stride).Before(end) {
			break
		}
	}
	return out
}

// ComputeWindow builds the tactical Snapshot for samples with timestamps
// in [start, end).
func (a *Aggregator) ComputeWindow(tracks []*track.Track, teams events.TeamMap, start, end time.Time) Snapshot {
	return Snapshot{
		Start: start,
		End:   end,
		Home:  a.teamShape(tracks, teams, events.TeamHome, start, end),
		Away:  a.teamShape(tracks, teams, events.TeamAway, start, end),
	}
}

func (a *Aggregator) teamShape(tracks []*track.Track, teams events.TeamMap, team events.Team, start, end time.Time) TeamShape {
	shape := TeamShape{
		Team:       team,
		ZoneShares: make(map[pitch.Zone]float64),
	}

	// One representative point per player: the mean of its in-window
	// observations. Hull and compactness describe the formation, not the
	// sampling density.
	var anchors []pitch.Point
	zoneCounts := make(map[pitch.Zone]int)
	total := 0

	for _, tr := range tracks {
		if tr.Class != track.ClassPlayer && tr.Class != track.ClassGoalkeeper {
			continue
		}
		if teams.TeamOf(tr.ID) != team {
			continue
		}
		var xs, ys []float64
		for _, s := range tr.History {
			if s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
				continue
			}
			xs = append(xs, s.Pos.X)
			ys = append(ys, s.Pos.Y)
			zoneCounts[a.pitch.ZoneAt(s.Pos)]++
			total++
		}
		if len(xs) == 0 {
			continue
		}
		anchors = append(anchors, pitch.Point{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)})
	}

	shape.PlayerCount = len(anchors)
	shape.SampleCount = total
	if len(anchors) == 0 {
		return shape
	}

	var cx, cy float64
	for _, p := range anchors {
		cx += p.X
		cy += p.Y
	}
	shape.Centroid = pitch.Point{X: cx / float64(len(anchors)), Y: cy / float64(len(anchors))}

	var spread float64
	for _, p := range anchors {
		spread += p.Dist(shape.Centroid)
	}
	shape.Compactness = spread / float64(len(anchors))

	shape.HullAreaM2 = polygonArea(convexHull(anchors))

	for zone, n := range zoneCounts {
		shape.ZoneShares[zone] = float64(n) / float64(total)
	}
	return shape
}

// HeatmapFor counts a team's in-window observations into the occupancy
// grid and normalises to the densest cell. Out-of-grid samples are
// dropped.
func (a *Aggregator) HeatmapFor(tracks []*track.Track, teams events.TeamMap, team events.Team, start, end time.Time) Heatmap {
	size := a.grid.Size()
	counts := make([][]float64, size)
	for i := range counts {
		counts[i] = make([]float64, size)
	}
	peak := 0.0
	for _, tr := range tracks {
		if tr.Class != track.ClassPlayer && tr.Class != track.ClassGoalkeeper {
			continue
		}
		if teams.TeamOf(tr.ID) != team {
			continue
		}
		for _, s := range tr.History {
			if s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
				continue
			}
			row, col, ok := a.grid.CellAt(s.Pos)
			if !ok {
				continue
			}
			counts[row][col]++
			if counts[row][col] > peak {
				peak = counts[row][col]
			}
		}
	}
	if peak > 0 {
		for i := range counts {
			for j := range counts[i] {
				counts[i][j] /= peak
			}
		}
	}
	return Heatmap{Size: size, Cells: counts}
}

// PossessionPercent converts accumulated control durations into
// percentages of the total controlled time. Neutral time is excluded, so
// home and away sum to 100 whenever either team held the ball.
func PossessionPercent(possession map[events.Team]time.Duration) map[events.Team]float64 {
	total := possession[events.TeamHome] + possession[events.TeamAway]
	out := map[events.Team]float64{events.TeamHome: 0, events.TeamAway: 0}
	if total <= 0 {
		return out
	}
	out[events.TeamHome] = 100 * float64(possession[events.TeamHome]) / float64(total)
	out[events.TeamAway] = 100 * float64(possession[events.TeamAway]) / float64(total)
	return out
}

// convexHull returns the hull of pts in counter-clockwise order using the
// monotone chain construction. Input order does not matter.
func convexHull(pts []pitch.Point) []pitch.Point {
	if len(pts) < 3 {
		out := make([]pitch.Point, len(pts))
		copy(out, pts)
		return out
	}
	sorted := make([]pitch.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	var lower, upper []pitch.Point
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}
	return append(lower[:len(lower)-1], upper[:len(upper)-1]...)
}

func cross(o, a, b pitch.Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// polygonArea is the shoelace area of a simple polygon. Collinear or
// degenerate inputs yield zero.
func polygonArea(poly []pitch.Point) float64 {
	if len(poly) < 3 {
		return 0
	}
	area := 0.0
	for i := range poly {
		j := (i + 1) % len(poly)
		area += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return math.Abs(area) / 2
}
