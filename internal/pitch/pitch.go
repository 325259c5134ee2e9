// Package pitch models the playing surface in metric pitch coordinates.
//
// The coordinate frame has its origin at the corner where the left goal
// line meets the near touchline. X runs along the pitch length toward the
// right goal, Y across the width. All distances are meters.
package pitch

import (
	"fmt"
	"math"
)

// Point is a position in pitch coordinates (meters).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Zone identifies one of the six standard pitch zones, the cross product
// of thirds along the length and halves across the width.
type Zone string

const (
	ZoneDefensiveLeft  Zone = "defensive_left"
	ZoneDefensiveRight Zone = "defensive_right"
	ZoneMiddleLeft     Zone = "middle_left"
	ZoneMiddleRight    Zone = "middle_right"
	ZoneAttackingLeft  Zone = "attacking_left"
	ZoneAttackingRight Zone = "attacking_right"
	// ZoneOutOfPlay is used for points outside the pitch boundary.
	ZoneOutOfPlay Zone = "out_of_play"
)

// Zones lists the six in-play zones in a stable order.
var Zones = []Zone{
	ZoneDefensiveLeft, ZoneDefensiveRight,
	ZoneMiddleLeft, ZoneMiddleRight,
	ZoneAttackingLeft, ZoneAttackingRight,
}

// Side identifies which goal a team attacks or defends.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Pitch describes the playing surface geometry.
type Pitch struct {
	Length    float64 // meters, along X
	Width     float64 // meters, along Y
	GoalWidth float64 // goal mouth width, meters
}

// New returns a Pitch with the given dimensions.
func New(length, width, goalWidth float64) (*Pitch, error) {
	if length <= 0 || width <= 0 {
		return nil, fmt.Errorf("pitch dimensions must be positive, got %fx%f", length, width)
	}
	if goalWidth <= 0 || goalWidth >= width {
		return nil, fmt.Errorf("goal width %f must be positive and smaller than pitch width %f", goalWidth, width)
	}
	return &Pitch{Length: length, Width: width, GoalWidth: goalWidth}, nil
}

// Standard returns a FIFA standard pitch (105m x 68m, 7.32m goals).
func Standard() *Pitch {
	return &Pitch{Length: 105.0, Width: 68.0, GoalWidth: 7.32}
}

// Contains reports whether p lies on the pitch (boundary inclusive).
func (pt *Pitch) Contains(p Point) bool {
	return p.X >= 0 && p.X <= pt.Length && p.Y >= 0 && p.Y <= pt.Width
}

// Center returns the center spot.
func (pt *Pitch) Center() Point {
	return Point{X: pt.Length / 2, Y: pt.Width / 2}
}

// GoalCenter returns the midpoint of the goal mouth on the given side.
func (pt *Pitch) GoalCenter(side Side) Point {
	x := 0.0
	if side == SideRight {
		x = pt.Length
	}
	return Point{X: x, Y: pt.Width / 2}
}

// GoalMouth returns the Y extent of the goal mouth on either side.
func (pt *Pitch) GoalMouth() (yMin, yMax float64) {
	half := pt.GoalWidth / 2
	return pt.Width/2 - half, pt.Width/2 + half
}

// InGoal reports whether p has crossed the goal line into the goal mouth
// on the given side. A small overshoot behind the line is accepted since
// tracked positions are noisy near the boundary.
func (pt *Pitch) InGoal(p Point, side Side) bool {
	const overshoot = 2.0 // meters behind the goal line
	yMin, yMax := pt.GoalMouth()
	if p.Y < yMin || p.Y > yMax {
		return false
	}
	switch side {
	case SideLeft:
		return p.X <= 0 && p.X >= -overshoot
	case SideRight:
		return p.X >= pt.Length && p.X <= pt.Length+overshoot
	}
	return false
}

// ZoneAt returns the zone containing p, or ZoneOutOfPlay when p is off
// the pitch. Thirds split the length at L/3 and 2L/3; the width splits at
// the halfway line W/2, with the boundary belonging to the right half.
func (pt *Pitch) ZoneAt(p Point) Zone {
	if !pt.Contains(p) {
		return ZoneOutOfPlay
	}
	third := pt.Length / 3
	left := p.Y < pt.Width/2

	switch {
	case p.X < third:
		if left {
			return ZoneDefensiveLeft
		}
		return ZoneDefensiveRight
	case p.X < 2*third:
		if left {
			return ZoneMiddleLeft
		}
		return ZoneMiddleRight
	default:
		if left {
			return ZoneAttackingLeft
		}
		return ZoneAttackingRight
	}
}

// Grid maps pitch positions to cells of an NxN occupancy grid, used for
// heatmaps. Cell (0,0) is the defensive-left corner.
type Grid struct {
	pitch *Pitch
	size  int
}

// NewGrid returns an NxN grid over the pitch. Size must be at least 1.
func (pt *Pitch) NewGrid(size int) (*Grid, error) {
	if size < 1 {
		return nil, fmt.Errorf("grid size must be at least 1, got %d", size)
	}
	return &Grid{pitch: pt, size: size}, nil
}

// Size returns the grid dimension N.
func (g *Grid) Size() int { return g.size }

// CellAt returns the (row, col) cell containing p and true, or false when
// p is off the pitch. Row follows Y, col follows X. Points exactly on the
// far boundary land in the last cell.
func (g *Grid) CellAt(p Point) (row, col int, ok bool) {
	if !g.pitch.Contains(p) {
		return 0, 0, false
	}
	col = int(p.X / g.pitch.Length * float64(g.size))
	row = int(p.Y / g.pitch.Width * float64(g.size))
	if col >= g.size {
		col = g.size - 1
	}
	if row >= g.size {
		row = g.size - 1
	}
	return row, col, true
}
