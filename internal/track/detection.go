package track

import (
	"fmt"
	"math"
	"time"

	"github.com/pitchdata/match.report/internal/calib"
	"github.com/pitchdata/match.report/internal/pitch"
)

// Class is the closed set of detection classes. Association is always
// within a single class; a player detection never matches a ball track.
type Class string

const (
	ClassPlayer     Class = "player"
	ClassGoalkeeper Class = "goalkeeper"
	ClassBall       Class = "ball"
	ClassReferee    Class = "referee"
)

// Valid reports whether c is one of the known classes.
func (c Class) Valid() bool {
	switch c {
	case ClassPlayer, ClassGoalkeeper, ClassBall, ClassReferee:
		return true
	}
	return false
}

// Detection is one perception-model observation for one frame. It is
// ephemeral: produced externally, consumed once by the tracker.
type Detection struct {
	FrameIndex int              `json:"frame_index"`
	Timestamp  time.Time        `json:"timestamp"`
	Class      Class            `json:"class"`
	Pixel      calib.PixelPoint `json:"pixel"`
	Pos        pitch.Point      `json:"pos"` // projected pitch position, meters
	Confidence float64          `json:"confidence"`
}

// Validate checks a single detection for structural problems. A failing
// detection is skipped with a frame-level warning, never fatal.
func (d *Detection) Validate() error {
	if !d.Class.Valid() {
		return fmt.Errorf("unknown detection class %q", d.Class)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %f outside [0,1]", d.Confidence)
	}
	if d.Timestamp.IsZero() {
		return fmt.Errorf("zero timestamp")
	}
	for name, v := range map[string]float64{
		"pos.x": d.Pos.X, "pos.y": d.Pos.Y,
		"pixel.x": d.Pixel.X, "pixel.y": d.Pixel.Y,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	return nil
}
