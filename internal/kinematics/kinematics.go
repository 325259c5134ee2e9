// Package kinematics converts a track's raw pitch-position samples into
// physically plausible speed, acceleration and distance signals. Positions
// are smoothed before differentiating so detection jitter does not inflate
// distance totals.
package kinematics

import (
	"math"
	"time"

	"github.com/pitchdata/match.report/internal/config"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

// SpeedZone buckets instantaneous speed for workload breakdowns.
type SpeedZone string

const (
	ZoneWalking   SpeedZone = "walking"   // <= 2 m/s
	ZoneJogging   SpeedZone = "jogging"   // <= 4 m/s
	ZoneRunning   SpeedZone = "running"   // <= 7 m/s
	ZoneSprinting SpeedZone = "sprinting" // > 7 m/s
)

// Fixed speed zone boundaries (m/s). The sprint event threshold is
// configurable separately; these buckets follow common match-analysis
// convention.
const (
	walkingMaxMps = 2.0
	joggingMaxMps = 4.0
	runningMaxMps = 7.0
)

// effortReferenceMps is the speed treated as 100% effort.
const effortReferenceMps = 9.0

// zoneFor returns the speed zone for an instantaneous speed.
func zoneFor(speed float64) SpeedZone {
	switch {
	case speed <= walkingMaxMps:
		return ZoneWalking
	case speed <= joggingMaxMps:
		return ZoneJogging
	case speed <= runningMaxMps:
		return ZoneRunning
	default:
		return ZoneSprinting
	}
}

// Config holds kinematics parameters.
type Config struct {
	SmoothingWindow   int           // moving-average window over positions
	SprintSpeedMps    float64       // speed above which a run counts toward a sprint
	SprintMinDuration time.Duration // minimum duration for a sprint
	HighIntensityMps  float64       // threshold for high-intensity distance
	MaxGap            time.Duration // sample gaps beyond this are not bridged
}

// ConfigFromAnalysis builds a kinematics Config from a loaded
// AnalysisConfig. The gap budget is the coasting window expressed in time:
// max_coast_frames at the configured frame rate.
func ConfigFromAnalysis(cfg *config.AnalysisConfig) Config {
	gap := time.Duration(float64(cfg.GetMaxCoastFrames()) / cfg.GetFrameRate() * float64(time.Second))
	return Config{
		SmoothingWindow:   cfg.GetSmoothingWindow(),
		SprintSpeedMps:    cfg.GetSprintSpeedMps(),
		SprintMinDuration: cfg.GetSprintMinDuration(),
		HighIntensityMps:  cfg.GetHighIntensitySpeedMps(),
		MaxGap:            gap,
	}
}

// Sprint is a contiguous interval where speed stayed above the sprint
// threshold for at least the minimum duration.
type Sprint struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	PeakSpeedMps float64   `json:"peak_speed_mps"`
	DistanceM    float64   `json:"distance_m"`
}

// Series is the per-sample kinematic signal derived from a track history.
// All slices have the same length as the input history. Speeds[0] and
// Accels[0..1] are zero since differentiation needs preceding samples.
type Series struct {
	Times    []time.Time
	Smoothed []pitch.Point
	Speeds   []float64 // m/s, displacement over elapsed time per segment
	Accels   []float64 // m/s², derivative of speed
	// GapBefore[i] is true when the interval (i-1, i] exceeds the gap
	// budget; its distance is excluded from totals and it breaks sprint
	// continuity.
	GapBefore []bool
}

// Summary aggregates a whole track history into physical metrics.
type Summary struct {
	Samples                int                       `json:"samples"`
	Duration               time.Duration             `json:"duration"`
	TotalDistanceM         float64                   `json:"total_distance_m"`
	AvgSpeedMps            float64                   `json:"avg_speed_mps"`
	PeakSpeedMps           float64                   `json:"peak_speed_mps"`
	PeakAccelMps2          float64                   `json:"peak_accel_mps2"`
	HighIntensityDistanceM float64                   `json:"high_intensity_distance_m"`
	Sprints                []Sprint                  `json:"sprints"`
	DistanceByZone         map[SpeedZone]float64     `json:"distance_by_zone"`
	TimeByZone             map[SpeedZone]time.Duration `json:"time_by_zone"`
	// EffortScore is the mean of per-segment speed as a percentage of the
	// effort reference speed, capped at 100.
	EffortScore float64 `json:"effort_score"`
}

// Derive computes the per-sample kinematic series for a track history.
// The history must be ordered by timestamp; out-of-order samples are the
// tracker's responsibility and never occur in its output.
func Derive(history []track.Sample, cfg Config) *Series {
	n := len(history)
	s := &Series{
		Times:     make([]time.Time, n),
		Smoothed:  make([]pitch.Point, n),
		Speeds:    make([]float64, n),
		Accels:    make([]float64, n),
		GapBefore: make([]bool, n),
	}
	if n == 0 {
		return s
	}

	window := cfg.SmoothingWindow
	if window < 1 {
		window = 1
	}

	for i, sample := range history {
		s.Times[i] = sample.Timestamp
		// Trailing moving average over up to `window` samples. A trailing
		// window keeps the signal causal so it can be computed fully
		// incrementally.
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		var sx, sy float64
		for j := start; j <= i; j++ {
			sx += history[j].Pos.X
			sy += history[j].Pos.Y
		}
		count := float64(i - start + 1)
		s.Smoothed[i] = pitch.Point{X: sx / count, Y: sy / count}
	}

	for i := 1; i < n; i++ {
		dt := s.Times[i].Sub(s.Times[i-1])
		if dt <= 0 {
			continue
		}
		if cfg.MaxGap > 0 && dt > cfg.MaxGap {
			s.GapBefore[i] = true
			continue
		}
		dist := s.Smoothed[i].Dist(s.Smoothed[i-1])
		s.Speeds[i] = dist / dt.Seconds()
	}

	for i := 2; i < n; i++ {
		if s.GapBefore[i] || s.GapBefore[i-1] {
			continue
		}
		dt := s.Times[i].Sub(s.Times[i-1])
		if dt <= 0 {
			continue
		}
		s.Accels[i] = (s.Speeds[i] - s.Speeds[i-1]) / dt.Seconds()
	}

	return s
}

// Summarize derives the series and aggregates it into a Summary.
func Summarize(history []track.Sample, cfg Config) *Summary {
	s := Derive(history, cfg)
	n := len(s.Times)

	sum := &Summary{
		Samples:        n,
		DistanceByZone: make(map[SpeedZone]float64),
		TimeByZone:     make(map[SpeedZone]time.Duration),
	}
	if n < 2 {
		return sum
	}
	sum.Duration = s.Times[n-1].Sub(s.Times[0])

	var validTime time.Duration
	var effortSum float64
	var effortCount int

	for i := 1; i < n; i++ {
		if s.GapBefore[i] {
			// Gap beyond the coasting budget: no distance accrues, no
			// effort sample, nothing bridges the interval.
			continue
		}
		dt := s.Times[i].Sub(s.Times[i-1])
		if dt <= 0 {
			continue
		}
		dist := s.Smoothed[i].Dist(s.Smoothed[i-1])
		speed := s.Speeds[i]

		sum.TotalDistanceM += dist
		validTime += dt

		zone := zoneFor(speed)
		sum.DistanceByZone[zone] += dist
		sum.TimeByZone[zone] += dt

		if speed >= cfg.HighIntensityMps {
			sum.HighIntensityDistanceM += dist
		}
		if speed > sum.PeakSpeedMps {
			sum.PeakSpeedMps = speed
		}
		if a := math.Abs(s.Accels[i]); a > sum.PeakAccelMps2 {
			sum.PeakAccelMps2 = a
		}

		effort := speed / effortReferenceMps * 100
		if effort > 100 {
			effort = 100
		}
		effortSum += effort
		effortCount++
	}

	if validTime > 0 {
		sum.AvgSpeedMps = sum.TotalDistanceM / validTime.Seconds()
	}
	if effortCount > 0 {
		sum.EffortScore = effortSum / float64(effortCount)
	}

	sum.Sprints = detectSprints(s, cfg)
	return sum
}

// detectSprints finds contiguous intervals where speed stays at or above
// the sprint threshold for at least the minimum duration. A gap beyond the
// coasting budget breaks the interval.
func detectSprints(s *Series, cfg Config) []Sprint {
	var sprints []Sprint
	n := len(s.Times)

	runStart := -1
	var runDist, runPeak float64

	flush := func(endIdx int) {
		if runStart < 0 {
			return
		}
		duration := s.Times[endIdx].Sub(s.Times[runStart-1])
		if duration >= cfg.SprintMinDuration {
			sprints = append(sprints, Sprint{
				Start:        s.Times[runStart-1],
				End:          s.Times[endIdx],
				PeakSpeedMps: runPeak,
				DistanceM:    runDist,
			})
		}
		runStart = -1
		runDist = 0
		runPeak = 0
	}

	for i := 1; i < n; i++ {
		if s.GapBefore[i] || s.Speeds[i] < cfg.SprintSpeedMps {
			flush(i - 1)
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		runDist += s.Smoothed[i].Dist(s.Smoothed[i-1])
		if s.Speeds[i] > runPeak {
			runPeak = s.Speeds[i]
		}
	}
	flush(n - 1)

	return sprints
}
