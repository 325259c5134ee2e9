// Package track maintains persistent object identities across frames of
// noisy detections using predict-associate-update cycles. Each physical
// entity (player, goalkeeper, referee, ball) is represented by one Track
// whose motion is estimated by a constant-velocity Kalman filter.
package track

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchdata/match.report/internal/calib"
	"github.com/pitchdata/match.report/internal/config"
	"github.com/pitchdata/match.report/internal/pitch"
)

// State represents the lifecycle state of a track.
type State string

const (
	StateActive   State = "active"   // confirmed by a detection this frame
	StateCoasting State = "coasting" // predicted but not confirmed
	StateLost     State = "lost"     // exceeded the coasting budget; archived
)

// Internal numerical stability constants, not user-tunable.
const (
	// minDeterminantThreshold is the minimum determinant for covariance inversion
	minDeterminantThreshold = 1e-9
	// singularDistanceRejection is the distance returned when covariance is singular
	singularDistanceRejection = 1e9
	// incumbencyEpsilon breaks association cost ties in favour of the track
	// with the longer continuous active history. Small enough to never
	// reorder genuinely different costs.
	incumbencyEpsilon = 1e-9
)

// TrackerConfig holds configuration parameters for the tracker.
type TrackerConfig struct {
	MaxTracks             int     // maximum number of concurrent live tracks
	MaxCoastFrames        int     // consecutive misses before a track is lost
	GatingDistanceSquared float64 // squared gating distance for association
	ProcessNoisePos       float64 // process noise for position (σ²)
	ProcessNoiseVel       float64 // process noise for velocity (σ²)
	MeasurementNoise      float64 // measurement noise (σ²)
	CoastCovInflation     float64 // extra covariance inflation per coasted frame
	MaxCovarianceDiag     float64 // maximum covariance diagonal element
	MaxPositionJumpM      float64 // maximum position jump between observations (meters)
	MaxPlayerSpeedMps     float64 // plausibility limit for player/referee motion
	MaxBallSpeedMps       float64 // plausibility limit for ball motion
	MinConfidence         float64 // detections below this are ignored
	BallMinConfidence     float64 // confidence floor for the ball pipeline
	MaxPredictDt          float64 // maximum dt (seconds) per predict step
}

// DefaultTrackerConfig returns tracker configuration loaded from the
// canonical analysis defaults file (config/analysis.defaults.json).
// Panics if the file cannot be found; intended for tests.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromAnalysis(config.MustLoadDefaultConfig())
}

// TrackerConfigFromAnalysis builds a TrackerConfig from a loaded
// AnalysisConfig. Use this in production code where the AnalysisConfig is
// already loaded.
func TrackerConfigFromAnalysis(cfg *config.AnalysisConfig) TrackerConfig {
	return TrackerConfig{
		MaxTracks:             cfg.GetMaxTracks(),
		MaxCoastFrames:        cfg.GetMaxCoastFrames(),
		GatingDistanceSquared: cfg.GetGatingDistanceSquared(),
		ProcessNoisePos:       cfg.GetProcessNoisePos(),
		ProcessNoiseVel:       cfg.GetProcessNoiseVel(),
		MeasurementNoise:      cfg.GetMeasurementNoise(),
		CoastCovInflation:     cfg.GetCoastCovInflation(),
		MaxCovarianceDiag:     cfg.GetMaxCovarianceDiag(),
		MaxPositionJumpM:      cfg.GetMaxPositionJumpMeters(),
		MaxPlayerSpeedMps:     cfg.GetMaxPlayerSpeedMps(),
		MaxBallSpeedMps:       cfg.GetMaxBallSpeedMps(),
		MinConfidence:         cfg.GetMinDetectionConfidence(),
		BallMinConfidence:     cfg.GetBallMinConfidence(),
		MaxPredictDt:          cfg.GetMaxPredictDt(),
	}
}

// Sample is one confirmed observation in a track's history. Coasted
// (predicted-only) positions are never recorded here, so downstream
// kinematics can distinguish real motion from extrapolation.
type Sample struct {
	Timestamp  time.Time        `json:"timestamp"`
	Pos        pitch.Point      `json:"pos"`
	Pixel      calib.PixelPoint `json:"pixel"`
	Confidence float64          `json:"confidence"`
}

// Track is a persistent identity maintained across frames for one physical
// entity. IDs are unique and never reused; a lost track is archived in
// place (state field) rather than removed, so events and tactical summaries
// can still reference it.
type Track struct {
	ID    string
	Class Class
	State State

	// Lifecycle counters
	Hits         int // consecutive successful associations
	Misses       int // consecutive missed associations
	ActiveStreak int // length of the current unbroken active run

	FirstTimestamp time.Time
	LastTimestamp  time.Time

	// Kalman state (pitch frame): [x, y, vx, vy]
	X  float64
	Y  float64
	VX float64
	VY float64

	// Kalman covariance (4x4, row-major)
	P [16]float64

	ObservationCount int
	AvgSpeedMps      float64
	PeakSpeedMps     float64

	// History of confirmed observations, strictly increasing in timestamp.
	History []Sample
}

// Position returns the current filter position estimate.
func (tr *Track) Position() pitch.Point {
	return pitch.Point{X: tr.X, Y: tr.Y}
}

// Speed returns the current speed magnitude estimate in m/s.
func (tr *Track) Speed() float64 {
	return math.Hypot(tr.VX, tr.VY)
}

// Heading returns the current heading in radians.
func (tr *Track) Heading() float64 {
	return math.Atan2(tr.VY, tr.VX)
}

// Velocity returns the current velocity estimate in m/s per axis.
func (tr *Track) Velocity() (vx, vy float64) {
	return tr.VX, tr.VY
}

// Tracker manages multi-object tracking with explicit lifecycle states.
// All exported methods are safe for concurrent use.
type Tracker struct {
	Config TrackerConfig

	tracks map[string]*Track

	lastTimestamp time.Time

	// lastAssociations is indexed by detection position in the last Update
	// call; each element is the matched track ID, or "" if the detection
	// spawned a new track or was dropped.
	lastAssociations []string

	mu sync.RWMutex
}

// NewTracker creates a tracker with the specified configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		Config: cfg,
		tracks: make(map[string]*Track),
	}
}

// Update processes one frame of detections. Detections are associated only
// to tracks of the same class. The frame-to-frame sequence is strictly
// serial; within the frame the predict step fans out across tracks.
func (t *Tracker) Update(detections []Detection, timestamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var dt float64
	if !t.lastTimestamp.IsZero() {
		dt = timestamp.Sub(t.lastTimestamp).Seconds()
	} else {
		dt = 1.0 / 30.0
	}
	// Clamp dt so detection gaps don't create an inflated time step for
	// association gating.
	if dt > t.Config.MaxPredictDt {
		dt = t.Config.MaxPredictDt
	}
	t.lastTimestamp = timestamp

	// Step 1: predict all live tracks to the current time. Tracks are
	// independent within a frame, so the predict step runs in parallel.
	var wg sync.WaitGroup
	for _, tr := range t.tracks {
		if tr.State == StateLost {
			continue
		}
		wg.Add(1)
		go func(tr *Track) {
			defer wg.Done()
			t.predict(tr, dt)
		}(tr)
	}
	wg.Wait()

	// Step 2: filter and group detections by class. The ball runs through
	// a stricter pipeline: a higher confidence floor, and at most one
	// candidate survives per frame since exactly one ball identity exists.
	usable := make([]Detection, 0, len(detections))
	byClass := make(map[Class][]int)
	var ballCandidate *Detection
	for i := range detections {
		d := detections[i]
		if err := d.Validate(); err != nil {
			opsf("dropping malformed detection frame=%d: %v", d.FrameIndex, err)
			continue
		}
		if d.Class == ClassBall {
			if d.Confidence < t.Config.BallMinConfidence {
				continue
			}
			if ballCandidate == nil || d.Confidence > ballCandidate.Confidence {
				if ballCandidate != nil {
					diagf("two ball candidates at %s, keeping confidence %.2f over %.2f",
						timestamp.Format(time.RFC3339Nano), d.Confidence, ballCandidate.Confidence)
				}
				ballCandidate = &d
			}
			continue
		}
		if d.Confidence < t.Config.MinConfidence {
			continue
		}
		usable = append(usable, d)
		byClass[d.Class] = append(byClass[d.Class], len(usable)-1)
	}
	if ballCandidate != nil {
		usable = append(usable, *ballCandidate)
		byClass[ClassBall] = []int{len(usable) - 1}
	}

	// Step 3: associate and update per class.
	associations := make([]string, len(usable))
	matched := make(map[string]bool)
	for class, idxs := range byClass {
		t.associateClass(class, usable, idxs, associations)
	}
	for i, trackID := range associations {
		if trackID == "" {
			continue
		}
		tr := t.tracks[trackID]
		t.update(tr, usable[i])
		tr.Hits++
		tr.Misses = 0
		tr.ActiveStreak++
		tr.State = StateActive
		matched[trackID] = true
	}

	// Step 4: unmatched live tracks coast. The Kalman prediction above
	// keeps the position estimate moving; covariance inflation widens the
	// gate so re-association is easier when the entity reappears. The
	// coasted position is not appended to History.
	for id, tr := range t.tracks {
		if matched[id] || tr.State == StateLost {
			continue
		}
		tr.Misses++
		tr.Hits = 0
		tr.ActiveStreak = 0
		tr.State = StateCoasting

		if t.Config.CoastCovInflation > 0 {
			tr.P[0*4+0] += t.Config.CoastCovInflation
			tr.P[1*4+1] += t.Config.CoastCovInflation
			if tr.P[0*4+0] > t.Config.MaxCovarianceDiag {
				tr.P[0*4+0] = t.Config.MaxCovarianceDiag
			}
			if tr.P[1*4+1] > t.Config.MaxCovarianceDiag {
				tr.P[1*4+1] = t.Config.MaxCovarianceDiag
			}
		}

		if tr.Misses > t.Config.MaxCoastFrames {
			tr.State = StateLost
			diagf("track %s lost after %d misses", tr.ID, tr.Misses)
		}
	}

	// Step 5: spawn new tracks from unassociated detections.
	for i, trackID := range associations {
		if trackID != "" {
			continue
		}
		if t.liveCount() >= t.Config.MaxTracks {
			opsf("track limit %d reached, dropping detection frame=%d class=%s",
				t.Config.MaxTracks, usable[i].FrameIndex, usable[i].Class)
			continue
		}
		// A fresh ball identity displaces any coasting one; two live ball
		// tracks must never coexist.
		if usable[i].Class == ClassBall {
			for _, other := range t.tracks {
				if other.Class == ClassBall && other.State != StateLost {
					other.State = StateLost
					diagf("ball track %s displaced by new ball identity", other.ID)
				}
			}
		}
		tr := t.initTrack(usable[i])
		associations[i] = tr.ID
	}

	t.lastAssociations = associations
}

func (t *Tracker) liveCount() int {
	n := 0
	for _, tr := range t.tracks {
		if tr.State != StateLost {
			n++
		}
	}
	return n
}

// associateClass fills associations for the detections of one class using
// globally optimal assignment over squared Mahalanobis distances.
func (t *Tracker) associateClass(class Class, dets []Detection, detIdxs []int, associations []string) {
	trackIDs := make([]string, 0)
	for id, tr := range t.tracks {
		if tr.State != StateLost && tr.Class == class {
			trackIDs = append(trackIDs, id)
		}
	}
	if len(trackIDs) == 0 || len(detIdxs) == 0 {
		return
	}

	cost := make([][]float64, len(detIdxs))
	for ci, di := range detIdxs {
		cost[ci] = make([]float64, len(trackIDs))
		for tj, trackID := range trackIDs {
			tr := t.tracks[trackID]
			dist2 := t.mahalanobisDistanceSquared(tr, dets[di])
			// The gate is inclusive: a cost exactly at the threshold is a
			// valid match.
			if dist2 >= singularDistanceRejection || dist2 > t.Config.GatingDistanceSquared {
				cost[ci][tj] = forbiddenCost
				continue
			}
			// Prefer incumbency on ties: the track with the longer
			// continuous active run keeps its identity.
			streak := float64(tr.ActiveStreak)
			if streak > 1000 {
				streak = 1000
			}
			cost[ci][tj] = dist2 - incumbencyEpsilon*streak
		}
	}

	assign := hungarianAssign(cost)
	for ci, di := range detIdxs {
		if ci < len(assign) && assign[ci] >= 0 {
			associations[di] = trackIDs[assign[ci]]
		}
	}
}

// maxSpeedFor returns the physical plausibility speed limit for a class.
func (t *Tracker) maxSpeedFor(class Class) float64 {
	if class == ClassBall {
		return t.Config.MaxBallSpeedMps
	}
	return t.Config.MaxPlayerSpeedMps
}

// isFiniteState returns true if every element of the Kalman state vector
// and the covariance diagonal is finite. Used as a post-predict/update
// guard against numerical instability.
func isFiniteState(tr *Track) bool {
	for _, v := range []float64{tr.X, tr.Y, tr.VX, tr.VY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for i := 0; i < 4; i++ {
		v := tr.P[i*4+i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// clampVelocity scales VX/VY proportionally so the speed magnitude does not
// exceed the class plausibility limit. This prevents teleport-like
// extrapolation from noisy updates or degenerate associations.
func (t *Tracker) clampVelocity(tr *Track) {
	limit := t.maxSpeedFor(tr.Class)
	speed := math.Hypot(tr.VX, tr.VY)
	if speed > limit {
		scale := limit / speed
		tr.VX *= scale
		tr.VY *= scale
	}
}

// resetDegenerate forces a numerically broken track out of circulation.
func resetDegenerate(tr *Track) {
	tr.X, tr.Y, tr.VX, tr.VY = 0, 0, 0, 0
	tr.P = initialCovariance()
	tr.State = StateLost
}

func initialCovariance() [16]float64 {
	return [16]float64{
		10, 0, 0, 0,
		0, 10, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// predict applies the Kalman prediction step using a constant velocity model.
func (t *Tracker) predict(tr *Track, dt float64) {
	// Clamp dt to prevent covariance explosion on frame gaps; large dt
	// makes F*P*F^T grow quadratically, ballooning the gating ellipse.
	if dt > t.Config.MaxPredictDt {
		dt = t.Config.MaxPredictDt
	}

	// State transition for constant velocity:
	// F = [1  0  dt  0 ]
	//     [0  1  0   dt]
	//     [0  0  1   0 ]
	//     [0  0  0   1 ]

	// x' = F * x
	tr.X += tr.VX * dt
	tr.Y += tr.VY * dt

	// P' = F * P * F^T + Q, computed directly.
	P := tr.P
	var FP [16]float64
	for j := 0; j < 4; j++ {
		FP[0*4+j] = P[0*4+j] + dt*P[2*4+j]
		FP[1*4+j] = P[1*4+j] + dt*P[3*4+j]
		FP[2*4+j] = P[2*4+j]
		FP[3*4+j] = P[3*4+j]
	}
	for i := 0; i < 4; i++ {
		tr.P[i*4+0] = FP[i*4+0] + dt*FP[i*4+2]
		tr.P[i*4+1] = FP[i*4+1] + dt*FP[i*4+3]
		tr.P[i*4+2] = FP[i*4+2]
		tr.P[i*4+3] = FP[i*4+3]
	}

	// Process noise Q, scaled by dt so uncertainty growth is frame rate
	// independent. Config values are dt-normalised.
	tr.P[0*4+0] += t.Config.ProcessNoisePos * dt
	tr.P[1*4+1] += t.Config.ProcessNoisePos * dt
	tr.P[2*4+2] += t.Config.ProcessNoiseVel * dt
	tr.P[3*4+3] += t.Config.ProcessNoiseVel * dt

	// Cap diagonal elements to bound gating ellipse growth over long
	// coasting periods.
	for i := 0; i < 4; i++ {
		if tr.P[i*4+i] > t.Config.MaxCovarianceDiag {
			tr.P[i*4+i] = t.Config.MaxCovarianceDiag
		}
	}

	if !isFiniteState(tr) {
		opsf("track %s produced non-finite state during predict, dropping", tr.ID)
		resetDegenerate(tr)
		return
	}

	t.clampVelocity(tr)
}

// mahalanobisDistanceSquared computes the squared Mahalanobis distance for
// gating, using position only. Also performs physical plausibility checks
// to reject spurious associations.
func (t *Tracker) mahalanobisDistanceSquared(tr *Track, d Detection) float64 {
	// Innovation: measurement minus prediction.
	dx := d.Pos.X - tr.X
	dy := d.Pos.Y - tr.Y

	euclidean := math.Hypot(dx, dy)
	if euclidean > t.Config.MaxPositionJumpM {
		return singularDistanceRejection
	}
	// The speed gate measures between observed samples. The prediction lags
	// a moving target while the velocity estimate converges, so a gate on
	// the innovation would reject ordinary running pace.
	if n := len(tr.History); n > 0 {
		last := tr.History[n-1]
		if elapsed := d.Timestamp.Sub(last.Timestamp).Seconds(); elapsed > 0 {
			observedSpeed := last.Pos.Dist(d.Pos) / elapsed
			if observedSpeed > t.maxSpeedFor(tr.Class) {
				return singularDistanceRejection
			}
		}
	}

	// Innovation covariance S = H * P * H^T + R with H extracting position:
	// S = P[0:2, 0:2] + R
	S00 := tr.P[0*4+0] + t.Config.MeasurementNoise
	S01 := tr.P[0*4+1]
	S10 := tr.P[1*4+0]
	S11 := tr.P[1*4+1] + t.Config.MeasurementNoise

	det := S00*S11 - S01*S10
	if det < minDeterminantThreshold {
		return singularDistanceRejection
	}

	invS00 := S11 / det
	invS01 := -S01 / det
	invS10 := -S10 / det
	invS11 := S00 / det

	// d² = [dx dy] * S^-1 * [dx dy]^T
	return dx*dx*invS00 + dx*dy*(invS01+invS10) + dy*dy*invS11
}

// update applies the Kalman innovation step with a matched detection.
func (t *Tracker) update(tr *Track, d Detection) {
	yX := d.Pos.X - tr.X
	yY := d.Pos.Y - tr.Y

	S00 := tr.P[0*4+0] + t.Config.MeasurementNoise
	S01 := tr.P[0*4+1]
	S10 := tr.P[1*4+0]
	S11 := tr.P[1*4+1] + t.Config.MeasurementNoise

	det := S00*S11 - S01*S10
	if det < minDeterminantThreshold {
		return // cannot update with singular covariance
	}

	invS00 := S11 / det
	invS01 := -S01 / det
	invS10 := -S10 / det
	invS11 := S00 / det

	// Kalman gain K = P * H^T * S^-1 (4x2).
	var K [8]float64
	for i := 0; i < 4; i++ {
		K[i*2+0] = tr.P[i*4+0]*invS00 + tr.P[i*4+1]*invS10
		K[i*2+1] = tr.P[i*4+0]*invS01 + tr.P[i*4+1]*invS11
	}

	// x' = x + K * y
	tr.X += K[0*2+0]*yX + K[0*2+1]*yY
	tr.Y += K[1*2+0]*yX + K[1*2+1]*yY
	tr.VX += K[2*2+0]*yX + K[2*2+1]*yY
	tr.VY += K[3*2+0]*yX + K[3*2+1]*yY

	// P' = (I - K*H) * P. With H extracting position, (K*H)[i,j] is
	// K[i,0] for j==0, K[i,1] for j==1, zero otherwise.
	var IminusKH [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			identity := 0.0
			if i == j {
				identity = 1
			}
			var kh float64
			if j == 0 {
				kh = K[i*2+0]
			} else if j == 1 {
				kh = K[i*2+1]
			}
			IminusKH[i*4+j] = identity - kh
		}
	}
	var newP [16]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += IminusKH[i*4+k] * tr.P[k*4+j]
			}
			newP[i*4+j] = sum
		}
	}
	tr.P = newP

	if !isFiniteState(tr) {
		opsf("track %s produced non-finite state during update, dropping", tr.ID)
		resetDegenerate(tr)
		return
	}

	t.clampVelocity(tr)

	tr.LastTimestamp = d.Timestamp
	tr.ObservationCount++

	n := float64(tr.ObservationCount)
	speed := tr.Speed()
	tr.AvgSpeedMps = ((n-1)*tr.AvgSpeedMps + speed) / n
	if speed > tr.PeakSpeedMps {
		tr.PeakSpeedMps = speed
	}

	// Only confirmed observations enter History, and timestamps must be
	// strictly increasing.
	if len(tr.History) == 0 || d.Timestamp.After(tr.History[len(tr.History)-1].Timestamp) {
		tr.History = append(tr.History, Sample{
			Timestamp:  d.Timestamp,
			Pos:        d.Pos,
			Pixel:      d.Pixel,
			Confidence: d.Confidence,
		})
	}
}

// initTrack creates a new track from an unassociated detection. Track IDs
// are UUIDs so identities never collide across runs or resets.
func (t *Tracker) initTrack(d Detection) *Track {
	tr := &Track{
		ID:    fmt.Sprintf("trk_%s", uuid.NewString()),
		Class: d.Class,
		State: StateActive,

		Hits:         1,
		ActiveStreak: 1,

		FirstTimestamp: d.Timestamp,
		LastTimestamp:  d.Timestamp,

		X: d.Pos.X,
		Y: d.Pos.Y,

		P: initialCovariance(),

		ObservationCount: 1,

		History: []Sample{{
			Timestamp:  d.Timestamp,
			Pos:        d.Pos,
			Pixel:      d.Pixel,
			Confidence: d.Confidence,
		}},
	}
	t.tracks[tr.ID] = tr
	tracef("spawned track %s class=%s at (%.1f, %.1f)", tr.ID, tr.Class, tr.X, tr.Y)
	return tr
}

// snapshot returns a copy of tr with a deep-copied History slice, safe for
// callers to read without holding the tracker lock.
func snapshot(tr *Track) *Track {
	copied := *tr
	if len(tr.History) > 0 {
		copied.History = make([]Sample, len(tr.History))
		copy(copied.History, tr.History)
	}
	return &copied
}

// LiveTracks returns all active and coasting tracks as safe copies.
func (t *Tracker) LiveTracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	live := make([]*Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if tr.State != StateLost {
			live = append(live, snapshot(tr))
		}
	}
	return live
}

// AllTracks returns every track ever created, including archived (lost)
// ones, as safe copies. Lost tracks remain addressable for post-hoc
// analytics.
func (t *Tracker) AllTracks() []*Track {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]*Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		all = append(all, snapshot(tr))
	}
	return all
}

// Get returns a safe copy of the track with the given ID, or nil.
func (t *Tracker) Get(trackID string) *Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.tracks[trackID]
	if !ok {
		return nil
	}
	return snapshot(tr)
}

// BallTrack returns the live ball track, or nil when the ball is not
// currently tracked. At most one live ball track exists at a time.
func (t *Tracker) BallTrack() *Track {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tr := range t.tracks {
		if tr.Class == ClassBall && tr.State != StateLost {
			return snapshot(tr)
		}
	}
	return nil
}

// LastAssociations returns a copy of the detection-to-track mapping from
// the most recent Update call, indexed by usable-detection position.
func (t *Tracker) LastAssociations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastAssociations == nil {
		return nil
	}
	out := make([]string, len(t.lastAssociations))
	copy(out, t.lastAssociations)
	return out
}

// Counts returns the number of tracks per lifecycle state.
func (t *Tracker) Counts() (active, coasting, lost int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, tr := range t.tracks {
		switch tr.State {
		case StateActive:
			active++
		case StateCoasting:
			coasting++
		case StateLost:
			lost++
		}
	}
	return
}
