package track

import (
	"math"
	"testing"
	"time"

	"github.com/pitchdata/match.report/internal/pitch"
)

func pt(x, y float64) pitch.Point {
	return pitch.Point{X: x, Y: y}
}

func testConfig() TrackerConfig {
	return TrackerConfig{
		MaxTracks:             64,
		MaxCoastFrames:        5,
		GatingDistanceSquared: 16.0,
		ProcessNoisePos:       0.5,
		ProcessNoiseVel:       0.1,
		MeasurementNoise:      0.25,
		CoastCovInflation:     0.5,
		MaxCovarianceDiag:     50.0,
		MaxPositionJumpM:      10.0,
		MaxPlayerSpeedMps:     11.0,
		MaxBallSpeedMps:       40.0,
		MinConfidence:         0.1,
		BallMinConfidence:     0.5,
		MaxPredictDt:          0.5,
	}
}

var testStart = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func frameTime(frame int) time.Time {
	return testStart.Add(time.Duration(frame) * time.Second / 30)
}

func playerDet(frame int, x, y float64) Detection {
	return Detection{
		FrameIndex: frame,
		Timestamp:  frameTime(frame),
		Class:      ClassPlayer,
		Pos:        pt(x, y),
		Confidence: 0.9,
	}
}

func ballDet(frame int, x, y, conf float64) Detection {
	return Detection{
		FrameIndex: frame,
		Timestamp:  frameTime(frame),
		Class:      ClassBall,
		Pos:        pt(x, y),
		Confidence: conf,
	}
}

func TestTrackerSpawnsNewTrack(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.Update([]Detection{playerDet(0, 10, 10)}, frameTime(0))

	live := tr.LiveTracks()
	if len(live) != 1 {
		t.Fatalf("Expected 1 live track, got %d", len(live))
	}
	if live[0].State != StateActive {
		t.Errorf("State = %s, want active", live[0].State)
	}
	if live[0].Class != ClassPlayer {
		t.Errorf("Class = %s, want player", live[0].Class)
	}
	if len(live[0].History) != 1 {
		t.Errorf("History length = %d, want 1", len(live[0].History))
	}
}

func TestIdentityContinuityUnderConsistentMotion(t *testing.T) {
	// A player moving at a constant 5 m/s with detections every frame
	// must keep a single track ID across the whole sequence.
	tr := NewTracker(testConfig())

	var firstID string
	for frame := 0; frame < 60; frame++ {
		x := 10.0 + 5.0*float64(frame)/30.0
		tr.Update([]Detection{playerDet(frame, x, 30)}, frameTime(frame))

		live := tr.LiveTracks()
		if len(live) != 1 {
			t.Fatalf("frame %d: expected 1 live track, got %d", frame, len(live))
		}
		if firstID == "" {
			firstID = live[0].ID
		} else if live[0].ID != firstID {
			t.Fatalf("frame %d: track ID changed from %s to %s", frame, firstID, live[0].ID)
		}
	}

	final := tr.LiveTracks()[0]
	if final.ObservationCount != 60 {
		t.Errorf("ObservationCount = %d, want 60", final.ObservationCount)
	}
	// Converged velocity should approximate the true 5 m/s along X.
	if math.Abs(final.VX-5.0) > 1.0 {
		t.Errorf("VX = %f, want ~5.0", final.VX)
	}
}

func TestCoastingAndReacquisition(t *testing.T) {
	tr := NewTracker(testConfig())

	tr.Update([]Detection{playerDet(0, 20, 20)}, frameTime(0))
	id := tr.LiveTracks()[0].ID

	// Two missed frames: track coasts.
	tr.Update(nil, frameTime(1))
	tr.Update(nil, frameTime(2))

	got := tr.Get(id)
	if got == nil {
		t.Fatal("track disappeared during coasting")
	}
	if got.State != StateCoasting {
		t.Errorf("State = %s, want coasting", got.State)
	}
	if got.Misses != 2 {
		t.Errorf("Misses = %d, want 2", got.Misses)
	}

	// Reappearance near the prediction re-associates to the same ID.
	tr.Update([]Detection{playerDet(3, 20.2, 20.1)}, frameTime(3))
	got = tr.Get(id)
	if got.State != StateActive {
		t.Errorf("State after reacquisition = %s, want active", got.State)
	}
	if got.Misses != 0 {
		t.Errorf("Misses after reacquisition = %d, want 0", got.Misses)
	}
	live := tr.LiveTracks()
	if len(live) != 1 {
		t.Errorf("Expected 1 live track after reacquisition, got %d", len(live))
	}
}

func TestTrackLostAfterCoastingBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCoastFrames = 3
	tr := NewTracker(cfg)

	tr.Update([]Detection{playerDet(0, 20, 20)}, frameTime(0))
	id := tr.LiveTracks()[0].ID

	// Exactly MaxCoastFrames misses keeps the track coasting.
	for frame := 1; frame <= 3; frame++ {
		tr.Update(nil, frameTime(frame))
	}
	if got := tr.Get(id); got.State != StateCoasting {
		t.Errorf("State at budget = %s, want coasting", got.State)
	}

	// One more miss exceeds the budget.
	tr.Update(nil, frameTime(4))
	got := tr.Get(id)
	if got.State != StateLost {
		t.Errorf("State past budget = %s, want lost", got.State)
	}

	// Archived, never deleted: still addressable by ID.
	if tr.Get(id) == nil {
		t.Error("lost track no longer addressable by ID")
	}
	all := tr.AllTracks()
	if len(all) != 1 {
		t.Errorf("AllTracks length = %d, want 1", len(all))
	}

	// A new detection at the old location spawns a fresh identity; lost
	// tracks are excluded from association.
	tr.Update([]Detection{playerDet(5, 20, 20)}, frameTime(5))
	live := tr.LiveTracks()
	if len(live) != 1 {
		t.Fatalf("Expected 1 live track, got %d", len(live))
	}
	if live[0].ID == id {
		t.Error("lost track was re-associated, expected a new identity")
	}
}

func TestCoastedPositionsExcludedFromHistory(t *testing.T) {
	tr := NewTracker(testConfig())

	tr.Update([]Detection{playerDet(0, 20, 20)}, frameTime(0))
	tr.Update(nil, frameTime(1))
	tr.Update(nil, frameTime(2))
	tr.Update([]Detection{playerDet(3, 20.3, 20)}, frameTime(3))

	got := tr.LiveTracks()[0]
	if len(got.History) != 2 {
		t.Fatalf("History length = %d, want 2 (coasted frames must not be recorded)", len(got.History))
	}
	if !got.History[1].Timestamp.After(got.History[0].Timestamp) {
		t.Error("History timestamps not strictly increasing")
	}
}

func TestGatingThresholdInclusive(t *testing.T) {
	// A cost exactly at the gating threshold must be a valid match. The
	// covariance is crafted so the innovation covariance is the identity
	// and the squared distance works out to exactly 16.0 in floats.
	cfg := testConfig()
	cfg.MaxPositionJumpM = 1000
	tr := NewTracker(cfg)

	inner := &Track{
		ID:    "trk_boundary",
		Class: ClassPlayer,
		State: StateActive,
		X:     50, Y: 34,
	}
	// S = P[0:2,0:2] + R = I  =>  d² = dx² + dy²
	inner.P[0*4+0] = 1 - cfg.MeasurementNoise
	inner.P[1*4+1] = 1 - cfg.MeasurementNoise
	tr.tracks[inner.ID] = inner

	// dx = 4.0 exactly: d² = 16.0 == GatingDistanceSquared.
	d := playerDet(1, 54, 34)
	associations := make([]string, 1)
	tr.associateClass(ClassPlayer, []Detection{d}, []int{0}, associations)

	if associations[0] != inner.ID {
		t.Errorf("association = %q, want %q (cost at gate must match)", associations[0], inner.ID)
	}

	// One millimetre further is beyond the gate and must be rejected.
	d2 := playerDet(1, 54.001, 34)
	associations2 := make([]string, 1)
	tr.associateClass(ClassPlayer, []Detection{d2}, []int{0}, associations2)
	if associations2[0] != "" {
		t.Errorf("association beyond gate = %q, want unmatched", associations2[0])
	}
}

func TestGatingRejectsBeyondThreshold(t *testing.T) {
	tr := NewTracker(testConfig())

	tr.Update([]Detection{playerDet(0, 10, 10)}, frameTime(0))
	id := tr.LiveTracks()[0].ID

	// 9 meters in one frame exceeds both the gate and plausibility limits.
	tr.Update([]Detection{playerDet(1, 19, 10)}, frameTime(1))

	live := tr.LiveTracks()
	if len(live) != 2 {
		t.Fatalf("Expected 2 live tracks (original coasting + new spawn), got %d", len(live))
	}
	if got := tr.Get(id); got.State != StateCoasting {
		t.Errorf("original track State = %s, want coasting", got.State)
	}
}

func TestClassSeparation(t *testing.T) {
	// A referee detection at a player track's position must not steal the
	// player identity.
	tr := NewTracker(testConfig())
	tr.Update([]Detection{playerDet(0, 30, 30)}, frameTime(0))

	ref := playerDet(1, 30, 30)
	ref.Class = ClassReferee
	tr.Update([]Detection{ref}, frameTime(1))

	live := tr.LiveTracks()
	if len(live) != 2 {
		t.Fatalf("Expected 2 live tracks, got %d", len(live))
	}
	classes := map[Class]int{}
	for _, x := range live {
		classes[x.Class]++
	}
	if classes[ClassPlayer] != 1 || classes[ClassReferee] != 1 {
		t.Errorf("classes = %v, want one player and one referee", classes)
	}
}

func TestBallConfidenceFloor(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.Update([]Detection{ballDet(0, 50, 34, 0.4)}, frameTime(0))

	if got := tr.BallTrack(); got != nil {
		t.Errorf("BallTrack() = %v, want nil for sub-threshold confidence", got.ID)
	}

	tr.Update([]Detection{ballDet(1, 50, 34, 0.8)}, frameTime(1))
	if got := tr.BallTrack(); got == nil {
		t.Error("BallTrack() = nil, want a track for confident detection")
	}
}

func TestBallConflictHigherConfidenceWins(t *testing.T) {
	tr := NewTracker(testConfig())

	// Two simultaneous ball candidates: only the higher-confidence one
	// becomes the ball identity.
	tr.Update([]Detection{
		ballDet(0, 30, 30, 0.6),
		ballDet(0, 60, 40, 0.9),
	}, frameTime(0))

	ball := tr.BallTrack()
	if ball == nil {
		t.Fatal("BallTrack() = nil, want one ball track")
	}
	if ball.X != 60 || ball.Y != 40 {
		t.Errorf("ball position = (%f, %f), want (60, 40)", ball.X, ball.Y)
	}

	active, coasting, lost := tr.Counts()
	if active+coasting+lost != 1 {
		t.Errorf("track counts = (%d, %d, %d), want exactly 1 total", active, coasting, lost)
	}
}

func TestSingleLiveBallIdentity(t *testing.T) {
	tr := NewTracker(testConfig())

	tr.Update([]Detection{ballDet(0, 10, 10, 0.9)}, frameTime(0))
	firstID := tr.BallTrack().ID

	// Ball teleports beyond the gate (e.g. camera cut): old identity is
	// retired, a single new one takes over.
	tr.Update([]Detection{ballDet(1, 80, 50, 0.9)}, frameTime(1))

	ball := tr.BallTrack()
	if ball == nil {
		t.Fatal("BallTrack() = nil after displacement")
	}
	if ball.ID == firstID {
		t.Error("expected a new ball identity after implausible jump")
	}

	liveBalls := 0
	for _, x := range tr.LiveTracks() {
		if x.Class == ClassBall {
			liveBalls++
		}
	}
	if liveBalls != 1 {
		t.Errorf("live ball tracks = %d, want 1", liveBalls)
	}
}

func TestMalformedDetectionSkipped(t *testing.T) {
	tr := NewTracker(testConfig())

	bad := playerDet(0, 10, 10)
	bad.Confidence = 1.5
	nan := playerDet(0, 20, 20)
	nan.Pos.X = math.NaN()

	tr.Update([]Detection{bad, nan, playerDet(0, 30, 30)}, frameTime(0))

	live := tr.LiveTracks()
	if len(live) != 1 {
		t.Fatalf("Expected 1 live track from the valid detection, got %d", len(live))
	}
	if live[0].X != 30 {
		t.Errorf("track X = %f, want 30", live[0].X)
	}
}

func TestVelocityClampedToClassLimit(t *testing.T) {
	cfg := testConfig()
	tr := NewTracker(cfg)

	inner := &Track{ID: "trk_test", Class: ClassPlayer, State: StateActive, VX: 100, VY: 0, P: initialCovariance()}
	tr.clampVelocity(inner)
	if inner.Speed() > cfg.MaxPlayerSpeedMps+1e-9 {
		t.Errorf("player speed = %f, want <= %f", inner.Speed(), cfg.MaxPlayerSpeedMps)
	}

	ball := &Track{ID: "trk_ball", Class: ClassBall, State: StateActive, VX: 100, VY: 0, P: initialCovariance()}
	tr.clampVelocity(ball)
	if ball.Speed() > cfg.MaxBallSpeedMps+1e-9 {
		t.Errorf("ball speed = %f, want <= %f", ball.Speed(), cfg.MaxBallSpeedMps)
	}
	if ball.Speed() <= cfg.MaxPlayerSpeedMps {
		t.Errorf("ball speed = %f, should exceed the player limit", ball.Speed())
	}
}

func TestPredictDtClamping(t *testing.T) {
	cfg := testConfig()
	tr := NewTracker(cfg)

	inner := &Track{ID: "trk_test", Class: ClassPlayer, State: StateActive, X: 0, VX: 10, P: initialCovariance()}
	tr.predict(inner, 100.0) // absurd dt, must clamp to MaxPredictDt

	if inner.X > cfg.MaxPredictDt*10+1e-9 {
		t.Errorf("X = %f after clamped predict, want <= %f", inner.X, cfg.MaxPredictDt*10)
	}
}

func TestNaNGuardDropsTrack(t *testing.T) {
	tr := NewTracker(testConfig())
	inner := &Track{ID: "trk_test", Class: ClassPlayer, State: StateActive, X: math.NaN(), P: initialCovariance()}
	tr.predict(inner, 0.1)
	if inner.State != StateLost {
		t.Errorf("State = %s, want lost after NaN guard", inner.State)
	}
}

func TestHungarianAssignBasic(t *testing.T) {
	cost := [][]float64{
		{1, 10, 10},
		{10, 1, 10},
		{10, 10, 1},
	}
	got := hungarianAssign(cost)
	want := []int{0, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("assign[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestHungarianAssignAvoidsGreedyTrap(t *testing.T) {
	// Greedy would give row 0 the cheap column 0 (cost 1) and force row 1
	// to 100; optimal is the cross assignment totalling 6.
	cost := [][]float64{
		{1, 2},
		{4, 100},
	}
	got := hungarianAssign(cost)
	if got[0] != 1 || got[1] != 0 {
		t.Errorf("assign = %v, want [1 0]", got)
	}
}

func TestHungarianAssignForbidden(t *testing.T) {
	cost := [][]float64{
		{forbiddenCost, forbiddenCost},
		{1, forbiddenCost},
	}
	got := hungarianAssign(cost)
	if got[0] != -1 {
		t.Errorf("assign[0] = %d, want -1 (all forbidden)", got[0])
	}
	if got[1] != 0 {
		t.Errorf("assign[1] = %d, want 0", got[1])
	}
}

func TestHungarianAssignRectangular(t *testing.T) {
	// More rows than columns: one row stays unassigned.
	cost := [][]float64{
		{1, 5},
		{2, 1},
		{3, 3},
	}
	got := hungarianAssign(cost)
	assignedCols := map[int]bool{}
	unassigned := 0
	for _, col := range got {
		if col == -1 {
			unassigned++
			continue
		}
		if assignedCols[col] {
			t.Errorf("column %d assigned twice", col)
		}
		assignedCols[col] = true
	}
	if unassigned != 1 {
		t.Errorf("unassigned rows = %d, want 1", unassigned)
	}
}

func TestIncumbencyTieBreak(t *testing.T) {
	// Two tracks with identical covariance, exactly equidistant from one
	// detection: the one with the longer continuous active run keeps it.
	cfg := testConfig()
	tr := NewTracker(cfg)

	mk := func(id string, x float64, streak int) *Track {
		inner := &Track{
			ID:    id,
			Class: ClassPlayer,
			State: StateActive,
			X:     x, Y: 34,
			ActiveStreak: streak,
		}
		inner.P[0*4+0] = 1 - cfg.MeasurementNoise
		inner.P[1*4+1] = 1 - cfg.MeasurementNoise
		return inner
	}
	veteran := mk("trk_veteran", 40, 30)
	rookie := mk("trk_rookie", 44, 1)
	tr.tracks[veteran.ID] = veteran
	tr.tracks[rookie.ID] = rookie

	// Detection at the exact midpoint.
	d := playerDet(1, 42, 34)
	associations := make([]string, 1)
	tr.associateClass(ClassPlayer, []Detection{d}, []int{0}, associations)

	if associations[0] != veteran.ID {
		t.Errorf("association = %q, want veteran %q on a tie", associations[0], veteran.ID)
	}
}

func TestCountsAndSnapshotSafety(t *testing.T) {
	tr := NewTracker(testConfig())
	tr.Update([]Detection{playerDet(0, 10, 10), playerDet(0, 50, 50)}, frameTime(0))

	active, coasting, lost := tr.Counts()
	if active != 2 || coasting != 0 || lost != 0 {
		t.Errorf("Counts() = (%d, %d, %d), want (2, 0, 0)", active, coasting, lost)
	}

	// Mutating a snapshot must not affect tracker state.
	snap := tr.LiveTracks()[0]
	snap.History[0].Pos.X = -999
	fresh := tr.Get(snap.ID)
	if fresh.History[0].Pos.X == -999 {
		t.Error("snapshot mutation leaked into tracker state")
	}
}
