package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pitchdata/match.report/internal/calib"
	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

var runStart = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func frameTS(i int) time.Time {
	return runStart.Add(time.Duration(i) * 100 * time.Millisecond)
}

func testPipelineConfig() Config {
	return Config{
		Pitch: pitch.Standard(),
		Tracker: track.TrackerConfig{
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
		},
		Events: events.Config{
			ControlRadiusM:     2.0,
			ControlSpeedMaxMps: 2.5,
			KickSpeedMps:       8.0,
			TransitTimeout:     10 * time.Second,
			GoalAimHalfWidthM:  12.0,
			ShortPassMaxM:      15.0,
			MediumPassMaxM:     30.0,
		},
		QueueCapacity: 8,
	}
}

func det(class track.Class, x, y float64) Detection {
	return Detection{Class: class, Pixel: calib.PixelPoint{X: x, Y: y}, Confidence: 0.9}
}

func TestSequenceViolationAbortsStream(t *testing.T) {
	p, err := New(testPipelineConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.ProcessFrame(Frame{Index: 0, Timestamp: frameTS(0)}); err != nil {
		t.Fatalf("first frame: %v", err)
	}

	var seqErr *SequenceError
	if err := p.ProcessFrame(Frame{Index: 1, Timestamp: frameTS(0)}); !errors.As(err, &seqErr) {
		t.Fatalf("duplicate timestamp should be a SequenceError, got %v", err)
	}

	// The violation is fatal for the stream: even well-ordered frames are
	// refused afterwards.
	if err := p.ProcessFrame(Frame{Index: 2, Timestamp: frameTS(2)}); !errors.Is(err, ErrAborted) {
		t.Fatalf("frame after violation = %v, want ErrAborted", err)
	}
	if err := p.ProcessFrame(Frame{Index: 3}); !errors.Is(err, ErrAborted) {
		t.Fatalf("zero timestamp after violation = %v, want ErrAborted", err)
	}

	stats := p.Stats()
	if stats.FramesProcessed != 1 || stats.FramesRejected != 3 {
		t.Errorf("stats = %+v, want 1 processed / 3 rejected", stats)
	}

	res := p.Finalize()
	if res.Abort == nil {
		t.Fatal("Results.Abort = nil, want violation details")
	}
	if res.Abort.FrameIndex != 1 {
		t.Errorf("Abort.FrameIndex = %d, want 1", res.Abort.FrameIndex)
	}
	if !res.End.Equal(frameTS(0)) {
		t.Errorf("partial result End = %s, want %s", res.End, frameTS(0))
	}
}

func TestRunStopsOnSequenceError(t *testing.T) {
	p, err := New(testPipelineConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	frames := []Frame{
		{Index: 0, Timestamp: frameTS(0), Detections: []Detection{det(track.ClassPlayer, 20, 20)}},
		{Index: 1, Timestamp: frameTS(1), Detections: []Detection{det(track.ClassPlayer, 20, 20)}},
		{Index: 2, Timestamp: frameTS(1)}, // duplicate, must abort
		{Index: 3, Timestamp: frameTS(3)},
		{Index: 4, Timestamp: frameTS(4)},
	}
	for _, f := range frames {
		if err := p.Enqueue(f); err != nil {
			t.Fatalf("Enqueue %d: %v", f.Index, err)
		}
	}
	p.Close()

	var seqErr *SequenceError
	if err := p.Run(context.Background()); !errors.As(err, &seqErr) {
		t.Fatalf("Run = %v, want SequenceError", err)
	}
	if seqErr.FrameIndex != 2 {
		t.Errorf("SequenceError.FrameIndex = %d, want 2", seqErr.FrameIndex)
	}

	res := p.Finalize()
	if res.Stats.FramesProcessed != 2 {
		t.Errorf("processed %d frames before abort, want 2", res.Stats.FramesProcessed)
	}
	if res.Abort == nil || res.Abort.FrameIndex != 2 {
		t.Errorf("Abort = %+v, want frame 2 violation", res.Abort)
	}
	if len(res.Tracks) == 0 {
		t.Error("partial result lost the tracks processed before the abort")
	}
}

func TestEnqueueBlocksWhenQueueFull(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.QueueCapacity = 2
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const total = 6
	produced := make(chan int, total)
	go func() {
		for i := 0; i < total; i++ {
			f := Frame{Index: i, Timestamp: frameTS(i), Detections: []Detection{det(track.ClassPlayer, 20, 20)}}
			if err := p.Enqueue(f); err != nil {
				return
			}
			produced <- i
		}
		close(produced)
	}()

	// With no consumer the producer fills the queue and blocks; it must
	// not get past QueueCapacity frames.
	deadline := time.After(time.Second)
	seen := 0
	for seen < cfg.QueueCapacity {
		select {
		case <-produced:
			seen++
		case <-deadline:
			t.Fatalf("producer enqueued only %d of %d frames before stalling", seen, cfg.QueueCapacity)
		}
	}
	select {
	case i := <-produced:
		t.Fatalf("frame %d enqueued past capacity with no consumer", i)
	case <-time.After(50 * time.Millisecond):
	}

	// Draining unblocks the producer and every frame is processed.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	for range produced {
	}
	p.Close()
	if err := <-runErr; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := p.Stats().FramesProcessed; got != total {
		t.Errorf("processed %d frames, want %d", got, total)
	}
}

func TestHomographyAppliedToDetections(t *testing.T) {
	// Scale-only mapping: 10 pixels per metre.
	hom, err := calib.FromMatrix([9]float64{0.1, 0, 0, 0, 0.1, 0, 0, 0, 1})
	if err != nil {
		t.Fatalf("FromMatrix: %v", err)
	}
	p, err := New(testPipelineConfig(), hom)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	frame := Frame{Index: 0, Timestamp: frameTS(0), Detections: []Detection{
		det(track.ClassPlayer, 500, 300),
	}}
	if err := p.ProcessFrame(frame); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}

	live := p.Tracker().LiveTracks()
	if len(live) != 1 {
		t.Fatalf("expected 1 track, got %d", len(live))
	}
	pos := live[0].Position()
	if math.Abs(pos.X-50) > 1e-9 || math.Abs(pos.Y-30) > 1e-9 {
		t.Errorf("track at %+v, want (50, 30)", pos)
	}
}

func TestStreamProducesPassAndPossession(t *testing.T) {
	p, err := New(testPipelineConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const (
		ax, ay = 10.0, 30.0
		bx, by = 30.0, 50.0
	)
	players := []Detection{
		det(track.ClassPlayer, ax, ay),
		det(track.ClassPlayer, bx, by),
	}

	frame := 0
	step := func(ball Detection) {
		f := Frame{Index: frame, Timestamp: frameTS(frame), Detections: append([]Detection{ball}, players...)}
		if err := p.ProcessFrame(f); err != nil {
			t.Fatalf("frame %d: %v", frame, err)
		}
		frame++
	}

	// Settled at A's feet long enough for the velocity estimate to read
	// as controlled.
	for i := 0; i < 12; i++ {
		step(det(track.ClassBall, ax, ay))
	}
	// 28m diagonal toward B at 14 m/s.
	const vx, vy = 9.9, 9.9
	for i := 1; i <= 20; i++ {
		x := ax + vx*0.1*float64(i)
		y := ay + vy*0.1*float64(i)
		if x > bx {
			x, y = bx, by
		}
		step(det(track.ClassBall, x, y))
	}
	// Settled at B's feet while the estimate decays back under the
	// control ceiling.
	for i := 0; i < 25; i++ {
		step(det(track.ClassBall, bx, by))
	}

	res := p.Finalize()

	if res.Stats.FramesProcessed != frame {
		t.Errorf("processed %d of %d frames", res.Stats.FramesProcessed, frame)
	}
	if !res.Start.Equal(frameTS(0)) || !res.End.Equal(frameTS(frame-1)) {
		t.Errorf("span = %s..%s", res.Start, res.End)
	}

	// Both players sit in the left half, so inference assigns them home.
	var aID, bID string
	for _, tr := range res.Tracks {
		if tr.Class != track.ClassPlayer {
			continue
		}
		pos := tr.Position()
		switch {
		case pos.Dist(pitch.Point{X: ax, Y: ay}) < 1:
			aID = tr.ID
		case pos.Dist(pitch.Point{X: bx, Y: by}) < 1:
			bID = tr.ID
		}
	}
	if aID == "" || bID == "" {
		t.Fatalf("player tracks not found in results")
	}
	if res.Teams.TeamOf(aID) != events.TeamHome || res.Teams.TeamOf(bID) != events.TeamHome {
		t.Fatalf("left-half players should both infer home: %v", res.Teams)
	}

	var passes []events.Event
	for _, evt := range res.Events {
		if evt.Type == events.EventPass {
			passes = append(passes, evt)
		}
	}
	if len(passes) != 1 {
		t.Fatalf("expected exactly 1 pass, got %d (%+v)", len(passes), res.Events)
	}
	if passes[0].FromTrackID != aID || passes[0].ToTrackID != bID {
		t.Errorf("pass %s -> %s, want %s -> %s", passes[0].FromTrackID, passes[0].ToTrackID, aID, bID)
	}
	if passes[0].Outcome != events.PassComplete {
		t.Errorf("pass outcome = %s, want complete", passes[0].Outcome)
	}

	if res.Possession[events.TeamHome] <= 0 {
		t.Errorf("expected home possession time, got %v", res.Possession)
	}
}

func TestRunDrainsQueueAfterClose(t *testing.T) {
	p, err := New(testPipelineConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 3; i++ {
		f := Frame{Index: i, Timestamp: frameTS(i), Detections: []Detection{det(track.ClassPlayer, 20, 20)}}
		if err := p.Enqueue(f); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	p.Close()

	if err := p.Enqueue(Frame{Index: 99, Timestamp: frameTS(99)}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrClosed", err)
	}

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := p.Stats().FramesProcessed; got != 3 {
		t.Errorf("processed %d frames, want 3", got)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	p, err := New(testPipelineConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

type recordingSink struct {
	mu           sync.Mutex
	tracks       map[string]int
	observations int
	events       int
	episodes     int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{tracks: make(map[string]int)}
}

func (s *recordingSink) PersistTrack(tr *track.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[tr.ID]++
	return nil
}

func (s *recordingSink) PersistObservation(trackID string, _ track.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations++
	return nil
}

func (s *recordingSink) PersistEvent(events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events++
	return nil
}

func (s *recordingSink) PersistEpisode(events.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes++
	return nil
}

func TestSinkReceivesMatchedObservations(t *testing.T) {
	cfg := testPipelineConfig()
	sink := newRecordingSink()
	cfg.Sink = sink

	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 0; i < 5; i++ {
		f := Frame{Index: i, Timestamp: frameTS(i), Detections: []Detection{det(track.ClassPlayer, 20, 20)}}
		if err := p.ProcessFrame(f); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	// A detection-free frame coasts the track; the predicted position
	// must not be persisted.
	if err := p.ProcessFrame(Frame{Index: 5, Timestamp: frameTS(5)}); err != nil {
		t.Fatalf("coast frame: %v", err)
	}
	p.Finalize()

	if len(sink.tracks) != 1 {
		t.Fatalf("expected 1 persisted track identity, got %d", len(sink.tracks))
	}
	if sink.observations != 5 {
		t.Errorf("expected 5 observations (coasted frame excluded), got %d", sink.observations)
	}
}
