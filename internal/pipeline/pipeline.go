package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pitchdata/match.report/internal/calib"
	"github.com/pitchdata/match.report/internal/config"
	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/monitoring"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("pipeline: closed")

// ErrAborted is returned by ProcessFrame once a sequence violation has
// stopped the stream. Frames submitted after the violation are rejected.
var ErrAborted = errors.New("pipeline: aborted by sequence violation")

// AbortInfo records why ingest stopped before the stream completed.
type AbortInfo struct {
	FrameIndex int       `json:"frame_index"`
	Timestamp  time.Time `json:"timestamp"`
	Reason     string    `json:"reason"`
}

// SequenceError reports a frame whose timestamp does not advance the
// stream. Duplicate and out-of-order frames are rejected, not reordered.
type SequenceError struct {
	FrameIndex int
	Prev       time.Time
	Got        time.Time
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("pipeline: frame %d timestamp %s does not advance past %s",
		e.FrameIndex, e.Got.Format(time.RFC3339Nano), e.Prev.Format(time.RFC3339Nano))
}

// Detection is one image-space observation within a frame.
type Detection struct {
	Class      track.Class      `json:"class"`
	Pixel      calib.PixelPoint `json:"pixel"`
	Confidence float64          `json:"confidence"`
}

// Frame is one timestamped batch of detections.
type Frame struct {
	Index      int         `json:"index"`
	Timestamp  time.Time   `json:"timestamp"`
	Detections []Detection `json:"detections"`
}

// PersistenceSink writes pipeline outputs to storage. It is an adapter,
// so implementations live outside the layer packages
// (internal/storage/sqlite).
type PersistenceSink interface {
	PersistTrack(tr *track.Track) error
	PersistObservation(trackID string, s track.Sample) error
	PersistEvent(evt events.Event) error
	PersistEpisode(ep events.Episode) error
}

// Config holds dependencies and tuning for an analysis pipeline.
type Config struct {
	Pitch   *pitch.Pitch
	Tracker track.TrackerConfig
	Events  events.Config

	// Teams maps track IDs to sides. When nil the pipeline infers sides
	// from mean positions once the whole stream has been ingested.
	Teams       events.TeamMap
	AttackSides map[events.Team]pitch.Side

	// Sink is optional; when set, matched tracks and their observations
	// are persisted per frame and events at Finalize.
	Sink PersistenceSink

	QueueCapacity int
}

// ConfigFromAnalysis builds a pipeline Config from a loaded AnalysisConfig.
func ConfigFromAnalysis(cfg *config.AnalysisConfig, p *pitch.Pitch) Config {
	return Config{
		Pitch:         p,
		Tracker:       track.TrackerConfigFromAnalysis(cfg),
		Events:        events.ConfigFromAnalysis(cfg),
		QueueCapacity: cfg.GetQueueCapacity(),
	}
}

// Stats counts pipeline throughput and rejections.
type Stats struct {
	FramesIn          int
	FramesProcessed   int
	FramesRejected    int
	DetectionsIn      int
	DetectionsDropped int // failed projection
}

// ballState and playerState are the compact per-frame snapshot replayed
// through the event detector at Finalize, once team sides are known.
type ballState struct {
	pos    pitch.Point
	vx, vy float64
}

type playerState struct {
	id    string
	class track.Class
	pos   pitch.Point
}

type frameState struct {
	ts      time.Time
	ball    *ballState
	players []playerState
}

// Results is everything the pipeline produced for one stream.
type Results struct {
	Start, End time.Time
	Tracks     []*track.Track
	Teams      events.TeamMap
	Events     []events.Event
	Episodes   []events.Episode
	Possession map[events.Team]time.Duration
	Stats      Stats

	// Abort is non-nil when the stream stopped on a sequence violation.
	// Everything processed before the violation is still present.
	Abort *AbortInfo
}

// Pipeline ingests frames, projects detections onto the pitch, updates
// the tracker and records per-frame state for event replay. ProcessFrame
// is not safe for concurrent use; Run provides a single consumer over the
// bounded queue.
type Pipeline struct {
	cfg     Config
	hom     *calib.Homography
	tracker *track.Tracker

	queue chan Frame
	done  chan struct{}
	once  sync.Once

	mu        sync.Mutex
	stats     Stats
	lastTS    time.Time
	firstTS   time.Time
	frames    []frameState
	abort     *AbortInfo
	finalized bool
}

// New creates a Pipeline. hom may be nil when detections are already in
// pitch coordinates.
func New(cfg Config, hom *calib.Homography) (*Pipeline, error) {
	if cfg.Pitch == nil {
		return nil, errors.New("pipeline: pitch is required")
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}
	return &Pipeline{
		cfg:     cfg,
		hom:     hom,
		tracker: track.NewTracker(cfg.Tracker),
		queue:   make(chan Frame, cfg.QueueCapacity),
		done:    make(chan struct{}),
	}, nil
}

// Tracker exposes the underlying tracker for inspection.
func (p *Pipeline) Tracker() *track.Tracker { return p.tracker }

// Stats returns a snapshot of the throughput counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Enqueue submits a frame for processing by Run. It blocks while the
// queue is full, providing backpressure to the producer.
func (p *Pipeline) Enqueue(f Frame) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- f:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

// Close stops intake. Run drains whatever was queued and returns.
func (p *Pipeline) Close() {
	p.once.Do(func() { close(p.done) })
}

// Run consumes the queue until Close or context cancellation. A sequence
// violation is fatal for the stream: Run closes intake and returns the
// SequenceError, with everything processed so far still available through
// Finalize.
func (p *Pipeline) Run(ctx context.Context) error {
	monitoring.Logf("pipeline: run started (queue capacity %d)", cap(p.queue))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-p.queue:
			if err := p.processLogged(f); err != nil {
				p.Close()
				return err
			}
		case <-p.done:
			for {
				select {
				case f := <-p.queue:
					if err := p.processLogged(f); err != nil {
						return err
					}
				default:
					monitoring.Logf("pipeline: run drained, %d frames processed", p.Stats().FramesProcessed)
					return nil
				}
			}
		}
	}
}

// processLogged runs one frame and distinguishes fatal ordering failures
// from already-counted rejections.
func (p *Pipeline) processLogged(f Frame) error {
	err := p.ProcessFrame(f)
	if err == nil {
		return nil
	}
	opsf("frame %d rejected: %v", f.Index, err)
	var seq *SequenceError
	if errors.As(err, &seq) {
		return seq
	}
	return nil
}

// abortSequence records the violation and returns the SequenceError.
// Caller holds p.mu.
func (p *Pipeline) abortSequence(f Frame) error {
	err := &SequenceError{FrameIndex: f.Index, Prev: p.lastTS, Got: f.Timestamp}
	p.abort = &AbortInfo{
		FrameIndex: f.Index,
		Timestamp:  f.Timestamp,
		Reason:     err.Error(),
	}
	return err
}

// ProcessFrame runs one frame through projection and tracking. Frames
// must arrive with strictly increasing timestamps; a duplicate, regressing
// or zero timestamp aborts the stream and every later frame is rejected
// with ErrAborted.
func (p *Pipeline) ProcessFrame(f Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.FramesIn++
	p.stats.DetectionsIn += len(f.Detections)

	if p.abort != nil {
		p.stats.FramesRejected++
		return ErrAborted
	}
	if f.Timestamp.IsZero() {
		p.stats.FramesRejected++
		return p.abortSequence(f)
	}
	if !p.lastTS.IsZero() && !f.Timestamp.After(p.lastTS) {
		p.stats.FramesRejected++
		return p.abortSequence(f)
	}
	if p.firstTS.IsZero() {
		p.firstTS = f.Timestamp
	}
	p.lastTS = f.Timestamp

	dets := make([]track.Detection, 0, len(f.Detections))
	for _, d := range f.Detections {
		pos, err := p.project(d.Pixel)
		if err != nil {
			p.stats.DetectionsDropped++
			opsf("frame %d: dropping %s detection, projection failed: %v", f.Index, d.Class, err)
			continue
		}
		dets = append(dets, track.Detection{
			FrameIndex: f.Index,
			Timestamp:  f.Timestamp,
			Class:      d.Class,
			Pixel:      d.Pixel,
			Pos:        pos,
			Confidence: d.Confidence,
		})
	}

	p.tracker.Update(dets, f.Timestamp)
	p.recordFrameState(f.Timestamp)
	p.persistFrame(f.Timestamp)
	p.stats.FramesProcessed++

	tracef("frame %d: %d detections in, %d projected", f.Index, len(f.Detections), len(dets))
	return nil
}

func (p *Pipeline) project(px calib.PixelPoint) (pitch.Point, error) {
	if p.hom == nil {
		return pitch.Point{X: px.X, Y: px.Y}, nil
	}
	return p.hom.Project(px)
}

// recordFrameState keeps the compact snapshot used for event replay.
func (p *Pipeline) recordFrameState(ts time.Time) {
	fs := frameState{ts: ts}
	if ball := p.tracker.BallTrack(); ball != nil {
		vx, vy := ball.Velocity()
		fs.ball = &ballState{pos: ball.Position(), vx: vx, vy: vy}
	}
	for _, tr := range p.tracker.LiveTracks() {
		if tr.Class != track.ClassPlayer && tr.Class != track.ClassGoalkeeper {
			continue
		}
		fs.players = append(fs.players, playerState{id: tr.ID, class: tr.Class, pos: tr.Position()})
	}
	p.frames = append(p.frames, fs)
}

// persistFrame writes matched tracks and their latest observations.
// Coasting tracks carry predicted positions, not measurements, so their
// observations are never persisted.
func (p *Pipeline) persistFrame(ts time.Time) {
	if p.cfg.Sink == nil {
		return
	}
	for _, tr := range p.tracker.LiveTracks() {
		if tr.Misses != 0 || len(tr.History) == 0 {
			continue
		}
		last := tr.History[len(tr.History)-1]
		if !last.Timestamp.Equal(ts) {
			continue
		}
		if err := p.cfg.Sink.PersistTrack(tr); err != nil {
			opsf("persist track %s: %v", tr.ID, err)
			continue
		}
		if err := p.cfg.Sink.PersistObservation(tr.ID, last); err != nil {
			opsf("persist observation for %s: %v", tr.ID, err)
		}
	}
}

// Finalize replays the recorded frames through the event detector and
// returns the stream results. Team sides come from the configured map or,
// when absent, from mean-position inference over the full histories.
// Finalize is idempotent in its outputs but must be called once, after
// ingest has stopped.
func (p *Pipeline) Finalize() *Results {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finalized {
		diagf("finalize called twice")
	}
	p.finalized = true

	all := p.tracker.AllTracks()
	teams := p.cfg.Teams
	if teams == nil {
		teams = events.InferTeamsByMeanPosition(all, p.cfg.Pitch)
		diagf("inferred sides for %d tracks", len(teams))
	}

	det := events.NewDetector(p.cfg.Events, p.cfg.Pitch, teams, p.cfg.AttackSides)
	for _, fs := range p.frames {
		det.Step(replayBall(fs.ball), replayPlayers(fs.players), fs.ts)
	}
	if !p.lastTS.IsZero() {
		det.Finalize(p.lastTS)
	}

	res := &Results{
		Start:      p.firstTS,
		End:        p.lastTS,
		Tracks:     all,
		Teams:      teams,
		Events:     det.Events(),
		Episodes:   det.Episodes(),
		Possession: det.PossessionTime(),
		Stats:      p.stats,
		Abort:      p.abort,
	}

	if p.cfg.Sink != nil {
		for _, evt := range res.Events {
			if err := p.cfg.Sink.PersistEvent(evt); err != nil {
				opsf("persist event %s: %v", evt.ID, err)
			}
		}
		for _, ep := range res.Episodes {
			if err := p.cfg.Sink.PersistEpisode(ep); err != nil {
				opsf("persist episode %s: %v", ep.ID, err)
			}
		}
	}

	monitoring.Logf("pipeline: finalized %d frames, %d tracks, %d events",
		p.stats.FramesProcessed, len(res.Tracks), len(res.Events))
	return res
}

func replayBall(b *ballState) *track.Track {
	if b == nil {
		return nil
	}
	return &track.Track{
		Class: track.ClassBall,
		State: track.StateActive,
		X:     b.pos.X,
		Y:     b.pos.Y,
		VX:    b.vx,
		VY:    b.vy,
	}
}

func replayPlayers(states []playerState) []*track.Track {
	out := make([]*track.Track, 0, len(states))
	for _, s := range states {
		out = append(out, &track.Track{
			ID:    s.id,
			Class: s.class,
			State: track.StateActive,
			X:     s.pos.X,
			Y:     s.pos.Y,
		})
	}
	return out
}
