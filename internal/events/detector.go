package events

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pitchdata/match.report/internal/config"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

// State is the possession-episode machine state.
type State string

const (
	StateNeutral    State = "neutral"     // no clear possession
	StateControlled State = "controlled"  // one player controls the ball
	StateInTransit  State = "in_transit"  // ball travelling between controls
)

// Config holds event detection thresholds.
type Config struct {
	ControlRadiusM     float64       // player-to-ball distance for control
	ControlSpeedMaxMps float64       // ball speed ceiling for control
	KickSpeedMps       float64       // ball speed floor for a classified kick
	TransitTimeout     time.Duration // loose-ball timeout
	GoalAimHalfWidthM  float64       // half-width of the "aimed at goal" band
	ShortPassMaxM      float64
	MediumPassMaxM     float64
}

// ConfigFromAnalysis builds an event detection Config from a loaded
// AnalysisConfig.
func ConfigFromAnalysis(cfg *config.AnalysisConfig) Config {
	return Config{
		ControlRadiusM:     cfg.GetControlRadiusMeters(),
		ControlSpeedMaxMps: cfg.GetControlSpeedMaxMps(),
		KickSpeedMps:       cfg.GetKickSpeedMps(),
		TransitTimeout:     cfg.GetTransitTimeout(),
		GoalAimHalfWidthM:  cfg.GetGoalAimHalfWidthM(),
		ShortPassMaxM:      cfg.GetShortPassMaxMeters(),
		MediumPassMaxM:     cfg.GetMediumPassMaxMeters(),
	}
}

// kickContext records a classified kick while the ball is in transit.
type kickContext struct {
	classified  bool
	byID        string
	team        Team
	from        pitch.Point
	at          time.Time
	shotEmitted bool
}

// Detector runs the possession-episode state machine for one ball identity.
// It is single-threaded by design: one Detector per analysed stream, driven
// frame by frame in timestamp order. Distinct streams use distinct
// detectors with no shared state.
type Detector struct {
	cfg    Config
	pitch  *pitch.Pitch
	teams  TeamMap
	attack map[Team]pitch.Side

	state   State
	episode *Episode

	controllerID   string
	controllerTeam Team
	controlPos     pitch.Point

	lastControllerID   string
	lastControllerTeam Team

	kick         kickContext
	transitSince time.Time

	lastTimestamp time.Time

	events     []Event
	episodes   []Episode
	possession map[Team]time.Duration
}

// NewDetector creates a Detector. teams may be nil (every track is then
// TeamUnknown and pass outcomes degrade gracefully); attack may be nil to
// use the conventional orientation.
func NewDetector(cfg Config, p *pitch.Pitch, teams TeamMap, attack map[Team]pitch.Side) *Detector {
	if teams == nil {
		teams = TeamMap{}
	}
	if attack == nil {
		attack = DefaultAttackSides()
	}
	return &Detector{
		cfg:        cfg,
		pitch:      p,
		teams:      teams,
		attack:     attack,
		state:      StateNeutral,
		possession: make(map[Team]time.Duration),
	}
}

// State returns the current machine state.
func (d *Detector) State() State { return d.state }

// Events returns the emitted events in order.
func (d *Detector) Events() []Event {
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Episodes returns the closed possession episodes in order.
func (d *Detector) Episodes() []Episode {
	out := make([]Episode, len(d.episodes))
	copy(out, d.episodes)
	return out
}

// PossessionTime returns accumulated controlled time per team.
func (d *Detector) PossessionTime() map[Team]time.Duration {
	out := make(map[Team]time.Duration, len(d.possession))
	for k, v := range d.possession {
		out[k] = v
	}
	return out
}

// Step advances the machine by one frame. ball is the live ball track
// snapshot (nil when the ball is not tracked); players are the live
// player and goalkeeper snapshots.
func (d *Detector) Step(ball *track.Track, players []*track.Track, ts time.Time) {
	defer func() { d.lastTimestamp = ts }()

	if ball == nil {
		if d.state == StateInTransit && !d.transitSince.IsZero() && ts.Sub(d.transitSince) > d.cfg.TransitTimeout {
			d.looseBall(ts)
		}
		return
	}

	ballPos := ball.Position()
	vx, vy := ball.Velocity()
	speed := ball.Speed()

	// Terminal checks run in every state.
	if !d.pitch.Contains(ballPos) {
		switch {
		case d.pitch.InGoal(ballPos, pitch.SideLeft) || d.pitch.InGoal(ballPos, pitch.SideRight):
			d.emitGoal(ts)
			d.closeEpisode(ts, OutcomeGoal)
		case d.kick.shotEmitted:
			d.closeEpisode(ts, OutcomeShot)
		default:
			d.closeEpisode(ts, OutcomeOutOfPlay)
		}
		d.resetToNeutral()
		return
	}

	nearestID, nearestTeam, nearestDist := d.nearestPlayer(ballPos, players)
	hasControl := nearestID != "" && nearestDist <= d.cfg.ControlRadiusM && speed <= d.cfg.ControlSpeedMaxMps

	switch d.state {
	case StateNeutral:
		if !hasControl {
			return
		}
		if d.episode != nil && nearestTeam != TeamUnknown && nearestTeam != d.episode.Team {
			// Loose ball picked up by the other side.
			d.closeEpisode(ts, OutcomeTurnover)
		}
		if d.episode == nil {
			d.openEpisode(nearestTeam, ts)
		}
		d.setController(nearestID, nearestTeam, ballPos)
		d.state = StateControlled

	case StateControlled:
		if d.episode != nil && !d.lastTimestamp.IsZero() {
			d.possession[d.episode.Team] += ts.Sub(d.lastTimestamp)
		}
		if hasControl {
			if nearestID != d.controllerID {
				if nearestTeam != TeamUnknown && nearestTeam != d.controllerTeam {
					// Dispossession without a transit phase.
					d.closeEpisode(ts, OutcomeTurnover)
					d.openEpisode(nearestTeam, ts)
				}
				d.setController(nearestID, nearestTeam, ballPos)
			} else {
				d.controlPos = ballPos
			}
			return
		}
		// Ball departing. A clear kick is classified immediately; anything
		// in the ambiguous band between control and kick speed enters
		// transit unclassified and will never produce an event unless it
		// resolves.
		if speed >= d.cfg.KickSpeedMps && movingAway(ballPos, vx, vy, d.controlPos) {
			d.beginClassifiedKick(ballPos, vx, vy, ts)
		} else {
			d.kick = kickContext{}
			tracef("ambiguous departure at %s: speed=%.1f, unclassified transit", ts.Format(time.RFC3339Nano), speed)
		}
		d.transitSince = ts
		d.state = StateInTransit

	case StateInTransit:
		if hasControl {
			d.resolveTransit(nearestID, nearestTeam, ballPos, players, ts)
			return
		}
		// Retroactive classification: a kick whose speed ramped through
		// the ambiguous band is still a kick once it clearly exceeds the
		// threshold while moving away from the release point.
		if !d.kick.classified && d.lastControllerID != "" &&
			speed >= d.cfg.KickSpeedMps && movingAway(ballPos, vx, vy, d.controlPos) {
			d.beginClassifiedKick(ballPos, vx, vy, ts)
		}
		if ts.Sub(d.transitSince) > d.cfg.TransitTimeout {
			d.looseBall(ts)
		}
	}
}

// Finalize closes any open episode at end of stream.
func (d *Detector) Finalize(ts time.Time) {
	d.closeEpisode(ts, OutcomeStoppage)
	d.resetToNeutral()
}

func (d *Detector) nearestPlayer(ballPos pitch.Point, players []*track.Track) (string, Team, float64) {
	bestID := ""
	bestTeam := TeamUnknown
	bestDist := math.MaxFloat64
	for _, p := range players {
		if p.Class != track.ClassPlayer && p.Class != track.ClassGoalkeeper {
			continue
		}
		if p.State == track.StateLost {
			continue
		}
		dist := p.Position().Dist(ballPos)
		if dist < bestDist {
			bestDist = dist
			bestID = p.ID
			bestTeam = d.teams.TeamOf(p.ID)
		}
	}
	return bestID, bestTeam, bestDist
}

func movingAway(ballPos pitch.Point, vx, vy float64, from pitch.Point) bool {
	rel := ballPos.Sub(from)
	return vx*rel.X+vy*rel.Y > 0
}

func (d *Detector) setController(id string, team Team, pos pitch.Point) {
	d.controllerID = id
	d.controllerTeam = team
	d.controlPos = pos
	d.lastControllerID = id
	d.lastControllerTeam = team
}

func (d *Detector) openEpisode(team Team, ts time.Time) {
	d.episode = &Episode{
		ID:    fmt.Sprintf("ep_%s", uuid.NewString()),
		Team:  team,
		Start: ts,
	}
	diagf("episode %s opened for %q at %s", d.episode.ID, team, ts.Format(time.RFC3339Nano))
}

func (d *Detector) closeEpisode(ts time.Time, outcome EpisodeOutcome) {
	if d.episode == nil {
		return
	}
	d.episode.End = ts
	d.episode.Outcome = outcome
	d.episodes = append(d.episodes, *d.episode)
	diagf("episode %s closed: %s", d.episode.ID, outcome)
	d.episode = nil
}

func (d *Detector) resetToNeutral() {
	d.state = StateNeutral
	d.controllerID = ""
	d.controllerTeam = TeamUnknown
	d.kick = kickContext{}
	d.transitSince = time.Time{}
}

// looseBall times a transit out into neutral. The episode stays open: if
// the same team regains control it continues, if the other team does the
// pickup closes it as a turnover.
func (d *Detector) looseBall(ts time.Time) {
	d.state = StateNeutral
	d.controllerID = ""
	d.kick = kickContext{}
	d.transitSince = time.Time{}
	tracef("transit timed out at %s, ball loose", ts.Format(time.RFC3339Nano))
}

// beginClassifiedKick records a kick by the current (or last) controller
// and emits a shot immediately when the trajectory is aimed at the
// kicker's target goal.
func (d *Detector) beginClassifiedKick(ballPos pitch.Point, vx, vy float64, ts time.Time) {
	d.kick = kickContext{
		classified: true,
		byID:       d.lastControllerID,
		team:       d.lastControllerTeam,
		from:       d.controlPos,
		at:         ts,
	}
	if aimed, onTarget := d.aimedAtGoal(d.kick.team, ballPos, vx, vy); aimed {
		d.emit(Event{
			Type:      EventShot,
			Timestamp: ts,
			Team:      d.kick.team,
			ByTrackID: d.kick.byID,
			OnTarget:  onTarget,
		})
		d.kick.shotEmitted = true
	}
}

// aimedAtGoal intersects the ball's velocity ray with the kicker's target
// goal line. aimed is true when the intersection lies within the wide aim
// band; onTarget when it lies within the goal mouth itself. A kicker with
// no known team yields no shot (omission over a guessed attribution).
func (d *Detector) aimedAtGoal(team Team, ballPos pitch.Point, vx, vy float64) (aimed, onTarget bool) {
	side, ok := d.attack[team]
	if !ok {
		return false, false
	}
	goalX := 0.0
	if side == pitch.SideRight {
		goalX = d.pitch.Length
	}
	if math.Abs(vx) < 1e-9 {
		return false, false
	}
	t := (goalX - ballPos.X) / vx
	if t <= 0 {
		return false, false
	}
	yAt := ballPos.Y + vy*t
	center := d.pitch.Width / 2
	if math.Abs(yAt-center) > d.cfg.GoalAimHalfWidthM {
		return false, false
	}
	yMin, yMax := d.pitch.GoalMouth()
	return true, yAt >= yMin && yAt <= yMax
}

// resolveTransit handles a player gaining control while the ball was in
// transit. A classified kick received by a different player becomes a
// pass; an unclassified transit resolves silently. The kicker must still
// be tracked when the pass is emitted: a kick recorded seconds earlier can
// outlive its track, and the event would then reference a lost identity
// (omission over a wrong label).
func (d *Detector) resolveTransit(receiverID string, receiverTeam Team, ballPos pitch.Point, players []*track.Track, ts time.Time) {
	if d.kick.classified && receiverID != d.kick.byID && !d.kick.shotEmitted {
		if !trackPresent(d.kick.byID, players) {
			opsf("kicker %s no longer tracked at %s, omitting pass event", d.kick.byID, ts.Format(time.RFC3339Nano))
			d.resolveReceiver(receiverID, receiverTeam, ballPos, ts)
			return
		}
		outcome := PassComplete
		if receiverTeam != TeamUnknown && d.kick.team != TeamUnknown && receiverTeam != d.kick.team {
			outcome = PassIntercepted
		}
		dist := d.kick.from.Dist(ballPos)
		d.emit(Event{
			Type:        EventPass,
			Timestamp:   ts,
			Team:        d.kick.team,
			FromTrackID: d.kick.byID,
			ToTrackID:   receiverID,
			Outcome:     outcome,
			DistanceM:   dist,
			Range:       d.passRange(dist),
			Direction:   d.passDirection(d.kick.team, d.kick.from, ballPos),
		})
	}
	d.resolveReceiver(receiverID, receiverTeam, ballPos, ts)
}

// resolveReceiver hands the episode and controller over to whoever picked
// the ball up, regardless of whether the transit produced an event.
func (d *Detector) resolveReceiver(receiverID string, receiverTeam Team, ballPos pitch.Point, ts time.Time) {
	sameTeam := d.episode != nil && (receiverTeam == TeamUnknown || receiverTeam == d.episode.Team)
	if !sameTeam {
		d.closeEpisode(ts, OutcomeTurnover)
		d.openEpisode(receiverTeam, ts)
	} else if d.episode == nil {
		d.openEpisode(receiverTeam, ts)
	}
	d.setController(receiverID, receiverTeam, ballPos)
	d.kick = kickContext{}
	d.transitSince = time.Time{}
	d.state = StateControlled
}

// trackPresent reports whether a live (not lost) player track with the
// given ID is in the frame snapshot.
func trackPresent(id string, players []*track.Track) bool {
	if id == "" {
		return false
	}
	for _, p := range players {
		if p.ID == id && p.State != track.StateLost {
			return true
		}
	}
	return false
}

func (d *Detector) passRange(dist float64) PassRange {
	switch {
	case dist < d.cfg.ShortPassMaxM:
		return PassShort
	case dist < d.cfg.MediumPassMaxM:
		return PassMedium
	default:
		return PassLong
	}
}

// passDirection classifies a pass relative to the passing team's attacking
// direction. When the team is unknown the pitch's positive X axis is used.
func (d *Detector) passDirection(team Team, from, to pitch.Point) PassDirection {
	axis := 1.0
	if side, ok := d.attack[team]; ok && side == pitch.SideLeft {
		axis = -1.0
	}
	dx := (to.X - from.X) * axis
	dy := to.Y - from.Y
	if math.Abs(dx) <= math.Abs(dy) {
		return DirectionLateral
	}
	if dx > 0 {
		return DirectionForward
	}
	return DirectionBackward
}

// emitGoal attributes a goal to the last controlling player. With no known
// controller the goal is not attributed and no event is emitted.
func (d *Detector) emitGoal(ts time.Time) {
	if d.lastControllerID == "" {
		opsf("ball entered goal with no known controller at %s, omitting goal event", ts.Format(time.RFC3339Nano))
		return
	}
	d.emit(Event{
		Type:      EventGoal,
		Timestamp: ts,
		Team:      d.lastControllerTeam,
		ByTrackID: d.lastControllerID,
	})
}

func (d *Detector) emit(evt Event) {
	evt.ID = fmt.Sprintf("evt_%s", uuid.NewString())
	if d.episode != nil {
		evt.EpisodeID = d.episode.ID
		d.episode.EventIDs = append(d.episode.EventIDs, evt.ID)
	}
	d.events = append(d.events, evt)
	diagf("event %s: %s team=%q", evt.ID, evt.Type, evt.Team)
}
