// Package report assembles the per-match analytics output: player load
// summaries, technical events, possession and tactical snapshots, merged
// from the tracking, kinematics, events and tactical layers.
package report

import (
	"encoding/json"
	"io"
	"sort"
	"time"

	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/kinematics"
	"github.com/pitchdata/match.report/internal/tactical"
	"github.com/pitchdata/match.report/internal/timeutil"
	"github.com/pitchdata/match.report/internal/track"
	"github.com/pitchdata/match.report/internal/units"
)

// PlayerReport is one player's physical summary for the analysed span.
type PlayerReport struct {
	TrackID      string      `json:"track_id"`
	Team         events.Team `json:"team"`
	Class        track.Class `json:"class"`
	Observations int         `json:"observations"`
	FirstSeen    time.Time   `json:"first_seen"`
	LastSeen     time.Time   `json:"last_seen"`

	TotalDistanceM         float64                                 `json:"total_distance_m"`
	AvgSpeedMps            float64                                 `json:"avg_speed_mps"`
	PeakSpeedMps           float64                                 `json:"peak_speed_mps"`
	PeakSpeedKph           float64                                 `json:"peak_speed_kph"`
	HighIntensityDistanceM float64                                 `json:"high_intensity_distance_m"`
	SprintCount            int                                     `json:"sprint_count"`
	Sprints                []kinematics.Sprint                     `json:"sprints,omitempty"`
	TimeByZone             map[kinematics.SpeedZone]time.Duration  `json:"time_by_zone,omitempty"`
	EffortScore            float64                                 `json:"effort_score"`
}

// BallReport summarises the ball's motion across all ball identities.
type BallReport struct {
	Identities   int     `json:"identities"`
	DistanceM    float64 `json:"distance_m"`
	PeakSpeedMps float64 `json:"peak_speed_mps"`
}

// MatchReport is the full assembled output.
type MatchReport struct {
	GeneratedAt time.Time `json:"generated_at"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`

	Players []PlayerReport `json:"players"`
	Ball    BallReport     `json:"ball"`

	Events   []events.Event   `json:"events"`
	Episodes []events.Episode `json:"episodes"`

	PossessionTime map[events.Team]time.Duration `json:"possession_time"`
	PossessionPct  map[events.Team]float64       `json:"possession_pct"`

	Windows  []tactical.Snapshot                `json:"windows"`
	Heatmaps map[events.Team]tactical.Heatmap   `json:"heatmaps"`
}

// Input carries the layer outputs to merge. Events, Episodes and
// Possession usually come from a finalized event detector or pipeline
// run; Tracks from the tracker.
type Input struct {
	Start, End time.Time
	Tracks     []*track.Track
	Teams      events.TeamMap
	Events     []events.Event
	Episodes   []events.Episode
	Possession map[events.Team]time.Duration
}

// Assembler merges layer outputs into a MatchReport.
type Assembler struct {
	kin   kinematics.Config
	tac   *tactical.Aggregator
	clock timeutil.Clock
}

// NewAssembler creates an Assembler. clock may be nil to use wall time.
func NewAssembler(kin kinematics.Config, tac *tactical.Aggregator, clock timeutil.Clock) *Assembler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Assembler{kin: kin, tac: tac, clock: clock}
}

// Assemble builds the report for tracks observed in [Start, End]. Lost
// tracks are included: an identity that left the frame still contributes
// its observed load. Tracks with no observations are skipped.
func (a *Assembler) Assemble(in Input) *MatchReport {
	rep := &MatchReport{
		GeneratedAt:    a.clock.Now(),
		Start:          in.Start,
		End:            in.End,
		Events:         in.Events,
		Episodes:       in.Episodes,
		PossessionTime: in.Possession,
		Heatmaps:       make(map[events.Team]tactical.Heatmap),
	}
	rep.PossessionPct = tactical.PossessionPercent(rep.PossessionTime)

	for _, tr := range in.Tracks {
		if len(tr.History) == 0 {
			continue
		}
		switch tr.Class {
		case track.ClassBall:
			sum := kinematics.Summarize(tr.History, a.kin)
			rep.Ball.Identities++
			rep.Ball.DistanceM += sum.TotalDistanceM
			if sum.PeakSpeedMps > rep.Ball.PeakSpeedMps {
				rep.Ball.PeakSpeedMps = sum.PeakSpeedMps
			}
		case track.ClassPlayer, track.ClassGoalkeeper:
			rep.Players = append(rep.Players, a.playerReport(tr, in.Teams))
		}
	}
	sort.Slice(rep.Players, func(i, j int) bool { return rep.Players[i].TrackID < rep.Players[j].TrackID })

	if a.tac != nil {
		rep.Windows = a.tac.Windows(in.Tracks, in.Teams, in.Start, in.End)
		for _, team := range []events.Team{events.TeamHome, events.TeamAway} {
			rep.Heatmaps[team] = a.tac.HeatmapFor(in.Tracks, in.Teams, team, in.Start, in.End)
		}
	}
	return rep
}

func (a *Assembler) playerReport(tr *track.Track, teams events.TeamMap) PlayerReport {
	sum := kinematics.Summarize(tr.History, a.kin)
	return PlayerReport{
		TrackID:                tr.ID,
		Team:                   teams.TeamOf(tr.ID),
		Class:                  tr.Class,
		Observations:           len(tr.History),
		FirstSeen:              tr.FirstTimestamp,
		LastSeen:               tr.LastTimestamp,
		TotalDistanceM:         sum.TotalDistanceM,
		AvgSpeedMps:            sum.AvgSpeedMps,
		PeakSpeedMps:           sum.PeakSpeedMps,
		PeakSpeedKph:           units.ConvertSpeed(sum.PeakSpeedMps, units.KPH),
		HighIntensityDistanceM: sum.HighIntensityDistanceM,
		SprintCount:            len(sum.Sprints),
		Sprints:                sum.Sprints,
		TimeByZone:             sum.TimeByZone,
		EffortScore:            sum.EffortScore,
	}
}

// WriteJSON writes the report as indented JSON.
func (r *MatchReport) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
