// Package events infers discrete technical events (passes, shots, goals)
// from continuous ball and player motion. A finite-state machine tracks
// possession episodes; an event is only emitted when the motion can be
// classified confidently, otherwise the detector prefers omission over a
// wrong label.
package events

import "time"

// Team labels one of the two sides. Unknown is used when team inference
// has no evidence for a track.
type Team string

const (
	TeamHome    Team = "home"
	TeamAway    Team = "away"
	TeamUnknown Team = ""
)

// EventType is the closed set of emitted technical events.
type EventType string

const (
	EventPass EventType = "pass"
	EventShot EventType = "shot"
	EventGoal EventType = "goal"
)

// PassOutcome classifies where a classified kick ended up.
type PassOutcome string

const (
	PassComplete    PassOutcome = "complete"
	PassIntercepted PassOutcome = "intercepted"
)

// Pass range buckets by distance.
type PassRange string

const (
	PassShort  PassRange = "short"
	PassMedium PassRange = "medium"
	PassLong   PassRange = "long"
)

// PassDirection relative to the passing team's attacking direction.
type PassDirection string

const (
	DirectionForward  PassDirection = "forward"
	DirectionBackward PassDirection = "backward"
	DirectionLateral  PassDirection = "lateral"
)

// Event is a discrete, timestamped technical occurrence. Immutable once
// emitted; it references the track IDs that produced it.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	EpisodeID string    `json:"episode_id"`
	Team      Team      `json:"team"`

	// Pass fields
	FromTrackID string        `json:"from_track_id,omitempty"`
	ToTrackID   string        `json:"to_track_id,omitempty"`
	Outcome     PassOutcome   `json:"outcome,omitempty"`
	DistanceM   float64       `json:"distance_m,omitempty"`
	Range       PassRange     `json:"range,omitempty"`
	Direction   PassDirection `json:"direction,omitempty"`

	// Shot/goal fields
	ByTrackID string `json:"by_track_id,omitempty"`
	OnTarget  bool   `json:"on_target,omitempty"`
}

// EpisodeOutcome is the terminal outcome of a possession episode.
type EpisodeOutcome string

const (
	OutcomeTurnover  EpisodeOutcome = "turnover"
	OutcomeShot      EpisodeOutcome = "shot"
	OutcomeGoal      EpisodeOutcome = "goal"
	OutcomeOutOfPlay EpisodeOutcome = "out_of_play"
	OutcomeStoppage  EpisodeOutcome = "stoppage"
)

// Episode is a contiguous interval during which one team retains the ball.
// Episode intervals never overlap for the same ball identity.
type Episode struct {
	ID       string         `json:"id"`
	Team     Team           `json:"team"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Outcome  EpisodeOutcome `json:"outcome"`
	EventIDs []string       `json:"event_ids"`
}
