package events

import (
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

// TeamMap assigns a team to each player track ID.
type TeamMap map[string]Team

// TeamOf returns the team for a track, or TeamUnknown.
func (m TeamMap) TeamOf(trackID string) Team {
	return m[trackID]
}

// InferTeamsByMeanPosition assigns players to sides by the half of the
// pitch their mean observed position lies in: left half is home, right
// half away. This is a crude fallback for when no appearance-based team
// assignment is supplied; it works for kickoff-anchored clips where teams
// hold their halves.
func InferTeamsByMeanPosition(tracks []*track.Track, p *pitch.Pitch) TeamMap {
	m := make(TeamMap)
	mid := p.Length / 2
	for _, tr := range tracks {
		if tr.Class != track.ClassPlayer && tr.Class != track.ClassGoalkeeper {
			continue
		}
		if len(tr.History) == 0 {
			continue
		}
		var sx float64
		for _, s := range tr.History {
			sx += s.Pos.X
		}
		if sx/float64(len(tr.History)) < mid {
			m[tr.ID] = TeamHome
		} else {
			m[tr.ID] = TeamAway
		}
	}
	return m
}

// DefaultAttackSides returns the conventional orientation: home defends
// the left goal and attacks right, away the opposite.
func DefaultAttackSides() map[Team]pitch.Side {
	return map[Team]pitch.Side{
		TeamHome: pitch.SideRight,
		TeamAway: pitch.SideLeft,
	}
}
