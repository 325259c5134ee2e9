package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/track"
)

// MatchStore persists tracks, observations, events and episodes. It
// satisfies the pipeline's persistence sink interface.
type MatchStore struct {
	db *DB
}

// NewMatchStore creates a MatchStore backed by the given database.
func NewMatchStore(db *DB) *MatchStore {
	return &MatchStore{db: db}
}

// PersistTrack upserts the track's current summary row.
func (s *MatchStore) PersistTrack(tr *track.Track) error {
	_, err := s.db.Exec(`
		INSERT INTO match_tracks (
			track_id, class, state, first_ts_unix_nanos, last_ts_unix_nanos,
			x, y, velocity_x, velocity_y,
			observation_count, avg_speed_mps, peak_speed_mps, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(track_id) DO UPDATE SET
			state = excluded.state,
			last_ts_unix_nanos = excluded.last_ts_unix_nanos,
			x = excluded.x,
			y = excluded.y,
			velocity_x = excluded.velocity_x,
			velocity_y = excluded.velocity_y,
			observation_count = excluded.observation_count,
			avg_speed_mps = excluded.avg_speed_mps,
			peak_speed_mps = excluded.peak_speed_mps,
			updated_at = CURRENT_TIMESTAMP`,
		tr.ID, string(tr.Class), string(tr.State),
		tr.FirstTimestamp.UnixNano(), tr.LastTimestamp.UnixNano(),
		tr.X, tr.Y, tr.VX, tr.VY,
		tr.ObservationCount, tr.AvgSpeedMps, tr.PeakSpeedMps,
	)
	if err != nil {
		return fmt.Errorf("persist track %s: %w", tr.ID, err)
	}
	return nil
}

// PersistObservation inserts one measured observation. Duplicate
// (track, timestamp) pairs are ignored so replays stay idempotent.
func (s *MatchStore) PersistObservation(trackID string, obs track.Sample) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO match_observations (
			track_id, ts_unix_nanos, x, y, pixel_x, pixel_y, confidence
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trackID, obs.Timestamp.UnixNano(),
		obs.Pos.X, obs.Pos.Y, obs.Pixel.X, obs.Pixel.Y, obs.Confidence,
	)
	if err != nil {
		return fmt.Errorf("persist observation for %s: %w", trackID, err)
	}
	return nil
}

// PersistEvent upserts an emitted event.
func (s *MatchStore) PersistEvent(evt events.Event) error {
	_, err := s.db.Exec(`
		INSERT INTO match_events (
			event_id, episode_id, event_type, ts_unix_nanos, team,
			from_track_id, to_track_id, by_track_id,
			outcome, distance_m, pass_range, direction, on_target
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET
			episode_id = excluded.episode_id,
			outcome = excluded.outcome`,
		evt.ID, nullString(evt.EpisodeID), string(evt.Type), evt.Timestamp.UnixNano(), nullString(string(evt.Team)),
		nullString(evt.FromTrackID), nullString(evt.ToTrackID), nullString(evt.ByTrackID),
		nullString(string(evt.Outcome)), nullFloat(evt.DistanceM), nullString(string(evt.Range)), nullString(string(evt.Direction)),
		boolInt(evt.OnTarget),
	)
	if err != nil {
		return fmt.Errorf("persist event %s: %w", evt.ID, err)
	}
	return nil
}

// PersistEpisode upserts a closed possession episode.
func (s *MatchStore) PersistEpisode(ep events.Episode) error {
	_, err := s.db.Exec(`
		INSERT INTO match_episodes (
			episode_id, team, start_unix_nanos, end_unix_nanos, outcome
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			end_unix_nanos = excluded.end_unix_nanos,
			outcome = excluded.outcome`,
		ep.ID, nullString(string(ep.Team)), ep.Start.UnixNano(), ep.End.UnixNano(), nullString(string(ep.Outcome)),
	)
	if err != nil {
		return fmt.Errorf("persist episode %s: %w", ep.ID, err)
	}
	return nil
}

// TrackRecord is one row of match_tracks.
type TrackRecord struct {
	TrackID          string
	Class            string
	State            string
	FirstTimestamp   time.Time
	LastTimestamp    time.Time
	X, Y             float64
	VelocityX        float64
	VelocityY        float64
	ObservationCount int
	AvgSpeedMps      float64
	PeakSpeedMps     float64
}

// ListTracks returns all persisted tracks ordered by first appearance.
func (s *MatchStore) ListTracks() ([]TrackRecord, error) {
	rows, err := s.db.Query(`
		SELECT track_id, class, state, first_ts_unix_nanos, last_ts_unix_nanos,
		       x, y, velocity_x, velocity_y,
		       observation_count, avg_speed_mps, peak_speed_mps
		FROM match_tracks ORDER BY first_ts_unix_nanos, track_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackRecord
	for rows.Next() {
		var rec TrackRecord
		var first, last int64
		if err := rows.Scan(&rec.TrackID, &rec.Class, &rec.State, &first, &last,
			&rec.X, &rec.Y, &rec.VelocityX, &rec.VelocityY,
			&rec.ObservationCount, &rec.AvgSpeedMps, &rec.PeakSpeedMps); err != nil {
			return nil, err
		}
		rec.FirstTimestamp = time.Unix(0, first).UTC()
		rec.LastTimestamp = time.Unix(0, last).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ObservationRecord is one row of match_observations.
type ObservationRecord struct {
	TrackID    string
	Timestamp  time.Time
	X, Y       float64
	PixelX     float64
	PixelY     float64
	Confidence float64
}

// ListObservations returns a track's measured observations in time order.
func (s *MatchStore) ListObservations(trackID string) ([]ObservationRecord, error) {
	rows, err := s.db.Query(`
		SELECT track_id, ts_unix_nanos, x, y, pixel_x, pixel_y, confidence
		FROM match_observations WHERE track_id = ? ORDER BY ts_unix_nanos`,
		trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ObservationRecord
	for rows.Next() {
		var rec ObservationRecord
		var ts int64
		var px, py, conf sql.NullFloat64
		if err := rows.Scan(&rec.TrackID, &ts, &rec.X, &rec.Y, &px, &py, &conf); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(0, ts).UTC()
		rec.PixelX = px.Float64
		rec.PixelY = py.Float64
		rec.Confidence = conf.Float64
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEvents returns all persisted events in time order.
func (s *MatchStore) ListEvents() ([]events.Event, error) {
	rows, err := s.db.Query(`
		SELECT event_id, episode_id, event_type, ts_unix_nanos, team,
		       from_track_id, to_track_id, by_track_id,
		       outcome, distance_m, pass_range, direction, on_target
		FROM match_events ORDER BY ts_unix_nanos, event_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var evt events.Event
		var ts int64
		var episode, team, from, to, by, outcome, passRange, direction sql.NullString
		var dist sql.NullFloat64
		var onTarget int
		if err := rows.Scan(&evt.ID, &episode, (*string)(&evt.Type), &ts, &team,
			&from, &to, &by, &outcome, &dist, &passRange, &direction, &onTarget); err != nil {
			return nil, err
		}
		evt.Timestamp = time.Unix(0, ts).UTC()
		evt.EpisodeID = episode.String
		evt.Team = events.Team(team.String)
		evt.FromTrackID = from.String
		evt.ToTrackID = to.String
		evt.ByTrackID = by.String
		evt.Outcome = events.PassOutcome(outcome.String)
		evt.DistanceM = dist.Float64
		evt.Range = events.PassRange(passRange.String)
		evt.Direction = events.PassDirection(direction.String)
		evt.OnTarget = onTarget != 0
		out = append(out, evt)
	}
	return out, rows.Err()
}

// ListEpisodes returns all persisted episodes in start order.
func (s *MatchStore) ListEpisodes() ([]events.Episode, error) {
	rows, err := s.db.Query(`
		SELECT episode_id, team, start_unix_nanos, end_unix_nanos, outcome
		FROM match_episodes ORDER BY start_unix_nanos, episode_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.Episode
	for rows.Next() {
		var ep events.Episode
		var team, outcome sql.NullString
		var start int64
		var end sql.NullInt64
		if err := rows.Scan(&ep.ID, &team, &start, &end, &outcome); err != nil {
			return nil, err
		}
		ep.Team = events.Team(team.String)
		ep.Start = time.Unix(0, start).UTC()
		if end.Valid {
			ep.End = time.Unix(0, end.Int64).UTC()
		}
		ep.Outcome = events.EpisodeOutcome(outcome.String)
		out = append(out, ep)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
