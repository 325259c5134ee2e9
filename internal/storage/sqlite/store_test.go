package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchdata/match.report/internal/calib"
	"github.com/pitchdata/match.report/internal/events"
	"github.com/pitchdata/match.report/internal/pitch"
	"github.com/pitchdata/match.report/internal/track"
)

var storeStart = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "match.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleTrack() *track.Track {
	return &track.Track{
		ID:               "trk_test_1",
		Class:            track.ClassPlayer,
		State:            track.StateActive,
		FirstTimestamp:   storeStart,
		LastTimestamp:    storeStart.Add(time.Second),
		X:                20.5,
		Y:                31.0,
		VX:               1.5,
		VY:               -0.5,
		ObservationCount: 30,
		AvgSpeedMps:      1.6,
		PeakSpeedMps:     4.2,
	}
}

func TestMigrationsApplyAndReport(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty, "fresh database reports dirty")
	assert.NotZero(t, version, "migrations did not apply")

	// Re-running is a no-op.
	require.NoError(t, db.MigrateUp())
}

func TestPersistTrackUpserts(t *testing.T) {
	db := openTestDB(t)
	store := NewMatchStore(db)

	tr := sampleTrack()
	require.NoError(t, store.PersistTrack(tr))

	tr.State = track.StateCoasting
	tr.X = 22.0
	tr.ObservationCount = 31
	tr.LastTimestamp = storeStart.Add(2 * time.Second)
	require.NoError(t, store.PersistTrack(tr))

	recs, err := store.ListTracks()
	require.NoError(t, err)
	require.Len(t, recs, 1, "upsert must not create a second row")

	rec := recs[0]
	assert.Equal(t, string(track.StateCoasting), rec.State)
	assert.Equal(t, 22.0, rec.X)
	assert.Equal(t, 31, rec.ObservationCount)
	assert.True(t, rec.FirstTimestamp.Equal(storeStart), "first timestamp must not move on update")
	assert.True(t, rec.LastTimestamp.Equal(storeStart.Add(2*time.Second)))
}

func TestPersistObservationIdempotent(t *testing.T) {
	db := openTestDB(t)
	store := NewMatchStore(db)

	require.NoError(t, store.PersistTrack(sampleTrack()))

	obs := track.Sample{
		Timestamp:  storeStart,
		Pos:        pitch.Point{X: 20.5, Y: 31.0},
		Pixel:      calib.PixelPoint{X: 205, Y: 310},
		Confidence: 0.92,
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, store.PersistObservation("trk_test_1", obs))
	}
	later := obs
	later.Timestamp = storeStart.Add(33 * time.Millisecond)
	require.NoError(t, store.PersistObservation("trk_test_1", later))

	recs, err := store.ListObservations("trk_test_1")
	require.NoError(t, err)
	require.Len(t, recs, 2, "duplicate observations must be ignored")
	assert.True(t, recs[0].Timestamp.Before(recs[1].Timestamp), "observations out of order")
	assert.Equal(t, 205.0, recs[0].PixelX)
	assert.Equal(t, 0.92, recs[0].Confidence)
}

func TestPersistEventRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewMatchStore(db)

	pass := events.Event{
		ID:          "evt_pass_1",
		Type:        events.EventPass,
		Timestamp:   storeStart,
		EpisodeID:   "ep_1",
		Team:        events.TeamHome,
		FromTrackID: "trk_a",
		ToTrackID:   "trk_b",
		Outcome:     events.PassComplete,
		DistanceM:   18.4,
		Range:       events.PassMedium,
		Direction:   events.DirectionForward,
	}
	shot := events.Event{
		ID:        "evt_shot_1",
		Type:      events.EventShot,
		Timestamp: storeStart.Add(time.Second),
		EpisodeID: "ep_1",
		Team:      events.TeamHome,
		ByTrackID: "trk_b",
		OnTarget:  true,
	}
	for _, evt := range []events.Event{pass, shot} {
		require.NoError(t, store.PersistEvent(evt))
	}

	got, err := store.ListEvents()
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, want := range []events.Event{pass, shot} {
		require.True(t, got[i].Timestamp.Equal(want.Timestamp),
			"event %d timestamp = %s, want %s", i, got[i].Timestamp, want.Timestamp)
		got[i].Timestamp = want.Timestamp
		if diff := cmp.Diff(want, got[i]); diff != "" {
			t.Errorf("event %d round trip mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestPersistEpisodeRoundTrip(t *testing.T) {
	db := openTestDB(t)
	store := NewMatchStore(db)

	ep := events.Episode{
		ID:      "ep_1",
		Team:    events.TeamAway,
		Start:   storeStart,
		End:     storeStart.Add(30 * time.Second),
		Outcome: events.OutcomeTurnover,
	}
	require.NoError(t, store.PersistEpisode(ep))

	// Upsert with the final outcome.
	ep.Outcome = events.OutcomeGoal
	require.NoError(t, store.PersistEpisode(ep))

	got, err := store.ListEpisodes()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.OutcomeGoal, got[0].Outcome)
	assert.Equal(t, events.TeamAway, got[0].Team)
	assert.True(t, got[0].End.Equal(ep.End), "episode end = %s, want %s", got[0].End, ep.End)
}
