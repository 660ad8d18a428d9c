package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frigate-speciesid/speciesid/internal/errors"
)

func seedDetections(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	rows := []struct {
		event string
		name  string
		at    time.Time
		score float64
	}{
		{"a1", "Cardinal", day.Add(7*time.Hour + 5*time.Minute), 0.9},
		{"a2", "Cardinal", day.Add(7*time.Hour + 40*time.Minute), 0.8},
		{"a3", "Cardinal", day.Add(15 * time.Hour), 0.85},
		{"b1", "Blue Jay", day.Add(7*time.Hour + 20*time.Minute), 0.95},
		{"b2", "Blue Jay", day.Add(9 * time.Hour), 0.77},
		{"c1", "Chickadee", day.Add(23*time.Hour + 59*time.Minute), 0.91},
		// outside the UTC day on either side
		{"x1", "Cardinal", day.Add(-time.Minute), 0.99},
		{"x2", "Blue Jay", day.Add(24*time.Hour + time.Second), 0.88},
	}
	for _, r := range rows {
		_, err := store.UpsertIfHigher(ctx, r.event, candidate(1, r.name, r.score, r.at))
		require.NoError(t, err)
	}
}

func TestDailySummary(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedDetections(t, store)

	got, err := store.DailySummary(context.Background(), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "Cardinal", got[0].DisplayName)
	assert.Equal(t, 3, got[0].Total)
	assert.Equal(t, 2, got[0].Hourly[7])
	assert.Equal(t, 1, got[0].Hourly[15])

	assert.Equal(t, "Blue Jay", got[1].DisplayName)
	assert.Equal(t, 2, got[1].Total)
	assert.Equal(t, 1, got[1].Hourly[7])
	assert.Equal(t, 1, got[1].Hourly[9])

	assert.Equal(t, "Chickadee", got[2].DisplayName)
	assert.Equal(t, 1, got[2].Hourly[23])
}

func TestDailySummary_Location(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedDetections(t, store)
	store.Location = time.FixedZone("UTC+2", 2*3600)

	got, err := store.DailySummary(context.Background(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// 22:00 UTC on Apr 30 starts the local day, so the 23:59 UTC sighting moves to May 2
	total := 0
	for _, s := range got {
		total += s.Total
		if s.DisplayName == "Cardinal" {
			assert.Equal(t, 2, s.Hourly[9], "07:xx UTC is 09:xx local")
			assert.Equal(t, 1, s.Hourly[1], "23:59 UTC on Apr 30 is 01:59 local")
		}
	}
	assert.Equal(t, 6, total)
}

func TestDetectionsForDateHour(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedDetections(t, store)
	ctx := context.Background()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	got, err := store.DetectionsForDateHour(ctx, day, 7)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a1", "b1", "a2"}, []string{got[0].FrigateEvent, got[1].FrigateEvent, got[2].FrigateEvent})

	_, err = store.DetectionsForDateHour(ctx, day, 24)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestDetectionsForNameAndDate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedDetections(t, store)

	got, err := store.DetectionsForNameAndDate(context.Background(), "Blue Jay", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].FrigateEvent)
	assert.Equal(t, "b2", got[1].FrigateEvent)
}

func TestRecentDetections(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	seedDetections(t, store)
	ctx := context.Background()

	got, err := store.RecentDetections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x2", got[0].FrigateEvent)
	assert.Equal(t, "c1", got[1].FrigateEvent)

	_, err = store.RecentDetections(ctx, 0)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestEarliestDetectionDate(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EarliestDetectionDate(ctx)
	assert.True(t, errors.IsNotFound(err))

	seedDetections(t, store)
	got, err := store.EarliestDetectionDate(ctx)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 4, 30, 23, 59, 0, 0, time.UTC).Equal(got), "got %s", got)
}
