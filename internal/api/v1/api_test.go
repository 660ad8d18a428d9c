package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mw "github.com/frigate-speciesid/speciesid/internal/api/middleware"
	"github.com/frigate-speciesid/speciesid/internal/datastore"
	"github.com/frigate-speciesid/speciesid/internal/errors"
	"github.com/frigate-speciesid/speciesid/internal/names"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// setupTestEnvironment returns an echo instance backed by a seeded SQLite
// store and name database.
func setupTestEnvironment(t *testing.T) *echo.Echo {
	t.Helper()
	dir := t.TempDir()

	store := datastore.NewSQLiteStore(filepath.Join(dir, "speciesid.db"))
	require.NoError(t, store.Open())
	store.Location = time.UTC
	t.Cleanup(func() { _ = store.Close() })

	resolver, err := names.Open(filepath.Join(dir, "birdnames.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resolver.Close() })
	require.NoError(t, resolver.Upsert(context.Background(), []names.BirdName{
		{ScientificName: "Cardinalis cardinalis", CommonName: "Northern Cardinal"},
	}))

	seed := []struct {
		event string
		name  string
		at    time.Time
		score float64
	}{
		{"e1", "Cardinalis cardinalis", day.Add(7*time.Hour + 5*time.Minute), 0.91},
		{"e2", "Cardinalis cardinalis", day.Add(7*time.Hour + 45*time.Minute), 0.82},
		{"e3", "Cyanocitta cristata", day.Add(9 * time.Hour), 0.88},
	}
	for _, s := range seed {
		_, err := store.UpsertIfHigher(context.Background(), s.event, datastore.Candidate{
			DetectionTime:  s.at,
			DetectionIndex: 42,
			Score:          s.score,
			DisplayName:    s.name,
			CategoryName:   s.name,
			CameraName:     "birdcam",
		})
		require.NoError(t, err)
	}

	e := echo.New()
	e.Use(mw.NewCorrelationID())
	New(e, store, resolver, WithLocation(time.UTC), WithVersion("test"))
	return e
}

func get(t *testing.T, e *echo.Echo, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, http.NoBody))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	e := setupTestEnvironment(t)
	rec := get(t, e, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestGetRecentDetections(t *testing.T) {
	e := setupTestEnvironment(t)

	rec := get(t, e, "/api/v1/detections/recent?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]DetectionResponse](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "e3", got[0].FrigateEvent)
	assert.Equal(t, names.NotFound, got[0].CommonName)
	assert.Equal(t, "Northern Cardinal", got[1].CommonName)
	assert.Equal(t, "2024-05-01", got[1].Date)
	assert.Equal(t, "07:45:00", got[1].Time)
	assert.Equal(t, "birdcam", got[1].Camera)

	for _, bad := range []string{"0", "-1", "abc", "100000"} {
		rec := get(t, e, "/api/v1/detections/recent?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestGetDailySummary(t *testing.T) {
	e := setupTestEnvironment(t)

	rec := get(t, e, "/api/v1/summary/daily?date=2024-05-01")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[DailySummaryResponse](t, rec)
	assert.Equal(t, "2024-05-01", got.Date)
	require.Len(t, got.Species, 2)

	cardinal := got.Species[0]
	assert.Equal(t, "Cardinalis cardinalis", cardinal.ScientificName)
	assert.Equal(t, "Northern Cardinal", cardinal.CommonName)
	assert.Equal(t, 2, cardinal.Total)
	assert.Equal(t, 2, cardinal.Hourly[7])

	rec = get(t, e, "/api/v1/summary/daily?date=2024-05-02")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[DailySummaryResponse](t, rec).Species)

	rec = get(t, e, "/api/v1/summary/daily?date=05/01/2024")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.NotEmpty(t, errResp.CorrelationID)
	assert.Equal(t, errResp.CorrelationID, rec.Header().Get(echo.HeaderXRequestID))
}

func TestGetHourlyDetections(t *testing.T) {
	e := setupTestEnvironment(t)

	rec := get(t, e, "/api/v1/detections/hourly?date=2024-05-01&hour=7")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]DetectionResponse](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].FrigateEvent)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/v1/detections/hourly?date=2024-05-01&hour=24").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/v1/detections/hourly?date=2024-05-01").Code)
}

func TestGetSpeciesDetections(t *testing.T) {
	e := setupTestEnvironment(t)

	rec := get(t, e, "/api/v1/detections/species?name=Cyanocitta+cristata&date=2024-05-01")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]DetectionResponse](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "e3", got[0].FrigateEvent)
	assert.InDelta(t, 0.88, got[0].Score, 1e-9)

	assert.Equal(t, http.StatusBadRequest, get(t, e, "/api/v1/detections/species?date=2024-05-01").Code)
}

func TestGetEarliestDate(t *testing.T) {
	e := setupTestEnvironment(t)

	rec := get(t, e, "/api/v1/detections/earliest")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]string](t, rec)
	assert.Equal(t, "2024-05-01", got["date"])
	assert.Equal(t, "2024-05-01T07:05:00Z", got["timestamp"])
}

// failingStore returns the same error from every query.
type failingStore struct{ err error }

func (s failingStore) RecentDetections(context.Context, int) ([]datastore.Detection, error) {
	return nil, s.err
}

func (s failingStore) DailySummary(context.Context, time.Time) ([]datastore.SpeciesDailySummary, error) {
	return nil, s.err
}

func (s failingStore) DetectionsForDateHour(context.Context, time.Time, int) ([]datastore.Detection, error) {
	return nil, s.err
}

func (s failingStore) DetectionsForNameAndDate(context.Context, string, time.Time) ([]datastore.Detection, error) {
	return nil, s.err
}

func (s failingStore) EarliestDetectionDate(context.Context) (time.Time, error) {
	return time.Time{}, s.err
}

func TestStoreErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target string
		code   int
	}{
		{"database failure", errors.Newf("disk I/O error").Category(errors.CategoryDatabase).Build(), "/api/v1/detections/recent", http.StatusInternalServerError},
		{"not found", errors.Newf("no detections").Category(errors.CategoryNotFound).Build(), "/api/v1/detections/earliest", http.StatusNotFound},
		{"validation", errors.Newf("bad hour").Category(errors.CategoryValidation).Build(), "/api/v1/detections/hourly?hour=3", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			New(e, failingStore{err: tt.err}, nil)
			rec := get(t, e, tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}
