package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/store"
)

type fakeStore struct {
	mu           sync.Mutex
	trips        []model.StoredTrip
	summary      store.Summary
	zones        []string
	speeds       []store.SpeedRow
	err          error
	lastFilter   store.Filter
	lastPage     store.Page
	summaryCalls int
}

func (f *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (f *fakeStore) LoadTrips(ctx context.Context, trips []model.StoredTrip) (int64, error) {
	return int64(len(trips)), nil
}

func (f *fakeStore) RecordCleaningOperations(ctx context.Context, ops []model.CleaningOperation) error {
	return nil
}

func (f *fakeStore) CountTrips(ctx context.Context) (int64, error) {
	return int64(len(f.trips)), nil
}

func (f *fakeStore) ListTrips(ctx context.Context, filter store.Filter, page store.Page) ([]model.StoredTrip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter, f.lastPage = filter, page
	if err := page.Validate(); err != nil {
		return nil, err
	}
	return f.trips, f.err
}

func (f *fakeStore) Summary(ctx context.Context, filter store.Filter) (store.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryCalls++
	f.lastFilter = filter
	return f.summary, f.err
}

func (f *fakeStore) PickupZones(ctx context.Context, filter store.Filter) ([]string, error) {
	return f.zones, f.err
}

func (f *fakeStore) Speeds(ctx context.Context, filter store.Filter) ([]store.SpeedRow, error) {
	return f.speeds, f.err
}

func (f *fakeStore) Close() error { return nil }

func testConfig() *config.APIConfig {
	return &config.APIConfig{
		Addr:            ":0",
		GinMode:         gin.TestMode,
		CORSOrigins:     []string{"*"},
		CacheSize:       16,
		CacheTTL:        time.Minute,
		DefaultLimit:    100,
		MaxLimit:        1000,
		DefaultTopK:     10,
		QueryThreshold:  3.5,
		MaxAnomalies:    500,
		ShutdownTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, st *fakeStore, cfg *config.APIConfig) *Server {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	s, err := NewServer(st, cfg, nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func get(t *testing.T, s *Server, target string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(nil, testConfig(), nil, zap.NewNop())
	assert.Error(t, err)
	_, err = NewServer(&fakeStore{}, nil, nil, zap.NewNop())
	assert.Error(t, err)
	_, err = NewServer(&fakeStore{}, testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestHealthAndRequestID(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, nil)

	w := get(t, s, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = get(t, s, "/api/health", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, nil)
	w := get(t, s, "/api/health", "Origin", "http://localhost:3000")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestListTrips(t *testing.T) {
	st := &fakeStore{trips: []model.StoredTrip{
		{RowID: "r1", PickupDatetime: "2024-01-01 00:00:00", SpeedKmh: model.Float64(20)},
	}}
	s := newTestServer(t, st, nil)

	w := get(t, s, "/api/trips?start=2024-01-01&end=2024-01-02")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.Page{Limit: 100, Offset: 0}, st.lastPage)
	assert.Equal(t, store.Filter{Start: "2024-01-01", End: "2024-01-02"}, st.lastFilter)

	var trips []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trips))
	require.Len(t, trips, 1)
	assert.Equal(t, "r1", trips[0]["rowid"])
	assert.Equal(t, 20.0, trips[0]["speed_kmh"])
	assert.Nil(t, trips[0]["fare_amount"])

	get(t, s, "/api/trips?limit=5000&offset=10")
	assert.Equal(t, store.Page{Limit: 1000, Offset: 10}, st.lastPage)
}

func TestListTripsEmptyIsArray(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, nil)
	w := get(t, s, "/api/trips")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestListTripsBadParameters(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, nil)

	for _, target := range []string{"/api/trips?limit=abc", "/api/trips?offset=1.5", "/api/trips?offset=-1"} {
		w := get(t, s, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, "invalid_parameter", decodeError(t, w), target)
	}
}

func TestSummaryMetricsRoundsAndCaches(t *testing.T) {
	st := &fakeStore{summary: store.Summary{
		Trips:        3,
		AvgSpeedKmh:  model.Float64(19.34567),
		AvgFarePerKm: model.Float64(3.125),
		TotalFare:    model.Float64(42.004),
	}}
	s := newTestServer(t, st, nil)

	for i := 0; i < 2; i++ {
		w := get(t, s, "/api/summary/metrics?start=2024-01-01")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"trips":3,"avg_speed_kmh":19.35,"avg_fare_per_km":3.13,"total_fare":42}`, w.Body.String())
	}
	assert.Equal(t, 1, st.summaryCalls)

	get(t, s, "/api/summary/metrics?start=2024-02-01")
	assert.Equal(t, 2, st.summaryCalls)
}

func TestSummaryMetricsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.CacheTTL = 0
	st := &fakeStore{}
	s := newTestServer(t, st, cfg)

	w := get(t, s, "/api/summary/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trips":0,"avg_speed_kmh":null,"avg_fare_per_km":null,"total_fare":null}`, w.Body.String())

	get(t, s, "/api/summary/metrics")
	assert.Equal(t, 2, st.summaryCalls)
}

func TestTopPickups(t *testing.T) {
	st := &fakeStore{zones: []string{"A", "B", "A", "C", "B", "A"}}
	s := newTestServer(t, st, nil)

	w := get(t, s, "/api/summary/top-pickups?k=2")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"zone":"A","count":3},{"zone":"B","count":2}]`, w.Body.String())

	w = get(t, s, "/api/summary/top-pickups")
	require.Equal(t, http.StatusOK, w.Code)
	var all []ZoneCount
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	w = get(t, s, "/api/summary/top-pickups?k=0")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = get(t, s, "/api/summary/top-pickups?k=-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = get(t, s, "/api/summary/top-pickups?k=two")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnomalies(t *testing.T) {
	st := &fakeStore{speeds: []store.SpeedRow{
		{RowID: "r1", SpeedKmh: 10},
		{RowID: "r2", SpeedKmh: 11},
		{RowID: "r3", SpeedKmh: 9},
		{RowID: "r4", SpeedKmh: 10},
		{RowID: "r5", SpeedKmh: 200},
	}}
	s := newTestServer(t, st, nil)

	w := get(t, s, "/api/insights/anomalies")
	require.Equal(t, http.StatusOK, w.Code)
	var flagged []AnomalyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flagged))
	require.Len(t, flagged, 1)
	assert.Equal(t, "r5", flagged[0].RowID)
	assert.Equal(t, 200.0, flagged[0].SpeedKmh)
	assert.InDelta(t, 0.6745*190, flagged[0].Z, 1e-9)

	w = get(t, s, "/api/insights/anomalies?z=0")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flagged))
	assert.Len(t, flagged, 5)

	w = get(t, s, "/api/insights/anomalies?z=abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAnomaliesAreCapped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAnomalies = 2
	st := &fakeStore{}
	for i := 0; i < 10; i++ {
		st.speeds = append(st.speeds, store.SpeedRow{RowID: "r", SpeedKmh: float64(i)})
	}
	s := newTestServer(t, st, cfg)

	w := get(t, s, "/api/insights/anomalies?z=0")
	var flagged []AnomalyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &flagged))
	assert.Len(t, flagged, 2)
}

func TestStoreErrors(t *testing.T) {
	st := &fakeStore{err: errors.New("database is locked")}
	s := newTestServer(t, st, nil)

	for _, target := range []string{"/api/trips", "/api/summary/metrics", "/api/summary/top-pickups", "/api/insights/anomalies"} {
		w := get(t, s, target)
		assert.Equal(t, http.StatusInternalServerError, w.Code, target)
		assert.Equal(t, "store_error", decodeError(t, w), target)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeStore{}, nil)
	get(t, s, "/api/health")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tripclean_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>trips</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	cfg := testConfig()
	cfg.StaticDir = dir
	s := newTestServer(t, &fakeStore{}, cfg)

	w := get(t, s, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>trips</h1>")

	w = get(t, s, "/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "console.log"))

	w = get(t, s, "/missing.css")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, s, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w))
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Addr = "127.0.0.1:0"
	s := newTestServer(t, &fakeStore{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
