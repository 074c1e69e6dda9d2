package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farmndvi/internal/boundary"
	"github.com/sells-group/farmndvi/internal/model"
	"github.com/sells-group/farmndvi/internal/store"
)

type fakeSnapshots struct {
	snap   *model.FarmSnapshot
	stale  *model.FarmSnapshot
	err    error
	forced []bool
	names  []string
}

func (f *fakeSnapshots) Peek(string) (*model.FarmSnapshot, bool) {
	return f.stale, f.stale != nil
}

func (f *fakeSnapshots) Get(_ context.Context, farmID, farmName string, force bool) (*model.FarmSnapshot, error) {
	f.forced = append(f.forced, force)
	f.names = append(f.names, farmName)
	if f.err != nil {
		return nil, f.err
	}
	snap := *f.snap
	snap.FarmID = farmID
	return &snap, nil
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDay(s)
	require.NoError(t, err)
	return d
}

func testSnapshot(t *testing.T) *model.FarmSnapshot {
	series := func(vals ...float64) []model.NdviPoint {
		out := make([]model.NdviPoint, len(vals))
		for i, v := range vals {
			out[i] = model.NewPoint(day(t, "2024-01-01").AddDate(0, 0, i), v)
		}
		return out
	}
	fields := map[string]model.FieldRecord{
		"a": model.NewFieldRecord(model.FieldBoundary{ID: "a", Name: "A"}, series(0.2, 0.4, 0.8), true),
		"b": model.NewFieldRecord(model.FieldBoundary{ID: "b", Name: "B"}, series(0.6, 0.8, 0.6), false),
	}
	return &model.FarmSnapshot{
		FarmName:      "Home",
		LastUpdated:   day(t, "2024-01-03"),
		Fields:        fields,
		AverageValue:  model.AverageCurrent(fields),
		UsingRealData: true,
	}
}

func newTestServer(t *testing.T, snaps *fakeSnapshots) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(New(st, snaps, WithAllowedOrigins([]string{"http://app.example"})).Routes())
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const fieldsPayload = `{"fields":[
  {"id":"north","name":"North","crop":"Corn","boundary":[{"lat":41.0,"lng":-93.0},{"lat":41.0,"lng":-92.99},{"lat":41.01,"lng":-92.99},{"lat":41.01,"lng":-93.0}]},
  {"name":"New","boundary":[{"lat":42.0,"lng":-93.0},{"lat":42.0,"lng":-92.99},{"lat":42.01,"lng":-92.99}]}
]}`

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{})

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFields_Lifecycle(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{})
	base := srv.URL + "/api/farms/farm-1/fields"

	resp := do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPut, base, fieldsPayload)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decode[boundary.Response](t, resp)
	require.Len(t, saved.Fields, 2)
	assert.NotEmpty(t, saved.Fields[1].ID)

	resp = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[boundary.Response](t, resp)
	require.Len(t, listed.Fields, 2)
	for _, f := range listed.Fields {
		require.NotNil(t, f.AreaHectares, f.ID)
		assert.Greater(t, *f.AreaHectares, 0.0)
	}

	resp = do(t, http.MethodDelete, base+"/north", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodDelete, base+"/north", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFields_ServedToLocalProvider(t *testing.T) {
	srv, st := newTestServer(t, &fakeSnapshots{})
	_, err := st.UpsertFields(context.Background(), "farm-1", boundary.Samples("farm-1"))
	require.NoError(t, err)

	res := boundary.NewResolver([]boundary.Provider{boundary.NewLocalProvider(srv.URL, nil)}).
		Resolve(context.Background(), "farm-1")
	assert.True(t, res.Real)
	assert.Equal(t, "local", res.Source)
	assert.Len(t, res.Fields, 2)
}

func TestFields_RejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{})
	base := srv.URL + "/api/farms/farm-1/fields"

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"fields":`},
		{"too few vertices", `{"fields":[{"id":"a","boundary":[{"lat":1,"lng":1},{"lat":2,"lng":2}]}]}`},
		{"out of range", `{"fields":[{"id":"a","boundary":[{"lat":91,"lng":1},{"lat":2,"lng":2},{"lat":3,"lng":1}]}]}`},
		{"duplicate ids", `{"fields":[
			{"id":"a","boundary":[{"lat":1,"lng":1},{"lat":2,"lng":2},{"lat":3,"lng":1}]},
			{"id":"a","boundary":[{"lat":1,"lng":1},{"lat":2,"lng":2},{"lat":3,"lng":1}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPut, base, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{snap: testSnapshot(t)}
	srv, _ := newTestServer(t, snaps)

	resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/ndvi?name=Home", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[model.FarmSnapshot](t, resp)
	assert.Equal(t, "farm-1", got.FarmID)
	assert.InDelta(t, 0.7, got.AverageValue, 1e-9)
	assert.Equal(t, model.HealthExcellent, got.Fields["a"].CurrentHealth)
	assert.Equal(t, []bool{false}, snaps.forced)
	assert.Equal(t, []string{"Home"}, snaps.names)

	resp = do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/ndvi?refresh=true&date=2024-01-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got = decode[model.FarmSnapshot](t, resp)
	assert.InDelta(t, 0.4, got.Fields["a"].CurrentValue, 1e-9)
	assert.InDelta(t, 0.6, got.AverageValue, 1e-9)
	assert.Equal(t, []bool{false, true}, snaps.forced)
}

func TestSnapshot_BadParams(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{snap: testSnapshot(t)})

	for _, q := range []string{"date=01-02-2024", "refresh=maybe"} {
		resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/ndvi?"+q, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestSnapshot_Unavailable(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{err: eris.Wrap(context.DeadlineExceeded, "aggregate")})

	resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/ndvi", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSnapshot_StaleOnRebuildFailure(t *testing.T) {
	stale := testSnapshot(t)
	stale.FarmID = "farm-1"
	srv, _ := newTestServer(t, &fakeSnapshots{stale: stale, err: eris.New("imagery: circuit breaker is open")})

	resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/ndvi", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(staleHeader))
	got := decode[model.FarmSnapshot](t, resp)
	assert.Equal(t, "farm-1", got.FarmID)
	assert.Len(t, got.Fields, 2)

	resp = do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/fields/b/series", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get(staleHeader))
}

func TestSnapshot_FreshHasNoStaleHeader(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{snap: testSnapshot(t)})

	resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/ndvi", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(staleHeader))
	_ = decode[model.FarmSnapshot](t, resp)
}

func TestSeries(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{snap: testSnapshot(t)})

	resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/fields/a/series?from=2024-01-02", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[seriesResponse](t, resp)
	assert.Equal(t, "a", got.FieldID)
	assert.True(t, got.IsRealData)
	require.Len(t, got.Series, 2)
	assert.True(t, got.Series[0].Date.Equal(day(t, "2024-01-02")))

	resp = do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/fields/zzz/series", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/fields/a/series?to=tomorrow", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{snap: testSnapshot(t)})

	resp := do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/fields/b/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[statsResponse](t, resp)
	assert.Equal(t, "b", got.FieldID)
	assert.False(t, got.IsRealData)
	assert.Equal(t, 3, got.Count)
	assert.InDelta(t, 0.6, got.Min, 1e-9)
	assert.InDelta(t, 0.8, got.Max, 1e-9)
	require.Len(t, got.Zones, 2)
	assert.Equal(t, 2, got.Zones[0].Count)
	assert.Equal(t, 1, got.Zones[1].Count)

	resp = do(t, http.MethodGet, srv.URL+"/api/farms/farm-1/fields/b/stats?from=2025-01-01", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSnapshots{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/farms/farm-1/fields", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "http://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
