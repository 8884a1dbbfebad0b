package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/couchcryptid/space-weather-engine/internal/adapter/http"
	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/engine"
	"github.com/couchcryptid/space-weather-engine/internal/fieldlines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type stubOrbits struct {
	traj   domain.OrbitTrajectory
	err    error
	params domain.OrbitalParameters
	calls  int
}

func (s *stubOrbits) Fetch(_ context.Context, p domain.OrbitalParameters) (domain.OrbitTrajectory, error) {
	s.calls++
	s.params = p
	return s.traj, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(domain.DefaultParameters(), engine.Options{
		Rand:   rand.New(rand.NewPCG(7, 8)),
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func newTestServer(t *testing.T, deps httpadapter.Deps) *httpadapter.Server {
	t.Helper()
	if deps.Engine == nil {
		deps.Engine = newEngine(t)
	}
	if deps.Ready == nil {
		deps.Ready = &mockReadiness{}
	}
	return httpadapter.NewServer(":0", deps, discardLogger())
}

func do(srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthzReturns200(t *testing.T) {
	srv := newTestServer(t, httpadapter.Deps{})

	rec := do(srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	ready := do(newTestServer(t, httpadapter.Deps{}), http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, ready.Code)

	notReady := do(newTestServer(t, httpadapter.Deps{Ready: &mockReadiness{err: fmt.Errorf("not ready yet")}}),
		http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, notReady.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(newTestServer(t, httpadapter.Deps{}), http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestFrame(t *testing.T) {
	e := newEngine(t)
	_, err := e.Tick()
	require.NoError(t, err)
	srv := newTestServer(t, httpadapter.Deps{Engine: e})

	rec := do(srv, http.MethodGet, "/api/v1/frame", "")

	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[engine.Snapshot](t, rec)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.InDelta(t, 1.0, snap.Compression, 0)
	assert.Equal(t, 100, snap.Particles.Len())
}

func TestFieldLines(t *testing.T) {
	srv := newTestServer(t, httpadapter.Deps{})

	rec := do(srv, http.MethodGet, "/api/v1/fieldlines", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var set struct {
		Compression float64 `json:"compression"`
		Lines       []struct {
			Hemisphere string `json:"hemisphere"`
			Points     []domain.Vec3
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &set))
	assert.InDelta(t, 1.0, set.Compression, 0)
	require.Len(t, set.Lines, fieldlines.LineCount)
	assert.Equal(t, "north", set.Lines[0].Hemisphere)
	assert.Equal(t, "south", set.Lines[1].Hemisphere)
	assert.Len(t, set.Lines[0].Points, fieldlines.PointsPerLine)
}

func TestAurora(t *testing.T) {
	e := newEngine(t)
	kp := 5.0
	require.NoError(t, e.StagePatch(domain.ParameterPatch{KpIndex: &kp}))
	_, err := e.Tick()
	require.NoError(t, err)
	srv := newTestServer(t, httpadapter.Deps{Engine: e})

	rec := do(srv, http.MethodGet, "/api/v1/aurora", "")

	require.Equal(t, http.StatusOK, rec.Code)
	oval := decode[domain.AuroralOval](t, rec)
	assert.InDelta(t, 5.0, oval.KpIndex, 0)
	assert.Len(t, oval.North, 37)
	assert.InDelta(t, 57.0, oval.North[18].Lat, 1e-9)
}

func TestVisibility(t *testing.T) {
	e := newEngine(t)
	srv := newTestServer(t, httpadapter.Deps{Engine: e})

	rec := do(srv, http.MethodPut, "/api/v1/visibility", `{"visible":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.StateSuspended, e.State())

	rec = do(srv, http.MethodGet, "/api/v1/visibility", "")
	assert.Equal(t, `{"state":"suspended"}`, strings.TrimSpace(rec.Body.String()))

	rec = do(srv, http.MethodPut, "/api/v1/visibility", `{"visible":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.StateActive, e.State())

	rec = do(srv, http.MethodPut, "/api/v1/visibility", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParameters(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"speed and kp", `{"solar_wind_speed_km_s":700,"kp_index":4}`, http.StatusAccepted},
		{"speed only", `{"solar_wind_speed_km_s":300}`, http.StatusAccepted},
		{"empty patch", `{}`, http.StatusBadRequest},
		{"malformed json", `{"solar_wind_speed_km_s":`, http.StatusBadRequest},
		{"unknown field", `{"speed":700}`, http.StatusBadRequest},
		{"negative speed", `{"solar_wind_speed_km_s":-1}`, http.StatusUnprocessableEntity},
		{"kp out of range", `{"kp_index":12}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, httpadapter.Deps{})
			rec := do(srv, http.MethodPost, "/api/v1/parameters", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestParameters_AppliedOnNextTick(t *testing.T) {
	e := newEngine(t)
	srv := newTestServer(t, httpadapter.Deps{Engine: e})

	rec := do(srv, http.MethodPost, "/api/v1/parameters", `{"solar_wind_speed_km_s":1000}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.InDelta(t, 1.0, e.Snapshot().Compression, 0)

	_, err := e.Tick()
	require.NoError(t, err)
	assert.InDelta(t, 1.5, e.Snapshot().Compression, 0)
}

func TestParameters_ClosedEngine(t *testing.T) {
	e := newEngine(t)
	e.Close()
	srv := newTestServer(t, httpadapter.Deps{Engine: e})

	rec := do(srv, http.MethodPost, "/api/v1/parameters", `{"kp_index":2}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTrajectory(t *testing.T) {
	e := newEngine(t)
	srv := newTestServer(t, httpadapter.Deps{Engine: e})

	rec := do(srv, http.MethodPost, "/api/v1/trajectory",
		`{"positions":{"x":[7000,0],"y":[0,7000],"z":[0,0]},"earth_radius":6371}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `{"status":"staged","points":2}`, strings.TrimSpace(rec.Body.String()))

	rec = do(srv, http.MethodPost, "/api/v1/trajectory", `{"positions":{"x":[1,2],"y":[1],"z":[1,2]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	_, err := e.Tick()
	require.NoError(t, err)
	assert.Equal(t, 2, e.Snapshot().OrbitLength)
}

func TestOrbit(t *testing.T) {
	e := newEngine(t)
	orbits := &stubOrbits{traj: domain.OrbitTrajectory{
		Positions:         domain.Positions{X: []float64{1, 2, 3}, Y: []float64{0, 0, 0}, Z: []float64{0, 0, 0}},
		EarthRadiusMeters: 6371,
	}}
	srv := newTestServer(t, httpadapter.Deps{Engine: e, Orbits: orbits})

	rec := do(srv, http.MethodPost, "/api/v1/orbit", `{"semi_major_axis":9000}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	want := domain.DefaultOrbitalParameters()
	want.SemiMajorAxisKm = 9000
	assert.Equal(t, want, orbits.params)

	_, err := e.Tick()
	require.NoError(t, err)
	assert.Equal(t, 3, e.Snapshot().OrbitLength)
}

func TestOrbit_Errors(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		rec := do(newTestServer(t, httpadapter.Deps{}), http.MethodPost, "/api/v1/orbit", `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
	t.Run("out of range", func(t *testing.T) {
		orbits := &stubOrbits{}
		rec := do(newTestServer(t, httpadapter.Deps{Orbits: orbits}), http.MethodPost, "/api/v1/orbit", `{"eccentricity":0.95}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Zero(t, orbits.calls)
	})
	t.Run("upstream failure", func(t *testing.T) {
		orbits := &stubOrbits{err: errors.New("connection refused")}
		rec := do(newTestServer(t, httpadapter.Deps{Orbits: orbits}), http.MethodPost, "/api/v1/orbit", `{}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestStreamDisabled(t *testing.T) {
	rec := do(newTestServer(t, httpadapter.Deps{}), http.MethodGet, "/api/v1/stream", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAllReady(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, httpadapter.AllReady{&mockReadiness{}, &mockReadiness{}}.CheckReadiness(ctx))

	boom := errors.New("pipeline idle")
	err := httpadapter.AllReady{&mockReadiness{}, &mockReadiness{err: boom}}.CheckReadiness(ctx)
	require.ErrorIs(t, err, boom)
}

func TestResponsesAreJSON(t *testing.T) {
	srv := newTestServer(t, httpadapter.Deps{})

	ok := do(srv, http.MethodGet, "/api/v1/aurora", "")
	assert.Equal(t, "application/json", ok.Header().Get("Content-Type"))

	bad := do(srv, http.MethodPost, "/api/v1/parameters", `{}`)
	assert.Equal(t, "application/json", bad.Header().Get("Content-Type"))
	body := decode[map[string]string](t, bad)
	assert.Contains(t, body["error"], "no values")
}
