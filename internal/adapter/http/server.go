// Package http exposes the engine over HTTP: health and metrics probes,
// read-only views of the current frame, and the write endpoints that
// stage telemetry and toggle the visibility signal.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/space-weather-engine/internal/domain"
	"github.com/couchcryptid/space-weather-engine/internal/engine"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds request bodies. Trajectories of 10000 samples fit.
const maxBodyBytes = 4 << 20

// Engine is the part of the engine the HTTP surface drives.
type Engine interface {
	Snapshot() *engine.Snapshot
	State() engine.State
	SetVisible(visible bool)
	StagePatch(p domain.ParameterPatch) error
	StageTrajectory(traj domain.OrbitTrajectory) error
}

// OrbitFetcher computes a trajectory for orbital parameters.
type OrbitFetcher interface {
	Fetch(ctx context.Context, params domain.OrbitalParameters) (domain.OrbitTrajectory, error)
}

// Deps are the collaborators behind the routes. Orbits and Stream are
// optional; their routes answer 503 when unset.
type Deps struct {
	Engine Engine
	Ready  sharedobs.ReadinessChecker
	Orbits OrbitFetcher
	Stream http.Handler
}

// Server exposes the engine's HTTP routes.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with probe, metrics and /api/v1 routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/frame", s.handleFrame)
	mux.HandleFunc("GET /api/v1/fieldlines", s.handleFieldLines)
	mux.HandleFunc("GET /api/v1/aurora", s.handleAurora)
	mux.HandleFunc("GET /api/v1/visibility", s.handleGetVisibility)
	mux.HandleFunc("PUT /api/v1/visibility", s.handleSetVisibility)
	mux.HandleFunc("POST /api/v1/parameters", s.handleParameters)
	mux.HandleFunc("POST /api/v1/trajectory", s.handleTrajectory)
	mux.HandleFunc("POST /api/v1/orbit", s.handleOrbit)
	if deps.Stream != nil {
		mux.Handle("GET /api/v1/stream", deps.Stream)
	} else {
		mux.HandleFunc("GET /api/v1/stream", func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusServiceUnavailable, errors.New("frame stream disabled"))
		})
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Engine.Snapshot())
}

func (s *Server) handleFieldLines(w http.ResponseWriter, _ *http.Request) {
	set := s.deps.Engine.Snapshot().FieldLines
	if set == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no field lines generated"))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, set)
}

func (s *Server) handleAurora(w http.ResponseWriter, _ *http.Request) {
	kp := s.deps.Engine.Snapshot().Parameters.KpIndex
	sharedobs.WriteJSON(w, http.StatusOK, domain.AuroralOvalFor(kp))
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

type visibilityResponse struct {
	State engine.State `json:"state"`
}

func (s *Server) handleGetVisibility(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, visibilityResponse{State: s.deps.Engine.State()})
}

func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, errors.New(`"visible" is required`))
		return
	}
	s.deps.Engine.SetVisible(*req.Visible)
	sharedobs.WriteJSON(w, http.StatusOK, visibilityResponse{State: s.deps.Engine.State()})
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	var patch domain.ParameterPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	if err := s.deps.Engine.StagePatch(patch); err != nil {
		writeStageError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "staged"})
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	var traj domain.OrbitTrajectory
	if !decodeBody(w, r, &traj) {
		return
	}
	if err := s.deps.Engine.StageTrajectory(traj); err != nil {
		writeStageError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, trajectoryResponse{Status: "staged", Points: traj.Len()})
}

type trajectoryResponse struct {
	Status string `json:"status"`
	Points int    `json:"points"`
}

// handleOrbit fetches a trajectory for the posted orbital parameters and
// stages it. Omitted fields take the defaults of the trajectory form.
func (s *Server) handleOrbit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Orbits == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("orbit provider disabled"))
		return
	}
	params := domain.DefaultOrbitalParameters()
	if !decodeBody(w, r, &params) {
		return
	}
	if err := params.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	traj, err := s.deps.Orbits.Fetch(r.Context(), params)
	if err != nil {
		s.logger.Warn("orbit fetch failed", "error", err, "semi_major_axis", params.SemiMajorAxisKm)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if err := s.deps.Engine.StageTrajectory(traj); err != nil {
		writeStageError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, trajectoryResponse{Status: "staged", Points: traj.Len()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeStageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, domain.ErrEmptyPatch):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
