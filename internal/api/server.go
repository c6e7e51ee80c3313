// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/environment"
	"github.com/FairForge/greenlight/internal/orchestrator"
)

// Switcher is the subset of the orchestrator the HTTP layer drives.
type Switcher interface {
	Switch(ctx context.Context, team config.Team, target environment.Environment, opts orchestrator.Options) *orchestrator.Result
	ManualRollback(ctx context.Context, team config.Team, opts orchestrator.Options) *orchestrator.Result
	Status(ctx context.Context, team config.Team) (*orchestrator.TeamStatus, error)
}

// Server exposes switch operations over HTTP for the serve mode.
type Server struct {
	mu     sync.RWMutex
	cfg    *config.Config
	orch   Switcher
	logger *zap.Logger
}

// NewServer creates an API server around an orchestrator.
func NewServer(cfg *config.Config, orch Switcher, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		orch:   orch,
		logger: logger,
	}
}

// UpdateConfig swaps the team roster, typically after a config file reload.
// Requests already in flight keep the roster they started with.
func (s *Server) UpdateConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.logger.Info("api config reloaded", zap.Int("teams", len(cfg.Teams)))
}

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Router builds the chi router with all routes registered.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Get("/healthz", s.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/teams", func(r chi.Router) {
		r.Get("/", s.ListTeams)
		r.Get("/{team}/status", s.TeamStatus)
		r.Post("/{team}/switch", s.SwitchTeam)
		r.Post("/{team}/rollback", s.RollbackTeam)
	})

	return r
}

// Healthz reports liveness of the orchestrator process itself, not of
// any Jenkins instance.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListTeams returns the configured team roster.
func (s *Server) ListTeams(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config()

	type teamSummary struct {
		Name             string `json:"name"`
		Host             string `json:"host"`
		BlueGreenEnabled bool   `json:"blue_green_enabled"`
	}

	teams := make([]teamSummary, 0, len(cfg.Teams))
	for _, t := range cfg.Teams {
		teams = append(teams, teamSummary{
			Name:             t.Name,
			Host:             t.Host,
			BlueGreenEnabled: t.BlueGreenEnabled,
		})
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"teams": teams,
		"count": len(teams),
	})
}

// TeamStatus returns persisted state, live backend state and health for
// one team.
func (s *Server) TeamStatus(w http.ResponseWriter, r *http.Request) {
	team, ok := s.team(w, r)
	if !ok {
		return
	}

	status, err := s.orch.Status(r.Context(), team)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, http.StatusOK, status)
}

type switchRequest struct {
	Target            string `json:"target"`
	Operator          string `json:"operator"`
	ReclaimStale      bool   `json:"reclaim_stale"`
	SkipPreValidation bool   `json:"skip_pre_validation"`
}

// SwitchTeam runs a blue-green switch synchronously and maps the
// terminal state to an HTTP status.
func (s *Server) SwitchTeam(w http.ResponseWriter, r *http.Request) {
	team, ok := s.team(w, r)
	if !ok {
		return
	}

	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	target, err := environment.Parse(req.Target)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}

	result := s.orch.Switch(r.Context(), team, target, orchestrator.Options{
		Operator:          req.Operator,
		ReclaimStale:      req.ReclaimStale,
		SkipPreValidation: req.SkipPreValidation,
	})

	s.respondJSON(w, statusFor(result), result)
}

type rollbackRequest struct {
	Operator string `json:"operator"`
}

// RollbackTeam reverts a team to its previous environment.
func (s *Server) RollbackTeam(w http.ResponseWriter, r *http.Request) {
	team, ok := s.team(w, r)
	if !ok {
		return
	}

	var req rollbackRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, err)
			return
		}
	}

	result := s.orch.ManualRollback(r.Context(), team, orchestrator.Options{Operator: req.Operator})

	// A manual rollback that lands in RolledBack is the success case.
	code := statusFor(result)
	if result.State == orchestrator.StateRolledBack {
		code = http.StatusOK
	}
	s.respondJSON(w, code, result)
}

func (s *Server) team(w http.ResponseWriter, r *http.Request) (config.Team, bool) {
	name := chi.URLParam(r, "team")
	team, ok := s.config().FindTeam(name)
	if !ok {
		s.respondError(w, http.StatusNotFound, fmt.Errorf("unknown team %q", name))
		return config.Team{}, false
	}
	return team, true
}

// statusFor maps terminal switch states onto HTTP codes: committed is
// OK, aborted is a client-resolvable conflict, rolled back means the
// target failed, fatal means the system needs an operator.
func statusFor(result *orchestrator.Result) int {
	switch result.State {
	case orchestrator.StateCommitted:
		return http.StatusOK
	case orchestrator.StateAborted:
		return http.StatusConflict
	case orchestrator.StateRolledBack:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("API error", zap.Error(err), zap.Int("status", status))
	s.respondJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
