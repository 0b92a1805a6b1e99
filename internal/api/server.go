// Package api exposes the administrative HTTP surface: exchange
// registration and manual failover, circuit reset, profile/device/rule
// management, and read-only stats/health snapshots. It replaces the
// gRPC/long-polling surface the original transport used, since this
// exercise's code generation pipeline (buf/protoc) isn't reproducible here.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/atsv3/resilience-core/internal/breaker"
	"github.com/atsv3/resilience-core/internal/domain"
	"github.com/atsv3/resilience-core/internal/executor"
	"github.com/atsv3/resilience-core/internal/failover"
	"github.com/atsv3/resilience-core/internal/health"
	"github.com/atsv3/resilience-core/internal/recorder"
	"github.com/atsv3/resilience-core/internal/repo"
)

// Server wires every administrative dependency behind a chi.Router.
type Server struct {
	users     repo.UserRepo
	devices   repo.DeviceRepo
	prober    *health.Prober
	failover  *failover.Controller
	breakers  *breaker.Manager
	executor  *executor.Executor
	recorder  *recorder.Recorder
	log       *slog.Logger
}

func NewServer(users repo.UserRepo, devices repo.DeviceRepo, prober *health.Prober, fc *failover.Controller, breakers *breaker.Manager, exec *executor.Executor, rec *recorder.Recorder, log *slog.Logger) *Server {
	return &Server{
		users:    users,
		devices:  devices,
		prober:   prober,
		failover: fc,
		breakers: breakers,
		executor: exec,
		recorder: rec,
		log:      log,
	}
}

// Router builds the chi.Router serving every administrative route.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleLiveness)
	r.Get("/stats", s.handleStats)

	r.Route("/exchanges", func(r chi.Router) {
		r.Get("/", s.handleListExchangeHealth)
		r.Post("/{exchangeID}/register", s.handleRegisterExchange)
		r.Post("/{exchangeID}/failover", s.handleManualFailover)
		r.Post("/{exchangeID}/circuit/reset", s.handleCircuitReset)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/", s.handleGetProfile)
		r.Put("/", s.handlePutProfile)
		r.Delete("/", s.handleDeleteProfile)
		r.Post("/devices", s.handleRegisterDevice)
	})

	return r
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"executor": s.executor.Stats(),
		"recorder": s.recorder.Stats(),
	})
}

func (s *Server) handleListExchangeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prober.Snapshot())
}

type registerExchangeRequest struct {
	Priority int `json:"priority"`
}

func (s *Server) handleRegisterExchange(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")
	var req registerExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.failover.Register(exchangeID, req.Priority)
	writeJSON(w, http.StatusAccepted, map[string]string{"exchange_id": exchangeID})
}

func (s *Server) handleManualFailover(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")
	if !s.failover.ManualFailover(exchangeID) {
		writeError(w, http.StatusConflict, domain.ErrNoAvailableExchange)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"primary": exchangeID})
}

func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")
	s.breakers.Reset(exchangeID)
	writeJSON(w, http.StatusOK, map[string]string{"exchange_id": exchangeID, "state": string(domain.CircuitClosed)})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	profile, ok, err := s.users.Load(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrInvalidRecipient)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var profile domain.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	profile.UserID = userID
	if err := s.users.Save(r.Context(), profile); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.users.Delete(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var device domain.Device
	if err := json.NewDecoder(r.Body).Decode(&device); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	device.UserID = userID
	if err := s.devices.Register(r.Context(), device); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
