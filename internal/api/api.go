// Package api exposes the supervisor's status/control surface over HTTP:
// list worker status, start/stop/restart a camera, and a JPEG snapshot
// endpoint for the annotated frame. Wiring (chi router, request logging
// middleware) is kept from the teacher; the handlers themselves are new,
// much smaller than the teacher's RBAC-heavy API since this spec has no web
// UI, no multi-tenant auth, and no session/token surface (see spec.md's
// Non-goals).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/technosupport/cashvision/internal/middleware"
	"github.com/technosupport/cashvision/internal/supervisor"
)

// Server exposes the agent's read/control HTTP surface.
type Server struct {
	router *chi.Mux
	sup    *supervisor.Supervisor
}

// New builds a Server wired against sup. Call Router() to get the
// http.Handler to pass to http.ListenAndServe.
func New(sup *supervisor.Supervisor) *Server {
	s := &Server{router: chi.NewRouter(), sup: sup}
	s.router.Use(middleware.RequestLogger)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/cameras", s.handleListStatus)
	s.router.Post("/cameras/{cameraID}/start", s.handleStart)
	s.router.Post("/cameras/{cameraID}/stop", s.handleStop)
	s.router.Post("/cameras/{cameraID}/restart", s.handleRestart)
	s.router.Get("/cameras/{cameraID}/frame.jpg", s.handleFrame)

	return s
}

// Router returns the underlying http.Handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleListStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	if err := s.sup.Restart(cameraID); err != nil {
		// Restart fails for a camera with no tracked worker; treat that as
		// "nothing to start from config the caller already provided" — the
		// control surface only starts cameras the supervisor already knows
		// about via StartAll at boot. Returning 404 keeps this explicit.
		http.Error(w, "camera not known to supervisor; cameras are started from config at boot", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	if err := s.sup.Stop(cameraID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	if err := s.sup.Restart(cameraID); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	frame := s.sup.Frame(cameraID)
	if frame == nil {
		http.Error(w, "no frame available for camera", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(frame)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
