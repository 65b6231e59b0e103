// Package server exposes the live hand tracking output over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/handpos/internal/detector"
	"github.com/ayusman/handpos/internal/store"
	"github.com/ayusman/handpos/internal/tracker"
)

// shutdownTimeout bounds how long Run waits for open requests on exit.
const shutdownTimeout = 5 * time.Second

// StatsSource reports the capture loop's counters.
type StatsSource interface {
	Stats() tracker.Stats
}

// Config holds the server configuration.
type Config struct {
	Hub   *Hub
	Stats StatsSource
	// Store, when set, serves recorded sessions.
	Store *store.Store
}

// Server represents the HTTP server for the hand tracker.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())

	if s.config.Hub != nil {
		s.mux.HandleFunc("/api/hands", s.handleHands)
		s.mux.Handle("/api/landmarks", NewLandmarksHandler(s.config.Hub))
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Hub))
	}

	if s.config.Store != nil {
		s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
		s.mux.HandleFunc("GET /api/sessions/{id}", s.handleSession)
		s.mux.HandleFunc("GET /api/sessions/{id}/observations", s.handleObservations)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Stats != nil {
		response["tracker"] = s.config.Stats.Stats()
	}

	writeJSON(w, http.StatusOK, response)
}

// handleHands returns the most recent observation. ?normalize=true returns
// wrist-centred, scale-free landmarks.
func (s *Server) handleHands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	obs, ok := s.config.Hub.Latest()
	if !ok {
		obs = tracker.Observation{Hands: []detector.Hand{}}
	}
	if normalize, _ := strconv.ParseBool(r.URL.Query().Get("normalize")); normalize {
		obs = normalized(obs)
	}

	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.config.Store.Sessions().List()
	if err != nil {
		log.WithError(err).Error("failed to list sessions")
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.config.Store.Sessions().GetByID(r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.WithError(err).Error("failed to get session")
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.config.Store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to get session", http.StatusInternalServerError)
		return
	}

	obs, err := s.config.Store.Observations().ListBySession(id)
	if err != nil {
		log.WithError(err).WithField("session", id).Error("failed to list observations")
		http.Error(w, "Failed to list observations", http.StatusInternalServerError)
		return
	}
	if obs == nil {
		obs = []store.Observation{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("failed to encode response")
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Long-lived stream handlers end with ctx instead of holding up
		// Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
