// Package server provides the HTTP server for the Tagsight tag detection service.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/tagsight/internal/app"
	"github.com/ayusman/tagsight/internal/detector"
	"github.com/ayusman/tagsight/internal/server/api"
	"github.com/ayusman/tagsight/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir      string
	Store          *store.Store
	Detector       detector.Detector
	App            *app.App
	ConvertWorkers int
}

// Server represents the HTTP server for the Tagsight application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	live   *LiveHandler
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
	s.mux.Handle("/api/convert", api.NewConvertHandler(s.config.ConvertWorkers))

	// Detector endpoints fall back to the app's detector
	d := s.config.Detector
	if d == nil && s.config.App != nil {
		d = s.config.App.Detector()
	}
	if d != nil {
		s.mux.Handle("/api/config", api.NewConfigHandler(d, s.config.Store))
		s.mux.Handle("/api/detect", api.NewDetectHandler(d))
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/detections/", api.NewDetectionsHandler(s.config.Store))
	}

	if s.config.App != nil {
		s.mux.Handle("/api/pipeline", api.NewPipelineHandler(s.config.App))
		s.mux.Handle("/api/stats", api.NewStatsHandler(s.config.App))
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App))

		s.live = NewLiveHandler(s.config.App)
		s.mux.Handle("/api/live", s.live)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
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

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.App != nil {
		response["pipeline"] = s.config.App.IsRunning()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// Close disconnects live clients.
func (s *Server) Close() {
	if s.live != nil {
		s.live.Close()
	}
}
