// Package server exposes the HTTP surface: a status page, health and
// status endpoints, the manual check trigger, and the team directory.
package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"tempo-notifier/pkg/approval"
)

//go:embed tmpl/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "tmpl/*.tmpl"))

// RunCheck performs one full check and returns its result.
type RunCheck func(ctx context.Context) approval.Result

// Store is the persistence surface the handlers read from.
type Store interface {
	LoadState(ctx context.Context) (*approval.State, error)
	History(ctx context.Context, limit int) ([]*approval.Result, error)
}

// TeamSource lists the known Tempo teams.
type TeamSource interface {
	Teams(ctx context.Context) ([]approval.Team, error)
}

// Server handles HTTP requests.
type Server struct {
	run      RunCheck
	inFlight *atomic.Bool
	store    Store
	teams    TeamSource
	logger   *slog.Logger
	baseURL  string
	teamID   int
}

// Config holds server configuration.
type Config struct {
	Run      RunCheck
	InFlight *atomic.Bool
	Store    Store
	Teams    TeamSource
	Logger   *slog.Logger
	BaseURL  string
	TeamID   int
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		run:      cfg.Run,
		inFlight: cfg.InFlight,
		store:    cfg.Store,
		teams:    cfg.Teams,
		logger:   cfg.Logger,
		baseURL:  cfg.BaseURL,
		teamID:   cfg.TeamID,
	}
}

// Routes returns the handler with all endpoints registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/checkz", s.handleCheck)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/teams", s.handleTeams)
	return mux
}

// ListenAndServe starts the server on the given port.
func (s *Server) ListenAndServe(port string) error {
	// Timeouts prevent resource exhaustion; the check endpoint can run for
	// minutes, hence the long write timeout.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Routes(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}
