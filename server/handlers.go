package server

import (
	"encoding/json"
	"net/http"

	"tempo-notifier/teams"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'")

	state, err := s.store.LoadState(r.Context())
	if err != nil {
		s.logger.Error("Failed to load state for status page", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := map[string]any{
		"TeamID":       s.teamID,
		"LastCheck":    state.LastCheck,
		"ProblemUsers": state.ProblemUsers,
		"ApprovalsURL": s.baseURL,
		"Checking":     s.inFlight.Load(),
	}

	if err := templates.ExecuteTemplate(w, "index.tmpl", data); err != nil {
		s.logger.Error("Failed to render template", "template", "index.tmpl", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleCheck runs a check on demand. Only one check may be in flight at a
// time; concurrent triggers get 409 rather than a second parsing tab.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("Check trigger rejected: already in flight")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		s.writeJSON(w, map[string]string{"status": "busy"})
		return
	}
	defer s.inFlight.Store(false)

	s.logger.Info("Check endpoint triggered")
	result := s.run(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !result.Success {
		w.WriteHeader(http.StatusBadGateway)
	}
	s.writeJSON(w, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := s.store.LoadState(r.Context())
	if err != nil {
		s.logger.Error("Failed to load state", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	history, err := s.store.History(r.Context(), 10)
	if err != nil {
		s.logger.Warn("Failed to load check history", "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, map[string]any{
		"teamId":   s.teamID,
		"checking": s.inFlight.Load(),
		"state":    state,
		"history":  history,
	})
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := s.teams.Teams(r.Context())
	if err != nil {
		s.logger.Error("Failed to list teams", "error", err)
		http.Error(w, "Teams unavailable", http.StatusBadGateway)
		return
	}

	list = teams.Filter(list, r.URL.Query().Get("q"))

	w.Header().Set("Content-Type", "application/json")
	s.writeJSON(w, map[string]any{"teams": list, "count": len(list)})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
