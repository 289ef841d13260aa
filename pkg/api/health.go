package api

import (
	"net/http"
	"time"
)

// healthResponse is the payload for GET /health: a liveness probe that only
// confirms the process is serving requests.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Timestamp: time.Now()})
}

// readyResponse is the payload for GET /ready: a readiness probe reporting
// whether the registry cache is reachable, so an orchestrator can tell "the
// process started" apart from "it can actually serve /packages".
type readyResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for _, reg := range s.registries {
		if _, err := reg.Entries(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "not ready", Message: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, readyResponse{Status: "ready"})
}
