package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/modelingevolution/autoupdater/pkg/registry"
	"github.com/modelingevolution/autoupdater/pkg/types"
)

// Server is the Control API (C11): a narrow JSON-over-HTTP surface for
// listing configured packages, querying upgrade availability, and
// triggering updates. Unlike the teacher's gRPC+mTLS WarrenAPI, this
// system coordinates a single process with a single host per package, so
// a generated protobuf service buys nothing a plain handler doesn't
// already give it — see DESIGN.md for the full comparison.
//
// A process may run one Reconciler per distinct package host (each with
// its own Remote Executor and SSH session pool, per §4.1), so Server
// fans every handler out across all of them rather than assuming a
// single shared host.
type Server struct {
	registries []*registry.Reconciler
	logger     zerolog.Logger
	http       *http.Server
}

// NewServer wires handlers for the endpoints in §4.11 onto a ServeMux and
// returns a Server ready to Start. regs is typically one Reconciler per
// distinct host its packages are deployed to.
func NewServer(addr string, regs []*registry.Reconciler, logger zerolog.Logger) *Server {
	s := &Server{registries: regs, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /packages", s.handlePackages)
	mux.HandleFunc("GET /upgrades/{name}", s.handleUpgrade)
	mux.HandleFunc("POST /update/{name}", s.handleUpdate)
	mux.HandleFunc("POST /update-all", s.handleUpdateAll)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins serving in the background. It returns once the listener is
// bound; Serve errors other than a clean shutdown are logged, not returned,
// since they surface after the caller has moved on.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", s.http.Addr).Msg("control API listening")
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("control API server stopped unexpectedly")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type packageSummary struct {
	Name           string `json:"name"`
	RepositoryURL  string `json:"repositoryUrl"`
	CurrentVersion string `json:"currentVersion"`
	LastChecked    string `json:"lastChecked,omitempty"`
	Status         string `json:"status"`
}

func (s *Server) handlePackages(w http.ResponseWriter, r *http.Request) {
	summaries := make([]packageSummary, 0)

	for _, reg := range s.registries {
		entries, err := reg.Entries()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read registry cache")
			return
		}
		byName := make(map[string]types.RegistryEntry, len(entries))
		for _, e := range entries {
			byName[e.PackageName] = e
		}

		for _, pkg := range reg.Packages() {
			summary := packageSummary{Name: pkg.Name, RepositoryURL: pkg.RepositoryURL, Status: "Unknown", CurrentVersion: "-"}
			if e, ok := byName[pkg.Name]; ok {
				summary.CurrentVersion = e.CurrentVersion.String()
				summary.LastChecked = e.LastChecked.UTC().Format(time.RFC3339)
				summary.Status = e.LastStatus
			}
			summaries = append(summaries, summary)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"packages": summaries})
}

// findRegistry returns the Reconciler owning the named package.
func (s *Server) findRegistry(name string) (*registry.Reconciler, bool) {
	for _, reg := range s.registries {
		for _, pkg := range reg.Packages() {
			if pkg.Name == name {
				return reg, true
			}
		}
	}
	return nil, false
}

type upgradeResponse struct {
	PackageName      string `json:"packageName"`
	CurrentVersion   string `json:"currentVersion"`
	AvailableVersion string `json:"availableVersion"`
	UpgradeAvailable bool   `json:"upgradeAvailable"`
	Changelog        string `json:"changelog"`
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	reg, found := s.findRegistry(name)
	if !found {
		writeError(w, http.StatusNotFound, "unknown package: "+name)
		return
	}
	current, available, found, err := reg.UpgradeInfo(r.Context(), name)
	if !found {
		writeError(w, http.StatusNotFound, "unknown package: "+name)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, upgradeResponse{
		PackageName:      name,
		CurrentVersion:   current.String(),
		AvailableVersion: available.String(),
		UpgradeAvailable: !available.IsEmpty() && available.GreaterThan(current),
	})
}

type updateResponse struct {
	PackageName string `json:"packageName"`
	UpdateID    string `json:"updateId,omitempty"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	reg, found := s.findRegistry(name)
	if !found {
		writeError(w, http.StatusNotFound, "unknown package: "+name)
		return
	}

	updateID, busy, found := reg.TriggerUpdate(r.Context(), name)
	switch {
	case !found:
		writeError(w, http.StatusNotFound, "unknown package: "+name)
	case busy:
		writeJSON(w, http.StatusConflict, updateResponse{PackageName: name, Status: "busy", Message: "an update for this package is already in progress"})
	default:
		writeJSON(w, http.StatusAccepted, updateResponse{PackageName: name, UpdateID: updateID, Status: "started"})
	}
}

func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	started := make([]string, 0)
	skipped := make([]string, 0)

	for _, reg := range s.registries {
		for _, pkg := range reg.Packages() {
			updateID, busy, found := reg.TriggerUpdate(r.Context(), pkg.Name)
			if !found || busy {
				skipped = append(skipped, pkg.Name)
				continue
			}
			s.logger.Debug().Str("package", pkg.Name).Str("updateId", updateID).Msg("update-all started package")
			started = append(started, pkg.Name)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"updatesStarted": started, "skipped": skipped})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
