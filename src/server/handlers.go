package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stoq/stoqserver/src/bootstrap"
	"github.com/stoq/stoqserver/src/common/version"
	"github.com/stoq/stoqserver/src/concurrency"
	"github.com/stoq/stoqserver/src/mode"
	"github.com/stoq/stoqserver/src/plugin"
	"github.com/stoq/stoqserver/src/signal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
	Driver   string `json:"driver,omitempty"`
	Remote   bool   `json:"remote"`
	Backend  string `json:"backend"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  version.Version,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Database: "disabled",
		Backend:  s.backend.Kind().String(),
	}
	status := http.StatusOK

	if s.db != nil {
		resp.Driver = s.db.Driver()
		resp.Remote = s.db.IsRemote()
		switch {
		case !s.db.IsReady():
			resp.Database = "closed"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		case s.db.Ping(r.Context()) != nil:
			resp.Database = "error"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		default:
			resp.Database = "ok"
		}
	}
	if signal.IsShuttingDown() {
		resp.Status = "shutting_down"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// BootstrapResponse describes how the running process was bootstrapped
type BootstrapResponse struct {
	RunID         string                `json:"run_id"`
	Mode          string                `json:"mode"`
	Runtime       mode.Runtime          `json:"runtime"`
	Substrate     concurrency.Substrate `json:"substrate"`
	Frozen        bool                  `json:"frozen"`
	ExecutableDir string                `json:"executable_dir,omitempty"`
	DataDir       string                `json:"data_dir,omitempty"`
	ResourceDir   string                `json:"resource_dir"`
	Timings       []bootstrap.Timing    `json:"timings"`
}

func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BootstrapResponse{
		RunID:         s.bc.RunID,
		Mode:          mode.String(),
		Runtime:       s.bc.Mode,
		Substrate:     s.bc.Substrate,
		Frozen:        s.bc.Frozen,
		ExecutableDir: s.bc.ExecutableDir,
		DataDir:       s.bc.DataDir,
		ResourceDir:   s.bc.ResourceDir,
		Timings:       s.bc.Timings,
	})
}

// ExtensionsResponse lists the search path of the running process
type ExtensionsResponse struct {
	SearchPath     []string `json:"search_path"`
	Bundles        []string `json:"bundles"`
	Extensions     []string `json:"extensions"`
	ArchiveSupport bool     `json:"archive_support"`
}

func (s *Server) handleExtensions(w http.ResponseWriter, r *http.Request) {
	resp := ExtensionsResponse{
		SearchPath: s.bc.SearchPath.Entries(),
		Bundles:    append([]string{}, s.bc.Bundles...),
		Extensions: append([]string{}, s.bc.Extensions...),
	}
	if resp.SearchPath == nil {
		resp.SearchPath = []string{}
	}
	if s.bc.Loader != nil {
		resp.ArchiveSupport = s.bc.Loader.ArchiveSupport()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExtensionResponse is a resolved extension
type ExtensionResponse struct {
	*plugin.Handle
	Digest string `json:"digest,omitempty"`
}

func (s *Server) handleExtension(w http.ResponseWriter, r *http.Request) {
	if s.bc.Loader == nil {
		writeError(w, http.StatusServiceUnavailable, "extension loader not initialized")
		return
	}

	h, err := s.bc.Loader.Resolve(s.bc.SearchPath, r.PathValue("name"))
	switch {
	case errors.Is(err, plugin.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, plugin.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := ExtensionResponse{Handle: h}
	if digest, err := h.Digest(); err == nil {
		resp.Digest = digest
	}
	writeJSON(w, http.StatusOK, resp)
}
