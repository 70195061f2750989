package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wavehub/pincore/internal/module"
)

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// handleListModules returns the modules the caller holds a role on.
//
// GET /modules
// Response: {"modules": [...], "count": N}
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	modules, err := s.modules.ListModules(r.Context(), credentials(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if modules == nil {
		modules = []module.UserModule{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

// handleGetModule returns a module with the caller's role and permitted
// operations.
//
// GET /modules/{moduleID}
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	view, err := s.modules.GetModule(r.Context(), credentials(r.Context()), chi.URLParam(r, "moduleID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type claimRequest struct {
	Secret string `json:"secret"`
}

// handleClaimModule makes the caller owner of an unclaimed module.
//
// POST /modules/{moduleID}/claim
// Body: {"secret": "..."}
func (s *Server) handleClaimModule(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	view, err := s.modules.ClaimModule(r.Context(), credentials(r.Context()), chi.URLParam(r, "moduleID"), req.Secret)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type pinCountRequest struct {
	Count *int `json:"count"`
}

// handleConfigurePinCount grows or shrinks the module's pin list.
//
// PUT /modules/{moduleID}/pins
// Body: {"count": 4}
func (s *Server) handleConfigurePinCount(w http.ResponseWriter, r *http.Request) {
	var req pinCountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Count == nil {
		writeBadRequest(w, "count is required")
		return
	}
	view, err := s.modules.ConfigurePinCount(r.Context(), credentials(r.Context()), chi.URLParam(r, "moduleID"), *req.Count)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleModuleMetrics returns reading statistics for every sensor the
// module watches or calibrates.
//
// GET /modules/{moduleID}/metrics
// Response: {"sensors": [...], "count": N}
func (s *Server) handleModuleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.modules.ModuleMetrics(r.Context(), credentials(r.Context()), chi.URLParam(r, "moduleID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sensors": stats, "count": len(stats)})
}
