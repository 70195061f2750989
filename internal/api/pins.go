package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wavehub/pincore/internal/controller"
	"github.com/wavehub/pincore/internal/module"
)

// defaultHistoryLimit bounds pin history when the caller gives no limit.
const defaultHistoryLimit = 50

// handleSetPinState switches a pin off, on or into automation.
//
// PUT /modules/{moduleID}/pins/{pinID}/state
// Body: {"state": "auto", "policy": {"kind": "duration", "duration_ms": 5000}}
func (s *Server) handleSetPinState(w http.ResponseWriter, r *http.Request) {
	var cmd controller.PinCommand
	if !decodeJSON(w, r, &cmd) {
		return
	}
	pin, err := s.modules.SetPinState(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "pinID"), cmd)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

type assignGroupRequest struct {
	GroupID string `json:"group_id"`
}

// handleAssignPinToGroup moves a pin into a group; an empty group_id
// unassigns it.
//
// PUT /modules/{moduleID}/pins/{pinID}/group
func (s *Server) handleAssignPinToGroup(w http.ResponseWriter, r *http.Request) {
	var req assignGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pin, err := s.modules.AssignPinToGroup(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "pinID"), req.GroupID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

type renamePinRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// handleRenamePin changes a pin's display name and description.
//
// PATCH /modules/{moduleID}/pins/{pinID}
func (s *Server) handleRenamePin(w http.ResponseWriter, r *http.Request) {
	var req renamePinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pin, err := s.modules.RenamePin(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "pinID"), req.Name, req.Description)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

// handlePinHistory returns the pin's most recent output directives.
//
// GET /modules/{moduleID}/pins/{pinID}/history?limit=50
// Response: {"history": [...], "count": N}
func (s *Server) handlePinHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultHistoryLimit)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	entries, err := s.modules.PinHistory(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "pinID"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []module.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries, "count": len(entries)})
}
