package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type groupRequest struct {
	Name string `json:"name"`
}

// handleAddGroup creates a pin group.
//
// POST /modules/{moduleID}/groups
// Body: {"name": "Greenhouse"}
func (s *Server) handleAddGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := s.modules.AddGroup(r.Context(), credentials(r.Context()), chi.URLParam(r, "moduleID"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

// handleRenameGroup renames a pin group.
//
// PATCH /modules/{moduleID}/groups/{groupID}
func (s *Server) handleRenameGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	group, err := s.modules.RenameGroup(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "groupID"), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// handleDeleteGroup deletes a group. Its pins are unassigned and keep
// their state.
//
// DELETE /modules/{moduleID}/groups/{groupID}
// Response: {"unassigned_pins": [...]}
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	unassigned, err := s.modules.DeleteGroup(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "groupID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if unassigned == nil {
		unassigned = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"unassigned_pins": unassigned})
}
