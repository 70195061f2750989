package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wavehub/pincore/internal/auth"
)

type roleRequest struct {
	Role auth.Role `json:"role"`
}

// handleAssignUserRole grants or changes a user's role. The {user} path
// segment is a user ID or username.
//
// PUT /modules/{moduleID}/roles/{user}
// Body: {"role": "operator"}
func (s *Server) handleAssignUserRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	grant, err := s.modules.AssignUserRole(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "user"), req.Role)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// handleRevokeUserRole removes a user's role on the module.
//
// DELETE /modules/{moduleID}/roles/{user}
func (s *Server) handleRevokeUserRole(w http.ResponseWriter, r *http.Request) {
	err := s.modules.RevokeUserRole(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "user"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
