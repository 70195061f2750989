package api

import (
	"net/http"

	"github.com/wavehub/pincore/internal/auth"
)

type createUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// handleCreateUser creates an account that module owners can then grant
// roles to. Any authenticated user may register another.
//
// POST /users
// Body: {"username": "bob", "display_name": "Bob", "password": "..."}
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	creatorID, err := s.auth.Authenticate(r.Context(), credentials(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := s.auth.Register(r.Context(), req.Username, req.DisplayName, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username, "created_by", creatorID)
	writeJSON(w, http.StatusCreated, user)
}

var _ Authenticator = (*auth.Provider)(nil)
