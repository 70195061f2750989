package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultAuditLimit is the page size when the caller gives no limit.
const defaultAuditLimit = 50

// handleModuleAudit returns a page of the module's audit trail, newest
// first. Owners only.
//
// Query parameters:
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleModuleAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defaultAuditLimit)
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.modules.AuditLog(r.Context(), credentials(r.Context()), chi.URLParam(r, "moduleID"), limit, offset)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
