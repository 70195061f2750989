package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wavehub/pincore/internal/auth"
	"github.com/wavehub/pincore/internal/automation"
	"github.com/wavehub/pincore/internal/module"
	"github.com/wavehub/pincore/internal/scheduler"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// errorMapping ties a sentinel error to its HTTP status and code. The first
// match wins.
var errorMapping = []struct {
	target error
	status int
	code   string
}{
	{auth.ErrAuthenticationFailed, http.StatusUnauthorized, ErrCodeUnauthorized},
	{auth.ErrInvalidSecret, http.StatusUnauthorized, ErrCodeUnauthorized},
	{auth.ErrNotAMember, http.StatusForbidden, ErrCodeForbidden},
	{auth.ErrInsufficientRole, http.StatusForbidden, ErrCodeForbidden},
	{auth.ErrAlreadyClaimed, http.StatusConflict, ErrCodeConflict},
	{module.ErrGroupNameTaken, http.StatusConflict, ErrCodeConflict},
	{auth.ErrUsernameExists, http.StatusConflict, ErrCodeConflict},
	{module.ErrModuleNotFound, http.StatusNotFound, ErrCodeNotFound},
	{module.ErrPinNotFound, http.StatusNotFound, ErrCodeNotFound},
	{module.ErrGroupNotFound, http.StatusNotFound, ErrCodeNotFound},
	{module.ErrSensorNotFound, http.StatusNotFound, ErrCodeNotFound},
	{module.ErrMemberNotFound, http.StatusNotFound, ErrCodeNotFound},
	{auth.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
	{module.ErrInvalidName, http.StatusBadRequest, ErrCodeValidation},
	{module.ErrInvalidPinCount, http.StatusBadRequest, ErrCodeValidation},
	{module.ErrOwnerImmutable, http.StatusBadRequest, ErrCodeValidation},
	{auth.ErrInvalidRole, http.StatusBadRequest, ErrCodeValidation},
	{auth.ErrSelfAssignment, http.StatusBadRequest, ErrCodeValidation},
	{auth.ErrInvalidUser, http.StatusBadRequest, ErrCodeValidation},
	{auth.ErrWeakPassword, http.StatusBadRequest, ErrCodeValidation},
	{automation.ErrInvalidPolicy, http.StatusBadRequest, ErrCodeValidation},
	{automation.ErrUnknownPolicyKind, http.StatusBadRequest, ErrCodeValidation},
	{automation.ErrInvalidState, http.StatusBadRequest, ErrCodeValidation},
	{automation.ErrPolicyRequired, http.StatusBadRequest, ErrCodeValidation},
	{automation.ErrInvalidCalibration, http.StatusBadRequest, ErrCodeValidation},
	{module.ErrStore, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{scheduler.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, ErrCodeUnavailable},
}

// statusOf returns the HTTP status and code for a service error.
func statusOf(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeServiceError maps an error returned by the module service. Internal
// errors are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		if status == http.StatusInternalServerError {
			writeInternalError(w, "internal server error")
			return
		}
		writeError(w, status, code, "service temporarily unavailable, retry the request")
		return
	}
	writeError(w, status, code, err.Error())
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}
