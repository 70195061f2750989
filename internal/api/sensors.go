package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wavehub/pincore/internal/automation"
)

type calibrationRequest struct {
	Multiplier *float64 `json:"multiplier"`
	Offset     float64  `json:"offset"`
}

// handleCalibrateSensor sets a sensor's calibration. A missing multiplier
// defaults to 1.
//
// PUT /modules/{moduleID}/sensors/{sensorID}/calibration
// Body: {"multiplier": 1.02, "offset": -0.5}
func (s *Server) handleCalibrateSensor(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cal := automation.Calibration{Multiplier: 1, Offset: req.Offset}
	if req.Multiplier != nil {
		cal.Multiplier = *req.Multiplier
	}

	stats, err := s.modules.CalibrateSensor(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "sensorID"), cal)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleSensorMetrics returns one sensor's reading statistics.
//
// GET /modules/{moduleID}/sensors/{sensorID}
func (s *Server) handleSensorMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.modules.SensorMetrics(r.Context(), credentials(r.Context()),
		chi.URLParam(r, "moduleID"), chi.URLParam(r, "sensorID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
