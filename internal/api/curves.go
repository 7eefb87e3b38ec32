package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/nerrad567/airsense-core/internal/fancurve"
	"github.com/nerrad567/airsense-core/internal/location"
)

// curveTarget extracts the room and parameter from the URL.
func curveTarget(r *http.Request) (int64, string, bool) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil || roomID <= 0 {
		return 0, "", false
	}
	parameter := chi.URLParam(r, "parameter")
	if parameter == "" {
		return 0, "", false
	}
	return roomID, parameter, true
}

// handleGetCurve returns the room's curve for a parameter, creating the
// default curve on first read.
func (s *Server) handleGetCurve(w http.ResponseWriter, r *http.Request) {
	roomID, parameter, ok := curveTarget(r)
	if !ok {
		writeBadRequest(w, "invalid room id or parameter")
		return
	}

	curve, err := s.curves.Get(r.Context(), roomID, parameter)
	if errors.Is(err, location.ErrRoomNotFound) {
		writeNotFound(w, "room not found")
		return
	}
	if errors.Is(err, fancurve.ErrUnknownParameter) {
		writeBadRequest(w, "parameter not found")
		return
	}
	if err != nil {
		s.logger.Error("reading curve failed", "room_id", roomID, "parameter", parameter, "error", err)
		writeInternalError(w, "failed to read curve")
		return
	}
	writeJSON(w, http.StatusOK, curve)
}

// handleUpdateCurve replaces the room's curve for a parameter.
func (s *Server) handleUpdateCurve(w http.ResponseWriter, r *http.Request) {
	roomID, parameter, ok := curveTarget(r)
	if !ok {
		writeBadRequest(w, "invalid room id or parameter")
		return
	}

	var curve fancurve.Curve
	if err := json.NewDecoder(r.Body).Decode(&curve); err != nil {
		writeBadRequest(w, "invalid curve body")
		return
	}

	err := s.curves.Update(r.Context(), roomID, parameter, curve)
	switch {
	case errors.Is(err, fancurve.ErrInvalidCurve):
		writeValidationError(w, err.Error())
		return
	case errors.Is(err, location.ErrRoomNotFound):
		writeNotFound(w, "room not found")
		return
	case errors.Is(err, fancurve.ErrUnknownParameter):
		writeBadRequest(w, "parameter not found")
		return
	case err != nil:
		s.logger.Error("updating curve failed", "room_id", roomID, "parameter", parameter, "error", err)
		writeInternalError(w, "failed to update curve")
		return
	}

	var subject string
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}
	s.logger.Info("curve updated", "room_id", roomID, "parameter", parameter, "by", subject)
	s.recordCurveUpdate(r.Context(), roomID, parameter, subject, curve)

	writeJSON(w, http.StatusOK, curve)
}
