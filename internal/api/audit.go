package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/nerrad567/airsense-core/internal/audit"
	"github.com/nerrad567/airsense-core/internal/fancurve"
)

// recordCurveUpdate writes an audit entry for a curve change (best-effort).
// The write outlives a client that hangs up after the update succeeded.
func (s *Server) recordCurveUpdate(ctx context.Context, roomID int64, parameter, subject string, curve fancurve.Curve) {
	if s.audit == nil {
		return
	}

	details := map[string]any{"points": curve.Points}
	if curve.CriticalValue != nil {
		details["critical_value"] = *curve.CriticalValue
	}

	entry := &audit.Log{
		Action:     audit.ActionUpdate,
		EntityType: audit.EntityCurve,
		EntityID:   audit.CurveEntityID(roomID, parameter),
		UserID:     subject,
		Source:     audit.SourceAPI,
		Details:    details,
	}
	if err := s.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("audit log write failed",
			"action", entry.Action,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}

// handleListAuditLogs returns paginated audit entries.
//
// Query parameters:
//   - action, entity_type, entity_id, user_id: exact-match filters
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		UserID:     q.Get("user_id"),
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "invalid "+name)
			return
		}
		*dst = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
