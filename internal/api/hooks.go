package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/nerrad567/airsense-core/internal/auth"
)

// hookResponse is the body the broker reads from both hook endpoints.
type hookResponse struct {
	Result auth.Decision `json:"result"`
}

// handleBrokerAuth answers the broker's CONNECT hook.
func (s *Server) handleBrokerAuth(w http.ResponseWriter, r *http.Request) {
	var req auth.AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid auth request body")
		return
	}

	decision, err := s.bridge.Authenticate(r.Context(), req)
	if err != nil {
		s.logger.Error("broker auth lookup failed",
			"client_id", req.ClientID,
			"username", req.Username,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeJSON(w, http.StatusOK, hookResponse{Result: decision})
}

// handleBrokerACL answers the broker's PUBLISH/SUBSCRIBE hook.
func (s *Server) handleBrokerACL(w http.ResponseWriter, r *http.Request) {
	var req auth.ACLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid acl request body")
		return
	}

	decision, err := s.bridge.Authorize(r.Context(), req)
	if err != nil {
		s.logger.Error("broker acl lookup failed",
			"client_id", req.ClientID,
			"username", req.Username,
			"topic", req.Topic,
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
	}
	writeJSON(w, http.StatusOK, hookResponse{Result: decision})
}
