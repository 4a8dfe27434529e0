package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/actiongate/internal/approval"
)

// RespondRequest answers a pending confirmation request.
type RespondRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
	// Remember stores the answer as the action's permission level.
	Remember bool `json:"remember,omitempty"`
}

// listPending handles GET /pending
func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	requests, err := s.approvals.ListPending(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// respondPending handles POST /pending/{executionID}
func (s *Server) respondPending(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	resp, err := s.approvals.Respond(r.Context(), approval.Response{
		ExecutionID: chi.URLParam(r, "executionID"),
		Approved:    req.Approved,
		Reason:      req.Reason,
		Remember:    req.Remember,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
