package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/retention"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// CompleteExecutionRequest reports a successful outcome.
type CompleteExecutionRequest struct {
	Result map[string]any `json:"result,omitempty"`
}

// FailExecutionRequest reports an executor error.
type FailExecutionRequest struct {
	ErrorMessage string `json:"errorMessage"`
}

// CancelExecutionRequest cancels a queued or running execution.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}

func queryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// listExecutions handles GET /execution
func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := execution.Filter{
		ActionID:   q.Get("actionId"),
		ActionType: types.ActionType(q.Get("actionType")),
		Status:     types.ExecutionStatus(q.Get("status")),
	}
	if filter.ActionType != "" && !filter.ActionType.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown actionType "+string(filter.ActionType))
		return
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown status "+string(filter.Status))
		return
	}
	var ok bool
	if filter.Limit, ok = queryInt(r, "limit"); !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, ok = queryInt(r, "offset"); !ok {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "offset must be a non-negative integer")
		return
	}

	execs, err := s.executions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if execs == nil {
		execs = []*types.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

// getExecution handles GET /execution/{executionID}
func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.executions.Get(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// startExecution handles POST /execution/{executionID}/start
func (s *Server) startExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.executions.Start(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// completeExecution handles POST /execution/{executionID}/complete
func (s *Server) completeExecution(w http.ResponseWriter, r *http.Request) {
	var req CompleteExecutionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	exec, err := s.executions.Complete(r.Context(), chi.URLParam(r, "executionID"), req.Result)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// failExecution handles POST /execution/{executionID}/fail
func (s *Server) failExecution(w http.ResponseWriter, r *http.Request) {
	var req FailExecutionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	exec, err := s.executions.Fail(r.Context(), chi.URLParam(r, "executionID"), req.ErrorMessage)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// cancelExecution handles POST /execution/{executionID}/cancel
func (s *Server) cancelExecution(w http.ResponseWriter, r *http.Request) {
	var req CancelExecutionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	exec, err := s.executions.Cancel(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	logging.Info().
		Str("executionID", exec.ID).
		Str("reason", req.Reason).
		Msg("execution cancelled")
	writeJSON(w, http.StatusOK, exec)
}

// cleanupExecutions handles POST /execution/cleanup
func (s *Server) cleanupExecutions(w http.ResponseWriter, r *http.Request) {
	var opts retention.Options
	if !decodeBody(w, r, &opts, true) {
		return
	}
	deleted, err := s.retention.Cleanup(r.Context(), opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}
