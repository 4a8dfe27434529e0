package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// HeaderSourceClient names the calling client on invoke.
const HeaderSourceClient = "X-Source-Client"

// InvokeRequest represents the request body for invoking an action.
type InvokeRequest struct {
	Parameters   map[string]any `json:"parameters,omitempty"`
	SourceClient string         `json:"sourceClient,omitempty"`
}

// listActions handles GET /action
func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.Filter{Name: q.Get("name")}

	if v := q.Get("projectId"); v != "" {
		filter.ProjectID = &v
	}
	if v := q.Get("actionType"); v != "" {
		t := types.ActionType(v)
		if !t.Valid() {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "unknown actionType "+v)
			return
		}
		filter.ActionType = &t
	}
	if v := q.Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "enabled must be a boolean")
			return
		}
		filter.IsEnabled = &enabled
	}

	actions, err := s.actions.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if actions == nil {
		actions = []*types.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

// createAction handles POST /action
func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var input catalog.CreateInput
	if !decodeBody(w, r, &input, false) {
		return
	}

	action, err := s.actions.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// getAction handles GET /action/{actionID}
func (s *Server) getAction(w http.ResponseWriter, r *http.Request) {
	action, err := s.actions.Get(r.Context(), chi.URLParam(r, "actionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// updateAction handles PATCH /action/{actionID}
func (s *Server) updateAction(w http.ResponseWriter, r *http.Request) {
	var input catalog.UpdateInput
	if !decodeBody(w, r, &input, false) {
		return
	}

	action, err := s.actions.Update(r.Context(), chi.URLParam(r, "actionID"), input)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

// deleteAction handles DELETE /action/{actionID}
func (s *Server) deleteAction(w http.ResponseWriter, r *http.Request) {
	if err := s.actions.Delete(r.Context(), chi.URLParam(r, "actionID")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w)
}

// getDecision handles GET /action/{actionID}/decision
func (s *Server) getDecision(w http.ResponseWriter, r *http.Request) {
	action, err := s.actions.Get(r.Context(), chi.URLParam(r, "actionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	decision, err := s.resolver.Resolve(r.Context(), action)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// invokeAction handles POST /action/{actionID}/invoke
func (s *Server) invokeAction(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	client := r.Header.Get(HeaderSourceClient)
	if client == "" {
		client = req.SourceClient
	}

	exec, err := s.executions.Invoke(r.Context(), execution.InvokeInput{
		ActionID:     chi.URLParam(r, "actionID"),
		Parameters:   req.Parameters,
		SourceClient: client,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
