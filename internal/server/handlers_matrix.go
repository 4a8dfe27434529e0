package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// SetQuickModeRequest replaces the matrix with a preset.
type SetQuickModeRequest struct {
	Mode types.QuickMode `json:"mode"`
}

// SetToolPermissionRequest flips one matrix cell.
type SetToolPermissionRequest struct {
	Permission types.PermissionKind `json:"permission"`
	Value      bool                 `json:"value"`
}

// getMatrix handles GET /tool-permission
func (s *Server) getMatrix(w http.ResponseWriter, r *http.Request) {
	state, err := s.matrix.Get(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// getAllowList handles GET /tool-permission/allow-list
func (s *Server) getAllowList(w http.ResponseWriter, r *http.Request) {
	state, err := s.matrix.Get(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, permission.ToAllowList(state.Matrix))
}

// setQuickMode handles PUT /tool-permission/mode
func (s *Server) setQuickMode(w http.ResponseWriter, r *http.Request) {
	var req SetQuickModeRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	state, err := s.matrix.SetQuickMode(r.Context(), req.Mode)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// setToolPermission handles PUT /tool-permission/{tool}
func (s *Server) setToolPermission(w http.ResponseWriter, r *http.Request) {
	var req SetToolPermissionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	state, err := s.matrix.SetToolPermission(r.Context(), chi.URLParam(r, "tool"), req.Permission, req.Value)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
