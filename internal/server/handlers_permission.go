package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// UpdatePermissionRequest sets the level for one action or one action type.
// Exactly one of ActionID and ActionType must be set.
type UpdatePermissionRequest struct {
	ActionID        *string               `json:"actionID,omitempty"`
	ActionType      *types.ActionType     `json:"actionType,omitempty"`
	PermissionLevel types.PermissionLevel `json:"permissionLevel"`
}

// listPermissions handles GET /permission
func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	records, err := s.permissions.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []*types.PermissionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// updatePermission handles PUT /permission
func (s *Server) updatePermission(w http.ResponseWriter, r *http.Request) {
	var req UpdatePermissionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	// Records for unknown actions would never be consulted.
	if req.ActionID != nil && req.ActionType == nil {
		if _, err := s.actions.Get(r.Context(), *req.ActionID); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	record, err := s.permissions.Upsert(r.Context(), permission.Key{
		ActionID:   req.ActionID,
		ActionType: req.ActionType,
	}, req.PermissionLevel)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// deletePermission handles DELETE /permission/{permissionID}
func (s *Server) deletePermission(w http.ResponseWriter, r *http.Request) {
	if err := s.permissions.Delete(r.Context(), chi.URLParam(r, "permissionID")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeSuccess(w)
}
