package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes not covered by the governance taxonomy.
const (
	ErrCodeInvalidRequest = string(types.CodeInvalidRequest)
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// codeStatus maps governance error codes to HTTP statuses.
var codeStatus = map[types.ErrorCode]int{
	types.CodeActionNotFound:              http.StatusNotFound,
	types.CodeExecutionNotFound:           http.StatusNotFound,
	types.CodePermissionNotFound:          http.StatusNotFound,
	types.CodeUnknownTool:                 http.StatusNotFound,
	types.CodeActionDisabled:              http.StatusForbidden,
	types.CodePermissionDenied:            http.StatusForbidden,
	types.CodeExecutionNoLongerPending:    http.StatusConflict,
	types.CodeInvalidTransition:           http.StatusConflict,
	types.CodeInvalidPermissionKey:        http.StatusBadRequest,
	types.CodeMatrixOverrideNotApplicable: http.StatusBadRequest,
	types.CodeInvalidAction:               http.StatusBadRequest,
	types.CodeInvalidQuickMode:            http.StatusBadRequest,
	types.CodeInvalidRequest:              http.StatusBadRequest,
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorWithDetails(w, status, code, message, nil)
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeServiceError writes err with the status its governance code maps to.
// Errors without a code are internal.
func writeServiceError(w http.ResponseWriter, err error) {
	var gerr *types.Error
	if errors.As(err, &gerr) {
		status, ok := codeStatus[gerr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		writeError(w, status, string(gerr.Code), gerr.Message)
		return
	}
	logging.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
}

// writeSuccess writes a bare true, the result of delete operations.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, true)
}

// decodeBody decodes the JSON request body into v. An empty body leaves v
// untouched when optional is set. It writes the error response itself and
// reports whether the handler should continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	switch {
	case err == nil:
		return true
	case optional && errors.Is(err, io.EOF):
		return true
	case types.CodeOf(err) != "":
		writeServiceError(w, err)
	default:
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
	}
	return false
}
