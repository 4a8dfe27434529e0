package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies governance errors.
type ErrorCode string

const (
	CodeActionNotFound              ErrorCode = "ACTION_NOT_FOUND"
	CodeActionDisabled              ErrorCode = "ACTION_DISABLED"
	CodePermissionDenied            ErrorCode = "PERMISSION_DENIED"
	CodeExecutionNoLongerPending    ErrorCode = "EXECUTION_NO_LONGER_PENDING"
	CodeInvalidTransition           ErrorCode = "INVALID_TRANSITION"
	CodeInvalidPermissionKey        ErrorCode = "INVALID_PERMISSION_KEY"
	CodeMatrixOverrideNotApplicable ErrorCode = "MATRIX_OVERRIDE_NOT_APPLICABLE"
	CodeExecutionNotFound           ErrorCode = "EXECUTION_NOT_FOUND"
	CodePermissionNotFound          ErrorCode = "PERMISSION_NOT_FOUND"
	CodeInvalidAction               ErrorCode = "INVALID_ACTION"
	CodeInvalidQuickMode            ErrorCode = "INVALID_QUICK_MODE"
	CodeUnknownTool                 ErrorCode = "UNKNOWN_TOOL"
	CodeInvalidRequest              ErrorCode = "INVALID_REQUEST"
)

// Error is a governance error. Two errors match under errors.Is when their
// codes are equal, so callers compare against the Err* sentinels.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf builds an Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is.
var (
	ErrActionNotFound              = &Error{Code: CodeActionNotFound, Message: "action not found"}
	ErrActionDisabled              = &Error{Code: CodeActionDisabled, Message: "action is disabled"}
	ErrPermissionDenied            = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrExecutionNoLongerPending    = &Error{Code: CodeExecutionNoLongerPending, Message: "execution is no longer pending"}
	ErrInvalidTransition           = &Error{Code: CodeInvalidTransition, Message: "invalid execution transition"}
	ErrInvalidPermissionKey        = &Error{Code: CodeInvalidPermissionKey, Message: "exactly one of actionID or actionType must be set"}
	ErrMatrixOverrideNotApplicable = &Error{Code: CodeMatrixOverrideNotApplicable, Message: "permission type not applicable to tool"}
	ErrExecutionNotFound           = &Error{Code: CodeExecutionNotFound, Message: "execution not found"}
	ErrPermissionNotFound          = &Error{Code: CodePermissionNotFound, Message: "permission record not found"}
	ErrInvalidAction               = &Error{Code: CodeInvalidAction, Message: "invalid action"}
	ErrInvalidQuickMode            = &Error{Code: CodeInvalidQuickMode, Message: "invalid quick mode"}
	ErrUnknownTool                 = &Error{Code: CodeUnknownTool, Message: "unknown tool"}
	ErrInvalidRequest              = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
)

// CodeOf extracts the code from err, or "" when err is not an *Error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
