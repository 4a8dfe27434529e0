package types

import "time"

// PermissionLevel is the outcome of permission resolution.
type PermissionLevel string

const (
	LevelRequireConfirm PermissionLevel = "require_confirm"
	LevelAutoApprove    PermissionLevel = "auto_approve"
	LevelDeny           PermissionLevel = "deny"
)

// Valid reports whether l is a known level.
func (l PermissionLevel) Valid() bool {
	switch l {
	case LevelRequireConfirm, LevelAutoApprove, LevelDeny:
		return true
	}
	return false
}

// PermissionRecord overrides the default confirmation policy for a single
// action (ActionID set) or for every action of a type (ActionType set).
// Exactly one of the two keys is set.
type PermissionRecord struct {
	ID              string          `json:"id"`
	ActionID        *string         `json:"actionID,omitempty"`
	ActionType      *ActionType     `json:"actionType,omitempty"`
	PermissionLevel PermissionLevel `json:"permissionLevel"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
