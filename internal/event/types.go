package event

import "github.com/opencode-ai/actiongate/pkg/types"

// ExecutionUpdatedData is the data for execution.updated events. It is fired
// on every status transition, including creation.
type ExecutionUpdatedData struct {
	ExecutionID string                `json:"executionID"`
	NewStatus   types.ExecutionStatus `json:"newStatus"`
	Info        *types.Execution      `json:"info,omitempty"`
}

// ExecutionDeletedData is the data for execution.deleted events.
type ExecutionDeletedData struct {
	ExecutionIDs []string `json:"executionIDs"`
}

// ActionChangedData is the data for action.* events.
type ActionChangedData struct {
	Info *types.Action `json:"info"`
}

// PermissionChangedData is the data for permission.* events.
type PermissionChangedData struct {
	Info *types.PermissionRecord `json:"info"`
}

// MatrixUpdatedData is the data for matrix.updated events.
type MatrixUpdatedData struct {
	QuickMode types.QuickMode `json:"quickMode"`
}

// ConfigReloadedData is the data for config.reloaded events.
type ConfigReloadedData struct {
	Path string `json:"path"`
}
