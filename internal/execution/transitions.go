package execution

import (
	"github.com/opencode-ai/actiongate/pkg/types"
)

// transitions lists the statuses each non-terminal status may move to.
// Terminal statuses have no entry.
var transitions = map[types.ExecutionStatus][]types.ExecutionStatus{
	types.StatusPendingConfirm: {types.StatusQueued, types.StatusDenied, types.StatusTimedOut},
	types.StatusQueued:         {types.StatusRunning, types.StatusCancelled},
	types.StatusRunning:        {types.StatusCompleted, types.StatusFailed, types.StatusCancelled},
}

// initialStatus maps a resolved permission level to the status a new
// execution is created in.
var initialStatus = map[types.PermissionLevel]types.ExecutionStatus{
	types.LevelDeny:           types.StatusDenied,
	types.LevelRequireConfirm: types.StatusPendingConfirm,
	types.LevelAutoApprove:    types.StatusQueued,
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to types.ExecutionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(e *types.Execution, to types.ExecutionStatus) error {
	if CanTransition(e.Status, to) {
		return nil
	}
	if e.Status.IsTerminal() {
		return types.Errorf(types.CodeInvalidTransition, "execution %s is already %s", e.ID, e.Status)
	}
	return types.Errorf(types.CodeInvalidTransition, "execution %s cannot move from %s to %s", e.ID, e.Status, to)
}
