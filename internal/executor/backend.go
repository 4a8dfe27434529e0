// Package executor runs approved executions. A Dispatcher picks up queued
// executions, hands each to the Backend registered for its action type and
// reports the outcome back to the execution lifecycle.
//
// Backend failures are outcomes, not governance errors: a non-zero exit or a
// non-2xx response is recorded as a failed execution.
package executor

import (
	"context"
	"fmt"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// Backend runs one kind of action. A returned error marks the execution
// failed with the error text; otherwise the result is recorded.
type Backend interface {
	Run(ctx context.Context, action *types.Action, exec *types.Execution) (map[string]any, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, action *types.Action, exec *types.Execution) (map[string]any, error)

// Run calls f.
func (f BackendFunc) Run(ctx context.Context, action *types.Action, exec *types.Execution) (map[string]any, error) {
	return f(ctx, action, exec)
}

// DefaultBackends returns the built-in backends. Workflow actions have no
// built-in runner.
func DefaultBackends() map[types.ActionType]Backend {
	return map[types.ActionType]Backend{
		types.ActionTypeScript:  NewScriptBackend(),
		types.ActionTypeWebhook: NewWebhookBackend(),
	}
}

func configMismatch(action *types.Action) error {
	return fmt.Errorf("action %s has no %s config", action.ID, action.ActionType)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n\n(Output truncated)"
}
