// Package approval is the human-facing side of the confirmation gate: it
// lists executions awaiting confirmation and records responses to them.
package approval

import (
	"context"
	"time"

	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Gateway handles pending confirmation requests.
type Gateway struct {
	executions  *execution.Service
	actions     execution.ActionSource
	permissions *permission.Store
	now         func() time.Time
}

// NewGateway creates a gateway. permissions may be nil, in which case
// remembered responses are not persisted.
func NewGateway(executions *execution.Service, actions execution.ActionSource, permissions *permission.Store) *Gateway {
	return &Gateway{
		executions:  executions,
		actions:     actions,
		permissions: permissions,
		now:         time.Now,
	}
}

// ListPending returns the requests awaiting a response, oldest first.
func (g *Gateway) ListPending(ctx context.Context) ([]types.PendingActionRequest, error) {
	execs, err := g.executions.ListPending(ctx)
	if err != nil {
		return nil, err
	}

	descriptions := make(map[string]string)
	requests := make([]types.PendingActionRequest, 0, len(execs))
	for _, exec := range execs {
		req := types.PendingActionRequest{
			ExecutionID:  exec.ID,
			ActionID:     exec.ActionID,
			ActionType:   exec.ActionType,
			ActionName:   exec.ActionName,
			SourceClient: exec.SourceClient,
			Parameters:   exec.Parameters,
			RequestedAt:  exec.StartedAt,
			ExpiresAt:    exec.ConfirmDeadline,
		}
		if exec.ActionID != nil {
			req.ActionDescription = g.describe(ctx, *exec.ActionID, descriptions)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// describe looks up an action description, caching per listing. Actions
// deleted since the request was made have no description.
func (g *Gateway) describe(ctx context.Context, actionID string, cache map[string]string) string {
	if d, ok := cache[actionID]; ok {
		return d
	}
	var d string
	if action, err := g.actions.Get(ctx, actionID); err == nil {
		d = action.Description
	}
	cache[actionID] = d
	return d
}

// Approve releases a pending execution to the executor queue.
func (g *Gateway) Approve(ctx context.Context, executionID string) (*types.Execution, error) {
	return g.executions.Approve(ctx, executionID)
}

// Deny rejects a pending execution. An empty reason records the default
// message.
func (g *Gateway) Deny(ctx context.Context, executionID, reason string) (*types.Execution, error) {
	return g.executions.Deny(ctx, executionID, reason)
}

// Response is a human answer to a pending request.
type Response struct {
	ExecutionID string
	Approved    bool
	Reason      string
	// Remember stores the answer as the action's permission level so later
	// invocations skip the prompt.
	Remember bool
}

// Respond applies a response. Approved in the result reports the outcome,
// which differs from the request when a deny loses to a concurrent approval.
// With Remember set, an answer that took effect stores auto_approve or deny
// for the action.
func (g *Gateway) Respond(ctx context.Context, resp Response) (*types.RequestResponse, error) {
	var (
		exec *types.Execution
		err  error
	)
	if resp.Approved {
		exec, err = g.Approve(ctx, resp.ExecutionID)
	} else {
		exec, err = g.Deny(ctx, resp.ExecutionID, resp.Reason)
	}
	if err != nil {
		return nil, err
	}
	approved := exec.Status != types.StatusDenied

	logging.Info().
		Str("executionID", exec.ID).
		Bool("approved", resp.Approved).
		Str("status", string(exec.Status)).
		Bool("remember", resp.Remember).
		Msg("confirmation answered")

	if resp.Remember && approved == resp.Approved {
		if err := g.remember(ctx, exec, resp.Approved); err != nil {
			return nil, err
		}
	}

	return &types.RequestResponse{
		ExecutionID: exec.ID,
		Approved:    approved,
		RespondedAt: g.now().UTC(),
		Status:      exec.Status,
	}, nil
}

func (g *Gateway) remember(ctx context.Context, exec *types.Execution, approved bool) error {
	if g.permissions == nil || exec.ActionID == nil {
		return nil
	}
	level := types.LevelDeny
	if approved {
		level = types.LevelAutoApprove
	}
	record, err := g.permissions.Upsert(ctx, permission.Key{ActionID: exec.ActionID}, level)
	if err != nil {
		return err
	}
	logging.Info().
		Str("actionID", *exec.ActionID).
		Str("permissionID", record.ID).
		Str("level", string(level)).
		Msg("remembered confirmation answer")
	return nil
}
