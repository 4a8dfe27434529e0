package governance

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/retention"
	"github.com/opencode-ai/actiongate/pkg/types"
)

var actionTypeEnum = mcp.Enum(
	string(types.ActionTypeScript),
	string(types.ActionTypeWebhook),
	string(types.ActionTypeWorkflow),
)

func listActionsTool() mcp.Tool {
	return mcp.NewTool("list_actions",
		mcp.WithDescription("Lists configured actions, optionally filtered"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("actionType", mcp.Description("Only actions of this type"), actionTypeEnum),
		mcp.WithBoolean("enabled", mcp.Description("Only enabled or only disabled actions")),
		mcp.WithString("name", mcp.Description("Glob over action names, e.g. deploy-*")),
	)
}

func (h *handlers) listActions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ActionType types.ActionType `json:"actionType"`
		Enabled    *bool            `json:"enabled"`
		Name       string           `json:"name"`
	}
	if res := bind(req, &args); res != nil {
		return res, nil
	}

	filter := catalog.Filter{Name: args.Name, IsEnabled: args.Enabled}
	if args.ActionType != "" {
		filter.ActionType = &args.ActionType
	}
	actions, err := h.Actions.List(ctx, filter)
	if err != nil {
		return errorResult(err)
	}
	if actions == nil {
		actions = []*types.Action{}
	}
	return jsonResult(actions)
}

func getActionTool() mcp.Tool {
	return mcp.NewTool("get_action",
		mcp.WithDescription("Returns one action with its configuration"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("id", mcp.Required(), mcp.Description("Action ID")),
	)
}

func (h *handlers) getAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := h.Actions.Get(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(action)
}

func createActionTool() mcp.Tool {
	return mcp.NewTool("create_action",
		mcp.WithDescription("Creates an action. config holds the type-specific settings: command/args/cwd/env/timeout for scripts, url/method/headers/payloadTemplate/timeout/retryCount for webhooks, workflowID/parameters for workflows"),
		mcp.WithString("actionType", mcp.Required(), actionTypeEnum),
		mcp.WithString("name", mcp.Required()),
		mcp.WithString("description"),
		mcp.WithObject("config", mcp.Required(), mcp.Description("Type-specific configuration")),
		mcp.WithBoolean("isEnabled", mcp.Description("Defaults to true")),
	)
}

func (h *handlers) createAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input catalog.CreateInput
	if res := bind(req, &input); res != nil {
		return res, nil
	}
	action, err := h.Actions.Create(ctx, input)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(action)
}

func updateActionTool() mcp.Tool {
	return mcp.NewTool("update_action",
		mcp.WithDescription("Changes fields of an action. Omitted fields are kept; the action type cannot change"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Action ID")),
		mcp.WithString("name"),
		mcp.WithString("description"),
		mcp.WithObject("config", mcp.Description("Replacement configuration for the action's type")),
		mcp.WithBoolean("isEnabled"),
	)
}

func (h *handlers) updateAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var input catalog.UpdateInput
	if res := bind(req, &input); res != nil {
		return res, nil
	}
	action, err := h.Actions.Update(ctx, id, input)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(action)
}

func deleteActionTool() mcp.Tool {
	return mcp.NewTool("delete_action",
		mcp.WithDescription("Deletes an action and its permission record. Execution history is kept"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithString("id", mcp.Required(), mcp.Description("Action ID")),
	)
}

func (h *handlers) deleteAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := h.Actions.Delete(ctx, id); err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText("deleted " + id), nil
}

func invokeActionTool() mcp.Tool {
	return mcp.NewTool("invoke_action",
		mcp.WithDescription("Requests an action run. The result is an execution: pending_confirm waits for a human, queued will run, denied was refused by policy. Poll get_execution for the outcome"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Action ID")),
		mcp.WithObject("parameters", mcp.Description("Parameters passed to the action")),
	)
}

// invokeAction is gated by the execute cell of the action's type, so the
// action is loaded before the matrix is consulted.
func (h *handlers) invokeAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ID         string         `json:"id"`
		Parameters map[string]any `json:"parameters"`
	}
	if res := bind(req, &args); res != nil {
		return res, nil
	}
	if args.ID == "" {
		return mcp.NewToolResultError("required argument \"id\" not found"), nil
	}

	// Without any execute cell the action is not looked up, so a refused
	// caller cannot probe which IDs exist.
	if !h.visible(ctx, req.Params.Name) {
		logging.Info().Str("tool", req.Params.Name).Msg("MCP tool call refused by matrix")
		return errorResult(types.Errorf(types.CodePermissionDenied, "tool permission matrix does not grant execute on any action type"))
	}

	action, err := h.Actions.Get(ctx, args.ID)
	if err != nil {
		return errorResult(err)
	}
	if res, err := h.check(ctx, req.Params.Name, invokeAccess[action.ActionType]); res != nil || err != nil {
		return res, err
	}

	exec, err := h.Executions.Invoke(ctx, execution.InvokeInput{
		ActionID:     action.ID,
		Parameters:   args.Parameters,
		SourceClient: h.sourceClient,
	})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(exec)
}

func listExecutionsTool() mcp.Tool {
	return mcp.NewTool("list_executions",
		mcp.WithDescription("Lists executions, newest first"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("actionId", mcp.Description("Only executions of this action")),
		mcp.WithString("actionType", actionTypeEnum),
		mcp.WithString("status", mcp.Enum(
			string(types.StatusPendingConfirm), string(types.StatusQueued), string(types.StatusRunning),
			string(types.StatusCompleted), string(types.StatusFailed), string(types.StatusCancelled),
			string(types.StatusTimedOut), string(types.StatusDenied),
		)),
		mcp.WithNumber("limit", mcp.Min(0)),
		mcp.WithNumber("offset", mcp.Min(0)),
	)
}

func (h *handlers) listExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		ActionID   string                `json:"actionId"`
		ActionType types.ActionType      `json:"actionType"`
		Status     types.ExecutionStatus `json:"status"`
		Limit      int                   `json:"limit"`
		Offset     int                   `json:"offset"`
	}
	if res := bind(req, &args); res != nil {
		return res, nil
	}
	if args.Status != "" && !args.Status.Valid() {
		return errorResult(types.Errorf(types.CodeInvalidRequest, "unknown status %q", args.Status))
	}
	if args.Limit < 0 || args.Offset < 0 {
		return errorResult(types.Errorf(types.CodeInvalidRequest, "limit and offset must not be negative"))
	}

	execs, err := h.Executions.List(ctx, execution.Filter{
		ActionID:   args.ActionID,
		ActionType: args.ActionType,
		Status:     args.Status,
		Limit:      args.Limit,
		Offset:     args.Offset,
	})
	if err != nil {
		return errorResult(err)
	}
	if execs == nil {
		execs = []*types.Execution{}
	}
	return jsonResult(execs)
}

func getExecutionTool() mcp.Tool {
	return mcp.NewTool("get_execution",
		mcp.WithDescription("Returns one execution with its status and result"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("id", mcp.Required(), mcp.Description("Execution ID")),
	)
}

func (h *handlers) getExecution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exec, err := h.Executions.Get(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(exec)
}

func cancelExecutionTool() mcp.Tool {
	return mcp.NewTool("cancel_execution",
		mcp.WithDescription("Cancels a queued or running execution"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Execution ID")),
	)
}

func (h *handlers) cancelExecution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exec, err := h.Executions.Cancel(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(exec)
}

func cleanupExecutionsTool() mcp.Tool {
	return mcp.NewTool("cleanup_executions",
		mcp.WithDescription("Deletes finished executions beyond the newest keepCount that are older than maxAgeDays. Omitted values use the server defaults"),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithNumber("keepCount", mcp.Min(0)),
		mcp.WithNumber("maxAgeDays", mcp.Min(0)),
	)
}

func (h *handlers) cleanupExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var opts retention.Options
	if res := bind(req, &opts); res != nil {
		return res, nil
	}
	deleted, err := h.Retention.Cleanup(ctx, opts)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]int{"deleted": deleted})
}

func listPermissionsTool() mcp.Tool {
	return mcp.NewTool("list_permissions",
		mcp.WithDescription("Lists per-action and per-type permission records"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func (h *handlers) listPermissions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	records, err := h.Permissions.List(ctx)
	if err != nil {
		return errorResult(err)
	}
	if records == nil {
		records = []*types.PermissionRecord{}
	}
	return jsonResult(records)
}
