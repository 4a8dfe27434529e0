// Package governance provides an MCP server exposing the action catalog,
// executions and permission records as tools. Every tool is gated by the
// tool permission matrix: tools the matrix does not grant are hidden from
// tools/list and refused when called.
package governance

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/internal/retention"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// DefaultSourceClient is recorded on executions invoked through MCP when no
// client name is configured.
const DefaultSourceClient = "mcp"

// Deps are the services the tools call into.
type Deps struct {
	Actions     *catalog.Service
	Permissions *permission.Store
	Matrix      *permission.MatrixService
	Executions  *execution.Service
	Retention   *retention.Policy
}

// Option configures the server.
type Option func(*handlers)

// WithSourceClient sets the source client recorded on invoked executions.
func WithSourceClient(name string) Option {
	return func(h *handlers) {
		if name != "" {
			h.sourceClient = name
		}
	}
}

// access is one matrix cell.
type access struct {
	tool string
	kind types.PermissionKind
}

func (a access) String() string {
	return fmt.Sprintf("%s on %s", a.kind, a.tool)
}

// invokeAccess maps action types to the cell that gates invoking them.
var invokeAccess = map[types.ActionType]access{
	types.ActionTypeScript:   {permission.ToolScripts, types.PermExecute},
	types.ActionTypeWebhook:  {permission.ToolWebhooks, types.PermExecute},
	types.ActionTypeWorkflow: {permission.ToolWorkflows, types.PermExecute},
}

type handlers struct {
	Deps
	sourceClient string
	// gates lists the cells that make each tool visible; any one suffices.
	gates map[string][]access
}

func newHandlers(deps Deps, opts ...Option) *handlers {
	h := &handlers{
		Deps:         deps,
		sourceClient: DefaultSourceClient,
		gates:        make(map[string][]access),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewServer creates the governance MCP server.
func NewServer(deps Deps, version string, opts ...Option) *server.MCPServer {
	s, _ := newServer(deps, version, opts...)
	return s
}

func newServer(deps Deps, version string, opts ...Option) (*server.MCPServer, *handlers) {
	h := newHandlers(deps, opts...)

	s := server.NewMCPServer(
		"actiongate",
		version,
		server.WithToolCapabilities(true),
		server.WithToolFilter(h.filter),
		server.WithRecovery(),
	)

	readActions := access{permission.ToolActions, types.PermRead}
	writeActions := access{permission.ToolActions, types.PermWrite}
	readExecutions := access{permission.ToolExecutions, types.PermRead}

	h.add(s, listActionsTool(), h.listActions, readActions)
	h.add(s, getActionTool(), h.getAction, readActions)
	h.add(s, createActionTool(), h.createAction, writeActions)
	h.add(s, updateActionTool(), h.updateAction, writeActions)
	h.add(s, deleteActionTool(), h.deleteAction, writeActions)

	invoke := invokeActionTool()
	h.gates[invoke.Name] = []access{
		invokeAccess[types.ActionTypeScript],
		invokeAccess[types.ActionTypeWebhook],
		invokeAccess[types.ActionTypeWorkflow],
	}
	s.AddTool(invoke, h.invokeAction)

	h.add(s, listExecutionsTool(), h.listExecutions, readExecutions)
	h.add(s, getExecutionTool(), h.getExecution, readExecutions)
	h.add(s, cancelExecutionTool(), h.cancelExecution, access{permission.ToolExecutions, types.PermExecute})
	h.add(s, cleanupExecutionsTool(), h.cleanupExecutions, access{permission.ToolExecutions, types.PermWrite})
	h.add(s, listPermissionsTool(), h.listPermissions, access{permission.ToolPermissions, types.PermRead})

	return s, h
}

// add registers tool behind a single matrix cell.
func (h *handlers) add(s *server.MCPServer, tool mcp.Tool, fn server.ToolHandlerFunc, gate access) {
	h.gates[tool.Name] = []access{gate}
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if res, err := h.check(ctx, req.Params.Name, gate); res != nil || err != nil {
			return res, err
		}
		return fn(ctx, req)
	})
}

// check returns a denial result when the matrix does not grant gate.
func (h *handlers) check(ctx context.Context, name string, gate access) (*mcp.CallToolResult, error) {
	ok, err := h.Matrix.Allows(ctx, gate.tool, gate.kind)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	logging.Info().Str("tool", name).Str("requires", gate.String()).Msg("MCP tool call refused by matrix")
	return errorResult(types.Errorf(types.CodePermissionDenied, "tool permission matrix does not grant %s", gate))
}

// filter hides tools the matrix does not grant.
func (h *handlers) filter(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	visible := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		if h.visible(ctx, tool.Name) {
			visible = append(visible, tool)
		}
	}
	return visible
}

func (h *handlers) visible(ctx context.Context, name string) bool {
	for _, gate := range h.gates[name] {
		ok, err := h.Matrix.Allows(ctx, gate.tool, gate.kind)
		if err != nil {
			logging.Warn().Err(err).Str("tool", name).Msg("matrix lookup failed")
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports governance errors to the model as tool errors.
// Other errors fail the call.
func errorResult(err error) (*mcp.CallToolResult, error) {
	if code := types.CodeOf(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", code, err.Error())), nil
	}
	return nil, err
}

// bind decodes the call arguments into v.
func bind(req mcp.CallToolRequest, v any) *mcp.CallToolResult {
	err := req.BindArguments(v)
	if err == nil {
		return nil
	}
	if types.CodeOf(err) == "" {
		err = types.Errorf(types.CodeInvalidRequest, "invalid arguments: %v", err)
	}
	res, _ := errorResult(err)
	return res
}
