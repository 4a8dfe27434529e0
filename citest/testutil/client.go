package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// Patch performs HTTP PATCH request with JSON body
func (c *TestClient) Patch(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPatch, path, body, opts...)
}

// Put performs HTTP PUT request with JSON body
func (c *TestClient) Put(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, body, opts...)
}

// Delete performs HTTP DELETE request
func (c *TestClient) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// ---- Error Helpers ----

// ErrorResponse is the body of a failed request
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorCode returns the error code of a failed response, or "".
func (r *Response) ErrorCode() string {
	var e ErrorResponse
	if err := r.JSON(&e); err != nil {
		return ""
	}
	return e.Error.Code
}

// expect decodes a 2xx response into v.
func expect(resp *Response, err error, what string, v interface{}) error {
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to %s: %d - %s", what, resp.StatusCode, resp.String())
	}
	if v == nil {
		return nil
	}
	return resp.JSON(v)
}

// ---- Action Helpers ----

// CreateAction creates an action from a JSON-shaped request
func (c *TestClient) CreateAction(ctx context.Context, req map[string]any) (*types.Action, error) {
	resp, err := c.Post(ctx, "/action", req)
	var action types.Action
	if err := expect(resp, err, "create action", &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// CreateWebhook creates an enabled webhook action
func (c *TestClient) CreateWebhook(ctx context.Context, name, url string) (*types.Action, error) {
	return c.CreateAction(ctx, map[string]any{
		"actionType": "webhook",
		"name":       name,
		"config":     map[string]any{"url": url, "method": "POST"},
	})
}

// CreateScript creates an enabled script action
func (c *TestClient) CreateScript(ctx context.Context, name, command string) (*types.Action, error) {
	return c.CreateAction(ctx, map[string]any{
		"actionType": "script",
		"name":       name,
		"config":     map[string]any{"command": command},
	})
}

// DeleteAction deletes an action
func (c *TestClient) DeleteAction(ctx context.Context, actionID string) error {
	resp, err := c.Delete(ctx, "/action/"+actionID)
	return expect(resp, err, "delete action", nil)
}

// Decision returns how the action would currently be gated
func (c *TestClient) Decision(ctx context.Context, actionID string) (*types.Decision, error) {
	resp, err := c.Get(ctx, "/action/"+actionID+"/decision")
	var d types.Decision
	if err := expect(resp, err, "resolve action", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Invoke requests an action run
func (c *TestClient) Invoke(ctx context.Context, actionID string, params map[string]any, opts ...RequestOption) (*types.Execution, error) {
	resp, err := c.Post(ctx, "/action/"+actionID+"/invoke", map[string]any{"parameters": params}, opts...)
	var exec types.Execution
	if err := expect(resp, err, "invoke action", &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// ---- Permission Helpers ----

// SetTypePermission upserts the per-type permission record
func (c *TestClient) SetTypePermission(ctx context.Context, actionType types.ActionType, level types.PermissionLevel) (*types.PermissionRecord, error) {
	resp, err := c.Put(ctx, "/permission", map[string]any{"actionType": actionType, "permissionLevel": level})
	var record types.PermissionRecord
	if err := expect(resp, err, "set permission", &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SetActionPermission upserts the per-action permission record
func (c *TestClient) SetActionPermission(ctx context.Context, actionID string, level types.PermissionLevel) (*types.PermissionRecord, error) {
	resp, err := c.Put(ctx, "/permission", map[string]any{"actionID": actionID, "permissionLevel": level})
	var record types.PermissionRecord
	if err := expect(resp, err, "set permission", &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListPermissions lists all permission records
func (c *TestClient) ListPermissions(ctx context.Context) ([]types.PermissionRecord, error) {
	resp, err := c.Get(ctx, "/permission")
	var records []types.PermissionRecord
	if err := expect(resp, err, "list permissions", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// DeletePermission deletes a permission record
func (c *TestClient) DeletePermission(ctx context.Context, permissionID string) error {
	resp, err := c.Delete(ctx, "/permission/"+permissionID)
	return expect(resp, err, "delete permission", nil)
}

// ---- Execution Helpers ----

// GetExecution retrieves an execution by ID
func (c *TestClient) GetExecution(ctx context.Context, executionID string) (*types.Execution, error) {
	resp, err := c.Get(ctx, "/execution/"+executionID)
	var exec types.Execution
	if err := expect(resp, err, "get execution", &exec); err != nil {
		return nil, err
	}
	return &exec, nil
}

// WaitForStatus polls an execution until it reaches status
func (c *TestClient) WaitForStatus(ctx context.Context, executionID string, status types.ExecutionStatus, timeout time.Duration) (*types.Execution, error) {
	deadline := time.Now().Add(timeout)
	for {
		exec, err := c.GetExecution(ctx, executionID)
		if err != nil {
			return nil, err
		}
		if exec.Status == status {
			return exec, nil
		}
		if time.Now().After(deadline) {
			return exec, fmt.Errorf("execution %s is %s, want %s after %v", executionID, exec.Status, status, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// ListExecutions lists executions with optional query parameters
func (c *TestClient) ListExecutions(ctx context.Context, query map[string]string) ([]types.Execution, error) {
	resp, err := c.Get(ctx, "/execution", WithQuery(query))
	var execs []types.Execution
	if err := expect(resp, err, "list executions", &execs); err != nil {
		return nil, err
	}
	return execs, nil
}

// Cleanup runs execution retention with the given options
func (c *TestClient) Cleanup(ctx context.Context, opts map[string]int) (int, error) {
	resp, err := c.Post(ctx, "/execution/cleanup", opts)
	var deleted int
	if err := expect(resp, err, "clean up executions", &deleted); err != nil {
		return 0, err
	}
	return deleted, nil
}

// ---- Confirmation Helpers ----

// ListPending lists executions awaiting confirmation
func (c *TestClient) ListPending(ctx context.Context) ([]types.PendingActionRequest, error) {
	resp, err := c.Get(ctx, "/pending")
	var pending []types.PendingActionRequest
	if err := expect(resp, err, "list pending requests", &pending); err != nil {
		return nil, err
	}
	return pending, nil
}

// RespondRequest answers a confirmation request
type RespondRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
	Remember bool   `json:"remember,omitempty"`
}

// Respond answers a pending execution and returns the raw response
func (c *TestClient) Respond(ctx context.Context, executionID string, req RespondRequest) (*Response, error) {
	return c.Post(ctx, "/pending/"+executionID, req)
}

// ---- Matrix Helpers ----

// GetMatrix returns the tool permission matrix
func (c *TestClient) GetMatrix(ctx context.Context) (*types.MatrixState, error) {
	resp, err := c.Get(ctx, "/tool-permission")
	var state types.MatrixState
	if err := expect(resp, err, "get matrix", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetQuickMode applies a matrix preset
func (c *TestClient) SetQuickMode(ctx context.Context, mode types.QuickMode) (*types.MatrixState, error) {
	resp, err := c.Put(ctx, "/tool-permission/mode", map[string]any{"mode": mode})
	var state types.MatrixState
	if err := expect(resp, err, "set quick mode", &state); err != nil {
		return nil, err
	}
	return &state, nil
}
