// Package server provides the HTTP API of the action governance server.
//
// The API is a thin chi layer over the governance services. Handlers decode
// the request, call one service operation and encode the result; every
// state change and every policy decision happens in the services.
//
// # API Endpoints
//
//   - /action/*: action catalog and invocation
//   - /permission/*: per-action and per-type permission records
//   - /execution/*: execution history, executor reporting and cleanup
//   - /pending/*: confirmation requests awaiting a human response
//   - /tool-permission/*: the tool permission matrix for MCP callers
//   - /event: Server-Sent Events stream of change notifications
//   - /health: liveness
//   - /metrics: Prometheus scrape endpoint, when Services.Metrics is set
//
// # Errors
//
// Errors are written as {"error":{"code":...,"message":...}}. Governance
// error codes pass through unchanged and choose the status: not-found codes
// map to 404, ACTION_DISABLED and PERMISSION_DENIED to 403,
// EXECUTION_NO_LONGER_PENDING and INVALID_TRANSITION to 409 and validation
// codes to 400.
//
// A policy denial is not an error. Invoking an action whose permission
// level is deny returns 200 with an execution in status denied, so callers
// can tell a denial from a disabled action (403 ACTION_DISABLED).
//
// # Event System
//
// GET /event streams every bus event as an SSE message of the form
// {"type":"execution.updated","properties":{...}}. The stream reads from the
// bus's watermill topic; it is a convenience for UIs, and polling
// /pending or /execution is always a safe fallback.
//
// # Usage Example
//
//	srv := server.New(server.DefaultConfig(), server.Services{
//		Actions:     actions,
//		Permissions: records,
//		Resolver:    resolver,
//		Matrix:      matrix,
//		Executions:  executions,
//		Approvals:   approvals,
//		Retention:   policy,
//		Bus:         bus,
//	})
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
