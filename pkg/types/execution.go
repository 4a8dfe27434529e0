package types

import "time"

// ExecutionStatus is a state of the execution lifecycle.
type ExecutionStatus string

const (
	StatusPendingConfirm ExecutionStatus = "pending_confirm"
	StatusQueued         ExecutionStatus = "queued"
	StatusRunning        ExecutionStatus = "running"
	StatusCompleted      ExecutionStatus = "completed"
	StatusFailed         ExecutionStatus = "failed"
	StatusCancelled      ExecutionStatus = "cancelled"
	StatusTimedOut       ExecutionStatus = "timed_out"
	StatusDenied         ExecutionStatus = "denied"
)

var terminalStatuses = map[ExecutionStatus]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
	StatusTimedOut:  true,
	StatusDenied:    true,
}

// IsTerminal reports whether no transition may leave s.
func (s ExecutionStatus) IsTerminal() bool {
	return terminalStatuses[s]
}

// Valid reports whether s is a known status.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case StatusPendingConfirm, StatusQueued, StatusRunning:
		return true
	}
	return terminalStatuses[s]
}

// Execution records one attempt to invoke an action.
type Execution struct {
	ID           string          `json:"id"`
	ActionID     *string         `json:"actionID,omitempty"`
	ActionType   ActionType      `json:"actionType"`
	ActionName   string          `json:"actionName"`
	SourceClient string          `json:"sourceClient,omitempty"`
	Parameters   map[string]any  `json:"parameters,omitempty"`
	Status       ExecutionStatus `json:"status"`
	Result       map[string]any  `json:"result"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
	StartedAt    time.Time       `json:"startedAt"`
	// ConfirmDeadline is set while the execution awaits confirmation.
	ConfirmDeadline *time.Time `json:"confirmDeadline,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	DurationMs      *int64     `json:"durationMs,omitempty"`
	// Decision explains how the initial permission level was chosen.
	Decision *Decision `json:"decision,omitempty"`
}

// Finalize stamps completion time and duration. Called exactly once, on the
// transition into a terminal status.
func (e *Execution) Finalize(at time.Time) {
	completed := at
	duration := at.Sub(e.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	e.CompletedAt = &completed
	e.DurationMs = &duration
	e.ConfirmDeadline = nil
}

// DecisionSource names the tier that produced a permission level.
type DecisionSource string

const (
	SourceDisabled DecisionSource = "disabled"
	SourceAction   DecisionSource = "action"
	SourceType     DecisionSource = "type"
	SourceDefault  DecisionSource = "default"
)

// Decision is a resolved permission level plus where it came from.
type Decision struct {
	Level    PermissionLevel `json:"level"`
	Source   DecisionSource  `json:"source"`
	RecordID string          `json:"recordID,omitempty"`
}

// PendingActionRequest is the view of a pending_confirm execution shown to a
// human approver.
type PendingActionRequest struct {
	ExecutionID       string         `json:"executionID"`
	ActionID          *string        `json:"actionID,omitempty"`
	ActionType        ActionType     `json:"actionType"`
	ActionName        string         `json:"actionName"`
	ActionDescription string         `json:"actionDescription,omitempty"`
	SourceClient      string         `json:"sourceClient,omitempty"`
	Parameters        map[string]any `json:"parameters,omitempty"`
	RequestedAt       time.Time      `json:"requestedAt"`
	ExpiresAt         *time.Time     `json:"expiresAt,omitempty"`
}

// RequestResponse acknowledges a human response to a pending request.
type RequestResponse struct {
	ExecutionID string          `json:"executionID"`
	Approved    bool            `json:"approved"`
	RespondedAt time.Time       `json:"respondedAt"`
	Status      ExecutionStatus `json:"status"`
}
