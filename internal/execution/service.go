// Package execution implements the execution lifecycle: the state machine an
// invocation moves through from request to terminal outcome.
//
// Every status change goes through Service. Transitions on one execution are
// serialized with a per-ID lock and committed with a locked
// read-modify-write on the store, so concurrent approve, deny, timeout and
// cancel calls resolve to exactly one winner.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Messages recorded on executions the governance layer terminates.
const (
	MsgDeniedByPolicy = "denied by policy"
	MsgDeniedByUser   = "denied by user"
	MsgTimedOut       = "confirmation timed out"
)

// ActionSource looks up actions by ID.
type ActionSource interface {
	Get(ctx context.Context, actionID string) (*types.Action, error)
}

// Resolver decides the permission level of an action.
type Resolver interface {
	Resolve(ctx context.Context, action *types.Action) (types.Decision, error)
}

// Service manages executions.
type Service struct {
	storage  *storage.Storage
	actions  ActionSource
	resolver Resolver
	bus      *event.Bus
	now      func() time.Time
	timeout  atomic.Int64
	locks    *keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now. Used by tests to drive deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithConfirmTimeout sets the pending_confirm deadline.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) { s.SetConfirmTimeout(d) }
}

// NewService creates an execution service. bus may be nil.
func NewService(store *storage.Storage, actions ActionSource, resolver Resolver, bus *event.Bus, opts ...Option) *Service {
	s := &Service{
		storage:  store,
		actions:  actions,
		resolver: resolver,
		bus:      bus,
		now:      time.Now,
		locks:    newKeyedMutex(),
	}
	s.timeout.Store(int64(types.DefaultConfirmTimeout))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetConfirmTimeout changes the deadline given to new pending executions.
// Existing executions keep theirs.
func (s *Service) SetConfirmTimeout(d time.Duration) {
	if d > 0 {
		s.timeout.Store(int64(d))
	}
}

// ConfirmTimeout returns the current confirmation timeout.
func (s *Service) ConfirmTimeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

func executionPath(id string) []string {
	return []string{"execution", id}
}

// InvokeInput is a request to run an action.
type InvokeInput struct {
	ActionID     string
	Parameters   map[string]any
	SourceClient string
}

// Invoke records a request to run an action and moves it to the status its
// permission level dictates: denied, pending_confirm or queued. A policy
// denial is a normal result, not an error; a disabled action returns
// ErrActionDisabled and records nothing.
func (s *Service) Invoke(ctx context.Context, input InvokeInput) (*types.Execution, error) {
	action, err := s.actions.Get(ctx, input.ActionID)
	if err != nil {
		return nil, err
	}
	if !action.IsEnabled {
		return nil, types.Errorf(types.CodeActionDisabled, "action %s is disabled", action.Name)
	}

	decision, err := s.resolver.Resolve(ctx, action)
	if err != nil {
		return nil, err
	}
	status, ok := initialStatus[decision.Level]
	if !ok {
		return nil, fmt.Errorf("resolver returned unknown level %q", decision.Level)
	}

	now := s.now().UTC()
	actionID := action.ID
	exec := &types.Execution{
		ID:           "exe_" + ulid.Make().String(),
		ActionID:     &actionID,
		ActionType:   action.ActionType,
		ActionName:   action.Name,
		SourceClient: input.SourceClient,
		Parameters:   input.Parameters,
		Status:       status,
		StartedAt:    now,
		Decision:     &decision,
	}

	switch status {
	case types.StatusDenied:
		msg := MsgDeniedByPolicy
		exec.ErrorMessage = &msg
		exec.Finalize(now)
	case types.StatusPendingConfirm:
		deadline := now.Add(s.ConfirmTimeout())
		exec.ConfirmDeadline = &deadline
	}

	if err := s.storage.Put(ctx, executionPath(exec.ID), exec); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	ev := logging.Debug()
	if status == types.StatusDenied {
		ev = logging.Info()
	}
	ev.Str("executionID", exec.ID).
		Str("actionID", action.ID).
		Str("status", string(status)).
		Str("source", string(decision.Source)).
		Str("client", input.SourceClient).
		Msg("execution created")

	s.publish(exec)
	return exec, nil
}

// errUnchanged aborts a transition without writing; the current record is
// returned to the caller as a success.
var errUnchanged = errors.New("unchanged")

// transition runs fn on the stored execution under its lock and commits the
// result. fn returning an error leaves the record untouched.
func (s *Service) transition(ctx context.Context, id string, fn func(e *types.Execution, now time.Time) error) (*types.Execution, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	var exec types.Execution
	err := s.storage.Update(ctx, executionPath(id), &exec, func() error {
		return fn(&exec, s.now().UTC())
	})
	switch {
	case err == nil:
		logging.Debug().
			Str("executionID", exec.ID).
			Str("status", string(exec.Status)).
			Msg("execution transitioned")
		s.publish(&exec)
		return &exec, nil
	case errors.Is(err, errUnchanged):
		return &exec, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, types.Errorf(types.CodeExecutionNotFound, "execution %s not found", id)
	default:
		return nil, err
	}
}

// overdue reports whether a pending execution has passed its deadline.
func overdue(e *types.Execution, now time.Time) bool {
	return e.Status == types.StatusPendingConfirm && e.ConfirmDeadline != nil && !now.Before(*e.ConfirmDeadline)
}

func expire(e *types.Execution, now time.Time) {
	msg := MsgTimedOut
	e.Status = types.StatusTimedOut
	e.ErrorMessage = &msg
	e.Finalize(now)
}

// resolvePending commits decide on a pending execution. An overdue execution
// is timed out instead and the caller gets ErrExecutionNoLongerPending.
// An execution already in settled status, or already queued by a concurrent
// approval, is returned unchanged so the loser observes the winner's result.
func (s *Service) resolvePending(ctx context.Context, id string, settled types.ExecutionStatus, decide func(e *types.Execution, now time.Time)) (*types.Execution, error) {
	var expired bool
	exec, err := s.transition(ctx, id, func(e *types.Execution, now time.Time) error {
		switch {
		case overdue(e, now):
			expire(e, now)
			expired = true
			return nil
		case e.Status == types.StatusPendingConfirm:
			decide(e, now)
			return nil
		case e.Status == settled, e.Status == types.StatusQueued:
			return errUnchanged
		default:
			return types.Errorf(types.CodeExecutionNoLongerPending, "execution %s is %s", e.ID, e.Status)
		}
	})
	if err != nil {
		return nil, err
	}
	if expired {
		logging.Info().Str("executionID", id).Msg("confirmation expired before response")
		return exec, types.Errorf(types.CodeExecutionNoLongerPending, "execution %s timed out", id)
	}
	return exec, nil
}

// Approve moves a pending execution to queued. Approving an execution that
// is already queued returns it unchanged.
func (s *Service) Approve(ctx context.Context, id string) (*types.Execution, error) {
	return s.resolvePending(ctx, id, types.StatusQueued, func(e *types.Execution, _ time.Time) {
		e.Status = types.StatusQueued
		e.ConfirmDeadline = nil
	})
}

// Deny moves a pending execution to denied, recording reason (or a default)
// as its error message. Denying an execution that is already denied, or that
// a concurrent approval already queued, returns it unchanged.
func (s *Service) Deny(ctx context.Context, id, reason string) (*types.Execution, error) {
	if reason == "" {
		reason = MsgDeniedByUser
	}
	return s.resolvePending(ctx, id, types.StatusDenied, func(e *types.Execution, now time.Time) {
		e.Status = types.StatusDenied
		e.ErrorMessage = &reason
		e.Finalize(now)
	})
}

// Start marks a queued execution as running once an executor accepts it.
func (s *Service) Start(ctx context.Context, id string) (*types.Execution, error) {
	return s.transition(ctx, id, func(e *types.Execution, _ time.Time) error {
		if err := checkTransition(e, types.StatusRunning); err != nil {
			return err
		}
		e.Status = types.StatusRunning
		return nil
	})
}

// Complete records a successful outcome.
func (s *Service) Complete(ctx context.Context, id string, result map[string]any) (*types.Execution, error) {
	return s.transition(ctx, id, func(e *types.Execution, now time.Time) error {
		if err := checkTransition(e, types.StatusCompleted); err != nil {
			return err
		}
		if result == nil {
			result = map[string]any{}
		}
		e.Status = types.StatusCompleted
		e.Result = result
		e.Finalize(now)
		return nil
	})
}

// Fail records an executor error. This is an outcome of the action, not a
// governance error.
func (s *Service) Fail(ctx context.Context, id, message string) (*types.Execution, error) {
	if message == "" {
		message = "execution failed"
	}
	return s.transition(ctx, id, func(e *types.Execution, now time.Time) error {
		if err := checkTransition(e, types.StatusFailed); err != nil {
			return err
		}
		e.Status = types.StatusFailed
		e.ErrorMessage = &message
		e.Finalize(now)
		return nil
	})
}

// Cancel stops a queued or running execution. Once accepted it is final.
func (s *Service) Cancel(ctx context.Context, id string) (*types.Execution, error) {
	return s.transition(ctx, id, func(e *types.Execution, now time.Time) error {
		if err := checkTransition(e, types.StatusCancelled); err != nil {
			return err
		}
		e.Status = types.StatusCancelled
		e.Finalize(now)
		return nil
	})
}

// Expire times out a pending execution whose deadline has passed. It returns
// the execution unchanged when it is not overdue.
func (s *Service) Expire(ctx context.Context, id string) (*types.Execution, error) {
	return s.transition(ctx, id, func(e *types.Execution, now time.Time) error {
		if !overdue(e, now) {
			return errUnchanged
		}
		expire(e, now)
		logging.Info().Str("executionID", e.ID).Msg("confirmation timed out")
		return nil
	})
}

// ExpireOverdue times out every overdue pending execution and returns how
// many were expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	pending, err := s.ListPending(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var expired int
	for _, exec := range pending {
		if !overdue(exec, now) {
			continue
		}
		updated, err := s.Expire(ctx, exec.ID)
		if err != nil {
			if types.CodeOf(err) == types.CodeExecutionNotFound {
				continue
			}
			return expired, err
		}
		if updated.Status == types.StatusTimedOut {
			expired++
		}
	}
	return expired, nil
}

// Get retrieves an execution by ID.
func (s *Service) Get(ctx context.Context, id string) (*types.Execution, error) {
	var exec types.Execution
	if err := s.storage.Get(ctx, executionPath(id), &exec); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.Errorf(types.CodeExecutionNotFound, "execution %s not found", id)
		}
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}
	return &exec, nil
}

// Filter selects executions in List. Zero values match everything.
type Filter struct {
	ActionID   string
	ActionType types.ActionType
	Status     types.ExecutionStatus
	Limit      int
	Offset     int
}

func (f Filter) matches(e *types.Execution) bool {
	if f.ActionID != "" && (e.ActionID == nil || *e.ActionID != f.ActionID) {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

// scan reads every execution matching filter, unordered. Reads take no
// locks; a listing may be slightly stale.
func (s *Service) scan(ctx context.Context, filter Filter) ([]*types.Execution, error) {
	var out []*types.Execution
	err := s.storage.Scan(ctx, []string{"execution"}, func(key string, data json.RawMessage) error {
		var exec types.Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			logging.Warn().Err(err).Str("executionID", key).Msg("skipping unreadable execution")
			return nil
		}
		if filter.matches(&exec) {
			out = append(out, &exec)
		}
		return nil
	})
	return out, err
}

// List returns executions matching filter, newest first, paged by Limit and
// Offset.
func (s *Service) List(ctx context.Context, filter Filter) ([]*types.Execution, error) {
	execs, err := s.scan(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(execs)

	if filter.Offset > 0 {
		if filter.Offset >= len(execs) {
			return []*types.Execution{}, nil
		}
		execs = execs[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(execs) {
		execs = execs[:filter.Limit]
	}
	return execs, nil
}

// ListPending returns pending_confirm executions oldest first.
func (s *Service) ListPending(ctx context.Context) ([]*types.Execution, error) {
	execs, err := s.scan(ctx, Filter{Status: types.StatusPendingConfirm})
	if err != nil {
		return nil, err
	}
	sort.Slice(execs, func(i, j int) bool {
		if !execs[i].StartedAt.Equal(execs[j].StartedAt) {
			return execs[i].StartedAt.Before(execs[j].StartedAt)
		}
		return execs[i].ID < execs[j].ID
	})
	return execs, nil
}

// SortNewestFirst orders executions by StartedAt descending, ID breaking ties.
func SortNewestFirst(execs []*types.Execution) {
	sort.Slice(execs, func(i, j int) bool {
		if !execs[i].StartedAt.Equal(execs[j].StartedAt) {
			return execs[i].StartedAt.After(execs[j].StartedAt)
		}
		return execs[i].ID > execs[j].ID
	})
}

// Remove deletes a terminal execution. It reports false without deleting
// when the execution is missing or not terminal.
func (s *Service) Remove(ctx context.Context, id string) (bool, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	exec, err := s.Get(ctx, id)
	if err != nil {
		if types.CodeOf(err) == types.CodeExecutionNotFound {
			return false, nil
		}
		return false, err
	}
	if !exec.Status.IsTerminal() {
		return false, nil
	}
	if err := s.storage.Delete(ctx, executionPath(id)); err != nil {
		return false, fmt.Errorf("failed to delete execution: %w", err)
	}
	return true, nil
}

// Bus returns the event bus executions are announced on, or nil.
func (s *Service) Bus() *event.Bus {
	return s.bus
}

func (s *Service) publish(exec *types.Execution) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: event.ExecutionUpdated,
		Data: event.ExecutionUpdatedData{
			ExecutionID: exec.ID,
			NewStatus:   exec.Status,
			Info:        exec,
		},
	})
}
