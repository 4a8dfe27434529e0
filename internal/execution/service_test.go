package execution

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeActions map[string]*types.Action

func (f fakeActions) Get(_ context.Context, id string) (*types.Action, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return nil, types.Errorf(types.CodeActionNotFound, "action %s not found", id)
}

// fakeResolver returns the level configured for the action ID, or
// require_confirm.
type fakeResolver map[string]types.PermissionLevel

func (f fakeResolver) Resolve(_ context.Context, a *types.Action) (types.Decision, error) {
	if !a.IsEnabled {
		return types.Decision{Level: types.LevelDeny, Source: types.SourceDisabled}, nil
	}
	if level, ok := f[a.ID]; ok {
		return types.Decision{Level: level, Source: types.SourceAction}, nil
	}
	return types.Decision{Level: types.LevelRequireConfirm, Source: types.SourceDefault}, nil
}

type fixture struct {
	svc     *Service
	clock   *fakeClock
	actions fakeActions
	levels  fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock: newFakeClock(),
		actions: fakeActions{
			"act_confirm": {ID: "act_confirm", ActionType: types.ActionTypeWebhook, Name: "deploy-staging", IsEnabled: true},
			"act_auto":    {ID: "act_auto", ActionType: types.ActionTypeScript, Name: "run-tests", IsEnabled: true},
			"act_deny":    {ID: "act_deny", ActionType: types.ActionTypeScript, Name: "drop-db", IsEnabled: true},
			"act_off":     {ID: "act_off", ActionType: types.ActionTypeWorkflow, Name: "release", IsEnabled: false},
		},
		levels: fakeResolver{
			"act_auto": types.LevelAutoApprove,
			"act_deny": types.LevelDeny,
		},
	}
	f.svc = NewService(storage.New(t.TempDir()), f.actions, f.levels, nil,
		WithClock(f.clock.Now), WithConfirmTimeout(5*time.Minute))
	return f
}

func (f *fixture) invoke(t *testing.T, actionID string) *types.Execution {
	t.Helper()
	exec, err := f.svc.Invoke(context.Background(), InvokeInput{ActionID: actionID, SourceClient: "agent-1"})
	require.NoError(t, err)
	return exec
}

// running returns an execution that has been approved and started.
func (f *fixture) running(t *testing.T) *types.Execution {
	t.Helper()
	exec := f.invoke(t, "act_auto")
	exec, err := f.svc.Start(context.Background(), exec.ID)
	require.NoError(t, err)
	return exec
}

func assertPairing(t *testing.T, e *types.Execution) {
	t.Helper()
	terminal := e.Status.IsTerminal()
	assert.Equal(t, terminal, e.CompletedAt != nil, "completedAt for %s", e.Status)
	assert.Equal(t, terminal, e.DurationMs != nil, "durationMs for %s", e.Status)
}

func TestInvokeInitialStatus(t *testing.T) {
	tests := []struct {
		actionID string
		status   types.ExecutionStatus
	}{
		{"act_confirm", types.StatusPendingConfirm},
		{"act_auto", types.StatusQueued},
		{"act_deny", types.StatusDenied},
	}

	for _, tt := range tests {
		t.Run(tt.actionID, func(t *testing.T) {
			f := newFixture(t)
			exec := f.invoke(t, tt.actionID)

			assert.Equal(t, tt.status, exec.Status)
			assert.Equal(t, "agent-1", exec.SourceClient)
			require.NotNil(t, exec.ActionID)
			assert.Equal(t, tt.actionID, *exec.ActionID)
			assert.Equal(t, f.actions[tt.actionID].Name, exec.ActionName)
			require.NotNil(t, exec.Decision)
			assertPairing(t, exec)

			stored, err := f.svc.Get(context.Background(), exec.ID)
			require.NoError(t, err)
			assert.Equal(t, exec.Status, stored.Status)
		})
	}
}

func TestInvokeDeniedByPolicy(t *testing.T) {
	f := newFixture(t)
	exec := f.invoke(t, "act_deny")

	require.NotNil(t, exec.ErrorMessage)
	assert.Equal(t, MsgDeniedByPolicy, *exec.ErrorMessage)
	assert.Equal(t, int64(0), *exec.DurationMs)
}

func TestInvokePendingDeadline(t *testing.T) {
	f := newFixture(t)
	exec := f.invoke(t, "act_confirm")

	require.NotNil(t, exec.ConfirmDeadline)
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), *exec.ConfirmDeadline)
}

func TestInvokeDisabledRecordsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Invoke(context.Background(), InvokeInput{ActionID: "act_off"})
	assert.ErrorIs(t, err, types.ErrActionDisabled)

	execs, err := f.svc.List(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestInvokeUnknownAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Invoke(context.Background(), InvokeInput{ActionID: "act_missing"})
	assert.ErrorIs(t, err, types.ErrActionNotFound)
}

func TestApproveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec := f.invoke(t, "act_confirm")

	first, err := f.svc.Approve(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, first.Status)
	assert.Nil(t, first.ConfirmDeadline)

	second, err := f.svc.Approve(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDenyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec := f.invoke(t, "act_confirm")

	first, err := f.svc.Deny(ctx, exec.ID, "not during the freeze")
	require.NoError(t, err)
	assert.Equal(t, types.StatusDenied, first.Status)
	assert.Equal(t, "not during the freeze", *first.ErrorMessage)
	assertPairing(t, first)

	second, err := f.svc.Deny(ctx, exec.ID, "again")
	require.NoError(t, err)
	assert.Equal(t, "not during the freeze", *second.ErrorMessage, "second deny changes nothing")
}

func TestDenyDefaultReason(t *testing.T) {
	f := newFixture(t)
	exec := f.invoke(t, "act_confirm")

	denied, err := f.svc.Deny(context.Background(), exec.ID, "")
	require.NoError(t, err)
	assert.Equal(t, MsgDeniedByUser, *denied.ErrorMessage)
}

func TestApproveAfterDenyAndDenyAfterApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	denied := f.invoke(t, "act_confirm")
	_, err := f.svc.Deny(ctx, denied.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, denied.ID)
	assert.ErrorIs(t, err, types.ErrExecutionNoLongerPending)

	// A deny that loses to an approval observes the queued execution.
	approved := f.invoke(t, "act_confirm")
	queued, err := f.svc.Approve(ctx, approved.ID)
	require.NoError(t, err)
	late, err := f.svc.Deny(ctx, approved.ID, "too late")
	require.NoError(t, err)
	assert.Equal(t, queued, late)
	assert.Nil(t, late.ErrorMessage)

	// Once running, the request is no longer answerable either way.
	_, err = f.svc.Start(ctx, approved.ID)
	require.NoError(t, err)
	_, err = f.svc.Deny(ctx, approved.ID, "")
	assert.ErrorIs(t, err, types.ErrExecutionNoLongerPending)
	_, err = f.svc.Approve(ctx, approved.ID)
	assert.ErrorIs(t, err, types.ErrExecutionNoLongerPending)
}

func TestApproveUnknownExecution(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Approve(context.Background(), "exe_missing")
	assert.ErrorIs(t, err, types.ErrExecutionNotFound)
}

func TestTimeoutBeatsLateApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec := f.invoke(t, "act_confirm")

	f.clock.Advance(5 * time.Minute)

	got, err := f.svc.Approve(ctx, exec.ID)
	assert.ErrorIs(t, err, types.ErrExecutionNoLongerPending)
	require.NotNil(t, got)
	assert.Equal(t, types.StatusTimedOut, got.Status)

	stored, err := f.svc.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTimedOut, stored.Status)
	assert.Equal(t, MsgTimedOut, *stored.ErrorMessage)
	assert.Equal(t, (5 * time.Minute).Milliseconds(), *stored.DurationMs)
	assertPairing(t, stored)

	_, err = f.svc.Deny(ctx, exec.ID, "")
	assert.ErrorIs(t, err, types.ErrExecutionNoLongerPending)
}

func TestApproveJustBeforeDeadline(t *testing.T) {
	f := newFixture(t)
	exec := f.invoke(t, "act_confirm")

	f.clock.Advance(5*time.Minute - time.Millisecond)

	got, err := f.svc.Approve(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusQueued, got.Status)
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old := f.invoke(t, "act_confirm")
	f.clock.Advance(3 * time.Minute)
	fresh := f.invoke(t, "act_confirm")
	f.clock.Advance(3 * time.Minute)

	n, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusTimedOut, got.Status)

	got, err = f.svc.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingConfirm, got.Status)

	unchanged, err := f.svc.Expire(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPendingConfirm, unchanged.Status)
}

func TestConfirmTimeoutChangeKeepsExistingDeadlines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before := f.invoke(t, "act_confirm")
	f.svc.SetConfirmTimeout(time.Minute)
	after := f.invoke(t, "act_confirm")

	assert.Equal(t, before.StartedAt.Add(5*time.Minute), *before.ConfirmDeadline)
	assert.Equal(t, after.StartedAt.Add(time.Minute), *after.ConfirmDeadline)

	f.clock.Advance(2 * time.Minute)
	n, err := f.svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.svc.SetConfirmTimeout(0)
	assert.Equal(t, time.Minute, f.svc.ConfirmTimeout(), "non-positive timeouts are ignored")
}

func TestExecutorLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exec := f.running(t)
	assert.Equal(t, types.StatusRunning, exec.Status)
	assertPairing(t, exec)

	f.clock.Advance(1500 * time.Millisecond)
	done, err := f.svc.Complete(ctx, exec.ID, map[string]any{"exitCode": 0})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, done.Status)
	assert.Equal(t, int64(1500), *done.DurationMs)
	assert.Nil(t, done.ErrorMessage)
	assertPairing(t, done)

	failed := f.running(t)
	failed, err = f.svc.Fail(ctx, failed.ID, "exit status 2")
	require.NoError(t, err)
	assert.Equal(t, "exit status 2", *failed.ErrorMessage)
	assert.Nil(t, failed.Result)
	assertPairing(t, failed)
}

func TestCompleteWithoutResultStoresEmptyResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exec := f.running(t)
	_, err := f.svc.Complete(ctx, exec.ID, nil)
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Result, "completed executions keep a result after a reload")
	assert.Empty(t, stored.Result)
}

func TestStartRequiresQueued(t *testing.T) {
	f := newFixture(t)
	exec := f.invoke(t, "act_confirm")

	_, err := f.svc.Start(context.Background(), exec.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = f.svc.Complete(context.Background(), f.invoke(t, "act_auto").ID, nil)
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "complete requires running")
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	queued := f.invoke(t, "act_auto")
	cancelled, err := f.svc.Cancel(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	assertPairing(t, cancelled)

	running := f.running(t)
	cancelled, err = f.svc.Cancel(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)

	pending := f.invoke(t, "act_confirm")
	_, err = f.svc.Cancel(ctx, pending.ID)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	_, err = f.svc.Complete(ctx, running.ID, nil)
	assert.ErrorIs(t, err, types.ErrInvalidTransition, "cancellation is final")
}

func TestTerminalImmutability(t *testing.T) {
	ctx := context.Background()

	makers := map[types.ExecutionStatus]func(f *fixture, t *testing.T) *types.Execution{
		types.StatusDenied: func(f *fixture, t *testing.T) *types.Execution { return f.invoke(t, "act_deny") },
		types.StatusCancelled: func(f *fixture, t *testing.T) *types.Execution {
			e, err := f.svc.Cancel(ctx, f.invoke(t, "act_auto").ID)
			require.NoError(t, err)
			return e
		},
		types.StatusCompleted: func(f *fixture, t *testing.T) *types.Execution {
			e, err := f.svc.Complete(ctx, f.running(t).ID, map[string]any{"ok": true})
			require.NoError(t, err)
			return e
		},
		types.StatusFailed: func(f *fixture, t *testing.T) *types.Execution {
			e, err := f.svc.Fail(ctx, f.running(t).ID, "boom")
			require.NoError(t, err)
			return e
		},
		types.StatusTimedOut: func(f *fixture, t *testing.T) *types.Execution {
			e := f.invoke(t, "act_confirm")
			f.clock.Advance(time.Hour)
			e, err := f.svc.Expire(ctx, e.ID)
			require.NoError(t, err)
			return e
		},
	}

	for status, makeExec := range makers {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t)
			exec := makeExec(f, t)
			require.Equal(t, status, exec.Status)
			before, _ := json.Marshal(exec)

			f.clock.Advance(time.Minute)
			attempts := map[string]func() error{
				"start":    func() error { _, err := f.svc.Start(ctx, exec.ID); return err },
				"complete": func() error { _, err := f.svc.Complete(ctx, exec.ID, nil); return err },
				"fail":     func() error { _, err := f.svc.Fail(ctx, exec.ID, "x"); return err },
				"cancel":   func() error { _, err := f.svc.Cancel(ctx, exec.ID); return err },
			}
			for name, attempt := range attempts {
				assert.ErrorIs(t, attempt(), types.ErrInvalidTransition, name)
			}

			stored, err := f.svc.Get(ctx, exec.ID)
			require.NoError(t, err)
			after, _ := json.Marshal(stored)
			assert.JSONEq(t, string(before), string(after), "record unchanged")
		})
	}
}

func TestConcurrentApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec := f.invoke(t, "act_confirm")

	var wg sync.WaitGroup
	results := make([]*types.Execution, 10)
	errs := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Approve(ctx, exec.ID)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, types.StatusQueued, results[i].Status)
	}
}

func TestConcurrentApproveAndDenyHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec := f.invoke(t, "act_confirm")

	var wg sync.WaitGroup
	var approveErr, denyErr error
	wg.Add(2)
	go func() { defer wg.Done(); _, approveErr = f.svc.Approve(ctx, exec.ID) }()
	go func() { defer wg.Done(); _, denyErr = f.svc.Deny(ctx, exec.ID, "") }()
	wg.Wait()

	stored, err := f.svc.Get(ctx, exec.ID)
	require.NoError(t, err)

	switch stored.Status {
	case types.StatusQueued:
		assert.NoError(t, approveErr)
		assert.ErrorIs(t, denyErr, types.ErrExecutionNoLongerPending)
	case types.StatusDenied:
		assert.NoError(t, denyErr)
		assert.ErrorIs(t, approveErr, types.ErrExecutionNoLongerPending)
	default:
		t.Fatalf("unexpected status %s", stored.Status)
	}
}

func TestListPendingIsFIFO(t *testing.T) {
	f := newFixture(t)

	var want []string
	for i := 0; i < 3; i++ {
		want = append(want, f.invoke(t, "act_confirm").ID)
		f.clock.Advance(time.Second)
	}
	// Same timestamp: creation order via ID.
	want = append(want, f.invoke(t, "act_confirm").ID, f.invoke(t, "act_confirm").ID)
	f.invoke(t, "act_auto")

	pending, err := f.svc.ListPending(context.Background())
	require.NoError(t, err)

	var got []string
	for _, e := range pending {
		got = append(got, e.ID)
	}
	assert.Equal(t, want, got)
}

func TestListFiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for _, id := range []string{"act_confirm", "act_auto", "act_deny", "act_auto"} {
		ids = append(ids, f.invoke(t, id).ID)
		f.clock.Advance(time.Second)
	}

	all, err := f.svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].ID, "newest first")

	scripts, err := f.svc.List(ctx, Filter{ActionType: types.ActionTypeScript})
	require.NoError(t, err)
	assert.Len(t, scripts, 3)

	auto, err := f.svc.List(ctx, Filter{ActionID: "act_auto"})
	require.NoError(t, err)
	assert.Len(t, auto, 2)

	denied, err := f.svc.List(ctx, Filter{Status: types.StatusDenied})
	require.NoError(t, err)
	require.Len(t, denied, 1)
	assert.Equal(t, ids[2], denied[0].ID)

	page, err := f.svc.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)
	assert.Equal(t, ids[1], page[1].ID)

	empty, err := f.svc.List(ctx, Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRemoveOnlyTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.invoke(t, "act_confirm")
	removed, err := f.svc.Remove(ctx, pending.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	denied := f.invoke(t, "act_deny")
	removed, err = f.svc.Remove(ctx, denied.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = f.svc.Get(ctx, denied.ID)
	assert.ErrorIs(t, err, types.ErrExecutionNotFound)

	removed, err = f.svc.Remove(ctx, denied.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(types.StatusPendingConfirm, types.StatusTimedOut))
	assert.True(t, CanTransition(types.StatusQueued, types.StatusCancelled))
	assert.False(t, CanTransition(types.StatusPendingConfirm, types.StatusRunning))
	assert.False(t, CanTransition(types.StatusQueued, types.StatusCompleted))
	for _, terminal := range []types.ExecutionStatus{
		types.StatusCompleted, types.StatusFailed, types.StatusCancelled, types.StatusTimedOut, types.StatusDenied,
	} {
		assert.Empty(t, transitions[terminal], "%s has no outgoing transitions", terminal)
	}
}
