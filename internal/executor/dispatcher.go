package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Messages recorded when the dispatcher cannot run an execution.
const (
	MsgNoBackend     = "no executor registered for %s actions"
	MsgActionMissing = "action no longer exists"
	MsgShutdown      = "executor shut down"
)

// Options configures a Dispatcher.
type Options struct {
	// Concurrency bounds how many executions run at once.
	Concurrency int
	// PollInterval is the fallback scan interval when events are missed.
	PollInterval time.Duration
	// Backends maps action types to runners. Nil uses DefaultBackends.
	Backends map[types.ActionType]Backend
}

// OptionsFromConfig builds dispatcher options from cfg.
func OptionsFromConfig(cfg *types.Config) Options {
	return Options{
		Concurrency:  cfg.ExecutorConcurrency(),
		PollInterval: cfg.ExecutorPollInterval(),
	}
}

// Dispatcher claims queued executions and runs them. Queued executions are
// picked up when an execution.updated event announces them, with a periodic
// scan as fallback. Claiming goes through the queued to running transition,
// so several dispatchers over one store never run an execution twice.
type Dispatcher struct {
	executions *execution.Service
	actions    execution.ActionSource
	backends   map[types.ActionType]Backend
	limit      int
	interval   time.Duration

	wake chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	unsub   func()
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(executions *execution.Service, actions execution.ActionSource, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = types.DefaultExecutorConcurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = types.DefaultPollInterval
	}
	if opts.Backends == nil {
		opts.Backends = DefaultBackends()
	}
	return &Dispatcher{
		executions: executions,
		actions:    actions,
		backends:   opts.Backends,
		limit:      opts.Concurrency,
		interval:   opts.PollInterval,
		wake:       make(chan struct{}, 1),
		running:    make(map[string]context.CancelFunc),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Register sets the backend for an action type. Call before Start.
func (d *Dispatcher) Register(actionType types.ActionType, backend Backend) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.backends[actionType] = backend
}

func (d *Dispatcher) backend(actionType types.ActionType) (Backend, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.backends[actionType]
	return b, ok
}

// Start begins dispatching in the background.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	if bus := d.executions.Bus(); bus != nil {
		d.unsub = bus.Subscribe(event.ExecutionUpdated, d.onUpdate)
	}
	d.mu.Unlock()

	go d.run()
}

func (d *Dispatcher) onUpdate(e event.Event) {
	data, ok := e.Data.(event.ExecutionUpdatedData)
	if !ok {
		return
	}
	switch data.NewStatus {
	case types.StatusQueued:
		d.signal()
	case types.StatusCancelled:
		d.cancelRun(data.ExecutionID)
	}
}

func (d *Dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) cancelRun(id string) bool {
	d.mu.Lock()
	cancel, ok := d.running[id]
	d.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var g errgroup.Group
	g.SetLimit(d.limit)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.dispatch(ctx, &g)
	for {
		select {
		case <-d.stopCh:
			cancel()
			_ = g.Wait()
			return
		case <-d.wake:
			d.dispatch(ctx, &g)
		case <-ticker.C:
			d.reapCancelled(ctx)
			d.dispatch(ctx, &g)
		}
	}
}

// dispatch starts workers for queued executions, oldest first, until the
// pool is full.
func (d *Dispatcher) dispatch(ctx context.Context, g *errgroup.Group) {
	queued, err := d.executions.List(ctx, execution.Filter{Status: types.StatusQueued})
	if err != nil {
		if ctx.Err() == nil {
			logging.Warn().Err(err).Msg("failed to list queued executions")
		}
		return
	}
	for i := len(queued) - 1; i >= 0; i-- {
		exec := queued[i]
		if d.isRunning(exec.ID) {
			continue
		}
		if !g.TryGo(func() error {
			d.process(ctx, exec.ID)
			d.signal()
			return nil
		}) {
			return
		}
	}
}

func (d *Dispatcher) isRunning(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.running[id]
	return ok
}

// reapCancelled cancels in-flight runs whose execution was cancelled without
// the event reaching us.
func (d *Dispatcher) reapCancelled(ctx context.Context) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.running))
	for id := range d.running {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		exec, err := d.executions.Get(ctx, id)
		if err == nil && exec.Status == types.StatusCancelled {
			d.cancelRun(id)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, id string) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.mu.Lock()
	if _, ok := d.running[id]; ok {
		d.mu.Unlock()
		return
	}
	d.running[id] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.running, id)
		d.mu.Unlock()
	}()

	exec, err := d.executions.Start(ctx, id)
	if err != nil {
		// Claimed elsewhere, cancelled or gone.
		logging.Debug().Err(err).Str("executionID", id).Msg("execution not claimed")
		return
	}

	if exec.ActionID == nil {
		d.fail(exec.ID, MsgActionMissing)
		return
	}
	action, err := d.actions.Get(ctx, *exec.ActionID)
	if err != nil {
		if errors.Is(err, types.ErrActionNotFound) {
			d.fail(exec.ID, MsgActionMissing)
		} else {
			d.fail(exec.ID, err.Error())
		}
		return
	}
	backend, ok := d.backend(action.ActionType)
	if !ok {
		d.fail(exec.ID, fmt.Sprintf(MsgNoBackend, action.ActionType))
		return
	}

	logging.Info().
		Str("executionID", exec.ID).
		Str("action", action.Name).
		Str("actionType", string(action.ActionType)).
		Msg("running execution")

	result, runErr := backend.Run(runCtx, action, exec)

	switch {
	case ctx.Err() != nil:
		d.fail(exec.ID, MsgShutdown)
	case runCtx.Err() != nil:
		// Cancelled while running; the status is already final.
		logging.Info().Str("executionID", exec.ID).Msg("execution cancelled while running")
	case runErr != nil:
		logging.Warn().Err(runErr).Str("executionID", exec.ID).Msg("execution failed")
		d.fail(exec.ID, runErr.Error())
	default:
		if _, err := d.executions.Complete(context.Background(), exec.ID, result); err != nil {
			logging.Debug().Err(err).Str("executionID", exec.ID).Msg("completion not recorded")
		}
	}
}

// fail records a failure. It uses a fresh context so shutdown does not leave
// executions running.
func (d *Dispatcher) fail(id, msg string) {
	if _, err := d.executions.Fail(context.Background(), id, msg); err != nil {
		logging.Debug().Err(err).Str("executionID", id).Msg("failure not recorded")
	}
}

// Stop stops dispatching, cancels in-flight runs and waits for them to be
// recorded as failed.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	started := d.started
	unsub := d.unsub
	d.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	if started {
		<-d.doneCh
	}
}
