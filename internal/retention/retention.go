// Package retention prunes old execution history.
package retention

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Policy deletes terminal executions that are both beyond the newest
// KeepCount records and older than MaxAgeDays. Executions that are not
// terminal are never deleted.
type Policy struct {
	executions *execution.Service
	bus        *event.Bus
	now        func() time.Time

	keepCount  atomic.Int64
	maxAgeDays atomic.Int64
}

// Options overrides the policy defaults for one cleanup. Nil fields use the
// defaults.
type Options struct {
	KeepCount  *int `json:"keepCount,omitempty"`
	MaxAgeDays *int `json:"maxAgeDays,omitempty"`
}

// NewPolicy creates a policy with the given defaults. bus may be nil.
func NewPolicy(executions *execution.Service, bus *event.Bus, keepCount, maxAgeDays int) *Policy {
	p := &Policy{executions: executions, bus: bus, now: time.Now}
	p.SetDefaults(keepCount, maxAgeDays)
	return p
}

// NewPolicyFromConfig creates a policy with defaults from cfg.
func NewPolicyFromConfig(executions *execution.Service, bus *event.Bus, cfg *types.Config) *Policy {
	return NewPolicy(executions, bus, cfg.KeepCount(), cfg.MaxAgeDays())
}

// SetDefaults replaces the defaults. Negative values are ignored.
func (p *Policy) SetDefaults(keepCount, maxAgeDays int) {
	if keepCount >= 0 {
		p.keepCount.Store(int64(keepCount))
	}
	if maxAgeDays >= 0 {
		p.maxAgeDays.Store(int64(maxAgeDays))
	}
}

// Defaults returns the current keep count and age limit.
func (p *Policy) Defaults() (keepCount, maxAgeDays int) {
	return int(p.keepCount.Load()), int(p.maxAgeDays.Load())
}

func (p *Policy) resolve(opts Options) (keepCount, maxAgeDays int, err error) {
	keepCount, maxAgeDays = p.Defaults()
	if opts.KeepCount != nil {
		if *opts.KeepCount < 0 {
			return 0, 0, types.Errorf(types.CodeInvalidRequest, "keepCount must not be negative")
		}
		keepCount = *opts.KeepCount
	}
	if opts.MaxAgeDays != nil {
		if *opts.MaxAgeDays < 0 {
			return 0, 0, types.Errorf(types.CodeInvalidRequest, "maxAgeDays must not be negative")
		}
		maxAgeDays = *opts.MaxAgeDays
	}
	return keepCount, maxAgeDays, nil
}

// Cleanup deletes eligible executions and returns how many were deleted.
// Executions are ranked newest first by start time; age is measured from
// the start time too.
func (p *Policy) Cleanup(ctx context.Context, opts Options) (int, error) {
	keepCount, maxAgeDays, err := p.resolve(opts)
	if err != nil {
		return 0, err
	}

	execs, err := p.executions.List(ctx, execution.Filter{})
	if err != nil {
		return 0, err
	}
	if len(execs) <= keepCount {
		return 0, nil
	}

	cutoff := p.now().UTC().AddDate(0, 0, -maxAgeDays)
	var deleted []string
	for _, exec := range execs[keepCount:] {
		if err := ctx.Err(); err != nil {
			p.announce(deleted)
			return len(deleted), err
		}
		if !exec.Status.IsTerminal() || !exec.StartedAt.Before(cutoff) {
			continue
		}
		// Remove re-checks the status under the execution's lock.
		removed, err := p.executions.Remove(ctx, exec.ID)
		if err != nil {
			p.announce(deleted)
			return len(deleted), err
		}
		if removed {
			deleted = append(deleted, exec.ID)
		}
	}

	p.announce(deleted)
	logging.Info().
		Int("deleted", len(deleted)).
		Int("keepCount", keepCount).
		Int("maxAgeDays", maxAgeDays).
		Msg("execution cleanup finished")
	return len(deleted), nil
}

func (p *Policy) announce(ids []string) {
	if p.bus == nil || len(ids) == 0 {
		return
	}
	p.bus.Publish(event.Event{
		Type: event.ExecutionDeleted,
		Data: event.ExecutionDeletedData{ExecutionIDs: ids},
	})
}
