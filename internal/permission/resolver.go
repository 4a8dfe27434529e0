package permission

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// Records looks up stored overrides. Both methods return nil, nil when no
// record exists for the key.
type Records interface {
	ForAction(ctx context.Context, actionID string) (*types.PermissionRecord, error)
	ForType(ctx context.Context, actionType types.ActionType) (*types.PermissionRecord, error)
}

// Resolver computes the effective permission level of an action.
type Resolver struct {
	records  Records
	defaults atomic.Pointer[Defaults]
}

// NewResolver creates a resolver over records with the given fallback table.
func NewResolver(records Records, defaults Defaults) *Resolver {
	r := &Resolver{records: records}
	r.SetDefaults(defaults)
	return r
}

// SetDefaults replaces the fallback table. The map is copied so later changes
// by the caller have no effect.
func (r *Resolver) SetDefaults(d Defaults) {
	byType := make(map[types.ActionType]types.PermissionLevel, len(d.ByType))
	for t, level := range d.ByType {
		byType[t] = level
	}
	d.ByType = byType
	r.defaults.Store(&d)
}

// Defaults returns the current fallback table.
func (r *Resolver) Defaults() Defaults {
	return *r.defaults.Load()
}

// Resolve returns the decision for action. Tiers, first match wins:
// disabled, per-action record, per-type record, configured type default,
// global default.
func (r *Resolver) Resolve(ctx context.Context, action *types.Action) (types.Decision, error) {
	if !action.IsEnabled {
		return types.Decision{Level: types.LevelDeny, Source: types.SourceDisabled}, nil
	}

	record, err := r.records.ForAction(ctx, action.ID)
	if err != nil {
		return types.Decision{}, fmt.Errorf("resolve %s: %w", action.ID, err)
	}
	if record != nil {
		return types.Decision{Level: record.PermissionLevel, Source: types.SourceAction, RecordID: record.ID}, nil
	}

	record, err = r.records.ForType(ctx, action.ActionType)
	if err != nil {
		return types.Decision{}, fmt.Errorf("resolve %s: %w", action.ID, err)
	}
	if record != nil {
		return types.Decision{Level: record.PermissionLevel, Source: types.SourceType, RecordID: record.ID}, nil
	}

	return types.Decision{Level: r.Defaults().forType(action.ActionType), Source: types.SourceDefault}, nil
}
