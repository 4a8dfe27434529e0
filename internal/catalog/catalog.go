// Package catalog owns the configured actions: scripts, webhooks and
// workflows a caller may invoke.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Service manages actions.
type Service struct {
	storage *storage.Storage
	bus     *event.Bus
	now     func() time.Time

	mu       sync.RWMutex
	onDelete []func(ctx context.Context, actionID string)
}

// Filter selects actions in List. Nil fields match everything. Name is a
// doublestar glob matched against the action name.
type Filter struct {
	ProjectID  *string
	ActionType *types.ActionType
	IsEnabled  *bool
	Name       string
}

// CreateInput holds the fields of a new action. IsEnabled defaults to true.
type CreateInput struct {
	ActionType  types.ActionType   `json:"actionType"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Config      types.ActionConfig `json:"-"`
	ProjectID   *string            `json:"projectID,omitempty"`
	IsEnabled   *bool              `json:"isEnabled,omitempty"`
}

// UpdateInput holds the fields to change. Nil fields are left untouched.
// RawConfig is decoded against the stored action's type when Config is nil.
type UpdateInput struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	Config      types.ActionConfig `json:"-"`
	RawConfig   json.RawMessage    `json:"config,omitempty"`
	IsEnabled   *bool              `json:"isEnabled,omitempty"`
}

// NewService creates a new catalog service. bus may be nil.
func NewService(store *storage.Storage, bus *event.Bus) *Service {
	return &Service{
		storage: store,
		bus:     bus,
		now:     time.Now,
	}
}

// OnDelete registers fn to run after an action is deleted.
func (s *Service) OnDelete(fn func(ctx context.Context, actionID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

func actionPath(id string) []string {
	return []string{"action", id}
}

// Get retrieves an action by ID.
func (s *Service) Get(ctx context.Context, actionID string) (*types.Action, error) {
	var action types.Action
	if err := s.storage.Get(ctx, actionPath(actionID), &action); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.Errorf(types.CodeActionNotFound, "action %s not found", actionID)
		}
		return nil, fmt.Errorf("failed to load action: %w", err)
	}
	return &action, nil
}

// List returns the actions matching filter, oldest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]*types.Action, error) {
	if filter.Name != "" && !doublestar.ValidatePattern(filter.Name) {
		return nil, types.Errorf(types.CodeInvalidRequest, "invalid name pattern %q", filter.Name)
	}

	var actions []*types.Action
	err := s.storage.Scan(ctx, []string{"action"}, func(key string, data json.RawMessage) error {
		var action types.Action
		if err := json.Unmarshal(data, &action); err != nil {
			logging.Warn().Err(err).Str("actionID", key).Msg("skipping unreadable action")
			return nil
		}
		if filter.matches(&action) {
			actions = append(actions, &action)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(actions, func(i, j int) bool {
		if !actions[i].CreatedAt.Equal(actions[j].CreatedAt) {
			return actions[i].CreatedAt.Before(actions[j].CreatedAt)
		}
		return actions[i].ID < actions[j].ID
	})
	return actions, nil
}

func (f Filter) matches(a *types.Action) bool {
	if f.ProjectID != nil && (a.ProjectID == nil || *a.ProjectID != *f.ProjectID) {
		return false
	}
	if f.ActionType != nil && a.ActionType != *f.ActionType {
		return false
	}
	if f.IsEnabled != nil && a.IsEnabled != *f.IsEnabled {
		return false
	}
	if f.Name != "" {
		ok, err := doublestar.Match(f.Name, a.Name)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Create validates and stores a new action.
func (s *Service) Create(ctx context.Context, input CreateInput) (*types.Action, error) {
	action, err := s.build(input)
	if err != nil {
		return nil, err
	}

	if err := s.storage.Put(ctx, actionPath(action.ID), action); err != nil {
		return nil, fmt.Errorf("failed to save action: %w", err)
	}

	s.logCreated(action)
	s.publish(event.ActionCreated, action)
	return action, nil
}

// build validates input and assembles the action without storing it.
func (s *Service) build(input CreateInput) (*types.Action, error) {
	now := s.now().UTC()
	enabled := true
	if input.IsEnabled != nil {
		enabled = *input.IsEnabled
	}

	action := &types.Action{
		ID:          "act_" + ulid.Make().String(),
		ActionType:  input.ActionType,
		Name:        input.Name,
		Description: input.Description,
		Config:      input.Config,
		ProjectID:   input.ProjectID,
		IsEnabled:   enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := Validate(action); err != nil {
		return nil, err
	}
	return action, nil
}

// Update applies input to an existing action. The updated action is
// validated before anything is written.
func (s *Service) Update(ctx context.Context, actionID string, input UpdateInput) (*types.Action, error) {
	var action types.Action
	err := s.storage.Update(ctx, actionPath(actionID), &action, func() error {
		if input.Name != nil {
			action.Name = *input.Name
		}
		if input.Description != nil {
			action.Description = *input.Description
		}
		switch {
		case input.Config != nil:
			action.Config = input.Config
		case len(input.RawConfig) > 0:
			cfg, err := types.DecodeConfig(action.ActionType, input.RawConfig)
			if err != nil {
				return err
			}
			action.Config = cfg
		}
		if input.IsEnabled != nil {
			action.IsEnabled = *input.IsEnabled
		}
		action.UpdatedAt = s.now().UTC()
		return Validate(&action)
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, types.Errorf(types.CodeActionNotFound, "action %s not found", actionID)
		}
		return nil, err
	}

	logging.Info().
		Str("actionID", action.ID).
		Bool("enabled", action.IsEnabled).
		Msg("action updated")
	s.publish(event.ActionUpdated, &action)
	return &action, nil
}

// Delete removes an action. Execution history that references it is kept.
func (s *Service) Delete(ctx context.Context, actionID string) error {
	action, err := s.Get(ctx, actionID)
	if err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, actionPath(actionID)); err != nil {
		return fmt.Errorf("failed to delete action: %w", err)
	}

	s.mu.RLock()
	hooks := append([]func(context.Context, string){}, s.onDelete...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, actionID)
	}

	logging.Info().Str("actionID", actionID).Msg("action deleted")
	s.publish(event.ActionDeleted, action)
	return nil
}

// Import creates every action in inputs. All inputs are validated first so a
// bad entry leaves the catalog untouched.
func (s *Service) Import(ctx context.Context, inputs []CreateInput) ([]*types.Action, error) {
	actions := make([]*types.Action, 0, len(inputs))
	for i, input := range inputs {
		action, err := s.build(input)
		if err != nil {
			return nil, fmt.Errorf("action %d (%s): %w", i+1, input.Name, err)
		}
		actions = append(actions, action)
	}

	for _, action := range actions {
		if err := s.storage.Put(ctx, actionPath(action.ID), action); err != nil {
			return nil, fmt.Errorf("failed to save action %s: %w", action.Name, err)
		}
		s.logCreated(action)
		s.publish(event.ActionCreated, action)
	}
	return actions, nil
}

func (s *Service) logCreated(action *types.Action) {
	ev := logging.Info().
		Str("actionID", action.ID).
		Str("actionType", string(action.ActionType)).
		Str("name", action.Name)
	if script, ok := action.Config.(types.ScriptConfig); ok {
		if commands, err := ParseCommand(script.Command); err == nil {
			if dangerous := DangerousIn(commands); len(dangerous) > 0 {
				ev = ev.Strs("dangerous", dangerous)
			}
		}
	}
	ev.Msg("action created")
}

func (s *Service) publish(eventType event.EventType, action *types.Action) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: eventType,
		Data: event.ActionChangedData{Info: action},
	})
}
