package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Store persists PermissionRecords. Records are stored under
// permission/action/<actionID> and permission/type/<actionType>, so the file
// path is the unique key.
type Store struct {
	storage *storage.Storage
	bus     *event.Bus
	now     func() time.Time

	// mu serializes upserts so create-or-replace is atomic per key.
	mu sync.Mutex
}

// Key identifies a record: exactly one of ActionID and ActionType is set.
type Key struct {
	ActionID   *string
	ActionType *types.ActionType
}

// NewStore creates a record store. bus may be nil.
func NewStore(store *storage.Storage, bus *event.Bus) *Store {
	return &Store{storage: store, bus: bus, now: time.Now}
}

func (k Key) path() ([]string, error) {
	switch {
	case k.ActionID != nil && k.ActionType != nil, k.ActionID == nil && k.ActionType == nil:
		return nil, types.ErrInvalidPermissionKey
	case k.ActionID != nil:
		if *k.ActionID == "" {
			return nil, types.ErrInvalidPermissionKey
		}
		return []string{"permission", "action", *k.ActionID}, nil
	default:
		if !k.ActionType.Valid() {
			return nil, types.Errorf(types.CodeInvalidPermissionKey, "unknown action type %q", *k.ActionType)
		}
		return []string{"permission", "type", string(*k.ActionType)}, nil
	}
}

// Upsert creates or replaces the record for key. Replacing keeps the
// record's ID and CreatedAt.
func (s *Store) Upsert(ctx context.Context, key Key, level types.PermissionLevel) (*types.PermissionRecord, error) {
	path, err := key.path()
	if err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, types.Errorf(types.CodeInvalidRequest, "unknown permission level %q", level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var record types.PermissionRecord
	err = s.storage.Update(ctx, path, &record, func() error {
		record.PermissionLevel = level
		record.UpdatedAt = now
		return nil
	})
	if errors.Is(err, storage.ErrNotFound) {
		record = types.PermissionRecord{
			ID:              "per_" + ulid.Make().String(),
			ActionID:        key.ActionID,
			ActionType:      key.ActionType,
			PermissionLevel: level,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		err = s.storage.Put(ctx, path, &record)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save permission record: %w", err)
	}

	logging.Info().
		Str("permissionID", record.ID).
		Str("level", string(level)).
		Msg("permission record saved")
	s.publish(event.PermissionUpdated, &record)
	return &record, nil
}

// ForAction returns the per-action record, or nil if there is none.
func (s *Store) ForAction(ctx context.Context, actionID string) (*types.PermissionRecord, error) {
	return s.get(ctx, []string{"permission", "action", actionID})
}

// ForType returns the per-type record, or nil if there is none.
func (s *Store) ForType(ctx context.Context, actionType types.ActionType) (*types.PermissionRecord, error) {
	return s.get(ctx, []string{"permission", "type", string(actionType)})
}

func (s *Store) get(ctx context.Context, path []string) (*types.PermissionRecord, error) {
	var record types.PermissionRecord
	if err := s.storage.Get(ctx, path, &record); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load permission record: %w", err)
	}
	return &record, nil
}

// List returns every record: per-type records first, then per-action, each
// in creation order.
func (s *Store) List(ctx context.Context) ([]*types.PermissionRecord, error) {
	var records []*types.PermissionRecord
	for _, scope := range []string{"type", "action"} {
		var batch []*types.PermissionRecord
		err := s.storage.Scan(ctx, []string{"permission", scope}, func(key string, data json.RawMessage) error {
			var record types.PermissionRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("permission record %s: %w", key, err)
			}
			batch = append(batch, &record)
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
		records = append(records, batch...)
	}
	return records, nil
}

// Delete removes the record with the given ID.
func (s *Store) Delete(ctx context.Context, permissionID string) error {
	records, err := s.List(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.ID != permissionID {
			continue
		}
		path, err := Key{ActionID: record.ActionID, ActionType: record.ActionType}.path()
		if err != nil {
			return err
		}
		if err := s.storage.Delete(ctx, path); err != nil {
			return fmt.Errorf("failed to delete permission record: %w", err)
		}
		logging.Info().Str("permissionID", permissionID).Msg("permission record deleted")
		s.publish(event.PermissionDeleted, record)
		return nil
	}
	return types.Errorf(types.CodePermissionNotFound, "permission record %s not found", permissionID)
}

// DeleteForAction removes the per-action record for actionID, if any.
// Registered as a catalog delete hook.
func (s *Store) DeleteForAction(ctx context.Context, actionID string) {
	record, err := s.ForAction(ctx, actionID)
	if err != nil || record == nil {
		return
	}
	if err := s.Delete(ctx, record.ID); err != nil {
		logging.Warn().Err(err).Str("actionID", actionID).Msg("failed to drop permission record of deleted action")
	}
}

func (s *Store) publish(eventType event.EventType, record *types.PermissionRecord) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		Type: eventType,
		Data: event.PermissionChangedData{Info: record},
	})
}
