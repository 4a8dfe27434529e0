package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// DefaultQuickMode is the preset used before any matrix has been saved.
const DefaultQuickMode = types.ModeStandard

var matrixPath = []string{"matrix"}

// MatrixService persists the tool permission matrix.
type MatrixService struct {
	storage  *storage.Storage
	registry *Registry
	bus      *event.Bus
	mu       sync.Mutex
}

// NewMatrixService creates a matrix service. bus may be nil.
func NewMatrixService(store *storage.Storage, registry *Registry, bus *event.Bus) *MatrixService {
	return &MatrixService{storage: store, registry: registry, bus: bus}
}

// Registry returns the tool registry the service validates against.
func (s *MatrixService) Registry() *Registry {
	return s.registry
}

// Get returns the current matrix with its detected mode and allow-list.
func (s *MatrixService) Get(ctx context.Context) (*types.MatrixState, error) {
	m, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.state(m), nil
}

// load reads the stored matrix. Tools added to the registry since the matrix
// was saved are filled in: from the stored preset when it was one, otherwise
// with every flag off.
func (s *MatrixService) load(ctx context.Context) (types.ToolPermissionMatrix, error) {
	var stored types.MatrixState
	err := s.storage.Get(ctx, matrixPath, &stored)
	if errors.Is(err, storage.ErrNotFound) {
		return s.registry.GeneratePreset(DefaultQuickMode)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load matrix: %w", err)
	}

	m := stored.Matrix
	if m == nil {
		m = types.ToolPermissionMatrix{}
	}
	var missing bool
	for _, tool := range s.registry.Names() {
		if _, ok := m[tool]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return m, nil
	}
	if preset, err := s.registry.GeneratePreset(stored.QuickMode); err == nil {
		return preset, nil
	}
	for _, tool := range s.registry.Names() {
		if _, ok := m[tool]; !ok {
			m[tool] = types.ToolPermissions{}
		}
	}
	return m, nil
}

func (s *MatrixService) state(m types.ToolPermissionMatrix) *types.MatrixState {
	return &types.MatrixState{
		QuickMode: s.registry.DetectMode(m),
		Matrix:    m,
		AllowList: ToAllowList(m),
	}
}

func (s *MatrixService) save(ctx context.Context, m types.ToolPermissionMatrix) (*types.MatrixState, error) {
	st := s.state(m)
	if err := s.storage.Put(ctx, matrixPath, st); err != nil {
		return nil, fmt.Errorf("failed to save matrix: %w", err)
	}
	logging.Info().Str("quickMode", string(st.QuickMode)).Strs("allowList", st.AllowList).Msg("tool permission matrix saved")
	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.MatrixUpdated,
			Data: event.MatrixUpdatedData{QuickMode: st.QuickMode},
		})
	}
	return st, nil
}

// SetQuickMode replaces the matrix with the preset for mode.
func (s *MatrixService) SetQuickMode(ctx context.Context, mode types.QuickMode) (*types.MatrixState, error) {
	m, err := s.registry.GeneratePreset(mode)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, m)
}

// SetToolPermission sets one cell of the matrix.
func (s *MatrixService) SetToolPermission(ctx context.Context, tool string, kind types.PermissionKind, value bool) (*types.MatrixState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.registry.ApplyOverride(current, tool, kind, value)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, m)
}

// Allows reports whether the matrix grants kind on tool. Kinds that are not
// applicable to the tool are never granted.
func (s *MatrixService) Allows(ctx context.Context, tool string, kind types.PermissionKind) (bool, error) {
	if !s.registry.IsApplicable(tool, kind) {
		return false, nil
	}
	m, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return m[tool].Get(kind), nil
}
