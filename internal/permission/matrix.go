package permission

import (
	"sort"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// Matrix tool names.
const (
	ToolActions     = "actions"
	ToolScripts     = "scripts"
	ToolWebhooks    = "webhooks"
	ToolWorkflows   = "workflows"
	ToolExecutions  = "executions"
	ToolPermissions = "permissions"
)

// ToolSpec describes one row of the matrix.
type ToolSpec struct {
	Name        string
	Description string
	Applicable  []types.PermissionKind
}

// DefaultTools returns the tools gated by the matrix.
func DefaultTools() []ToolSpec {
	return []ToolSpec{
		{ToolActions, "List, inspect and edit configured actions", []types.PermissionKind{types.PermRead, types.PermWrite}},
		{ToolScripts, "Invoke script actions", []types.PermissionKind{types.PermExecute}},
		{ToolWebhooks, "Invoke webhook actions", []types.PermissionKind{types.PermExecute}},
		{ToolWorkflows, "Invoke workflow actions", []types.PermissionKind{types.PermExecute}},
		{ToolExecutions, "Inspect, cancel and clean up executions", []types.PermissionKind{types.PermRead, types.PermExecute, types.PermWrite}},
		{ToolPermissions, "Inspect permission records", []types.PermissionKind{types.PermRead}},
	}
}

// presetKinds lists the kinds each preset grants, where applicable.
var presetKinds = map[types.QuickMode][]types.PermissionKind{
	types.ModeReadOnly:   {types.PermRead},
	types.ModeStandard:   {types.PermRead, types.PermExecute},
	types.ModeFullAccess: {types.PermRead, types.PermExecute, types.PermWrite},
}

// Registry is the immutable set of known tools and their applicable
// permissions. All matrix functions are pure over a Registry.
type Registry struct {
	specs map[string]ToolSpec
	names []string
}

// NewRegistry builds a registry from specs.
func NewRegistry(specs ...ToolSpec) *Registry {
	r := &Registry{specs: make(map[string]ToolSpec, len(specs))}
	for _, spec := range specs {
		r.specs[spec.Name] = spec
		r.names = append(r.names, spec.Name)
	}
	sort.Strings(r.names)
	return r
}

// Names returns the known tool names, sorted.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Spec returns the spec of tool.
func (r *Registry) Spec(tool string) (ToolSpec, bool) {
	spec, ok := r.specs[tool]
	return spec, ok
}

// IsApplicable reports whether kind is meaningful for tool. Unknown tools
// have no applicable permissions.
func (r *Registry) IsApplicable(tool string, kind types.PermissionKind) bool {
	for _, k := range r.specs[tool].Applicable {
		if k == kind {
			return true
		}
	}
	return false
}

// GeneratePreset builds the matrix of mode over every known tool. custom has
// no generator.
func (r *Registry) GeneratePreset(mode types.QuickMode) (types.ToolPermissionMatrix, error) {
	if _, ok := presetKinds[mode]; !ok {
		return nil, types.Errorf(types.CodeInvalidQuickMode, "no preset for mode %q", mode)
	}
	return r.generate(mode, r.names), nil
}

func (r *Registry) generate(mode types.QuickMode, tools []string) types.ToolPermissionMatrix {
	m := make(types.ToolPermissionMatrix, len(tools))
	for _, tool := range tools {
		var p types.ToolPermissions
		for _, kind := range presetKinds[mode] {
			if r.IsApplicable(tool, kind) {
				p = p.With(kind, true)
			}
		}
		m[tool] = p
	}
	return m
}

// DetectMode regenerates every preset over the tools present in m and
// returns the first one m matches exactly, or custom. Flags that are not
// applicable to a tool are ignored.
func (r *Registry) DetectMode(m types.ToolPermissionMatrix) types.QuickMode {
	tools := make([]string, 0, len(m))
	for tool := range m {
		tools = append(tools, tool)
	}

	normalized := r.mask(m)
	for _, mode := range types.PresetModes {
		if equalMatrix(normalized, r.generate(mode, tools)) {
			return mode
		}
	}
	return types.ModeCustom
}

// mask clears flags that are not applicable to their tool.
func (r *Registry) mask(m types.ToolPermissionMatrix) types.ToolPermissionMatrix {
	out := make(types.ToolPermissionMatrix, len(m))
	for tool, p := range m {
		var masked types.ToolPermissions
		for _, kind := range types.PermissionKinds {
			if p.Get(kind) && r.IsApplicable(tool, kind) {
				masked = masked.With(kind, true)
			}
		}
		out[tool] = masked
	}
	return out
}

func equalMatrix(a, b types.ToolPermissionMatrix) bool {
	if len(a) != len(b) {
		return false
	}
	for tool, p := range a {
		q, ok := b[tool]
		if !ok || p != q {
			return false
		}
	}
	return true
}

// ApplyOverride returns a copy of m with one cell set. The kind must be
// applicable to the tool.
func (r *Registry) ApplyOverride(m types.ToolPermissionMatrix, tool string, kind types.PermissionKind, value bool) (types.ToolPermissionMatrix, error) {
	if _, ok := r.specs[tool]; !ok {
		return nil, types.Errorf(types.CodeUnknownTool, "unknown tool %q", tool)
	}
	if !r.IsApplicable(tool, kind) {
		return nil, types.Errorf(types.CodeMatrixOverrideNotApplicable, "%q is not applicable to %s", kind, tool)
	}
	out := m.Clone()
	out[tool] = out[tool].With(kind, value)
	return out, nil
}

// ToAllowList returns the sorted names of tools with at least one flag set.
func ToAllowList(m types.ToolPermissionMatrix) []string {
	list := []string{}
	for tool, p := range m {
		if p.Any() {
			list = append(list, tool)
		}
	}
	sort.Strings(list)
	return list
}
