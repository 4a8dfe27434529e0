package types

// PermissionKind is one column of the tool permission matrix.
type PermissionKind string

const (
	PermRead    PermissionKind = "read"
	PermExecute PermissionKind = "execute"
	PermWrite   PermissionKind = "write"
)

// PermissionKinds lists the matrix columns in display order.
var PermissionKinds = []PermissionKind{PermRead, PermExecute, PermWrite}

// Valid reports whether k is a known permission kind.
func (k PermissionKind) Valid() bool {
	switch k {
	case PermRead, PermExecute, PermWrite:
		return true
	}
	return false
}

// ToolPermissions holds the three flags of one matrix row.
type ToolPermissions struct {
	Read    bool `json:"read"`
	Execute bool `json:"execute"`
	Write   bool `json:"write"`
}

// Get returns the flag for kind.
func (p ToolPermissions) Get(kind PermissionKind) bool {
	switch kind {
	case PermRead:
		return p.Read
	case PermExecute:
		return p.Execute
	case PermWrite:
		return p.Write
	}
	return false
}

// With returns a copy with the flag for kind set to value.
func (p ToolPermissions) With(kind PermissionKind, value bool) ToolPermissions {
	switch kind {
	case PermRead:
		p.Read = value
	case PermExecute:
		p.Execute = value
	case PermWrite:
		p.Write = value
	}
	return p
}

// Any reports whether at least one flag is set.
func (p ToolPermissions) Any() bool {
	return p.Read || p.Execute || p.Write
}

// ToolPermissionMatrix maps tool name to its permission flags.
type ToolPermissionMatrix map[string]ToolPermissions

// Clone returns an independent copy.
func (m ToolPermissionMatrix) Clone() ToolPermissionMatrix {
	out := make(ToolPermissionMatrix, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// QuickMode names a generated preset, or custom for hand-edited matrices.
type QuickMode string

const (
	ModeReadOnly   QuickMode = "read_only"
	ModeStandard   QuickMode = "standard"
	ModeFullAccess QuickMode = "full_access"
	ModeCustom     QuickMode = "custom"
)

// PresetModes lists the generated presets in detection order.
var PresetModes = []QuickMode{ModeReadOnly, ModeStandard, ModeFullAccess}

// MatrixState is the persisted matrix together with its detected mode.
type MatrixState struct {
	QuickMode QuickMode            `json:"quickMode"`
	Matrix    ToolPermissionMatrix `json:"matrix"`
	AllowList []string             `json:"allowList"`
}
