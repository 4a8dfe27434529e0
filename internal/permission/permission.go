package permission

import (
	"github.com/opencode-ai/actiongate/pkg/types"
)

// Defaults is the fallback table consulted after stored records. It is built
// once from configuration and never mutated; reloads swap in a new value.
type Defaults struct {
	// Global applies when nothing else matches.
	Global types.PermissionLevel
	// ByType applies after stored per-type records.
	ByType map[types.ActionType]types.PermissionLevel
}

// DefaultDefaults returns the built-in table: everything requires confirmation.
func DefaultDefaults() Defaults {
	return Defaults{Global: types.LevelRequireConfirm}
}

// DefaultsFromConfig builds the fallback table from the permission section of
// cfg. Invalid levels are ignored.
func DefaultsFromConfig(cfg *types.Config) Defaults {
	d := DefaultDefaults()
	if cfg == nil || cfg.Permission == nil {
		return d
	}
	if cfg.Permission.Default.Valid() {
		d.Global = cfg.Permission.Default
	}
	if len(cfg.Permission.Types) > 0 {
		d.ByType = make(map[types.ActionType]types.PermissionLevel, len(cfg.Permission.Types))
		for t, level := range cfg.Permission.Types {
			if t.Valid() && level.Valid() {
				d.ByType[t] = level
			}
		}
	}
	return d
}

// forType returns the configured level for t, falling back to Global.
func (d Defaults) forType(t types.ActionType) types.PermissionLevel {
	if level, ok := d.ByType[t]; ok {
		return level
	}
	if d.Global.Valid() {
		return d.Global
	}
	return types.LevelRequireConfirm
}
