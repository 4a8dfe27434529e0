// Package permission decides whether an action may run.
//
// It holds three pieces:
//
//   - Store: PermissionRecords, overrides of the default confirmation policy
//     keyed by a single action or by an action type. The key space is a set;
//     writing a record for an existing key replaces its level.
//
//   - Resolver: turns an action into a PermissionLevel. Precedence is fixed:
//     a disabled action is always denied, then a per-action record, then a
//     per-type record, then the configured per-type default, then the global
//     default (require_confirm unless configured otherwise).
//
//   - Tool permission matrix: per-tool read/execute/write flags gating the
//     agent-facing tool surface. Registry holds each tool's applicable
//     permissions and the pure preset/detection functions; MatrixService
//     persists the current matrix.
//
// # Resolution Example
//
//	resolver := permission.NewResolver(store, permission.DefaultsFromConfig(cfg))
//	decision, err := resolver.Resolve(ctx, action)
//	switch decision.Level {
//	case types.LevelAutoApprove:
//		// queue immediately
//	case types.LevelRequireConfirm:
//		// wait for a human
//	case types.LevelDeny:
//		// record as denied
//	}
package permission
