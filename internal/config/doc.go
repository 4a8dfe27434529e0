// Package config provides configuration loading, merging, and path management
// for actiongate.
//
// # Configuration Loading
//
// Load merges configuration from several sources, lowest priority first:
//
//  1. Global config (~/.config/actiongate/actiongate.json[c])
//  2. Project config (<dir>/actiongate.json[c])
//  3. Project config directory (<dir>/.actiongate/actiongate.json[c])
//  4. ACTIONGATE_CONFIG file
//  5. ACTIONGATE_CONFIG_CONTENT inline JSON
//  6. Environment variables (ACTIONGATE_PORT, ACTIONGATE_LOG_LEVEL,
//     ACTIONGATE_CONFIRM_TIMEOUT, ACTIONGATE_STORAGE)
//
// Files may be JSON or JSONC; comments are stripped with tidwall/jsonc.
//
// # Variable Interpolation
//
// Configuration files support two placeholders:
//   - {env:VAR_NAME} expands to the environment variable value
//   - {file:path} expands to the file contents, escaped for a JSON string
//
// Relative {file:} paths resolve against the config file's directory and ~/
// expands to $HOME.
//
// # Hot Reload
//
// Watcher observes the directories holding the config sources with fsnotify
// and re-runs Load when one of them changes. Subscribers receive the new
// *types.Config; a ConfigReloaded event is published on the bus.
//
// # Paths
//
// GetPaths follows the XDG base directory layout. Execution records, actions
// and permission records live under Paths.StoragePath() unless storage.path
// or ACTIONGATE_STORAGE overrides it.
package config
