package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/opencode-ai/actiongate/pkg/types"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Sources returns the config file candidates for directory, lowest priority
// first. Files that do not exist are included; Load skips them.
func Sources(directory string) []string {
	globalPath := GetPaths().Config
	sources := []string{
		filepath.Join(globalPath, "actiongate.json"),
		filepath.Join(globalPath, "actiongate.jsonc"),
	}

	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".actiongate")
		sources = append(sources,
			filepath.Join(directory, "actiongate.json"),
			filepath.Join(directory, "actiongate.jsonc"),
			filepath.Join(projectConfigDir, "actiongate.json"),
			filepath.Join(projectConfigDir, "actiongate.jsonc"),
		)
	}

	if configPath := os.Getenv("ACTIONGATE_CONFIG"); configPath != "" {
		sources = append(sources, configPath)
	}
	return sources
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/actiongate/)
// 2. Project config (<dir>/ and <dir>/.actiongate/)
// 3. ACTIONGATE_CONFIG file
// 4. ACTIONGATE_CONFIG_CONTENT inline JSON
// 5. Environment variables
//
// A file that exists but fails to parse is an error; missing files are skipped.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	for _, path := range Sources(directory) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			continue
		}
		if err := loadConfigFile(path, config, filepath.Dir(path)); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		loaded[absPath] = true
	}

	if configContent := os.Getenv("ACTIONGATE_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inlineConfig); err != nil {
			return nil, fmt.Errorf("ACTIONGATE_CONFIG_CONTENT: %w", err)
		}
		mergeConfig(config, &inlineConfig)
	}

	// Environment variables (highest priority)
	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for JSON string; strip the surrounding quotes Marshal adds.
		escaped, _ := json.Marshal(strings.TrimRight(string(content), "\n"))
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Sections are merged field by
// field so a project file can override one key without restating the rest.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}

	if source.Server != nil {
		if target.Server == nil {
			target.Server = &types.ServerConfig{}
		}
		if source.Server.Port != 0 {
			target.Server.Port = source.Server.Port
		}
		if source.Server.Hostname != "" {
			target.Server.Hostname = source.Server.Hostname
		}
		if source.Server.CORS != nil {
			target.Server.CORS = source.Server.CORS
		}
	}

	if source.Storage != nil && source.Storage.Path != "" {
		target.Storage = &types.StorageConfig{Path: source.Storage.Path}
	}

	if source.Log != nil {
		if target.Log == nil {
			target.Log = &types.LogConfig{}
		}
		if source.Log.Level != "" {
			target.Log.Level = source.Log.Level
		}
		if source.Log.Pretty {
			target.Log.Pretty = true
		}
	}

	if source.Confirmation != nil {
		if target.Confirmation == nil {
			target.Confirmation = &types.ConfirmationConfig{}
		}
		if source.Confirmation.Timeout != "" {
			target.Confirmation.Timeout = source.Confirmation.Timeout
		}
		if source.Confirmation.SweepInterval != "" {
			target.Confirmation.SweepInterval = source.Confirmation.SweepInterval
		}
	}

	if source.Retention != nil {
		if target.Retention == nil {
			target.Retention = &types.RetentionConfig{}
		}
		if source.Retention.KeepCount != nil {
			target.Retention.KeepCount = source.Retention.KeepCount
		}
		if source.Retention.MaxAgeDays != nil {
			target.Retention.MaxAgeDays = source.Retention.MaxAgeDays
		}
	}

	if source.Permission != nil {
		if target.Permission == nil {
			target.Permission = &types.PermissionConfig{}
		}
		if source.Permission.Default != "" {
			target.Permission.Default = source.Permission.Default
		}
		if source.Permission.Types != nil {
			if target.Permission.Types == nil {
				target.Permission.Types = make(map[types.ActionType]types.PermissionLevel)
			}
			for k, v := range source.Permission.Types {
				target.Permission.Types[k] = v
			}
		}
	}

	if source.Executor != nil {
		if target.Executor == nil {
			target.Executor = &types.ExecutorConfig{}
		}
		if source.Executor.Enabled != nil {
			target.Executor.Enabled = source.Executor.Enabled
		}
		if source.Executor.Concurrency != 0 {
			target.Executor.Concurrency = source.Executor.Concurrency
		}
		if source.Executor.PollInterval != "" {
			target.Executor.PollInterval = source.Executor.PollInterval
		}
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if port := os.Getenv("ACTIONGATE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			if config.Server == nil {
				config.Server = &types.ServerConfig{}
			}
			config.Server.Port = p
		}
	}

	if level := os.Getenv("ACTIONGATE_LOG_LEVEL"); level != "" {
		if config.Log == nil {
			config.Log = &types.LogConfig{}
		}
		config.Log.Level = level
	}

	if timeout := os.Getenv("ACTIONGATE_CONFIRM_TIMEOUT"); timeout != "" {
		if config.Confirmation == nil {
			config.Confirmation = &types.ConfirmationConfig{}
		}
		config.Confirmation.Timeout = timeout
	}

	if dir := os.Getenv("ACTIONGATE_STORAGE"); dir != "" {
		config.Storage = &types.StorageConfig{Path: dir}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
