package types

import "time"

// Config represents the actiongate configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// HTTP server
	Server *ServerConfig `json:"server,omitempty"`

	// Storage location
	Storage *StorageConfig `json:"storage,omitempty"`

	// Logging
	Log *LogConfig `json:"log,omitempty"`

	// Confirmation gate
	Confirmation *ConfirmationConfig `json:"confirmation,omitempty"`

	// Execution history retention
	Retention *RetentionConfig `json:"retention,omitempty"`

	// Default permission table
	Permission *PermissionConfig `json:"permission,omitempty"`

	// Built-in executor dispatch
	Executor *ExecutorConfig `json:"executor,omitempty"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port     int    `json:"port,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	CORS     *bool  `json:"cors,omitempty"`
}

// StorageConfig holds the data directory.
type StorageConfig struct {
	Path string `json:"path,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level,omitempty"` // DEBUG|INFO|WARN|ERROR
	Pretty bool   `json:"pretty,omitempty"`
}

// ConfirmationConfig controls the pending_confirm deadline.
type ConfirmationConfig struct {
	Timeout       string `json:"timeout,omitempty"`       // Go duration, e.g. "5m"
	SweepInterval string `json:"sweepInterval,omitempty"` // Go duration, e.g. "1s"
}

// RetentionConfig holds the defaults used by cleanup when the caller omits them.
type RetentionConfig struct {
	KeepCount  *int `json:"keepCount,omitempty"`
	MaxAgeDays *int `json:"maxAgeDays,omitempty"`
}

// PermissionConfig seeds the resolver's fallback levels.
type PermissionConfig struct {
	Default PermissionLevel                `json:"default,omitempty"`
	Types   map[ActionType]PermissionLevel `json:"types,omitempty"`
}

// ExecutorConfig controls the built-in dispatcher.
type ExecutorConfig struct {
	Enabled      *bool  `json:"enabled,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
	PollInterval string `json:"pollInterval,omitempty"`
}

// Defaults applied when a setting is absent.
const (
	DefaultPort                = 8080
	DefaultHostname            = "127.0.0.1"
	DefaultConfirmTimeout      = 5 * time.Minute
	DefaultSweepInterval       = time.Second
	DefaultKeepCount           = 100
	DefaultMaxAgeDays          = 30
	DefaultExecutorConcurrency = 4
	DefaultPollInterval        = 5 * time.Second
)

// ServerPort returns the configured port or the default.
func (c *Config) ServerPort() int {
	if c.Server != nil && c.Server.Port > 0 {
		return c.Server.Port
	}
	return DefaultPort
}

// ServerHostname returns the configured hostname or the default.
func (c *Config) ServerHostname() string {
	if c.Server != nil && c.Server.Hostname != "" {
		return c.Server.Hostname
	}
	return DefaultHostname
}

// CORSEnabled reports whether CORS headers are served (default true).
func (c *Config) CORSEnabled() bool {
	if c.Server != nil && c.Server.CORS != nil {
		return *c.Server.CORS
	}
	return true
}

// ConfirmTimeout returns the pending_confirm deadline duration.
func (c *Config) ConfirmTimeout() time.Duration {
	if c.Confirmation != nil {
		if d, err := time.ParseDuration(c.Confirmation.Timeout); err == nil && d > 0 {
			return d
		}
	}
	return DefaultConfirmTimeout
}

// SweepInterval returns how often overdue confirmations are expired.
func (c *Config) SweepInterval() time.Duration {
	if c.Confirmation != nil {
		if d, err := time.ParseDuration(c.Confirmation.SweepInterval); err == nil && d > 0 {
			return d
		}
	}
	return DefaultSweepInterval
}

// KeepCount returns the retention keep count.
func (c *Config) KeepCount() int {
	if c.Retention != nil && c.Retention.KeepCount != nil && *c.Retention.KeepCount >= 0 {
		return *c.Retention.KeepCount
	}
	return DefaultKeepCount
}

// MaxAgeDays returns the retention age limit.
func (c *Config) MaxAgeDays() int {
	if c.Retention != nil && c.Retention.MaxAgeDays != nil && *c.Retention.MaxAgeDays >= 0 {
		return *c.Retention.MaxAgeDays
	}
	return DefaultMaxAgeDays
}

// ExecutorEnabled reports whether serve runs the built-in dispatcher (default true).
func (c *Config) ExecutorEnabled() bool {
	if c.Executor != nil && c.Executor.Enabled != nil {
		return *c.Executor.Enabled
	}
	return true
}

// ExecutorConcurrency returns the dispatcher worker limit.
func (c *Config) ExecutorConcurrency() int {
	if c.Executor != nil && c.Executor.Concurrency > 0 {
		return c.Executor.Concurrency
	}
	return DefaultExecutorConcurrency
}

// ExecutorPollInterval returns the dispatcher's polling fallback interval.
func (c *Config) ExecutorPollInterval() time.Duration {
	if c.Executor != nil {
		if d, err := time.ParseDuration(c.Executor.PollInterval); err == nil && d > 0 {
			return d
		}
	}
	return DefaultPollInterval
}
