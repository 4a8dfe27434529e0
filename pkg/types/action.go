// Package types provides the core data types for the action governance server.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies which kind of operation an action performs.
type ActionType string

const (
	ActionTypeScript   ActionType = "script"
	ActionTypeWebhook  ActionType = "webhook"
	ActionTypeWorkflow ActionType = "workflow"
)

// ActionTypes lists every supported action type.
var ActionTypes = []ActionType{ActionTypeScript, ActionTypeWebhook, ActionTypeWorkflow}

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeScript, ActionTypeWebhook, ActionTypeWorkflow:
		return true
	}
	return false
}

// Action is a configured operation a caller may invoke.
type Action struct {
	ID          string       `json:"id"`
	ActionType  ActionType   `json:"actionType"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Config      ActionConfig `json:"config"`
	ProjectID   *string      `json:"projectID,omitempty"`
	IsEnabled   bool         `json:"isEnabled"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// ActionConfig is the type-specific configuration of an action.
// Implementations are ScriptConfig, WebhookConfig and WorkflowConfig.
type ActionConfig interface {
	ConfigType() ActionType
	isActionConfig()
}

// ScriptConfig runs a local command.
type ScriptConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	// Timeout in seconds; zero means the executor default.
	Timeout int `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// WebhookConfig performs an HTTP call.
type WebhookConfig struct {
	URL             string            `json:"url" yaml:"url"`
	Method          string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	PayloadTemplate string            `json:"payloadTemplate,omitempty" yaml:"payloadTemplate,omitempty"`
	Timeout         int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	RetryCount      int               `json:"retryCount,omitempty" yaml:"retryCount,omitempty"`
}

// WorkflowConfig triggers a multi-step workflow.
type WorkflowConfig struct {
	WorkflowID string         `json:"workflowID" yaml:"workflowID"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

func (ScriptConfig) ConfigType() ActionType   { return ActionTypeScript }
func (WebhookConfig) ConfigType() ActionType  { return ActionTypeWebhook }
func (WorkflowConfig) ConfigType() ActionType { return ActionTypeWorkflow }

func (ScriptConfig) isActionConfig()   {}
func (WebhookConfig) isActionConfig()  {}
func (WorkflowConfig) isActionConfig() {}

// configFactories builds an empty config value for each action type.
var configFactories = map[ActionType]func() ActionConfig{
	ActionTypeScript:   func() ActionConfig { return &ScriptConfig{} },
	ActionTypeWebhook:  func() ActionConfig { return &WebhookConfig{} },
	ActionTypeWorkflow: func() ActionConfig { return &WorkflowConfig{} },
}

// DecodeConfig decodes raw JSON into the config variant for actionType.
func DecodeConfig(actionType ActionType, raw json.RawMessage) (ActionConfig, error) {
	factory, ok := configFactories[actionType]
	if !ok {
		return nil, Errorf(CodeInvalidAction, "unknown action type %q", actionType)
	}
	cfg := factory()
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, Errorf(CodeInvalidAction, "invalid %s config: %v", actionType, err)
		}
	}
	return derefConfig(cfg), nil
}

func derefConfig(cfg ActionConfig) ActionConfig {
	switch c := cfg.(type) {
	case *ScriptConfig:
		return *c
	case *WebhookConfig:
		return *c
	case *WorkflowConfig:
		return *c
	}
	return cfg
}

// UnmarshalJSON decodes the config according to the actionType field.
func (a *Action) UnmarshalJSON(data []byte) error {
	type alias Action
	aux := struct {
		*alias
		Config json.RawMessage `json:"config"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	cfg, err := DecodeConfig(a.ActionType, aux.Config)
	if err != nil {
		return err
	}
	a.Config = cfg
	return nil
}

// Validate checks that the config variant matches the action type.
func (a *Action) Validate() error {
	if !a.ActionType.Valid() {
		return Errorf(CodeInvalidAction, "unknown action type %q", a.ActionType)
	}
	if a.Name == "" {
		return Errorf(CodeInvalidAction, "name is required")
	}
	if a.Config == nil {
		return Errorf(CodeInvalidAction, "config is required")
	}
	if a.Config.ConfigType() != a.ActionType {
		return Errorf(CodeInvalidAction, "%s action cannot carry %s config", a.ActionType, a.Config.ConfigType())
	}
	return nil
}

// String implements fmt.Stringer for log fields.
func (a *Action) String() string {
	return fmt.Sprintf("%s(%s:%s)", a.Name, a.ActionType, a.ID)
}
