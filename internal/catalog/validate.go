package catalog

import (
	"encoding/json"
	"net/url"
	"strings"
	"text/template"

	"github.com/opencode-ai/actiongate/pkg/types"
)

// Limits applied to action configs.
const (
	MaxTimeoutSeconds = 24 * 60 * 60
	MaxRetryCount     = 10
)

var webhookMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// validators checks and normalizes each config variant. Keyed by action type
// so adding a type without a validator is caught by TestValidatorsCoverTypes.
var validators = map[types.ActionType]func(types.ActionConfig) (types.ActionConfig, error){
	types.ActionTypeScript:   validateScript,
	types.ActionTypeWebhook:  validateWebhook,
	types.ActionTypeWorkflow: validateWorkflow,
}

// Validate checks an action and returns it with its config normalized.
func Validate(action *types.Action) error {
	if err := action.Validate(); err != nil {
		return err
	}
	validate, ok := validators[action.ActionType]
	if !ok {
		return types.Errorf(types.CodeInvalidAction, "no validator for %s actions", action.ActionType)
	}
	cfg, err := validate(action.Config)
	if err != nil {
		return err
	}
	action.Config = cfg
	return nil
}

func validateScript(c types.ActionConfig) (types.ActionConfig, error) {
	cfg, err := variant[types.ScriptConfig](c)
	if err != nil {
		return nil, err
	}
	cfg.Command = strings.TrimSpace(cfg.Command)
	if cfg.Command == "" {
		return nil, types.Errorf(types.CodeInvalidAction, "script command is required")
	}
	commands, err := ParseCommand(cfg.Command)
	if err != nil {
		return nil, types.Errorf(types.CodeInvalidAction, "script command: %v", err)
	}
	if len(commands) == 0 {
		return nil, types.Errorf(types.CodeInvalidAction, "script command runs nothing")
	}
	if err := checkTimeout(cfg.Timeout); err != nil {
		return nil, err
	}
	for key := range cfg.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			return nil, types.Errorf(types.CodeInvalidAction, "invalid env name %q", key)
		}
	}
	return cfg, nil
}

func validateWebhook(c types.ActionConfig) (types.ActionConfig, error) {
	cfg, err := variant[types.WebhookConfig](c)
	if err != nil {
		return nil, err
	}
	u, perr := url.Parse(strings.TrimSpace(cfg.URL))
	if perr != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, types.Errorf(types.CodeInvalidAction, "webhook url must be an absolute http(s) URL")
	}
	cfg.URL = u.String()

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = "POST"
	}
	if !webhookMethods[cfg.Method] {
		return nil, types.Errorf(types.CodeInvalidAction, "unsupported webhook method %q", cfg.Method)
	}

	if cfg.PayloadTemplate != "" {
		if _, err := ParsePayloadTemplate(cfg.PayloadTemplate); err != nil {
			return nil, types.Errorf(types.CodeInvalidAction, "payload template: %v", err)
		}
	}
	if err := checkTimeout(cfg.Timeout); err != nil {
		return nil, err
	}
	if cfg.RetryCount < 0 || cfg.RetryCount > MaxRetryCount {
		return nil, types.Errorf(types.CodeInvalidAction, "retryCount must be between 0 and %d", MaxRetryCount)
	}
	return cfg, nil
}

func validateWorkflow(c types.ActionConfig) (types.ActionConfig, error) {
	cfg, err := variant[types.WorkflowConfig](c)
	if err != nil {
		return nil, err
	}
	cfg.WorkflowID = strings.TrimSpace(cfg.WorkflowID)
	if cfg.WorkflowID == "" {
		return nil, types.Errorf(types.CodeInvalidAction, "workflowID is required")
	}
	return cfg, nil
}

// ParsePayloadTemplate compiles a webhook payload template. Missing keys
// render as their zero value; the json function encodes a value as JSON.
func ParsePayloadTemplate(text string) (*template.Template, error) {
	return template.New("payload").
		Option("missingkey=zero").
		Funcs(template.FuncMap{"json": toJSON}).
		Parse(text)
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func checkTimeout(seconds int) error {
	if seconds < 0 || seconds > MaxTimeoutSeconds {
		return types.Errorf(types.CodeInvalidAction, "timeout must be between 0 and %d seconds", MaxTimeoutSeconds)
	}
	return nil
}

// variant unwraps c into the concrete config type T, accepting *T as well.
func variant[T types.ActionConfig](c types.ActionConfig) (T, error) {
	switch v := any(c).(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, types.Errorf(types.CodeInvalidAction, "config is %T, want %T", c, zero)
}
