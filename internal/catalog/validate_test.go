package catalog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/actiongate/pkg/types"
)

func TestValidatorsCoverTypes(t *testing.T) {
	for _, at := range types.ActionTypes {
		assert.Contains(t, validators, at, "missing validator for %s", at)
		assert.Contains(t, yamlDecoders, at, "missing manifest decoder for %s", at)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		action  types.Action
		wantErr bool
	}{
		{"script ok", types.Action{ActionType: types.ActionTypeScript, Name: "a", Config: types.ScriptConfig{Command: "make deploy ENV=staging"}}, false},
		{"script pointer config", types.Action{ActionType: types.ActionTypeScript, Name: "a", Config: &types.ScriptConfig{Command: "ls"}}, false},
		{"script empty", types.Action{ActionType: types.ActionTypeScript, Name: "a", Config: types.ScriptConfig{Command: "  "}}, true},
		{"script unparseable", types.Action{ActionType: types.ActionTypeScript, Name: "a", Config: types.ScriptConfig{Command: "echo 'unterminated"}}, true},
		{"script negative timeout", types.Action{ActionType: types.ActionTypeScript, Name: "a", Config: types.ScriptConfig{Command: "ls", Timeout: -1}}, true},
		{"script bad env", types.Action{ActionType: types.ActionTypeScript, Name: "a", Config: types.ScriptConfig{Command: "ls", Env: map[string]string{"A=B": "c"}}}, true},
		{"webhook ok", types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: "http://localhost:9000/hook", Method: "put"}}, false},
		{"webhook relative url", types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: "/hook"}}, true},
		{"webhook ftp", types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: "ftp://example.com"}}, true},
		{"webhook bad method", types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: "https://example.com", Method: "TRACE"}}, true},
		{"webhook bad template", types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: "https://example.com", PayloadTemplate: "{{ .env "}}, true},
		{"webhook too many retries", types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: "https://example.com", RetryCount: 11}}, true},
		{"workflow ok", types.Action{ActionType: types.ActionTypeWorkflow, Name: "f", Config: types.WorkflowConfig{WorkflowID: "wf_1"}}, false},
		{"workflow missing id", types.Action{ActionType: types.ActionTypeWorkflow, Name: "f", Config: types.WorkflowConfig{}}, true},
		{"missing name", types.Action{ActionType: types.ActionTypeWorkflow, Config: types.WorkflowConfig{WorkflowID: "wf_1"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := tt.action
			err := Validate(&action)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidAction)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateNormalizesWebhook(t *testing.T) {
	action := types.Action{ActionType: types.ActionTypeWebhook, Name: "w", Config: types.WebhookConfig{URL: " https://example.com/x ", Method: "patch"}}
	require.NoError(t, Validate(&action))

	cfg := action.Config.(types.WebhookConfig)
	assert.Equal(t, "https://example.com/x", cfg.URL)
	assert.Equal(t, "PATCH", cfg.Method)
}

func TestParsePayloadTemplate(t *testing.T) {
	tmpl, err := ParsePayloadTemplate(`{"env": {{ json .env }}, "count": {{ .count }}}`)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, map[string]any{"env": "staging", "count": 3}))
	assert.Equal(t, `{"env": "staging", "count": 3}`, buf.String())
}

func TestParseManifest(t *testing.T) {
	manifest := `
actions:
  - name: deploy-staging
    type: webhook
    description: Trigger the staging deploy
    config:
      url: https://ci.example.com/hooks/deploy
      method: POST
      retryCount: 2
  - name: backup-db
    type: script
    enabled: false
    config:
      command: pg_dump app
      timeout: 600
  - name: release
    type: workflow
    config:
      workflowID: wf_release
      parameters:
        channel: stable
`
	inputs, err := ParseManifest(strings.NewReader(manifest))
	require.NoError(t, err)
	require.Len(t, inputs, 3)

	assert.Equal(t, types.WebhookConfig{URL: "https://ci.example.com/hooks/deploy", Method: "POST", RetryCount: 2}, inputs[0].Config)
	assert.Equal(t, "Trigger the staging deploy", inputs[0].Description)

	require.NotNil(t, inputs[1].IsEnabled)
	assert.False(t, *inputs[1].IsEnabled)
	assert.Equal(t, types.ScriptConfig{Command: "pg_dump app", Timeout: 600}, inputs[1].Config)

	wf := inputs[2].Config.(types.WorkflowConfig)
	assert.Equal(t, "wf_release", wf.WorkflowID)
	assert.Equal(t, "stable", wf.Parameters["channel"])
}

func TestParseManifestUnknownType(t *testing.T) {
	_, err := ParseManifest(strings.NewReader("actions:\n  - name: x\n    type: lambda\n"))
	assert.ErrorIs(t, err, types.ErrInvalidAction)
}

func TestParseManifestUnknownField(t *testing.T) {
	_, err := ParseManifest(strings.NewReader("actions:\n  - name: x\n    type: script\n    shell: bash\n"))
	assert.Error(t, err)
}
