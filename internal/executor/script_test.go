package executor

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/actiongate/pkg/types"
)

func scriptAction(cfg types.ScriptConfig) *types.Action {
	return &types.Action{ID: "act_script", ActionType: types.ActionTypeScript, Name: "script", Config: cfg, IsEnabled: true}
}

func testExecution(params map[string]any) *types.Execution {
	return &types.Execution{ID: "exe_test", Status: types.StatusRunning, Parameters: params}
}

func TestScriptBackend(t *testing.T) {
	tests := []struct {
		name   string
		cfg    types.ScriptConfig
		stdout string
	}{
		{
			name:   "direct",
			cfg:    types.ScriptConfig{Command: "echo hello"},
			stdout: "hello\n",
		},
		{
			name:   "args appended",
			cfg:    types.ScriptConfig{Command: "printf", Args: []string{"%s-%s", "a", "b"}},
			stdout: "a-b",
		},
		{
			name:   "shell with positional args",
			cfg:    types.ScriptConfig{Command: `echo "$1" | tr a-z A-Z`, Args: []string{"shout"}},
			stdout: "SHOUT\n",
		},
		{
			name:   "env",
			cfg:    types.ScriptConfig{Command: `echo "$GREETING $ACTIONGATE_EXECUTION_ID"`, Env: map[string]string{"GREETING": "hi"}},
			stdout: "hi exe_test\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NewScriptBackend().Run(context.Background(), scriptAction(tt.cfg), testExecution(nil))
			require.NoError(t, err)
			assert.Equal(t, 0, result["exitCode"])
			assert.Equal(t, tt.stdout, result["stdout"])
			assert.Equal(t, "", result["stderr"])
		})
	}
}

func TestScriptBackendParameters(t *testing.T) {
	action := scriptAction(types.ScriptConfig{Command: `printf '%s' "$ACTIONGATE_PARAMETERS"`})

	result, err := NewScriptBackend().Run(context.Background(), action, testExecution(map[string]any{"ref": "main"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ref":"main"}`, result["stdout"].(string))
}

func TestScriptBackendCwd(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	result, err := NewScriptBackend().Run(context.Background(), scriptAction(types.ScriptConfig{Command: "pwd", Cwd: dir}), testExecution(nil))
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(result["stdout"].(string)))
}

func TestScriptBackendNonZeroExit(t *testing.T) {
	action := scriptAction(types.ScriptConfig{Command: "echo first >&2; echo oops >&2; exit 3"})

	result, err := NewScriptBackend().Run(context.Background(), action, testExecution(nil))
	require.Error(t, err)
	assert.Equal(t, "exit status 3: oops", err.Error())
	assert.Equal(t, 3, result["exitCode"])
	assert.Equal(t, "first\noops\n", result["stderr"])
}

func TestScriptBackendTimeout(t *testing.T) {
	action := scriptAction(types.ScriptConfig{Command: "sleep 30", Timeout: 1})

	start := time.Now()
	_, err := NewScriptBackend().Run(context.Background(), action, testExecution(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out after 1s")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestScriptBackendCancel(t *testing.T) {
	action := scriptAction(types.ScriptConfig{Command: "sleep 30; echo done"})
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	_, err := NewScriptBackend().Run(ctx, action, testExecution(nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScriptBackendConfigMismatch(t *testing.T) {
	action := &types.Action{ID: "act_x", ActionType: types.ActionTypeScript, Config: types.WorkflowConfig{WorkflowID: "wf"}}

	_, err := NewScriptBackend().Run(context.Background(), action, testExecution(nil))
	assert.Error(t, err)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "", lastLine("  \n"))
	assert.Equal(t, ": only", lastLine("only\n"))
	assert.Equal(t, ": last", lastLine("a\nb\nlast\n"))
}
