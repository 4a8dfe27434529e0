package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/types"
)

const (
	DefaultScriptTimeout = 120 * time.Second
	MaxOutputLength      = 30000
	// WaitDelay bounds how long output pipes stay open after the process
	// group is killed.
	WaitDelay = 2 * time.Second
)

// ScriptBackend runs script actions as local processes. Commands made of
// plain literal words are executed directly; anything else goes through
// Shell -c with config args passed as positional parameters.
type ScriptBackend struct {
	Shell          string
	DefaultTimeout time.Duration
}

// NewScriptBackend creates a script backend using /bin/sh.
func NewScriptBackend() *ScriptBackend {
	return &ScriptBackend{Shell: "/bin/sh", DefaultTimeout: DefaultScriptTimeout}
}

func (b *ScriptBackend) command(ctx context.Context, cfg types.ScriptConfig) *exec.Cmd {
	if argv, ok := catalog.SplitArgv(cfg.Command); ok {
		return exec.CommandContext(ctx, argv[0], append(argv[1:], cfg.Args...)...)
	}
	args := append([]string{"-c", cfg.Command, "actiongate"}, cfg.Args...)
	return exec.CommandContext(ctx, b.Shell, args...)
}

// Run implements Backend. The result holds exitCode, stdout and stderr.
func (b *ScriptBackend) Run(ctx context.Context, action *types.Action, execution *types.Execution) (map[string]any, error) {
	cfg, ok := action.Config.(types.ScriptConfig)
	if !ok {
		return nil, configMismatch(action)
	}

	timeout := b.DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := b.command(cmdCtx, cfg)
	cmd.Dir = cfg.Cwd
	cmd.Env = scriptEnv(cfg, execution)

	// Kill the whole process group so children die with the script.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug().
		Str("executionID", execution.ID).
		Str("command", cfg.Command).
		Str("cwd", cfg.Cwd).
		Msg("running script")

	err := cmd.Run()

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	result := map[string]any{
		"exitCode": exitCode,
		"stdout":   truncate(stdout.String(), MaxOutputLength),
		"stderr":   truncate(stderr.String(), MaxOutputLength),
	}

	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return result, fmt.Errorf("script timed out after %s", timeout)
	case ctx.Err() != nil:
		return result, ctx.Err()
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return result, fmt.Errorf("exit status %d%s", exitCode, lastLine(stderr.String()))
		}
		return result, fmt.Errorf("failed to run script: %w", err)
	}
	return result, nil
}

// scriptEnv returns the process environment plus the action's env and the
// invocation details.
func scriptEnv(cfg types.ScriptConfig, execution *types.Execution) []string {
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "ACTIONGATE_EXECUTION_ID="+execution.ID)
	if len(execution.Parameters) > 0 {
		if data, err := json.Marshal(execution.Parameters); err == nil {
			env = append(env, "ACTIONGATE_PARAMETERS="+string(data))
		}
	}
	return env
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return ": " + s
}
