package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/opencode-ai/actiongate/internal/approval"
	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/executor"
	"github.com/opencode-ai/actiongate/internal/metrics"
	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/internal/retention"
	"github.com/opencode-ai/actiongate/internal/server"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// TestServer wraps a server instance and its services for testing
type TestServer struct {
	Server     *server.Server
	BaseURL    string
	Config     *types.Config
	Storage    *storage.Storage
	Bus        *event.Bus
	Executions *execution.Service
	TempDir    string

	sweeper    *execution.Sweeper
	dispatcher *executor.Dispatcher
	metrics    *metrics.Metrics
	port       int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	envFile  string
	executor bool
	sweep    time.Duration
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithoutExecutor leaves queued executions for the test to drive.
func WithoutExecutor() TestServerOption {
	return func(c *testServerConfig) {
		c.executor = false
	}
}

// WithSweepInterval sets how often overdue confirmations are expired.
func WithSweepInterval(d time.Duration) TestServerOption {
	return func(c *testServerConfig) {
		c.sweep = d
	}
}

// StartTestServer creates and starts a test server
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{executor: true, sweep: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(cfg)
	}

	// Load environment variables
	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		// Try default locations
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load("../.env")
		_ = godotenv.Load(".env")
	}

	// Create temp directory for test data
	tempDir, err := os.MkdirTemp("", "actiongate-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	appConfig := buildTestConfig()

	// Find available port
	port, err := findAvailablePort()
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	// Initialize storage
	storagePath := filepath.Join(tempDir, "storage")
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	store := storage.New(storagePath)
	bus := event.NewBus()

	actions := catalog.NewService(store, bus)
	records := permission.NewStore(store, bus)
	actions.OnDelete(records.DeleteForAction)
	resolver := permission.NewResolver(records, permission.DefaultsFromConfig(appConfig))
	executions := execution.NewService(store, actions, resolver, bus,
		execution.WithConfirmTimeout(appConfig.ConfirmTimeout()))

	ts := &TestServer{
		BaseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		Config:     appConfig,
		Storage:    store,
		Bus:        bus,
		Executions: executions,
		TempDir:    tempDir,
		port:       port,
	}

	ts.metrics = metrics.New(metrics.PendingCounter(executions))
	ts.metrics.Watch(bus)

	ts.sweeper = execution.NewSweeper(executions, cfg.sweep)
	ts.sweeper.Start()
	if cfg.executor {
		ts.dispatcher = executor.NewDispatcher(executions, actions, executor.Options{
			Concurrency:  2,
			PollInterval: 200 * time.Millisecond,
		})
		ts.dispatcher.Start()
	}

	// Configure server
	serverConfig := server.DefaultConfig()
	serverConfig.Hostname = "127.0.0.1"
	serverConfig.Port = port

	ts.Server = server.New(serverConfig, server.Services{
		Actions:     actions,
		Permissions: records,
		Resolver:    resolver,
		Matrix:      permission.NewMatrixService(store, permission.NewRegistry(permission.DefaultTools()...), bus),
		Executions:  executions,
		Approvals:   approval.NewGateway(executions, actions, records),
		Retention:   retention.NewPolicyFromConfig(executions, bus, appConfig),
		Bus:         bus,
		Metrics:     ts.metrics,
	})

	// Start server in background
	go func() {
		_ = ts.Server.Start()
	}()

	// Wait for server to be ready
	if err := waitForServer(ts.BaseURL, 10*time.Second); err != nil {
		ts.Stop()
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return ts, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if ts.Server != nil {
		err = ts.Server.Shutdown(ctx)
	}
	if ts.dispatcher != nil {
		ts.dispatcher.Stop()
	}
	if ts.sweeper != nil {
		ts.sweeper.Stop()
	}
	if ts.metrics != nil {
		ts.metrics.Close()
	}
	if ts.Bus != nil {
		ts.Bus.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}

	return err
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// buildTestConfig creates the test configuration. ACTIONGATE_CONFIRM_TIMEOUT
// may shorten the confirmation window.
func buildTestConfig() *types.Config {
	cfg := &types.Config{}
	if timeout := os.Getenv("ACTIONGATE_CONFIRM_TIMEOUT"); timeout != "" {
		cfg.Confirmation = &types.ConfirmationConfig{Timeout: timeout}
	}
	return cfg
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/health")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}
