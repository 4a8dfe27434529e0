package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opencode-ai/actiongate/internal/approval"
	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/config"
	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/metrics"
	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/internal/retention"
	"github.com/opencode-ai/actiongate/internal/server"
	"github.com/opencode-ai/actiongate/internal/storage"
	"github.com/opencode-ai/actiongate/pkg/mcpserver/governance"
	"github.com/opencode-ai/actiongate/pkg/types"
)

// stack holds the governance services built from one configuration.
type stack struct {
	dir         string
	cfg         *types.Config
	bus         *event.Bus
	actions     *catalog.Service
	permissions *permission.Store
	resolver    *permission.Resolver
	matrix      *permission.MatrixService
	executions  *execution.Service
	approvals   *approval.Gateway
	retention   *retention.Policy
	metrics     *metrics.Metrics
}

// loadStack loads configuration for the working directory and wires the
// services over its storage directory.
func loadStack() (*stack, error) {
	dir, err := GetWorkDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	storagePath := config.StoragePath(cfg)
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	store := storage.New(storagePath)
	bus := event.NewBus()

	st := &stack{
		dir:         dir,
		cfg:         cfg,
		bus:         bus,
		actions:     catalog.NewService(store, bus),
		permissions: permission.NewStore(store, bus),
		matrix:      permission.NewMatrixService(store, permission.NewRegistry(permission.DefaultTools()...), bus),
	}
	st.actions.OnDelete(st.permissions.DeleteForAction)
	st.resolver = permission.NewResolver(st.permissions, permission.DefaultsFromConfig(cfg))
	st.executions = execution.NewService(store, st.actions, st.resolver, bus,
		execution.WithConfirmTimeout(cfg.ConfirmTimeout()))
	st.approvals = approval.NewGateway(st.executions, st.actions, st.permissions)
	st.retention = retention.NewPolicyFromConfig(st.executions, bus, cfg)

	logging.Debug().
		Str("directory", dir).
		Str("storage", storagePath).
		Msg("governance services initialized")
	return st, nil
}

// apply pushes a reloaded configuration into the running services.
func (st *stack) apply(cfg *types.Config) {
	st.executions.SetConfirmTimeout(cfg.ConfirmTimeout())
	st.resolver.SetDefaults(permission.DefaultsFromConfig(cfg))
	st.retention.SetDefaults(cfg.KeepCount(), cfg.MaxAgeDays())
	logging.Info().
		Dur("confirmTimeout", cfg.ConfirmTimeout()).
		Int("keepCount", cfg.KeepCount()).
		Int("maxAgeDays", cfg.MaxAgeDays()).
		Msg("configuration applied")
}

func (st *stack) services() server.Services {
	if st.metrics == nil {
		st.metrics = metrics.New(metrics.PendingCounter(st.executions))
		st.metrics.Watch(st.bus)
	}
	return server.Services{
		Actions:     st.actions,
		Permissions: st.permissions,
		Resolver:    st.resolver,
		Matrix:      st.matrix,
		Executions:  st.executions,
		Approvals:   st.approvals,
		Retention:   st.retention,
		Bus:         st.bus,
		Metrics:     st.metrics,
	}
}

func (st *stack) mcpDeps() governance.Deps {
	return governance.Deps{
		Actions:     st.actions,
		Permissions: st.permissions,
		Matrix:      st.matrix,
		Executions:  st.executions,
		Retention:   st.retention,
	}
}

func (st *stack) Close() {
	if st.metrics != nil {
		st.metrics.Close()
	}
	if err := st.bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("event bus close failed")
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
