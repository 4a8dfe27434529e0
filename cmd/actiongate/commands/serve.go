package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/internal/config"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/executor"
	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveNoExec   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the actiongate HTTP server",
	Long: `Start the HTTP API, the confirmation deadline sweeper and, unless
disabled, the built-in executor that runs queued script and webhook actions.

Configuration files are watched; confirmation timeout, retention defaults and
the default permission table are applied without a restart.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (default from config, 127.0.0.1)")
	serveCmd.Flags().BoolVar(&serveNoExec, "no-executor", false, "Leave queued executions to external executors")
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	logging.Info().Str("version", Version).Str("directory", st.dir).Msg("starting actiongate server")

	sweeper := execution.NewSweeper(st.executions, st.cfg.SweepInterval())
	sweeper.Start()
	defer sweeper.Stop()

	if st.cfg.ExecutorEnabled() && !serveNoExec {
		dispatcher := executor.NewDispatcher(st.executions, st.actions, executor.OptionsFromConfig(st.cfg))
		dispatcher.Start()
		defer dispatcher.Stop()
	}

	watcher, err := config.NewWatcher(st.dir, st.cfg, st.bus)
	if err != nil {
		logging.Warn().Err(err).Msg("config watcher unavailable")
	}
	if watcher != nil {
		watcher.OnChange(st.apply)
		watcher.Start()
		defer watcher.Stop()
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = st.cfg.ServerPort()
	serverConfig.Hostname = st.cfg.ServerHostname()
	serverConfig.EnableCORS = st.cfg.CORSEnabled()
	if servePort > 0 {
		serverConfig.Port = servePort
	}
	if serveHostname != "" {
		serverConfig.Hostname = serveHostname
	}

	srv := server.New(serverConfig, st.services())

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("hostname", serverConfig.Hostname).
			Int("port", serverConfig.Port).
			Msg("server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logging.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
