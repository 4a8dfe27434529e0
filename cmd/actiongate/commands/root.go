// Package commands provides the CLI commands for actiongate.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/internal/config"
	"github.com/opencode-ai/actiongate/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	workDir   string
)

var rootCmd = &cobra.Command{
	Use:   "actiongate",
	Short: "actiongate - permission and confirmation gate for agent actions",
	Long: `actiongate decides whether configured actions (scripts, webhooks,
workflows) requested by AI agents run immediately, wait for a human to
confirm them, or are refused, and records every attempt.

Run 'actiongate serve' to start the HTTP API and the built-in executor, or
'actiongate mcp' to expose the governed tools to an MCP client over stdio.`,
	Version:           Version,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&workDir, "directory", "", "Project directory for configuration")

	rootCmd.SetVersionTemplate(fmt.Sprintf("actiongate %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(matrixCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads .env files and configures logging before any subcommand runs.
func setup(cmd *cobra.Command, args []string) error {
	// Missing .env files are fine.
	_ = godotenv.Load()

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	level := logLevel
	if level == "" {
		level = os.Getenv("ACTIONGATE_LOG_LEVEL")
	}
	if level == "" {
		level = "INFO"
	}

	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(level)
	cfg.LogDir = paths.LogPath()
	if printLogs {
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		cfg.LogToFile = true
	}
	logging.Init(cfg)
	return nil
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir() (string, error) {
	if workDir != "" {
		return workDir, nil
	}
	return os.Getwd()
}
