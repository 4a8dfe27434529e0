package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/internal/retention"
)

var (
	cleanupKeep   int
	cleanupMaxAge int
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old finished executions",
	Long: `Delete finished executions that are beyond the newest --keep and older
than --max-age-days. Pending, queued and running executions are never deleted.
Omitted flags use the retention defaults from configuration.`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupKeep, "keep", 0, "Number of newest executions to keep")
	cleanupCmd.Flags().IntVar(&cleanupMaxAge, "max-age-days", 0, "Only delete executions older than this many days")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	var opts retention.Options
	if cmd.Flags().Changed("keep") {
		opts.KeepCount = &cleanupKeep
	}
	if cmd.Flags().Changed("max-age-days") {
		opts.MaxAgeDays = &cleanupMaxAge
	}

	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.retention.Cleanup(context.Background(), opts)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d execution(s)\n", deleted)
	return nil
}
