package commands

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/internal/logging"
	"github.com/opencode-ai/actiongate/pkg/mcpserver/governance"
)

var mcpClientName string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve governed tools to an MCP client over stdio",
	Long: `Serve the action governance tools over stdio for MCP clients such as
desktop agents. Tools are filtered by the tool permission matrix.

Invoked actions are recorded in the shared storage directory; a running
'actiongate serve' picks up queued executions and serves confirmations.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpClientName, "client", governance.DefaultSourceClient, "Source client recorded on invoked executions")
}

func runMCP(cmd *cobra.Command, args []string) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	s := governance.NewServer(st.mcpDeps(), Version, governance.WithSourceClient(mcpClientName))
	logging.Info().Str("client", mcpClientName).Msg("serving MCP over stdio")
	return server.ServeStdio(s)
}
