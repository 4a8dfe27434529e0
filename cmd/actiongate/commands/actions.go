package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/internal/catalog"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List and import actions",
	RunE:  runActionsList,
}

var actionsImportCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Create actions from a YAML manifest",
	Long: `Create every action listed in a YAML manifest. The import is all or
nothing: no action is created unless every entry is valid.

Example manifest:
  actions:
    - name: deploy-staging
      type: webhook
      config:
        url: https://ci.example.com/hooks/deploy
        method: POST
    - name: backup-db
      type: script
      config:
        command: pg_dump app`,
	Args: cobra.ExactArgs(1),
	RunE: runActionsImport,
}

func init() {
	actionsCmd.AddCommand(actionsImportCmd)
}

func runActionsList(cmd *cobra.Command, args []string) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	actions, err := st.actions.List(context.Background(), catalog.Filter{})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tENABLED\t")
	for _, action := range actions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t\n", action.ID, action.ActionType, action.Name, action.IsEnabled)
	}
	return w.Flush()
}

func runActionsImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	inputs, err := catalog.ParseManifest(f)
	if err != nil {
		return err
	}

	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	actions, err := st.actions.Import(context.Background(), inputs)
	if err != nil {
		return err
	}
	for _, action := range actions {
		fmt.Printf("created %s (%s %s)\n", action.ID, action.ActionType, action.Name)
	}
	return nil
}
