package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/pkg/types"
)

var matrixCmd = &cobra.Command{
	Use:   "matrix",
	Short: "Show or change the tool permission matrix",
	Long: `Show the tool permission matrix that gates MCP tools.

Examples:
  actiongate matrix                           # Show the matrix
  actiongate matrix mode read_only            # Apply a preset
  actiongate matrix set scripts execute false # Flip one cell`,
	RunE: runMatrixShow,
}

var matrixModeCmd = &cobra.Command{
	Use:       "mode <read_only|standard|full_access>",
	Short:     "Replace the matrix with a preset",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(types.ModeReadOnly), string(types.ModeStandard), string(types.ModeFullAccess)},
	RunE:      runMatrixMode,
}

var matrixSetCmd = &cobra.Command{
	Use:   "set <tool> <read|execute|write> <true|false>",
	Short: "Set one cell of the matrix",
	Args:  cobra.ExactArgs(3),
	RunE:  runMatrixSet,
}

func init() {
	matrixCmd.AddCommand(matrixModeCmd)
	matrixCmd.AddCommand(matrixSetCmd)
}

func runMatrixShow(cmd *cobra.Command, args []string) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := st.matrix.Get(context.Background())
	if err != nil {
		return err
	}
	return printMatrix(st, state)
}

func runMatrixMode(cmd *cobra.Command, args []string) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := st.matrix.SetQuickMode(context.Background(), types.QuickMode(args[0]))
	if err != nil {
		return err
	}
	return printMatrix(st, state)
}

func runMatrixSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseBool(args[2])
	if err != nil {
		return fmt.Errorf("value must be true or false: %w", err)
	}

	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	state, err := st.matrix.SetToolPermission(context.Background(), args[0], types.PermissionKind(args[1]), value)
	if err != nil {
		return err
	}
	return printMatrix(st, state)
}

func printMatrix(st *stack, state *types.MatrixState) error {
	fmt.Printf("mode: %s\n\n", state.QuickMode)

	registry := st.matrix.Registry()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tREAD\tEXECUTE\tWRITE\t")
	for _, tool := range registry.Names() {
		p := state.Matrix[tool]
		fmt.Fprintf(w, "%s", tool)
		for _, kind := range types.PermissionKinds {
			cell := "-"
			if registry.IsApplicable(tool, kind) {
				cell = strconv.FormatBool(p.Get(kind))
			}
			fmt.Fprintf(w, "\t%s", cell)
		}
		fmt.Fprintln(w, "\t")
	}
	return w.Flush()
}
