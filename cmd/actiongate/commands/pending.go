package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/actiongate/internal/approval"
)

var (
	pendingRemember bool
	pendingReason   string
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List and answer confirmation requests",
	RunE:  runPendingList,
}

var pendingApproveCmd = &cobra.Command{
	Use:   "approve <executionID>",
	Short: "Approve a pending execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return respond(args[0], true)
	},
}

var pendingDenyCmd = &cobra.Command{
	Use:   "deny <executionID>",
	Short: "Deny a pending execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return respond(args[0], false)
	},
}

func init() {
	pendingCmd.PersistentFlags().BoolVar(&pendingRemember, "remember", false, "Apply this answer to future invocations of the action")
	pendingDenyCmd.Flags().StringVar(&pendingReason, "reason", "", "Reason recorded on the execution")

	pendingCmd.AddCommand(pendingApproveCmd)
	pendingCmd.AddCommand(pendingDenyCmd)
}

func runPendingList(cmd *cobra.Command, args []string) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	requests, err := st.approvals.ListPending(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXECUTION\tACTION\tTYPE\tCLIENT\tEXPIRES IN\t")
	for _, req := range requests {
		expires := "-"
		if req.ExpiresAt != nil {
			expires = time.Until(*req.ExpiresAt).Truncate(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", req.ExecutionID, req.ActionName, req.ActionType, req.SourceClient, expires)
	}
	return w.Flush()
}

func respond(executionID string, approved bool) error {
	st, err := loadStack()
	if err != nil {
		return err
	}
	defer st.Close()

	resp, err := st.approvals.Respond(context.Background(), approval.Response{
		ExecutionID: executionID,
		Approved:    approved,
		Reason:      pendingReason,
		Remember:    pendingRemember,
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}
