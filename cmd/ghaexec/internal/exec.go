package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dangazineu/ghaexec/internal/engine"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

func NewExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run a workflow on an ephemeral branch and wait for its result",
		Long: `Run a workflow on the configured repository. The trigger is replaced with push,
the document is committed to an ephemeral branch, the run is polled until it completes
and the branch is deleted. The command fails unless the run concludes with success.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			inline, _ := cmd.Flags().GetString("yaml")
			branch, _ := cmd.Flags().GetString("branch")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			// An interrupt cancels polling; Execute still deletes the branch.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orchestrator, err := a.newOrchestrator(ctx)
			if err != nil {
				return err
			}
			result, err := orchestrator.Execute(ctx, engine.ExecutionRequest{
				WorkflowYAML: inline,
				WorkflowPath: file,
				BranchName:   branch,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), result)
			}

			if result.Conclusion != "success" {
				return fmt.Errorf("workflow run %d concluded with %s", result.RunID, result.Conclusion)
			}
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Path to the workflow file")
	cmd.Flags().String("yaml", "", "Inline workflow YAML")
	cmd.Flags().String("branch", "", "Ephemeral branch name (generated when empty)")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.MarkFlagsMutuallyExclusive("file", "yaml")
	return cmd
}

func printResult(w io.Writer, r *interfaces.ExecutionResult) {
	fmt.Fprintf(w, "Run %d: %s (%s)\n", r.RunID, r.Conclusion, r.Status)
	fmt.Fprintf(w, "URL: %s\n", r.URL)
	fmt.Fprintf(w, "Branch: %s\n", r.Branch)
	if r.ReplacedTrigger != "" {
		fmt.Fprintf(w, "Replaced trigger: %s\n", r.ReplacedTrigger)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tSTATUS\tCONCLUSION\tDURATION")
	for _, j := range r.Jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.Name, j.Status, j.Conclusion, jobDuration(j))
	}
	_ = tw.Flush()
}

func jobDuration(j interfaces.JobSummary) string {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return "-"
	}
	return j.CompletedAt.Sub(*j.StartedAt).Round(time.Second).String()
}
