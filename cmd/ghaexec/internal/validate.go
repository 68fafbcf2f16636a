package internal

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dangazineu/ghaexec/internal/engine"
	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
)

func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a workflow and its push-triggered rewrite",
		Long: `Validate a workflow, replace its trigger with push and validate the result.
Nothing is sent to GitHub, so no repository or token is needed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			inline, _ := cmd.Flags().GetString("yaml")
			showMutated, _ := cmd.Flags().GetBool("show-mutated")

			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			preparer, err := a.newPreparer()
			if err != nil {
				return err
			}
			prep, err := preparer.Prepare(cmd.Context(), engine.ExecutionRequest{
				WorkflowYAML: inline,
				WorkflowPath: file,
			})

			out := cmd.OutOrStdout()
			var codedErr *ghaerrors.Error
			if err != nil && errors.As(err, &codedErr) && len(codedErr.Issues) > 0 {
				printIssues(out, codedErr)
			}
			if err != nil {
				return err
			}

			if prep.ReplacedTrigger != "" && prep.ReplacedTrigger != "push" {
				fmt.Fprintf(out, "Trigger %s will be replaced with push\n", prep.ReplacedTrigger)
			}
			if showMutated {
				fmt.Fprintln(out, "---")
				_, _ = out.Write(prep.Mutated)
			}
			fmt.Fprintln(out, "Validation successful!")
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "", "Path to the workflow file")
	cmd.Flags().String("yaml", "", "Inline workflow YAML")
	cmd.Flags().Bool("show-mutated", false, "Print the document that exec would commit")
	cmd.MarkFlagsMutuallyExclusive("file", "yaml")
	return cmd
}

func printIssues(w io.Writer, err *ghaerrors.Error) {
	fmt.Fprintf(w, "%s workflow has %d issue(s):\n", err.Target, len(err.Issues))
	for _, issue := range err.Issues {
		fmt.Fprintf(w, "  %s\n", issue)
	}
}
