package internal

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dangazineu/ghaexec/internal/engine"
)

func NewPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete ephemeral branches left behind by interrupted executions",
		Long: `Delete generated branches under the configured prefix that are older than --max-age.
Branches whose names do not match the generated format are never deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			maxAge, _ := cmd.Flags().GetDuration("max-age")

			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			if maxAge > 0 {
				a.cfg.Janitor.MaxAge = maxAge
			}

			client, err := a.newRemote(cmd.Context())
			if err != nil {
				return err
			}
			cm := engine.NewCleanupManager(client, a.repo(), a.cfg.Exec.BranchPrefix, a.cfg.Janitor.MaxAge, a.logger, a.metrics)
			report, err := cm.CleanupOrphanedBranches(cmd.Context(), time.Now(), dryRun)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				for _, b := range report.Stale {
					fmt.Fprintf(out, "would delete %s\n", b)
				}
				fmt.Fprintf(out, "%d stale branch(es)\n", len(report.Stale))
				return nil
			}
			for _, b := range report.Deleted {
				fmt.Fprintf(out, "deleted %s\n", b)
			}
			for _, b := range report.Failed {
				fmt.Fprintf(out, "failed %s\n", b)
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("failed to delete %d of %d stale branch(es)", len(report.Failed), len(report.Stale))
			}
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "List stale branches without deleting them")
	cmd.Flags().Duration("max-age", 0, "Minimum age of a branch to delete. Overrides janitor.max_age.")
	return cmd
}
