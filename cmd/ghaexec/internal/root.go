package internal

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ghaexec",
		Short: "ghaexec runs GitHub Actions workflows on demand.",
		Long: `ghaexec runs a GitHub Actions workflow against a repository without changing its history or triggers.
The workflow is validated, its trigger is replaced with push, and it is committed to an ephemeral branch that is deleted once the run has been observed.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file.")
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewExecCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewCompletionCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command. Errors go to stderr; stdout belongs to the
// MCP transport under serve.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
