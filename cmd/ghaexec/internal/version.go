package internal

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ghaexec version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v, err := deriveVersion()
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
		},
	}
}

// version is reported to MCP clients. It never fails.
func version() string {
	v, err := deriveVersion()
	if err != nil {
		return "dev"
	}
	return v
}

func deriveVersion() (string, error) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", fmt.Errorf("could not read build info")
	}
	return deriveVersionFromInfo(info)
}

func deriveVersionFromInfo(info *debug.BuildInfo) (string, error) {
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version, nil
	}
	return derivePseudoVersionFromVCS(info)
}

// derivePseudoVersionFromVCS builds a pseudo-version from the VCS stamp,
// see https://go.dev/ref/mod#pseudo-versions. A dirty tree gets +dirty.
func derivePseudoVersionFromVCS(info *debug.BuildInfo) (string, error) {
	var revision, at string
	var modified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			at = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" && at == "" {
		return "", fmt.Errorf("version information is not available")
	}

	var b strings.Builder
	b.WriteString("v0.0.0-")
	if p, err := time.Parse(time.RFC3339, at); err == nil {
		b.WriteString(p.UTC().Format("20060102150405"))
		b.WriteString("-")
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	b.WriteString(revision)
	if modified {
		b.WriteString("+dirty")
	}
	return b.String(), nil
}
