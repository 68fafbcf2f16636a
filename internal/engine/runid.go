package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	branchTimeLayout = "20060102-150405"
	branchHashLen    = 8
)

// NewBranchName generates an ephemeral branch name derived from now.
// Format: <prefix>/YYYYMMDD-HHMMSS-<hash>
// Example: ghaexec/20240726-143022-a7b3c1d2.
//
// The random suffix makes collisions unlikely but not impossible; a
// collision surfaces as a BRANCH_ALREADY_EXISTS error from the remote.
func NewBranchName(prefix string, now time.Time) string {
	hash := strings.ReplaceAll(uuid.NewString(), "-", "")[:branchHashLen]
	return fmt.Sprintf("%s/%s-%s", prefix, now.UTC().Format(branchTimeLayout), hash)
}

// ParseBranchName extracts the creation time and hash from a generated
// branch name.
func ParseBranchName(prefix, name string) (time.Time, string, error) {
	rest, ok := strings.CutPrefix(name, prefix+"/")
	if !ok {
		return time.Time{}, "", fmt.Errorf("branch %s does not start with %s/", name, prefix)
	}

	if len(rest) != len(branchTimeLayout)+1+branchHashLen || rest[len(branchTimeLayout)] != '-' {
		return time.Time{}, "", fmt.Errorf("invalid branch name format: %s", name)
	}

	created, err := time.Parse(branchTimeLayout, rest[:len(branchTimeLayout)])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid timestamp in branch name %s: %v", name, err)
	}

	return created, rest[len(branchTimeLayout)+1:], nil
}

// IsGeneratedBranchName reports whether name was produced by NewBranchName.
func IsGeneratedBranchName(prefix, name string) bool {
	_, _, err := ParseBranchName(prefix, name)
	return err == nil
}
