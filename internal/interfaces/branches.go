package interfaces

import "context"

// BranchLister enumerates remote branches. The stale-branch janitor needs it;
// the orchestrator does not.
type BranchLister interface {
	// ListBranches returns the names of branches starting with prefix.
	ListBranches(ctx context.Context, repo RepoRef, prefix string) ([]string, error)

	// DeleteBranch deletes branch.
	DeleteBranch(ctx context.Context, repo RepoRef, branch string) error
}
