// Package interfaces defines the collaborator contracts of the workflow execution pipeline.
// These interfaces enable dependency injection and testability by decoupling the
// orchestrator from the validator, the trigger mutator and the hosting provider.
package interfaces

import "context"

// RemoteClient is the façade over the hosting provider's API that the
// orchestrator needs. Every method is independently failable; failures carry
// the provider status as an errors.CodeRemoteAPI error.
type RemoteClient interface {
	// GetDefaultBranch returns the repository's default branch name.
	GetDefaultBranch(ctx context.Context, repo RepoRef) (string, error)

	// GetBranchHeadSHA returns the commit SHA at the head of branch.
	GetBranchHeadSHA(ctx context.Context, repo RepoRef, branch string) (string, error)

	// CreateBranch creates branch pointing at fromSHA. It fails with an
	// errors.CodeBranchAlreadyExists error if the name collides.
	CreateBranch(ctx context.Context, repo RepoRef, branch, fromSHA string) error

	// PutFile creates or overwrites the file at path on branch.
	PutFile(ctx context.Context, repo RepoRef, path string, content []byte, branch, message string) error

	// ListRunsForBranch returns at most limit runs for branch, most recent first.
	ListRunsForBranch(ctx context.Context, repo RepoRef, branch string, limit int) ([]RunHandle, error)

	// GetRun returns the current status of a run.
	GetRun(ctx context.Context, repo RepoRef, runID int64) (RunStatus, error)

	// ListJobsForRun returns every job of a run.
	ListJobsForRun(ctx context.Context, repo RepoRef, runID int64) ([]JobSummary, error)

	// DeleteBranch deletes branch. Callers treat failure as a warning.
	DeleteBranch(ctx context.Context, repo RepoRef, branch string) error
}
