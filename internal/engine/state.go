package engine

import (
	"context"
	"time"
)

// PollState is the state of a Poller observing one run.
type PollState int

const (
	PollPending   PollState = iota // Push staged, run not yet observed
	PollRunning                    // Run observed, not terminal
	PollCompleted                  // Terminal status observed
	PollTimedOut                   // Tick ceiling reached without a terminal status
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollRunning:
		return "running"
	case PollCompleted:
		return "completed"
	case PollTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Pipeline stages, in execution order.
const (
	StageResolveSource    = "resolve_source"
	StageValidateOriginal = "validate_original"
	StageMutateTrigger    = "mutate_trigger"
	StageValidateMutated  = "validate_mutated"
	StageResolveBase      = "resolve_base"
	StageCreateBranch     = "create_branch"
	StageCommitWorkflow   = "commit_workflow"
	StageSettle           = "settle"
	StageFindRun          = "find_run"
	StagePollRun          = "poll_run"
)

// Sleeper waits for d or until ctx is done. Tests substitute a fake.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
