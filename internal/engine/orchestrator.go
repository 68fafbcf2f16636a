package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// OrchestratorConfig contains configuration options for orchestrator behavior.
type OrchestratorConfig struct {
	// Repo is the repository runs are staged on.
	Repo interfaces.RepoRef
	// WorkflowPath is where the mutated document is committed on the ephemeral branch.
	WorkflowPath string
	// BranchPrefix prefixes generated branch names.
	BranchPrefix string
	// CommitMessage is used for the workflow commit.
	CommitMessage string
	// SettleDelay is how long to wait after the commit before listing runs.
	SettleDelay time.Duration
	// Poll bounds how long a run is observed.
	Poll PollerConfig
}

// DefaultOrchestratorConfig returns the defaults for repo.
func DefaultOrchestratorConfig(repo interfaces.RepoRef) OrchestratorConfig {
	return OrchestratorConfig{
		Repo:          repo,
		WorkflowPath:  ".github/workflows/ghaexec.yml",
		BranchPrefix:  "ghaexec",
		CommitMessage: "Run workflow via ghaexec",
		SettleDelay:   5 * time.Second,
		Poll:          DefaultPollerConfig(),
	}
}

// Orchestrator runs a workflow document on the remote provider by staging it
// on an ephemeral branch with a push trigger and polling the resulting run.
//
// Every stage is a hard precondition for the next. Once the ephemeral branch
// has been created it is deleted exactly once on every exit path, and a
// failed deletion never replaces the execution's outcome.
//
// An Orchestrator handles one request at a time per call; it holds no state
// across calls.
type Orchestrator struct {
	*Preparer

	remote  interfaces.RemoteClient
	poller  *Poller
	config  OrchestratorConfig
	logger  *zap.Logger
	metrics *MetricsCollector

	sleep Sleeper
	now   func() time.Time
}

// NewOrchestrator creates a new Orchestrator with the provided dependencies.
// logger and metrics may be nil.
func NewOrchestrator(remote interfaces.RemoteClient, validator interfaces.Validator, mutator interfaces.Mutator, config OrchestratorConfig, logger *zap.Logger, metrics *MetricsCollector) (*Orchestrator, error) {
	if remote == nil {
		return nil, errors.New("remote client cannot be nil")
	}
	preparer, err := NewPreparer(validator, mutator, logger)
	if err != nil {
		return nil, err
	}
	if config.Repo.Owner == "" || config.Repo.Name == "" {
		return nil, errors.New("repository owner and name are required")
	}
	if config.WorkflowPath == "" {
		return nil, errors.New("workflow path cannot be empty")
	}
	if config.BranchPrefix == "" {
		return nil, errors.New("branch prefix cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		Preparer: preparer,
		remote:   remote,
		poller:   NewPoller(remote, config.Poll, logger, metrics),
		config:   config,
		logger:   logger,
		metrics:  metrics,
		sleep:    Sleep,
		now:      time.Now,
	}, nil
}

// Execute runs req to completion and returns the observed result. Failures
// are *errors.StageError values naming the failed stage and, once a branch
// name is known, its final disposition.
func (o *Orchestrator) Execute(ctx context.Context, req ExecutionRequest) (result *interfaces.ExecutionResult, err error) {
	stage := StageResolveSource
	var (
		branch string
		lease  *branchLease
	)
	start := o.now()

	defer func() {
		disposition := ghaerrors.DispositionNotCreated
		if lease != nil {
			disposition = lease.Release(ctx)
		}
		if err == nil {
			o.metrics.RecordExecution("")
			return
		}

		stageErr := &ghaerrors.StageError{Stage: stage, Err: err}
		if branch != "" {
			stageErr.Branch = branch
			stageErr.Disposition = disposition
		}
		o.metrics.RecordExecution(stage)
		o.logger.Error("workflow execution failed",
			zap.String("stage", stage),
			zap.String("code", string(ghaerrors.CodeOf(err))),
			zap.String("branch", branch),
			zap.String("disposition", string(disposition)),
			zap.Error(err),
		)
		result, err = nil, stageErr
	}()

	prep, failed, err := o.prepare(ctx, req)
	if err != nil {
		stage = failed
		return nil, err
	}

	branch = req.BranchName
	if branch == "" {
		branch = NewBranchName(o.config.BranchPrefix, o.now())
	}
	logger := o.logger.With(zap.String("repo", o.config.Repo.String()), zap.String("branch", branch))
	if !IsGeneratedBranchName(o.config.BranchPrefix, branch) {
		logger.Warn("branch name does not match the generated format; prune will not collect it if deletion fails",
			zap.String("prefix", o.config.BranchPrefix),
		)
	}

	stage = StageResolveBase
	base, err := o.remote.GetDefaultBranch(ctx, o.config.Repo)
	if err != nil {
		return nil, err
	}
	sha, err := o.remote.GetBranchHeadSHA(ctx, o.config.Repo, base)
	if err != nil {
		return nil, err
	}
	logger.Debug("resolved base", zap.String("base", base), zap.String("sha", sha))

	stage = StageCreateBranch
	lease = newBranchLease(o.remote, o.config.Repo, branch, logger, o.metrics)
	if err := lease.Acquire(ctx, sha); err != nil {
		return nil, err
	}

	stage = StageCommitWorkflow
	if err := o.remote.PutFile(ctx, o.config.Repo, o.config.WorkflowPath, prep.Mutated, branch, o.config.CommitMessage); err != nil {
		return nil, err
	}
	logger.Info("committed workflow", zap.String("path", o.config.WorkflowPath))

	stage = StageSettle
	if err := o.sleep(ctx, o.config.SettleDelay); err != nil {
		return nil, err
	}

	stage = StageFindRun
	runs, err := o.remote.ListRunsForBranch(ctx, o.config.Repo, branch, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ghaerrors.New(ghaerrors.CodeNoRunTriggered,
			fmt.Sprintf("no run found for branch %s after %s", branch, o.config.SettleDelay))
	}
	run := runs[0]
	logger.Info("found run", zap.Int64("run_id", run.ID), zap.String("status", run.Status))

	stage = StagePollRun
	polled, err := o.poller.Poll(ctx, o.config.Repo, run)
	if err != nil {
		return nil, err
	}

	jobs := polled.Jobs
	if jobs == nil {
		jobs = []interfaces.JobSummary{}
	}
	logger.Info("workflow execution finished",
		zap.Int64("run_id", polled.Run.ID),
		zap.String("conclusion", polled.Run.Conclusion),
		zap.Duration("elapsed", o.now().Sub(start)),
	)

	return &interfaces.ExecutionResult{
		Status:          polled.Run.Status,
		Conclusion:      polled.Run.Conclusion,
		URL:             polled.Run.URL,
		CreatedAt:       polled.Run.CreatedAt,
		UpdatedAt:       polled.Run.UpdatedAt,
		Jobs:            jobs,
		RunID:           run.ID,
		Branch:          branch,
		ReplacedTrigger: prep.ReplacedTrigger,
	}, nil
}
