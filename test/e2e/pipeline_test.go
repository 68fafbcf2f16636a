package e2e_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dangazineu/ghaexec/internal/config"
	"github.com/dangazineu/ghaexec/internal/engine"
	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
	"github.com/dangazineu/ghaexec/internal/remote"
	"github.com/dangazineu/ghaexec/internal/validator"
	"github.com/dangazineu/ghaexec/internal/workflow"
	"github.com/dangazineu/ghaexec/test/e2e"
)

const scenarioYAML = "name: T\non: workflow_dispatch\njobs: {t: {runs-on: ubuntu-latest, steps: [{run: echo hi}]}}"

var repo = interfaces.RepoRef{Owner: "my-org", Name: "my-repo"}

type pipeline struct {
	orchestrator *engine.Orchestrator
	client       *remote.Client
	mock         *e2e.MockGitHubServer
	registry     *prometheus.Registry
	config       engine.OrchestratorConfig
}

func newPipeline(t *testing.T, opts e2e.MockOptions, maxTicks int) *pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)

	mock := e2e.NewMockGitHubServer(opts)
	server := httptest.NewServer(mock.Handler())
	t.Cleanup(server.Close)

	client, err := remote.NewGitHubClient(context.Background(), config.Secret("ghp_test"), remote.Options{BaseURL: server.URL}, logger)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics, err := engine.NewMetricsCollector(registry)
	require.NoError(t, err)

	cfg := engine.DefaultOrchestratorConfig(repo)
	cfg.SettleDelay = 0
	cfg.Poll = engine.PollerConfig{Interval: time.Millisecond, MaxTicks: maxTicks}

	o, err := engine.NewOrchestrator(client, validator.New(logger, validator.NewActionlint(cfg.WorkflowPath)),
		workflow.NewTriggerMutator(), cfg, logger, metrics)
	require.NoError(t, err)

	return &pipeline{orchestrator: o, client: client, mock: mock, registry: registry, config: cfg}
}

func TestPipelineScenario(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{PollsUntilComplete: 2}, 10)

	result, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{WorkflowYAML: scenarioYAML})
	require.NoError(t, err)

	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "success", result.Conclusion)
	assert.Equal(t, "workflow_dispatch", result.ReplacedTrigger)
	require.Len(t, result.Jobs, 1)
	assert.Equal(t, "success", result.Jobs[0].Conclusion)
	assert.True(t, engine.IsGeneratedBranchName(p.config.BranchPrefix, result.Branch), result.Branch)

	committed, ok := p.mock.File(repo.Owner, repo.Name, result.Branch, p.config.WorkflowPath)
	require.True(t, ok, "workflow was not committed")
	trigger, err := workflow.Trigger(committed)
	require.NoError(t, err)
	assert.Equal(t, "push", trigger)

	assert.Equal(t, []string{result.Branch}, p.mock.Deletes())
	assert.Equal(t, []string{"main"}, p.mock.Branches(repo.Owner, repo.Name))
	expected := `
# HELP ghaexec_branch_cleanups_total Total number of ephemeral branch deletions by result
# TYPE ghaexec_branch_cleanups_total counter
ghaexec_branch_cleanups_total{result="deleted"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(p.registry, strings.NewReader(expected), "ghaexec_branch_cleanups_total"))
}

func TestPipelineFailedRunIsAResult(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{Conclusion: "failure", Jobs: 3, JobsPageSize: 2}, 10)

	result, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{WorkflowYAML: scenarioYAML})
	require.NoError(t, err)
	assert.Equal(t, "failure", result.Conclusion)
	assert.Len(t, result.Jobs, 3)
	assert.Len(t, p.mock.Deletes(), 1)
}

func TestPipelineTimeoutStillCleansUp(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{PollsUntilComplete: 100}, 3)

	_, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{WorkflowYAML: scenarioYAML})
	require.Error(t, err)
	assert.ErrorIs(t, err, ghaerrors.ErrPollTimeout)

	var stageErr *ghaerrors.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, engine.StagePollRun, stageErr.Stage)
	assert.Equal(t, ghaerrors.DispositionDeleted, stageErr.Disposition)
	assert.Equal(t, []string{"main"}, p.mock.Branches(repo.Owner, repo.Name))
}

func TestPipelineNoRunTriggered(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{NoRuns: true}, 3)

	_, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{WorkflowYAML: scenarioYAML})
	assert.ErrorIs(t, err, ghaerrors.ErrNoRunTriggered)
	assert.Len(t, p.mock.Deletes(), 1)
}

func TestPipelineDeleteFailureKeepsResult(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{FailDeletes: true}, 3)

	result, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{WorkflowYAML: scenarioYAML})
	require.NoError(t, err)
	assert.Equal(t, "success", result.Conclusion)
	assert.Contains(t, p.mock.Branches(repo.Owner, repo.Name), result.Branch)
}

func TestPipelineBranchCollision(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{}, 3)
	p.mock.AddBranch(repo.Owner, repo.Name, "ghaexec/taken")

	_, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{
		WorkflowYAML: scenarioYAML,
		BranchName:   "ghaexec/taken",
	})
	assert.ErrorIs(t, err, ghaerrors.ErrBranchAlreadyExists)
	assert.Empty(t, p.mock.Deletes(), "a branch this execution did not create must not be deleted")
	assert.Contains(t, p.mock.Branches(repo.Owner, repo.Name), "ghaexec/taken")
}

func TestPipelineJanitor(t *testing.T) {
	p := newPipeline(t, e2e.MockOptions{}, 3)

	// Leave a branch behind as a killed process would.
	now := time.Now()
	orphan := engine.NewBranchName(p.config.BranchPrefix, now.Add(-48*time.Hour))
	p.mock.AddBranch(repo.Owner, repo.Name, orphan)

	result, err := p.orchestrator.Execute(context.Background(), engine.ExecutionRequest{WorkflowYAML: scenarioYAML})
	require.NoError(t, err)

	cm := engine.NewCleanupManager(p.client, repo, p.config.BranchPrefix, 24*time.Hour, zaptest.NewLogger(t), nil)
	report, err := cm.CleanupOrphanedBranches(context.Background(), now, false)
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, report.Deleted)
	assert.Equal(t, []string{"main"}, p.mock.Branches(repo.Owner, repo.Name))
	assert.Equal(t, []string{result.Branch, orphan}, p.mock.Deletes())
}
