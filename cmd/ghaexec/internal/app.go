package internal

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dangazineu/ghaexec/internal/config"
	"github.com/dangazineu/ghaexec/internal/engine"
	"github.com/dangazineu/ghaexec/internal/interfaces"
	"github.com/dangazineu/ghaexec/internal/logging"
	"github.com/dangazineu/ghaexec/internal/remote"
	"github.com/dangazineu/ghaexec/internal/validator"
	"github.com/dangazineu/ghaexec/internal/workflow"
)

// app holds what every subcommand builds from the loaded configuration.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *engine.MetricsCollector
}

// newApp loads the configuration named by --config. Commands that talk to
// GitHub pass needRemote=true so the repository and token are required.
func newApp(cmd *cobra.Command, needRemote bool) (*app, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg config.Config
		err error
	)
	if needRemote {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Read(path)
		if err == nil {
			err = cfg.ValidateLocal()
		}
	}
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	metrics, err := engine.NewMetricsCollector(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &app{cfg: cfg, logger: logger, registry: registry, metrics: metrics}, nil
}

func (a *app) repo() interfaces.RepoRef {
	return interfaces.RepoRef{Owner: a.cfg.GitHub.Owner, Name: a.cfg.GitHub.Repo}
}

func (a *app) newRemote(ctx context.Context) (*remote.Client, error) {
	return remote.NewGitHubClient(ctx, a.cfg.GitHub.Token, remote.Options{
		BaseURL:           a.cfg.GitHub.APIURL,
		RequestsPerSecond: a.cfg.GitHub.RequestsPerSecond,
		Burst:             a.cfg.GitHub.Burst,
	}, a.logger)
}

// newValidator runs actionlint and, when rules are configured, the CEL policy.
func (a *app) newValidator() (*validator.Validator, error) {
	checks := []validator.Check{validator.NewActionlint(a.cfg.Exec.WorkflowPath)}
	if len(a.cfg.Policy.Rules) > 0 {
		rules := make([]validator.Rule, 0, len(a.cfg.Policy.Rules))
		for _, r := range a.cfg.Policy.Rules {
			rules = append(rules, validator.Rule{Name: r.Name, Expr: r.Expr, Message: r.Message})
		}
		policy, err := validator.NewPolicy(rules)
		if err != nil {
			return nil, fmt.Errorf("invalid policy: %w", err)
		}
		checks = append(checks, policy)
	}
	return validator.New(a.logger, checks...), nil
}

func (a *app) newPreparer() (*engine.Preparer, error) {
	v, err := a.newValidator()
	if err != nil {
		return nil, err
	}
	return engine.NewPreparer(v, workflow.NewTriggerMutator(), a.logger)
}

func (a *app) newOrchestrator(ctx context.Context) (*engine.Orchestrator, error) {
	client, err := a.newRemote(ctx)
	if err != nil {
		return nil, err
	}
	v, err := a.newValidator()
	if err != nil {
		return nil, err
	}

	return engine.NewOrchestrator(client, v, workflow.NewTriggerMutator(), engine.OrchestratorConfig{
		Repo:          a.repo(),
		WorkflowPath:  a.cfg.Exec.WorkflowPath,
		BranchPrefix:  a.cfg.Exec.BranchPrefix,
		CommitMessage: a.cfg.Exec.CommitMessage,
		SettleDelay:   a.cfg.Exec.SettleDelay,
		Poll: engine.PollerConfig{
			Interval: a.cfg.Poll.Interval,
			MaxTicks: a.cfg.Poll.MaxTicks,
		},
	}, a.logger, a.metrics)
}
