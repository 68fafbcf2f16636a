package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// branchLease tracks one ephemeral branch from creation to deletion. Release
// deletes the branch at most once, and only if Acquire created it.
type branchLease struct {
	remote  interfaces.RemoteClient
	repo    interfaces.RepoRef
	branch  string
	logger  *zap.Logger
	metrics *MetricsCollector

	created     bool
	released    bool
	disposition ghaerrors.Disposition
}

func newBranchLease(remote interfaces.RemoteClient, repo interfaces.RepoRef, branch string, logger *zap.Logger, metrics *MetricsCollector) *branchLease {
	return &branchLease{
		remote:      remote,
		repo:        repo,
		branch:      branch,
		logger:      logger,
		metrics:     metrics,
		disposition: ghaerrors.DispositionNotCreated,
	}
}

// Acquire creates the branch at fromSHA.
func (l *branchLease) Acquire(ctx context.Context, fromSHA string) error {
	if err := l.remote.CreateBranch(ctx, l.repo, l.branch, fromSHA); err != nil {
		return err
	}
	l.created = true
	l.logger.Info("created ephemeral branch", zap.String("branch", l.branch), zap.String("sha", fromSHA))
	return nil
}

// Release deletes the branch if it was created. A failed delete is logged
// and reported through the returned disposition, never as an error.
// Deletion runs even if ctx is already cancelled.
func (l *branchLease) Release(ctx context.Context) ghaerrors.Disposition {
	if !l.created || l.released {
		return l.disposition
	}
	l.released = true

	if err := l.remote.DeleteBranch(context.WithoutCancel(ctx), l.repo, l.branch); err != nil {
		l.disposition = ghaerrors.DispositionDeleteFailed
		l.metrics.RecordCleanup(false)
		l.logger.Warn("failed to delete ephemeral branch",
			zap.String("branch", l.branch),
			zap.Error(ghaerrors.Wrap(err, ghaerrors.CodeCleanupWarning, "branch cleanup failed")),
		)
		return l.disposition
	}

	l.disposition = ghaerrors.DispositionDeleted
	l.metrics.RecordCleanup(true)
	l.logger.Info("deleted ephemeral branch", zap.String("branch", l.branch))
	return l.disposition
}

// PruneReport summarizes a CleanupManager pass.
type PruneReport struct {
	Stale   []string `json:"stale"`
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
}

// CleanupManager removes generated branches left behind by executions that
// never reached their own cleanup, for example because the process died.
type CleanupManager struct {
	lister  interfaces.BranchLister
	repo    interfaces.RepoRef
	prefix  string
	maxAge  time.Duration
	logger  *zap.Logger
	metrics *MetricsCollector
}

// NewCleanupManager creates a new cleanup manager. A zero maxAge means 24 hours.
func NewCleanupManager(lister interfaces.BranchLister, repo interfaces.RepoRef, prefix string, maxAge time.Duration, logger *zap.Logger, metrics *MetricsCollector) *CleanupManager {
	if maxAge == 0 {
		maxAge = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CleanupManager{
		lister:  lister,
		repo:    repo,
		prefix:  prefix,
		maxAge:  maxAge,
		logger:  logger,
		metrics: metrics,
	}
}

// StaleBranches returns generated branches older than maxAge at now. Branches
// under the prefix that do not match the generated format are never touched.
func (cm *CleanupManager) StaleBranches(ctx context.Context, now time.Time) ([]string, error) {
	branches, err := cm.lister.ListBranches(ctx, cm.repo, cm.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list branches with prefix %s: %w", cm.prefix, err)
	}

	var stale []string
	for _, branch := range branches {
		created, _, err := ParseBranchName(cm.prefix, branch)
		if err != nil {
			cm.logger.Debug("skipping branch", zap.String("branch", branch), zap.Error(err))
			continue
		}
		if age := now.Sub(created); age < cm.maxAge {
			cm.logger.Debug("skipping branch (too recent)", zap.String("branch", branch), zap.Duration("age", age))
			continue
		}
		stale = append(stale, branch)
	}
	sort.Strings(stale)
	return stale, nil
}

// CleanupOrphanedBranches deletes stale generated branches. With dryRun it
// only reports them. Individual delete failures are collected, not returned.
func (cm *CleanupManager) CleanupOrphanedBranches(ctx context.Context, now time.Time, dryRun bool) (PruneReport, error) {
	stale, err := cm.StaleBranches(ctx, now)
	if err != nil {
		return PruneReport{}, err
	}

	report := PruneReport{Stale: stale}
	if dryRun {
		cm.logger.Info("dry run, not deleting stale branches", zap.Int("count", len(stale)))
		return report, nil
	}

	for _, branch := range stale {
		if err := cm.lister.DeleteBranch(ctx, cm.repo, branch); err != nil {
			cm.metrics.RecordCleanup(false)
			cm.logger.Warn("failed to delete stale branch", zap.String("branch", branch), zap.Error(err))
			report.Failed = append(report.Failed, branch)
			continue
		}
		cm.metrics.RecordCleanup(true)
		cm.logger.Info("deleted stale branch", zap.String("branch", branch))
		report.Deleted = append(report.Deleted, branch)
	}
	return report, nil
}
