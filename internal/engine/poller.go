package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	ghaerrors "github.com/dangazineu/ghaexec/internal/errors"
	"github.com/dangazineu/ghaexec/internal/interfaces"
)

// PollerConfig bounds how long a run is observed. Total wait is roughly
// Interval * (MaxTicks - 1).
type PollerConfig struct {
	Interval time.Duration
	MaxTicks int
}

// DefaultPollerConfig polls every 10 seconds for up to 10 minutes.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 10 * time.Second,
		MaxTicks: 60,
	}
}

// PollResult is what a Poller observed.
type PollResult struct {
	State PollState
	Ticks int
	Run   interfaces.RunStatus
	Jobs  []interfaces.JobSummary
}

// Poller observes a run until it reaches the terminal status or the tick
// ceiling. Only the "completed" status ends polling; the conclusion is
// reported, never acted on. Remote errors abort polling without retry.
type Poller struct {
	remote  interfaces.RemoteClient
	config  PollerConfig
	sleep   Sleeper
	logger  *zap.Logger
	metrics *MetricsCollector
}

// NewPoller creates a Poller. A non-positive MaxTicks means a single poll.
func NewPoller(remote interfaces.RemoteClient, config PollerConfig, logger *zap.Logger, metrics *MetricsCollector) *Poller {
	if config.MaxTicks < 1 {
		config.MaxTicks = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		remote:  remote,
		config:  config,
		sleep:   Sleep,
		logger:  logger,
		metrics: metrics,
	}
}

// Poll observes run on repo. On completion it also fetches the run's jobs.
func (p *Poller) Poll(ctx context.Context, repo interfaces.RepoRef, run interfaces.RunHandle) (PollResult, error) {
	result := PollResult{State: PollPending}
	logger := p.logger.With(zap.Int64("run_id", run.ID))

	for tick := 1; tick <= p.config.MaxTicks; tick++ {
		result.Ticks = tick

		status, err := p.remote.GetRun(ctx, repo, run.ID)
		if err != nil {
			return result, fmt.Errorf("get run %d: %w", run.ID, err)
		}
		result.Run = status

		if status.Terminal() {
			result.State = PollCompleted
			p.metrics.RecordPollTicks(tick)
			logger.Info("run completed",
				zap.Int("tick", tick),
				zap.String("conclusion", status.Conclusion),
			)

			jobs, err := p.remote.ListJobsForRun(ctx, repo, run.ID)
			if err != nil {
				return result, fmt.Errorf("list jobs for run %d: %w", run.ID, err)
			}
			result.Jobs = jobs
			return result, nil
		}

		if result.State == PollPending {
			result.State = PollRunning
			logger.Info("run observed", zap.String("status", status.Status))
		}
		logger.Debug("run not completed",
			zap.Int("tick", tick),
			zap.Int("max_ticks", p.config.MaxTicks),
			zap.String("status", status.Status),
		)

		if tick < p.config.MaxTicks {
			if err := p.sleep(ctx, p.config.Interval); err != nil {
				return result, err
			}
		}
	}

	result.State = PollTimedOut
	p.metrics.RecordPollTicks(result.Ticks)
	logger.Warn("run did not complete before the poll ceiling",
		zap.Int("ticks", result.Ticks),
		zap.Duration("interval", p.config.Interval),
	)
	return result, ghaerrors.PollTimeout(run.ID, result.Ticks)
}
