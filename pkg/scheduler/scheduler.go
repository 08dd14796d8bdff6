// Package scheduler periodically ticks enrollments whose next execution is due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

type Ticker interface {
	Tick(ctx context.Context, req executor.TickRequest) (*executor.Outcome, error)
}

// Summary counts what one scan did.
type Summary struct {
	Due     int
	Ticked  int
	Skipped int
	Failed  int
}

type Scheduler struct {
	enrollments persistence.EnrollmentRepository
	ticker      Ticker
	metrics     metrics.Metrics
	clock       clockwork.Clock
	logger      *slog.Logger
	cfg         config.SchedulerConfig

	mu   sync.Mutex
	cron *cron.Cron
}

func New(
	enrollments persistence.EnrollmentRepository,
	ticker Ticker,
	m metrics.Metrics,
	clock clockwork.Clock,
	logger *slog.Logger,
	cfg config.SchedulerConfig,
) *Scheduler {
	if m == nil {
		m = metrics.Noop{}
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	return &Scheduler{
		enrollments: enrollments,
		ticker:      ticker,
		metrics:     m,
		clock:       clock,
		logger:      logger.With("module", "scheduler"),
		cfg:         cfg,
	}
}

// RunOnce ticks up to BatchSize due enrollments, Concurrency at a time.
// Individual tick failures are counted, not returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	due, err := s.enrollments.Due(ctx, s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("load due enrollments: %w", err)
	}

	s.metrics.ObserveDueBatch(len(due))

	var (
		mu      sync.Mutex
		summary = Summary{Due: len(due)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, enrollment := range due {
		g.Go(func() error {
			outcome, err := s.ticker.Tick(gctx, executor.TickRequest{
				EnrollmentID: enrollment.ID,
				Version:      enrollment.Version,
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				summary.Failed++
				s.logger.ErrorContext(gctx, "Tick failed", "enrollment_id", enrollment.ID, "error", err)
			case outcome.Result == executor.ResultSkipped:
				summary.Skipped++
			default:
				summary.Ticked++
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	if summary.Due > 0 {
		s.logger.InfoContext(ctx, "Processed due enrollments",
			"due", summary.Due,
			"ticked", summary.Ticked,
			"skipped", summary.Skipped,
			"failed", summary.Failed)
	}

	return summary, nil
}

// Start scans every configured interval until Stop. Overlapping scans are skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return ErrAlreadyStarted
	}

	cl := cronLogger{logger: s.logger}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cl),
		cron.Recover(cl),
	))

	spec := "@every " + s.cfg.Interval.String()

	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scan failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule scan %q: %w", spec, err)
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize, "concurrency", s.cfg.Concurrency)

	c.Start()
	s.cron = c

	return nil
}

// Stop halts the cadence and waits for a running scan or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping scheduler")

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron's logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
