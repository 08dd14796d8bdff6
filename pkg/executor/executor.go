// Package executor walks enrollments through their workflow graph one tick at a time.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/conditions"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/eventbus"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/otelhelper"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// AnyVersion ticks whatever version is stored.
const AnyVersion int64 = -1

const defaultMaxAttempts = 3

// TickRequest asks for one step of an enrollment. Version is the version the
// caller observed; a tick against a newer stored version is a no-op.
type TickRequest struct {
	EnrollmentID string
	Version      int64
}

// Result summarizes what a tick did.
type Result string

const (
	ResultSkipped   Result = "skipped"
	ResultWaiting   Result = "waiting"
	ResultAdvanced  Result = "advanced"
	ResultRetrying  Result = "retrying"
	ResultCompleted Result = "completed"
	ResultFailed    Result = "failed"
)

// SkipReason explains a no-op tick.
type SkipReason string

const (
	SkipStaleVersion SkipReason = "stale_version"
	SkipNotActive    SkipReason = "not_active"
	SkipNotDue       SkipReason = "not_due"
)

// Outcome is the state of the enrollment after a tick.
type Outcome struct {
	EnrollmentID    string
	Result          Result
	SkipReason      SkipReason
	Status          models.EnrollmentStatus
	Step            string
	Version         int64
	NextExecutionAt *time.Time
	Log             *models.ExecutionLog
}

// Dependencies are the collaborators of an Executor. Publisher, Metrics and
// Tracer are optional.
type Dependencies struct {
	Persistence persistence.Persistence
	Evaluator   *conditions.Evaluator
	Sender      delivery.MessageSender
	Tags        delivery.TagService
	Recorder    *executionlog.Recorder
	Publisher   eventbus.EventPublisher
	Metrics     metrics.Metrics
	Tracer      trace.Tracer
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

type Executor struct {
	persistence   persistence.Persistence
	evaluator     *conditions.Evaluator
	sender        delivery.MessageSender
	tags          delivery.TagService
	recorder      *executionlog.Recorder
	publisher     eventbus.EventPublisher
	metrics       metrics.Metrics
	tracer        trace.Tracer
	clock         clockwork.Clock
	logger        *slog.Logger
	retry         config.RetryConfig
	actionTimeout time.Duration
	locks         *keyedMutex
}

func NewExecutor(deps Dependencies, cfg config.EngineConfig) *Executor {
	e := &Executor{
		persistence:   deps.Persistence,
		evaluator:     deps.Evaluator,
		sender:        deps.Sender,
		tags:          deps.Tags,
		recorder:      deps.Recorder,
		publisher:     deps.Publisher,
		metrics:       deps.Metrics,
		tracer:        deps.Tracer,
		clock:         deps.Clock,
		logger:        deps.Logger.With("module", "step_executor"),
		retry:         cfg.Retry,
		actionTimeout: cfg.ActionTimeout,
		locks:         newKeyedMutex(),
	}

	if e.metrics == nil {
		e.metrics = metrics.Noop{}
	}

	if e.tracer == nil {
		e.tracer = otelhelper.NoopTracer()
	}

	if e.retry.MaxAttempts <= 0 {
		e.retry.MaxAttempts = defaultMaxAttempts
	}

	return e
}

// Tick runs at most one block of the enrollment and commits the result.
// Ticks for the same enrollment never overlap in this process; across
// processes the version check on commit discards the loser.
func (e *Executor) Tick(ctx context.Context, req TickRequest) (*Outcome, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "executor.tick",
		attribute.String(otelhelper.EnrollmentIDKey, req.EnrollmentID))
	defer span.End()

	unlock := e.locks.Lock(req.EnrollmentID)
	defer unlock()

	outcome, err := e.tick(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.OutcomeKey, string(outcome.Result)),
		attribute.String(otelhelper.StepIDKey, outcome.Step),
	)

	return outcome, nil
}

func (e *Executor) tick(ctx context.Context, req TickRequest) (*Outcome, error) {
	repo := e.persistence.EnrollmentRepository()

	current, err := repo.GetByID(ctx, req.EnrollmentID)
	if err != nil {
		return nil, fmt.Errorf("load enrollment: %w", err)
	}

	logger := e.logger.With("enrollment_id", current.ID, "workflow_id", current.WorkflowID)
	now := e.clock.Now()

	if reason, skip := skipReason(current, req.Version, now); skip {
		logger.DebugContext(ctx, "Skipping tick", "reason", reason)

		return skipped(current, reason), nil
	}

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, current.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	w := &walk{
		executor:   e,
		workflow:   workflow,
		graph:      models.NewGraph(workflow),
		enrollment: current.Clone(),
		now:        now,
		logger:     logger,
	}

	s := w.run(ctx)
	next := w.enrollment

	if err := repo.Update(ctx, next, current.Version, s.counters); err != nil {
		if persistence.IsVersionConflict(err) {
			e.discarded(ctx, logger, s.entry)

			return skipped(current, SkipStaleVersion), nil
		}

		return nil, fmt.Errorf("commit enrollment: %w", err)
	}

	if s.entry != nil {
		if err := e.recorder.Record(ctx, s.entry); err != nil {
			return nil, err
		}

		e.metrics.IncStepExecuted(s.entry.Action, string(s.entry.Status))

		if s.entry.ExecutionTimeMs != nil {
			e.metrics.ObserveStepDuration(s.entry.Action, float64(*s.entry.ExecutionTimeMs)/1000)
		}
	}

	if next.CurrentStatus.IsTerminal() {
		e.finished(ctx, next, now)
	}

	logger.InfoContext(ctx, "Ticked enrollment",
		"result", s.result,
		"status", next.CurrentStatus,
		"step", next.CurrentStep)

	return &Outcome{
		EnrollmentID:    next.ID,
		Result:          s.result,
		Status:          next.CurrentStatus,
		Step:            next.CurrentStep,
		Version:         next.Version,
		NextExecutionAt: next.NextExecutionAt,
		Log:             s.entry,
	}, nil
}

// discarded audits a walk whose commit lost the version race. Side effects
// of the walk have already happened, so its row is kept as cancelled.
func (e *Executor) discarded(ctx context.Context, logger *slog.Logger, entry *models.ExecutionLog) {
	if entry == nil {
		logger.WarnContext(ctx, "Enrollment changed during tick, discarding")

		return
	}

	logger.WarnContext(ctx, "Enrollment changed during tick, discarding",
		"step", entry.StepID,
		"attempted", entry.Message)

	row := *entry
	row.Status = models.ExecutionCancelled
	row.Message = "discarded, enrollment changed concurrently: " + entry.Message

	if err := e.recorder.Record(ctx, &row); err != nil {
		logger.ErrorContext(ctx, "Failed to record discarded step", "step", entry.StepID, "error", err)
	}
}

func (e *Executor) finished(ctx context.Context, enrollment *models.WorkflowEnrollment, now time.Time) {
	e.metrics.IncEnrollmentFinished(string(enrollment.CurrentStatus))

	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, enrollment.ID, events.NewEnrollmentFinished(enrollment, now)); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish enrollment finished", "enrollment_id", enrollment.ID, "error", err)
	}
}

// retryDelay is the wait before attempt number attempts+1.
func (e *Executor) retryDelay(attempts int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.retry.InitialInterval,
		RandomizationFactor: 0,
		Multiplier:          e.retry.Multiplier,
		MaxInterval:         e.retry.MaxInterval,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               e.clock,
	}
	b.Reset()

	delay := b.InitialInterval
	for range attempts {
		delay = b.NextBackOff()
	}

	return delay
}

func skipReason(e *models.WorkflowEnrollment, expected int64, now time.Time) (SkipReason, bool) {
	switch {
	case expected != AnyVersion && e.Version != expected:
		return SkipStaleVersion, true
	case e.CurrentStatus != models.EnrollmentActive:
		return SkipNotActive, true
	case !e.IsDue(now):
		return SkipNotDue, true
	default:
		return "", false
	}
}

func skipped(e *models.WorkflowEnrollment, reason SkipReason) *Outcome {
	return &Outcome{
		EnrollmentID:    e.ID,
		Result:          ResultSkipped,
		SkipReason:      reason,
		Status:          e.CurrentStatus,
		Step:            e.CurrentStep,
		Version:         e.Version,
		NextExecutionAt: e.NextExecutionAt,
	}
}
