package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/cmd"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/scheduler"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/trigger"
)

var errUnexpectedEvent = errors.New("unexpected event payload")

// Worker feeds bus events to the trigger matcher and runs the due-enrollment scheduler.
type Worker struct {
	engine    *cmd.Engine
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func NewWorker(engine *cmd.Engine, logger *slog.Logger) *Worker {
	return &Worker{
		engine: engine,
		scheduler: scheduler.New(
			engine.Persistence.EnrollmentRepository(),
			engine.Executor,
			engine.Metrics,
			engine.Clock,
			logger,
			engine.Config.Scheduler,
		),
		logger: logger.With("module", "worker"),
	}
}

// Start subscribes to trigger events and starts the scheduler.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.engine.Bus.Handle(events.TriggerReceivedEvent, w.handleTrigger); err != nil {
		return fmt.Errorf("register trigger handler: %w", err)
	}

	if err := w.engine.Bus.Subscribe(ctx); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	if err := w.scheduler.Start(ctx); err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started",
		"scan_interval", w.engine.Config.Scheduler.Interval,
		"batch_size", w.engine.Config.Scheduler.BatchSize)

	return nil
}

// Stop waits for a running scan to finish.
func (w *Worker) Stop(ctx context.Context) error {
	return w.scheduler.Stop(ctx)
}

// Run starts the worker, serves metrics on metricsPort when non-zero and
// blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, metricsPort int) error {
	if err := w.Start(ctx); err != nil {
		return err
	}

	if metricsPort > 0 {
		app := fiber.New()
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

		go func() {
			if err := app.Listen(":" + strconv.Itoa(metricsPort)); err != nil {
				w.logger.ErrorContext(ctx, "Metrics server stopped", "error", err)
			}
		}()

		defer func() {
			if err := app.Shutdown(); err != nil {
				w.logger.Error("Failed to shut down metrics server", "error", err)
			}
		}()
	}

	<-ctx.Done()
	w.logger.Info("Worker context cancelled, stopping...")

	return w.Stop(context.WithoutCancel(ctx))
}

// handleTrigger returns an error only for failures worth redelivering.
// Malformed events are dropped.
func (w *Worker) handleTrigger(ctx context.Context, event any) error {
	received, ok := event.(*events.TriggerReceived)
	if !ok {
		w.logger.ErrorContext(ctx, "Dropping trigger event", "error", errUnexpectedEvent)

		return nil
	}

	report, err := w.engine.Matcher.Handle(ctx, received.Event)
	if errors.Is(err, trigger.ErrInvalidEvent) || errors.Is(err, trigger.ErrUnknownTrigger) {
		w.logger.WarnContext(ctx, "Dropping invalid trigger event", "event_id", received.Event.ID, "error", err)

		return nil
	}

	if err != nil {
		return err
	}

	w.logger.DebugContext(ctx, "Trigger event handled",
		"event_id", report.EventID,
		"matched", report.Matched,
		"enrolled", len(report.Enrolled))

	return nil
}
