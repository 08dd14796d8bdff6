// Package trigger matches business events against workflows and enrolls clients.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/conditions"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/metrics"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/otelhelper"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

var (
	ErrInvalidEvent   = errors.New("invalid event")
	ErrUnknownTrigger = errors.New("unknown trigger type")
)

// Enroller starts a client's run through a workflow.
type Enroller interface {
	Enroll(ctx context.Context, req enrollment.EnrollRequest) (*enrollment.Result, error)
}

// Ticker runs the first step of a new enrollment.
type Ticker interface {
	Tick(ctx context.Context, req executor.TickRequest) (*executor.Outcome, error)
}

// Match is a workflow whose trigger and conditions accept an event.
type Match struct {
	Workflow *models.Workflow
	Priority int
}

// Enrolled describes one enrollment created for an event.
type Enrolled struct {
	WorkflowID   string
	EnrollmentID string
	Superseded   []string
	Tick         *executor.Outcome
	TickError    string
}

// Failure is a workflow whose enrollment could not be created.
type Failure struct {
	WorkflowID string
	Error      string
}

// Report is what happened to one event.
type Report struct {
	EventID  string
	Matched  int
	Enrolled []Enrolled
	Skipped  []string
	Failed   []Failure
}

type Matcher struct {
	persistence persistence.Persistence
	evaluator   *conditions.Evaluator
	normalizer  *conditions.AppointmentNormalizer
	enroller    Enroller
	ticker      Ticker
	metrics     metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewMatcher builds a Matcher. ticker may be nil to leave first steps to the scheduler.
func NewMatcher(
	p persistence.Persistence,
	evaluator *conditions.Evaluator,
	normalizer *conditions.AppointmentNormalizer,
	enroller Enroller,
	ticker Ticker,
	m metrics.Metrics,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Matcher {
	if m == nil {
		m = metrics.Noop{}
	}

	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Matcher{
		persistence: p,
		evaluator:   evaluator,
		normalizer:  normalizer,
		enroller:    enroller,
		ticker:      ticker,
		metrics:     m,
		tracer:      tracer,
		logger:      logger.With("module", "trigger_matcher"),
	}
}

// Match returns the org's active workflows for the event's trigger whose
// conditions accept the normalized event context, lowest priority first.
func (m *Matcher) Match(ctx context.Context, event models.Event) ([]Match, error) {
	workflows, err := m.persistence.WorkflowRepository().ActiveByTrigger(ctx, event.OrgID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("load workflows for %s: %w", event.Type, err)
	}

	data := m.normalizer.Enrich(event.Context)
	matches := make([]Match, 0, len(workflows))

	for _, workflow := range workflows {
		if event.WorkflowID != "" && workflow.ID != event.WorkflowID {
			continue
		}

		if !m.evaluator.Evaluate(workflow.Conditions, data) {
			m.logger.DebugContext(ctx, "Conditions not met", "workflow_id", workflow.ID, "event_id", event.ID)

			continue
		}

		matches = append(matches, Match{Workflow: workflow, Priority: workflow.Priority})
	}

	m.logger.DebugContext(ctx, "Matched event",
		"event_id", event.ID,
		"trigger", event.Type,
		"candidates", len(workflows),
		"matches", len(matches))

	return matches, nil
}

// Handle enrolls the event's client into every matching workflow and runs
// each new enrollment's first step. A failing workflow never stops the others.
func (m *Matcher) Handle(ctx context.Context, event models.Event) (*Report, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "trigger.handle",
		attribute.String(otelhelper.EventIDKey, event.ID),
		attribute.String(otelhelper.OrgIDKey, event.OrgID),
		attribute.String(otelhelper.TriggerTypeKey, string(event.Type)),
	)
	defer span.End()

	if err := validate(event); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	m.metrics.IncEventsReceived(string(event.Type))

	matches, err := m.Match(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	data := m.normalizer.Enrich(event.Context)
	report := &Report{EventID: event.ID, Matched: len(matches)}

	for _, match := range matches {
		m.enroll(ctx, event, data, match.Workflow, report)
	}

	m.logger.InfoContext(ctx, "Handled event",
		"event_id", event.ID,
		"trigger", event.Type,
		"client_id", event.ClientID,
		"matched", report.Matched,
		"enrolled", len(report.Enrolled),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))

	return report, nil
}

func (m *Matcher) enroll(ctx context.Context, event models.Event, data models.EventContext, workflow *models.Workflow, report *Report) {
	logger := m.logger.With("workflow_id", workflow.ID, "client_id", event.ClientID)

	result, err := m.enroller.Enroll(ctx, enrollment.EnrollRequest{
		OrgID:      event.OrgID,
		WorkflowID: workflow.ID,
		ClientID:   event.ClientID,
		Reason:     string(event.Type),
		Context:    data,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to enroll client", "error", err)
		m.metrics.IncEnrollmentOutcome("failed")
		report.Failed = append(report.Failed, Failure{WorkflowID: workflow.ID, Error: err.Error()})

		return
	}

	if result.Skipped {
		m.metrics.IncEnrollmentOutcome("skipped")
		report.Skipped = append(report.Skipped, workflow.ID)

		return
	}

	m.metrics.IncEnrollmentOutcome("enrolled")

	enrolled := Enrolled{
		WorkflowID:   workflow.ID,
		EnrollmentID: result.Enrollment.ID,
		Superseded:   result.Superseded,
	}

	if m.ticker != nil {
		outcome, err := m.ticker.Tick(ctx, executor.TickRequest{
			EnrollmentID: result.Enrollment.ID,
			Version:      result.Enrollment.Version,
		})
		if err != nil {
			logger.WarnContext(ctx, "First step failed, leaving it to the scheduler", "enrollment_id", result.Enrollment.ID, "error", err)
			enrolled.TickError = err.Error()
		}

		enrolled.Tick = outcome
	}

	report.Enrolled = append(report.Enrolled, enrolled)
}

func validate(event models.Event) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownTrigger, event.Type)
	}

	if event.OrgID == "" || event.ClientID == "" {
		return fmt.Errorf("%w: org_id and client_id are required", ErrInvalidEvent)
	}

	return nil
}
