package trigger

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/conditions"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/mocks"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/file"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/persistencetest"
)

var testNow = time.Date(2026, 8, 3, 16, 30, 0, 0, time.UTC)

type fixture struct {
	matcher *Matcher
	store   persistence.Persistence
	clock   *clockwork.FakeClock
	sender  *mocks.MockMessageSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.Default()
	evaluator := conditions.NewEvaluator(clock, logger)
	recorder := executionlog.NewRecorder(store.ExecutionLogRepository(), clock, logger)
	sender := &mocks.MockMessageSender{}

	manager := enrollment.NewManager(store, recorder, nil, clock, logger)
	exec := executor.NewExecutor(executor.Dependencies{
		Persistence: store,
		Evaluator:   evaluator,
		Sender:      sender,
		Tags:        &mocks.MockTagService{},
		Recorder:    recorder,
		Clock:       clock,
		Logger:      logger,
	}, config.Default())

	return &fixture{
		matcher: NewMatcher(store, evaluator, conditions.NewAppointmentNormalizer(nil), manager, exec, nil, nil, logger),
		store:   store,
		clock:   clock,
		sender:  sender,
	}
}

func (f *fixture) save(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	require.NoError(t, f.store.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func completedAppointment(appointmentType string) models.Event {
	return models.Event{
		ID:       "evt-1",
		Type:     models.TriggerAppointmentCompleted,
		OrgID:    "org-1",
		EntityID: "appt-9",
		ClientID: "client-1",
		Context: models.EventContext{
			models.FieldAppointmentType: appointmentType,
			models.FieldFirstName:       "Ada",
			models.FieldPhone:           "+15550100",
		},
		OccurredAt: testNow,
	}
}

func TestMatch_FiltersAndOrders(t *testing.T) {
	f := newFixture(t)

	later := f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 5, testNow))
	first := f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow))

	toxins := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 0, testNow)
	toxins.Conditions = models.All(models.Condition{
		Field: models.FieldAppointmentCategory, Operator: models.OpEquals, Value: conditions.CategoryToxins,
	})
	f.save(t, toxins)

	f.save(t, persistencetest.NewWorkflow("org-2", models.TriggerAppointmentCompleted, 0, testNow))
	f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentScheduled, 0, testNow))

	inactive := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 0, testNow)
	inactive.Status = models.WorkflowStatusInactive
	f.save(t, inactive)

	matches, err := f.matcher.Match(t.Context(), completedAppointment("Juvederm Lips"))
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, first.ID, matches[0].Workflow.ID)
	assert.Equal(t, 1, matches[0].Priority)
	assert.Equal(t, later.ID, matches[1].Workflow.ID)
}

func TestMatch_ManualEventTargetsOneWorkflow(t *testing.T) {
	f := newFixture(t)

	a := persistencetest.NewWorkflow("org-1", models.TriggerManual, 0, testNow)
	a.Conditions = models.ConditionSet{}
	f.save(t, a)

	b := persistencetest.NewWorkflow("org-1", models.TriggerManual, 1, testNow)
	b.Conditions = models.ConditionSet{}
	f.save(t, b)

	matches, err := f.matcher.Match(t.Context(), models.Event{
		Type: models.TriggerManual, OrgID: "org-1", ClientID: "client-1", WorkflowID: b.ID,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, b.ID, matches[0].Workflow.ID)
}

func TestHandle_EnrollsAndRunsFirstStep(t *testing.T) {
	f := newFixture(t)
	workflow := f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow))

	report, err := f.matcher.Handle(t.Context(), completedAppointment("Restylane touch-up"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Matched)
	require.Len(t, report.Enrolled, 1)
	assert.Equal(t, workflow.ID, report.Enrolled[0].WorkflowID)
	require.NotNil(t, report.Enrolled[0].Tick)
	assert.Equal(t, executor.ResultWaiting, report.Enrolled[0].Tick.Result)
	assert.Equal(t, "wait", report.Enrolled[0].Tick.Step)

	stored, err := f.store.EnrollmentRepository().GetByID(t.Context(), report.Enrolled[0].EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, conditions.CategoryFiller, stored.Context[models.FieldAppointmentCategory])
	assert.Equal(t, string(models.TriggerAppointmentCompleted), stored.EnrollmentReason)

	entries, err := f.store.ExecutionLogRepository().List(t.Context(), models.ExecutionLogFilter{WorkflowID: workflow.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.LogActionEnrollClient, entries[0].Action)
	assert.Equal(t, models.ExecutionWaiting, entries[1].Status)
}

func TestHandle_SkipDoesNotStopLowerPriorities(t *testing.T) {
	f := newFixture(t)

	deduped := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	deduped.PreventDuplicates = true
	f.save(t, deduped)

	other := f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 2, testNow))

	_, err := f.matcher.Handle(t.Context(), completedAppointment("Filler"))
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)

	report, err := f.matcher.Handle(t.Context(), completedAppointment("Filler"))
	require.NoError(t, err)

	assert.Equal(t, []string{deduped.ID}, report.Skipped)
	require.Len(t, report.Enrolled, 1)
	assert.Equal(t, other.ID, report.Enrolled[0].WorkflowID)
	assert.Len(t, report.Enrolled[0].Superseded, 1)
}

type mockEnroller struct {
	mock.Mock
}

func (m *mockEnroller) Enroll(ctx context.Context, req enrollment.EnrollRequest) (*enrollment.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*enrollment.Result), args.Error(1)
}

func TestHandle_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	broken := f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow))
	healthy := f.save(t, persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 2, testNow))

	enroller := &mockEnroller{}
	enroller.On("Enroll", mock.Anything, mock.MatchedBy(func(req enrollment.EnrollRequest) bool {
		return req.WorkflowID == broken.ID
	})).Return(nil, errors.New("database is locked"))
	enroller.On("Enroll", mock.Anything, mock.MatchedBy(func(req enrollment.EnrollRequest) bool {
		return req.WorkflowID == healthy.ID
	})).Return(&enrollment.Result{Enrollment: &models.WorkflowEnrollment{ID: "enr-x"}}, nil)

	matcher := NewMatcher(f.store, f.matcher.evaluator, f.matcher.normalizer, enroller, nil, nil, nil, slog.Default())

	report, err := matcher.Handle(t.Context(), completedAppointment("Sculptra"))
	require.NoError(t, err)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, broken.ID, report.Failed[0].WorkflowID)
	assert.Contains(t, report.Failed[0].Error, "database is locked")
	require.Len(t, report.Enrolled, 1)
	assert.Equal(t, "enr-x", report.Enrolled[0].EnrollmentID)
	assert.Nil(t, report.Enrolled[0].Tick)
}

func TestHandle_FirstStepFailureIsReported(t *testing.T) {
	f := newFixture(t)
	workflow := persistencetest.NewWorkflow("org-1", models.TriggerClientAdded, 0, testNow)
	workflow.Conditions = models.ConditionSet{}
	workflow.Blocks = []*models.Block{
		{ID: "trigger", Kind: models.BlockKindTrigger},
		{ID: "welcome", Kind: models.BlockKindAction, Action: &models.ActionConfig{
			Kind: models.ActionSendSMS, SMS: &models.SendSMSConfig{Message: "Welcome {{first_name}}!"},
		}},
	}
	workflow.Connections = []*models.Connection{{ID: "c1", From: "trigger", To: "welcome"}}
	f.save(t, workflow)

	f.sender.On("Send", mock.Anything, mock.MatchedBy(func(msg delivery.Message) bool {
		return msg.Body == "Welcome Ada!" && msg.Recipient == "+15550177"
	})).Return(delivery.Receipt{}, errors.New("carrier rejected"))

	report, err := f.matcher.Handle(t.Context(), models.Event{
		ID: "evt-2", Type: models.TriggerClientAdded, OrgID: "org-1", ClientID: "client-7",
		Context: models.EventContext{models.FieldFirstName: "Ada", models.FieldPhone: "+15550177"},
	})
	require.NoError(t, err)

	require.Len(t, report.Enrolled, 1)
	assert.Equal(t, executor.ResultRetrying, report.Enrolled[0].Tick.Result)
	assert.Empty(t, report.Enrolled[0].TickError)
}

func TestHandle_RejectsInvalidEvents(t *testing.T) {
	f := newFixture(t)

	_, err := f.matcher.Handle(t.Context(), models.Event{Type: "birthday", OrgID: "org-1", ClientID: "c"})
	require.ErrorIs(t, err, ErrUnknownTrigger)

	_, err = f.matcher.Handle(t.Context(), models.Event{Type: models.TriggerClientAdded, OrgID: "org-1"})
	require.ErrorIs(t, err, ErrInvalidEvent)
}
