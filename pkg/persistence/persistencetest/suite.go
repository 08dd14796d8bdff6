// Package persistencetest holds the behavioural checks every persistence
// backend must pass.
package persistencetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) persistence.Persistence

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// Run exercises the repository contracts against backends built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("workflow round trip", func(t *testing.T) { testWorkflowRoundTrip(t, newStore(t)) })
	t.Run("workflow not found", func(t *testing.T) { testWorkflowNotFound(t, newStore(t)) })
	t.Run("active by trigger ordering", func(t *testing.T) { testActiveByTrigger(t, newStore(t)) })
	t.Run("list filters", func(t *testing.T) { testListWorkflows(t, newStore(t)) })
	t.Run("save keeps counters", func(t *testing.T) { testSaveKeepsCounters(t, newStore(t)) })
	t.Run("enrollment lifecycle", func(t *testing.T) { testEnrollmentLifecycle(t, newStore(t)) })
	t.Run("enrollment duplicate id", func(t *testing.T) { testEnrollmentDuplicate(t, newStore(t)) })
	t.Run("version conflict", func(t *testing.T) { testVersionConflict(t, newStore(t)) })
	t.Run("enrolled since", func(t *testing.T) { testEnrolledSince(t, newStore(t)) })
	t.Run("due enrollments", func(t *testing.T) { testDue(t, newStore(t)) })
	t.Run("execution log order and filters", func(t *testing.T) { testExecutionLog(t, newStore(t)) })
}

// NewWorkflow returns a minimal active workflow for org and trigger.
func NewWorkflow(org string, trigger models.TriggerType, priority int, createdAt time.Time) *models.Workflow {
	return &models.Workflow{
		ID:       uuid.NewString(),
		OrgID:    org,
		Name:     fmt.Sprintf("%s p%d", trigger, priority),
		Trigger:  trigger,
		Priority: priority,
		Status:   models.WorkflowStatusActive,
		Conditions: models.All(models.Condition{
			Field: models.FieldAppointmentCategory, Operator: models.OpEquals, Value: "filler",
		}),
		Blocks: []*models.Block{
			{ID: "trigger", Kind: models.BlockKindTrigger, Name: "Appointment completed"},
			{ID: "wait", Kind: models.BlockKindDelay, Delay: &models.DelayConfig{Duration: 2, Unit: models.DelayUnitDays}},
			{ID: "sms", Kind: models.BlockKindAction, Action: &models.ActionConfig{
				Kind: models.ActionSendSMS, SMS: &models.SendSMSConfig{Message: "Hi {{first_name}}"},
			}},
		},
		Connections: []*models.Connection{
			{ID: "c1", From: "trigger", To: "wait"},
			{ID: "c2", From: "wait", To: "sms"},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// NewEnrollment returns an active enrollment of clientID in workflow.
func NewEnrollment(workflow *models.Workflow, clientID string, enrolledAt time.Time) *models.WorkflowEnrollment {
	return &models.WorkflowEnrollment{
		ID:               uuid.NewString(),
		OrgID:            workflow.OrgID,
		WorkflowID:       workflow.ID,
		ClientID:         clientID,
		CurrentStatus:    models.EnrollmentActive,
		CurrentStep:      models.StepStart,
		EnrolledAt:       enrolledAt,
		EnrollmentReason: string(workflow.Trigger),
		Context:          map[string]any{"first_name": "Ada", "phone": "+15550100"},
	}
}

func testWorkflowRoundTrip(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, base)

	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	got, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, got.Name)
	assert.Equal(t, workflow.Trigger, got.Trigger)
	assert.Equal(t, workflow.Conditions, got.Conditions)
	require.Len(t, got.Blocks, 3)
	assert.Equal(t, models.BlockKindDelay, got.Blocks[1].Kind)
	assert.Equal(t, 2, got.Blocks[1].Delay.Duration)
	assert.Equal(t, "Hi {{first_name}}", got.Blocks[2].Action.SMS.Message)
	require.Len(t, got.Connections, 2)
	assert.True(t, workflow.CreatedAt.Equal(got.CreatedAt))

	workflow.Name = "Renamed"
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	got, err = p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, p.WorkflowRepository().Delete(ctx, workflow.ID))

	_, err = p.WorkflowRepository().GetByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testWorkflowNotFound(t *testing.T, p persistence.Persistence) {
	_, err := p.WorkflowRepository().GetByID(t.Context(), uuid.NewString())

	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func testActiveByTrigger(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	repo := p.WorkflowRepository()

	late := NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, base.Add(time.Hour))
	early := NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, base)
	first := NewWorkflow("org-1", models.TriggerAppointmentCompleted, 0, base.Add(2*time.Hour))
	draft := NewWorkflow("org-1", models.TriggerAppointmentCompleted, 0, base)
	draft.Status = models.WorkflowStatusDraft
	otherOrg := NewWorkflow("org-2", models.TriggerAppointmentCompleted, 0, base)
	otherTrigger := NewWorkflow("org-1", models.TriggerClientAdded, 0, base)

	for _, w := range []*models.Workflow{late, early, first, draft, otherOrg, otherTrigger} {
		require.NoError(t, repo.Save(ctx, w))
	}

	got, err := repo.ActiveByTrigger(ctx, "org-1", models.TriggerAppointmentCompleted)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, early.ID, got[1].ID)
	assert.Equal(t, late.ID, got[2].ID)
}

func testListWorkflows(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	repo := p.WorkflowRepository()

	active := NewWorkflow("org-1", models.TriggerManual, 0, base)
	draft := NewWorkflow("org-1", models.TriggerManual, 0, base.Add(time.Minute))
	draft.Status = models.WorkflowStatusDraft
	other := NewWorkflow("org-2", models.TriggerManual, 0, base)

	for _, w := range []*models.Workflow{active, draft, other} {
		require.NoError(t, repo.Save(ctx, w))
	}

	all, err := repo.List(ctx, persistence.ListWorkflowsOptions{OrgID: "org-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, draft.ID, all[0].ID)

	status := models.WorkflowStatusDraft
	drafts, err := repo.List(ctx, persistence.ListWorkflowsOptions{OrgID: "org-1", Status: &status})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)
}

func testSaveKeepsCounters(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerManual, 0, base)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	enrollment := NewEnrollment(workflow, "client-1", base)
	require.NoError(t, p.EnrollmentRepository().Create(ctx, enrollment))

	enrollment.Finish(models.EnrollmentCompleted, base.Add(time.Minute))
	require.NoError(t, p.EnrollmentRepository().Update(ctx, enrollment, 0, models.RunCounters{Total: 1, Successful: 1}))

	workflow.Description = "edited with stale counters"
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	got, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited with stale counters", got.Description)
	assert.Equal(t, int64(1), got.TotalRuns)
	assert.Equal(t, int64(1), got.SuccessfulRuns)
}

func testEnrollmentLifecycle(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerAppointmentCompleted, 0, base)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	repo := p.EnrollmentRepository()
	enrollment := NewEnrollment(workflow, "client-1", base)
	require.NoError(t, repo.Create(ctx, enrollment))

	got, err := repo.GetByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStart, got.CurrentStep)
	assert.Equal(t, "Ada", got.Context["first_name"])
	assert.Nil(t, got.NextExecutionAt)

	active, err := repo.ActiveFor(ctx, workflow.ID, "client-1")
	require.NoError(t, err)
	require.Len(t, active, 1)

	next := base.Add(48 * time.Hour)
	got.CurrentStep = "wait"
	got.NextExecutionAt = &next
	require.NoError(t, repo.Update(ctx, got, 0, models.RunCounters{}))
	assert.Equal(t, int64(1), got.Version)

	got.Finish(models.EnrollmentFailed, base.Add(time.Hour))
	require.NoError(t, repo.Update(ctx, got, 1, models.RunCounters{Total: 1, Failed: 1}))

	stored, err := repo.GetByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentFailed, stored.CurrentStatus)
	assert.Equal(t, int64(2), stored.Version)
	require.NotNil(t, stored.CompletedAt)
	assert.Nil(t, stored.NextExecutionAt)

	counted, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counted.TotalRuns)
	assert.Equal(t, int64(0), counted.SuccessfulRuns)
	assert.Equal(t, int64(1), counted.FailedRuns)

	failed, err := repo.ListByWorkflow(ctx, workflow.ID, models.EnrollmentFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	active, err = repo.ActiveFor(ctx, workflow.ID, "client-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.True(t, persistence.IsEnrollmentNotFound(err))
}

func testEnrollmentDuplicate(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerManual, 0, base)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	enrollment := NewEnrollment(workflow, "client-1", base)
	require.NoError(t, p.EnrollmentRepository().Create(ctx, enrollment))

	err := p.EnrollmentRepository().Create(ctx, enrollment)
	assert.ErrorIs(t, err, persistence.ErrEnrollmentAlreadyExists)
}

func testVersionConflict(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerManual, 0, base)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	repo := p.EnrollmentRepository()
	enrollment := NewEnrollment(workflow, "client-1", base)
	require.NoError(t, repo.Create(ctx, enrollment))

	first := enrollment.Clone()
	second := enrollment.Clone()

	first.CurrentStep = "wait"
	require.NoError(t, repo.Update(ctx, first, 0, models.RunCounters{}))

	second.Finish(models.EnrollmentCompleted, base)
	err := repo.Update(ctx, second, 0, models.RunCounters{Total: 1, Successful: 1})
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))
	assert.Equal(t, int64(0), second.Version)

	stored, err := repo.GetByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, "wait", stored.CurrentStep)

	counted, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counted.TotalRuns)
}

func testEnrolledSince(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerManual, 0, base)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	require.NoError(t, p.EnrollmentRepository().Create(ctx, NewEnrollment(workflow, "client-1", base)))

	repo := p.EnrollmentRepository()

	found, err := repo.EnrolledSince(ctx, workflow.ID, "client-1", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.EnrolledSince(ctx, workflow.ID, "client-1", base)
	require.NoError(t, err)
	assert.False(t, found, "window boundary is exclusive")

	found, err = repo.EnrolledSince(ctx, workflow.ID, "client-2", base.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func testDue(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	workflow := NewWorkflow("org-1", models.TriggerManual, 0, base)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	repo := p.EnrollmentRepository()

	immediate := NewEnrollment(workflow, "client-1", base)
	waiting := NewEnrollment(workflow, "client-2", base)
	elapsed := NewEnrollment(workflow, "client-3", base)
	paused := NewEnrollment(workflow, "client-4", base)

	for _, e := range []*models.WorkflowEnrollment{immediate, waiting, elapsed, paused} {
		require.NoError(t, repo.Create(ctx, e))
	}

	future := base.Add(24 * time.Hour)
	waiting.NextExecutionAt = &future
	require.NoError(t, repo.Update(ctx, waiting, 0, models.RunCounters{}))

	past := base.Add(-time.Minute)
	elapsed.NextExecutionAt = &past
	require.NoError(t, repo.Update(ctx, elapsed, 0, models.RunCounters{}))

	paused.CurrentStatus = models.EnrollmentPaused
	require.NoError(t, repo.Update(ctx, paused, 0, models.RunCounters{}))

	due, err := repo.Due(ctx, base.Add(time.Hour), 0)
	require.NoError(t, err)

	ids := make([]string, 0, len(due))
	for _, e := range due {
		ids = append(ids, e.ID)
	}

	assert.ElementsMatch(t, []string{immediate.ID, elapsed.ID}, ids)

	limited, err := repo.Due(ctx, base.Add(48*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testExecutionLog(t *testing.T, p persistence.Persistence) {
	ctx := t.Context()
	repo := p.ExecutionLogRepository()

	enrollmentID := uuid.NewString()
	elapsed := int64(12)

	entries := []*models.ExecutionLog{
		{ID: uuid.NewString(), OrgID: "org-1", WorkflowID: "wf-1", EnrollmentID: &enrollmentID, ClientID: "c1",
			StepID: "start", Action: models.LogActionEnrollClient, Status: models.ExecutionExecuted, ExecutedAt: base},
		{ID: uuid.NewString(), OrgID: "org-1", WorkflowID: "wf-1", EnrollmentID: &enrollmentID, ClientID: "c1",
			StepID: "wait", Action: "delay", Status: models.ExecutionWaiting, ExecutedAt: base},
		{ID: uuid.NewString(), OrgID: "org-1", WorkflowID: "wf-2", ClientID: "c2",
			StepID: "sms", Action: "send_sms", Status: models.ExecutionFailed, Message: "gateway down",
			ExecutedAt: base.Add(time.Second), ExecutionTimeMs: &elapsed},
		{ID: uuid.NewString(), OrgID: "org-1", WorkflowID: "wf-1", EnrollmentID: &enrollmentID, ClientID: "c1",
			StepID: "sms", Action: "send_sms", Status: models.ExecutionExecuted, ExecutedAt: base.Add(2 * time.Second)},
	}

	for _, entry := range entries {
		require.NoError(t, repo.Append(ctx, entry))
	}

	byEnrollment, err := repo.List(ctx, models.ExecutionLogFilter{EnrollmentID: enrollmentID})
	require.NoError(t, err)
	require.Len(t, byEnrollment, 3)
	assert.Equal(t, entries[0].ID, byEnrollment[0].ID)
	assert.Equal(t, entries[1].ID, byEnrollment[1].ID)
	assert.Equal(t, entries[3].ID, byEnrollment[2].ID)

	byWorkflow, err := repo.List(ctx, models.ExecutionLogFilter{WorkflowID: "wf-2"})
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)
	assert.Nil(t, byWorkflow[0].EnrollmentID)
	require.NotNil(t, byWorkflow[0].ExecutionTimeMs)
	assert.Equal(t, int64(12), *byWorkflow[0].ExecutionTimeMs)
	assert.Equal(t, "gateway down", byWorkflow[0].Message)

	recent, err := repo.List(ctx, models.ExecutionLogFilter{OrgID: "org-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, entries[2].ID, recent[0].ID)
	assert.Equal(t, entries[3].ID, recent[1].ID)

	none, err := repo.List(ctx, models.ExecutionLogFilter{ClientID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
