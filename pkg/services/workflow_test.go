package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/file"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/persistencetest"
)

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func newWorkflowService(t *testing.T) (*Workflow, persistence.Persistence, *clockwork.FakeClock) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(testNow)

	return NewWorkflow(store, validator.New(validator.WithRequiredStructEnabled()), clock, slog.Default()), store, clock
}

func draftWorkflow() *models.Workflow {
	workflow := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	workflow.ID = ""
	workflow.Status = ""

	return workflow
}

func TestWorkflow_HealthCheck(t *testing.T) {
	service, _, _ := newWorkflowService(t)

	message, ok := service.HealthCheck(t.Context())

	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)
}

func TestWorkflow_CreateStartsAsDraft(t *testing.T) {
	service, store, _ := newWorkflowService(t)

	input := draftWorkflow()
	input.Status = models.WorkflowStatusActive
	input.TotalRuns = 9

	created, err := service.Create(t.Context(), input)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Zero(t, created.TotalRuns)
	assert.Equal(t, testNow, created.CreatedAt)

	stored, err := store.WorkflowRepository().GetByID(t.Context(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
}

func TestWorkflow_CreateRejectsInvalidInput(t *testing.T) {
	service, _, _ := newWorkflowService(t)

	tests := []struct {
		name   string
		mutate func(*models.Workflow)
	}{
		{"missing name", func(w *models.Workflow) { w.Name = "" }},
		{"missing org", func(w *models.Workflow) { w.OrgID = "" }},
		{"unknown trigger", func(w *models.Workflow) { w.Trigger = "birthday" }},
		{"dangling connection", func(w *models.Workflow) {
			w.Connections = append(w.Connections, &models.Connection{ID: "c9", From: "sms", To: "ghost"})
		}},
		{"cycle", func(w *models.Workflow) {
			w.Connections = append(w.Connections, &models.Connection{ID: "c9", From: "sms", To: "wait"})
		}},
		{"two triggers", func(w *models.Workflow) {
			w.Blocks = append(w.Blocks, &models.Block{ID: "trigger-2", Kind: models.BlockKindTrigger})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflow := draftWorkflow()
			tt.mutate(workflow)

			_, err := service.Create(t.Context(), workflow)

			require.Error(t, err)
			assert.True(t, IsValidationError(err), "expected validation error, got %v", err)
		})
	}
}

func TestWorkflow_CreateNil(t *testing.T) {
	service, _, _ := newWorkflowService(t)

	_, err := service.Create(t.Context(), nil)

	assert.ErrorIs(t, err, ErrWorkflowNil)
}

func TestWorkflow_UpdateKeepsIdentityAndCounters(t *testing.T) {
	service, store, clock := newWorkflowService(t)

	existing := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	existing.TotalRuns = 4
	existing.SuccessfulRuns = 3
	existing.FailedRuns = 1
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), existing))

	clock.Advance(time.Hour)

	input := persistencetest.NewWorkflow("org-other", models.TriggerAppointmentCompleted, 5, testNow)
	input.Name = "Renamed follow-up"
	input.Status = models.WorkflowStatusArchived

	updated, err := service.Update(t.Context(), existing.ID, input)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, updated.ID)
	assert.Equal(t, "org-1", updated.OrgID)
	assert.Equal(t, models.WorkflowStatusActive, updated.Status)
	assert.Equal(t, 5, updated.Priority)
	assert.Equal(t, "Renamed follow-up", updated.Name)
	assert.Equal(t, int64(4), updated.TotalRuns)
	assert.Equal(t, testNow.Add(time.Hour), updated.UpdatedAt)
}

func TestWorkflow_UpdateRejectsGraphChangeWhileActive(t *testing.T) {
	service, store, _ := newWorkflowService(t)

	existing := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), existing))

	input := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	input.Blocks[1].Delay.Duration = 7

	_, err := service.Update(t.Context(), existing.ID, input)

	require.ErrorIs(t, err, ErrCannotModifyActive)
	assert.True(t, IsConflictError(err))
}

func TestWorkflow_UpdateNotFound(t *testing.T) {
	service, _, _ := newWorkflowService(t)

	_, err := service.Update(t.Context(), "missing", draftWorkflow())

	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_ListFiltersByOrgAndStatus(t *testing.T) {
	service, store, _ := newWorkflowService(t)

	active := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	draft := persistencetest.NewWorkflow("org-1", models.TriggerClientAdded, 1, testNow)
	draft.Status = models.WorkflowStatusDraft
	other := persistencetest.NewWorkflow("org-2", models.TriggerAppointmentCompleted, 1, testNow)

	for _, w := range []*models.Workflow{active, draft, other} {
		require.NoError(t, store.WorkflowRepository().Save(t.Context(), w))
	}

	all, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := models.WorkflowStatusDraft
	drafts, err := service.ListWorkflows(t.Context(), ListWorkflowsRequest{OrgID: "org-1", Status: &status})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	_, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{OrgID: "  "})
	require.ErrorIs(t, err, ErrEmptyOrgID)

	bogus := models.WorkflowStatus("paused")
	_, err = service.ListWorkflows(t.Context(), ListWorkflowsRequest{OrgID: "org-1", Status: &bogus})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestWorkflow_DeleteRejectsActive(t *testing.T) {
	service, store, _ := newWorkflowService(t)

	workflow := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), workflow))

	err := service.Delete(t.Context(), workflow.ID)
	require.ErrorIs(t, err, ErrCannotDeleteActive)

	workflow.Status = models.WorkflowStatusInactive
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), workflow))

	require.NoError(t, service.Delete(t.Context(), workflow.ID))

	_, err = service.FetchByID(t.Context(), workflow.ID)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}
