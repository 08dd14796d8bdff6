package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/conditions"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/config"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/delivery"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/enrollment"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/events"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executionlog"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/executor"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/mocks"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/file"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/persistencetest"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/services"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/trigger"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/web"
)

var testNow = time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

type testApp struct {
	app   *fiber.App
	store persistence.Persistence
	clock *clockwork.FakeClock
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.Default()
	validate := validator.New(validator.WithRequiredStructEnabled())

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	evaluator := conditions.NewEvaluator(clock, logger)
	recorder := executionlog.NewRecorder(store.ExecutionLogRepository(), clock, logger)
	outbox := delivery.NewOutbox(bus, clock, logger)
	manager := enrollment.NewManager(store, recorder, bus, clock, logger)
	exec := executor.NewExecutor(executor.Dependencies{
		Persistence: store,
		Evaluator:   evaluator,
		Sender:      outbox,
		Tags:        outbox,
		Recorder:    recorder,
		Publisher:   bus,
		Clock:       clock,
		Logger:      logger,
	}, config.Default())

	handlers := web.NewAPIHandlers(web.Dependencies{
		Persistence: store,
		Workflows:   services.NewWorkflow(store, validate, clock, logger),
		Lifecycle:   services.NewLifecycle(store, manager, clock, logger),
		Matcher:     trigger.NewMatcher(store, evaluator, conditions.NewAppointmentNormalizer(nil), manager, exec, nil, nil, logger),
		Enrollments: manager,
		Executor:    exec,
		Recorder:    recorder,
		Publisher:   bus,
		Validator:   validate,
		Clock:       clock,
	})

	app := fiber.New()
	web.Register(app, handlers)

	return &testApp{app: app, store: store, clock: clock, bus: bus}
}

func (a *testApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, out
}

func (a *testApp) activeWorkflow(t *testing.T) *models.Workflow {
	t.Helper()

	workflow := persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 1, testNow)
	require.NoError(t, a.store.WorkflowRepository().Save(t.Context(), workflow))

	return workflow
}

func workflowRequest(w *models.Workflow) web.WorkflowRequest {
	return web.WorkflowRequest{
		OrgID:       w.OrgID,
		Name:        w.Name,
		Trigger:     w.Trigger,
		Priority:    w.Priority,
		Conditions:  w.Conditions,
		Blocks:      w.Blocks,
		Connections: w.Connections,
	}
}

func problemType(t *testing.T, body []byte) string {
	t.Helper()

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))

	kind, _ := problem["type"].(string)

	return kind
}

func TestAPI_HealthCheck(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPI_CreateWorkflow(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		expectedStatus int
	}{
		{
			name:           "successful creation",
			body:           workflowRequest(persistencetest.NewWorkflow("org-1", models.TriggerClientAdded, 0, testNow)),
			expectedStatus: http.StatusCreated,
		},
		{
			name: "missing name",
			body: func() web.WorkflowRequest {
				req := workflowRequest(persistencetest.NewWorkflow("org-1", models.TriggerClientAdded, 0, testNow))
				req.Name = ""

				return req
			}(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed block",
			body:           map[string]any{"org_id": "org-1", "name": "Broken", "trigger": "manual", "blocks": []any{map[string]any{"id": "d", "type": "delay", "config": map[string]any{"duration": 0}}}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown trigger",
			body:           map[string]any{"org_id": "org-1", "name": "Birthday", "trigger": "birthday"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := setupTestApp(t)

			status, body := a.do(t, http.MethodPost, "/workflows", tt.body)
			require.Equal(t, tt.expectedStatus, status, string(body))

			if status != http.StatusCreated {
				assert.Equal(t, "validation_error", problemType(t, body))
				return
			}

			var workflow models.Workflow
			require.NoError(t, json.Unmarshal(body, &workflow))
			assert.NotEmpty(t, workflow.ID)
			assert.Equal(t, models.WorkflowStatusDraft, workflow.Status)
			assert.Len(t, workflow.Blocks, 3)
		})
	}
}

func TestAPI_WorkflowNotFound(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodGet, "/workflows/missing", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "workflow_not_found", problemType(t, body))
}

func TestAPI_ActivateAndIngestEvent(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/workflows",
		workflowRequest(persistencetest.NewWorkflow("org-1", models.TriggerAppointmentCompleted, 0, testNow)))
	require.Equal(t, http.StatusCreated, status, string(body))

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	status, body = a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/status", web.SetStatusRequest{Status: models.WorkflowStatusActive})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = a.do(t, http.MethodPost, "/events", models.Event{
		Type:     models.TriggerAppointmentCompleted,
		OrgID:    "org-1",
		ClientID: "client-1",
		Context:  models.EventContext{"appointment_type": "Juvederm Lips", "first_name": "Ada", "phone": "+15550101"},
	})
	require.Equal(t, http.StatusAccepted, status, string(body))

	var report web.EventResponse
	require.NoError(t, json.Unmarshal(body, &report))
	assert.NotEmpty(t, report.EventID)
	assert.Equal(t, 1, report.Matched)
	require.Len(t, report.Enrolled, 1)
	require.NotNil(t, report.Enrolled[0].Tick)
	assert.Equal(t, string(executor.ResultWaiting), report.Enrolled[0].Tick.Result)
	assert.NotNil(t, report.Enrolled[0].Tick.NextExecutionAt)

	status, body = a.do(t, http.MethodGet, "/workflows/"+workflow.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, status)

	var logs struct {
		Logs []models.ExecutionLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(body, &logs))
	require.Len(t, logs.Logs, 2)
	assert.Equal(t, models.LogActionEnrollClient, logs.Logs[0].Action)
	assert.Equal(t, models.ExecutionWaiting, logs.Logs[1].Status)
}

func TestAPI_IngestEventRejectsInvalid(t *testing.T) {
	a := setupTestApp(t)

	status, _ := a.do(t, http.MethodPost, "/events", models.Event{Type: models.TriggerClientAdded, OrgID: "org-1"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := a.do(t, http.MethodPost, "/events", models.Event{Type: "birthday", OrgID: "org-1", ClientID: "c1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", problemType(t, body))
}

func TestAPI_IngestEventAsync(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/events?async=true", models.Event{
		ID:       "evt-1",
		Type:     models.TriggerClientAdded,
		OrgID:    "org-1",
		ClientID: "client-1",
	})
	require.Equal(t, http.StatusAccepted, status, string(body))
	assert.Contains(t, string(body), `"queued":true`)

	published := a.bus.Published()
	require.Len(t, published, 1)

	received, ok := published[0].(events.TriggerReceived)
	require.True(t, ok)
	assert.Equal(t, "evt-1", received.Event.ID)
}

func TestAPI_ManualEnrollTickAndCancel(t *testing.T) {
	a := setupTestApp(t)
	workflow := a.activeWorkflow(t)

	status, body := a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enrollments", web.EnrollRequest{
		ClientID: "client-7",
		Context:  models.EventContext{"first_name": "Grace", "phone": "+15550107"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var enrolled web.EnrollmentResponse
	require.NoError(t, json.Unmarshal(body, &enrolled))
	require.NotNil(t, enrolled.Enrollment)
	assert.Equal(t, "manual", enrolled.Enrollment.EnrollmentReason)
	assert.Equal(t, string(executor.ResultWaiting), enrolled.Tick.Result)

	id := enrolled.Enrollment.ID

	status, body = a.do(t, http.MethodPost, "/enrollments/"+id+"/tick", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"skip_reason":"not_due"`)

	status, body = a.do(t, http.MethodPost, "/enrollments/"+id+"/cancel", web.CancelRequest{Reason: "client opted out"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"cancelled"`)

	status, body = a.do(t, http.MethodPost, "/enrollments/"+id+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", problemType(t, body))

	status, body = a.do(t, http.MethodPost, "/enrollments/"+id+"/tick", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"skip_reason":"not_active"`)

	status, body = a.do(t, http.MethodGet, "/enrollments/"+id+"/logs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "client opted out")
}

func TestAPI_TickCompletesAfterDelay(t *testing.T) {
	a := setupTestApp(t)
	workflow := a.activeWorkflow(t)

	status, body := a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enrollments", web.EnrollRequest{
		ClientID: "client-8",
		Context:  models.EventContext{"first_name": "Grace", "phone": "+15550108"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	var enrolled web.EnrollmentResponse
	require.NoError(t, json.Unmarshal(body, &enrolled))

	a.clock.Advance(49 * time.Hour)

	status, body = a.do(t, http.MethodPost, "/enrollments/"+enrolled.Enrollment.ID+"/tick", nil)
	require.Equal(t, http.StatusOK, status)

	var tick web.TickResponse
	require.NoError(t, json.Unmarshal(body, &tick))
	assert.Equal(t, string(executor.ResultCompleted), tick.Result)
	assert.Equal(t, models.EnrollmentCompleted, tick.Status)
	require.NotNil(t, tick.Log)
	assert.Equal(t, "sms", tick.Log.StepID)

	var delivered *events.DeliveryRequested
	for _, event := range a.bus.Published() {
		if request, ok := event.(events.DeliveryRequested); ok {
			delivered = &request
		}
	}

	require.NotNil(t, delivered)
	assert.Equal(t, events.ChannelSMS, delivered.Channel)
	assert.Equal(t, "Hi Grace", delivered.Body)
	assert.Equal(t, "+15550108", delivered.Recipient)

	stored, err := a.store.WorkflowRepository().GetByID(t.Context(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.SuccessfulRuns)
}

func TestAPI_EnrollIntoDraftConflicts(t *testing.T) {
	a := setupTestApp(t)

	workflow := persistencetest.NewWorkflow("org-1", models.TriggerManual, 0, testNow)
	workflow.Status = models.WorkflowStatusDraft
	require.NoError(t, a.store.WorkflowRepository().Save(t.Context(), workflow))

	status, body := a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/enrollments", web.EnrollRequest{ClientID: "c1"})

	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", problemType(t, body))
}

func TestAPI_EnrollmentNotFound(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/enrollments/missing/tick", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "enrollment_not_found", problemType(t, body))
}

func TestAPI_BlockEndpoints(t *testing.T) {
	a := setupTestApp(t)

	status, body := a.do(t, http.MethodPost, "/workflows",
		workflowRequest(persistencetest.NewWorkflow("org-1", models.TriggerClientAdded, 0, testNow)))
	require.Equal(t, http.StatusCreated, status)

	var workflow models.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))

	status, body = a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/blocks", map[string]any{
		"id":     "tag",
		"type":   "action",
		"config": map[string]any{"action": "add_tag", "tag": "new-client"},
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/connections", web.ConnectionRequest{From: "sms", To: "tag"})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = a.do(t, http.MethodDelete, "/workflows/"+workflow.ID+"/blocks/ghost", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "block_not_found", problemType(t, body))

	status, body = a.do(t, http.MethodDelete, "/workflows/"+workflow.ID+"/blocks/tag", nil)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Len(t, workflow.Blocks, 3)
	assert.Len(t, workflow.Connections, 2)
}

func TestAPI_DeleteActiveWorkflowConflicts(t *testing.T) {
	a := setupTestApp(t)
	workflow := a.activeWorkflow(t)

	status, _ := a.do(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, body := a.do(t, http.MethodPost, "/workflows/"+workflow.ID+"/status", web.SetStatusRequest{Status: models.WorkflowStatusInactive})
	require.Equal(t, http.StatusOK, status, string(body))

	status, _ = a.do(t, http.MethodDelete, "/workflows/"+workflow.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)
}
