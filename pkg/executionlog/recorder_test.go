package executionlog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/file"
)

var testNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	return NewRecorder(store.ExecutionLogRepository(), clockwork.NewFakeClockAt(testNow), slog.Default())
}

func TestRecorder_RecordStampsIDAndTime(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	enrollment := &models.WorkflowEnrollment{ID: "enr-1", OrgID: "org-1", WorkflowID: "wf-1", ClientID: "client-1"}
	entry := Step(enrollment, "sms", string(models.ActionSendSMS), models.ExecutionExecuted, "sent")

	require.NoError(t, recorder.Record(ctx, Timed(entry, 1500*time.Millisecond)))

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, testNow, entry.ExecutedAt)
	require.NotNil(t, entry.ExecutionTimeMs)
	assert.Equal(t, int64(1500), *entry.ExecutionTimeMs)

	entries, err := recorder.List(ctx, models.ExecutionLogFilter{EnrollmentID: "enr-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, models.ExecutionExecuted, entries[0].Status)
}

func TestRecorder_KeepsExplicitFields(t *testing.T) {
	recorder := newTestRecorder(t)
	at := testNow.Add(-time.Hour)

	entry := &models.ExecutionLog{ID: "fixed", OrgID: "org-1", WorkflowID: "wf-1", ClientID: "c", StepID: "x", ExecutedAt: at}
	require.NoError(t, recorder.Record(context.Background(), entry))

	assert.Equal(t, "fixed", entry.ID)
	assert.Equal(t, at, entry.ExecutedAt)
}

func TestRecorder_ListLimitKeepsMostRecent(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()
	enrollment := &models.WorkflowEnrollment{ID: "enr-1", OrgID: "org-1", WorkflowID: "wf-1", ClientID: "client-1"}

	for _, step := range []string{"a", "b", "c"} {
		require.NoError(t, recorder.Record(ctx, Step(enrollment, step, "delay", models.ExecutionWaiting, "")))
	}

	entries, err := recorder.List(ctx, models.ExecutionLogFilter{WorkflowID: "wf-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].StepID)
	assert.Equal(t, "c", entries[1].StepID)
}
