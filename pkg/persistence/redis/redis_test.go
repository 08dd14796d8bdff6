package redis

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence/persistencetest"
)

func newTestPersistence(t *testing.T) (*Persistence, *miniredis.Miniredis) {
	t.Helper()

	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}

	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := NewPersistence(t.Context(), logger, "redis://"+srv.Addr())
	require.NoError(t, err)

	t.Cleanup(func() { _ = p.Close(t.Context()) })

	return p, srv
}

func TestRedisPersistence(t *testing.T) {
	persistencetest.Run(t, func(t *testing.T) persistence.Persistence {
		p, _ := newTestPersistence(t)

		return p
	})
}

func TestNewPersistence_BadURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	_, err := NewPersistence(t.Context(), logger, "not a url")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	p, srv := newTestPersistence(t)

	require.NoError(t, p.HealthCheck(t.Context()))

	srv.Close()
	assert.Error(t, p.HealthCheck(t.Context()))
}

func TestDueIndexFollowsStatus(t *testing.T) {
	p, srv := newTestPersistence(t)
	ctx := t.Context()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	workflow := persistencetest.NewWorkflow("org-1", models.TriggerManual, 0, now)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	enrollment := persistencetest.NewEnrollment(workflow, "client-1", now)
	require.NoError(t, p.EnrollmentRepository().Create(ctx, enrollment))

	members, err := srv.ZMembers(p.keys.enrollmentsDue())
	require.NoError(t, err)
	assert.Equal(t, []string{enrollment.ID}, members)

	enrollment.Finish(models.EnrollmentCompleted, now)
	require.NoError(t, p.EnrollmentRepository().Update(ctx, enrollment, 0, models.RunCounters{Total: 1, Successful: 1}))

	assert.False(t, zContains(t, srv, p.keys.enrollmentsDue(), enrollment.ID))

	total := srv.HGet(p.keys.workflow(workflow.ID), fieldTotal)
	assert.Equal(t, "1", total)
}

func TestUpdateRejectsConcurrentWrite(t *testing.T) {
	p, _ := newTestPersistence(t)
	ctx := t.Context()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	workflow := persistencetest.NewWorkflow("org-1", models.TriggerManual, 0, now)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	enrollment := persistencetest.NewEnrollment(workflow, uuid.NewString(), now)
	require.NoError(t, p.EnrollmentRepository().Create(ctx, enrollment))

	// A writer that bypasses the repository bumps the version underneath us.
	sneaky := enrollment.Clone()
	sneaky.Version = 7
	data, err := json.Marshal(sneaky)
	require.NoError(t, err)
	require.NoError(t, p.client.Set(ctx, p.keys.enrollment(enrollment.ID), data, 0).Err())

	err = p.EnrollmentRepository().Update(ctx, enrollment, 0, models.RunCounters{})
	assert.True(t, persistence.IsVersionConflict(err))
}

func zContains(t *testing.T, srv *miniredis.Miniredis, key, member string) bool {
	t.Helper()

	members, err := srv.ZMembers(key)
	if err != nil {
		return false
	}

	for _, m := range members {
		if m == member {
			return true
		}
	}

	return false
}
