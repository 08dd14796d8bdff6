package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

// EnrollmentRepository stores enrollments as JSON strings indexed by sorted
// sets: per workflow, per workflow and client, and a due index holding only
// active enrollments scored by their next execution time.
type EnrollmentRepository struct {
	client *redis.Client
	keys   keyspace
	logger *slog.Logger
}

func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.WorkflowEnrollment) error {
	key := r.keys.enrollment(enrollment.ID)

	data, err := json.Marshal(enrollment)
	if err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return persistence.ErrEnrollmentAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)

			member := redis.Z{Score: score(enrollment.EnrolledAt), Member: enrollment.ID}
			pipe.ZAdd(ctx, r.keys.enrollmentsByWorkflow(enrollment.WorkflowID), member)
			pipe.ZAdd(ctx, r.keys.enrollmentsByClient(enrollment.WorkflowID, enrollment.ClientID), member)
			r.indexDue(ctx, pipe, enrollment)

			return nil
		})

		return err
	}, key)
	if err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	return nil
}

func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.WorkflowEnrollment, error) {
	return r.load(ctx, r.client, id)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *EnrollmentRepository) load(ctx context.Context, cmd stringGetter, id string) (*models.WorkflowEnrollment, error) {
	data, err := cmd.Get(ctx, r.keys.enrollment(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, persistence.NewEnrollmentError("GetByID", id, err)
	}

	var enrollment models.WorkflowEnrollment
	if err := json.Unmarshal(data, &enrollment); err != nil {
		return nil, persistence.NewEnrollmentError("GetByID", id, fmt.Errorf("failed to unmarshal enrollment: %w", err))
	}

	return &enrollment, nil
}

func (r *EnrollmentRepository) EnrolledSince(ctx context.Context, workflowID, clientID string, since time.Time) (bool, error) {
	minScore := "(" + strconv.FormatFloat(score(since), 'f', -1, 64)

	count, err := r.client.ZCount(ctx, r.keys.enrollmentsByClient(workflowID, clientID), minScore, "+inf").Result()
	if err != nil {
		return false, fmt.Errorf("failed to count enrollments: %w", err)
	}

	return count > 0, nil
}

func (r *EnrollmentRepository) ActiveFor(ctx context.Context, workflowID, clientID string) ([]*models.WorkflowEnrollment, error) {
	return r.listIndex(ctx, r.keys.enrollmentsByClient(workflowID, clientID), models.EnrollmentActive)
}

// ListByWorkflow returns the workflow's enrollments, optionally narrowed to one status.
func (r *EnrollmentRepository) ListByWorkflow(ctx context.Context, workflowID string, status models.EnrollmentStatus) ([]*models.WorkflowEnrollment, error) {
	return r.listIndex(ctx, r.keys.enrollmentsByWorkflow(workflowID), status)
}

func (r *EnrollmentRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowEnrollment, error) {
	by := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatFloat(score(now), 'f', -1, 64),
	}

	if limit > 0 {
		by.Count = int64(limit)
	}

	ids, err := r.client.ZRangeByScore(ctx, r.keys.enrollmentsDue(), by).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due enrollments: %w", err)
	}

	due := make([]*models.WorkflowEnrollment, 0, len(ids))

	for _, enrollment := range r.loadAll(ctx, ids) {
		if enrollment.IsDue(now) {
			due = append(due, enrollment)
		}
	}

	return due, nil
}

// Update writes the enrollment under WATCH when the stored version matches,
// and increments the workflow counters in the same MULTI.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.WorkflowEnrollment, expectedVersion int64, counters models.RunCounters) error {
	key := r.keys.enrollment(enrollment.ID)

	next := enrollment.Clone()
	next.Version = expectedVersion + 1

	data, err := json.Marshal(next)
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := r.load(ctx, tx, enrollment.ID)
		if err != nil {
			return err
		}

		if stored.Version != expectedVersion {
			return persistence.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			r.indexDue(ctx, pipe, next)

			if !counters.IsZero() {
				workflowKey := r.keys.workflow(enrollment.WorkflowID)
				pipe.HIncrBy(ctx, workflowKey, fieldTotal, counters.Total)
				pipe.HIncrBy(ctx, workflowKey, fieldSuccessful, counters.Successful)
				pipe.HIncrBy(ctx, workflowKey, fieldFailed, counters.Failed)
			}

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = persistence.ErrVersionConflict
		}

		var enrollmentErr *persistence.EnrollmentError
		if errors.As(err, &enrollmentErr) {
			return err
		}

		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	enrollment.Version = next.Version

	return nil
}

// indexDue keeps the due index in step with the enrollment's status.
func (r *EnrollmentRepository) indexDue(ctx context.Context, pipe redis.Pipeliner, e *models.WorkflowEnrollment) {
	if e.CurrentStatus != models.EnrollmentActive {
		pipe.ZRem(ctx, r.keys.enrollmentsDue(), e.ID)

		return
	}

	at := e.EnrolledAt
	if e.NextExecutionAt != nil {
		at = *e.NextExecutionAt
	}

	pipe.ZAdd(ctx, r.keys.enrollmentsDue(), redis.Z{Score: score(at), Member: e.ID})
}

func (r *EnrollmentRepository) listIndex(ctx context.Context, index string, status models.EnrollmentStatus) ([]*models.WorkflowEnrollment, error) {
	ids, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}

	enrollments := make([]*models.WorkflowEnrollment, 0, len(ids))

	for _, enrollment := range r.loadAll(ctx, ids) {
		if status == "" || enrollment.CurrentStatus == status {
			enrollments = append(enrollments, enrollment)
		}
	}

	return enrollments, nil
}

func (r *EnrollmentRepository) loadAll(ctx context.Context, ids []string) []*models.WorkflowEnrollment {
	enrollments := make([]*models.WorkflowEnrollment, 0, len(ids))

	for _, id := range ids {
		enrollment, err := r.load(ctx, r.client, id)
		if err != nil {
			r.logger.ErrorContext(ctx, "skipping unreadable enrollment", "enrollment_id", id, "error", err)

			continue
		}

		enrollments = append(enrollments, enrollment)
	}

	return enrollments
}
