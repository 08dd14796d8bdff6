package file

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

const enrollmentsDir = "enrollments"

// EnrollmentRepository handles enrollment-related file operations.
type EnrollmentRepository struct {
	store *Persistence
}

// Create stores a new enrollment. Its ID must not already exist.
func (r *EnrollmentRepository) Create(_ context.Context, enrollment *models.WorkflowEnrollment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var existing models.WorkflowEnrollment

	found, err := r.store.readJSON(enrollmentsDir, enrollment.ID, &existing)
	if err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	if found {
		return persistence.NewEnrollmentError("Create", enrollment.ID, persistence.ErrEnrollmentAlreadyExists)
	}

	if err := r.store.writeJSON(enrollmentsDir, enrollment.ID, enrollment); err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	return nil
}

// GetByID retrieves an enrollment by its ID.
func (r *EnrollmentRepository) GetByID(_ context.Context, id string) (*models.WorkflowEnrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.get(id)
}

func (r *EnrollmentRepository) get(id string) (*models.WorkflowEnrollment, error) {
	var enrollment models.WorkflowEnrollment

	found, err := r.store.readJSON(enrollmentsDir, id, &enrollment)
	if err != nil {
		return nil, persistence.NewEnrollmentError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
	}

	return &enrollment, nil
}

func (r *EnrollmentRepository) EnrolledSince(_ context.Context, workflowID, clientID string, since time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	found := false

	err := r.each(func(e *models.WorkflowEnrollment) {
		if e.WorkflowID == workflowID && e.ClientID == clientID && e.EnrolledAt.After(since) {
			found = true
		}
	})

	return found, err
}

func (r *EnrollmentRepository) ActiveFor(_ context.Context, workflowID, clientID string) ([]*models.WorkflowEnrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.WorkflowEnrollment

	err := r.each(func(e *models.WorkflowEnrollment) {
		if e.WorkflowID == workflowID && e.ClientID == clientID && e.CurrentStatus == models.EnrollmentActive {
			out = append(out, e)
		}
	})

	sortByEnrolledAt(out)

	return out, err
}

// ListByWorkflow returns the workflow's enrollments, optionally narrowed to one status.
func (r *EnrollmentRepository) ListByWorkflow(_ context.Context, workflowID string, status models.EnrollmentStatus) ([]*models.WorkflowEnrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.WorkflowEnrollment

	err := r.each(func(e *models.WorkflowEnrollment) {
		if e.WorkflowID == workflowID && (status == "" || e.CurrentStatus == status) {
			out = append(out, e)
		}
	})

	sortByEnrolledAt(out)

	return out, err
}

func (r *EnrollmentRepository) Due(_ context.Context, now time.Time, limit int) ([]*models.WorkflowEnrollment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*models.WorkflowEnrollment

	err := r.each(func(e *models.WorkflowEnrollment) {
		if e.IsDue(now) {
			out = append(out, e)
		}
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return dueAt(out[i]).Before(dueAt(out[j]))
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Update commits the enrollment when the stored version matches and applies
// counters to its workflow under the same lock.
func (r *EnrollmentRepository) Update(_ context.Context, enrollment *models.WorkflowEnrollment, expectedVersion int64, counters models.RunCounters) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, err := r.get(enrollment.ID)
	if err != nil {
		return err
	}

	if stored.Version != expectedVersion {
		return persistence.NewEnrollmentError("Update", enrollment.ID, persistence.ErrVersionConflict)
	}

	next := enrollment.Clone()
	next.Version = expectedVersion + 1

	if err := r.store.writeJSON(enrollmentsDir, enrollment.ID, next); err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	if !counters.IsZero() {
		if err := r.store.workflowRepo.incrementCounters(enrollment.WorkflowID, counters); err != nil {
			if restoreErr := r.store.writeJSON(enrollmentsDir, enrollment.ID, stored); restoreErr != nil {
				err = errors.Join(err, restoreErr)
			}

			return persistence.NewEnrollmentError("Update", enrollment.ID, err)
		}
	}

	enrollment.Version = next.Version

	return nil
}

func (r *EnrollmentRepository) each(fn func(*models.WorkflowEnrollment)) error {
	ids, err := r.store.listIDs(enrollmentsDir)
	if err != nil {
		return fmt.Errorf("failed to list enrollments: %w", err)
	}

	for _, id := range ids {
		enrollment, err := r.get(id)
		if err != nil {
			return err
		}

		fn(enrollment)
	}

	return nil
}

func sortByEnrolledAt(enrollments []*models.WorkflowEnrollment) {
	sort.SliceStable(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.Before(enrollments[j].EnrolledAt)
	})
}

func dueAt(e *models.WorkflowEnrollment) time.Time {
	if e.NextExecutionAt == nil {
		return e.EnrolledAt
	}

	return *e.NextExecutionAt
}
