package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/persistence"
)

const uniqueViolation = "23505"

var enrollmentColumns = []string{
	"id", "org_id", "workflow_id", "client_id", "current_status", "current_step", "enrolled_at",
	"paused_at", "resumed_at", "completed_at", "next_execution_at", "enrollment_reason", "context",
	"attempts", "version",
}

// EnrollmentRepository handles enrollment-related database operations.
type EnrollmentRepository struct {
	db     *sqlx.DB
	sb     sq.StatementBuilderType
	logger *slog.Logger
}

type enrollmentRow struct {
	ID               string       `db:"id"`
	OrgID            string       `db:"org_id"`
	WorkflowID       string       `db:"workflow_id"`
	ClientID         string       `db:"client_id"`
	CurrentStatus    string       `db:"current_status"`
	CurrentStep      string       `db:"current_step"`
	EnrolledAt       time.Time    `db:"enrolled_at"`
	PausedAt         sql.NullTime `db:"paused_at"`
	ResumedAt        sql.NullTime `db:"resumed_at"`
	CompletedAt      sql.NullTime `db:"completed_at"`
	NextExecutionAt  sql.NullTime `db:"next_execution_at"`
	EnrollmentReason string       `db:"enrollment_reason"`
	Context          []byte       `db:"context"`
	Attempts         int          `db:"attempts"`
	Version          int64        `db:"version"`
}

func (row enrollmentRow) toModel() (*models.WorkflowEnrollment, error) {
	enrollment := &models.WorkflowEnrollment{
		ID:               row.ID,
		OrgID:            row.OrgID,
		WorkflowID:       row.WorkflowID,
		ClientID:         row.ClientID,
		CurrentStatus:    models.EnrollmentStatus(row.CurrentStatus),
		CurrentStep:      row.CurrentStep,
		EnrolledAt:       row.EnrolledAt,
		PausedAt:         fromNullTime(row.PausedAt),
		ResumedAt:        fromNullTime(row.ResumedAt),
		CompletedAt:      fromNullTime(row.CompletedAt),
		NextExecutionAt:  fromNullTime(row.NextExecutionAt),
		EnrollmentReason: row.EnrollmentReason,
		Attempts:         row.Attempts,
		Version:          row.Version,
	}

	if len(row.Context) > 0 {
		if err := json.Unmarshal(row.Context, &enrollment.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal enrollment context: %w", err)
		}
	}

	return enrollment, nil
}

func enrollmentValues(e *models.WorkflowEnrollment) (sq.Eq, error) {
	ctx := e.Context
	if ctx == nil {
		ctx = map[string]any{}
	}

	contextJSON, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal enrollment context: %w", err)
	}

	return sq.Eq{
		"org_id":            e.OrgID,
		"workflow_id":       e.WorkflowID,
		"client_id":         e.ClientID,
		"current_status":    string(e.CurrentStatus),
		"current_step":      e.CurrentStep,
		"enrolled_at":       e.EnrolledAt.UTC(),
		"paused_at":         toNullTime(e.PausedAt),
		"resumed_at":        toNullTime(e.ResumedAt),
		"completed_at":      toNullTime(e.CompletedAt),
		"next_execution_at": toNullTime(e.NextExecutionAt),
		"enrollment_reason": e.EnrollmentReason,
		"context":           string(contextJSON),
		"attempts":          e.Attempts,
	}, nil
}

// Create inserts a new enrollment.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.WorkflowEnrollment) error {
	values, err := enrollmentValues(enrollment)
	if err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	values["id"] = enrollment.ID
	values["version"] = enrollment.Version

	query, args, err := r.sb.Insert("workflow_enrollments").SetMap(values).ToSql()
	if err != nil {
		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewEnrollmentError("Create", enrollment.ID, persistence.ErrEnrollmentAlreadyExists)
		}

		return persistence.NewEnrollmentError("Create", enrollment.ID, err)
	}

	return nil
}

// GetByID retrieves an enrollment by its ID.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id string) (*models.WorkflowEnrollment, error) {
	query, args, err := r.sb.Select(enrollmentColumns...).From("workflow_enrollments").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, persistence.NewEnrollmentError("GetByID", id, err)
	}

	var row enrollmentRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEnrollmentError("GetByID", id, persistence.ErrEnrollmentNotFound)
		}

		return nil, persistence.NewEnrollmentError("GetByID", id, err)
	}

	enrollment, err := row.toModel()
	if err != nil {
		return nil, persistence.NewEnrollmentError("GetByID", id, err)
	}

	return enrollment, nil
}

func (r *EnrollmentRepository) EnrolledSince(ctx context.Context, workflowID, clientID string, since time.Time) (bool, error) {
	query, args, err := r.sb.Select("1").
		Prefix("SELECT EXISTS (").
		From("workflow_enrollments").
		Where(sq.Eq{"workflow_id": workflowID, "client_id": clientID}).
		Where(sq.Gt{"enrolled_at": since.UTC()}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build enrollment query: %w", err)
	}

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		return false, fmt.Errorf("failed to query enrollments: %w", err)
	}

	return exists, nil
}

func (r *EnrollmentRepository) ActiveFor(ctx context.Context, workflowID, clientID string) ([]*models.WorkflowEnrollment, error) {
	builder := r.sb.Select(enrollmentColumns...).
		From("workflow_enrollments").
		Where(sq.Eq{
			"workflow_id":    workflowID,
			"client_id":      clientID,
			"current_status": string(models.EnrollmentActive),
		}).
		OrderBy("enrolled_at ASC")

	return r.selectEnrollments(ctx, builder)
}

// ListByWorkflow returns the workflow's enrollments, optionally narrowed to one status.
func (r *EnrollmentRepository) ListByWorkflow(ctx context.Context, workflowID string, status models.EnrollmentStatus) ([]*models.WorkflowEnrollment, error) {
	builder := r.sb.Select(enrollmentColumns...).
		From("workflow_enrollments").
		Where(sq.Eq{"workflow_id": workflowID}).
		OrderBy("enrolled_at ASC")

	if status != "" {
		builder = builder.Where(sq.Eq{"current_status": string(status)})
	}

	return r.selectEnrollments(ctx, builder)
}

func (r *EnrollmentRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowEnrollment, error) {
	builder := r.sb.Select(enrollmentColumns...).
		From("workflow_enrollments").
		Where(sq.Eq{"current_status": string(models.EnrollmentActive)}).
		Where(sq.Or{
			sq.Eq{"next_execution_at": nil},
			sq.LtOrEq{"next_execution_at": now.UTC()},
		}).
		OrderBy("COALESCE(next_execution_at, enrolled_at) ASC")

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	return r.selectEnrollments(ctx, builder)
}

// Update writes the enrollment guarded by its version and applies counters to
// the workflow row in the same transaction.
func (r *EnrollmentRepository) Update(ctx context.Context, enrollment *models.WorkflowEnrollment, expectedVersion int64, counters models.RunCounters) error {
	values, err := enrollmentValues(enrollment)
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	values["version"] = expectedVersion + 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() { _ = tx.Rollback() }()

	query, args, err := r.sb.Update("workflow_enrollments").
		SetMap(values).
		Where(sq.Eq{"id": enrollment.ID, "version": expectedVersion}).
		ToSql()
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, err)
	}

	if affected == 0 {
		return persistence.NewEnrollmentError("Update", enrollment.ID, r.missOrConflict(ctx, tx, enrollment.ID))
	}

	if !counters.IsZero() {
		query, args, err = r.sb.Update("workflows").
			Set("total_runs", sq.Expr("total_runs + ?", counters.Total)).
			Set("successful_runs", sq.Expr("successful_runs + ?", counters.Successful)).
			Set("failed_runs", sq.Expr("failed_runs + ?", counters.Failed)).
			Where(sq.Eq{"id": enrollment.WorkflowID}).
			ToSql()
		if err != nil {
			return persistence.NewEnrollmentError("Update", enrollment.ID, err)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return persistence.NewEnrollmentError("Update", enrollment.ID, fmt.Errorf("failed to update run counters: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return persistence.NewEnrollmentError("Update", enrollment.ID, fmt.Errorf("failed to commit: %w", err))
	}

	enrollment.Version = expectedVersion + 1

	return nil
}

func (r *EnrollmentRepository) missOrConflict(ctx context.Context, tx *sqlx.Tx, id string) error {
	query, args, err := r.sb.Select("COUNT(*)").From("workflow_enrollments").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}

	var count int
	if err := tx.GetContext(ctx, &count, query, args...); err != nil {
		return err
	}

	if count == 0 {
		return persistence.ErrEnrollmentNotFound
	}

	return persistence.ErrVersionConflict
}

func (r *EnrollmentRepository) selectEnrollments(ctx context.Context, builder sq.SelectBuilder) ([]*models.WorkflowEnrollment, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build enrollment query: %w", err)
	}

	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}

	enrollments := make([]*models.WorkflowEnrollment, 0, len(rows))

	for _, row := range rows {
		enrollment, err := row.toModel()
		if err != nil {
			r.logger.ErrorContext(ctx, "skipping undecodable enrollment", "enrollment_id", row.ID, "error", err)

			continue
		}

		enrollments = append(enrollments, enrollment)
	}

	return enrollments, nil
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}

	v := t.Time

	return &v
}
