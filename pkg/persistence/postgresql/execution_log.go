package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/PwntasticKev/Honey-rae-aesthetics-sub003/pkg/models"
)

// ExecutionLogRepository is the append-only execution_logs table.
type ExecutionLogRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

type executionLogRow struct {
	ID              string         `db:"id"`
	OrgID           string         `db:"org_id"`
	WorkflowID      string         `db:"workflow_id"`
	EnrollmentID    sql.NullString `db:"enrollment_id"`
	ClientID        string         `db:"client_id"`
	StepID          string         `db:"step_id"`
	Action          string         `db:"action"`
	Status          string         `db:"status"`
	Message         string         `db:"message"`
	ExecutedAt      time.Time      `db:"executed_at"`
	ExecutionTimeMs sql.NullInt64  `db:"execution_time_ms"`
}

func (r *ExecutionLogRepository) Append(ctx context.Context, entry *models.ExecutionLog) error {
	enrollmentID := sql.NullString{}
	if entry.EnrollmentID != nil {
		enrollmentID = sql.NullString{String: *entry.EnrollmentID, Valid: true}
	}

	elapsed := sql.NullInt64{}
	if entry.ExecutionTimeMs != nil {
		elapsed = sql.NullInt64{Int64: *entry.ExecutionTimeMs, Valid: true}
	}

	query, args, err := r.sb.Insert("execution_logs").
		SetMap(sq.Eq{
			"id":                entry.ID,
			"org_id":            entry.OrgID,
			"workflow_id":       entry.WorkflowID,
			"enrollment_id":     enrollmentID,
			"client_id":         entry.ClientID,
			"step_id":           entry.StepID,
			"action":            entry.Action,
			"status":            string(entry.Status),
			"message":           entry.Message,
			"executed_at":       entry.ExecutedAt.UTC(),
			"execution_time_ms": elapsed,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build execution log insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert execution log %s: %w", entry.ID, err)
	}

	return nil
}

// List returns matching rows in insertion order. A positive Limit keeps the most recent rows.
func (r *ExecutionLogRepository) List(ctx context.Context, filter models.ExecutionLogFilter) ([]*models.ExecutionLog, error) {
	builder := r.sb.Select(
		"id", "org_id", "workflow_id", "enrollment_id", "client_id", "step_id",
		"action", "status", "message", "executed_at", "execution_time_ms", "seq",
	).From("execution_logs").OrderBy("seq DESC")

	if filter.OrgID != "" {
		builder = builder.Where(sq.Eq{"org_id": filter.OrgID})
	}

	if filter.WorkflowID != "" {
		builder = builder.Where(sq.Eq{"workflow_id": filter.WorkflowID})
	}

	if filter.EnrollmentID != "" {
		builder = builder.Where(sq.Eq{"enrollment_id": filter.EnrollmentID})
	}

	if filter.ClientID != "" {
		builder = builder.Where(sq.Eq{"client_id": filter.ClientID})
	}

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := r.sb.Select(
		"id", "org_id", "workflow_id", "enrollment_id", "client_id", "step_id",
		"action", "status", "message", "executed_at", "execution_time_ms",
	).FromSelect(builder, "recent").OrderBy("seq ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build execution log query: %w", err)
	}

	var rows []executionLogRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	entries := make([]*models.ExecutionLog, 0, len(rows))

	for _, row := range rows {
		entry := &models.ExecutionLog{
			ID:         row.ID,
			OrgID:      row.OrgID,
			WorkflowID: row.WorkflowID,
			ClientID:   row.ClientID,
			StepID:     row.StepID,
			Action:     row.Action,
			Status:     models.ExecutionStatus(row.Status),
			Message:    row.Message,
			ExecutedAt: row.ExecutedAt,
		}

		if row.EnrollmentID.Valid {
			id := row.EnrollmentID.String
			entry.EnrollmentID = &id
		}

		if row.ExecutionTimeMs.Valid {
			ms := row.ExecutionTimeMs.Int64
			entry.ExecutionTimeMs = &ms
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
