package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

const executionColumns = `
			id
		  , spec_id
		  , remote_id
		  , remote_name
		  , run_number
		  , start_time
		  , end_time
		  , status
		  , username
		  , group_name`

// ExecutionRepository handles execution and step database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Create inserts a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	query := `
		INSERT INTO executions (id, spec_id, remote_id, remote_name, run_number,
start_time, end_time, status, username, group_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.SpecID,
		execution.RemoteID,
		execution.RemoteName,
		execution.RunNumber,
		execution.StartTime.UTC(),
		execution.EndTime,
		execution.Status,
		execution.Username,
		execution.Group,
	)
	if err != nil {
		if hasCode(err, uniqueViolation) {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
		}

		return persistence.NewStoreError("CreateExecution", err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM executions
		WHERE id = $1
	`

	return r.getOne(ctx, "GetByID", id, query, id)
}

// GetByIDForGroup retrieves an execution owned by group.
func (r *ExecutionRepository) GetByIDForGroup(ctx context.Context, id, group string) (*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM executions
		WHERE id = $1 AND group_name = $2
	`

	return r.getOne(ctx, "GetByIDForGroup", id, query, id, group)
}

func (r *ExecutionRepository) getOne(ctx context.Context, op, id, query string, args ...any) (*models.Execution, error) {
	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError(op, fmt.Errorf("failed to scan execution: %w", err))
	}

	return execution, nil
}

// ListByGroup returns the executions of a group, newest first.
func (r *ExecutionRepository) ListByGroup(ctx context.Context, group string) ([]*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM executions
		WHERE group_name = $1
		ORDER BY start_time DESC
	`

	return r.list(ctx, "ListByGroup", query, group)
}

// ListUnfinished returns executions without an end time, oldest first.
func (r *ExecutionRepository) ListUnfinished(ctx context.Context) ([]*models.Execution, error) {
	query := `SELECT` + executionColumns + `
		FROM executions
		WHERE end_time IS NULL
		ORDER BY start_time ASC
	`

	return r.list(ctx, "ListUnfinished", query)
}

func (r *ExecutionRepository) list(ctx context.Context, op, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewStoreError(op, fmt.Errorf("failed to query executions: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, persistence.NewStoreError(op, fmt.Errorf("failed to scan execution: %w", err))
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError(op, fmt.Errorf("error iterating executions: %w", err))
	}

	return executions, nil
}

// UpdateStatus records a non-terminal status change.
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus) error {
	query := `UPDATE executions SET status = $2 WHERE id = $1 AND end_time IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return persistence.NewStoreError("UpdateStatus", err)
	}

	return r.checkUpdated(ctx, "UpdateStatus", id, result)
}

// Finish records the terminal status and end time.
func (r *ExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, endTime time.Time) error {
	query := `UPDATE executions SET status = $2, end_time = $3 WHERE id = $1 AND end_time IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, status, endTime.UTC())
	if err != nil {
		return persistence.NewStoreError("Finish", err)
	}

	return r.checkUpdated(ctx, "Finish", id, result)
}

// checkUpdated turns a guarded update that touched no row into not found or finished.
func (r *ExecutionRepository) checkUpdated(ctx context.Context, op, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError(op, err)
	}

	if affected > 0 {
		return nil
	}

	_, err = r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return persistence.NewExecutionError(op, id, persistence.ErrExecutionFinished)
}

// Delete removes an execution. Steps and provenance go with it.
func (r *ExecutionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", id)
	if err != nil {
		return persistence.NewStoreError("DeleteExecution", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("DeleteExecution", err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Delete", id, persistence.ErrExecutionNotFound)
	}

	return nil
}

// Steps returns the steps of an execution ordered by start time.
func (r *ExecutionRepository) Steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	_, err := r.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			id
		  , execution_id
		  , name
		  , status
		  , start_time
		  , end_time
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY start_time ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewStoreError("Steps", fmt.Errorf("failed to query steps: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		var (
			step    models.ExecutionStep
			endTime sql.NullTime
		)

		err := rows.Scan(&step.ID, &step.ExecutionID, &step.Name, &step.Status, &step.StartTime, &endTime)
		if err != nil {
			return nil, persistence.NewStoreError("Steps", fmt.Errorf("failed to scan step: %w", err))
		}

		if endTime.Valid {
			end := endTime.Time.UTC()
			step.EndTime = &end
		}

		step.StartTime = step.StartTime.UTC()
		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewStoreError("Steps", fmt.Errorf("error iterating steps: %w", err))
	}

	return steps, nil
}

// OpenStep records a newly observed step of an unfinished execution.
func (r *ExecutionRepository) OpenStep(ctx context.Context, step *models.ExecutionStep) error {
	query := `
		INSERT INTO execution_steps (id, execution_id, name, status, start_time, end_time)
		SELECT $1, $2, $3, $4, $5, NULL
		WHERE EXISTS (SELECT 1 FROM executions WHERE id = $2 AND end_time IS NULL)
	`

	result, err := r.db.ExecContext(ctx, query, step.ID, step.ExecutionID, step.Name, step.Status, step.StartTime.UTC())
	if err != nil {
		return persistence.NewStoreError("OpenStep", err)
	}

	return r.checkUpdated(ctx, "OpenStep", step.ExecutionID, result)
}

// CloseStep records the status and end time of an open step.
func (r *ExecutionRepository) CloseStep(ctx context.Context, step *models.ExecutionStep) error {
	if step.EndTime == nil {
		return fmt.Errorf("step %s has no end time", step.ID)
	}

	query := `
		UPDATE execution_steps SET status = $3, end_time = $4
		WHERE id = $1 AND execution_id = $2 AND end_time IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, step.ID, step.ExecutionID, step.Status, step.EndTime.UTC())
	if err != nil {
		return persistence.NewStoreError("CloseStep", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("CloseStep", err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM execution_steps WHERE id = $1 AND execution_id = $2)",
		step.ID, step.ExecutionID,
	).Scan(&exists)
	if err != nil {
		return persistence.NewStoreError("CloseStep", err)
	}

	if !exists {
		return persistence.NewExecutionError("CloseStep", step.ExecutionID, persistence.ErrStepNotFound)
	}

	return persistence.NewExecutionError("CloseStep", step.ExecutionID, persistence.ErrStepAlreadyClosed)
}

func (r *ExecutionRepository) scanExecution(scanner interface{ Scan(dest ...any) error }) (*models.Execution, error) {
	var (
		execution models.Execution
		endTime   sql.NullTime
	)

	err := scanner.Scan(
		&execution.ID,
		&execution.SpecID,
		&execution.RemoteID,
		&execution.RemoteName,
		&execution.RunNumber,
		&execution.StartTime,
		&endTime,
		&execution.Status,
		&execution.Username,
		&execution.Group,
	)
	if err != nil {
		return nil, err
	}

	execution.StartTime = execution.StartTime.UTC()

	if endTime.Valid {
		end := endTime.Time.UTC()
		execution.EndTime = &end
	}

	return &execution, nil
}
