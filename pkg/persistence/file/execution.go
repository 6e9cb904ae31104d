package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

const executionsCollection = "executions"

// executionRecord is the on-disk document of one execution and its steps.
type executionRecord struct {
	Execution *models.Execution       `json:"execution"`
	Steps     []*models.ExecutionStep `json:"steps"`
}

// ExecutionRepository handles execution-related file operations.
type ExecutionRepository struct {
	persistence *Persistence
}

func (er *ExecutionRepository) load(id string) (*executionRecord, error) {
	var record executionRecord

	err := er.persistence.readJSON(executionsCollection, id, &record)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewExecutionError("Load", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewStoreError("LoadExecution", err)
	}

	return &record, nil
}

func (er *ExecutionRepository) save(record *executionRecord) error {
	return persistence.NewStoreError("SaveExecution", er.persistence.writeJSON(executionsCollection, record.Execution.ID, record))
}

// Create stores a new execution.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	_, err := er.load(execution.ID)
	if err == nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionAlreadyExists)
	}

	if !persistence.IsExecutionNotFound(err) {
		return err
	}

	stored := *execution

	return er.save(&executionRecord{Execution: &stored, Steps: []*models.ExecutionStep{}})
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	record, err := er.load(id)
	if err != nil {
		return nil, err
	}

	return record.Execution, nil
}

// GetByIDForGroup retrieves an execution owned by group.
func (er *ExecutionRepository) GetByIDForGroup(ctx context.Context, id, group string) (*models.Execution, error) {
	execution, err := er.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.Group != group {
		return nil, persistence.NewExecutionError("GetByIDForGroup", id, persistence.ErrExecutionNotFound)
	}

	return execution, nil
}

// ListByGroup returns the executions of a group, newest first.
func (er *ExecutionRepository) ListByGroup(_ context.Context, group string) ([]*models.Execution, error) {
	return er.filter(func(execution *models.Execution) bool { return execution.Group == group })
}

// ListUnfinished returns executions without an end time, newest first.
func (er *ExecutionRepository) ListUnfinished(_ context.Context) ([]*models.Execution, error) {
	return er.filter(func(execution *models.Execution) bool { return execution.EndTime == nil })
}

func (er *ExecutionRepository) filter(keep func(*models.Execution) bool) ([]*models.Execution, error) {
	records, err := list[executionRecord](er.persistence, executionsCollection)
	if err != nil {
		return nil, persistence.NewStoreError("ListExecutions", err)
	}

	executions := make([]*models.Execution, 0, len(records))

	for _, record := range records {
		if keep(record.Execution) {
			executions = append(executions, record.Execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.After(executions[j].StartTime)
	})

	return executions, nil
}

// UpdateStatus records a non-terminal status change.
func (er *ExecutionRepository) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, err := er.load(id)
	if err != nil {
		return err
	}

	if record.Execution.EndTime != nil {
		return persistence.NewExecutionError("UpdateStatus", id, persistence.ErrExecutionFinished)
	}

	record.Execution.Status = status

	return er.save(record)
}

// Finish records the terminal status and end time.
func (er *ExecutionRepository) Finish(_ context.Context, id string, status models.ExecutionStatus, endTime time.Time) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, err := er.load(id)
	if err != nil {
		return err
	}

	if record.Execution.EndTime != nil {
		return persistence.NewExecutionError("Finish", id, persistence.ErrExecutionFinished)
	}

	end := endTime.UTC()
	record.Execution.Status = status
	record.Execution.EndTime = &end

	return er.save(record)
}

// Delete removes an execution, its steps and any captured provenance.
func (er *ExecutionRepository) Delete(_ context.Context, id string) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	if _, err := er.load(id); err != nil {
		return err
	}

	err := os.Remove(er.persistence.path(provenanceCollection, id))
	if err != nil && !os.IsNotExist(err) {
		return persistence.NewStoreError("DeleteProvenance", err)
	}

	err = os.Remove(er.persistence.path(executionsCollection, id))
	if err != nil {
		return persistence.NewStoreError("DeleteExecution", err)
	}

	return nil
}

// Steps returns the steps of an execution ordered by start time.
func (er *ExecutionRepository) Steps(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	record, err := er.load(executionID)
	if err != nil {
		return nil, err
	}

	steps := append([]*models.ExecutionStep(nil), record.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StartTime.Before(steps[j].StartTime) })

	return steps, nil
}

// OpenStep records a newly observed step.
func (er *ExecutionRepository) OpenStep(_ context.Context, step *models.ExecutionStep) error {
	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, err := er.load(step.ExecutionID)
	if err != nil {
		return err
	}

	if record.Execution.EndTime != nil {
		return persistence.NewExecutionError("OpenStep", step.ExecutionID, persistence.ErrExecutionFinished)
	}

	stored := *step
	record.Steps = append(record.Steps, &stored)

	return er.save(record)
}

// CloseStep records the status and end time of an open step.
func (er *ExecutionRepository) CloseStep(_ context.Context, step *models.ExecutionStep) error {
	if step.EndTime == nil {
		return fmt.Errorf("step %s has no end time", step.ID)
	}

	er.persistence.mu.Lock()
	defer er.persistence.mu.Unlock()

	record, err := er.load(step.ExecutionID)
	if err != nil {
		return err
	}

	for _, stored := range record.Steps {
		if stored.ID != step.ID {
			continue
		}

		if stored.EndTime != nil {
			return persistence.NewExecutionError("CloseStep", step.ExecutionID, persistence.ErrStepAlreadyClosed)
		}

		end := step.EndTime.UTC()
		stored.Status = step.Status
		stored.EndTime = &end

		return er.save(record)
	}

	return persistence.NewExecutionError("CloseStep", step.ExecutionID, persistence.ErrStepNotFound)
}
