// Package persistence provides the data storage abstraction for executions and their provenance.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/provtrack/pkg/models"
)

type Persistence interface {
	ExecutionRepository() ExecutionRepository
	SpecRepository() SpecRepository
	ProvenanceRepository() ProvenanceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ExecutionRepository stores executions and the steps observed while monitoring them.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// GetByIDForGroup behaves like GetByID but reports executions of other groups as not found.
	GetByIDForGroup(ctx context.Context, id, group string) (*models.Execution, error)
	ListByGroup(ctx context.Context, group string) ([]*models.Execution, error)
	// ListUnfinished returns executions without an end time.
	ListUnfinished(ctx context.Context) ([]*models.Execution, error)
	UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus) error
	// Finish records the terminal status and end time. It fails with ErrExecutionFinished
	// when the execution already has an end time.
	Finish(ctx context.Context, id string, status models.ExecutionStatus, endTime time.Time) error
	Delete(ctx context.Context, id string) error

	// Steps returns the steps of an execution ordered by start time.
	Steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
	OpenStep(ctx context.Context, step *models.ExecutionStep) error
	// CloseStep records the status and end time of an open step. It fails with
	// ErrStepAlreadyClosed when the step already has an end time.
	CloseStep(ctx context.Context, step *models.ExecutionStep) error
}

// SpecRepository stores registered workflow specifications.
type SpecRepository interface {
	GetByID(ctx context.Context, id, group string) (*models.WorkflowSpec, error)
	Save(ctx context.Context, spec *models.WorkflowSpec) error
}

// ProvenanceRepository stores captured provenance graphs.
type ProvenanceRepository interface {
	Exists(ctx context.Context, executionID string) (bool, error)
	// SaveProvenance writes the entities, activities, agents and edges of one execution
	// atomically. A second save for the same execution fails with ErrAlreadyCaptured
	// and writes nothing.
	SaveProvenance(ctx context.Context, provenance *models.Provenance) error
	Load(ctx context.Context, executionID string) (*models.Provenance, error)
	EntityByID(ctx context.Context, id string) (*models.Entity, error)
}
