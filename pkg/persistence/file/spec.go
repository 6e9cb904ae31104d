package file

import (
	"context"
	"errors"
	"os"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

const specsCollection = "specs"

// SpecRepository handles workflow specification file operations.
type SpecRepository struct {
	persistence *Persistence
}

// GetByID retrieves a specification registered by group.
func (sr *SpecRepository) GetByID(_ context.Context, id, group string) (*models.WorkflowSpec, error) {
	var spec models.WorkflowSpec

	err := sr.persistence.readJSON(specsCollection, id, &spec)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrSpecNotFound
		}

		return nil, persistence.NewStoreError("GetSpec", err)
	}

	if spec.Group != group {
		return nil, persistence.ErrSpecNotFound
	}

	return &spec, nil
}

// Save creates or replaces a specification.
func (sr *SpecRepository) Save(_ context.Context, spec *models.WorkflowSpec) error {
	return persistence.NewStoreError("SaveSpec", sr.persistence.writeJSON(specsCollection, spec.ID, spec))
}
