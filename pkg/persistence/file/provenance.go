package file

import (
	"context"
	"errors"
	"os"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

const provenanceCollection = "provenance"

// ProvenanceRepository stores one provenance document per execution.
type ProvenanceRepository struct {
	persistence *Persistence
}

// Exists reports whether provenance was captured for the execution.
func (pr *ProvenanceRepository) Exists(_ context.Context, executionID string) (bool, error) {
	if err := validateID(executionID); err != nil {
		return false, nil
	}

	_, err := os.Stat(pr.persistence.path(provenanceCollection, executionID))
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, persistence.NewStoreError("ProvenanceExists", err)
}

// SaveProvenance stores the aggregate in a single exclusive file creation.
func (pr *ProvenanceRepository) SaveProvenance(_ context.Context, prov *models.Provenance) error {
	pr.persistence.mu.Lock()
	defer pr.persistence.mu.Unlock()

	err := pr.persistence.createJSON(provenanceCollection, prov.Execution.ID, prov)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return persistence.NewExecutionError("SaveProvenance", prov.Execution.ID, persistence.ErrAlreadyCaptured)
		}

		return persistence.NewStoreError("SaveProvenance", err)
	}

	return nil
}

// Load returns the provenance captured for the execution.
func (pr *ProvenanceRepository) Load(_ context.Context, executionID string) (*models.Provenance, error) {
	var prov models.Provenance

	err := pr.persistence.readJSON(provenanceCollection, executionID, &prov)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.NewExecutionError("LoadProvenance", executionID, persistence.ErrProvenanceNotFound)
		}

		return nil, persistence.NewStoreError("LoadProvenance", err)
	}

	return &prov, nil
}

// EntityByID scans every captured document for the entity.
func (pr *ProvenanceRepository) EntityByID(_ context.Context, id string) (*models.Entity, error) {
	documents, err := list[models.Provenance](pr.persistence, provenanceCollection)
	if err != nil {
		return nil, persistence.NewStoreError("EntityByID", err)
	}

	for _, document := range documents {
		if entity := document.EntityByID(id); entity != nil {
			return entity, nil
		}
	}

	return nil, persistence.ErrEntityNotFound
}
