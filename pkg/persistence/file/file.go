// Package file provides file-based persistence for executions, specifications and provenance.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/provtrack/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// One JSON document is stored per record; mu serializes read-modify-write cycles.
type Persistence struct {
	root           string
	mu             sync.Mutex
	executionRepo  *ExecutionRepository
	specRepo       *SpecRepository
	provenanceRepo *ProvenanceRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	fp := &Persistence{root: cleanRoot}
	fp.executionRepo = &ExecutionRepository{persistence: fp}
	fp.specRepo = &SpecRepository{persistence: fp}
	fp.provenanceRepo = &ProvenanceRepository{persistence: fp}

	return fp
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return persistence.NewStoreError("HealthCheck", os.ErrNotExist)
	}

	return nil
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) SpecRepository() persistence.SpecRepository {
	return fp.specRepo
}

func (fp *Persistence) ProvenanceRepository() persistence.ProvenanceRepository {
	return fp.provenanceRepo
}

// validateID validates that an identifier is safe for file operations.
func validateID(id string) error {
	if id == "" {
		return errors.New("ID cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return errors.New("ID contains invalid characters")
	}

	return nil
}

func (fp *Persistence) path(collection, id string) string {
	return filepath.Join(fp.root, collection, id+".json")
}

// readJSON decodes a record. It returns os.ErrNotExist (wrapped) when the record is absent.
func (fp *Persistence) readJSON(collection, id string, target any) error {
	if err := validateID(id); err != nil {
		return fmt.Errorf("%w: %w", os.ErrNotExist, err)
	}

	data, err := os.ReadFile(fp.path(collection, id)) // #nosec G304 -- id is validated and the path constructed safely
	if err != nil {
		return err
	}

	return json.Unmarshal(data, target)
}

// writeJSON replaces a record atomically.
func (fp *Persistence) writeJSON(collection, id string, value any) error {
	if err := validateID(id); err != nil {
		return err
	}

	dir := filepath.Join(fp.root, collection)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	tmp, err := fp.stage(dir, value)
	if err != nil {
		return err
	}

	err = os.Rename(tmp, fp.path(collection, id))
	if err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to write %s %s: %w", collection, id, err)
	}

	return nil
}

// createJSON writes a record only if it does not exist yet. It returns
// os.ErrExist when another writer got there first.
func (fp *Persistence) createJSON(collection, id string, value any) error {
	if err := validateID(id); err != nil {
		return err
	}

	dir := filepath.Join(fp.root, collection)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	tmp, err := fp.stage(dir, value)
	if err != nil {
		return err
	}

	defer func() { _ = os.Remove(tmp) }()

	// Link fails if the target exists, which makes creation exclusive across processes.
	return os.Link(tmp, fp.path(collection, id))
}

func (fp *Persistence) stage(dir string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())

		return "", fmt.Errorf("failed to write temporary file: %w", err)
	}

	return tmp.Name(), nil
}

// list decodes every record of a collection.
func list[T any](fp *Persistence, collection string) ([]*T, error) {
	files, err := filepath.Glob(filepath.Join(fp.root, collection, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	records := make([]*T, 0, len(files))

	for _, file := range files {
		data, err := os.ReadFile(file) // #nosec G304 -- file comes from a glob under the store root
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}

		var record T

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", file, err)
		}

		records = append(records, &record)
	}

	return records, nil
}
