package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

// SpecRepository handles workflow specification database operations.
type SpecRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSpecRepository creates a new specification repository.
func NewSpecRepository(db *sql.DB, logger *slog.Logger) *SpecRepository {
	return &SpecRepository{db: db, logger: logger}
}

// GetByID retrieves a specification registered by group.
func (r *SpecRepository) GetByID(ctx context.Context, id, group string) (*models.WorkflowSpec, error) {
	query := `
		SELECT
			id
		  , name
		  , version
		  , content
		  , inputs
		  , username
		  , group_name
		  , created_at
		FROM workflow_specs
		WHERE id = $1 AND group_name = $2
	`

	var (
		spec   models.WorkflowSpec
		inputs []byte
	)

	err := r.db.QueryRowContext(ctx, query, id, group).Scan(
		&spec.ID,
		&spec.Name,
		&spec.Version,
		&spec.Content,
		&inputs,
		&spec.Username,
		&spec.Group,
		&spec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSpecNotFound
		}

		return nil, persistence.NewStoreError("GetSpec", fmt.Errorf("failed to scan specification: %w", err))
	}

	if len(inputs) > 0 {
		err = json.Unmarshal(inputs, &spec.Inputs)
		if err != nil {
			return nil, persistence.NewStoreError("GetSpec", fmt.Errorf("failed to unmarshal inputs: %w", err))
		}
	}

	spec.CreatedAt = spec.CreatedAt.UTC()

	return &spec, nil
}

// Save creates or replaces a specification.
func (r *SpecRepository) Save(ctx context.Context, spec *models.WorkflowSpec) error {
	inputs := spec.Inputs
	if inputs == nil {
		inputs = map[string]string{}
	}

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	query := `
		INSERT INTO workflow_specs (id, name, version, content, inputs, username, group_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			version = EXCLUDED.version,
			content = EXCLUDED.content,
			inputs = EXCLUDED.inputs,
			username = EXCLUDED.username,
			group_name = EXCLUDED.group_name
	`

	_, err = r.db.ExecContext(ctx, query,
		spec.ID,
		spec.Name,
		spec.Version,
		spec.Content,
		inputsJSON,
		spec.Username,
		spec.Group,
		spec.CreatedAt.UTC(),
	)
	if err != nil {
		return persistence.NewStoreError("SaveSpec", err)
	}

	return nil
}
