package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
)

const entityColumns = `
			id
		  , execution_id
		  , type
		  , path
		  , name
		  , size
		  , last_modified`

// ProvenanceRepository stores captured provenance graphs.
type ProvenanceRepository struct {
	db         *sql.DB
	logger     *slog.Logger
	executions *ExecutionRepository
}

// NewProvenanceRepository creates a new provenance repository.
func NewProvenanceRepository(db *sql.DB, logger *slog.Logger, executions *ExecutionRepository) *ProvenanceRepository {
	return &ProvenanceRepository{db: db, logger: logger, executions: executions}
}

// Exists reports whether provenance was captured for the execution.
func (r *ProvenanceRepository) Exists(ctx context.Context, executionID string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM provenance_captures WHERE execution_id = $1)",
		executionID,
	).Scan(&exists)
	if err != nil {
		return false, persistence.NewStoreError("ProvenanceExists", err)
	}

	return exists, nil
}

// SaveProvenance writes the whole graph in one transaction. The capture row
// is inserted first so a concurrent second capture fails before writing anything.
func (r *ProvenanceRepository) SaveProvenance(ctx context.Context, prov *models.Provenance) (err error) {
	executionID := prov.Execution.ID

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStoreError("SaveProvenance", fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "INSERT INTO provenance_captures (execution_id) VALUES ($1)", executionID)
	if err != nil {
		switch {
		case hasCode(err, uniqueViolation):
			return persistence.NewExecutionError("SaveProvenance", executionID, persistence.ErrAlreadyCaptured)
		case hasCode(err, foreignKeyViolation):
			return persistence.NewExecutionError("SaveProvenance", executionID, persistence.ErrExecutionNotFound)
		default:
			return persistence.NewStoreError("SaveProvenance", fmt.Errorf("failed to record capture: %w", err))
		}
	}

	err = r.insertGraph(ctx, tx, executionID, prov)
	if err != nil {
		return persistence.NewStoreError("SaveProvenance", err)
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewStoreError("SaveProvenance", fmt.Errorf("failed to commit provenance: %w", err))
	}

	return nil
}

func (r *ProvenanceRepository) insertGraph(ctx context.Context, tx *sql.Tx, executionID string, prov *models.Provenance) error {
	for position, entity := range prov.Entities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (execution_id, id, position, type, path, name, size, last_modified)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, executionID, entity.ID, position, entity.Type, entity.Path, entity.Name, nullString(entity.Size), entity.LastModified)
		if err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", entity.Name, err)
		}
	}

	for position, activity := range prov.Activities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activities (execution_id, id, position, type, name, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, executionID, activity.ID, position, activity.Type, activity.Name, activity.StartTime.UTC(), activity.EndTime.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert activity %s: %w", activity.Name, err)
		}

		for edgePosition, entityID := range activity.Used {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO entity_used_by (execution_id, activity_id, entity_id, position)
				VALUES ($1, $2, $3, $4)
			`, executionID, activity.ID, entityID, edgePosition)
			if err != nil {
				return fmt.Errorf("failed to link %s used by %s: %w", entityID, activity.Name, err)
			}
		}

		for edgePosition, entityID := range activity.Generated {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO entity_generated_by (execution_id, activity_id, entity_id, position)
				VALUES ($1, $2, $3, $4)
			`, executionID, activity.ID, entityID, edgePosition)
			if err != nil {
				return fmt.Errorf("failed to link %s generated by %s: %w", entityID, activity.Name, err)
			}
		}
	}

	for position, agent := range prov.Agents {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (execution_id, id, position, type, name)
			VALUES ($1, $2, $3, $4, $5)
		`, executionID, agent.ID, position, agent.Type, agent.Name)
		if err != nil {
			return fmt.Errorf("failed to insert agent %s: %w", agent.Name, err)
		}
	}

	return nil
}

// Load returns the provenance captured for the execution.
func (r *ProvenanceRepository) Load(ctx context.Context, executionID string) (*models.Provenance, error) {
	exists, err := r.Exists(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, persistence.NewExecutionError("LoadProvenance", executionID, persistence.ErrProvenanceNotFound)
	}

	execution, err := r.executions.GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	prov := &models.Provenance{Execution: execution}

	prov.Entities, err = r.loadEntities(ctx, executionID)
	if err != nil {
		return nil, persistence.NewStoreError("LoadProvenance", err)
	}

	prov.Activities, err = r.loadActivities(ctx, executionID)
	if err != nil {
		return nil, persistence.NewStoreError("LoadProvenance", err)
	}

	prov.Agents, err = r.loadAgents(ctx, executionID)
	if err != nil {
		return nil, persistence.NewStoreError("LoadProvenance", err)
	}

	return prov, nil
}

// EntityByID finds an entity of any captured execution.
func (r *ProvenanceRepository) EntityByID(ctx context.Context, id string) (*models.Entity, error) {
	query := `SELECT` + entityColumns + `
		FROM entities
		WHERE id = $1
		LIMIT 1
	`

	entity, err := scanEntity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEntityNotFound
		}

		return nil, persistence.NewStoreError("EntityByID", fmt.Errorf("failed to scan entity: %w", err))
	}

	return entity, nil
}

func (r *ProvenanceRepository) loadEntities(ctx context.Context, executionID string) ([]*models.Entity, error) {
	query := `SELECT` + entityColumns + `
		FROM entities
		WHERE execution_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entities := make([]*models.Entity, 0)

	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}

		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

func (r *ProvenanceRepository) loadActivities(ctx context.Context, executionID string) ([]*models.Activity, error) {
	query := `
		SELECT
			id
		  , execution_id
		  , type
		  , name
		  , start_time
		  , end_time
		FROM activities
		WHERE execution_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	activities := make([]*models.Activity, 0)
	byID := make(map[string]*models.Activity)

	for rows.Next() {
		activity := &models.Activity{Used: []string{}, Generated: []string{}}

		err := rows.Scan(&activity.ID, &activity.ExecutionID, &activity.Type, &activity.Name, &activity.StartTime, &activity.EndTime)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}

		activity.StartTime = activity.StartTime.UTC()
		activity.EndTime = activity.EndTime.UTC()
		activities = append(activities, activity)
		byID[activity.ID] = activity
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	err = r.loadEdges(ctx, "entity_used_by", executionID, func(activity *models.Activity, entityID string) {
		activity.Used = append(activity.Used, entityID)
	}, byID)
	if err != nil {
		return nil, err
	}

	err = r.loadEdges(ctx, "entity_generated_by", executionID, func(activity *models.Activity, entityID string) {
		activity.Generated = append(activity.Generated, entityID)
	}, byID)
	if err != nil {
		return nil, err
	}

	return activities, nil
}

// loadEdges reads one of the two fixed edge tables; table is never caller input.
func (r *ProvenanceRepository) loadEdges(
	ctx context.Context,
	table, executionID string,
	add func(*models.Activity, string),
	byID map[string]*models.Activity,
) error {
	query := `SELECT activity_id, entity_id FROM ` + table + ` WHERE execution_id = $1 ORDER BY activity_id, position` // #nosec G202

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}

	defer closeRows(ctx, r.logger, rows)

	for rows.Next() {
		var activityID, entityID string

		err := rows.Scan(&activityID, &entityID)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}

		if activity, ok := byID[activityID]; ok {
			add(activity, entityID)
		}
	}

	return rows.Err()
}

func (r *ProvenanceRepository) loadAgents(ctx context.Context, executionID string) ([]*models.Agent, error) {
	query := `
		SELECT id, execution_id, type, name
		FROM agents
		WHERE execution_id = $1
		ORDER BY position
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	agents := make([]*models.Agent, 0)

	for rows.Next() {
		var agent models.Agent

		err := rows.Scan(&agent.ID, &agent.ExecutionID, &agent.Type, &agent.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}

		agents = append(agents, &agent)
	}

	return agents, rows.Err()
}

func scanEntity(scanner interface{ Scan(dest ...any) error }) (*models.Entity, error) {
	var (
		entity       models.Entity
		size         sql.NullString
		lastModified sql.NullTime
	)

	err := scanner.Scan(&entity.ID, &entity.ExecutionID, &entity.Type, &entity.Path, &entity.Name, &size, &lastModified)
	if err != nil {
		return nil, err
	}

	entity.Size = size.String

	if lastModified.Valid {
		modified := lastModified.Time.UTC()
		entity.LastModified = &modified
	}

	return &entity, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
