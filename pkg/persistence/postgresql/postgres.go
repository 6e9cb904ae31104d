// Package postgresql provides PostgreSQL persistence for executions, specifications and provenance.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/dukex/provtrack/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	executionRepo  *ExecutionRepository
	specRepo       *SpecRepository
	provenanceRepo *ProvenanceRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return newPersistence(database, logger), nil
}

func newPersistence(database *sql.DB, logger *slog.Logger) *Persistence {
	executionRepo := NewExecutionRepository(database, logger)

	return &Persistence{
		db:             database,
		logger:         logger,
		executionRepo:  executionRepo,
		specRepo:       NewSpecRepository(database, logger),
		provenanceRepo: NewProvenanceRepository(database, logger, executionRepo),
	}
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return persistence.NewStoreError("HealthCheck", fmt.Errorf("failed to ping database: %w", err))
	}

	return nil
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) SpecRepository() persistence.SpecRepository {
	return p.specRepo
}

func (p *Persistence) ProvenanceRepository() persistence.ProvenanceRepository {
	return p.provenanceRepo
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == code
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
