package mocks

import (
	"context"
	"time"

	"github.com/dukex/provtrack/pkg/models"
	"github.com/dukex/provtrack/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	executionRepo  *MockExecutionRepository
	specRepo       *MockSpecRepository
	provenanceRepo *MockProvenanceRepository
}

// NewMockPersistence creates a mock persistence with mocked repositories.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		executionRepo:  &MockExecutionRepository{},
		specRepo:       &MockSpecRepository{},
		provenanceRepo: &MockProvenanceRepository{},
	}
}

func (m *MockPersistence) GetMockExecutionRepository() *MockExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) GetMockSpecRepository() *MockSpecRepository {
	return m.specRepo
}

func (m *MockPersistence) GetMockProvenanceRepository() *MockProvenanceRepository {
	return m.provenanceRepo
}

func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return m.executionRepo
}

func (m *MockPersistence) SpecRepository() persistence.SpecRepository {
	return m.specRepo
}

func (m *MockPersistence) ProvenanceRepository() persistence.ProvenanceRepository {
	return m.provenanceRepo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository interface.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) GetByIDForGroup(ctx context.Context, id, group string) (*models.Execution, error) {
	args := m.Called(ctx, id, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListByGroup(ctx context.Context, group string) ([]*models.Execution, error) {
	args := m.Called(ctx, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) ListUnfinished(ctx context.Context) ([]*models.Execution, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus) error {
	args := m.Called(ctx, id, status)

	return args.Error(0)
}

func (m *MockExecutionRepository) Finish(ctx context.Context, id string, status models.ExecutionStatus, endTime time.Time) error {
	args := m.Called(ctx, id, status, endTime)

	return args.Error(0)
}

func (m *MockExecutionRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockExecutionRepository) Steps(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ExecutionStep), args.Error(1)
}

func (m *MockExecutionRepository) OpenStep(ctx context.Context, step *models.ExecutionStep) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

func (m *MockExecutionRepository) CloseStep(ctx context.Context, step *models.ExecutionStep) error {
	args := m.Called(ctx, step)

	return args.Error(0)
}

// MockSpecRepository is a mock implementation of persistence.SpecRepository interface.
type MockSpecRepository struct {
	mock.Mock
}

func (m *MockSpecRepository) GetByID(ctx context.Context, id, group string) (*models.WorkflowSpec, error) {
	args := m.Called(ctx, id, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowSpec), args.Error(1)
}

func (m *MockSpecRepository) Save(ctx context.Context, spec *models.WorkflowSpec) error {
	args := m.Called(ctx, spec)

	return args.Error(0)
}

// MockProvenanceRepository is a mock implementation of persistence.ProvenanceRepository interface.
type MockProvenanceRepository struct {
	mock.Mock
}

func (m *MockProvenanceRepository) Exists(ctx context.Context, executionID string) (bool, error) {
	args := m.Called(ctx, executionID)

	return args.Bool(0), args.Error(1)
}

func (m *MockProvenanceRepository) SaveProvenance(ctx context.Context, prov *models.Provenance) error {
	args := m.Called(ctx, prov)

	return args.Error(0)
}

func (m *MockProvenanceRepository) Load(ctx context.Context, executionID string) (*models.Provenance, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Provenance), args.Error(1)
}

func (m *MockProvenanceRepository) EntityByID(ctx context.Context, id string) (*models.Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Entity), args.Error(1)
}
