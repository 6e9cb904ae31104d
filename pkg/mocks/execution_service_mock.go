package mocks

import (
	"context"

	"github.com/dukex/provtrack/pkg/reana"
	"github.com/stretchr/testify/mock"
)

// MockExecutionService is a mock implementation of reana.ExecutionService interface.
type MockExecutionService struct {
	mock.Mock
}

func (m *MockExecutionService) Submit(ctx context.Context, name string, spec []byte, parameters map[string]any) (*reana.Handle, error) {
	args := m.Called(ctx, name, spec, parameters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*reana.Handle), args.Error(1)
}

func (m *MockExecutionService) Start(ctx context.Context, id string) (*reana.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*reana.Run), args.Error(1)
}

func (m *MockExecutionService) Status(ctx context.Context, id string) (*reana.Status, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*reana.Status), args.Error(1)
}

func (m *MockExecutionService) ListArtifacts(ctx context.Context, id string) ([]reana.Artifact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]reana.Artifact), args.Error(1)
}

func (m *MockExecutionService) Download(ctx context.Context, id, name string) ([]byte, error) {
	args := m.Called(ctx, id, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockExecutionService) Upload(ctx context.Context, id, name string, content []byte) error {
	args := m.Called(ctx, id, name, content)

	return args.Error(0)
}

func (m *MockExecutionService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}
