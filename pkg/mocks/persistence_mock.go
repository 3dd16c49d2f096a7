// Package mocks holds testify mocks of the engine's collaborators.
package mocks

import (
	"context"

	"github.com/dukex/docstates/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
// Repository accessors return whatever the test registered.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) TemplateRepository() persistence.TemplateRepository {
	args := m.Called()

	repo, _ := args.Get(0).(persistence.TemplateRepository)

	return repo
}

func (m *MockPersistence) DocumentRepository() persistence.DocumentRepository {
	args := m.Called()

	repo, _ := args.Get(0).(persistence.DocumentRepository)

	return repo
}

func (m *MockPersistence) InstanceRepository() persistence.InstanceRepository {
	args := m.Called()

	repo, _ := args.Get(0).(persistence.InstanceRepository)

	return repo
}

func (m *MockPersistence) ErrorLogRepository() persistence.ErrorLogRepository {
	args := m.Called()

	repo, _ := args.Get(0).(persistence.ErrorLogRepository)

	return repo
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
