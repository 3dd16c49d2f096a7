package mocks

import (
	"context"

	"github.com/dukex/docstates/pkg/models"
	"github.com/dukex/docstates/pkg/protocol"
	"github.com/stretchr/testify/mock"
)

// MockAccessChecker is a mock implementation of protocol.AccessChecker interface.
type MockAccessChecker struct {
	mock.Mock
}

func (m *MockAccessChecker) Can(ctx context.Context, permission string, user *models.User, object protocol.AccessObject) (bool, error) {
	args := m.Called(ctx, permission, user, object)

	return args.Bool(0), args.Error(1)
}
