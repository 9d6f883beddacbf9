package mocks

import (
	"context"

	"github.com/benmeehan/vmdevice-agent/internal/services"
	"github.com/stretchr/testify/mock"
)

// MockCredentialPrompter is a mock implementation of the CredentialPrompter interface
type MockCredentialPrompter struct {
	mock.Mock
}

func (m *MockCredentialPrompter) RequestCredential(ctx context.Context, host string, reason services.PromptReason) (string, bool) {
	args := m.Called(ctx, host, reason)
	return args.String(0), args.Bool(1)
}
