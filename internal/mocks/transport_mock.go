package mocks

import (
	"context"
	"time"

	"github.com/benmeehan/vmdevice-agent/pkg/transport"
	"github.com/stretchr/testify/mock"
)

// MockTransport is a mock implementation of the transport.Transport interface
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Run(ctx context.Context, host, command string, timeout time.Duration) (transport.ExecResult, error) {
	args := m.Called(ctx, host, command, timeout)
	return args.Get(0).(transport.ExecResult), args.Error(1)
}

func (m *MockTransport) Close() error {
	args := m.Called()
	return args.Error(0)
}
