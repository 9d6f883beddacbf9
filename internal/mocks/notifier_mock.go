package mocks

import (
	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of the Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PublishDevices(snapshot models.DeviceSnapshot) error {
	args := m.Called(snapshot)
	return args.Error(0)
}

func (m *MockNotifier) PublishEvent(event models.OperationEvent) error {
	args := m.Called(event)
	return args.Error(0)
}
