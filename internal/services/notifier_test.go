package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/mocks"
	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newCompletedToken(err error) *mocks.MockToken {
	token := new(mocks.MockToken)
	token.On("WaitTimeout", mock.Anything).Return(true)
	token.On("Error").Return(err)
	return token
}

func TestMQTTNotifier_PublishBeforeStart(t *testing.T) {
	mockMQTT := new(mocks.MockMQTTClient)
	notifier := services.NewMQTTNotifier("vmdevice", 1, mockMQTT, zerolog.Nop())

	err := notifier.PublishEvent(models.OperationEvent{Host: testHost})

	assert.ErrorIs(t, err, services.ErrNotifierNotConnected)
	mockMQTT.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMQTTNotifier_PublishDevices(t *testing.T) {
	mockMQTT := new(mocks.MockMQTTClient)
	mockMQTT.On("Connect").Return(newCompletedToken(nil))
	mockMQTT.On("Publish", "vmdevice/vm1/devices/attached", byte(1), true, mock.Anything).Return(newCompletedToken(nil)).Once()
	mockMQTT.On("Disconnect", uint(250)).Return().Once()

	notifier := services.NewMQTTNotifier("vmdevice", 1, mockMQTT, zerolog.Nop())
	require.NoError(t, notifier.Start())

	err := notifier.PublishDevices(models.DeviceSnapshot{
		Host:      testHost,
		Kind:      models.ListAttached,
		Devices:   []models.DeviceDescriptor{rootHub},
		Timestamp: time.Now(),
	})
	assert.NoError(t, err)

	assert.NoError(t, notifier.Stop())
	assert.NoError(t, notifier.Stop())
	mockMQTT.AssertExpectations(t)
}

func TestMQTTNotifier_PublishEvent(t *testing.T) {
	mockMQTT := new(mocks.MockMQTTClient)
	mockMQTT.On("Connect").Return(newCompletedToken(nil))
	mockMQTT.On("Publish", "vmdevice/vm1/events", byte(0), false, mock.MatchedBy(func(payload []byte) bool {
		return len(payload) > 0
	})).Return(newCompletedToken(errors.New("not authorized"))).Once()

	notifier := services.NewMQTTNotifier("vmdevice", 0, mockMQTT, zerolog.Nop())
	require.NoError(t, notifier.Start())

	err := notifier.PublishEvent(models.OperationEvent{Host: testHost, Operation: "attach", Device: "1d6b:0002"})

	assert.EqualError(t, err, "not authorized")
	mockMQTT.AssertExpectations(t)
}

func TestMQTTNotifier_StartFailure(t *testing.T) {
	mockMQTT := new(mocks.MockMQTTClient)
	mockMQTT.On("Connect").Return(newCompletedToken(errors.New("connection refused")))

	notifier := services.NewMQTTNotifier("vmdevice", 1, mockMQTT, zerolog.Nop())

	assert.Error(t, notifier.Start())
	assert.ErrorIs(t, notifier.PublishDevices(models.DeviceSnapshot{Host: testHost}), services.ErrNotifierNotConnected)
	mockMQTT.AssertNotCalled(t, "Disconnect", mock.Anything)
}
