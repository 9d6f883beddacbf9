package services_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/mocks"
	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/internal/services"
	"github.com/benmeehan/vmdevice-agent/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	listAttachedCmd  = "sudo ~/.local/bin/vm-device --list --json"
	listAvailableCmd = "sudo ~/.local/bin/vm-device --list-available --json"
	availablePayload = `{"available_devices": [{"vendor": "046d", "product": "c52b", "name": "Logitech Unifying Receiver", "status": "available"}]}`
)

func newTestCoordinator(tr transport.Transport, notifier services.Notifier, display services.Display) *services.Coordinator {
	c := services.NewCoordinator(newTestSession(tr), services.NewDeviceRegistry(), notifier, display, 2, zerolog.Nop())
	c.Start()
	return c
}

func TestCoordinator_Connect_LoadsBothLists(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := mocks.NewRecordingDisplay()

	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: attachedPayload}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, listAvailableCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: availablePayload}, nil).Once()

	c := newTestCoordinator(mockTransport, nil, display)
	require.NoError(t, c.Connect())
	c.Wait()
	c.Close()

	updates := display.Updates()
	require.Len(t, updates, 2)
	assert.Equal(t, models.ListAttached, updates[0].Kind)
	assert.Equal(t, models.ListAvailable, updates[1].Kind)
	assert.Len(t, updates[0].Added, 1)
	assert.Empty(t, updates[0].Removed)

	assert.Equal(t, []string{"Connected to vm1", "Loaded devices.", "Loaded devices."}, display.Statuses())
	assert.Len(t, c.Registry().Devices(models.ListAttached), 1)
	assert.Len(t, c.Registry().Devices(models.ListAvailable), 1)
	mockTransport.AssertExpectations(t)
}

// The worker blocks on the credential request while the coordinator
// goroutine asks the display; the answer flows back and the load retries.
func TestCoordinator_Connect_PromptsOnceForBothLists(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := mocks.NewRecordingDisplay("secret1")

	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Return(transport.ExecResult{ExitCode: 1, Stderr: "sudo: a password is required"}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, `printf '%s\n' 'secret1' | sudo -S -v`, 10*time.Second).
		Return(transport.ExecResult{}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, `printf '%s\n' 'secret1' | sudo -S ~/.local/bin/vm-device --list --json`, 30*time.Second).
		Return(transport.ExecResult{Stdout: attachedPayload}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, `printf '%s\n' 'secret1' | sudo -S ~/.local/bin/vm-device --list-available --json`, 30*time.Second).
		Return(transport.ExecResult{Stdout: availablePayload}, nil).Once()

	c := newTestCoordinator(mockTransport, nil, display)
	require.NoError(t, c.Connect())
	c.Wait()
	c.Close()

	assert.Equal(t, []services.PromptReason{services.PromptCredentialMissing}, display.Prompts())
	assert.Len(t, display.Updates(), 2)
	mockTransport.AssertExpectations(t)
}

func TestCoordinator_LoadFailure_KeepsPreviousList(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := mocks.NewRecordingDisplay()

	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: attachedPayload}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Return(transport.ExecResult{ExitCode: 1, Stderr: "vm-device: libvirt connection failed"}, nil).Once()

	c := newTestCoordinator(mockTransport, nil, display)
	require.NoError(t, c.RefreshAttached())
	c.Wait()
	require.NoError(t, c.RefreshAttached())
	c.Wait()
	c.Close()

	assert.Len(t, display.Updates(), 1)
	assert.Equal(t, []string{
		"Refreshing attached devices...",
		"Loaded devices.",
		"Refreshing attached devices...",
		"vm-device: libvirt connection failed",
	}, display.Statuses())
	assert.Len(t, c.Registry().Devices(models.ListAttached), 1)
}

func TestCoordinator_UnexpectedPayload(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := mocks.NewRecordingDisplay()

	mockTransport.On("Run", mock.Anything, testHost, listAvailableCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: `{"devices": []}`}, nil).Once()

	c := newTestCoordinator(mockTransport, nil, display)
	require.NoError(t, c.RefreshAvailable())
	c.Wait()
	c.Close()

	assert.Empty(t, display.Updates())
	assert.Equal(t, []string{"Refreshing available devices...", "Failed to load devices."}, display.Statuses())
}

func TestCoordinator_Attach(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	mockNotifier := new(mocks.MockNotifier)
	display := mocks.NewRecordingDisplay()

	mockTransport.On("Run", mock.Anything, testHost, "sudo ~/.local/bin/vm-device --attach 046d:c52b --json", 30*time.Second).
		Return(transport.ExecResult{Stdout: `{"success": true, "message": "attached"}`}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: attachedPayload}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, listAvailableCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: availablePayload}, nil).Once()
	mockNotifier.On("PublishEvent", mock.MatchedBy(func(e models.OperationEvent) bool {
		return e.Operation == "attach" && e.Device == "046d:c52b" && e.Success && e.ID != "" && e.Host == testHost
	})).Return(nil).Once()
	mockNotifier.On("PublishDevices", mock.AnythingOfType("models.DeviceSnapshot")).Return(nil).Twice()

	c := newTestCoordinator(mockTransport, mockNotifier, display)
	require.NoError(t, c.Attach(models.DeviceID{Vendor: "046d", Product: "c52b"}))
	c.Wait()
	c.Close()

	statuses := display.Statuses()
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, "Attaching 046d:c52b...", statuses[0])
	assert.Equal(t, "Attached 046d:c52b", statuses[1])
	assert.Len(t, display.Updates(), 2)
	mockTransport.AssertExpectations(t)
	mockNotifier.AssertExpectations(t)
}

func TestCoordinator_ActionFailures(t *testing.T) {
	tests := []struct {
		name     string
		result   transport.ExecResult
		expected string
	}{
		{
			name:     "tool reports error",
			result:   transport.ExecResult{Stdout: `{"success": false, "error": "Device 046d:c52b is not attached"}`},
			expected: "Device 046d:c52b is not attached",
		},
		{
			name:     "tool reports failure without detail",
			result:   transport.ExecResult{Stdout: `{"success": false}`},
			expected: "Failed to detach device.",
		},
		{
			name:     "non-zero exit",
			result:   transport.ExecResult{ExitCode: 1, Stderr: "vm-device: domain not running\n"},
			expected: "vm-device: domain not running",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockTransport := new(mocks.MockTransport)
			display := mocks.NewRecordingDisplay()

			mockTransport.On("Run", mock.Anything, testHost, "sudo ~/.local/bin/vm-device --detach 046d:c52b --json", 30*time.Second).
				Return(tt.result, nil).Once()
			mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
				Return(transport.ExecResult{Stdout: attachedPayload}, nil).Once()
			mockTransport.On("Run", mock.Anything, testHost, listAvailableCmd, 30*time.Second).
				Return(transport.ExecResult{Stdout: availablePayload}, nil).Once()

			c := newTestCoordinator(mockTransport, nil, display)
			require.NoError(t, c.Detach(models.DeviceID{Vendor: "046d", Product: "c52b"}))
			c.Wait()
			c.Close()

			statuses := display.Statuses()
			require.GreaterOrEqual(t, len(statuses), 2)
			assert.Equal(t, "Detaching 046d:c52b...", statuses[0])
			assert.Equal(t, tt.expected, statuses[1])
			mockTransport.AssertExpectations(t)
		})
	}
}

func TestCoordinator_PeriodicRefresh_SkipsWhileLoading(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := mocks.NewRecordingDisplay()
	release := make(chan struct{})
	var entered atomic.Bool

	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Run(func(args mock.Arguments) {
			entered.Store(true)
			<-release
		}).
		Return(transport.ExecResult{Stdout: attachedPayload}, nil)
	mockTransport.On("Run", mock.Anything, testHost, listAvailableCmd, 30*time.Second).
		Return(transport.ExecResult{Stdout: availablePayload}, nil)

	c := newTestCoordinator(mockTransport, nil, display)

	assert.True(t, c.PeriodicRefresh())
	assert.Eventually(t, entered.Load, time.Second, 5*time.Millisecond)
	assert.False(t, c.PeriodicRefresh())

	close(release)
	c.Wait()
	assert.True(t, c.PeriodicRefresh())
	c.Wait()
	c.Close()

	mockTransport.AssertNumberOfCalls(t, "Run", 4)
}

func TestCoordinator_SubmitAfterClose(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	c := newTestCoordinator(mockTransport, nil, mocks.NewRecordingDisplay())
	c.Close()

	assert.Error(t, c.Connect())
	assert.False(t, c.PeriodicRefresh())
}

// gatedDisplay holds the first credential prompt open until release is closed.
type gatedDisplay struct {
	*mocks.RecordingDisplay
	opened  chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedDisplay(answers ...string) *gatedDisplay {
	return &gatedDisplay{
		RecordingDisplay: mocks.NewRecordingDisplay(answers...),
		opened:           make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (d *gatedDisplay) PromptCredential(host string, reason services.PromptReason) (string, bool) {
	first := false
	d.once.Do(func() { first = true })
	if first {
		close(d.opened)
		<-d.release
	}
	return d.RecordingDisplay.PromptCredential(host, reason)
}

func TestCoordinator_RefreshTickDuringConnectPrompt_AsksOnce(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := newGatedDisplay("secret1")

	mockTransport.On("Run", mock.Anything, testHost, listAttachedCmd, 30*time.Second).
		Return(transport.ExecResult{ExitCode: 1, Stderr: "sudo: a password is required"}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, `printf '%s\n' 'secret1' | sudo -S -v`, 10*time.Second).
		Return(transport.ExecResult{}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, `printf '%s\n' 'secret1' | sudo -S ~/.local/bin/vm-device --list --json`, 30*time.Second).
		Return(transport.ExecResult{Stdout: attachedPayload}, nil).Once()
	mockTransport.On("Run", mock.Anything, testHost, `printf '%s\n' 'secret1' | sudo -S ~/.local/bin/vm-device --list-available --json`, 30*time.Second).
		Return(transport.ExecResult{Stdout: availablePayload}, nil).Once()

	c := services.NewCoordinator(newTestSession(mockTransport), services.NewDeviceRegistry(), nil, display, 4, zerolog.Nop())
	c.Start()

	require.NoError(t, c.Connect())
	select {
	case <-display.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("credential prompt never opened")
	}

	assert.False(t, c.PeriodicRefresh())
	close(display.release)
	c.Wait()
	c.Close()

	assert.Equal(t, []services.PromptReason{services.PromptCredentialMissing}, display.Prompts())
	assert.Len(t, display.Updates(), 2)
	mockTransport.AssertExpectations(t)
}

func TestCoordinator_CloseWithOpenPrompt(t *testing.T) {
	mockTransport := new(mocks.MockTransport)
	display := newGatedDisplay()
	defer close(display.release)

	mockTransport.On("Run", mock.Anything, testHost, mock.Anything, mock.Anything).
		Return(transport.ExecResult{ExitCode: 1, Stderr: "sudo: a password is required"}, nil)

	c := newTestCoordinator(mockTransport, nil, display)
	require.NoError(t, c.Connect())
	select {
	case <-display.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("credential prompt never opened")
	}

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked by the open credential prompt")
	}
	mockTransport.AssertNotCalled(t, "Run", mock.Anything, testHost, listAvailableCmd, mock.Anything)
}
