package utils_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/internal/utils"
	"github.com/benmeehan/vmdevice-agent/pkg/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	config, err := utils.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), file.NewFileService())

	require.NoError(t, err)
	assert.Equal(t, utils.DefaultConfig(), config)
	assert.Equal(t, constants.TransportModeExec, config.Transport.Mode)
	assert.Equal(t, 30*time.Second, config.Remote.DataTimeout)
	assert.Equal(t, 10*time.Second, config.Remote.PrimeTimeout)
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
transport:
  mode: native
  insecure_ignore_host_key: true
remote:
  data_timeout: 45s
refresh:
  interval: 1m
workers: 2
notifier:
  mqtt:
    enabled: true
    broker: tcp://localhost:1883
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	config, err := utils.LoadConfig(path, file.NewFileService())

	require.NoError(t, err)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, constants.TransportModeNative, config.Transport.Mode)
	assert.True(t, config.Transport.InsecureIgnoreHostKey)
	assert.Equal(t, constants.DefaultSSHBinary, config.Transport.SSHBinary)
	assert.Equal(t, 45*time.Second, config.Remote.DataTimeout)
	assert.Equal(t, 10*time.Second, config.Remote.PrimeTimeout)
	assert.Equal(t, time.Minute, config.Refresh.Interval)
	assert.Equal(t, 2, config.Workers)
	assert.Equal(t, "tcp://localhost:1883", config.Notifier.MQTT.Broker)
	assert.Equal(t, constants.DefaultMQTTTopic, config.Notifier.MQTT.Topic)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{name: "unknown mode", content: "transport:\n  mode: telnet\n", errMsg: `unknown transport mode "telnet"`},
		{name: "no workers", content: "workers: 0\n", errMsg: "workers must be at least 1, got 0"},
		{name: "mqtt without broker", content: "notifier:\n  mqtt:\n    enabled: true\n", errMsg: "notifier.mqtt.broker is required"},
		{name: "bad refresh", content: "refresh:\n  interval: 0s\n", errMsg: "refresh interval must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			_, err := utils.LoadConfig(path, file.NewFileService())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWriteConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	fileClient := file.NewFileService()

	written, err := utils.WriteConfig(path, utils.DefaultConfig(), fileClient)
	require.NoError(t, err)
	assert.Equal(t, path, written)

	config, err := utils.LoadConfig(path, fileClient)
	require.NoError(t, err)
	assert.Equal(t, utils.DefaultConfig(), config)
}
