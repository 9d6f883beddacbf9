package utils

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level string `yaml:"level"` // zerolog level name: debug, info, warn, error
	} `yaml:"logging"`

	Transport struct {
		Mode                  string        `yaml:"mode"`                     // "exec" runs the ssh binary, "native" uses x/crypto/ssh
		SSHBinary             string        `yaml:"ssh_binary"`               // ssh client used by the exec transport
		SSHArgs               []string      `yaml:"ssh_args,omitempty"`       // Extra arguments placed before the host alias
		SSHConfigPath         string        `yaml:"ssh_config_path"`          // Client config used by the native transport
		KnownHostsPath        string        `yaml:"known_hosts_path"`         // known_hosts used by the native transport
		InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"` // Disable host key verification (native only)
		ConnectionTimeout     time.Duration `yaml:"connection_timeout"`       // Dial and handshake timeout (native only)
	} `yaml:"transport"`

	Remote struct {
		DataTimeout  time.Duration `yaml:"data_timeout"`  // Bound for list/attach/detach/reconnect
		PrimeTimeout time.Duration `yaml:"prime_timeout"` // Bound for sudo priming
	} `yaml:"remote"`

	Refresh struct {
		Enabled  bool          `yaml:"enabled"`  // Enable periodic refresh in watch mode
		Interval time.Duration `yaml:"interval"` // Interval between refreshes
	} `yaml:"refresh"`

	Workers int `yaml:"workers"` // Size of the worker pool running remote operations

	Notifier struct {
		MQTT struct {
			Enabled       bool   `yaml:"enabled"`        // Publish device snapshots and operation events
			Broker        string `yaml:"broker"`         // MQTT broker address
			ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
			Username      string `yaml:"username"`       // Optional broker username
			Password      string `yaml:"password"`       // Optional broker password
			CACertificate string `yaml:"ca_certificate"` // Optional CA certificate enabling TLS
			Topic         string `yaml:"topic"`          // Topic prefix
			QOS           int    `yaml:"qos"`            // MQTT QoS level
		} `yaml:"mqtt"`
	} `yaml:"notifier"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	config := &Config{}
	config.Logging.Level = "info"
	config.Transport.Mode = constants.TransportModeExec
	config.Transport.SSHBinary = constants.DefaultSSHBinary
	config.Transport.SSHConfigPath = "~/.ssh/config"
	config.Transport.KnownHostsPath = "~/.ssh/known_hosts"
	config.Transport.ConnectionTimeout = constants.ConnectionTimeout
	config.Remote.DataTimeout = constants.DataCommandTimeout
	config.Remote.PrimeTimeout = constants.PrimeTimeout
	config.Refresh.Enabled = true
	config.Refresh.Interval = constants.DefaultRefresh
	config.Workers = constants.DefaultWorkers
	config.Notifier.MQTT.ClientID = "vmdevice"
	config.Notifier.MQTT.Topic = constants.DefaultMQTTTopic
	config.Notifier.MQTT.QOS = constants.DefaultMQTTQOS
	return config
}

// LoadConfig loads the YAML configuration from the specified file on top of
// DefaultConfig. A missing file yields the defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	path, err := fileClient.ExpandPath(filename)
	if err != nil {
		return nil, err
	}

	exists, err := fileClient.IsFileExists(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}
	if !exists {
		return config, nil
	}

	if err := fileClient.ReadYamlFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values the rest of the agent cannot work with.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case constants.TransportModeExec, constants.TransportModeNative:
	default:
		return fmt.Errorf("unknown transport mode %q", c.Transport.Mode)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Refresh.Enabled && c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh interval must be positive")
	}
	if c.Notifier.MQTT.Enabled && c.Notifier.MQTT.Broker == "" {
		return fmt.Errorf("notifier.mqtt.broker is required when the MQTT notifier is enabled")
	}
	return nil
}

// WriteConfig writes config to filename, creating the parent directory.
func WriteConfig(filename string, config *Config, fileClient file.FileOperations) (string, error) {
	path, err := fileClient.ExpandPath(filename)
	if err != nil {
		return "", err
	}
	if err := fileClient.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	if err := fileClient.WriteYamlFile(path, config); err != nil {
		return "", fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return path, nil
}
