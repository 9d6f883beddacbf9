package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/internal/service_registry"
	"github.com/benmeehan/vmdevice-agent/internal/services"
	"github.com/benmeehan/vmdevice-agent/internal/state_managers"
	"github.com/benmeehan/vmdevice-agent/internal/utils"
	"github.com/benmeehan/vmdevice-agent/pkg/file"
	"github.com/benmeehan/vmdevice-agent/pkg/mqtt"
	"github.com/benmeehan/vmdevice-agent/pkg/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var errNoHost = errors.New("please enter an SSH host alias (--host or `vmdevice settings set --host`)")

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath   string
	settingsPath string
	host         string
	tool         string
	logLevel     string
}

// app holds everything built from configuration before a command runs.
type app struct {
	flags      *globalFlags
	config     *utils.Config
	fileClient file.FileOperations
	settings   *state_managers.SettingsManager
	logger     zerolog.Logger
}

func newApp(flags *globalFlags) (*app, error) {
	fileClient := file.NewFileService()

	config, err := utils.LoadConfig(flags.configPath, fileClient)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := config.Logging.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}

	return &app{
		flags:      flags,
		config:     config,
		fileClient: fileClient,
		settings:   state_managers.NewSettingsManager(flags.settingsPath, fileClient, logger),
		logger:     logger,
	}, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger(), nil
}

// target resolves host alias and tool path: flags first, then the settings file.
func (a *app) target() (state_managers.Settings, error) {
	settings, err := a.settings.Load()
	if err != nil {
		return settings, err
	}
	if a.flags.host != "" {
		settings.HostAlias = a.flags.host
	}
	if a.flags.tool != "" {
		settings.ToolPath = a.flags.tool
	}
	settings.HostAlias = strings.TrimSpace(settings.HostAlias)
	if settings.HostAlias == "" {
		return settings, errNoHost
	}
	return settings, nil
}

func (a *app) newTransport() (transport.Transport, error) {
	cfg := a.config.Transport
	if cfg.Mode != constants.TransportModeNative {
		return transport.NewExecTransport(cfg.SSHBinary, cfg.SSHArgs, a.logger), nil
	}

	sshConfigPath, err := a.fileClient.ExpandPath(cfg.SSHConfigPath)
	if err != nil {
		return nil, err
	}
	knownHostsPath, err := a.fileClient.ExpandPath(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	return transport.NewNativeTransport(transport.NativeOptions{
		SSHConfigPath:         sshConfigPath,
		KnownHostsPath:        knownHostsPath,
		InsecureIgnoreHostKey: cfg.InsecureIgnoreHostKey,
		ConnectionTimeout:     cfg.ConnectionTimeout,
		DefaultIdentityFiles:  constants.DefaultIdentityFiles,
	}, a.fileClient, a.logger)
}

// connection is one live session with its coordinator and background services.
type connection struct {
	coordinator *services.Coordinator
	registry    *service_registry.ServiceRegistry
	transport   transport.Transport
}

// Close stops the coordinator, the background services and the transport.
func (c *connection) Close() {
	c.coordinator.Close()
	_ = c.registry.StopServices()
	_ = c.transport.Close()
}

// connect builds the session stack for the configured host. When watch is
// set the periodic refresh service is registered as well.
func (a *app) connect(display services.Display, watch bool) (*connection, error) {
	target, err := a.target()
	if err != nil {
		return nil, err
	}

	tr, err := a.newTransport()
	if err != nil {
		return nil, fmt.Errorf("failed to set up transport: %w", err)
	}

	session := services.NewSession(target.HostAlias, target.ToolPath, tr,
		a.config.Remote.DataTimeout, a.config.Remote.PrimeTimeout, a.logger)

	var notifier *services.MQTTNotifier
	if a.config.Notifier.MQTT.Enabled {
		notifier, err = a.newMQTTNotifier()
		if err != nil {
			_ = tr.Close()
			return nil, err
		}
	}

	var n services.Notifier
	if notifier != nil {
		n = notifier
	}
	coordinator := services.NewCoordinator(session, services.NewDeviceRegistry(), n, display, a.config.Workers, a.logger)

	registry := service_registry.NewServiceRegistry(a.logger)
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() service_registry.Service
	}{
		{
			name:        "mqtt_notifier",
			enabled:     notifier != nil,
			constructor: func() service_registry.Service { return notifier },
		},
		{
			name:    "refresh",
			enabled: watch && a.config.Refresh.Enabled,
			constructor: func() service_registry.Service {
				return services.NewRefreshService(a.config.Refresh.Interval, coordinator, a.logger)
			},
		},
	}
	for _, s := range servicesInOrder {
		if s.enabled {
			registry.RegisterService(s.name, s.constructor())
		}
	}

	coordinator.Start()
	if err := registry.StartServices(); err != nil {
		coordinator.Close()
		_ = tr.Close()
		return nil, err
	}

	return &connection{coordinator: coordinator, registry: registry, transport: tr}, nil
}

func (a *app) newMQTTNotifier() (*services.MQTTNotifier, error) {
	cfg := a.config.Notifier.MQTT

	caCertificate := cfg.CACertificate
	if caCertificate != "" {
		path, err := a.fileClient.ExpandPath(caCertificate)
		if err != nil {
			return nil, err
		}
		caCertificate = path
	}

	client := mqtt.NewMqttService(a.fileClient)
	err := client.Configure(mqtt.Options{
		Broker:        cfg.Broker,
		ClientID:      cfg.ClientID + "-" + uuid.New().String(),
		Username:      cfg.Username,
		Password:      cfg.Password,
		CACertificate: caCertificate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure MQTT notifier: %w", err)
	}
	return services.NewMQTTNotifier(cfg.Topic, cfg.QOS, client, a.logger), nil
}
