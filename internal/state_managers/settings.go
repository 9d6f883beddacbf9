package state_managers

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/benmeehan/vmdevice-agent/pkg/file"
	"github.com/go-ini/ini"
	"github.com/rs/zerolog"
)

// Settings are the two values persisted between runs.
type Settings struct {
	HostAlias string
	ToolPath  string
}

// SettingsManager handles the flat key-value settings file
// ([main] ssh_alias / vm_device_path).
type SettingsManager struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger
	mu         sync.Mutex
}

// NewSettingsManager initializes a new SettingsManager
func NewSettingsManager(filePath string, fileClient file.FileOperations, logger zerolog.Logger) *SettingsManager {
	return &SettingsManager{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
	}
}

// Load reads the settings file. A missing file or missing keys yield an empty
// alias and the default tool path.
func (sm *SettingsManager) Load() (Settings, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	settings := Settings{ToolPath: constants.DefaultToolPath}

	path, err := sm.fileClient.ExpandPath(sm.filePath)
	if err != nil {
		return settings, err
	}

	exists, err := sm.fileClient.IsFileExists(path)
	if err != nil {
		sm.logger.Error().Err(err).Str("path", path).Msg("Failed to stat settings file")
		return settings, err
	}
	if !exists {
		sm.logger.Debug().Str("path", path).Msg("Settings file not found, using defaults")
		return settings, nil
	}

	cfg, err := ini.Load(path)
	if err != nil {
		sm.logger.Error().Err(err).Str("path", path).Msg("Failed to parse settings file")
		return settings, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}

	section := cfg.Section(constants.SettingsSection)
	settings.HostAlias = section.Key(constants.SettingsKeyAlias).String()
	if tool := section.Key(constants.SettingsKeyTool).String(); tool != "" {
		settings.ToolPath = tool
	}
	return settings, nil
}

// Save writes settings, creating the parent directory when needed. An empty
// tool path is stored as the default.
func (sm *SettingsManager) Save(settings Settings) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if settings.ToolPath == "" {
		settings.ToolPath = constants.DefaultToolPath
	}

	path, err := sm.fileClient.ExpandPath(sm.filePath)
	if err != nil {
		return err
	}
	if err := sm.fileClient.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	cfg := ini.Empty()
	section := cfg.Section(constants.SettingsSection)
	section.Key(constants.SettingsKeyAlias).SetValue(settings.HostAlias)
	section.Key(constants.SettingsKeyTool).SetValue(settings.ToolPath)

	if err := cfg.SaveTo(path); err != nil {
		sm.logger.Error().Err(err).Str("path", path).Msg("Failed to write settings file")
		return fmt.Errorf("failed to write settings %s: %w", path, err)
	}
	sm.logger.Info().Str("path", path).Msg("Settings saved")
	return nil
}
