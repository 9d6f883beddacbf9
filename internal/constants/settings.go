package constants

import "time"

const (
	// DefaultSettingsPath is the file the desktop tray front-end reads too.
	DefaultSettingsPath = "~/.config/vm-device-gui.conf"
	DefaultConfigPath   = "~/.config/vmdevice/config.yaml"

	SettingsSection    = "main"
	SettingsKeyAlias   = "ssh_alias"
	SettingsKeyTool    = "vm_device_path"
	DefaultRefresh     = 30 * time.Second
	DefaultMQTTQOS     = 1
	DefaultMQTTTopic   = "vmdevice"
	MQTTDisconnectWait = 250
)
