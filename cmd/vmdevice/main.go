package main

import (
	"fmt"
	"os"

	"github.com/benmeehan/vmdevice-agent/internal/constants"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "vmdevice",
		Short:         "Manage USB devices attached to a remote VM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", constants.DefaultConfigPath, "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&flags.settingsPath, "settings", constants.DefaultSettingsPath, "path to the INI settings file")
	root.PersistentFlags().StringVar(&flags.host, "host", "", "SSH host alias (overrides settings)")
	root.PersistentFlags().StringVar(&flags.tool, "tool", "", "remote vm-device tool path (overrides settings)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newListCommand(flags),
		newAvailableCommand(flags),
		newStatusCommand(flags),
		newActionCommand(flags, "attach", "Attach a device to the VM", actionAttach),
		newActionCommand(flags, "detach", "Detach a device from the VM", actionDetach),
		newActionCommand(flags, "reconnect", "Re-attach a device to the VM", actionReconnect),
		newWatchCommand(flags),
		newSettingsCommand(flags),
		newConfigCommand(flags),
	)
	return root
}
