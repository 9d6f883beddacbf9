package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/internal/services"
	"github.com/benmeehan/vmdevice-agent/internal/utils"
	"github.com/benmeehan/vmdevice-agent/pkg/file"
	"github.com/spf13/cobra"
)

type deviceAction int

const (
	actionAttach deviceAction = iota
	actionDetach
	actionReconnect
)

// runOnce connects, runs start against the coordinator and waits for every
// operation it scheduled to finish.
func runOnce(flags *globalFlags, start func(c *services.Coordinator) error) error {
	a, err := newApp(flags)
	if err != nil {
		return err
	}

	conn, err := a.connect(newTerminalDisplay(false), false)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := start(conn.coordinator); err != nil {
		return err
	}
	conn.coordinator.Wait()
	return nil
}

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List devices attached to the VM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(flags, (*services.Coordinator).RefreshAttached)
		},
	}
}

func newAvailableCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "List host devices available for attaching",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(flags, (*services.Coordinator).RefreshAvailable)
		},
	}
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Load attached and available devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(flags, (*services.Coordinator).Connect)
		},
	}
}

func newActionCommand(flags *globalFlags, use, short string, action deviceAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " VENDOR:PRODUCT",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseDeviceID(args[0])
			if err != nil {
				return err
			}
			return runOnce(flags, func(c *services.Coordinator) error {
				switch action {
				case actionDetach:
					return c.Detach(id)
				case actionReconnect:
					return c.Reconnect(id)
				default:
					return c.Attach(id)
				}
			})
		},
	}
}

func newWatchCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Load both device lists and refresh them periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			display := newTerminalDisplay(true)
			defer display.Restore()

			conn, err := a.connect(display, true)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := conn.coordinator.Connect(); err != nil {
				return err
			}

			<-ctx.Done()
			a.logger.Info().Msg("Shutting down")
			return nil
		},
	}
}

func newSettingsCommand(flags *globalFlags) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved host alias and tool path",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			settings, err := a.settings.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ssh_alias      = %s\n", settings.HostAlias)
			fmt.Fprintf(out, "vm_device_path = %s\n", settings.ToolPath)
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set",
		Short: "Save --host and --tool as the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flags)
			if err != nil {
				return err
			}
			settings, err := a.settings.Load()
			if err != nil {
				return err
			}
			if flags.host == "" && flags.tool == "" {
				return fmt.Errorf("nothing to save: pass --host and/or --tool")
			}
			if flags.host != "" {
				settings.HostAlias = flags.host
			}
			if flags.tool != "" {
				settings.ToolPath = flags.tool
			}
			if err := a.settings.Save(settings); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings saved.")
			return nil
		},
	}

	settingsCmd.AddCommand(show, set)
	return settingsCmd
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	var force bool

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the YAML configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fileClient := file.NewFileService()
			path, err := fileClient.ExpandPath(flags.configPath)
			if err != nil {
				return err
			}
			exists, err := fileClient.IsFileExists(path)
			if err != nil {
				return err
			}
			if exists && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			written, err := utils.WriteConfig(path, utils.DefaultConfig(), fileClient)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", written)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	configCmd.AddCommand(initCmd)
	return configCmd
}
