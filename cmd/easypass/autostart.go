package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"easypass/internal/autostart"
	"easypass/internal/config"
	"easypass/internal/logging"
)

func (a *app) autostartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Start the daemon when you log in",
		Long: `Manage the login entry that starts "easypass run": an XDG autostart file on
Linux, a LaunchAgent on macOS or a Run registry value on Windows.

enable and disable also set default.autostart in the config file, which the
daemon applies on start and on every reload.`,
	}

	set := func(enabled bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return a.setAutostart(cmd, enabled)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Create the login entry",
		Args:  cobra.NoArgs,
		RunE:  set(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Remove the login entry",
		Args:  cobra.NoArgs,
		RunE:  set(false),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the login entry exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			discardKey(cfg)

			m, err := autostart.New()
			if err != nil {
				return err
			}
			on, err := m.Enabled()
			if err != nil {
				return err
			}
			loc, _ := m.Location()

			out := cmd.OutOrStdout()
			if on {
				fmt.Fprintf(out, "Autostart: enabled (%s)\n", loc)
			} else {
				fmt.Fprintln(out, "Autostart: disabled")
			}
			if cfg.Default.Autostart != on {
				fmt.Fprintf(out, "Config sets autostart = %t; the daemon applies it on start or reload.\n", cfg.Default.Autostart)
			}
			return nil
		},
	})
	return cmd
}

// setAutostart updates the login entry and then the config file. The entry
// is put back if the config cannot be written.
func (a *app) setAutostart(cmd *cobra.Command, enabled bool) error {
	m, err := autostart.New()
	if err != nil {
		return err
	}
	was, err := m.Enabled()
	if err != nil {
		return err
	}
	if err := m.Set(enabled); err != nil {
		return err
	}
	if err := config.SetAutostart(a.path(), enabled); err != nil {
		if rerr := m.Set(was); rerr != nil {
			return fmt.Errorf("save config: %w (restoring login entry: %v)", err, rerr)
		}
		return fmt.Errorf("save config: %w", err)
	}

	if enabled {
		loc, _ := m.Location()
		fmt.Fprintf(cmd.OutOrStdout(), "Autostart enabled: %s\n", loc)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Autostart disabled")
	}
	return nil
}

// applyAutostart makes the login entry match the configuration. Failures
// are logged; the daemon keeps running either way.
func applyAutostart(logger *logging.Logger, enabled bool) {
	m, err := autostart.New()
	if err == nil {
		err = m.Set(enabled)
	}
	if err != nil {
		logger.Warn("autostart not applied", "enabled", enabled, "error", err)
		return
	}
	logger.Debug("autostart applied", "enabled", enabled)
}
