package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"easypass/internal/config"
	"easypass/internal/sentinel"
)

// stopTimeout bounds how long stop waits for the daemon to exit.
const stopTimeout = 5 * time.Second

func daemonManager() *sentinel.DaemonManager {
	return sentinel.NewDaemonManager(config.LockPath())
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			st := daemonManager().Status()
			if !st.Running {
				fmt.Fprintln(out, "Daemon: not running")
				return
			}

			fmt.Fprintf(out, "Daemon: running (PID %d)\n", st.PID)
			if !st.StartedAt.IsZero() {
				fmt.Fprintf(out, "Started: %s (up %s)\n", st.StartedAt.Format(time.DateTime), st.Uptime.Round(time.Second))
			}
			if st.Version != "" {
				fmt.Fprintf(out, "Version: %s\n", st.Version)
			}
			if st.Backend != "" {
				fmt.Fprintf(out, "Backend: %s\n", st.Backend)
			}
			if st.DryRun {
				fmt.Fprintln(out, "Mode:    dry run")
			}
		},
	}
}

func (a *app) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := daemonManager()
			if !m.IsRunning() {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running.")
				return nil
			}
			if err := m.SignalStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}
			if err := m.WaitForStop(stopTimeout); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped.")
			return nil
		},
	}
}

func (a *app) reloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the running daemon re-read its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemonManager().SignalReload(); err != nil {
				return fmt.Errorf("reload daemon: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Reload requested.")
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "easypass %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
