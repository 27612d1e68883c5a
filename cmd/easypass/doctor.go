package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"easypass/internal/config"
	"easypass/internal/health"
	"easypass/internal/inject"
	"easypass/internal/keystroke"
	"easypass/internal/notify"
	"easypass/internal/security"
	"easypass/internal/sentinel"
)

var errUnhealthy = errors.New("environment cannot run the daemon")

func (a *app) doctorCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this session can run the daemon",
		Long: `Probe everything "easypass run" depends on: readable keyboard devices,
an injection tool, focus tracking, the counter database, desktop
notifications and the master key. Exits non-zero when a required part is
missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			hasKey := cfg.HasMasterKey()
			discardKey(cfg)

			checker := health.NewChecker()
			registerChecks(checker, cfg, hasKey, keystroke.New(), sentinel.NewFocusTracker(0))
			results := checker.Check(cmd.Context())
			overall := health.Overall(results)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(struct {
					Status     health.Status        `json:"status"`
					Components []health.CheckResult `json:"components"`
				}{overall, results}); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					line := fmt.Sprintf("%-14s %-10s %s", r.Name, r.Status, r.Message)
					if r.Error != "" {
						line += ": " + r.Error
					}
					fmt.Fprintln(out, line)
				}
				fmt.Fprintf(out, "\nOverall: %s\n", overall)
			}

			if overall == health.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

// availability is implemented by key sources and focus trackers.
type availability interface {
	Available() (bool, string)
}

func registerChecks(c *health.Checker, cfg *config.Config, hasKey bool, source, focus availability) {
	c.RegisterFunc("keyboard", true, health.AvailableCheck(source.Available))

	c.RegisterFunc("injection", true, func(ctx context.Context) health.CheckResult {
		act, err := inject.New(inject.Options{Backend: cfg.Injection.Backend})
		if err != nil {
			return health.Failed("no way to type replacements", err)
		}
		return health.Healthy("backend %s", inject.Name(act))
	})

	c.RegisterFunc("focus", false, func(ctx context.Context) health.CheckResult {
		if ok, reason := focus.Available(); !ok {
			return health.Degraded("%s", reason)
		}
		return health.Healthy("available")
	})

	c.RegisterFunc("counter store", true, func(ctx context.Context) health.CheckResult {
		st, err := openStore(cfg)
		if err != nil {
			return health.Failed("cannot open database", err)
		}
		if st == nil {
			return health.Healthy("disabled")
		}
		defer st.Close()
		return health.PingCheck("counter store", st.Ping)(ctx)
	})

	if cfg.Notify.Desktop {
		c.Register(&health.Component{
			Name:    "notifications",
			Timeout: 3 * time.Second,
			Check:   health.PingCheck("notification service", notify.New(nil).Ping),
		})
	}

	c.RegisterFunc("master key", false, func(ctx context.Context) health.CheckResult {
		if !hasKey {
			return health.Degraded("not configured; run will prompt for it")
		}
		return health.Healthy("configured")
	})

	c.RegisterFunc("process", false, func(ctx context.Context) health.CheckResult {
		if err := security.DisableCoreDumps(); err != nil {
			return health.Failed("cannot disable core dumps", err)
		}
		if security.CoreDumpsEnabled() {
			return health.Degraded("core dumps still enabled")
		}
		if security.IsRoot() {
			return health.Degraded("running as root; the input group is enough")
		}
		return health.Healthy("core dumps disabled")
	})
}
