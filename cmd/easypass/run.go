package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"easypass/internal/config"
	"easypass/internal/inject"
	"easypass/internal/keystroke"
	"easypass/internal/logging"
	"easypass/internal/notify"
	"easypass/internal/replace"
	"easypass/internal/security"
	"easypass/internal/sentinel"
)

type runOptions struct {
	dryRun bool
	prompt bool
}

func (a *app) runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the replacement daemon in the foreground",
		Long: `Watch the keyboard and replace completed triggers with passwords.

Key events are read from /dev/input, so the user must be allowed to read
keyboard devices (usually the "input" group). Replacements are typed with
wtype on Wayland or xdotool on X11. The daemon reloads its configuration
when the file changes or on SIGHUP; the master key is only read at start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print replacements instead of typing them")
	cmd.Flags().BoolVar(&opts.prompt, "prompt", false, "ask for the master key even if one is configured")
	return cmd
}

func (a *app) run(cmd *cobra.Command, opts runOptions) error {
	loader := config.NewLoader(a.path())
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := a.setupLogging(cfg, cmd.ErrOrStderr())
	if err != nil {
		discardKey(cfg)
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	if err := security.DisableCoreDumps(); err != nil {
		logger.Warn("could not disable core dumps", "error", err)
	}
	if security.IsRoot() {
		logger.Warn("running as root is not needed; add the user to the input group instead")
	}
	applyAutostart(logger, cfg.Default.Autostart)

	key, err := a.masterKey(cmd, cfg, opts.prompt)
	if err != nil {
		return err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		key.Destroy()
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		key.Destroy()
		return err
	}
	defer st.Close()

	resolver := config.NewResolver(cfg, key, counterStore(st))
	defer resolver.Close()

	backend := cfg.Injection.Backend
	if opts.dryRun {
		backend = inject.BackendStdout
	}
	act, err := inject.New(inject.Options{
		Backend: backend,
		Delay:   time.Duration(cfg.Injection.KeystrokeDelayMs) * time.Millisecond,
		Stdout:  cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	observers := replace.Observers{replace.LogObserver{Logger: logger.Logger}}
	if cfg.Notify.Desktop && !opts.dryRun {
		observers = append(observers, notify.New(logger.Logger))
	}

	source := keystroke.New()
	if ok, reason := source.Available(); !ok {
		return fmt.Errorf("%w: %s", keystroke.ErrNotAvailable, reason)
	}

	s, err := sentinel.New(cfg, sentinel.Options{
		Source:   source,
		Actuator: act,
		Resolver: resolver,
		Observer: observers,
		Focus:    sentinel.NewFocusTracker(sentinel.DefaultFocusTrackerConfig().PollInterval),
		LockPath: config.LockPath(),
		Logger:   logger.Logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx); err != nil {
		return err
	}
	defer s.Stop()

	mgr := daemonManager()
	if err := mgr.WriteState(&sentinel.DaemonState{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Version:   Version,
		Backend:   inject.Name(act),
		DryRun:    opts.dryRun,
	}); err != nil {
		logger.Warn("write daemon state", "error", err)
	}
	defer mgr.Cleanup()

	reload := func(next *config.Config) {
		if next.HasMasterKey() {
			logger.Warn("master key changes take effect after a restart")
		}
		discardKey(next)
		if err := s.Reload(next); err != nil {
			logger.Error("reload rejected", "error", err)
			return
		}
		applyAutostart(logger, next.Default.Autostart)
	}
	loader.OnChange(reload)
	if err := loader.Watch(); err != nil {
		logger.Warn("config file watching disabled", "error", err)
	}
	defer loader.Close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("easypass running",
		"backend", inject.Name(act),
		"prefix", cfg.Default.TriggerPrefix,
		"simple_prefix", cfg.Default.ConcatTriggerPrefix,
		"dry_run", opts.dryRun,
	)

	return waitLoop(ctx, logger, loader, hup, reload)
}

// waitLoop runs until ctx is done, reloading on SIGHUP and logging watch
// errors.
func waitLoop(ctx context.Context, logger *logging.Logger, loader *config.Loader, hup <-chan os.Signal, reload func(*config.Config)) error {
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hup:
			next, err := loader.Load()
			if err != nil {
				logger.Error("reload failed", "error", err)
				continue
			}
			reload(next)
		case err := <-loader.Errors():
			logger.Warn("config watch", "error", err)
		}
	}
}
