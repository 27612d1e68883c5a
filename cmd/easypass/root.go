package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"easypass/internal/config"
	"easypass/internal/logging"
	"easypass/internal/security"
	"easypass/internal/store"
)

// app holds the global flags and the streams commands use.
type app struct {
	configPath string
	verbose    bool

	// stdin is read by the master key prompt when it is a terminal.
	stdin *os.File
}

func newRootCmd() *cobra.Command {
	a := &app{stdin: os.Stdin}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "easypass",
		Short: "Type a trigger, get a password",
		Long: `easypass watches the keyboard for a trigger prefix followed by a site and
a terminator, e.g. ";;github.com<Space>", erases what was typed and types
the password for that site. Passwords are derived with Argon2id from a
master key and the site, so nothing is stored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		a.runCmd(),
		a.generateCmd(),
		a.replayCmd(),
		a.counterCmd(),
		a.configCmd(),
		a.statusCmd(),
		a.stopCmd(),
		a.reloadCmd(),
		a.doctorCmd(),
		a.autostartCmd(),
		versionCmd(),
	)
	return root
}

// path returns the config file in use: the flag, an existing file in a
// standard location, or the default path.
func (a *app) path() string {
	if a.configPath != "" {
		return a.configPath
	}
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return config.ConfigPath()
}

// loadConfig reads and validates the configuration. A missing file yields
// the defaults.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(a.path()).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogging builds the daemon logger from the configuration.
func (a *app) setupLogging(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		level = logging.LevelDebug
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := &logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   config.ExpandPath(cfg.Logging.FilePath),
		MaxSize:    int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
	if cfg.Logging.Output == "stderr" {
		lc.Writer = stderr
	}
	return logging.New(lc)
}

var errNoTerminal = errors.New("stdin is not a terminal")

// masterKey returns the master key in locked memory. The configured key
// is used unless prompt is set; without one the user is asked on the
// terminal.
func (a *app) masterKey(cmd *cobra.Command, cfg *config.Config, prompt bool) (*security.SecureBytes, error) {
	if !prompt && cfg.HasMasterKey() {
		return cfg.TakeMasterKey()
	}
	discardKey(cfg)

	fd := int(a.stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%w (%v): set EASYPASS_MASTER_KEY or master_key", config.ErrNoMasterKey, errNoTerminal)
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Master key: ")
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("read master key: %w", err)
	}
	if len(data) == 0 {
		return nil, config.ErrNoMasterKey
	}
	return security.FromBytes(data)
}

// discardKey wipes a master key the caller does not use.
func discardKey(cfg *config.Config) {
	if key, err := cfg.TakeMasterKey(); err == nil {
		key.Destroy()
	}
}

// openStore opens the counter database. It returns nil when the store is
// disabled.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.CounterDB == "" {
		return nil, nil
	}
	st, err := store.Open(config.ExpandPath(cfg.Storage.CounterDB))
	if err != nil {
		return nil, fmt.Errorf("open counter store: %w", err)
	}
	return st, nil
}

// counterStore adapts st for the resolver; a disabled store is a nil
// interface rather than a nil pointer.
func counterStore(st *store.Store) config.CounterStore {
	if st == nil {
		return nil
	}
	return st
}
