// Package config handles configuration loading, validation, and management for easypass.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"easypass/internal/charset"
	"easypass/internal/derive"
	"easypass/internal/security"
	"easypass/internal/trigger"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete easypass configuration.
//
// A Config is treated as immutable once loaded; reloads produce a new
// value which replaces the old one.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Default holds the password defaults and trigger prefixes.
	Default PasswordDefaults `toml:"default" json:"default" yaml:"default"`

	// Trigger configures recognition of trigger sequences.
	Trigger TriggerConfig `toml:"trigger" json:"trigger" yaml:"trigger"`

	// Injection configures how replacements are typed.
	Injection InjectionConfig `toml:"injection" json:"injection" yaml:"injection"`

	// Storage configures persistence of per-site counters.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Notify configures desktop notifications on failures.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// Sites holds per-site overrides keyed by lower-cased site.
	Sites map[string]SiteConfig `toml:"sites" json:"sites,omitempty" yaml:"sites,omitempty"`

	// keyOwned is set when MasterKey was decoded from a file into memory
	// this package allocated, so it may be wiped in place.
	keyOwned bool
}

// PasswordDefaults holds the settings applied to every site.
type PasswordDefaults struct {
	// MasterKey is the secret all passwords derive from. Prefer the
	// EASYPASS_MASTER_KEY environment variable or the interactive prompt.
	MasterKey string `toml:"master_key" json:"master_key" yaml:"master_key"`

	// Length is the password length in secure mode.
	Length int `toml:"length" json:"length" yaml:"length"`

	Lowercase bool `toml:"lowercase" json:"lowercase" yaml:"lowercase"`
	Uppercase bool `toml:"uppercase" json:"uppercase" yaml:"uppercase"`
	Digits    bool `toml:"digits" json:"digits" yaml:"digits"`
	Symbols   bool `toml:"symbols" json:"symbols" yaml:"symbols"`

	// Counter rotates every password at once; starts at 1.
	Counter int `toml:"counter" json:"counter" yaml:"counter"`

	// TriggerPrefix starts a secure (Argon2id) trigger.
	TriggerPrefix string `toml:"trigger_prefix" json:"trigger_prefix" yaml:"trigger_prefix"`

	// ConcatTriggerPrefix starts a simple (concatenation) trigger. Empty
	// disables simple mode.
	ConcatTriggerPrefix string `toml:"concat_trigger_prefix" json:"concat_trigger_prefix" yaml:"concat_trigger_prefix"`

	// Autostart starts the daemon when the user logs in. The login entry
	// is written or removed on start and on every reload.
	Autostart bool `toml:"autostart" json:"autostart" yaml:"autostart"`
}

// SiteConfig overrides the defaults for one site. Nil fields inherit.
type SiteConfig struct {
	Length    *int  `toml:"length,omitempty" json:"length,omitempty" yaml:"length,omitempty"`
	Lowercase *bool `toml:"lowercase,omitempty" json:"lowercase,omitempty" yaml:"lowercase,omitempty"`
	Uppercase *bool `toml:"uppercase,omitempty" json:"uppercase,omitempty" yaml:"uppercase,omitempty"`
	Digits    *bool `toml:"digits,omitempty" json:"digits,omitempty" yaml:"digits,omitempty"`
	Symbols   *bool `toml:"symbols,omitempty" json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Counter   *int  `toml:"counter,omitempty" json:"counter,omitempty" yaml:"counter,omitempty"`
}

// TriggerConfig holds trigger recognition settings.
type TriggerConfig struct {
	// Terminators lists the keys that complete a trigger: "space",
	// "enter" and/or "tab".
	Terminators []string `toml:"terminators" json:"terminators" yaml:"terminators"`

	// MaxSiteLength aborts a capture once the site grows past it.
	MaxSiteLength int `toml:"max_site_length" json:"max_site_length" yaml:"max_site_length"`
}

// InjectionConfig holds replacement typing settings.
type InjectionConfig struct {
	// Backend is "auto", "xdotool", "wtype" or "stdout".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// KeystrokeDelayMs is the delay between synthetic keystrokes.
	KeystrokeDelayMs int `toml:"keystroke_delay_ms" json:"keystroke_delay_ms" yaml:"keystroke_delay_ms"`

	// GuardDelayMs keeps the injection guard raised after typing so the
	// tail of the synthetic input is not fed back into recognition.
	GuardDelayMs int `toml:"guard_delay_ms" json:"guard_delay_ms" yaml:"guard_delay_ms"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// CounterDB is the path to the SQLite counter database. Empty
	// disables the store and counters come from the config only.
	CounterDB string `toml:"counter_db" json:"counter_db" yaml:"counter_db"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// NotifyConfig holds notification settings.
type NotifyConfig struct {
	// Desktop sends a desktop notification when a replacement fails.
	Desktop bool `toml:"desktop" json:"desktop" yaml:"desktop"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Default: PasswordDefaults{
			Length:              16,
			Lowercase:           true,
			Uppercase:           true,
			Digits:              true,
			Symbols:             true,
			Counter:             1,
			TriggerPrefix:       ";;",
			ConcatTriggerPrefix: "!!",
		},
		Trigger: TriggerConfig{
			Terminators:   []string{"space", "enter", "tab"},
			MaxSiteLength: trigger.DefaultMaxSiteLength,
		},
		Injection: InjectionConfig{
			Backend:          "auto",
			KeystrokeDelayMs: 5,
			GuardDelayMs:     20,
		},
		Storage: StorageConfig{
			CounterDB: filepath.Join(DataDir(), "counters.db"),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "easypass.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   true,
		},
		Notify: NotifyConfig{
			Desktop: true,
		},
		Sites: map[string]SiteConfig{},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(EasypassDir(), "config.toml")
}

// EasypassDir returns the configuration directory.
// Uses platform-specific paths or the EASYPASS_CONFIG_DIR override.
func EasypassDir() string {
	if envDir := os.Getenv("EASYPASS_CONFIG_DIR"); envDir != "" {
		return envDir
	}
	return PlatformConfigDir()
}

// DataDir returns the data directory holding the counter database.
// Uses platform-specific paths or the EASYPASS_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("EASYPASS_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories for the counter database and
// log file.
func (c *Config) EnsureDirectories() error {
	var dirs []string
	if c.Storage.CounterDB != "" {
		dirs = append(dirs, filepath.Dir(ExpandPath(c.Storage.CounterDB)))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(ExpandPath(c.Logging.FilePath)))
	}

	for _, dir := range dirs {
		if err := security.EnsureSecureDir(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with EASYPASS_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("EASYPASS_MASTER_KEY"); v != "" {
		if c.keyOwned {
			security.WipeString(&c.Default.MasterKey)
		}
		c.Default.MasterKey = v
		c.keyOwned = false
	}
	if v := os.Getenv("EASYPASS_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("EASYPASS_INJECTION_BACKEND"); v != "" {
		c.Injection.Backend = v
	}
	if v := os.Getenv("EASYPASS_COUNTER_DB"); v != "" {
		c.Storage.CounterDB = v
	}
}

// Clone returns a deep copy of the configuration. The master key is not
// copied.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Default.MasterKey = ""
	clone.keyOwned = false
	clone.Trigger.Terminators = append([]string{}, c.Trigger.Terminators...)
	clone.Sites = make(map[string]SiteConfig, len(c.Sites))
	for k, v := range c.Sites {
		clone.Sites[k] = v
	}
	return &clone
}

// HasMasterKey reports whether a master key is configured.
func (c *Config) HasMasterKey() bool {
	return c.Default.MasterKey != ""
}

// TakeMasterKey moves the configured master key into locked memory and
// clears it from the configuration. The caller owns the returned value and
// must Destroy it.
func (c *Config) TakeMasterKey() (*security.SecureBytes, error) {
	if c.Default.MasterKey == "" {
		return nil, ErrNoMasterKey
	}
	key, err := security.FromBytes([]byte(c.Default.MasterKey))
	if err != nil {
		return nil, fmt.Errorf("protect master key: %w", err)
	}
	if c.keyOwned {
		security.WipeString(&c.Default.MasterKey)
	}
	c.Default.MasterKey = ""
	c.keyOwned = false
	return key, nil
}

// PasswordSettings are the effective generation settings for a site.
type PasswordSettings struct {
	Length  int
	Classes charset.Class
	Counter int
}

// PasswordConfig merges the overrides for site over the defaults.
func (c *Config) PasswordConfig(site string) PasswordSettings {
	d := c.Default
	lower, upper, digits, symbols := d.Lowercase, d.Uppercase, d.Digits, d.Symbols
	s := PasswordSettings{Length: d.Length, Counter: d.Counter}

	if o, ok := c.Sites[derive.Canonical(site)]; ok {
		if o.Length != nil {
			s.Length = *o.Length
		}
		if o.Counter != nil {
			s.Counter = *o.Counter
		}
		if o.Lowercase != nil {
			lower = *o.Lowercase
		}
		if o.Uppercase != nil {
			upper = *o.Uppercase
		}
		if o.Digits != nil {
			digits = *o.Digits
		}
		if o.Symbols != nil {
			symbols = *o.Symbols
		}
	}
	if s.Counter < 1 {
		s.Counter = 1
	}

	s.Classes = classes(lower, upper, digits, symbols)
	return s
}

func classes(lower, upper, digits, symbols bool) charset.Class {
	var cl charset.Class
	if lower {
		cl |= charset.Lower
	}
	if upper {
		cl |= charset.Upper
	}
	if digits {
		cl |= charset.Digit
	}
	if symbols {
		cl |= charset.Symbol
	}
	return cl
}

// TriggerOptions returns the trigger prefixes for the state machine. The
// simple-mode prefix is omitted when empty.
func (c *Config) TriggerOptions() ([]trigger.Options, error) {
	terms, err := trigger.ParseTerminators(c.Trigger.Terminators)
	if err != nil {
		return nil, err
	}
	opts := []trigger.Options{{
		Prefix:        c.Default.TriggerPrefix,
		Mode:          derive.ModeSecure,
		Terminators:   terms,
		MaxSiteLength: c.Trigger.MaxSiteLength,
	}}
	if c.Default.ConcatTriggerPrefix != "" {
		opts = append(opts, trigger.Options{
			Prefix:        c.Default.ConcatTriggerPrefix,
			Mode:          derive.ModeSimple,
			Terminators:   terms,
			MaxSiteLength: c.Trigger.MaxSiteLength,
		})
	}
	return opts, nil
}

// normalizeSites lower-cases site keys so lookups match canonical sites.
func (c *Config) normalizeSites() {
	if len(c.Sites) == 0 {
		return
	}
	sites := make(map[string]SiteConfig, len(c.Sites))
	for k, v := range c.Sites {
		sites[derive.Canonical(strings.TrimSpace(k))] = v
	}
	c.Sites = sites
}
