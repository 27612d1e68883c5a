package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"easypass/internal/charset"
	"easypass/internal/generator"
	"easypass/internal/trigger"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ErrNoMasterKey is returned when no master key is configured.
var ErrNoMasterKey = fmt.Errorf("%w: master key not set", generator.ErrConfig)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDefault(&c.Default)...)
	errs = append(errs, validateTrigger(&c.Trigger)...)
	errs = append(errs, validateInjection(&c.Injection)...)
	errs = append(errs, validateLogging(&c.Logging)...)

	for site, sc := range c.Sites {
		errs = append(errs, validateSite(site, c.Default, sc)...)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDefault(d *PasswordDefaults) ValidationErrors {
	var errs ValidationErrors

	if d.Length < generator.MinLength || d.Length > generator.MaxLength {
		errs = append(errs, *RangeError("default.length", generator.MinLength, generator.MaxLength))
	}

	cl := classes(d.Lowercase, d.Uppercase, d.Digits, d.Symbols)
	if cl == 0 {
		errs = append(errs, ValidationError{
			Field:   "default",
			Message: "at least one of lowercase, uppercase, digits, symbols must be enabled",
		})
	} else if d.Length < cl.Count() {
		errs = append(errs, ValidationError{
			Field:   "default.length",
			Message: fmt.Sprintf("length %d cannot hold %d required classes", d.Length, cl.Count()),
		})
	}

	if d.Counter < 1 {
		errs = append(errs, ValidationError{
			Field:   "default.counter",
			Message: "counter must be at least 1",
		})
	}

	if msg := checkPrefix(d.TriggerPrefix); msg != "" {
		errs = append(errs, ValidationError{Field: "default.trigger_prefix", Message: msg})
	}
	if d.ConcatTriggerPrefix != "" {
		if msg := checkPrefix(d.ConcatTriggerPrefix); msg != "" {
			errs = append(errs, ValidationError{Field: "default.concat_trigger_prefix", Message: msg})
		}
		if strings.EqualFold(d.TriggerPrefix, d.ConcatTriggerPrefix) {
			errs = append(errs, ValidationError{
				Field:   "default.concat_trigger_prefix",
				Message: "must differ from trigger_prefix",
			})
		}
	}

	return errs
}

func checkPrefix(p string) string {
	if p == "" {
		return "prefix is required"
	}
	if len([]rune(p)) > 16 {
		return "prefix longer than 16 characters"
	}
	for _, r := range p {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return fmt.Sprintf("prefix contains non-printable or space character %q", r)
		}
	}
	return ""
}

func validateTrigger(t *TriggerConfig) ValidationErrors {
	var errs ValidationErrors

	terms, err := trigger.ParseTerminators(t.Terminators)
	if err != nil {
		errs = append(errs, ValidationError{Field: "trigger.terminators", Message: err.Error()})
	} else if terms == 0 {
		errs = append(errs, ValidationError{
			Field:   "trigger.terminators",
			Message: "at least one terminator is required",
		})
	}

	if t.MaxSiteLength < 1 || t.MaxSiteLength > 256 {
		errs = append(errs, *RangeError("trigger.max_site_length", 1, 256))
	}

	return errs
}

func validateInjection(i *InjectionConfig) ValidationErrors {
	var errs ValidationErrors

	switch i.Backend {
	case "auto", "xdotool", "wtype", "stdout":
	default:
		errs = append(errs, ValidationError{
			Field:   "injection.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: auto, xdotool, wtype, stdout)", i.Backend),
		})
	}

	if i.KeystrokeDelayMs < 0 || i.KeystrokeDelayMs > 1000 {
		errs = append(errs, *RangeError("injection.keystroke_delay_ms", 0, 1000))
	}
	if i.GuardDelayMs < 0 || i.GuardDelayMs > 5000 {
		errs = append(errs, *RangeError("injection.guard_delay_ms", 0, 5000))
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file' or 'both'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file, both)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	return errs
}

func validateSite(site string, d PasswordDefaults, sc SiteConfig) ValidationErrors {
	var errs ValidationErrors
	field := fmt.Sprintf("sites.%q", site)

	if strings.TrimSpace(site) == "" {
		errs = append(errs, ValidationError{Field: "sites", Message: "empty site name"})
	}

	length := d.Length
	if sc.Length != nil {
		length = *sc.Length
		if length < generator.MinLength || length > generator.MaxLength {
			errs = append(errs, *RangeError(field+".length", generator.MinLength, generator.MaxLength))
		}
	}
	if sc.Counter != nil && *sc.Counter < 1 {
		errs = append(errs, ValidationError{Field: field + ".counter", Message: "counter must be at least 1"})
	}

	pick := func(o *bool, def bool) bool {
		if o != nil {
			return *o
		}
		return def
	}
	cl := classes(
		pick(sc.Lowercase, d.Lowercase),
		pick(sc.Uppercase, d.Uppercase),
		pick(sc.Digits, d.Digits),
		pick(sc.Symbols, d.Symbols),
	)
	switch {
	case cl&charset.All == 0:
		errs = append(errs, ValidationError{Field: field, Message: "all character classes disabled"})
	case length < cl.Count():
		errs = append(errs, ValidationError{
			Field:   field + ".length",
			Message: fmt.Sprintf("length %d cannot hold %d required classes", length, cl.Count()),
		})
	}

	return errs
}

// ExpandPath expands a leading "~/" to the home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
