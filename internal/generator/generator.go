// Package generator composes derivation and rendering behind a single
// Generate call. It holds no state: every call is a pure function of its
// Options and may run concurrently with others.
package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"easypass/internal/charset"
	"easypass/internal/derive"
	"easypass/internal/security"
)

// Limits on user-facing options.
const (
	MinLength = 1
	MaxLength = 256
)

// ErrConfig reports invalid or missing generation options. It is the only
// user-fixable failure.
var ErrConfig = errors.New("invalid generation options")

// Options fully describes one generation.
type Options struct {
	// MasterKey is borrowed for the duration of Generate and never copied
	// into retained state.
	MasterKey []byte

	// Site is the site identifier as typed; it is canonicalised internally.
	Site string

	// Counter rotates the password for a site; starts at 1.
	Counter int

	// Length is the exact password length in secure mode.
	Length int

	// Classes are the enabled character classes.
	Classes charset.Class

	// Mode selects secure (Argon2id) or simple (concatenation) generation.
	Mode derive.Mode
}

// Validate checks the invariants that must hold before any derivation.
func (o Options) Validate() error {
	if len(o.MasterKey) == 0 {
		return fmt.Errorf("%w: master key not set", ErrConfig)
	}
	if o.Site == "" {
		return fmt.Errorf("%w: site is empty", ErrConfig)
	}
	if o.Mode == derive.ModeSimple {
		return nil
	}
	if o.Mode != derive.ModeSecure {
		return fmt.Errorf("%w: unknown mode %d", ErrConfig, o.Mode)
	}
	if o.Counter < 1 {
		return fmt.Errorf("%w: counter must be >= 1, got %d", ErrConfig, o.Counter)
	}
	if o.Length < MinLength || o.Length > MaxLength {
		return fmt.Errorf("%w: length must be in [%d, %d], got %d", ErrConfig, MinLength, MaxLength, o.Length)
	}
	if o.Classes&charset.All == 0 {
		return fmt.Errorf("%w: at least one character class must be enabled", ErrConfig)
	}
	if o.Length < o.Classes.Count() {
		return fmt.Errorf("%w: length %d cannot hold %d required classes (%s)",
			ErrConfig, o.Length, o.Classes.Count(), o.Classes)
	}
	return nil
}

// Password is a generated password. It redacts itself when formatted or
// marshalled; use Reveal to obtain the text and Wipe once it has been
// handed off.
type Password []byte

// String redacts the password.
func (p Password) String() string { return "[REDACTED]" }

// Format implements fmt.Formatter so every verb is redacted.
func (p Password) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, "[REDACTED]")
}

// MarshalJSON redacts the password.
func (p Password) MarshalJSON() ([]byte, error) { return json.Marshal("[REDACTED]") }

// Reveal returns the password text. The returned string cannot be wiped;
// prefer passing the Password itself where possible.
func (p Password) Reveal() string { return string(p) }

// Len returns the password length in bytes.
func (p Password) Len() int { return len(p) }

// Wipe zeroes the password.
func (p Password) Wipe() { security.Wipe(p) }

// Generate derives the password for opts.
func Generate(opts Options) (Password, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	required := 0
	if opts.Mode == derive.ModeSecure {
		required = charset.Required(opts.Length, opts.Classes)
	}

	material, err := derive.Derive(opts.MasterKey, opts.Site, opts.Counter, opts.Mode, required)
	if err != nil {
		if errors.Is(err, derive.ErrEmptyMasterKey) && opts.Mode == derive.ModeSimple {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		return nil, fmt.Errorf("derive: %w", err)
	}

	if opts.Mode == derive.ModeSimple {
		// The material is the password; ownership moves to the caller.
		return Password(material), nil
	}
	defer material.Wipe()

	out, err := charset.Render(material, opts.Length, opts.Classes)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return Password(out), nil
}
