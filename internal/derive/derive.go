// Package derive turns a master key, a site identifier and a counter into
// deterministic byte material.
//
// Secure mode runs Argon2id over the master key with a salt bound to the
// canonical site and counter. Simple mode is the legacy concatenation
// "masterKey!site": it performs no hashing and exists only for sites that
// already use such passwords.
package derive

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"

	"easypass/internal/security"

	"golang.org/x/crypto/argon2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Mode selects how material is derived.
type Mode int

const (
	// ModeSecure derives material with Argon2id.
	ModeSecure Mode = iota
	// ModeSimple concatenates the master key and the site.
	ModeSimple
)

// String returns the mode name used in configuration and logs.
func (m Mode) String() string {
	switch m {
	case ModeSecure:
		return "secure"
	case ModeSimple:
		return "simple"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name. "argon2id" and "concatenation" are
// accepted as aliases.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "secure", "argon2id", "":
		return ModeSecure, nil
	case "simple", "concatenation":
		return ModeSimple, nil
	default:
		return ModeSecure, fmt.Errorf("unknown generation mode %q", s)
	}
}

// Argon2id parameters. Changing any of them changes every password.
const (
	MemoryKiB   uint32 = 19456
	Iterations  uint32 = 2
	Parallelism uint8  = 1

	// MinOutput is the smallest amount of material produced in secure mode.
	MinOutput = 64

	// maxOutput bounds the requested material.
	maxOutput = 1 << 16
)

// SimpleSeparator joins master key and site in simple mode.
const SimpleSeparator = '!'

// saltSeparator separates the canonical site from the counter inside the
// salt digest. Sites never contain NUL.
const saltSeparator = 0x00

var (
	// ErrInvalidParameters reports a KDF misconfiguration. It indicates a
	// programming error, not bad user input.
	ErrInvalidParameters = errors.New("invalid derivation parameters")

	// ErrEmptyMasterKey is returned when no master key is available.
	ErrEmptyMasterKey = errors.New("master key is empty")

	// ErrEmptySite is returned for an empty site identifier.
	ErrEmptySite = errors.New("site is empty")
)

// Material is derived key material. It must be wiped with Wipe once
// rendered.
type Material []byte

// Wipe zeroes the material.
func (m Material) Wipe() {
	security.Wipe(m)
}

// Canonical returns the site identifier used for the secure salt: lower-cased
// with Unicode case mapping.
func Canonical(site string) string {
	return cases.Lower(language.Und).String(site)
}

// Salt returns SHA-256(canonical(site) || 0x00 || decimal(counter)).
func Salt(site string, counter int) []byte {
	h := sha256.New()
	h.Write([]byte(Canonical(site)))
	h.Write([]byte{saltSeparator})
	h.Write([]byte(strconv.Itoa(counter)))
	return h.Sum(nil)
}

// Derive produces material for one generation. masterKey is borrowed and
// never retained. required is the minimum number of bytes the caller will
// consume; secure mode always produces at least MinOutput bytes.
func Derive(masterKey []byte, site string, counter int, mode Mode, required int) (Material, error) {
	if site == "" {
		return nil, ErrEmptySite
	}

	switch mode {
	case ModeSecure:
		return deriveSecure(masterKey, site, counter, required)
	case ModeSimple:
		return deriveSimple(masterKey, site)
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidParameters, mode)
	}
}

func deriveSecure(masterKey []byte, site string, counter int, required int) (Material, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParameters, ErrEmptyMasterKey)
	}
	if counter < 1 {
		return nil, fmt.Errorf("%w: counter %d", ErrInvalidParameters, counter)
	}
	if required < 0 || required > maxOutput {
		return nil, fmt.Errorf("%w: output length %d", ErrInvalidParameters, required)
	}

	keyLen := max(required, MinOutput)
	out := argon2.IDKey(masterKey, Salt(site, counter), Iterations, MemoryKiB, Parallelism, uint32(keyLen))
	return Material(out), nil
}

func deriveSimple(masterKey []byte, site string) (Material, error) {
	if len(masterKey) == 0 {
		return nil, ErrEmptyMasterKey
	}

	// The site is used as typed so existing passwords keep working.
	out := make([]byte, 0, len(masterKey)+1+len(site))
	out = append(out, masterKey...)
	out = append(out, SimpleSeparator)
	out = append(out, site...)
	return Material(out), nil
}
