// Package charset maps pseudo-random bytes onto a constrained password
// alphabet while guaranteeing that every enabled character class appears
// at least once.
//
// The alphabets are fixed ASCII lists so that the same material renders to
// the same password on every platform and keyboard layout. The symbol set
// has 32 members, which divides 256, so the modulo reduction over a byte is
// unbiased for symbols; the 26-, 10- and combined alphabets carry a small
// modulo bias that is accepted.
package charset

import (
	"errors"
	"fmt"
	"strings"

	"easypass/internal/security"
)

// Class is a bitset of character classes.
type Class uint8

const (
	Lower Class = 1 << iota
	Upper
	Digit
	Symbol

	// All enables every class.
	All = Lower | Upper | Digit | Symbol
)

// Fixed alphabets, in enforcement order.
const (
	LowerAlphabet  = "abcdefghijklmnopqrstuvwxyz"
	UpperAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DigitAlphabet  = "0123456789"
	SymbolAlphabet = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// ErrInsufficientMaterial is returned when the material runs out before
// every position has been filled. With correctly sized input it never
// happens.
var ErrInsufficientMaterial = errors.New("insufficient derived material")

// ErrNoClasses is returned when rendering is asked for an empty class set.
var ErrNoClasses = errors.New("no character class enabled")

// ErrLengthTooShort is returned when the length cannot hold one character
// of every enabled class.
var ErrLengthTooShort = errors.New("length shorter than the number of classes")

// order is the fixed class enforcement order.
var order = [...]Class{Lower, Upper, Digit, Symbol}

// Count returns the number of enabled classes.
func (c Class) Count() int {
	n := 0
	for _, cl := range order {
		if c&cl != 0 {
			n++
		}
	}
	return n
}

// Has reports whether every class in other is enabled in c.
func (c Class) Has(other Class) bool {
	return c&other == other
}

// Alphabet returns the alphabet of a single class, or the ordered union of
// alphabets for a set.
func (c Class) Alphabet() string {
	var b strings.Builder
	for _, cl := range order {
		if c&cl == 0 {
			continue
		}
		switch cl {
		case Lower:
			b.WriteString(LowerAlphabet)
		case Upper:
			b.WriteString(UpperAlphabet)
		case Digit:
			b.WriteString(DigitAlphabet)
		case Symbol:
			b.WriteString(SymbolAlphabet)
		}
	}
	return b.String()
}

// String returns a comma separated list of class names.
func (c Class) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, cl := range order {
		if c&cl == 0 {
			continue
		}
		switch cl {
		case Lower:
			names = append(names, "lower")
		case Upper:
			names = append(names, "upper")
		case Digit:
			names = append(names, "digit")
		case Symbol:
			names = append(names, "symbol")
		}
	}
	return strings.Join(names, ",")
}

// Of returns the class a byte belongs to, or 0 if it is in none of the
// alphabets.
func Of(ch byte) Class {
	switch {
	case ch >= 'a' && ch <= 'z':
		return Lower
	case ch >= 'A' && ch <= 'Z':
		return Upper
	case ch >= '0' && ch <= '9':
		return Digit
	case strings.IndexByte(SymbolAlphabet, ch) >= 0:
		return Symbol
	}
	return 0
}

// Required returns the number of material bytes Render may consume for the
// given length and class set: one per position plus two per class for the
// minimum enforcement passes.
func Required(length int, classes Class) int {
	return length + 2*classes.Count()
}

// cursor walks the material one byte at a time.
type cursor struct {
	material []byte
	pos      int
}

func (c *cursor) next() (byte, error) {
	if c.pos >= len(c.material) {
		return 0, ErrInsufficientMaterial
	}
	b := c.material[c.pos]
	c.pos++
	return b, nil
}

// Render turns material into a password of exactly length bytes drawn from
// the enabled classes, with at least one character of each enabled class.
// The result is a fresh slice; the caller owns and should wipe it.
func Render(material []byte, length int, classes Class) ([]byte, error) {
	if classes&All == 0 {
		return nil, ErrNoClasses
	}
	classes &= All
	if length < classes.Count() {
		return nil, fmt.Errorf("%w: length %d, %d classes", ErrLengthTooShort, length, classes.Count())
	}

	alphabet := classes.Alphabet()
	cur := &cursor{material: material}
	out := make([]byte, length)

	for i := range out {
		b, err := cur.next()
		if err != nil {
			security.Wipe(out)
			return nil, fmt.Errorf("first pass at position %d: %w", i, err)
		}
		out[i] = alphabet[int(b)%len(alphabet)]
	}

	var counts [len(order)]int
	for _, ch := range out {
		counts[indexOf(Of(ch))]++
	}

	for idx, cl := range order {
		if classes&cl == 0 || counts[idx] > 0 {
			continue
		}

		b, err := cur.next()
		if err != nil {
			security.Wipe(out)
			return nil, fmt.Errorf("placing %s: %w", cl, err)
		}
		target, ok := pickTarget(out, int(b)%length, &counts)
		if !ok {
			// Unreachable while length >= classes.Count().
			security.Wipe(out)
			return nil, fmt.Errorf("placing %s: %w", cl, ErrLengthTooShort)
		}

		b, err = cur.next()
		if err != nil {
			security.Wipe(out)
			return nil, fmt.Errorf("placing %s: %w", cl, err)
		}
		set := cl.Alphabet()
		counts[indexOf(Of(out[target]))]--
		out[target] = set[int(b)%len(set)]
		counts[idx]++
	}

	return out, nil
}

// pickTarget probes forward from start for a position whose class still
// has another representative elsewhere in out.
func pickTarget(out []byte, start int, counts *[len(order)]int) (int, bool) {
	for i := 0; i < len(out); i++ {
		pos := (start + i) % len(out)
		if counts[indexOf(Of(out[pos]))] > 1 {
			return pos, true
		}
	}
	return 0, false
}

func indexOf(c Class) int {
	switch c {
	case Lower:
		return 0
	case Upper:
		return 1
	case Digit:
		return 2
	default:
		return 3
	}
}
