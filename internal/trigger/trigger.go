// Package trigger recognises trigger sequences such as ";;github.com<Space>"
// in a stream of key events.
//
// A Machine consumes one event at a time and reports a Completed trigger
// when a configured prefix, a non-empty site and a terminator have been
// typed without interruption. It never consumes or suppresses input; the
// caller decides what to do with a completion.
package trigger

import (
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"easypass/internal/derive"
)

// DefaultMaxSiteLength bounds the captured site text.
const DefaultMaxSiteLength = 64

// Errors returned by New.
var (
	ErrNoPrefixes      = errors.New("no trigger prefix configured")
	ErrInvalidPrefix   = errors.New("invalid trigger prefix")
	ErrDuplicatePrefix = errors.New("duplicate trigger prefix")
)

// State is the recognition state of a Machine.
type State int

const (
	StateIdle State = iota
	StateMatching
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateMatching:
		return "matching"
	case StateCapturing:
		return "capturing"
	default:
		return "idle"
	}
}

// Options configures one trigger prefix.
type Options struct {
	Prefix        string
	Mode          derive.Mode
	Terminators   Terminators // zero means AllTerminators
	MaxSiteLength int         // zero means DefaultMaxSiteLength
}

// Completed describes a recognised trigger.
type Completed struct {
	Mode       derive.Mode
	Prefix     string
	Site       string
	Terminator Key
	At         time.Time
}

// DeleteCount is the number of characters to erase before inserting the
// replacement: the prefix and the site. The terminator stays in place.
func (c Completed) DeleteCount() int {
	return utf8.RuneCountInString(c.Prefix) + utf8.RuneCountInString(c.Site)
}

// KeepCount is the number of characters between the site and the cursor:
// the terminator, which the application received before the trigger was
// recognised.
func (c Completed) KeepCount() int {
	if c.Terminator == KeyOther {
		return 0
	}
	return 1
}

// Stats counts outcomes since the machine was created.
type Stats struct {
	Completed uint64
	Aborted   uint64
}

type entry struct {
	opts   Options
	prefix []rune
}

// Machine is the trigger recognition state machine. It is not safe for
// concurrent use; a single event loop owns it.
type Machine struct {
	entries   []entry // longest prefix first
	maxPrefix int

	state  State
	window []rune
	active int
	site   []rune

	stats Stats
}

// New builds a Machine for the given prefixes. Prefixes are compared
// case-insensitively and must be distinct.
func New(opts ...Options) (*Machine, error) {
	if len(opts) == 0 {
		return nil, ErrNoPrefixes
	}

	m := &Machine{}
	for _, o := range opts {
		p := []rune(o.Prefix)
		if len(p) == 0 {
			return nil, fmt.Errorf("%w: empty", ErrInvalidPrefix)
		}
		for _, r := range p {
			if !printable(r) {
				return nil, fmt.Errorf("%w: %q contains %q", ErrInvalidPrefix, o.Prefix, r)
			}
		}
		for _, e := range m.entries {
			if equalFold(e.prefix, p) {
				return nil, fmt.Errorf("%w: %q and %q", ErrDuplicatePrefix, e.opts.Prefix, o.Prefix)
			}
		}
		if o.Terminators == 0 {
			o.Terminators = AllTerminators
		}
		if o.MaxSiteLength <= 0 {
			o.MaxSiteLength = DefaultMaxSiteLength
		}

		// Insertion sort keeps the longest prefix first.
		i := len(m.entries)
		m.entries = append(m.entries, entry{})
		for i > 0 && len(m.entries[i-1].prefix) < len(p) {
			m.entries[i] = m.entries[i-1]
			i--
		}
		m.entries[i] = entry{opts: o, prefix: p}

		if len(p) > m.maxPrefix {
			m.maxPrefix = len(p)
		}
	}

	m.window = make([]rune, 0, m.maxPrefix+1)
	return m, nil
}

// State returns the current recognition state.
func (m *Machine) State() State { return m.state }

// Stats returns outcome counters.
func (m *Machine) Stats() Stats { return m.stats }

// Pending returns the prefix and site captured so far while capturing.
func (m *Machine) Pending() (prefix, site string, ok bool) {
	if m.state != StateCapturing {
		return "", "", false
	}
	return m.entries[m.active].opts.Prefix, string(m.site), true
}

// Reset discards all pending input and returns to Idle.
func (m *Machine) Reset() {
	m.state = StateIdle
	m.window = m.window[:0]
	m.clearSite()
}

// Feed processes one key event. It returns a completion and true when the
// event terminated a valid trigger.
func (m *Machine) Feed(ev Event) (Completed, bool) {
	ev = ev.normalize()

	switch ev.Key {
	case KeyModifier:
		return Completed{}, false

	case KeyChar:
		if ev.Modifiers.shortcut() || !printable(ev.Char) {
			m.abort()
			return Completed{}, false
		}
		if m.state == StateCapturing {
			m.capture(ev.Char)
		} else {
			m.scan(ev.Char)
		}
		return Completed{}, false

	case KeySpace, KeyEnter, KeyTab:
		if m.state != StateCapturing {
			m.Reset()
			return Completed{}, false
		}
		e := m.entries[m.active]
		if !e.opts.Terminators.Has(ev.Key) || len(m.site) == 0 {
			m.abort()
			return Completed{}, false
		}
		c := Completed{
			Mode:       e.opts.Mode,
			Prefix:     e.opts.Prefix,
			Site:       string(m.site),
			Terminator: ev.Key,
			At:         ev.Time,
		}
		m.stats.Completed++
		m.Reset()
		return c, true

	default:
		// Backspace, Delete, navigation, focus change, Escape and anything
		// unrecognised invalidate what was typed.
		m.abort()
		return Completed{}, false
	}
}

// scan tracks the tail of typed text looking for a prefix.
func (m *Machine) scan(r rune) {
	m.window = append(m.window, r)
	if len(m.window) > m.maxPrefix {
		copy(m.window, m.window[1:])
		m.window = m.window[:m.maxPrefix]
	}

	for i, e := range m.entries {
		if hasSuffixFold(m.window, e.prefix) {
			m.startCapture(i)
			return
		}
	}

	// Keep the longest suffix that could still grow into a prefix.
	for start := 0; start < len(m.window); start++ {
		if m.partial(m.window[start:]) {
			n := copy(m.window, m.window[start:])
			m.window = m.window[:n]
			m.state = StateMatching
			return
		}
	}
	m.window = m.window[:0]
	m.state = StateIdle
}

// capture appends r to the site text while Capturing.
func (m *Machine) capture(r rune) {
	m.site = append(m.site, r)
	cur := m.entries[m.active]

	// prefix+site may spell a longer prefix, e.g. ";" followed by ";" with
	// both ";" and ";;" configured.
	if len(m.site) <= m.maxPrefix-len(cur.prefix) {
		combined := make([]rune, 0, m.maxPrefix)
		combined = append(append(combined, cur.prefix...), m.site...)
		for i, e := range m.entries {
			if len(e.prefix) == len(combined) && equalFold(e.prefix, combined) {
				m.active = i
				m.clearSite()
				return
			}
		}
		if m.partial(combined) {
			return
		}
	}

	// A prefix typed mid-capture starts a new trigger.
	for i, e := range m.entries {
		if hasSuffixFold(m.site, e.prefix) {
			m.stats.Aborted++
			m.startCapture(i)
			return
		}
	}

	if len(m.site) > cur.opts.MaxSiteLength {
		m.abort()
	}
}

func (m *Machine) startCapture(i int) {
	m.state = StateCapturing
	m.active = i
	m.window = m.window[:0]
	m.clearSite()
}

// abort drops a pending capture without emitting.
func (m *Machine) abort() {
	if m.state == StateCapturing {
		m.stats.Aborted++
	}
	m.Reset()
}

func (m *Machine) clearSite() {
	for i := range m.site {
		m.site[i] = 0
	}
	m.site = m.site[:0]
}

// partial reports whether s is a proper prefix of some configured prefix.
func (m *Machine) partial(s []rune) bool {
	for _, e := range m.entries {
		if len(s) < len(e.prefix) && equalFold(e.prefix[:len(s)], s) {
			return true
		}
	}
	return false
}

func printable(r rune) bool {
	return unicode.IsPrint(r) && !unicode.IsSpace(r)
}

func equalFold(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !runeEqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func hasSuffixFold(s, suffix []rune) bool {
	return len(s) >= len(suffix) && equalFold(s[len(s)-len(suffix):], suffix)
}

func runeEqualFold(a, b rune) bool {
	if a == b {
		return true
	}
	return unicode.ToLower(a) == unicode.ToLower(b)
}
