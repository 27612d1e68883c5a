package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Key classifies a key event.
type Key int

const (
	KeyOther Key = iota
	KeyChar
	KeySpace
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeyNavigation // arrows, Home/End, Page Up/Down
	KeyEscape
	KeyModifier    // Shift, Ctrl, Alt, Meta pressed on their own
	KeyFocusChange // the focused window or field changed
)

// String returns a short name for the key.
func (k Key) String() string {
	switch k {
	case KeyChar:
		return "char"
	case KeySpace:
		return "space"
	case KeyEnter:
		return "enter"
	case KeyTab:
		return "tab"
	case KeyBackspace:
		return "backspace"
	case KeyDelete:
		return "delete"
	case KeyNavigation:
		return "navigation"
	case KeyEscape:
		return "escape"
	case KeyModifier:
		return "modifier"
	case KeyFocusChange:
		return "focus_change"
	default:
		return "other"
	}
}

// Modifiers is the set of modifier keys held during an event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModControl
	ModAlt
	ModMeta // Command on macOS, Windows key on Windows
)

// shortcut reports whether the modifiers turn a character into a shortcut
// rather than typed text.
func (m Modifiers) shortcut() bool {
	return m&(ModControl|ModAlt|ModMeta) != 0
}

// Event is one key event from the key event source.
type Event struct {
	Key       Key
	Char      rune // set when Key == KeyChar
	Modifiers Modifiers
	Time      time.Time
}

// Char returns a character event.
func Char(r rune) Event {
	return Event{Key: KeyChar, Char: r}
}

// Special returns an event for a non-character key.
func Special(k Key) Event {
	return Event{Key: k}
}

// normalize maps whitespace characters onto their dedicated keys so that
// sources may report either form.
func (e Event) normalize() Event {
	if e.Key != KeyChar {
		return e
	}
	switch e.Char {
	case ' ':
		e.Key = KeySpace
	case '\n', '\r':
		e.Key = KeyEnter
	case '\t':
		e.Key = KeyTab
	}
	return e
}

// Terminators is the set of keys that complete a trigger.
type Terminators uint8

const (
	TermSpace Terminators = 1 << iota
	TermEnter
	TermTab

	// AllTerminators is the default set.
	AllTerminators = TermSpace | TermEnter | TermTab
)

// Has reports whether k is one of the terminators.
func (t Terminators) Has(k Key) bool {
	switch k {
	case KeySpace:
		return t&TermSpace != 0
	case KeyEnter:
		return t&TermEnter != 0
	case KeyTab:
		return t&TermTab != 0
	}
	return false
}

// ParseTerminators parses names such as "space", "enter" and "tab".
func ParseTerminators(names []string) (Terminators, error) {
	var t Terminators
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "space":
			t |= TermSpace
		case "enter", "return":
			t |= TermEnter
		case "tab":
			t |= TermTab
		default:
			return 0, fmt.Errorf("unknown terminator %q", name)
		}
	}
	return t, nil
}

// Names returns the terminator names in canonical order.
func (t Terminators) Names() []string {
	var names []string
	if t&TermSpace != 0 {
		names = append(names, "space")
	}
	if t&TermEnter != 0 {
		names = append(names, "enter")
	}
	if t&TermTab != 0 {
		names = append(names, "tab")
	}
	return names
}
