package keystroke

import (
	"time"

	"easypass/internal/trigger"
)

// Linux input event codes (linux/input-event-codes.h).
const (
	keyEsc        = 1
	keyBackspace  = 14
	keyTab        = 15
	keyEnter      = 28
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keySpace      = 57
	keyCapsLock   = 58
	keyKPEnter    = 96
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyHome       = 102
	keyUp         = 103
	keyPageUp     = 104
	keyLeft       = 105
	keyRight      = 106
	keyEnd        = 107
	keyDown       = 108
	keyPageDown   = 109
	keyInsert     = 110
	keyDelete     = 111
	keyLeftMeta   = 125
	keyRightMeta  = 126
)

// Key values of an EV_KEY event.
const (
	valueRelease = 0
	valuePress   = 1
	valueRepeat  = 2
)

// usLayout maps keycodes to their unshifted and shifted characters on a
// US keyboard. Keypad keys assume Num Lock is on.
var usLayout = map[uint16][2]rune{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
	55: {'*', '*'}, 74: {'-', '-'}, 78: {'+', '+'}, 98: {'/', '/'}, 83: {'.', '.'},
	71: {'7', '7'}, 72: {'8', '8'}, 73: {'9', '9'},
	75: {'4', '4'}, 76: {'5', '5'}, 77: {'6', '6'},
	79: {'1', '1'}, 80: {'2', '2'}, 81: {'3', '3'}, 82: {'0', '0'},
}

// keyState tracks held modifiers and Caps Lock across events of one
// device.
type keyState struct {
	shift    int
	ctrl     int
	alt      int
	meta     int
	capsLock bool
}

func (s *keyState) modifiers() trigger.Modifiers {
	var m trigger.Modifiers
	if s.shift > 0 {
		m |= trigger.ModShift
	}
	if s.ctrl > 0 {
		m |= trigger.ModControl
	}
	if s.alt > 0 {
		m |= trigger.ModAlt
	}
	if s.meta > 0 {
		m |= trigger.ModMeta
	}
	return m
}

// held adjusts a modifier counter. Left and right keys are counted
// separately so releasing one keeps the other active.
func held(counter *int, value int32) {
	switch value {
	case valuePress:
		*counter++
	case valueRelease:
		if *counter > 0 {
			*counter--
		}
	}
}

// translate turns one EV_KEY event into a key Event. ok is false for
// releases and for events that only update state.
func (s *keyState) translate(code uint16, value int32, at time.Time) (Event, bool) {
	switch code {
	case keyLeftShift, keyRightShift:
		held(&s.shift, value)
		return s.modifierEvent(value, at)
	case keyLeftCtrl, keyRightCtrl:
		held(&s.ctrl, value)
		return s.modifierEvent(value, at)
	case keyLeftAlt, keyRightAlt:
		held(&s.alt, value)
		return s.modifierEvent(value, at)
	case keyLeftMeta, keyRightMeta:
		held(&s.meta, value)
		return s.modifierEvent(value, at)
	case keyCapsLock:
		if value == valuePress {
			s.capsLock = !s.capsLock
		}
		return s.modifierEvent(value, at)
	}

	if value != valuePress && value != valueRepeat {
		return Event{}, false
	}

	ev := Event{Modifiers: s.modifiers(), Timestamp: at}
	switch code {
	case keySpace:
		ev.Kind = trigger.KeySpace
	case keyEnter, keyKPEnter:
		ev.Kind = trigger.KeyEnter
	case keyTab:
		ev.Kind = trigger.KeyTab
	case keyBackspace:
		ev.Kind = trigger.KeyBackspace
	case keyDelete:
		ev.Kind = trigger.KeyDelete
	case keyEsc:
		ev.Kind = trigger.KeyEscape
	case keyHome, keyEnd, keyUp, keyDown, keyLeft, keyRight, keyPageUp, keyPageDown, keyInsert:
		ev.Kind = trigger.KeyNavigation
	default:
		chars, ok := usLayout[code]
		if !ok {
			ev.Kind = trigger.KeyOther
			return ev, true
		}
		ev.Kind = trigger.KeyChar
		ev.Char = s.pick(chars)
	}
	return ev, true
}

// pick chooses the shifted or unshifted character. Caps Lock only
// affects letters.
func (s *keyState) pick(chars [2]rune) rune {
	shifted := s.shift > 0
	if chars[0] >= 'a' && chars[0] <= 'z' && s.capsLock {
		shifted = !shifted
	}
	if shifted {
		return chars[1]
	}
	return chars[0]
}

func (s *keyState) modifierEvent(value int32, at time.Time) (Event, bool) {
	if value != valuePress {
		return Event{}, false
	}
	return Event{Kind: trigger.KeyModifier, Modifiers: s.modifiers(), Timestamp: at}, true
}
