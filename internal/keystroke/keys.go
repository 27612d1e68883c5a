package keystroke

import (
	"fmt"
	"strings"

	"easypass/internal/trigger"
)

// keyNames are the escapes understood by ParseKeys.
var keyNames = map[string]trigger.Key{
	"bs":        trigger.KeyBackspace,
	"backspace": trigger.KeyBackspace,
	"del":       trigger.KeyDelete,
	"delete":    trigger.KeyDelete,
	"enter":     trigger.KeyEnter,
	"tab":       trigger.KeyTab,
	"space":     trigger.KeySpace,
	"esc":       trigger.KeyEscape,
	"left":      trigger.KeyNavigation,
	"right":     trigger.KeyNavigation,
	"up":        trigger.KeyNavigation,
	"down":      trigger.KeyNavigation,
	"home":      trigger.KeyNavigation,
	"end":       trigger.KeyNavigation,
	"shift":     trigger.KeyModifier,
	"focus":     trigger.KeyFocusChange,
}

// ParseKeys turns a literal key script into events. Plain runes become
// character events; {name} escapes name special keys ({bs}, {enter},
// {tab}, {esc}, {left}, {focus}, ...), {ctrl+x} and {alt+x} produce
// shortcuts, and {{ is a literal brace.
func ParseKeys(script string) ([]Event, error) {
	var events []Event
	rs := []rune(script)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if r != '{' {
			events = append(events, Event{Kind: trigger.KeyChar, Char: r})
			continue
		}
		if i+1 < len(rs) && rs[i+1] == '{' {
			events = append(events, Event{Kind: trigger.KeyChar, Char: '{'})
			i++
			continue
		}

		end := -1
		for j := i + 1; j < len(rs); j++ {
			if rs[j] == '}' {
				end = j
				break
			}
		}
		if end < 0 {
			return nil, fmt.Errorf("unterminated escape at offset %d", i)
		}
		ev, err := parseEscape(string(rs[i+1 : end]))
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
		i = end
	}
	return events, nil
}

func parseEscape(name string) (Event, error) {
	lower := strings.ToLower(name)
	if k, ok := keyNames[lower]; ok {
		return Event{Kind: k}, nil
	}

	mod, char, found := strings.Cut(name, "+")
	if found && len([]rune(char)) == 1 {
		var m trigger.Modifiers
		switch strings.ToLower(mod) {
		case "ctrl", "control":
			m = trigger.ModControl
		case "alt":
			m = trigger.ModAlt
		case "meta", "super", "cmd":
			m = trigger.ModMeta
		default:
			return Event{}, fmt.Errorf("unknown modifier %q", mod)
		}
		return Event{Kind: trigger.KeyChar, Char: []rune(char)[0], Modifiers: m}, nil
	}
	return Event{}, fmt.Errorf("unknown key {%s}", name)
}
