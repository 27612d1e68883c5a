package keystroke

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easypass/internal/derive"
	"easypass/internal/trigger"
)

func press(t *testing.T, s *keyState, code uint16) Event {
	t.Helper()
	ev, ok := s.translate(code, valuePress, time.Time{})
	require.True(t, ok, "press of %d produced no event", code)
	return ev
}

func release(s *keyState, code uint16) {
	s.translate(code, valueRelease, time.Time{})
}

func TestTranslateLetters(t *testing.T) {
	var s keyState

	ev := press(t, &s, 34) // g
	assert.Equal(t, trigger.KeyChar, ev.Kind)
	assert.Equal(t, 'g', ev.Char)
	assert.Zero(t, ev.Modifiers)

	_, ok := s.translate(34, valueRelease, time.Time{})
	assert.False(t, ok, "releases are not delivered")
}

func TestTranslateShift(t *testing.T) {
	var s keyState

	mod := press(t, &s, keyLeftShift)
	assert.Equal(t, trigger.KeyModifier, mod.Kind)

	assert.Equal(t, 'G', press(t, &s, 34).Char)
	assert.Equal(t, ':', press(t, &s, 39).Char)
	assert.Equal(t, '!', press(t, &s, 2).Char)
	assert.Equal(t, trigger.ModShift, press(t, &s, 34).Modifiers)

	release(&s, keyLeftShift)
	assert.Equal(t, ';', press(t, &s, 39).Char)
}

func TestTranslateBothShifts(t *testing.T) {
	var s keyState

	press(t, &s, keyLeftShift)
	press(t, &s, keyRightShift)
	release(&s, keyLeftShift)
	assert.Equal(t, 'A', press(t, &s, 30).Char, "right shift still held")

	release(&s, keyRightShift)
	assert.Equal(t, 'a', press(t, &s, 30).Char)
}

func TestTranslateCapsLock(t *testing.T) {
	var s keyState

	press(t, &s, keyCapsLock)
	release(&s, keyCapsLock)

	assert.Equal(t, 'Q', press(t, &s, 16).Char)
	assert.Equal(t, '1', press(t, &s, 2).Char, "caps lock leaves digits alone")

	press(t, &s, keyLeftShift)
	assert.Equal(t, 'q', press(t, &s, 16).Char, "shift inverts caps lock")
	release(&s, keyLeftShift)

	press(t, &s, keyCapsLock)
	assert.Equal(t, 'q', press(t, &s, 16).Char)
}

func TestTranslateSpecialKeys(t *testing.T) {
	tests := []struct {
		code uint16
		want trigger.Key
	}{
		{keySpace, trigger.KeySpace},
		{keyEnter, trigger.KeyEnter},
		{keyKPEnter, trigger.KeyEnter},
		{keyTab, trigger.KeyTab},
		{keyBackspace, trigger.KeyBackspace},
		{keyDelete, trigger.KeyDelete},
		{keyEsc, trigger.KeyEscape},
		{keyLeft, trigger.KeyNavigation},
		{keyHome, trigger.KeyNavigation},
		{keyPageDown, trigger.KeyNavigation},
		{59, trigger.KeyOther}, // F1
	}

	for _, tt := range tests {
		var s keyState
		assert.Equal(t, tt.want, press(t, &s, tt.code).Kind, "code %d", tt.code)
	}
}

func TestTranslateShortcut(t *testing.T) {
	var s keyState

	press(t, &s, keyLeftCtrl)
	ev := press(t, &s, 47) // v
	assert.Equal(t, trigger.KeyChar, ev.Kind)
	assert.Equal(t, trigger.ModControl, ev.Modifiers)

	release(&s, keyLeftCtrl)
	press(t, &s, keyRightAlt)
	assert.Equal(t, trigger.ModAlt, press(t, &s, 47).Modifiers)
}

func TestTranslateRepeat(t *testing.T) {
	var s keyState

	ev, ok := s.translate(30, valueRepeat, time.Time{})
	require.True(t, ok)
	assert.Equal(t, 'a', ev.Char)

	_, ok = s.translate(keyLeftShift, valueRepeat, time.Time{})
	assert.False(t, ok, "modifier repeats are not delivered")
}

func TestTranslatedTriggerSequence(t *testing.T) {
	// ;;gh<space> typed on a US keyboard.
	var s keyState
	m, err := trigger.New(trigger.Options{Prefix: ";;", Mode: derive.ModeSecure})
	require.NoError(t, err)

	for _, code := range []uint16{39, 39, 34, 35} {
		_, done := m.Feed(press(t, &s, code).Trigger())
		assert.False(t, done)
	}
	c, done := m.Feed(press(t, &s, keySpace).Trigger())
	require.True(t, done)
	assert.Equal(t, "gh", c.Site)
	assert.Equal(t, 4, c.DeleteCount())
}

const sampleDevices = `I: Bus=0019 Vendor=0000 Product=0001 Version=0000
N: Name="Power Button"
P: Phys=PNP0C0C/button/input0
H: Handlers=kbd event0
B: PROP=0
B: EV=3
B: KEY=10000000000000 0

I: Bus=0011 Vendor=0001 Product=0001 Version=ab83
N: Name="AT Translated Set 2 keyboard"
P: Phys=isa0060/serio0/input0
H: Handlers=sysrq kbd leds event3
B: PROP=0
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe
B: MSC=10
B: LED=7

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
H: Handlers=mouse0 event5
B: PROP=0
B: EV=17

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Keyboard"
H: Handlers=kbd event6
B: PROP=0
B: EV=12001f`

func TestParseKeyboardDevices(t *testing.T) {
	devices, err := parseKeyboardDevices(strings.NewReader(sampleDevices))
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/input/event3", "/dev/input/event6"}, devices)
}

func TestParseKeys(t *testing.T) {
	events, err := ParseKeys(";;ab{bs}c{enter}")
	require.NoError(t, err)
	require.Len(t, events, 7)

	assert.Equal(t, ';', events[0].Char)
	assert.Equal(t, 'b', events[3].Char)
	assert.Equal(t, trigger.KeyBackspace, events[4].Kind)
	assert.Equal(t, 'c', events[5].Char)
	assert.Equal(t, trigger.KeyEnter, events[6].Kind)
}

func TestParseKeysEscapes(t *testing.T) {
	events, err := ParseKeys("{{x}{TAB}{ctrl+v}{focus}")
	require.NoError(t, err)
	require.Len(t, events, 5)

	assert.Equal(t, '{', events[0].Char)
	assert.Equal(t, 'x', events[1].Char)
	assert.Equal(t, '}', events[2].Char)
	assert.Equal(t, trigger.KeyTab, events[3].Kind)
	assert.Equal(t, trigger.KeyFocusChange, events[4].Kind)
}

func TestParseKeysErrors(t *testing.T) {
	for _, script := range []string{"{enter", "{nope}", "{hyper+x}"} {
		_, err := ParseKeys(script)
		assert.Error(t, err, script)
	}
}

func TestSimulated(t *testing.T) {
	src := NewSimulated()
	ok, _ := src.Available()
	assert.True(t, ok)

	assert.False(t, src.Type("x"), "send before start")

	ch, err := src.Start(context.Background())
	require.NoError(t, err)

	_, err = src.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.True(t, src.Type("hi"))
	require.True(t, src.Press(trigger.KeyEnter))

	got := []Event{<-ch, <-ch, <-ch}
	assert.Equal(t, 'h', got[0].Char)
	assert.Equal(t, 'i', got[1].Char)
	assert.Equal(t, trigger.KeyEnter, got[2].Kind)
	assert.False(t, got[0].Timestamp.IsZero())

	require.NoError(t, src.Stop())
	_, open := <-ch
	assert.False(t, open, "channel closed after Stop")
	assert.NoError(t, src.Stop())
}

func TestSimulatedStopsWithContext(t *testing.T) {
	src := NewSimulated()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := src.Start(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
