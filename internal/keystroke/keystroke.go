// Package keystroke provides key event sources for the trigger machine.
//
// A Source delivers one Event per key press (and per auto-repeat) in the
// order the user typed them. Releases are consumed internally to track
// modifier state and are never delivered.
//
// Platform support:
//   - Linux: reads /dev/input/event* (requires the input group or root)
//   - Other platforms: not available; use Simulated for testing and replay
//
// Events are handed to the trigger machine and dropped. Nothing is written
// to disk or logged.
package keystroke

import (
	"context"
	"errors"
	"sync"
	"time"

	"easypass/internal/trigger"
)

// Source produces key events.
type Source interface {
	// Start begins delivering events. The channel is closed when the
	// source stops or ctx is cancelled.
	Start(ctx context.Context) (<-chan Event, error)

	// Stop stops the source and waits for its goroutines to exit.
	Stop() error

	// Available reports whether the source can run with the current
	// permissions, with a human readable explanation.
	Available() (bool, string)
}

// Event is one key press.
type Event struct {
	Kind      trigger.Key
	Char      rune
	Modifiers trigger.Modifiers
	Timestamp time.Time
}

// Trigger converts the event for the trigger machine.
func (e Event) Trigger() trigger.Event {
	return trigger.Event{
		Key:       e.Kind,
		Char:      e.Char,
		Modifiers: e.Modifiers,
		Time:      e.Timestamp,
	}
}

// ErrNotAvailable is returned when no key source exists on this platform.
var ErrNotAvailable = errors.New("key event source not available on this platform")

// ErrPermissionDenied is returned when no keyboard device can be opened.
var ErrPermissionDenied = errors.New("insufficient permissions to read keyboard devices")

// ErrAlreadyRunning is returned when Start is called while already running.
var ErrAlreadyRunning = errors.New("source already running")

// eventBuffer is the channel capacity of every source. A full buffer
// blocks the reader rather than dropping keys.
const eventBuffer = 256

// New creates the Source for the current platform.
func New() Source {
	return newPlatformSource()
}

// Simulated is a Source fed programmatically. It backs tests and the
// replay command.
type Simulated struct {
	mu      sync.Mutex
	ch      chan Event
	cancel  context.CancelFunc
	running bool
	now     func() time.Time
}

// NewSimulated creates a simulated source.
func NewSimulated() *Simulated {
	return &Simulated{now: time.Now}
}

// Start begins the simulated source.
func (s *Simulated) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrAlreadyRunning
	}
	s.ch = make(chan Event, eventBuffer)
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return s.ch, nil
}

// Stop closes the event channel.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	close(s.ch)
	return nil
}

// Available returns true (simulated is always available).
func (s *Simulated) Available() (bool, string) {
	return true, "simulated source"
}

// Send delivers events in order. It reports false if the source is not
// running.
func (s *Simulated) Send(events ...Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return false
	}
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = s.now()
		}
		s.ch <- ev
	}
	return true
}

// Type delivers one character event per rune of text.
func (s *Simulated) Type(text string) bool {
	events := make([]Event, 0, len(text))
	for _, r := range text {
		events = append(events, Event{Kind: trigger.KeyChar, Char: r})
	}
	return s.Send(events...)
}

// Press delivers a single non-character key.
func (s *Simulated) Press(k trigger.Key) bool {
	return s.Send(Event{Kind: k})
}
