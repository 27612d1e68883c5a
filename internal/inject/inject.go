// Package inject types replacement text into the focused application.
//
// An Actuator erases the trigger that was typed and types the password in
// its place. Text always travels through memory or a pipe, never through
// command line arguments where other users could read it.
package inject

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// Actuator applies a replacement to the focused text field.
type Actuator interface {
	Apply(ctx context.Context, e Edit) error
}

// Edit is one replacement relative to the cursor. The last Keep
// characters before the cursor stay in place; the Delete characters before
// them are erased and Text is typed where they were. For a trigger, Keep
// covers the terminator the application has already received.
//
// Text is borrowed and is not retained after Apply returns.
type Edit struct {
	Keep   int
	Delete int
	Text   []byte
}

// Backends accepted by New.
const (
	BackendAuto    = "auto"
	BackendXdotool = "xdotool"
	BackendWtype   = "wtype"
	BackendStdout  = "stdout"
)

// ErrUnavailable is returned when no injection tool can be used.
var ErrUnavailable = errors.New("no injection backend available")

// Options configures New.
type Options struct {
	Backend string
	Delay   time.Duration // between synthetic keystrokes
	Stdout  io.Writer     // for BackendStdout, defaults to os.Stdout
}

// New returns the Actuator for a backend name. "auto" picks wtype on
// Wayland and xdotool on X11, whichever is installed.
func New(opts Options) (Actuator, error) {
	backend := opts.Backend
	if backend == "" || backend == BackendAuto {
		var err error
		backend, err = detectBackend(os.Getenv, exec.LookPath)
		if err != nil {
			return nil, err
		}
	}

	switch backend {
	case BackendXdotool, BackendWtype:
		if _, err := exec.LookPath(backend); err != nil {
			return nil, fmt.Errorf("%w: %s not found in PATH", ErrUnavailable, backend)
		}
		return NewExec(backend, opts.Delay), nil
	case BackendStdout:
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		return &Writer{W: w}, nil
	default:
		return nil, fmt.Errorf("unknown injection backend %q", backend)
	}
}

// Name returns the backend name of act.
func Name(act Actuator) string {
	switch a := act.(type) {
	case *Exec:
		return a.tool
	case *Writer:
		return BackendStdout
	case *Guard:
		return Name(a.act)
	default:
		return fmt.Sprintf("%T", act)
	}
}

func detectBackend(getenv func(string) string, lookPath func(string) (string, error)) (string, error) {
	if getenv("WAYLAND_DISPLAY") != "" {
		if _, err := lookPath(BackendWtype); err == nil {
			return BackendWtype, nil
		}
	}
	if getenv("DISPLAY") != "" {
		if _, err := lookPath(BackendXdotool); err == nil {
			return BackendXdotool, nil
		}
	}
	return "", fmt.Errorf("%w: install wtype (Wayland) or xdotool (X11)", ErrUnavailable)
}

// Guard serialises replacements and raises a flag while synthetic input is
// being typed, so the key event loop can ignore its own output.
type Guard struct {
	act    Actuator
	settle time.Duration

	mu     sync.Mutex
	active atomic.Bool
}

// NewGuard wraps act. The flag stays raised for settle after each Apply
// so late synthetic events are still ignored.
func NewGuard(act Actuator, settle time.Duration) *Guard {
	return &Guard{act: act, settle: settle}
}

// Active reports whether an injection is in progress.
func (g *Guard) Active() bool {
	return g.active.Load()
}

// Apply runs the wrapped actuator with the flag raised.
func (g *Guard) Apply(ctx context.Context, e Edit) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active.Store(true)
	defer g.active.Store(false)

	err := g.act.Apply(ctx, e)
	if g.settle > 0 {
		select {
		case <-time.After(g.settle):
		case <-ctx.Done():
		}
	}
	return err
}
