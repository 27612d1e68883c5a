package sentinel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// WindowInfo identifies the focused window. Titles are not collected.
type WindowInfo struct {
	ID        string
	PID       int
	Timestamp time.Time
}

// FocusTracker reports changes of the focused window.
type FocusTracker interface {
	// Start begins focus tracking.
	Start(ctx context.Context) error

	// Stop stops focus tracking and closes the change channel.
	Stop() error

	// FocusChanges returns a channel that receives focus change
	// notifications.
	FocusChanges() <-chan WindowInfo

	// Available returns whether focus tracking works in this session.
	Available() (bool, string)
}

// FocusTrackerConfig configures the focus tracker behavior.
type FocusTrackerConfig struct {
	// PollInterval is how often the focused window is queried.
	PollInterval time.Duration
}

// DefaultFocusTrackerConfig returns default configuration.
func DefaultFocusTrackerConfig() FocusTrackerConfig {
	return FocusTrackerConfig{
		PollInterval: 100 * time.Millisecond,
	}
}

// probeFunc returns the currently focused window.
type probeFunc func(ctx context.Context) (WindowInfo, error)

var errNoProbe = errors.New("focus tracking not available")

// pollingFocusTracker polls a probe and emits when the window changes.
type pollingFocusTracker struct {
	config FocusTrackerConfig
	probe  probeFunc
	reason string
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	focusCh chan WindowInfo
	last    string
}

func newPollingFocusTracker(config FocusTrackerConfig, probe probeFunc, reason string) *pollingFocusTracker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultFocusTrackerConfig().PollInterval
	}
	return &pollingFocusTracker{
		config:  config,
		probe:   probe,
		reason:  reason,
		logger:  slog.Default().With("component", "focus_tracker"),
		focusCh: make(chan WindowInfo, 16),
	}
}

// NewFocusTracker creates a platform-appropriate focus tracker.
func NewFocusTracker(pollInterval time.Duration) FocusTracker {
	probe, reason := platformProbe()
	return newPollingFocusTracker(FocusTrackerConfig{PollInterval: pollInterval}, probe, reason)
}

func (t *pollingFocusTracker) FocusChanges() <-chan WindowInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focusCh
}

func (t *pollingFocusTracker) Available() (bool, string) {
	return t.probe != nil, t.reason
}

func (t *pollingFocusTracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}
	if t.probe == nil {
		return errNoProbe
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.focusCh = make(chan WindowInfo, 16)
	t.last = ""
	t.running = true

	go t.pollLoop(ctx, t.focusCh)

	t.logger.Debug("focus tracker started", "poll_interval", t.config.PollInterval)
	return nil
}

func (t *pollingFocusTracker) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.cancel()
	done := t.done
	t.mu.Unlock()

	<-done
	t.mu.Lock()
	close(t.focusCh)
	t.mu.Unlock()
	return nil
}

func (t *pollingFocusTracker) pollLoop(ctx context.Context, out chan<- WindowInfo) {
	defer close(t.done)

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.check(ctx, out)
		}
	}
}

// check queries the probe and emits if the focused window changed. The
// first observation only records the window.
func (t *pollingFocusTracker) check(ctx context.Context, out chan<- WindowInfo) {
	info, err := t.probe(ctx)
	if err != nil || info.ID == "" {
		return
	}
	if info.ID == t.last {
		return
	}
	first := t.last == ""
	t.last = info.ID
	if first {
		return
	}

	if info.Timestamp.IsZero() {
		info.Timestamp = time.Now()
	}
	select {
	case out <- info:
	default:
		// A pending change already aborts the trigger.
	}
}

// parseXpropActiveWindow parses "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x12345".
func parseXpropActiveWindow(out string) (string, error) {
	parts := strings.Fields(out)
	if len(parts) < 5 {
		return "", errors.New("failed to parse xprop output")
	}
	return parts[len(parts)-1], nil
}
