package sentinel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDefaultFocusTrackerConfig(t *testing.T) {
	config := DefaultFocusTrackerConfig()

	if config.PollInterval != 100*time.Millisecond {
		t.Errorf("unexpected poll interval: %v", config.PollInterval)
	}
}

// scriptedProbe returns a fixed sequence of windows, then repeats the last.
type scriptedProbe struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (p *scriptedProbe) probe(ctx context.Context) (WindowInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return WindowInfo{}, p.err
	}
	id := p.ids[0]
	if len(p.ids) > 1 {
		p.ids = p.ids[1:]
	}
	return WindowInfo{ID: id}, nil
}

func TestFocusCheckEmitsOnChange(t *testing.T) {
	p := &scriptedProbe{ids: []string{"1", "1", "2", "2", "3"}}
	tr := newPollingFocusTracker(DefaultFocusTrackerConfig(), p.probe, "test")
	out := make(chan WindowInfo, 8)

	for i := 0; i < 5; i++ {
		tr.check(context.Background(), out)
	}
	close(out)

	var got []string
	for info := range out {
		got = append(got, info.ID)
		if info.Timestamp.IsZero() {
			t.Error("emitted change without timestamp")
		}
	}
	if len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Errorf("expected changes [2 3], got %v", got)
	}
}

func TestFocusCheckIgnoresProbeErrors(t *testing.T) {
	p := &scriptedProbe{err: errors.New("no display")}
	tr := newPollingFocusTracker(DefaultFocusTrackerConfig(), p.probe, "test")
	out := make(chan WindowInfo, 1)

	tr.check(context.Background(), out)
	if len(out) != 0 {
		t.Error("probe error should not emit")
	}
}

func TestFocusTrackerStartStop(t *testing.T) {
	p := &scriptedProbe{ids: []string{"a", "b"}}
	config := FocusTrackerConfig{PollInterval: 5 * time.Millisecond}
	tr := newPollingFocusTracker(config, p.probe, "test")

	if ok, _ := tr.Available(); !ok {
		t.Fatal("tracker with a probe should be available")
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	select {
	case info := <-tr.FocusChanges():
		if info.ID != "b" {
			t.Errorf("expected window b, got %q", info.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no focus change")
	}

	ch := tr.FocusChanges()
	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for range ch {
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestFocusTrackerWithoutProbe(t *testing.T) {
	tr := newPollingFocusTracker(FocusTrackerConfig{}, nil, "unsupported")

	ok, reason := tr.Available()
	if ok || reason != "unsupported" {
		t.Errorf("Available() = %v, %q", ok, reason)
	}
	if err := tr.Start(context.Background()); err == nil {
		t.Error("expected error starting without a probe")
	}
	if tr.config.PollInterval <= 0 {
		t.Error("poll interval not defaulted")
	}
}

func TestParseXpropActiveWindow(t *testing.T) {
	id, err := parseXpropActiveWindow("_NET_ACTIVE_WINDOW(WINDOW): window id # 0x3a00007\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != "0x3a00007" {
		t.Errorf("got %q", id)
	}

	if _, err := parseXpropActiveWindow("garbage"); err == nil {
		t.Error("expected error for short output")
	}
}
