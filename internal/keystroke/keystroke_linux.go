//go:build linux

package keystroke

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sys/unix"
)

const (
	procDevices = "/proc/bus/input/devices"
	inputDir    = "/dev/input"

	// pollTimeout bounds how long a read blocks before ctx is checked.
	pollTimeout = 200 // ms

	evKey = 1
)

// inputEvent matches the kernel's struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var eventSize = int(unsafe.Sizeof(inputEvent{}))

// LinuxSource reads key events from evdev keyboard devices.
type LinuxSource struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	events  chan Event
	logger  *slog.Logger

	devMu   sync.Mutex
	devices map[string]int
}

func newPlatformSource() Source {
	return &LinuxSource{logger: slog.Default().With("component", "keystroke")}
}

func findKeyboardDevices() ([]string, error) {
	f, err := os.Open(procDevices)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseKeyboardDevices(f)
}

// Available checks if at least one keyboard device can be read.
func (l *LinuxSource) Available() (bool, string) {
	devices, err := findKeyboardDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot list input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev)
		}
	}
	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

// Start opens every readable keyboard and begins delivering events.
func (l *LinuxSource) Start(ctx context.Context) (<-chan Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil, ErrAlreadyRunning
	}

	devices, err := findKeyboardDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	l.devices = make(map[string]int)
	for _, dev := range devices {
		l.open(dev)
	}
	if len(l.devices) == 0 {
		return nil, ErrPermissionDenied
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.events = make(chan Event, eventBuffer)
	l.done = make(chan struct{})
	l.running = true

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		l.watchDevices(ctx)
	}()
	go func() {
		wg.Wait()
		l.closeDevices()
		close(l.events)
		close(l.done)
	}()

	return l.events, nil
}

// Stop stops reading and waits for the event channel to close.
func (l *LinuxSource) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	return nil
}

func (l *LinuxSource) open(path string) {
	l.devMu.Lock()
	defer l.devMu.Unlock()

	if _, ok := l.devices[path]; ok {
		return
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		l.logger.Debug("skipping keyboard device", "device", path, "error", err)
		return
	}
	l.devices[path] = fd
	l.logger.Debug("reading keyboard device", "device", path)
}

func (l *LinuxSource) closeDevices() {
	l.devMu.Lock()
	defer l.devMu.Unlock()
	for path, fd := range l.devices {
		unix.Close(fd)
		delete(l.devices, path)
	}
}

// snapshot returns the open devices with their poll descriptors.
func (l *LinuxSource) snapshot() ([]string, []unix.PollFd) {
	l.devMu.Lock()
	defer l.devMu.Unlock()

	paths := make([]string, 0, len(l.devices))
	fds := make([]unix.PollFd, 0, len(l.devices))
	for path, fd := range l.devices {
		paths = append(paths, path)
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	return paths, fds
}

func (l *LinuxSource) readLoop(ctx context.Context) {
	states := make(map[string]*keyState)
	buf := make([]byte, eventSize*64)

	for ctx.Err() == nil {
		paths, fds := l.snapshot()
		if len(fds) == 0 {
			time.Sleep(pollTimeout * time.Millisecond)
			continue
		}

		n, err := unix.Poll(fds, pollTimeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			l.logger.Error("poll keyboard devices", "error", err)
			return
		}
		if n == 0 {
			continue
		}

		for i, pfd := range fds {
			path := paths[i]
			if pfd.Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				l.drop(path)
				delete(states, path)
				continue
			}
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}

			st, ok := states[path]
			if !ok {
				st = &keyState{}
				states[path] = st
			}
			if !l.drain(ctx, int(pfd.Fd), buf, st) {
				l.drop(path)
				delete(states, path)
			}
		}
	}
}

// drain reads all pending events from fd. It reports false when the
// device is gone.
func (l *LinuxSource) drain(ctx context.Context, fd int, buf []byte, st *keyState) bool {
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
		}
		if n <= 0 {
			return false
		}

		for off := 0; off+eventSize <= n; off += eventSize {
			rec := buf[off : off+eventSize]
			// Type, Code and Value follow the timeval.
			tail := rec[eventSize-8:]
			if binary.LittleEndian.Uint16(tail[0:2]) != evKey {
				continue
			}
			code := binary.LittleEndian.Uint16(tail[2:4])
			value := int32(binary.LittleEndian.Uint32(tail[4:8]))

			ev, ok := st.translate(code, value, time.Now())
			if !ok {
				continue
			}
			select {
			case l.events <- ev:
			case <-ctx.Done():
				return true
			}
		}
	}
}

func (l *LinuxSource) drop(path string) {
	l.devMu.Lock()
	defer l.devMu.Unlock()
	if fd, ok := l.devices[path]; ok {
		unix.Close(fd)
		delete(l.devices, path)
		l.logger.Info("keyboard device removed", "device", path)
	}
}

// watchDevices opens keyboards plugged in after Start.
func (l *LinuxSource) watchDevices(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("device hotplug disabled", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(inputDir); err != nil {
		l.logger.Warn("device hotplug disabled", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) || !strings.Contains(event.Name, "event") {
				continue
			}
			// Wait for udev to apply permissions.
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			devices, err := findKeyboardDevices()
			if err != nil {
				continue
			}
			for _, dev := range devices {
				if dev == event.Name {
					l.open(dev)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("device watcher error", "error", err)
		}
	}
}
