//go:build linux

package sentinel

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// detectDisplay determines the display server type.
func detectDisplay() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		// XWayland still answers X11 queries for X clients only.
		return "wayland"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}

func platformProbe() (probeFunc, string) {
	switch detectDisplay() {
	case "x11":
		if _, err := exec.LookPath("xdotool"); err == nil {
			return xdotoolProbe, "X11 focus tracking available (xdotool)"
		}
		if _, err := exec.LookPath("xprop"); err == nil {
			return xpropProbe, "X11 focus tracking available (xprop)"
		}
		return nil, "X11 detected but xdotool/xprop not found. Install: sudo apt install xdotool"
	case "wayland":
		return nil, "Wayland detected. Focus changes are not visible to other clients."
	default:
		return nil, "Unknown display server. Focus tracking requires X11."
	}
}

// probeTimeout bounds one external query.
const probeTimeout = time.Second

func xdotoolProbe(ctx context.Context) (WindowInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow").Output()
	if err != nil {
		return WindowInfo{}, err
	}
	info := WindowInfo{ID: strings.TrimSpace(string(out)), Timestamp: time.Now()}

	if out, err := exec.CommandContext(ctx, "xdotool", "getwindowpid", info.ID).Output(); err == nil {
		info.PID, _ = strconv.Atoi(strings.TrimSpace(string(out)))
	}
	return info, nil
}

func xpropProbe(ctx context.Context) (WindowInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW").Output()
	if err != nil {
		return WindowInfo{}, err
	}
	id, err := parseXpropActiveWindow(string(out))
	if err != nil {
		return WindowInfo{}, err
	}
	return WindowInfo{ID: id, Timestamp: time.Now()}, nil
}
