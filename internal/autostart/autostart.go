// Package autostart registers the daemon to start when the user logs in:
// an XDG desktop entry on Linux and the BSDs, a LaunchAgent on macOS and a
// Run key value on Windows.
package autostart

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned on platforms without a login entry.
var ErrUnsupported = errors.New("autostart: not supported on this platform")

const (
	appName         = "easypass"
	launchdLabel    = "org.easypass.daemon"
	entryComment    = "Replace typed triggers with site passwords"
	desktopFile     = appName + ".desktop"
	launchAgentFile = launchdLabel + ".plist"
)

// Manager writes and removes the login entry for one command line.
type Manager struct {
	// Exe is the absolute path of the program to start.
	Exe string
	// Args follow Exe on the command line.
	Args []string
}

// New returns a Manager that starts the running executable with "run".
func New() (*Manager, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("autostart: locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return &Manager{Exe: exe, Args: []string{"run"}}, nil
}

// Set enables or disables the entry.
func (m *Manager) Set(enabled bool) error {
	if enabled {
		return m.Enable()
	}
	return m.Disable()
}

func (m *Manager) command() []string {
	return append([]string{m.Exe}, m.Args...)
}

// desktopEntry renders an XDG autostart entry for argv.
func desktopEntry(argv []string) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	b.WriteString("Name=" + appName + "\n")
	b.WriteString("Comment=" + entryComment + "\n")
	b.WriteString("Exec=" + desktopExec(argv) + "\n")
	b.WriteString("Terminal=false\n")
	b.WriteString("X-GNOME-Autostart-enabled=true\n")
	return b.String()
}

var execQuote = strings.NewReplacer(`"`, `\"`, "`", "\\`", `$`, `\$`, `\`, `\\`)

// desktopExec quotes argv for an Exec key. Arguments with reserved
// characters are double-quoted, field codes are escaped as %%, and the
// string-value escape doubles every backslash once more.
func desktopExec(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, "%", "%%")
		if arg == "" || strings.ContainsAny(arg, " \t\n\"'\\><~|&;$*?#()`") {
			arg = `"` + execQuote.Replace(arg) + `"`
		}
		parts[i] = arg
	}
	return strings.ReplaceAll(strings.Join(parts, " "), `\`, `\\`)
}

// launchAgent renders a launchd property list that runs argv at login.
func launchAgent(argv []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">` + "\n")
	b.WriteString(`<plist version="1.0">` + "\n<dict>\n")
	b.WriteString("\t<key>Label</key>\n\t<string>" + launchdLabel + "</string>\n")
	b.WriteString("\t<key>ProgramArguments</key>\n\t<array>\n")
	for _, arg := range argv {
		b.WriteString("\t\t<string>")
		_ = xml.EscapeText(&b, []byte(arg))
		b.WriteString("</string>\n")
	}
	b.WriteString("\t</array>\n")
	b.WriteString("\t<key>RunAtLoad</key>\n\t<true/>\n")
	b.WriteString("</dict>\n</plist>\n")
	return b.String()
}
