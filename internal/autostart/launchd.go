//go:build darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"
)

// entryPath is ~/Library/LaunchAgents/org.easypass.daemon.plist. The agent
// is picked up at the next login; it is not loaded into the running
// session, where a daemon is usually already running.
func entryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("autostart: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", launchAgentFile), nil
}

func renderEntry(argv []string) string {
	return launchAgent(argv)
}
