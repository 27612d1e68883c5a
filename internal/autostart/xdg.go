//go:build unix && !darwin

package autostart

import (
	"fmt"
	"os"
	"path/filepath"
)

// entryPath is $XDG_CONFIG_HOME/autostart/easypass.desktop.
func entryPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("autostart: %w", err)
	}
	return filepath.Join(dir, "autostart", desktopFile), nil
}

func renderEntry(argv []string) string {
	return desktopEntry(argv)
}
