//go:build unix

package autostart

import (
	"errors"
	"fmt"
	"os"

	"easypass/internal/security"
)

// Enable writes the login entry, replacing any earlier one.
func (m *Manager) Enable() error {
	path, err := entryPath()
	if err != nil {
		return err
	}
	if err := security.WriteFileAtomic(path, []byte(renderEntry(m.command())), 0644); err != nil {
		return fmt.Errorf("autostart: %w", err)
	}
	return nil
}

// Disable removes the login entry. A missing entry is not an error.
func (m *Manager) Disable() error {
	path, err := entryPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("autostart: %w", err)
	}
	return nil
}

// Enabled reports whether the login entry exists.
func (m *Manager) Enabled() (bool, error) {
	path, err := entryPath()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("autostart: %w", err)
	}
}

// Location returns where the login entry lives.
func (m *Manager) Location() (string, error) {
	return entryPath()
}
