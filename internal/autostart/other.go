//go:build !unix && !windows

package autostart

func (m *Manager) Enable() error { return ErrUnsupported }

// Disable succeeds since there is never an entry to remove.
func (m *Manager) Disable() error { return nil }

func (m *Manager) Enabled() (bool, error) { return false, nil }

func (m *Manager) Location() (string, error) { return "", ErrUnsupported }
