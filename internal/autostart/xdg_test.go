//go:build unix && !darwin

package autostart

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXDGEntryLifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	m := &Manager{Exe: "/opt/easy pass/easypass", Args: []string{"run"}}

	loc, err := m.Location()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "autostart", "easypass.desktop"), loc)

	on, err := m.Enabled()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, m.Set(true))
	on, err = m.Enabled()
	require.NoError(t, err)
	assert.True(t, on)

	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exec=\"/opt/easy pass/easypass\" run\n")

	// Enabling again rewrites the entry in place.
	m.Exe = "/usr/bin/easypass"
	require.NoError(t, m.Enable())
	data, err = os.ReadFile(loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Exec=/usr/bin/easypass run\n")

	entries, err := os.ReadDir(filepath.Dir(loc))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, m.Set(false))
	on, err = m.Enabled()
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, m.Disable(), "a missing entry is not an error")
}
