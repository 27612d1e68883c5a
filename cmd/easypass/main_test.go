package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easypass/internal/charset"
	"easypass/internal/config"
	"easypass/internal/derive"
	"easypass/internal/generator"
	"easypass/internal/health"
)

const testKey = "correct horse battery staple"

// newTestApp isolates every path the CLI touches in a temp dir. Stdin is
// /dev/null so the key prompt is never shown.
func newTestApp(t *testing.T) *app {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("EASYPASS_CONFIG_DIR", dir)
	t.Setenv("EASYPASS_DATA_DIR", dir)
	t.Setenv("XDG_RUNTIME_DIR", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("EASYPASS_COUNTER_DB", "")
	t.Setenv("EASYPASS_MASTER_KEY", "")

	null, err := os.Open(os.DevNull)
	require.NoError(t, err)
	t.Cleanup(func() { null.Close() })

	return &app{stdin: null, configPath: filepath.Join(dir, "config.toml")}
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()

	root := a.rootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", a.configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func expectedPassword(t *testing.T, site string, counter, length int, mode derive.Mode) string {
	t.Helper()
	pw, err := generator.Generate(generator.Options{
		MasterKey: []byte(testKey),
		Site:      site,
		Counter:   counter,
		Length:    length,
		Classes:   charset.All,
		Mode:      mode,
	})
	require.NoError(t, err)
	defer pw.Wipe()
	return pw.Reveal()
}

func TestVersion(t *testing.T) {
	a := newTestApp(t)
	out, err := execute(t, a, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "easypass dev"), out)
}

func TestConfigInitCheckShow(t *testing.T) {
	a := newTestApp(t)

	out, err := execute(t, a, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, a.configPath+"\n", out)

	out, err = execute(t, a, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "not found, defaults in use")

	_, err = execute(t, a, "config", "init")
	require.NoError(t, err)
	info, err := os.Stat(a.configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = execute(t, a, "config", "init")
	assert.Error(t, err)
	_, err = execute(t, a, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = execute(t, a, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "No master key configured")

	out, err = execute(t, a, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `trigger_prefix = ";;"`)

	out, err = execute(t, a, "config", "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"trigger_prefix": ";;"`)
}

func TestAutostartCommands(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG autostart entries only")
	}
	a := newTestApp(t)
	entry := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "autostart", "easypass.desktop")

	out, err := execute(t, a, "autostart", "status")
	require.NoError(t, err)
	assert.Equal(t, "Autostart: disabled\n", out)

	out, err = execute(t, a, "autostart", "enable")
	require.NoError(t, err)
	assert.Equal(t, "Autostart enabled: "+entry+"\n", out)

	data, err := os.ReadFile(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[Desktop Entry]\n")
	assert.Contains(t, string(data), " run\n")

	cfg, err := config.NewLoader(a.configPath).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Default.Autostart)

	out, err = execute(t, a, "autostart", "status")
	require.NoError(t, err)
	assert.Equal(t, "Autostart: enabled ("+entry+")\n", out)

	// A removed entry with the setting still on is reported as drift.
	require.NoError(t, os.Remove(entry))
	out, err = execute(t, a, "autostart", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Config sets autostart = true")

	out, err = execute(t, a, "autostart", "disable")
	require.NoError(t, err)
	assert.Equal(t, "Autostart disabled\n", out)
	assert.NoFileExists(t, entry)

	cfg, err = config.NewLoader(a.configPath).Load()
	require.NoError(t, err)
	assert.False(t, cfg.Default.Autostart)
}

func TestConfigShowHidesMasterKey(t *testing.T) {
	a := newTestApp(t)

	cfg := config.DefaultConfig()
	cfg.Default.MasterKey = "hunter2-hunter2"
	require.NoError(t, config.SaveConfig(cfg, a.configPath))

	out, err := execute(t, a, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "hunter2")

	out, err = execute(t, a, "config", "check")
	require.NoError(t, err)
	assert.NotContains(t, out, "No master key")
}

func TestConfigCheckRejectsInvalid(t *testing.T) {
	a := newTestApp(t)

	cfg := config.DefaultConfig()
	cfg.Default.Length = 0
	require.NoError(t, config.SaveConfig(cfg, a.configPath))

	_, err := execute(t, a, "config", "check")
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	a := newTestApp(t)
	t.Setenv("EASYPASS_MASTER_KEY", testKey)

	out, err := execute(t, a, "generate", "github.com")
	require.NoError(t, err)
	assert.Equal(t, expectedPassword(t, "github.com", 1, 16, derive.ModeSecure)+"\n", out)

	out, err = execute(t, a, "generate", "GitHub.com", "--counter", "2", "--length", "24")
	require.NoError(t, err)
	assert.Equal(t, expectedPassword(t, "github.com", 2, 24, derive.ModeSecure)+"\n", out)

	out, err = execute(t, a, "generate", "GitHub.com", "--simple")
	require.NoError(t, err)
	assert.Equal(t, testKey+"!GitHub.com\n", out)
}

func TestGenerateRejectsBadOptions(t *testing.T) {
	a := newTestApp(t)
	t.Setenv("EASYPASS_MASTER_KEY", testKey)

	_, err := execute(t, a, "generate", "github.com", "--length", "2")
	assert.ErrorIs(t, err, generator.ErrConfig)

	_, err = execute(t, a, "generate", "github.com", "--counter", "0")
	assert.ErrorIs(t, err, generator.ErrConfig)
}

func TestGenerateWithoutKey(t *testing.T) {
	a := newTestApp(t)

	_, err := execute(t, a, "generate", "github.com")
	assert.ErrorIs(t, err, config.ErrNoMasterKey)
}

func TestGenerateUsesStoredCounter(t *testing.T) {
	a := newTestApp(t)
	t.Setenv("EASYPASS_MASTER_KEY", testKey)

	_, err := execute(t, a, "counter", "set", "github.com", "5")
	require.NoError(t, err)

	out, err := execute(t, a, "generate", "github.com")
	require.NoError(t, err)
	assert.Equal(t, expectedPassword(t, "github.com", 5, 16, derive.ModeSecure)+"\n", out)
}

func TestCounterCommands(t *testing.T) {
	a := newTestApp(t)

	out, err := execute(t, a, "counter", "list")
	require.NoError(t, err)
	assert.Equal(t, "No stored counters.\n", out)

	out, err = execute(t, a, "counter", "get", "github.com")
	require.NoError(t, err)
	assert.Equal(t, "github.com: 1 (config)\n", out)

	out, err = execute(t, a, "counter", "bump", "github.com")
	require.NoError(t, err)
	assert.Equal(t, "github.com: 2\n", out)

	out, err = execute(t, a, "counter", "get", "GitHub.com")
	require.NoError(t, err)
	assert.Equal(t, "GitHub.com: 2 (stored)\n", out)

	out, err = execute(t, a, "counter", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "github.com")

	out, err = execute(t, a, "counter", "delete", "github.com")
	require.NoError(t, err)
	assert.Equal(t, "github.com: deleted\n", out)

	out, err = execute(t, a, "counter", "delete", "github.com")
	require.NoError(t, err)
	assert.Equal(t, "github.com: no stored counter\n", out)

	_, err = execute(t, a, "counter", "set", "github.com", "zero")
	assert.Error(t, err)
	_, err = execute(t, a, "counter", "set", "github.com", "0")
	assert.Error(t, err)
}

func TestCounterBumpStartsFromSiteOverride(t *testing.T) {
	a := newTestApp(t)

	cfg := config.DefaultConfig()
	seven := 7
	cfg.Sites = map[string]config.SiteConfig{"example.org": {Counter: &seven}}
	require.NoError(t, config.SaveConfig(cfg, a.configPath))

	out, err := execute(t, a, "counter", "bump", "example.org")
	require.NoError(t, err)
	assert.Equal(t, "example.org: 8\n", out)
}

func TestCounterStoreDisabled(t *testing.T) {
	a := newTestApp(t)

	cfg := config.DefaultConfig()
	cfg.Storage.CounterDB = ""
	require.NoError(t, config.SaveConfig(cfg, a.configPath))

	_, err := execute(t, a, "counter", "list")
	assert.ErrorIs(t, err, errStoreDisabled)
}

func TestReplay(t *testing.T) {
	a := newTestApp(t)
	t.Setenv("EASYPASS_MASTER_KEY", testKey)

	out, err := execute(t, a, "replay", "hello ;;githbu{bs}{bs}ub.com ;;abc{esc}")
	require.NoError(t, err)
	assert.Contains(t, out, "trigger ;;github.com (secure)\n")
	assert.Contains(t, out, "keep 1, delete 12, insert [REDACTED 16 chars]\n")
	assert.Contains(t, out, "1 completed, 1 aborted\n")

	out, err = execute(t, a, "replay", "--reveal", "!!local{enter};;git")
	require.NoError(t, err)
	assert.Contains(t, out, "trigger !!local (simple)\n")
	assert.Contains(t, out, "keep 1, delete 7, insert "+testKey+"!local\n")
	assert.Contains(t, out, "pending ;;git\n")
}

func TestReplayWithoutKey(t *testing.T) {
	a := newTestApp(t)

	out, err := execute(t, a, "replay", ";;github.com ")
	require.NoError(t, err)
	assert.Contains(t, out, "config: ")
	assert.NotContains(t, out, "delete ")
}

func TestReplayBadScript(t *testing.T) {
	a := newTestApp(t)

	_, err := execute(t, a, "replay", ";;{nope}")
	assert.Error(t, err)
}

func TestDaemonControlWhenStopped(t *testing.T) {
	a := newTestApp(t)

	out, err := execute(t, a, "status")
	require.NoError(t, err)
	assert.Equal(t, "Daemon: not running\n", out)

	out, err = execute(t, a, "stop")
	require.NoError(t, err)
	assert.Equal(t, "Daemon is not running.\n", out)

	_, err = execute(t, a, "reload")
	assert.Error(t, err)
}

type fakeAvailability struct {
	ok     bool
	reason string
}

func (f fakeAvailability) Available() (bool, string) { return f.ok, f.reason }

func TestDoctorChecks(t *testing.T) {
	newTestApp(t)

	cfg := config.DefaultConfig()
	cfg.Injection.Backend = "stdout"
	cfg.Notify.Desktop = false

	checker := health.NewChecker()
	registerChecks(checker, cfg, true,
		fakeAvailability{true, "found keyboard device: /dev/input/event3"},
		fakeAvailability{false, "Wayland detected."},
	)
	results := checker.Check(context.Background())

	byName := map[string]health.CheckResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, health.StatusHealthy, byName["keyboard"].Status)
	assert.Equal(t, "backend stdout", byName["injection"].Message)
	assert.Equal(t, health.StatusDegraded, byName["focus"].Status)
	assert.Equal(t, health.StatusHealthy, byName["counter store"].Status)
	assert.Equal(t, health.StatusHealthy, byName["master key"].Status)
	assert.NotContains(t, byName, "notifications")
	assert.NotEqual(t, health.StatusUnhealthy, health.Overall(results))

	checker = health.NewChecker()
	registerChecks(checker, cfg, false,
		fakeAvailability{false, "no keyboard devices found"},
		fakeAvailability{true, ""},
	)
	assert.Equal(t, health.StatusUnhealthy, health.Overall(checker.Check(context.Background())))
}
