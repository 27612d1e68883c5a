package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easypass/internal/charset"
	"easypass/internal/derive"
	"easypass/internal/generator"
	"easypass/internal/security"
	"easypass/internal/trigger"
)

const sampleTOML = `
version = 1

[default]
master_key = "hunter2"
length = 20
symbols = false
counter = 3
trigger_prefix = ";;"
concat_trigger_prefix = "!!"

[trigger]
terminators = ["space", "enter"]
max_site_length = 32

[injection]
backend = "stdout"

[sites."GitHub.com"]
length = 12
symbols = true
counter = 7
`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"EASYPASS_MASTER_KEY",
		"EASYPASS_LOG_LEVEL",
		"EASYPASS_INJECTION_BACKEND",
		"EASYPASS_COUNTER_DB",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	require.NoError(t, ValidateSchema(cfg))
	assert.False(t, cfg.HasMasterKey())
	assert.False(t, cfg.Default.Autostart)

	ps := cfg.PasswordConfig("example.org")
	assert.Equal(t, 16, ps.Length)
	assert.Equal(t, charset.All, ps.Classes)
	assert.Equal(t, 1, ps.Counter)

	opts, err := cfg.TriggerOptions()
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, ";;", opts[0].Prefix)
	assert.Equal(t, derive.ModeSecure, opts[0].Mode)
	assert.Equal(t, "!!", opts[1].Prefix)
	assert.Equal(t, derive.ModeSimple, opts[1].Mode)
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EASYPASS_CONFIG_DIR", dir)
	assert.Equal(t, filepath.Join(dir, "config.toml"), ConfigPath())

	t.Setenv("EASYPASS_DATA_DIR", dir)
	assert.Equal(t, filepath.Join(dir, "counters.db"), DefaultConfig().Storage.CounterDB)
}

func TestLoadTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.toml", sampleTOML)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Default.MasterKey)
	assert.Equal(t, "stdout", cfg.Injection.Backend)
	assert.Equal(t, 32, cfg.Trigger.MaxSiteLength)
	// Unset keys keep their defaults.
	assert.True(t, cfg.Default.Lowercase)
	assert.Equal(t, "info", cfg.Logging.Level)

	ps := cfg.PasswordConfig("example.org")
	assert.Equal(t, 20, ps.Length)
	assert.Equal(t, charset.Lower|charset.Upper|charset.Digit, ps.Classes)
	assert.Equal(t, 3, ps.Counter)

	ps = cfg.PasswordConfig("GITHUB.com")
	assert.Equal(t, 12, ps.Length)
	assert.Equal(t, charset.All, ps.Classes)
	assert.Equal(t, 7, ps.Counter)

	opts, err := cfg.TriggerOptions()
	require.NoError(t, err)
	assert.True(t, opts[0].Terminators.Has(trigger.KeySpace))
	assert.False(t, opts[0].Terminators.Has(trigger.KeyTab))
}

func TestLoadJSONAndYAML(t *testing.T) {
	clearEnv(t)

	jsonPath := writeConfig(t, "config.json", `{
		"version": 1,
		"default": {"length": 24, "counter": 1, "trigger_prefix": "pw:", "concat_trigger_prefix": ""},
		"sites": {"Example.org": {"digits": false}}
	}`)
	cfg, err := NewLoader(jsonPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.Default.Length)
	assert.Equal(t, charset.Lower|charset.Upper|charset.Symbol, cfg.PasswordConfig("example.org").Classes)

	opts, err := cfg.TriggerOptions()
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "pw:", opts[0].Prefix)

	yamlPath := writeConfig(t, "config.yaml", "version: 1\ndefault:\n  length: 8\n  counter: 2\n  trigger_prefix: \";;\"\n")
	cfg, err = NewLoader(yamlPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Default.Length)
	assert.Equal(t, 2, cfg.Default.Counter)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Default.Length)
}

func TestLoadRejectsReadableKeyFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permissions are not checked on Windows")
	}
	clearEnv(t)
	path := writeConfig(t, "config.toml", sampleTOML)
	require.NoError(t, os.Chmod(path, 0644))

	_, err := NewLoader(path).Load()
	assert.ErrorIs(t, err, security.ErrInsecurePermissions)

	// Without a key the file may be world readable.
	noKey := writeConfig(t, "nokey.toml", "version = 1\n")
	require.NoError(t, os.Chmod(noKey, 0644))
	_, err = NewLoader(noKey).Load()
	assert.NoError(t, err)
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.toml", "version = 1\n[default]\nlength = 0\n")

	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "default.length")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("EASYPASS_MASTER_KEY", "from-env")
	t.Setenv("EASYPASS_LOG_LEVEL", "debug")
	t.Setenv("EASYPASS_INJECTION_BACKEND", "wtype")
	t.Setenv("EASYPASS_COUNTER_DB", "/tmp/c.db")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "from-env", cfg.Default.MasterKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "wtype", cfg.Injection.Backend)
	assert.Equal(t, "/tmp/c.db", cfg.Storage.CounterDB)

	// Keys from the environment are taken but never wiped in place.
	key, err := cfg.TakeMasterKey()
	require.NoError(t, err)
	defer key.Destroy()
	assert.Equal(t, "from-env", os.Getenv("EASYPASS_MASTER_KEY"))
}

func TestValidate(t *testing.T) {
	intp := func(v int) *int { return &v }
	boolp := func(v bool) *bool { return &v }

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad version", func(c *Config) { c.Version = 9 }, "version"},
		{"no classes", func(c *Config) {
			c.Default.Lowercase, c.Default.Uppercase, c.Default.Digits, c.Default.Symbols = false, false, false, false
		}, "default"},
		{"too short for classes", func(c *Config) { c.Default.Length = 3 }, "default.length"},
		{"zero counter", func(c *Config) { c.Default.Counter = 0 }, "default.counter"},
		{"empty prefix", func(c *Config) { c.Default.TriggerPrefix = "" }, "default.trigger_prefix"},
		{"space in prefix", func(c *Config) { c.Default.TriggerPrefix = "; ;" }, "default.trigger_prefix"},
		{"same prefixes", func(c *Config) { c.Default.ConcatTriggerPrefix = ";;" }, "default.concat_trigger_prefix"},
		{"bad terminator", func(c *Config) { c.Trigger.Terminators = []string{"comma"} }, "trigger.terminators"},
		{"no terminators", func(c *Config) { c.Trigger.Terminators = nil }, "trigger.terminators"},
		{"bad backend", func(c *Config) { c.Injection.Backend = "xdg" }, "injection.backend"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"file without path", func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		}, "logging.file_path"},
		{"site length", func(c *Config) { c.Sites["a"] = SiteConfig{Length: intp(1000)} }, `sites."a".length`},
		{"site counter", func(c *Config) { c.Sites["a"] = SiteConfig{Counter: intp(0)} }, `sites."a".counter`},
		{"site no classes", func(c *Config) {
			c.Sites["a"] = SiteConfig{
				Lowercase: boolp(false), Uppercase: boolp(false), Digits: boolp(false), Symbols: boolp(false),
			}
		}, `sites."a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidateSchemaRejects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Injection.Backend = "carrier-pigeon"
	assert.ErrorIs(t, ValidateSchema(cfg), ErrInvalidConfig)

	cfg = DefaultConfig()
	cfg.Default.TriggerPrefix = "a b"
	assert.Error(t, ValidateSchema(cfg))

	cfg = DefaultConfig()
	cfg.Default.MasterKey = "secret-value"
	cfg.Default.Length = 0
	err := ValidateSchema(cfg)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-value")
}

func TestTakeMasterKey(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.toml", sampleTOML)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	key, err := cfg.TakeMasterKey()
	require.NoError(t, err)
	defer key.Destroy()

	assert.Equal(t, []byte("hunter2"), key.Bytes())
	assert.Empty(t, cfg.Default.MasterKey)

	_, err = cfg.TakeMasterKey()
	assert.ErrorIs(t, err, ErrNoMasterKey)
	assert.ErrorIs(t, err, generator.ErrConfig)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	length := 30
	cfg := DefaultConfig()
	cfg.Default.MasterKey = "k"
	cfg.Sites["example.org"] = SiteConfig{Length: &length}

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			require.NoError(t, SaveConfig(cfg, path))

			if runtime.GOOS != "windows" {
				info, err := os.Stat(path)
				require.NoError(t, err)
				assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
			}

			loaded, err := NewLoader(path).Load()
			require.NoError(t, err)
			assert.Equal(t, "k", loaded.Default.MasterKey)
			assert.Equal(t, 30, loaded.PasswordConfig("example.org").Length)
			assert.Equal(t, cfg.Trigger, loaded.Trigger)
		})
	}
}

func TestSetAutostart(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.toml", sampleTOML)
	t.Setenv("EASYPASS_MASTER_KEY", "from-environment")

	require.NoError(t, SetAutostart(path, true))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "autostart = true")
	assert.Contains(t, string(raw), `master_key = "hunter2"`)
	assert.NotContains(t, string(raw), "from-environment")

	clearEnv(t)
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Default.Autostart)
	assert.Equal(t, 20, cfg.Default.Length)
	assert.Equal(t, 12, cfg.PasswordConfig("github.com").Length)

	require.NoError(t, SetAutostart(path, false))
	cfg, err = NewLoader(path).Load()
	require.NoError(t, err)
	assert.False(t, cfg.Default.Autostart)
}

func TestSetAutostartCreatesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	require.NoError(t, SetAutostart(path, false))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.False(t, cfg.Default.Autostart)
	assert.Equal(t, DefaultConfig().Default.Length, cfg.Default.Length)
}

func TestLoadOrCreate(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")

	_, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Default.MasterKey = "k"
	cfg.Sites["a"] = SiteConfig{}

	c := cfg.Clone()
	assert.Empty(t, c.Default.MasterKey)
	c.Sites["b"] = SiteConfig{}
	c.Trigger.Terminators[0] = "tab"
	assert.NotContains(t, cfg.Sites, "b")
	assert.Equal(t, "space", cfg.Trigger.Terminators[0])
}

type fakeCounters struct {
	counters map[string]int
	err      error
	asked    []string
}

func (f *fakeCounters) Get(_ context.Context, site string) (int, bool, error) {
	f.asked = append(f.asked, site)
	if f.err != nil {
		return 0, false, f.err
	}
	n, ok := f.counters[site]
	return n, ok, nil
}

func TestResolver(t *testing.T) {
	counter := 4
	cfg := DefaultConfig()
	cfg.Sites["github.com"] = SiteConfig{Counter: &counter}
	key, err := security.FromBytes([]byte("master"))
	require.NoError(t, err)

	store := &fakeCounters{counters: map[string]int{"stored.org": 9}}
	r := NewResolver(cfg, key, store)
	defer r.Close()

	opts, err := r.Resolve("Stored.ORG")
	require.NoError(t, err)
	assert.Equal(t, 9, opts.Counter)
	assert.Equal(t, "Stored.ORG", opts.Site)
	assert.Equal(t, []byte("master"), opts.MasterKey)
	assert.Equal(t, 16, opts.Length)
	assert.Equal(t, charset.All, opts.Classes)
	assert.Equal(t, "stored.org", store.asked[0])

	opts, err = r.Resolve("github.com")
	require.NoError(t, err)
	assert.Equal(t, 4, opts.Counter)

	opts, err = r.Resolve("other.net")
	require.NoError(t, err)
	assert.Equal(t, 1, opts.Counter)

	next := DefaultConfig()
	next.Default.Length = 40
	r.Update(next)
	opts, err = r.Resolve("other.net")
	require.NoError(t, err)
	assert.Equal(t, 40, opts.Length)

	store.err = errors.New("database is locked")
	_, err = r.Resolve("other.net")
	assert.ErrorContains(t, err, "database is locked")
}

func TestResolverWithoutKey(t *testing.T) {
	r := NewResolver(DefaultConfig(), nil, nil)
	_, err := r.Resolve("github.com")
	assert.ErrorIs(t, err, generator.ErrConfig)
}

func TestResolverFeedsGenerator(t *testing.T) {
	key, err := security.FromBytes([]byte("correct horse"))
	require.NoError(t, err)
	r := NewResolver(DefaultConfig(), key, nil)
	defer r.Close()

	opts, err := r.Resolve("github.com")
	require.NoError(t, err)
	pw, err := generator.Generate(opts)
	require.NoError(t, err)
	defer pw.Wipe()
	assert.Equal(t, 16, pw.Len())
}

func TestLoaderWatchReloads(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.toml", "version = 1\n[default]\nlength = 10\ncounter = 1\ntrigger_prefix = \";;\"\n")

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	l.OnChange(func(c *Config) { changed <- c })
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("version = 1\n[default]\nlength = 22\ncounter = 1\ntrigger_prefix = \";;\"\n"), 0600))

	select {
	case c := <-changed:
		assert.Equal(t, 22, c.Default.Length)
		assert.Equal(t, 22, l.Config().Default.Length)
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
