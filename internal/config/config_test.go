package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, "hiragana", cfg.Engine.Script)
	assert.Equal(t, "ascii", cfg.Engine.LetterSet)
	assert.True(t, cfg.Engine.Substitution)
	assert.Zero(t, cfg.Engine.Seed)
	assert.False(t, cfg.Store.Enabled)
	assert.True(t, strings.HasSuffix(cfg.Store.Path, "kanaime.db"))
	assert.Equal(t, 5*time.Second, cfg.Store.FlushInterval())
	assert.Equal(t, "kanaime", cfg.IBus.EngineName)
	assert.True(t, cfg.Logging.RedactInput)

	require.NoError(t, cfg.Validate())
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, "config.toml"), path)
	assert.Contains(t, path, "kanaime")
}

func TestKanaimeDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KANAIME_DATA_DIR", dir)

	assert.Equal(t, dir, KanaimeDir())
	assert.Equal(t, filepath.Join(dir, "kanaime.db"), DefaultConfig().Store.Path)
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "hiragana", cfg.Engine.Script)
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "config.toml",
			content: `
version = 1

[engine]
script = "katakana"
letter_set = "dictionary"
seed = 42

[dictionary]
files = ["extra.json"]

[dictionary.entries]
la = "ら"

[confusables]
remove = [" "]

[confusables.entries]
"0" = ["O"]

[store]
enabled = true
batch_size = 8
`,
		},
		{
			name: "json",
			file: "config.json",
			content: `{
  "version": 1,
  "engine": {"script": "katakana", "letter_set": "dictionary", "seed": 42},
  "dictionary": {"files": ["extra.json"], "entries": {"la": "ら"}},
  "confusables": {"entries": {"0": ["O"]}, "remove": [" "]},
  "store": {"enabled": true, "batch_size": 8}
}`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `
version: 1
engine:
  script: katakana
  letter_set: dictionary
  seed: 42
dictionary:
  files: [extra.json]
  entries:
    la: ら
confusables:
  entries:
    "0": [O]
  remove: [" "]
store:
  enabled: true
  batch_size: 8
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			cfg, err := Load(path)
			require.NoError(t, err)

			assert.Equal(t, "katakana", cfg.Engine.Script)
			assert.Equal(t, "dictionary", cfg.Engine.LetterSet)
			assert.Equal(t, uint64(42), cfg.Engine.Seed)
			assert.True(t, cfg.Engine.Substitution, "unset fields keep defaults")
			assert.Equal(t, []string{"extra.json"}, cfg.Dictionary.Files)
			assert.Equal(t, "ら", cfg.Dictionary.Entries["la"])
			assert.Equal(t, []string{"O"}, cfg.Confusables.Entries["0"])
			assert.Equal(t, []string{" "}, cfg.Confusables.Remove)
			assert.True(t, cfg.Store.Enabled)
			assert.Equal(t, 8, cfg.Store.BatchSize)
			assert.Equal(t, 5000, cfg.Store.FlushIntervalMs)
		})
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[engine]
script = "cyrillic"
letter_set = "all"

[logging]
level = "loud"
`), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.ElementsMatch(t, []string{"engine.script", "engine.letter_set", "logging.level"}, verrs.Fields())
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine\nscript="), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode TOML")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 9 }, "version"},
		{"dictionary key", func(c *Config) { c.Dictionary.Entries["kyaa"] = "きゃあ" }, "dictionary.entries.kyaa"},
		{"dictionary value", func(c *Config) { c.Dictionary.Entries["q"] = "" }, "dictionary.entries.q"},
		{"dictionary file", func(c *Config) { c.Dictionary.Files = []string{" "} }, "dictionary.files[0]"},
		{"confusable symbol", func(c *Config) { c.Confusables.Entries["ab"] = []string{"x"} }, "confusables.entries.ab"},
		{"confusable candidates", func(c *Config) { c.Confusables.Entries["a"] = nil }, "confusables.entries.a"},
		{"confusable remove", func(c *Config) { c.Confusables.Remove = []string{""} }, "confusables.remove[0]"},
		{"store path", func(c *Config) { c.Store.Enabled = true; c.Store.Path = "" }, "store.path"},
		{"store batch", func(c *Config) { c.Store.BatchSize = 0 }, "store.batch_size"},
		{"store interval", func(c *Config) { c.Store.FlushIntervalMs = 5 }, "store.flush_interval_ms"},
		{"log output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"log file", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
		{"bus name", func(c *Config) { c.IBus.BusName = "kanaime" }, "ibus.bus_name"},
		{"engine name", func(c *Config) { c.IBus.EngineName = "" }, "ibus.engine_name"},
		{"server addr", func(c *Config) { c.Server.Addr = "localhost" }, "server.addr"},
		{"server message size", func(c *Config) { c.Server.MaxMessageBytes = 1 }, "server.max_message_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, []string{tt.field}, verrs.Fields())
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("KANAIME_SCRIPT", "katakana")
	t.Setenv("KANAIME_LETTER_SET", "dictionary")
	t.Setenv("KANAIME_SUBSTITUTION", "false")
	t.Setenv("KANAIME_SEED", "7")
	t.Setenv("KANAIME_STORE_ENABLED", "1")
	t.Setenv("KANAIME_STORE_PATH", "/tmp/k.db")
	t.Setenv("KANAIME_LOG_LEVEL", "debug")
	t.Setenv("KANAIME_SERVER_ADDR", "0.0.0.0:9000")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "katakana", cfg.Engine.Script)
	assert.Equal(t, "dictionary", cfg.Engine.LetterSet)
	assert.False(t, cfg.Engine.Substitution)
	assert.Equal(t, uint64(7), cfg.Engine.Seed)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, "/tmp/k.db", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
}

func TestApplyEnvOverridesIgnoresGarbage(t *testing.T) {
	t.Setenv("KANAIME_SUBSTITUTION", "maybe")
	t.Setenv("KANAIME_SEED", "-1")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	assert.True(t, cfg.Engine.Substitution)
	assert.Zero(t, cfg.Engine.Seed)
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Dictionary.Entries["la"] = "ら"
	cfg.Confusables.Entries["0"] = []string{"O"}

	clone := cfg.Clone()
	clone.Dictionary.Entries["la"] = "ラ"
	clone.Confusables.Entries["0"][0] = "o"
	clone.Dictionary.Files = append(clone.Dictionary.Files, "x.json")

	assert.Equal(t, "ら", cfg.Dictionary.Entries["la"])
	assert.Equal(t, []string{"O"}, cfg.Confusables.Entries["0"])
	assert.Empty(t, cfg.Dictionary.Files)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	for _, ext := range []string{".toml", ".json", ".yaml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "config"+ext)

			cfg := DefaultConfig()
			cfg.Engine.Script = "katakana"
			cfg.Dictionary.Entries["la"] = "ら"
			require.NoError(t, SaveConfig(cfg, path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "katakana", loaded.Engine.Script)
			assert.Equal(t, "ら", loaded.Dictionary.Entries["la"])
		})
	}
}

func TestMarshal(t *testing.T) {
	cfg := DefaultConfig()

	data, err := Marshal(cfg, "json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"script": "hiragana"`)

	data, err = Marshal(cfg, "YAML")
	require.NoError(t, err)
	assert.Contains(t, string(data), "script: hiragana")

	data, err = Marshal(cfg, "toml")
	require.NoError(t, err)
	assert.Contains(t, string(data), `script = "hiragana"`)

	_, err = Marshal(cfg, "ini")
	assert.Error(t, err)
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotNil(t, cfg)
	assert.FileExists(t, path)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Store.Enabled = true
	cfg.Store.Path = filepath.Join(dir, "data", "kanaime.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "kanaime.log")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, filepath.Join(dir, "data"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
}

func TestLoaderWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nscript = \"hiragana\"\n"), 0600))

	l := NewLoader(path)
	l.SetDebounce(10 * time.Millisecond)
	_, err := l.Load()
	require.NoError(t, err)

	changed := make(chan *Config, 16)
	l.OnChange(func(old, new *Config) {
		assert.NotNil(t, old)
		changed <- new
	})
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nscript = \"katakana\"\n"), 0600))

	// A writer may be observed mid-write; wait for the final content.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if cfg.Engine.Script != "katakana" {
				continue
			}
			assert.Equal(t, "katakana", l.Config().Engine.Script)
			return
		case <-timeout:
			t.Fatal("config change not observed")
		}
	}
}

func TestLoaderReloadNotifiesListenersInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nscript = \"hiragana\"\n"), 0600))

	l := NewLoader(path)
	_, err := l.Load()
	require.NoError(t, err)

	var calls []string
	record := func(name string) ChangeFunc {
		return func(old, new *Config) {
			calls = append(calls, name+":"+old.Engine.Script+"->"+new.Engine.Script)
		}
	}
	l.OnChange(record("first"))
	l.OnChange(record("second"))

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nscript = \"katakana\"\n"), 0600))
	l.reload()

	assert.Equal(t, []string{"first:hiragana->katakana", "second:hiragana->katakana"}, calls)
	assert.Equal(t, "katakana", l.Config().Engine.Script)
}

func TestLoaderWatchKeepsConfigOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nscript = \"hiragana\"\n"), 0600))

	l := NewLoader(path)
	l.SetDebounce(10 * time.Millisecond)
	_, err := l.Load()
	require.NoError(t, err)
	require.NoError(t, l.Watch())
	defer l.Close()

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nscript = \"runes\"\n"), 0600))

	select {
	case err := <-l.Errors():
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	case <-time.After(5 * time.Second):
		t.Fatal("reload error not reported")
	}
	assert.Equal(t, "hiragana", l.Config().Engine.Script)
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	assert.Empty(t, FindConfigFile())
	assert.Equal(t, ConfigPath(), ResolveConfigPath(""))
	assert.Equal(t, "/etc/kanaime.toml", ResolveConfigPath("/etc/kanaime.toml"))

	path := filepath.Join(PlatformConfigDir(), "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0600))
	assert.NotEmpty(t, FindConfigFile())
	assert.Equal(t, path, ResolveConfigPath(""))
}
