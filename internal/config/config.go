// Package config handles configuration loading, validation, and management for kanaime.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete kanaime configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine configures how keystrokes are transliterated.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Dictionary configures the romaji table.
	Dictionary DictionaryConfig `toml:"dictionary" json:"dictionary" yaml:"dictionary"`

	// Confusables configures glyph substitution.
	Confusables ConfusablesConfig `toml:"confusables" json:"confusables" yaml:"confusables"`

	// Store configures the user dictionary and conversion statistics database.
	Store StoreConfig `toml:"store" json:"store" yaml:"store"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IBus configures the Linux input method host.
	IBus IBusConfig `toml:"ibus" json:"ibus" yaml:"ibus"`

	// Server configures the websocket host.
	Server ServerConfig `toml:"server" json:"server" yaml:"server"`
}

// EngineConfig holds transliteration settings.
type EngineConfig struct {
	// Script is the output script: "hiragana" or "katakana".
	Script string `toml:"script" json:"script" yaml:"script"`

	// LetterSet decides which letters are buffered: "ascii" buffers every
	// ASCII letter, "dictionary" only letters that start or continue a key.
	LetterSet string `toml:"letter_set" json:"letter_set" yaml:"letter_set"`

	// Substitution enables look-alike glyph substitution.
	Substitution bool `toml:"substitution" json:"substitution" yaml:"substitution"`

	// Seed makes substitution reproducible. Zero draws from the process-wide
	// generator.
	Seed uint64 `toml:"seed" json:"seed" yaml:"seed"`
}

// DictionaryConfig holds romaji table settings.
type DictionaryConfig struct {
	// Files are dictionary files (JSON or TOML) merged over the built-in table
	// in order.
	Files []string `toml:"files" json:"files" yaml:"files"`

	// Entries are merged last and win over every other source.
	Entries map[string]string `toml:"entries" json:"entries" yaml:"entries"`

	// UseStore merges user entries from the store database.
	UseStore bool `toml:"use_store" json:"use_store" yaml:"use_store"`
}

// ConfusablesConfig holds glyph substitution settings.
type ConfusablesConfig struct {
	// Entries replace the candidates of a symbol. Keys are single characters.
	Entries map[string][]string `toml:"entries" json:"entries" yaml:"entries"`

	// Remove drops symbols from the built-in table.
	Remove []string `toml:"remove" json:"remove" yaml:"remove"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	// Enabled turns the SQLite store on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the path to the database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BatchSize is how many conversions are buffered before a write.
	BatchSize int `toml:"batch_size" json:"batch_size" yaml:"batch_size"`

	// FlushIntervalMs is how often buffered conversions are written even if
	// the batch is not full.
	FlushIntervalMs int `toml:"flush_interval_ms" json:"flush_interval_ms" yaml:"flush_interval_ms"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// FlushInterval returns FlushIntervalMs as a duration.
func (s StoreConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalMs) * time.Millisecond
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`

	// RedactInput hides typed text in log records.
	RedactInput bool `toml:"redact_input" json:"redact_input" yaml:"redact_input"`
}

// IBusConfig holds IBus host settings.
type IBusConfig struct {
	// BusName is the well-known D-Bus name the engine process requests.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	// EngineName is the engine name registered in the component XML.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`

	// ComponentDir is where the component XML is installed.
	ComponentDir string `toml:"component_dir" json:"component_dir" yaml:"component_dir"`

	// ExecPath is the engine binary ibus-daemon starts. Empty uses the
	// running executable.
	ExecPath string `toml:"exec_path" json:"exec_path" yaml:"exec_path"`
}

// ServerConfig holds websocket host settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `toml:"addr" json:"addr" yaml:"addr"`

	// ReadTimeoutSec closes idle connections. Zero disables the timeout.
	ReadTimeoutSec int `toml:"read_timeout_sec" json:"read_timeout_sec" yaml:"read_timeout_sec"`

	// MaxMessageBytes is the largest accepted websocket message.
	MaxMessageBytes int64 `toml:"max_message_bytes" json:"max_message_bytes" yaml:"max_message_bytes"`

	// AllowedOrigins lists accepted Origin headers. Empty accepts same-host
	// requests only; "*" accepts all.
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// ReadTimeout returns ReadTimeoutSec as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSec) * time.Second
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := KanaimeDir()

	return &Config{
		Version: Version,
		Engine: EngineConfig{
			Script:       "hiragana",
			LetterSet:    "ascii",
			Substitution: true,
		},
		Dictionary: DictionaryConfig{
			Files:    []string{},
			Entries:  map[string]string{},
			UseStore: true,
		},
		Confusables: ConfusablesConfig{
			Entries: map[string][]string{},
			Remove:  []string{},
		},
		Store: StoreConfig{
			Enabled:         false,
			Path:            filepath.Join(dir, "kanaime.db"),
			BatchSize:       64,
			FlushIntervalMs: 5000,
			BusyTimeoutMs:   5000,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			Output:      "stderr",
			FilePath:    filepath.Join(PlatformLogDir(), "kanaime.log"),
			MaxSizeMB:   10,
			MaxBackups:  3,
			MaxAgeDays:  14,
			Compress:    true,
			RedactInput: true,
		},
		IBus: IBusConfig{
			BusName:      "org.freedesktop.IBus.Kanaime",
			EngineName:   "kanaime",
			ComponentDir: defaultComponentDir(),
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7272",
			ReadTimeoutSec:  300,
			MaxMessageBytes: 4096,
			AllowedOrigins:  []string{},
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// ResolveConfigPath returns path if set, else the first config file found in
// the standard locations, else the default path.
func ResolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if found := FindConfigFile(); found != "" {
		return found
	}
	return ConfigPath()
}

// Load reads configuration from the specified path, applies environment
// overrides and validates the result. A missing file yields the defaults.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	return NewLoader(path).Load()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{}
	if c.Store.Enabled {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return &os.PathError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return nil
}

// KanaimeDir returns the base data directory.
// Uses platform-specific paths or the KANAIME_DATA_DIR environment override.
func KanaimeDir() string {
	if envDir := os.Getenv("KANAIME_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KANAIME_ and use underscores.
// Unparseable values are ignored.
func (c *Config) ApplyEnvOverrides() {
	// Engine overrides
	if v := os.Getenv("KANAIME_SCRIPT"); v != "" {
		c.Engine.Script = v
	}
	if v := os.Getenv("KANAIME_LETTER_SET"); v != "" {
		c.Engine.LetterSet = v
	}
	if v, ok := envBool("KANAIME_SUBSTITUTION"); ok {
		c.Engine.Substitution = v
	}
	if v := os.Getenv("KANAIME_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Engine.Seed = seed
		}
	}

	// Store overrides
	if v, ok := envBool("KANAIME_STORE_ENABLED"); ok {
		c.Store.Enabled = v
	}
	if v := os.Getenv("KANAIME_STORE_PATH"); v != "" {
		c.Store.Path = v
	}

	// Logging overrides
	if v := os.Getenv("KANAIME_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KANAIME_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("KANAIME_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}

	// Server overrides
	if v := os.Getenv("KANAIME_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.Dictionary.Files = append([]string{}, c.Dictionary.Files...)
	clone.Dictionary.Entries = make(map[string]string, len(c.Dictionary.Entries))
	for k, v := range c.Dictionary.Entries {
		clone.Dictionary.Entries[k] = v
	}
	clone.Confusables.Entries = make(map[string][]string, len(c.Confusables.Entries))
	for k, v := range c.Confusables.Entries {
		clone.Confusables.Entries[k] = append([]string{}, v...)
	}
	clone.Confusables.Remove = append([]string{}, c.Confusables.Remove...)
	clone.Server.AllowedOrigins = append([]string{}, c.Server.AllowedOrigins...)

	return &clone
}
