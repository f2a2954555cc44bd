// Package logging builds the slog loggers used across kanaime: text or
// JSON, to a stream or a rotated file, with typed text and credentials
// redacted before anything is written.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Level is a slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the slog handler.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// Redacted replaces the value of redacted attributes.
const Redacted = "[REDACTED]"

// Config describes one logger.
type Config struct {
	Level  Level
	Format Format

	// Output is "stderr", "stdout", "file" or "both" (stderr and file).
	Output string

	// FilePath, MaxSize (MB), MaxAge (days), MaxBackups and Compress
	// govern the log file when Output includes it.
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool

	// RedactInput hides typed text (text, pending, symbol, source, output
	// and keyval attributes). Credentials are always redacted.
	RedactInput bool

	// Component names the program and is attached to every record as
	// "app". Subsystems add their own "component" with WithComponent.
	Component string

	// Writer overrides Output when set.
	Writer io.Writer
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		Format:      FormatText,
		Output:      "stderr",
		FilePath:    defaultLogPath(),
		MaxSize:     10,
		MaxAge:      14,
		MaxBackups:  3,
		Compress:    true,
		RedactInput: true,
		Component:   "kanaime",
	}
}

func defaultLogPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "kanaime", "kanaime.log")
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = os.Getenv("APPDATA")
		}
		return filepath.Join(base, "kanaime", "logs", "kanaime.log")
	}
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "kanaime", "kanaime.log")
}

// Logger is a slog.Logger that owns its output file, if any.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
	mu      sync.Mutex
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process logger. Until SetDefault is called it writes
// text to stderr.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLogger == nil {
		cfg := DefaultConfig()
		cfg.Writer = os.Stderr
		l, err := New(cfg)
		if err != nil {
			l = &Logger{Logger: slog.Default(), config: cfg}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault makes l the process logger, for this package and for slog.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New builds a logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	w, rotator, err := openOutput(cfg)
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redactor(cfg.RedactInput),
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("app", cfg.Component)})
	}

	return &Logger{Logger: slog.New(h), config: cfg, rotator: rotator}, nil
}

// openOutput resolves cfg.Writer or cfg.Output to a single writer. The
// rotator is non-nil when a log file is involved.
func openOutput(cfg *Config) (io.Writer, *FileRotator, error) {
	if cfg.Writer != nil {
		return cfg.Writer, nil, nil
	}

	output := strings.ToLower(cfg.Output)
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "file", "both":
		rotator, err := NewFileRotator(cfg)
		if err != nil {
			return nil, nil, err
		}
		if output == "both" {
			return io.MultiWriter(os.Stderr, rotator), rotator, nil
		}
		return rotator, rotator, nil
	default:
		return os.Stderr, nil, nil
	}
}

// credentialKeys are attribute key fragments that are always redacted.
var credentialKeys = []string{
	"password", "secret", "token", "credential",
	"private", "auth", "cookie", "api_key",
	"apikey", "bearer",
}

// inputKeys carry typed text and are redacted when RedactInput is set.
var inputKeys = map[string]bool{
	"text":    true,
	"pending": true,
	"symbol":  true,
	"source":  true,
	"output":  true,
	"keyval":  true,
}

func redactor(redactInput bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		if shouldRedact(a.Key) || (redactInput && inputKeys[strings.ToLower(a.Key)]) {
			a.Value = slog.StringValue(Redacted)
		}
		return a
	}
}

// shouldRedact reports whether key names a credential.
func shouldRedact(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range credentialKeys {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// WithComponent returns a child logger for another component.
func (l *Logger) WithComponent(name string) *Logger {
	return l.child(slog.String("component", name))
}

// WithSession returns a child logger tagged with an input session id.
func (l *Logger) WithSession(id string) *Logger {
	return l.child(slog.String("session_id", id))
}

// child shares the parent's file; closing either closes it.
func (l *Logger) child(attrs ...any) *Logger {
	return &Logger{
		Logger:  l.Logger.With(attrs...),
		config:  l.config,
		rotator: l.rotator,
	}
}

// Level returns the minimum level the logger writes.
func (l *Logger) Level() Level {
	return l.config.Level
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Close()
}

// Sync flushes the log file to disk.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Sync()
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: DefaultConfig(),
	}
}

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"":        LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel maps debug, info, warn (or warning) and error, in any case, to
// a level. The empty string is info.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelNames[strings.ToLower(s)]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// LevelString is the inverse of ParseLevel. Levels between the named ones
// read as info.
func LevelString(level Level) string {
	switch level {
	case LevelDebug, LevelWarn, LevelError:
		return strings.ToLower(level.String())
	}
	return "info"
}

// ParseFormat parses "text" or "json". The empty string is text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %s", s)
}
