package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode/utf8"
)

// ErrInvalidConfig matches any error returned by ValidateConfig.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every rejected field of one configuration.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

// Is reports ErrInvalidConfig for any non-empty set of errors.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && len(e) > 0
}

// Fields returns the names of the invalid fields.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i := range e {
		fields[i] = e[i].Field
	}
	return fields
}

func (e *ValidationErrors) addf(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// oneOf rejects value unless it is among valid.
func (e *ValidationErrors) oneOf(field, what, value string, valid ...string) {
	for _, v := range valid {
		if value == v {
			return
		}
	}
	e.addf(field, "invalid %s: %s (valid: %s)", what, value, strings.Join(valid, ", "))
}

func (e *ValidationErrors) between(field string, value, lo, hi int64) {
	if value < lo || value > hi {
		e.addf(field, "value must be between %d and %d", lo, hi)
	}
}

func (e *ValidationErrors) notNegative(field, what string, value int) {
	if value < 0 {
		e.addf(field, "%s cannot be negative", what)
	}
}

func (e *ValidationErrors) single(field, sym string) {
	if utf8.RuneCountInString(sym) != 1 {
		e.addf(field, "symbol must be a single character")
	}
}

// ValidateConfig checks every section and returns all problems at once as
// ValidationErrors, or nil.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs.addf("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	// engine
	errs.oneOf("engine.script", "script", strings.ToLower(c.Engine.Script), "hiragana", "katakana")
	errs.oneOf("engine.letter_set", "letter set", strings.ToLower(c.Engine.LetterSet), "ascii", "dictionary")

	// dictionary
	for i, f := range c.Dictionary.Files {
		if strings.TrimSpace(f) == "" {
			errs.addf(fmt.Sprintf("dictionary.files[%d]", i), "path is empty")
		}
	}
	for key, value := range c.Dictionary.Entries {
		field := "dictionary.entries." + key
		if !isRomajiKey(key) {
			errs.addf(field, "key must be 1 to 3 ASCII letters")
		}
		if value == "" {
			errs.addf(field, "value is empty")
		}
	}

	// confusables
	for sym, candidates := range c.Confusables.Entries {
		field := "confusables.entries." + sym
		errs.single(field, sym)
		if len(candidates) == 0 {
			errs.addf(field, "at least one candidate is required")
		}
	}
	for i, sym := range c.Confusables.Remove {
		errs.single(fmt.Sprintf("confusables.remove[%d]", i), sym)
	}

	// store
	st := &c.Store
	if st.Enabled && st.Path == "" {
		errs.addf("store.path", "path is required when the store is enabled")
	}
	errs.between("store.batch_size", int64(st.BatchSize), 1, 10000)
	if st.FlushIntervalMs < 100 {
		errs.addf("store.flush_interval_ms", "flush interval must be at least 100 ms")
	}
	errs.notNegative("store.busy_timeout_ms", "busy timeout", st.BusyTimeoutMs)

	validateLogging(&errs, &c.Logging)

	// ibus
	switch {
	case c.IBus.BusName == "":
		errs.addf("ibus.bus_name", "required field is missing")
	case !strings.Contains(c.IBus.BusName, "."):
		errs.addf("ibus.bus_name", "bus name must contain at least one dot")
	}
	if c.IBus.EngineName == "" {
		errs.addf("ibus.engine_name", "required field is missing")
	}

	// server
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs.addf("server.addr", "invalid listen address: %v", err)
	}
	errs.notNegative("server.read_timeout_sec", "read timeout", c.Server.ReadTimeoutSec)
	errs.between("server.max_message_bytes", c.Server.MaxMessageBytes, 16, 1<<20)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateLogging(errs *ValidationErrors, l *LoggingConfig) {
	errs.oneOf("logging.level", "log level", l.Level, "debug", "info", "warn", "error")
	errs.oneOf("logging.format", "log format", l.Format, "text", "json")

	switch l.Output {
	case "file", "both":
		if l.FilePath == "" {
			errs.addf("logging.file_path", "file path is required when output is 'file' or 'both'")
		}
	default:
		errs.oneOf("logging.output", "log output", l.Output, "stdout", "stderr", "file", "both")
	}

	if l.MaxSizeMB < 1 {
		errs.addf("logging.max_size_mb", "max size must be at least 1 MB")
	}
	errs.notNegative("logging.max_backups", "max backups", l.MaxBackups)
	errs.notNegative("logging.max_age_days", "max age", l.MaxAgeDays)
}

func isRomajiKey(key string) bool {
	if key == "" || len(key) > 3 {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i] | 0x20
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
