package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long the loader waits after the last file event
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// codec decodes and encodes one file format.
type codec struct {
	name   string
	decode func(data []byte, cfg *Config) error
	encode func(cfg *Config) ([]byte, error)
}

var (
	tomlCodec = codec{
		name: "TOML",
		decode: func(data []byte, cfg *Config) error {
			_, err := toml.Decode(string(data), cfg)
			return err
		},
		encode: func(cfg *Config) ([]byte, error) {
			var buf bytes.Buffer
			err := toml.NewEncoder(&buf).Encode(cfg)
			return buf.Bytes(), err
		},
	}
	jsonCodec = codec{
		name: "JSON",
		decode: func(data []byte, cfg *Config) error {
			return json.Unmarshal(data, cfg)
		},
		encode: func(cfg *Config) ([]byte, error) {
			return json.MarshalIndent(cfg, "", "  ")
		},
	}
	yamlCodec = codec{
		name: "YAML",
		decode: func(data []byte, cfg *Config) error {
			return yaml.Unmarshal(data, cfg)
		},
		encode: func(cfg *Config) ([]byte, error) {
			return yaml.Marshal(cfg)
		},
	}
)

// codecs maps file extensions to formats.
var codecs = map[string]codec{
	".toml": tomlCodec,
	".json": jsonCodec,
	".yaml": yamlCodec,
	".yml":  yamlCodec,
}

func codecFor(path string) (codec, bool) {
	c, ok := codecs[strings.ToLower(filepath.Ext(path))]
	return c, ok
}

// ChangeFunc is called after a successful reload with the previous and the
// new configuration.
type ChangeFunc func(old, new *Config)

// Loader reads one configuration file and, once Watch is called, reloads it
// whenever it changes on disk.
type Loader struct {
	path     string
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	listeners []ChangeFunc

	watcher *fsnotify.Watcher
	stop    context.CancelFunc
	stopped chan struct{}
	errs    chan error
}

// NewLoader creates a loader for path.
func NewLoader(path string) *Loader {
	return &Loader{
		path:     path,
		debounce: DefaultDebounce,
		errs:     make(chan error, 1),
	}
}

// SetDebounce changes the reload debounce delay. Call before Watch.
func (l *Loader) SetDebounce(d time.Duration) {
	l.debounce = d
}

// Path returns the watched file.
func (l *Loader) Path() string {
	return l.path
}

// Load reads the file, applies environment overrides and validates the
// result, which becomes the current configuration.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := decodeFile(l.path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after every successful reload with the
// previous and the new configuration.
func (l *Loader) OnChange(fn ChangeFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Errors delivers watch and reload failures. Only the most recent unread
// error is kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Watch starts reloading the file when it changes. A reload that fails is
// reported on Errors and the current configuration stays in effect.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so editors that replace the file are seen.
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.watcher = w
	l.stop = cancel
	l.stopped = make(chan struct{})
	go l.watch(ctx)
	return nil
}

func (l *Loader) watch(ctx context.Context) {
	defer close(l.stopped)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	name := filepath.Base(l.path)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Has(fsnotify.Write|fsnotify.Create) {
				timer.Reset(l.debounce)
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(err)

		case <-timer.C:
			l.reload()
		}
	}
}

func (l *Loader) report(err error) {
	select {
	case <-l.errs:
	default:
	}
	select {
	case l.errs <- err:
	default:
	}
}

func (l *Loader) reload() {
	next, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload config: %w", err))
		return
	}

	l.mu.Lock()
	prev := l.current
	l.current = next
	listeners := append([]ChangeFunc(nil), l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	l.stop()
	err := l.watcher.Close()
	<-l.stopped
	l.watcher = nil
	return err
}

// decodeFile reads path over the defaults. A missing file yields the
// defaults; an unknown extension is tried as TOML, JSON and YAML in turn.
func decodeFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if c, ok := codecFor(path); ok {
		if err := c.decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c.name, err)
		}
		return cfg, nil
	}

	for _, c := range []codec{tomlCodec, jsonCodec, yamlCodec} {
		candidate := DefaultConfig()
		if c.decode(data, candidate) == nil {
			return candidate, nil
		}
	}
	return nil, errors.New("parse config: unable to parse config file (tried TOML, JSON, YAML)")
}

// Marshal encodes cfg as format, one of "toml", "json", "yaml" or "yml".
func Marshal(cfg *Config, format string) ([]byte, error) {
	c, ok := codecs["."+strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unknown config format: %s", format)
	}
	data, err := c.encode(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	return data, nil
}

// SaveConfig writes cfg to path in the format its extension names. Unknown
// extensions are written as TOML.
func SaveConfig(cfg *Config, path string) error {
	c, ok := codecFor(path)
	if !ok {
		c = tomlCodec
	}
	data, err := c.encode(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadOrCreate loads path, first writing the defaults there if the file does
// not exist. The boolean reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}
