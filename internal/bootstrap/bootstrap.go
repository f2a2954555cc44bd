// Package bootstrap turns a loaded configuration into the runtime objects
// every kanaime host needs: the engine factory, the logger, the store and the
// conversion recorder.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"kanaime/internal/config"
	"kanaime/internal/confusable"
	"kanaime/internal/ime"
	"kanaime/internal/logging"
	"kanaime/internal/romaji"
	"kanaime/internal/store"
)

// ErrBadSymbol is returned for confusable keys that are not a single
// character.
var ErrBadSymbol = errors.New("bootstrap: confusable symbol must be one character")

// ParseLetterSet parses "ascii" or "dictionary".
func ParseLetterSet(s string) (ime.LetterSet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii":
		return ime.LetterSetASCII, nil
	case "dictionary":
		return ime.LetterSetDictionary, nil
	default:
		return ime.LetterSetASCII, fmt.Errorf("unknown letter set: %s", s)
	}
}

// BuildDictionary layers the romaji sources in order: the built-in table,
// dictionary files, store entries, config entries, then the output script.
// st may be nil.
func BuildDictionary(cfg *config.Config, st *store.Store) (*romaji.Dictionary, error) {
	dict := romaji.Default()

	for _, path := range cfg.Dictionary.Files {
		f, err := romaji.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load dictionary: %w", err)
		}
		if dict, err = f.Apply(dict); err != nil {
			return nil, fmt.Errorf("apply dictionary %s: %w", path, err)
		}
	}

	if cfg.Dictionary.UseStore && st != nil {
		entries, err := st.Entries()
		if err != nil {
			return nil, fmt.Errorf("load user entries: %w", err)
		}
		if dict, err = dict.Merge(entries); err != nil {
			return nil, fmt.Errorf("merge user entries: %w", err)
		}
	}

	dict, err := dict.Merge(cfg.Dictionary.Entries)
	if err != nil {
		return nil, fmt.Errorf("merge config entries: %w", err)
	}

	script, err := romaji.ParseScript(cfg.Engine.Script)
	if err != nil {
		return nil, err
	}
	return dict.InScript(script), nil
}

// BuildConfusables returns the substitution table, or nil when substitution
// is off.
func BuildConfusables(cfg *config.Config) (*confusable.Table, error) {
	if !cfg.Engine.Substitution {
		return nil, nil
	}

	var remove []rune
	for _, s := range cfg.Confusables.Remove {
		r, err := symbolRune(s)
		if err != nil {
			return nil, err
		}
		remove = append(remove, r)
	}

	overrides := make(map[rune][]string, len(cfg.Confusables.Entries))
	for s, cands := range cfg.Confusables.Entries {
		r, err := symbolRune(s)
		if err != nil {
			return nil, err
		}
		overrides[r] = cands
	}

	if len(remove) == 0 && len(overrides) == 0 {
		return confusable.Default(), nil
	}
	t, err := confusable.Default().With(overrides, remove)
	if err != nil {
		return nil, fmt.Errorf("build confusables: %w", err)
	}
	return t, nil
}

func symbolRune(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%w: %q", ErrBadSymbol, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// BuildFactory assembles an engine factory from cfg. st may be nil.
func BuildFactory(cfg *config.Config, st *store.Store) (*ime.Factory, error) {
	dict, err := BuildDictionary(cfg, st)
	if err != nil {
		return nil, err
	}
	table, err := BuildConfusables(cfg)
	if err != nil {
		return nil, err
	}
	letters, err := ParseLetterSet(cfg.Engine.LetterSet)
	if err != nil {
		return nil, err
	}

	return ime.NewFactory(ime.FactoryOptions{
		Dictionary:  dict,
		Confusables: table,
		LetterSet:   letters,
		Seed:        cfg.Engine.Seed,
	}), nil
}

// LoggingConfig converts the logging section.
func LoggingConfig(cfg *config.Config) (*logging.Config, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.Logging.FilePath
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxAge = cfg.Logging.MaxAgeDays
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.Compress = cfg.Logging.Compress
	lc.RedactInput = cfg.Logging.RedactInput
	return lc, nil
}

// Logger builds the logger described by the logging section.
func Logger(cfg *config.Config) (*logging.Logger, error) {
	lc, err := LoggingConfig(cfg)
	if err != nil {
		return nil, err
	}
	return logging.New(lc)
}

// OpenStore opens the store when it is enabled. It returns nil, nil when the
// store is off.
func OpenStore(cfg *config.Config) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	st, err := store.OpenWithOptions(cfg.Store.Path, store.Options{
		BusyTimeout: durationMs(cfg.Store.BusyTimeoutMs),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// Runtime bundles what a host needs.
type Runtime struct {
	Config   *config.Config
	Logger   *logging.Logger
	Store    *store.Store
	Recorder *store.Recorder
	Sessions *ime.SessionManager
}

// New builds a Runtime from cfg and starts the recorder when the store is
// enabled.
func New(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger, err := Logger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	st, err := OpenStore(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}

	factory, err := BuildFactory(cfg, st)
	if err != nil {
		if st != nil {
			st.Close()
		}
		logger.Close()
		return nil, err
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Store:    st,
		Sessions: ime.NewSessionManager(factory),
	}

	if st != nil {
		rt.Recorder = store.NewRecorder(st, store.RecorderConfig{
			BatchSize:     cfg.Store.BatchSize,
			FlushInterval: cfg.Store.FlushInterval(),
			Logger:        logger.Logger,
		})
		rt.Recorder.Start(ctx)
	}

	logging.SetDefault(logger)
	logger.Debug("runtime ready",
		"level", logging.LevelString(logger.Level()),
		"keys", factory.Dictionary().Len(),
		"substitution", factory.Substitutes(),
		"store", st != nil,
	)
	return rt, nil
}

// Observer returns the commit observer hosts should report to, or nil when
// nothing records conversions.
func (rt *Runtime) Observer() ime.CommitObserver {
	if rt.Recorder == nil {
		return nil
	}
	return rt.Recorder
}

// Reload rebuilds the factory from cfg. Open sessions keep their engines;
// new sessions use the new tables. Store and logging settings are not
// reloaded.
func (rt *Runtime) Reload(cfg *config.Config) error {
	factory, err := BuildFactory(cfg, rt.Store)
	if err != nil {
		return err
	}
	rt.Sessions.SetFactory(factory)
	rt.Config = cfg
	rt.Logger.Info("configuration reloaded",
		"script", cfg.Engine.Script,
		"letter_set", cfg.Engine.LetterSet,
		"substitution", cfg.Engine.Substitution,
	)
	return nil
}

// Close flushes the recorder and closes the store and logger.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Recorder != nil {
		rt.Recorder.Close()
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if rt.Logger != nil {
		if err := rt.Logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}

func durationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
