package ime

import (
	"sync/atomic"

	"kanaime/internal/confusable"
	"kanaime/internal/romaji"
)

// FactoryOptions holds the shared, immutable inputs of every engine.
type FactoryOptions struct {
	// Dictionary defaults to romaji.Default().
	Dictionary *romaji.Dictionary

	// Confusables is the substitution table. nil disables substitution.
	Confusables *confusable.Table

	LetterSet LetterSet

	// Seed makes substitution deterministic. Engine n gets seed+n. Zero uses
	// the process-wide generator.
	Seed uint64
}

// Factory builds per-session engines over shared tables.
type Factory struct {
	opts    FactoryOptions
	created atomic.Uint64
}

// NewFactory creates a factory.
func NewFactory(opts FactoryOptions) *Factory {
	if opts.Dictionary == nil {
		opts.Dictionary = romaji.Default()
	}
	return &Factory{opts: opts}
}

// NewEngine returns a fresh engine with an empty buffer.
func (f *Factory) NewEngine() *Engine {
	n := f.created.Add(1)

	src := confusable.DefaultSource()
	if f.opts.Seed != 0 {
		src = confusable.NewSource(f.opts.Seed + n - 1)
	}

	return NewEngine(f.opts.Dictionary,
		WithConfusables(f.opts.Confusables),
		WithSource(src),
		WithLetterSet(f.opts.LetterSet),
	)
}

// Dictionary returns the shared dictionary.
func (f *Factory) Dictionary() *romaji.Dictionary {
	return f.opts.Dictionary
}

// Substitutes reports whether engines apply glyph substitution.
func (f *Factory) Substitutes() bool {
	return f.opts.Confusables != nil
}

// EnginesCreated returns how many engines the factory has built.
func (f *Factory) EnginesCreated() uint64 {
	return f.created.Load()
}
