package ime

import (
	"sync"

	"kanaime/internal/confusable"
	"kanaime/internal/romaji"
)

// State is the buffer state of an Engine.
type State int

const (
	StateEmpty State = iota
	StatePending
)

func (s State) String() string {
	if s == StatePending {
		return "pending"
	}
	return "empty"
}

// CommitKind says how a Command's text was produced.
type CommitKind int

const (
	// CommitConverted is dictionary output for a matched key.
	CommitConverted CommitKind = iota
	// CommitVerbatim is a buffer flushed without conversion.
	CommitVerbatim
	// CommitLiteral is a symbol passed through unchanged.
	CommitLiteral
	// CommitSubstituted is a candidate drawn from the confusable table.
	CommitSubstituted
)

func (k CommitKind) String() string {
	switch k {
	case CommitConverted:
		return "converted"
	case CommitVerbatim:
		return "verbatim"
	case CommitLiteral:
		return "literal"
	case CommitSubstituted:
		return "substituted"
	default:
		return "unknown"
	}
}

// Command tells the host to insert Text into the client.
type Command struct {
	Text string
	Kind CommitKind
	// Source is the buffer or symbol the text came from.
	Source string
}

// LetterSet decides which letters are buffered.
type LetterSet int

const (
	// LetterSetASCII buffers every ASCII letter.
	LetterSetASCII LetterSet = iota
	// LetterSetDictionary buffers only letters that occur in a dictionary key.
	// Other letters take the glyph path.
	LetterSetDictionary
)

// Option configures an Engine.
type Option func(*Engine)

// WithConfusables sets the substitution table. nil disables substitution.
func WithConfusables(t *confusable.Table) Option {
	return func(e *Engine) { e.glyphs = t }
}

// WithSource sets the random source used for substitution.
func WithSource(src confusable.Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.src = src
		}
	}
}

// WithLetterSet selects which letters are buffered.
func WithLetterSet(ls LetterSet) Option {
	return func(e *Engine) { e.letters = ls }
}

// Engine holds the pending buffer of one input session and decides, per
// symbol, what text to commit. It performs no I/O.
type Engine struct {
	mu      sync.Mutex
	dict    *romaji.Dictionary
	glyphs  *confusable.Table
	src     confusable.Source
	letters LetterSet
	buffer  []byte
}

// NewEngine creates an engine with an empty buffer.
func NewEngine(dict *romaji.Dictionary, opts ...Option) *Engine {
	e := &Engine{
		dict: dict,
		src:  confusable.DefaultSource(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step consumes one symbol and returns the commands to apply, in order. The
// result may be empty.
func (e *Engine) Step(sym Symbol) []Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case sym.IsSpace():
		return e.space()
	case sym.IsBackspace():
		if n := len(e.buffer); n > 0 {
			e.buffer = e.buffer[:n-1]
		}
		return nil
	case e.isLettering(sym):
		return e.letter(byte(sym))
	default:
		cmds := e.flush()
		return append(cmds, e.glyph(sym))
	}
}

func (e *Engine) isLettering(sym Symbol) bool {
	if !sym.IsLetter() {
		return false
	}
	if e.letters == LetterSetDictionary {
		return e.dict.Alphabet(byte(sym))
	}
	return true
}

func (e *Engine) letter(c byte) []Command {
	e.buffer = append(e.buffer, c)
	key := string(e.buffer)

	if out, ok := e.dict.LookupExact(key); ok {
		e.buffer = e.buffer[:0]
		return []Command{{Text: out, Kind: CommitConverted, Source: key}}
	}
	if !e.dict.HasPossibleCompletion(key) {
		e.buffer = e.buffer[:0]
		return []Command{{Text: key, Kind: CommitVerbatim, Source: key}}
	}
	return nil
}

func (e *Engine) space() []Command {
	if len(e.buffer) == 0 {
		return []Command{e.glyph(Space)}
	}

	key := string(e.buffer)
	e.buffer = e.buffer[:0]
	if out, ok := e.dict.LookupExact(key); ok {
		return []Command{{Text: out, Kind: CommitConverted, Source: key}}
	}
	return []Command{
		{Text: key, Kind: CommitVerbatim, Source: key},
		e.glyph(Space),
	}
}

func (e *Engine) glyph(sym Symbol) Command {
	if e.glyphs != nil {
		if out, ok := e.glyphs.Substitute(rune(sym), e.src); ok {
			return Command{Text: out, Kind: CommitSubstituted, Source: sym.String()}
		}
	}
	return Command{Text: sym.String(), Kind: CommitLiteral, Source: sym.String()}
}

func (e *Engine) flush() []Command {
	if len(e.buffer) == 0 {
		return nil
	}
	key := string(e.buffer)
	e.buffer = e.buffer[:0]
	return []Command{{Text: key, Kind: CommitVerbatim, Source: key}}
}

// Flush commits the pending buffer unconverted and clears it. An empty buffer
// yields no commands.
func (e *Engine) Flush() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flush()
}

// Reset discards the pending buffer without committing it.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = e.buffer[:0]
}

// State returns the buffer state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.buffer) == 0 {
		return StateEmpty
	}
	return StatePending
}

// Pending returns the buffered letters, for preedit display.
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.buffer)
}
