package ime

import (
	"errors"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Symbol is one input symbol: a letter, space, backspace, or any other code
// point.
type Symbol rune

const (
	// Backspace is the delete-back control code.
	Backspace Symbol = 0x08
	// Space is the word boundary.
	Space Symbol = ' '
)

// IsLetter reports whether s is an ASCII letter.
func (s Symbol) IsLetter() bool {
	return ('a' <= s && s <= 'z') || ('A' <= s && s <= 'Z')
}

// IsSpace reports whether s is the space character.
func (s Symbol) IsSpace() bool {
	return s == Space
}

// IsBackspace reports whether s is the backspace control code.
func (s Symbol) IsBackspace() bool {
	return s == Backspace
}

func (s Symbol) String() string {
	return string(rune(s))
}

// Input boundary errors. Hosts that hit one must not call Step and should
// pass the raw event through instead.
var (
	ErrEmptySymbol     = errors.New("ime: empty symbol")
	ErrMalformedSymbol = errors.New("ime: symbol is not valid UTF-8")
	ErrMultiGrapheme   = errors.New("ime: symbol spans more than one grapheme")
	ErrComposedSymbol  = errors.New("ime: symbol is a grapheme of several code points")
)

// DecodeSymbol turns raw host text into a Symbol. The text must be exactly one
// grapheme cluster made of exactly one code point. Text holding several
// clusters fails with ErrMultiGrapheme; a single cluster built from several
// code points, such as a combining sequence or a flag, fails with
// ErrComposedSymbol.
func DecodeSymbol(text string) (Symbol, error) {
	if text == "" {
		return 0, ErrEmptySymbol
	}
	if !utf8.ValidString(text) {
		return 0, ErrMalformedSymbol
	}
	cluster, rest, _, _ := uniseg.FirstGraphemeClusterInString(text, -1)
	if rest != "" {
		return 0, ErrMultiGrapheme
	}
	r, size := utf8.DecodeRuneInString(cluster)
	if size != len(cluster) {
		return 0, ErrComposedSymbol
	}
	return Symbol(r), nil
}
