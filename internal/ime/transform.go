package ime

import (
	"unicode/utf8"

	"golang.org/x/text/transform"
)

// Transformer runs a private engine over a byte stream. Each decoded rune is
// one Step; the pending buffer is flushed at EOF. A backspace that finds the
// buffer empty is copied to the output unchanged.
type Transformer struct {
	factory *Factory
	engine  *Engine
	pending []byte // committed text not yet copied to dst
}

// NewTransformer returns a transliterating transform.Transformer.
func NewTransformer(f *Factory) *Transformer {
	return &Transformer{factory: f, engine: f.NewEngine()}
}

// Reset implements transform.Transformer.
func (t *Transformer) Reset() {
	t.engine = t.factory.NewEngine()
	t.pending = t.pending[:0]
}

// Transform implements transform.Transformer.
func (t *Transformer) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for {
		if len(t.pending) > 0 {
			n := copy(dst[nDst:], t.pending)
			nDst += n
			t.pending = t.pending[n:]
			if len(t.pending) > 0 {
				return nDst, nSrc, transform.ErrShortDst
			}
		}

		if nSrc >= len(src) {
			break
		}

		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size <= 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			// Invalid bytes are not symbols; pass them through raw.
			t.appendPending(t.engine.Flush())
			t.pending = append(t.pending, src[nSrc:nSrc+size]...)
			nSrc += size
			continue
		}

		sym := Symbol(r)
		// A backspace with nothing pending would be lost; keep it in the
		// output so it still erases downstream.
		if sym.IsBackspace() && t.engine.Pending() == "" {
			t.pending = append(t.pending, src[nSrc:nSrc+size]...)
			nSrc += size
			continue
		}
		nSrc += size
		t.appendPending(t.engine.Step(sym))
	}

	if atEOF {
		t.appendPending(t.engine.Flush())
		if len(t.pending) > 0 {
			n := copy(dst[nDst:], t.pending)
			nDst += n
			t.pending = t.pending[n:]
			if len(t.pending) > 0 {
				return nDst, nSrc, transform.ErrShortDst
			}
		}
	}
	return nDst, nSrc, nil
}

func (t *Transformer) appendPending(cmds []Command) {
	for _, c := range cmds {
		t.pending = append(t.pending, c.Text...)
	}
}

// Transliterate converts s with a fresh engine from f.
func Transliterate(f *Factory, s string) string {
	out, _, err := transform.String(NewTransformer(f), s)
	if err != nil {
		return s
	}
	return out
}
