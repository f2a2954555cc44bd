// Package confusable substitutes visually ambiguous glyphs.
//
// A Table maps a single input symbol to an ordered list of candidates that
// look alike (l, 1, I, |). Substitute draws one candidate uniformly at random
// from a Source for every occurrence; nothing is remembered between calls.
package confusable

import (
	"fmt"
	"sort"

	"golang.org/x/text/width"
)

// Table is an immutable symbol → candidates mapping.
type Table struct {
	entries map[rune][]string
}

// New builds a table. Every symbol needs at least one candidate.
func New(entries map[rune][]string) (*Table, error) {
	t := &Table{entries: make(map[rune][]string, len(entries))}
	for r, cands := range entries {
		if len(cands) == 0 {
			return nil, fmt.Errorf("confusable: no candidates for %q", r)
		}
		for _, c := range cands {
			if c == "" {
				return nil, fmt.Errorf("confusable: empty candidate for %q", r)
			}
		}
		t.entries[r] = append([]string(nil), cands...)
	}
	return t, nil
}

// Default returns the built-in table.
func Default() *Table {
	t, err := New(defaultEntries())
	if err != nil {
		panic(err)
	}
	return t
}

func defaultEntries() map[rune][]string {
	return map[rune][]string{
		'l': {"l", "I", "|"},
		'1': {"l", "1", "I"},
		'I': {"l", "I", "|"},
		'O': {"O", "0"},
		'0': {"O", "0"},
		' ': {" ", width.Widen.String(" ")},
	}
}

// Candidates returns the candidates for r.
func (t *Table) Candidates(r rune) ([]string, bool) {
	c, ok := t.entries[r]
	if !ok {
		return nil, false
	}
	return append([]string(nil), c...), true
}

// Substitute returns a random candidate for r, or false when r has none.
func (t *Table) Substitute(r rune, src Source) (string, bool) {
	cands, ok := t.entries[r]
	if !ok {
		return "", false
	}
	if len(cands) == 1 {
		return cands[0], true
	}
	return cands[src.IntN(len(cands))], true
}

// With returns a copy of the table with overrides applied and the symbols in
// remove dropped. Overrides win over removals.
func (t *Table) With(overrides map[rune][]string, remove []rune) (*Table, error) {
	merged := make(map[rune][]string, len(t.entries)+len(overrides))
	for r, c := range t.entries {
		merged[r] = c
	}
	for _, r := range remove {
		delete(merged, r)
	}
	for r, c := range overrides {
		merged[r] = c
	}
	return New(merged)
}

// Symbols returns the symbols with candidates, in code point order.
func (t *Table) Symbols() []rune {
	out := make([]rune, 0, len(t.entries))
	for r := range t.entries {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of symbols with candidates.
func (t *Table) Len() int {
	return len(t.entries)
}
