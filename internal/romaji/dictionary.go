// Package romaji holds the romanized-syllable dictionaries used by the input
// method engine.
//
// A Dictionary is immutable once built. It answers two questions for the
// engine: does a key map to output (LookupExact), and can the letters typed so
// far still become a key (HasPossibleCompletion). Both are safe for any number
// of concurrent readers.
package romaji

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MaxKeyLen is the longest key a dictionary accepts.
const MaxKeyLen = 3

var (
	// ErrInvalidKey is returned for keys that are empty, too long, or contain
	// anything other than ASCII letters.
	ErrInvalidKey = errors.New("romaji: invalid key")

	// ErrInvalidValue is returned for empty output values.
	ErrInvalidValue = errors.New("romaji: invalid value")

	// ErrValueIsKey is returned when an output value is itself a key.
	ErrValueIsKey = errors.New("romaji: value collides with a key")
)

// Dictionary maps romaji keys to script output.
type Dictionary struct {
	entries map[string]string
	keys    []string // sorted
	letters map[byte]struct{}
}

// New builds a dictionary from entries. The map is copied.
func New(entries map[string]string) (*Dictionary, error) {
	d := &Dictionary{
		entries: make(map[string]string, len(entries)),
		keys:    make([]string, 0, len(entries)),
		letters: make(map[byte]struct{}),
	}

	for k, v := range entries {
		if err := validateKey(k); err != nil {
			return nil, err
		}
		if v == "" {
			return nil, fmt.Errorf("%w: empty value for %q", ErrInvalidValue, k)
		}
		d.entries[k] = v
		d.keys = append(d.keys, k)
		for i := 0; i < len(k); i++ {
			d.letters[k[i]] = struct{}{}
		}
	}

	for k, v := range d.entries {
		if _, ok := d.entries[v]; ok {
			return nil, fmt.Errorf("%w: %q -> %q", ErrValueIsKey, k, v)
		}
	}

	sort.Strings(d.keys)
	return d, nil
}

func validateKey(k string) error {
	if len(k) == 0 || len(k) > MaxKeyLen {
		return fmt.Errorf("%w: %q must be 1-%d letters", ErrInvalidKey, k, MaxKeyLen)
	}
	for i := 0; i < len(k); i++ {
		if !isASCIILetter(k[i]) {
			return fmt.Errorf("%w: %q contains non-letter %q", ErrInvalidKey, k, k[i])
		}
	}
	return nil
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// LookupExact returns the output mapped to key, if any.
func (d *Dictionary) LookupExact(key string) (string, bool) {
	v, ok := d.entries[key]
	return v, ok
}

// HasPossibleCompletion reports whether any key starts with prefix. A key
// equal to prefix counts.
func (d *Dictionary) HasPossibleCompletion(prefix string) bool {
	i := sort.SearchStrings(d.keys, prefix)
	return i < len(d.keys) && strings.HasPrefix(d.keys[i], prefix)
}

// Merge returns a new dictionary holding the receiver's entries overlaid by
// entries. The receiver is not modified.
func (d *Dictionary) Merge(entries map[string]string) (*Dictionary, error) {
	if len(entries) == 0 {
		return d, nil
	}
	merged := make(map[string]string, len(d.entries)+len(entries))
	for k, v := range d.entries {
		merged[k] = v
	}
	for k, v := range entries {
		merged[k] = v
	}
	return New(merged)
}

// Entries returns a copy of the dictionary contents.
func (d *Dictionary) Entries() map[string]string {
	out := make(map[string]string, len(d.entries))
	for k, v := range d.entries {
		out[k] = v
	}
	return out
}

// Keys returns the keys in sorted order.
func (d *Dictionary) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Len returns the number of keys.
func (d *Dictionary) Len() int {
	return len(d.keys)
}

// Alphabet reports whether c occurs in at least one key.
func (d *Dictionary) Alphabet(c byte) bool {
	_, ok := d.letters[c]
	return ok
}

// Shadowed maps each key that can never be typed to the shorter key that
// matches first.
func (d *Dictionary) Shadowed() map[string]string {
	out := make(map[string]string)
	for _, k := range d.keys {
		for i := 1; i < len(k); i++ {
			if _, ok := d.entries[k[:i]]; ok {
				out[k] = k[:i]
				break
			}
		}
	}
	return out
}
