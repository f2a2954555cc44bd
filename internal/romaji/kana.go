package romaji

import (
	"fmt"
	"strings"
)

// Script selects the kana script a dictionary emits.
type Script int

const (
	ScriptHiragana Script = iota
	ScriptKatakana
)

// ParseScript parses "hiragana" or "katakana".
func ParseScript(s string) (Script, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hiragana":
		return ScriptHiragana, nil
	case "katakana":
		return ScriptKatakana, nil
	default:
		return ScriptHiragana, fmt.Errorf("unknown script: %s", s)
	}
}

func (s Script) String() string {
	switch s {
	case ScriptKatakana:
		return "katakana"
	default:
		return "hiragana"
	}
}

// The hiragana block U+3041..U+3096 sits exactly 0x60 below its katakana
// counterparts.
const (
	hiraganaFirst = 'ぁ'
	hiraganaLast  = 'ゖ'
	katakanaShift = 'ァ' - 'ぁ'
)

// ToKatakana converts hiragana in s to katakana. Other runes pass through.
func ToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= hiraganaFirst && r <= hiraganaLast {
			return r + katakanaShift
		}
		return r
	}, s)
}

// InScript returns the dictionary with its output in script. The receiver is
// returned unchanged for ScriptHiragana.
func (d *Dictionary) InScript(script Script) *Dictionary {
	if script != ScriptKatakana {
		return d
	}
	out := &Dictionary{
		entries: make(map[string]string, len(d.entries)),
		keys:    d.keys,
		letters: d.letters,
	}
	for k, v := range d.entries {
		out.entries[k] = ToKatakana(v)
	}
	return out
}
