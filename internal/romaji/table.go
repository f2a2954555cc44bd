package romaji

import "sync"

// hiragana is the built-in romaji table. Alternate spellings are separate keys.
var hiragana = map[string]string{
	"a": "あ", "i": "い", "u": "う", "e": "え", "o": "お",

	"ka": "か", "ki": "き", "ku": "く", "ke": "け", "ko": "こ",

	"sa": "さ", "si": "し", "shi": "し", "su": "す", "se": "せ", "so": "そ",

	"ta": "た", "ti": "ち", "chi": "ち", "tu": "つ", "tsu": "つ", "te": "て", "to": "と",

	"na": "な", "ni": "に", "nu": "ぬ", "ne": "ね", "no": "の",

	"ha": "は", "hi": "ひ", "hu": "ふ", "fu": "ふ", "he": "へ", "ho": "ほ",

	"ma": "ま", "mi": "み", "mu": "む", "me": "め", "mo": "も",

	"ya": "や", "yu": "ゆ", "yo": "よ",

	"ra": "ら", "ri": "り", "ru": "る", "re": "れ", "ro": "ろ",

	"wa": "わ", "wo": "を",

	"n": "ん",
}

var (
	defaultOnce sync.Once
	defaultDict *Dictionary
)

// Default returns the built-in hiragana dictionary. It is built on first use
// and shared afterwards.
func Default() *Dictionary {
	defaultOnce.Do(func() {
		d, err := New(hiragana)
		if err != nil {
			panic("romaji: built-in table: " + err.Error())
		}
		defaultDict = d
	})
	return defaultDict
}
