// Package ime implements the kanaime transliteration engine and its input
// method integrations.
//
// # Architecture Overview
//
// Every host (IBus, the terminal, the websocket server, the pipe converter)
// follows the same pattern:
//
//	Key Event → Symbol → Engine.Step → []Command → Commit Text
//
// The Engine owns a small pending buffer of romaji letters. Each Step either
// holds the letter, converts the buffer through the romaji dictionary, or
// flushes it unconverted. Symbols that are not letters flush the buffer and
// are then emitted through the confusable table, which may replace them with
// a look-alike glyph.
//
// # Buffer Rules
//
//	┌──────────────┬───────────────────────┬──────────────────────────────┐
//	│ Symbol       │ Buffer after append   │ Result                       │
//	├──────────────┼───────────────────────┼──────────────────────────────┤
//	│ letter       │ exact key             │ commit kana, clear           │
//	│ letter       │ prefix of some key    │ hold                         │
//	│ letter       │ prefix of no key      │ commit buffer as-is, clear   │
//	│ space        │ (not appended)        │ flush, then space glyph      │
//	│ backspace    │ (not appended)        │ drop last letter             │
//	│ other        │ (not appended)        │ flush, then glyph            │
//	└──────────────┴───────────────────────┴──────────────────────────────┘
//
// Matching is eager: the first exact key wins, so with the built-in table
// "n" commits ん before "na" can form.
//
// # Sessions
//
// One Engine serves exactly one input context. The Factory builds engines
// over the shared, immutable dictionary and confusable table, and the
// SessionManager tracks engines per context so no two clients ever share a
// buffer.
//
// # Platform Support
//
//	┌──────────┬─────────────────────────────────────────────────────────┐
//	│ Platform │ Framework                                               │
//	├──────────┼─────────────────────────────────────────────────────────┤
//	│ Linux    │ IBus over D-Bus (godbus) - IBusEngine                   │
//	│ other    │ terminal, websocket and pipe hosts only                 │
//	└──────────┴─────────────────────────────────────────────────────────┘
//
// Hosts must run raw input through DecodeSymbol first. Text that is not a
// single code point is passed through to the client without touching the
// engine.
package ime
