package romaji

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEveryKeyResolves(t *testing.T) {
	d := Default()
	require.Equal(t, len(hiragana), d.Len())

	for key, want := range hiragana {
		got, ok := d.LookupExact(key)
		assert.True(t, ok, "LookupExact(%q)", key)
		assert.Equal(t, want, got, "LookupExact(%q)", key)
		assert.True(t, d.HasPossibleCompletion(key), "HasPossibleCompletion(%q)", key)
	}
}

func TestHasPossibleCompletion(t *testing.T) {
	d := Default()

	tests := []struct {
		prefix string
		want   bool
	}{
		{"", true},
		{"k", true},
		{"s", true},
		{"sh", true},
		{"ch", true},
		{"ts", true},
		{"x", false},
		{"kx", false},
		{"shy", false},
		{"c", true},
		{"K", false},
		{"shii", false},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, d.HasPossibleCompletion(tt.prefix))
		})
	}
}

func TestLookupExactMisses(t *testing.T) {
	d := Default()
	for _, key := range []string{"s", "sh", "k", "x", "kata", ""} {
		_, ok := d.LookupExact(key)
		assert.False(t, ok, "LookupExact(%q)", key)
	}
}

func TestNewRejectsInvalidEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
		want    error
	}{
		{"empty key", map[string]string{"": "あ"}, ErrInvalidKey},
		{"too long", map[string]string{"kyaa": "きゃあ"}, ErrInvalidKey},
		{"digit", map[string]string{"k1": "x"}, ErrInvalidKey},
		{"non-ascii", map[string]string{"é": "x"}, ErrInvalidKey},
		{"empty value", map[string]string{"ka": ""}, ErrInvalidValue},
		{"value is key", map[string]string{"a": "b", "b": "い"}, ErrValueIsKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMergeDoesNotModifyReceiver(t *testing.T) {
	base := Default()
	merged, err := base.Merge(map[string]string{"kya": "きゃ", "n": "ン"})
	require.NoError(t, err)

	v, ok := merged.LookupExact("kya")
	assert.True(t, ok)
	assert.Equal(t, "きゃ", v)
	v, _ = merged.LookupExact("n")
	assert.Equal(t, "ン", v)

	_, ok = base.LookupExact("kya")
	assert.False(t, ok)
	v, _ = base.LookupExact("n")
	assert.Equal(t, "ん", v)
}

func TestAlphabet(t *testing.T) {
	d := Default()
	for _, c := range []byte("aiueokstnhmyrwfc") {
		assert.True(t, d.Alphabet(c), "letter %c", c)
	}
	for _, c := range []byte("lqxvjIO") {
		assert.False(t, d.Alphabet(c), "letter %c", c)
	}
}

func TestShadowed(t *testing.T) {
	d, err := New(map[string]string{"n": "ん", "na": "な", "nya": "にゃ", "ka": "か"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"na": "n", "nya": "n"}, d.Shadowed())

	shadowed := Default().Shadowed()
	assert.Equal(t, "n", shadowed["na"])
	_, ok := shadowed["ka"]
	assert.False(t, ok)
}

func TestKatakana(t *testing.T) {
	assert.Equal(t, "カタカナ", ToKatakana("かたかな"))
	assert.Equal(t, "ン abc", ToKatakana("ん abc"))

	d := Default().InScript(ScriptKatakana)
	v, ok := d.LookupExact("tsu")
	require.True(t, ok)
	assert.Equal(t, "ツ", v)
	assert.True(t, d.HasPossibleCompletion("ts"))

	assert.Same(t, Default(), Default().InScript(ScriptHiragana))
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript("Katakana")
	require.NoError(t, err)
	assert.Equal(t, ScriptKatakana, s)
	assert.Equal(t, "katakana", s.String())

	s, err = ParseScript("")
	require.NoError(t, err)
	assert.Equal(t, ScriptHiragana, s)

	_, err = ParseScript("cyrillic")
	assert.Error(t, err)
}

func TestParseFileJSON(t *testing.T) {
	f, err := ParseFile([]byte(`{"version": 1, "name": "yoon", "entries": {"kya": "きゃ", "sha": "しゃ"}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "yoon", f.Name)
	assert.Equal(t, "きゃ", f.Entries["kya"])

	d, err := f.Apply(Default())
	require.NoError(t, err)
	v, ok := d.LookupExact("sha")
	assert.True(t, ok)
	assert.Equal(t, "しゃ", v)
}

func TestParseFileRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing entries", `{"version": 1}`},
		{"wrong version", `{"version": 2, "entries": {"ka": "か"}}`},
		{"long key", `{"version": 1, "entries": {"kyaa": "x"}}`},
		{"empty value", `{"version": 1, "entries": {"ka": ""}}`},
		{"extra field", `{"version": 1, "entries": {"ka": "か"}, "extra": true}`},
		{"not json", `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.doc), "json")
			assert.ErrorIs(t, err, ErrInvalidFile)
		})
	}
}

func TestLoadFileTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.toml")
	content := strings.Join([]string{
		`version = 1`,
		`name = "extra"`,
		``,
		`[entries]`,
		`ga = "が"`,
		`gi = "ぎ"`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "が", f.Entries["ga"])

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("version = 1\nbogus = 2\n[entries]\nga = \"が\"\n"), 0644))
	_, err = LoadFile(bad)
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestLoadFileUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte("ka=か"), 0644))
	_, err := LoadFile(path)
	assert.ErrorIs(t, err, ErrInvalidFile)
}
