package ime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSymbol(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Symbol
		wantErr error
	}{
		{"letter", "k", 'k', nil},
		{"space", " ", Space, nil},
		{"backspace", "\b", Backspace, nil},
		{"kana", "か", 'か', nil},
		{"precomposed", "é", 'é', nil},
		{"empty", "", 0, ErrEmptySymbol},
		{"invalid utf8", "\xff", 0, ErrMalformedSymbol},
		{"two letters", "ka", 0, ErrMultiGrapheme},
		{"letter and combining mark", "ké", 0, ErrMultiGrapheme},
		{"combining sequence", "é", 0, ErrComposedSymbol},
		{"flag", "🇯🇵", 0, ErrComposedSymbol},
		{"crlf", "\r\n", 0, ErrComposedSymbol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSymbol(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSymbolClasses(t *testing.T) {
	assert.True(t, Symbol('a').IsLetter())
	assert.True(t, Symbol('Z').IsLetter())
	assert.False(t, Symbol('1').IsLetter())
	assert.False(t, Symbol('é').IsLetter())
	assert.True(t, Space.IsSpace())
	assert.True(t, Backspace.IsBackspace())
	assert.Equal(t, "k", Symbol('k').String())
}
