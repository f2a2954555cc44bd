package ime

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/transform"
)

func TestTransliterate(t *testing.T) {
	f := NewFactory(FactoryOptions{})

	tests := []struct {
		in   string
		want string
	}{
		{"kata", "かた"},
		{"kana", "かんあ"},
		{"x", "x"},
		{"ka!", "か!"},
		{"ky", "ky"},
		{"sh\bi", "し"},
		{"ka\bta", "か\bた"},
		{"\b\bsa", "\b\bさ"},
		{"ka\xffka", "か\xffか"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Transliterate(f, tt.in), "input %q", tt.in)
	}
}

func TestTransformerReader(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	input := strings.Repeat("sakura ", 500)

	r := transform.NewReader(strings.NewReader(input), NewTransformer(f))
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("さくら ", 500), string(out))
}

func TestTransformerSmallDestination(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	tr := NewTransformer(f)

	var out bytes.Buffer
	src := []byte("katakata")
	dst := make([]byte, 4)
	for {
		nDst, nSrc, err := tr.Transform(dst, src, true)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		if err == nil {
			break
		}
		require.ErrorIs(t, err, transform.ErrShortDst)
	}
	assert.Equal(t, "かたかた", out.String())
}

func TestTransformerSplitRune(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	tr := NewTransformer(f)

	full := []byte("ka!か")
	dst := make([]byte, 64)

	// Stop in the middle of the final three-byte rune.
	nDst, nSrc, err := tr.Transform(dst, full[:len(full)-1], false)
	assert.ErrorIs(t, err, transform.ErrShortSrc)
	assert.Equal(t, "か!", string(dst[:nDst]))

	n2, _, err := tr.Transform(dst[nDst:], full[nSrc:], true)
	require.NoError(t, err)
	assert.Equal(t, "か!か", string(dst[:nDst+n2]))
}

func TestTransformerBackspacePassthrough(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	tr := NewTransformer(f)

	dst := make([]byte, 16)
	// "t" is pending, so the backspace deletes it inside the engine.
	n, nSrc, err := tr.Transform(dst, []byte("t\bka"), true)
	require.NoError(t, err)
	assert.Equal(t, 4, nSrc)
	assert.Equal(t, "か", string(dst[:n]))

	// Nothing pending: the control byte reaches the output.
	tr.Reset()
	n, _, err = tr.Transform(dst, []byte("\b"), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{'\b'}, dst[:n])
}

func TestTransformerReset(t *testing.T) {
	f := NewFactory(FactoryOptions{})
	tr := NewTransformer(f)

	dst := make([]byte, 16)
	_, _, err := tr.Transform(dst, []byte("k"), false)
	require.NoError(t, err)

	tr.Reset()
	n, _, err := tr.Transform(dst, []byte("a"), true)
	require.NoError(t, err)
	assert.Equal(t, "あ", string(dst[:n]))
}
