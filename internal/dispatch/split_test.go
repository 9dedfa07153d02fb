// ABOUTME: Tests for reply chunking
// ABOUTME: Checks size bounds, boundary preference, and lossless reassembly

package dispatch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_ShortTextUnchanged(t *testing.T) {
	assert.Equal(t, []string{"hi"}, Split("hi", 0, 0))

	exact := strings.Repeat("x", DefaultHardLimit)
	assert.Equal(t, []string{exact}, Split(exact, DefaultSoftLimit, DefaultHardLimit))
}

func TestSplit_PrefersNewline(t *testing.T) {
	text := strings.Repeat("a", 15) + "\n" + strings.Repeat("b", 4) + " " + strings.Repeat("c", 10)
	chunks := Split(text, 22, 24)

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("a", 15)+"\n", chunks[0])
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplit_FallsBackToWhitespace(t *testing.T) {
	text := strings.Repeat("word ", 10)
	chunks := Split(text, 12, 12)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 12)
		if c != chunks[len(chunks)-1] {
			assert.True(t, strings.HasSuffix(c, " "), "chunk %q should end on a space", c)
		}
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplit_HardCutWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("z", 25)
	chunks := Split(text, 10, 10)

	assert.Equal(t, []string{strings.Repeat("z", 10), strings.Repeat("z", 10), strings.Repeat("z", 5)}, chunks)
}

func TestSplit_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 30)
	chunks := Split(text, 10, 10)

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.Equal(t, 10, utf8.RuneCountInString(c))
	}
}

func TestSplit_DefaultLimits(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 300)
	chunks := Split(text, DefaultSoftLimit, DefaultHardLimit)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultSoftLimit)
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}
