package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_Empty(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"completely empty", ""},
		{"whitespace only", "   \n\n\t  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ChunkText(tt.content, DefaultChunkConfig()))
		})
	}
}

func TestChunkText_ShortTextIsSingleChunk(t *testing.T) {
	text := strings.Repeat("a", 512)
	chunks := ChunkText(text, DefaultChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunkText_NoBoundaryUsesFullWindows(t *testing.T) {
	text := strings.Repeat("x", 1000)
	chunks := ChunkText(text, DefaultChunkConfig())

	// Windows at 0, 462, 924.
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 512)
	assert.Len(t, chunks[1], 512)
	assert.Len(t, chunks[2], 76)
}

func TestChunkText_BreaksAtSentencePastMidpoint(t *testing.T) {
	first := strings.Repeat("a", 400) + "."
	text := first + strings.Repeat("b", 300)

	chunks := ChunkText(text, DefaultChunkConfig())
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, first, chunks[0])
	// Next window starts overlap runes before the cut.
	assert.True(t, strings.HasPrefix(chunks[1], strings.Repeat("a", 49)+"."))
}

func TestChunkText_IgnoresBoundaryBeforeMidpoint(t *testing.T) {
	text := strings.Repeat("a", 100) + "." + strings.Repeat("b", 600)
	chunks := ChunkText(text, DefaultChunkConfig())
	require.NotEmpty(t, chunks)
	assert.Equal(t, 512, utf8.RuneCountInString(chunks[0]))
}

func TestChunkText_NewlineBoundary(t *testing.T) {
	text := strings.Repeat("a", 300) + "\n" + strings.Repeat("b", 400)
	chunks := ChunkText(text, DefaultChunkConfig())
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, strings.Repeat("a", 300), chunks[0])
}

func TestChunkText_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ü", 600)
	chunks := ChunkText(text, DefaultChunkConfig())
	require.Len(t, chunks, 2)
	assert.Equal(t, 512, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 138, utf8.RuneCountInString(chunks[1]))
}

func TestChunkText_CoversAllText(t *testing.T) {
	var sb strings.Builder
	for i := range 200 {
		sb.WriteString("Sentence number ")
		sb.WriteString(strings.Repeat("x", i%7))
		sb.WriteString(" ends here. ")
	}
	text := sb.String()
	chunks := ChunkText(text, DefaultChunkConfig())
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 512)
	}
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), chunks[len(chunks)-1][len(chunks[len(chunks)-1])-10:]))
}

func TestChunkConfig_Normalize(t *testing.T) {
	cfg := ChunkConfig{Size: 10, Overlap: 8}.normalize()
	assert.Equal(t, 0, cfg.Overlap)

	cfg = ChunkConfig{}.normalize()
	assert.Equal(t, 512, cfg.Size)
}
