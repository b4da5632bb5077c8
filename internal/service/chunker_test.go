package service

import (
	"fmt"
	"strings"
	"testing"

	"ks-ai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func expectedChunks(n, maxTokens, overlap int) int {
	if n == 0 {
		return 0
	}
	if n <= maxTokens {
		return 1
	}
	step := maxTokens - overlap
	return (n - overlap + step - 1) / step
}

func TestChunk_CountAndBounds(t *testing.T) {
	tests := []struct {
		name      string
		tokens    int
		maxTokens int
		overlap   int
	}{
		{"empty", 0, 500, 50},
		{"single token", 1, 500, 50},
		{"exactly max", 500, 500, 50},
		{"max plus one", 501, 500, 50},
		{"three thousand", 3000, 500, 50},
		{"no overlap", 1234, 100, 0},
		{"large overlap", 777, 10, 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunker := NewChunker(NewWordTokenizer())
			chunks, err := chunker.Chunk(words(tt.tokens), tt.maxTokens, tt.overlap)
			require.NoError(t, err)

			require.Len(t, chunks, expectedChunks(tt.tokens, tt.maxTokens, tt.overlap))
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				assert.LessOrEqual(t, c.TokenCount, tt.maxTokens)
				assert.Equal(t, c.EndToken-c.StartToken, c.TokenCount)
				if i > 0 {
					assert.Equal(t, chunks[i-1].EndToken-tt.overlap, c.StartToken)
				}
			}
			if len(chunks) > 0 {
				assert.Equal(t, 0, chunks[0].StartToken)
				assert.Equal(t, tt.tokens, chunks[len(chunks)-1].EndToken)
			}
		})
	}
}

func TestChunk_ThreeThousandTokensMakesSevenChunks(t *testing.T) {
	chunks, err := NewChunker(NewWordTokenizer()).Chunk(words(3000), DefaultChunkSize, DefaultChunkOverlap)
	require.NoError(t, err)
	assert.Len(t, chunks, 7)
	assert.Equal(t, 2700, chunks[6].StartToken)
	assert.Equal(t, 300, chunks[6].TokenCount)
}

func TestChunk_SingleChunkKeepsText(t *testing.T) {
	text := "  short   text  "
	chunks, err := NewChunker(NewWordTokenizer()).Chunk(text, 500, 50)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 2, chunks[0].TokenCount)
}

func TestChunk_ReconstructionWithoutOverlap(t *testing.T) {
	text := words(1001)
	chunks, err := NewChunker(NewWordTokenizer()).Chunk(text, 100, 0)
	require.NoError(t, err)

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	assert.Equal(t, text, strings.Join(parts, " "))
}

func TestChunk_BlankInput(t *testing.T) {
	chunks, err := NewChunker(NewWordTokenizer()).Chunk(" \n\t ", 500, 50)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_InvalidParameters(t *testing.T) {
	chunker := NewChunker(NewWordTokenizer())
	for _, p := range [][2]int{{0, 0}, {-1, 0}, {10, -1}, {10, 10}, {10, 11}} {
		_, err := chunker.Chunk("some text", p[0], p[1])
		assert.ErrorIs(t, err, models.ErrValidation, "max=%d overlap=%d", p[0], p[1])
	}
}
