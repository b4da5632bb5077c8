package service

import (
	"fmt"
	"strings"

	"ks-ai/internal/models"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

type Chunker struct {
	tokenizer Tokenizer
}

func NewChunker(tokenizer Tokenizer) *Chunker {
	return &Chunker{tokenizer: tokenizer}
}

// Chunk splits text into windows of at most maxTokens tokens. Consecutive
// windows share overlap tokens and the last window always ends at the final
// token. Text that fits in one window is returned unchanged.
func (c *Chunker) Chunk(text string, maxTokens, overlap int) ([]models.Chunk, error) {
	if maxTokens <= 0 || overlap < 0 || overlap >= maxTokens {
		return nil, fmt.Errorf("%w: chunk size %d with overlap %d", models.ErrValidation, maxTokens, overlap)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tokens := c.tokenizer.Encode(text)
	n := len(tokens)
	if n <= maxTokens {
		return []models.Chunk{{
			Index:      0,
			StartToken: 0,
			EndToken:   n,
			TokenCount: n,
			Text:       text,
		}}, nil
	}

	step := maxTokens - overlap
	chunks := make([]models.Chunk, 0, (n-overlap+step-1)/step)
	for start := 0; ; start += step {
		end := min(start+maxTokens, n)
		chunks = append(chunks, models.Chunk{
			Index:      len(chunks),
			StartToken: start,
			EndToken:   end,
			TokenCount: end - start,
			Text:       c.tokenizer.Decode(tokens[start:end]),
		})
		if end >= n {
			break
		}
	}

	return chunks, nil
}
