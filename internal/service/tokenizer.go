package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer turns text into model tokens and back.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

const defaultEncoding = "cl100k_base"

type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the BPE ranks bundled with the binary, so no
// network access is needed at startup.
func NewTiktokenTokenizer() (*TiktokenTokenizer, error) {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", defaultEncoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// Decode drops bytes of runes cut at either edge of the token slice. Tamil
// letters span several tokens, so chunk boundaries often split them.
func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return cleanText(t.enc.Decode(tokens))
}

// WordTokenizer treats whitespace-separated words as tokens. Decoding joins
// words with single spaces.
type WordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

func NewWordTokenizer() *WordTokenizer {
	return &WordTokenizer{ids: make(map[string]int)}
}

func (t *WordTokenizer) Encode(text string) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	for i, w := range fields {
		id, ok := t.ids[w]
		if !ok {
			id = len(t.words)
			t.ids[w] = id
			t.words = append(t.words, w)
		}
		tokens[i] = id
	}
	return tokens
}

func (t *WordTokenizer) Decode(tokens []int) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	words := make([]string, 0, len(tokens))
	for _, id := range tokens {
		if id >= 0 && id < len(t.words) {
			words = append(words, t.words[id])
		}
	}
	return strings.Join(words, " ")
}
