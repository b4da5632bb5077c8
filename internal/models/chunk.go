package models

// Chunk is a token-bounded slice of extracted text. StartToken and EndToken
// are offsets into the token stream of the whole document.
type Chunk struct {
	Index      int
	StartToken int
	EndToken   int
	TokenCount int
	Text       string
}

// Payload is the metadata stored next to a vector.
type Payload map[string]any

// String returns the value under key when it holds a string.
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the value under key as an int. JSON round-trips turn numbers
// into float64, so both are accepted.
func (p Payload) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

type EmbeddedChunk struct {
	Chunk     Chunk
	Embedding []float32
	Metadata  Payload
}

type SearchResult struct {
	ID      string
	Score   float64
	Payload Payload
}

// CollectionInfo describes one vector collection.
type CollectionInfo struct {
	Name        string `json:"name"`
	Dimension   int    `json:"dimension"`
	VectorCount int64  `json:"vector_count"`
}
