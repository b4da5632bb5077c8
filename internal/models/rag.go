package models

// Source is a citation returned with an answer.
type Source struct {
	Title      string      `json:"title"`
	SourceType ContentType `json:"source_type"`
	Category   string      `json:"category"`
	Language   Language    `json:"language"`
	SourceURL  string      `json:"source_url"`
	ChunkID    int         `json:"chunk_id"`
}

// ContextChunk is a retrieved chunk kept for prompting.
type ContextChunk struct {
	Text   string
	Score  float64
	Source Source
}

type RAGMetadata struct {
	Query             string   `json:"query,omitempty"`
	Topic             string   `json:"topic,omitempty"`
	Language          Language `json:"language,omitempty"`
	Model             string   `json:"model,omitempty"`
	SourcesCount      int      `json:"sources_count,omitempty"`
	AvgRelevanceScore float64  `json:"avg_relevance_score,omitempty"`
	Type              string   `json:"type,omitempty"`
}

// RAGResponse is the outcome of one query. Success with no sources is the
// "insufficient information" fallback, not an error.
type RAGResponse struct {
	Success  bool        `json:"success"`
	Answer   string      `json:"answer"`
	Error    string      `json:"error,omitempty"`
	Sources  []Source    `json:"sources"`
	Metadata RAGMetadata `json:"metadata"`
}

const ResponseTypeFallback = "fallback_response"
