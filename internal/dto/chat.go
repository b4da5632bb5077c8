package dto

import "ks-ai/internal/models"

type HistoryMessage struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type ChatRequest struct {
	Query          string           `json:"query"`
	Language       string           `json:"language"`
	Topic          string           `json:"topic"`
	ConversationID string           `json:"conversation_id,omitempty"`
	History        []HistoryMessage `json:"history,omitempty"`
}

// ChatResponse is the RAG response plus the conversation it was stored in.
// ConversationID is empty when the exchange could not be persisted.
type ChatResponse struct {
	*models.RAGResponse
	ConversationID string `json:"conversation_id,omitempty"`
}

type TopicsResponse struct {
	Topics []string `json:"topics"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Embedder    bool   `json:"embedder"`
	VectorStore bool   `json:"vector_store"`
	Generator   bool   `json:"generator"`
}
