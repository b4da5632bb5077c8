package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ks-ai/internal/models"
	"ks-ai/pkg/config"

	"go.uber.org/zap"
)

const (
	// Folded into the query so follow-up questions keep their context.
	maxContextTurns     = 3
	previousAnswerRunes = 100

	unavailableAnswer = "I apologize, but I'm unable to process your query at the moment. Please try again later."
)

type queryEmbedder interface {
	IsAvailable() bool
	EmbedQuery(ctx context.Context, text string) []float32
}

type vectorSearcher interface {
	IsHealthy(ctx context.Context) bool
	Dimension() int
	CreateCollection(ctx context.Context, name string, dimension int) bool
	Search(ctx context.Context, collection string, vector []float32, limit int, threshold float64, filters map[string]any) []models.SearchResult
}

type RAGService struct {
	embedder  queryEmbedder
	vectors   vectorSearcher
	generator Generator
	config    config.RAGConfig
	logger    *zap.Logger
}

func NewRAGService(embedder queryEmbedder, vectors vectorSearcher, generator Generator, cfg config.RAGConfig, logger *zap.Logger) *RAGService {
	return &RAGService{
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
		config:    cfg,
		logger:    logger,
	}
}

func (s *RAGService) IsAvailable(ctx context.Context) bool {
	return s.generator != nil && s.generator.IsAvailable() &&
		s.embedder.IsAvailable() &&
		s.vectors.IsHealthy(ctx)
}

// Topics lists the topics users can ask about.
func (s *RAGService) Topics() []string {
	return Topics()
}

// ProcessQuery answers a question from the topic's collection. It always
// returns a response; failures are reported through Success and Error.
func (s *RAGService) ProcessQuery(ctx context.Context, query, topic string, language models.Language, turns []models.Turn) *models.RAGResponse {
	if s.config.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.QueryTimeout)
		defer cancel()
	}

	if !s.IsAvailable(ctx) {
		return errorResponse("RAG service not available")
	}

	s.logger.Info("Processing query",
		zap.String("topic", topic),
		zap.String("language", string(language)),
		zap.Int("turns", len(turns)),
	)

	processed := foldConversation(query, turns)
	queryEmbedding := s.embedder.EmbedQuery(ctx, processed)
	if len(queryEmbedding) == 0 {
		return errorResponse("Failed to generate query embedding")
	}

	chunks := s.retrieveContext(ctx, queryEmbedding, topic, s.config.TopK)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errorResponse("Query processing timed out")
	}
	if len(chunks) == 0 {
		return fallbackResponse(query, topic, language)
	}

	resp := s.generate(ctx, query, chunks, language, topic)
	if resp.Success {
		s.logger.Info("Successfully processed query", zap.Int("sources", len(chunks)))
	}
	return resp
}

// foldConversation prefixes the question with the last few turns.
func foldConversation(query string, turns []models.Turn) string {
	if len(turns) == 0 {
		return strings.TrimSpace(query)
	}
	if len(turns) > maxContextTurns {
		turns = turns[len(turns)-maxContextTurns:]
	}

	var b strings.Builder
	for _, turn := range turns {
		switch turn.Sender() {
		case models.SenderUser:
			fmt.Fprintf(&b, "Previous question: %s\n", turn.Text())
		case models.SenderAI:
			text := []rune(turn.Text())
			if len(text) > previousAnswerRunes {
				text = text[:previousAnswerRunes]
			}
			fmt.Fprintf(&b, "Previous answer: %s...\n", string(text))
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(query)
	}

	return fmt.Sprintf("%s\nCurrent question: %s", b.String(), query)
}

func (s *RAGService) retrieveContext(ctx context.Context, embedding []float32, topic string, limit int) []models.ContextChunk {
	collection := CollectionForTopic(topic)
	results := s.vectors.Search(ctx, collection, embedding, limit*2, s.config.ScoreThreshold, map[string]any{
		"category": topic,
	})
	if len(results) > limit {
		results = results[:limit]
	}

	chunks := make([]models.ContextChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, models.ContextChunk{
			Text:   r.Payload.String("text"),
			Score:  r.Score,
			Source: sourceFromPayload(r.Payload, topic),
		})
	}
	return chunks
}

func sourceFromPayload(p models.Payload, topic string) models.Source {
	src := models.Source{
		Title:      p.String("title"),
		SourceType: models.ContentType(p.String("source_type")),
		Category:   p.String("category"),
		Language:   models.Language(p.String("language")),
		SourceURL:  p.String("source_url"),
		ChunkID:    p.Int("chunk_id"),
	}
	if src.Title == "" {
		src.Title = "Unknown"
	}
	if src.SourceType == "" {
		src.SourceType = "unknown"
	}
	if src.Category == "" {
		src.Category = topic
	}
	if src.Language == "" {
		src.Language = models.LanguageEnglish
	}
	return src
}

func (s *RAGService) generate(ctx context.Context, query string, chunks []models.ContextChunk, language models.Language, topic string) *models.RAGResponse {
	prompt := fmt.Sprintf(`Context Information:
%s

User Question: %s

Please provide a comprehensive answer based ONLY on the provided context. If the context doesn't contain enough information to answer the question, please say so clearly.`,
		formatContext(chunks), query)

	answer, err := s.generator.Generate(ctx, systemPrompt(language, topic), prompt)
	if err != nil {
		s.logger.Error("Response generation failed", zap.Error(err))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errorResponse("Query processing timed out")
		}
		return errorResponse("Failed to generate response")
	}

	sources := make([]models.Source, len(chunks))
	var total float64
	for i, c := range chunks {
		sources[i] = c.Source
		total += c.Score
	}

	return &models.RAGResponse{
		Success: true,
		Answer:  answer,
		Sources: sources,
		Metadata: models.RAGMetadata{
			Query:             query,
			Topic:             topic,
			Language:          language,
			Model:             s.generator.Model(),
			SourcesCount:      len(chunks),
			AvgRelevanceScore: total / float64(len(chunks)),
		},
	}
}

func formatContext(chunks []models.ContextChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		fmt.Fprintf(&b, "Source %d (Relevance: %.2f):\nTitle: %s\nCategory: %s\nContent: %s\n\n---\n\n",
			i+1, c.Score, c.Source.Title, c.Source.Category, c.Text)
	}
	return b.String()
}

func systemPrompt(language models.Language, topic string) string {
	prompt := fmt.Sprintf(`You are KS AI, an expert assistant providing information about Karthikeya Sivasenapathy (KS) and his work in %s.

CRITICAL INSTRUCTIONS:
1. Answer ONLY based on the provided context - never use external knowledge
2. If the context doesn't contain sufficient information, clearly state this
3. Provide accurate, factual responses with proper citations
4. Be helpful but maintain strict adherence to the source material
5. Do not hallucinate or make up information`, topic)

	if language == models.LanguageTamil {
		return prompt + `
6. Respond in Tamil (தமிழ்) when possible, but you may include English terms if Tamil translations are not clear
7. Maintain respectful and formal tone appropriate for Tamil cultural context`
	}
	return prompt + `
6. Respond in clear, professional English
7. Use accessible language while maintaining accuracy`
}

func errorResponse(message string) *models.RAGResponse {
	return &models.RAGResponse{
		Success: false,
		Answer:  unavailableAnswer,
		Error:   message,
		Sources: []models.Source{},
	}
}

func fallbackResponse(query, topic string, language models.Language) *models.RAGResponse {
	var answer string
	if language == models.LanguageTamil {
		answer = fmt.Sprintf("மன்னிக்கவும், %s பற்றிய உங்கள் கேள்விக்கு எனது தரவுத்தளத்தில் போதுமான தகவல் இல்லை. தயவுசெய்து வேறு வழியில் கேள்வியை கேட்க முயற்சிக்கவும்.", topic)
	} else {
		answer = fmt.Sprintf("I apologize, but I don't have sufficient information in my knowledge base to answer your question about %s. Please try rephrasing your question or asking about a different aspect of this topic.", topic)
	}

	return &models.RAGResponse{
		Success: true,
		Answer:  answer,
		Sources: []models.Source{},
		Metadata: models.RAGMetadata{
			Query:    query,
			Topic:    topic,
			Language: language,
			Type:     models.ResponseTypeFallback,
		},
	}
}

// InitializeCollections creates every topic collection and the general one.
// It reports whether all of them are ready.
func (s *RAGService) InitializeCollections(ctx context.Context) bool {
	ready := 0
	names := CollectionNames()
	for _, name := range names {
		if s.vectors.CreateCollection(ctx, name, s.vectors.Dimension()) {
			ready++
			s.logger.Info("Initialized collection", zap.String("collection", name))
		} else {
			s.logger.Error("Failed to initialize collection", zap.String("collection", name))
		}
	}
	return ready == len(names)
}
