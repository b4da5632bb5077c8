package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ks-ai/internal/models"
	"ks-ai/internal/repository"
	"ks-ai/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubQueryEmbedder struct {
	available bool
	vector    []float32
	lastText  string
}

func (e *stubQueryEmbedder) IsAvailable() bool { return e.available }

func (e *stubQueryEmbedder) EmbedQuery(ctx context.Context, text string) []float32 {
	e.lastText = text
	return e.vector
}

type stubGenerator struct {
	answer     string
	err        error
	available  bool
	lastSystem string
	lastPrompt string
}

func (g *stubGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	g.lastSystem, g.lastPrompt = system, prompt
	return g.answer, g.err
}

// blockingGenerator waits until the query deadline passes.
type blockingGenerator struct {
	stubGenerator
}

func (g *blockingGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (g *stubGenerator) Model() string     { return "stub-model" }
func (g *stubGenerator) IsAvailable() bool { return g.available }

type ragFixture struct {
	svc       *RAGService
	embedder  *stubQueryEmbedder
	generator *stubGenerator
	backend   *repository.MemoryVectorRepository
}

func newRAGFixture(t *testing.T) *ragFixture {
	t.Helper()
	backend := repository.NewMemoryVectorRepository()
	vectors := NewVectorStoreService(backend, 2, time.Second, zap.NewNop())
	embedder := &stubQueryEmbedder{available: true, vector: []float32{1, 0}}
	generator := &stubGenerator{answer: "KS founded SKCRF.", available: true}

	cfg := config.RAGConfig{TopK: 5, ScoreThreshold: 0.6, QueryTimeout: time.Second}
	svc := NewRAGService(embedder, vectors, generator, cfg, zap.NewNop())
	require.True(t, svc.InitializeCollections(context.Background()))

	return &ragFixture{svc: svc, embedder: embedder, generator: generator, backend: backend}
}

func (f *ragFixture) seed(t *testing.T, collection string, records ...repository.VectorRecord) {
	t.Helper()
	require.NoError(t, f.backend.Upsert(context.Background(), collection, records))
}

func TestProcessQuery_Fallback(t *testing.T) {
	tests := []struct {
		language models.Language
		want     string
	}{
		{models.LanguageEnglish, "I apologize, but I don't have sufficient information in my knowledge base to answer your question about Environmentalism. Please try rephrasing your question or asking about a different aspect of this topic."},
		{models.LanguageTamil, "மன்னிக்கவும், Environmentalism பற்றிய உங்கள் கேள்விக்கு எனது தரவுத்தளத்தில் போதுமான தகவல் இல்லை. தயவுசெய்து வேறு வழியில் கேள்வியை கேட்க முயற்சிக்கவும்."},
	}

	for _, tt := range tests {
		t.Run(string(tt.language), func(t *testing.T) {
			f := newRAGFixture(t)

			resp := f.svc.ProcessQuery(context.Background(), "What are the environmental initiatives?", "Environmentalism", tt.language, nil)

			assert.True(t, resp.Success)
			assert.Equal(t, tt.want, resp.Answer)
			assert.Empty(t, resp.Sources)
			assert.Equal(t, models.ResponseTypeFallback, resp.Metadata.Type)
			assert.Equal(t, "Environmentalism", resp.Metadata.Topic)
			assert.Empty(t, f.generator.lastPrompt)
		})
	}
}

func TestProcessQuery_BelowThresholdFallsBack(t *testing.T) {
	f := newRAGFixture(t)
	f.seed(t, "ks_politics", repository.VectorRecord{
		ID: "far", Vector: []float32{0.5, 0.866}, Payload: models.Payload{"category": "Politics", "text": "unrelated"},
	})

	resp := f.svc.ProcessQuery(context.Background(), "q", "Politics", models.LanguageEnglish, nil)
	assert.True(t, resp.Success)
	assert.Equal(t, models.ResponseTypeFallback, resp.Metadata.Type)
}

func TestProcessQuery_Generates(t *testing.T) {
	f := newRAGFixture(t)
	f.seed(t, "ks_skcrf",
		repository.VectorRecord{ID: "1", Vector: []float32{1, 0}, Payload: models.Payload{
			"category": "SKCRF", "title": "Annual report", "source_type": "pdf", "language": "en",
			"source_url": "report.pdf", "chunk_id": 2, "text": "SKCRF was founded to protect native cattle.",
		}},
		repository.VectorRecord{ID: "2", Vector: []float32{0.8, 0.6}, Payload: models.Payload{
			"category": "SKCRF", "text": "Second chunk.",
		}},
		repository.VectorRecord{ID: "3", Vector: []float32{1, 0}, Payload: models.Payload{
			"category": "Politics", "text": "Wrong category.",
		}},
	)

	resp := f.svc.ProcessQuery(context.Background(), "What is SKCRF?", "SKCRF", models.LanguageTamil, nil)

	require.True(t, resp.Success)
	assert.Equal(t, "KS founded SKCRF.", resp.Answer)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, models.Source{
		Title: "Annual report", SourceType: models.ContentTypePDF, Category: "SKCRF",
		Language: models.LanguageEnglish, SourceURL: "report.pdf", ChunkID: 2,
	}, resp.Sources[0])
	assert.Equal(t, "Unknown", resp.Sources[1].Title)
	assert.Equal(t, models.ContentType("unknown"), resp.Sources[1].SourceType)

	assert.Equal(t, "stub-model", resp.Metadata.Model)
	assert.Equal(t, 2, resp.Metadata.SourcesCount)
	assert.InDelta(t, 0.9, resp.Metadata.AvgRelevanceScore, 1e-6)
	assert.Empty(t, resp.Metadata.Type)

	assert.Contains(t, f.generator.lastSystem, "his work in SKCRF")
	assert.Contains(t, f.generator.lastSystem, "Respond in Tamil")
	assert.Contains(t, f.generator.lastPrompt, "Source 1 (Relevance: 1.00):\nTitle: Annual report\nCategory: SKCRF\nContent: SKCRF was founded to protect native cattle.")
	assert.Contains(t, f.generator.lastPrompt, "User Question: What is SKCRF?")
	assert.NotContains(t, f.generator.lastPrompt, "Wrong category.")
}

func TestProcessQuery_TruncatesToTopK(t *testing.T) {
	f := newRAGFixture(t)
	for i := 0; i < 8; i++ {
		f.seed(t, "ks_education", repository.VectorRecord{
			ID: string(rune('a' + i)), Vector: []float32{1, float32(i) / 10}, Payload: models.Payload{"category": "Educational Trust"},
		})
	}

	resp := f.svc.ProcessQuery(context.Background(), "q", "Educational Trust", models.LanguageEnglish, nil)
	require.True(t, resp.Success)
	assert.Len(t, resp.Sources, 5)
}

func TestProcessQuery_GenerationErrorIsHidden(t *testing.T) {
	f := newRAGFixture(t)
	f.seed(t, "ks_politics", repository.VectorRecord{ID: "1", Vector: []float32{1, 0}, Payload: models.Payload{"category": "Politics"}})
	f.generator.err = errors.New("upstream 500: secret internal detail")

	resp := f.svc.ProcessQuery(context.Background(), "q", "Politics", models.LanguageEnglish, nil)

	assert.False(t, resp.Success)
	assert.Equal(t, unavailableAnswer, resp.Answer)
	assert.NotEmpty(t, resp.Error)
	assert.NotContains(t, resp.Answer, "secret")
	assert.NotContains(t, resp.Error, "secret")
	assert.Empty(t, resp.Sources)
}

func TestProcessQuery_Timeout(t *testing.T) {
	backend := repository.NewMemoryVectorRepository()
	vectors := NewVectorStoreService(backend, 2, time.Second, zap.NewNop())
	embedder := &stubQueryEmbedder{available: true, vector: []float32{1, 0}}
	generator := &blockingGenerator{stubGenerator{available: true}}
	cfg := config.RAGConfig{TopK: 5, ScoreThreshold: 0.6, QueryTimeout: 50 * time.Millisecond}
	svc := NewRAGService(embedder, vectors, generator, cfg, zap.NewNop())
	require.True(t, svc.InitializeCollections(context.Background()))
	require.NoError(t, backend.Upsert(context.Background(), "ks_politics", []repository.VectorRecord{
		{ID: "1", Vector: []float32{1, 0}, Payload: models.Payload{"category": "Politics"}},
	}))

	start := time.Now()
	resp := svc.ProcessQuery(context.Background(), "q", "Politics", models.LanguageEnglish, nil)

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, resp.Success)
	assert.Equal(t, unavailableAnswer, resp.Answer)
	assert.Equal(t, "Query processing timed out", resp.Error)
	assert.Empty(t, resp.Sources)
}

func TestProcessQuery_Unavailable(t *testing.T) {
	f := newRAGFixture(t)
	f.embedder.available = false

	resp := f.svc.ProcessQuery(context.Background(), "q", "Politics", models.LanguageEnglish, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, unavailableAnswer, resp.Answer)
	assert.Equal(t, "RAG service not available", resp.Error)
}

func TestProcessQuery_EmptyEmbedding(t *testing.T) {
	f := newRAGFixture(t)
	f.embedder.vector = nil

	resp := f.svc.ProcessQuery(context.Background(), "q", "Politics", models.LanguageEnglish, nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to generate query embedding", resp.Error)
}

func TestFoldConversation(t *testing.T) {
	long := strings.Repeat("a", 150)
	turns := []models.Turn{
		models.EphemeralMessage{SenderRole: models.SenderUser, TextContent: "dropped"},
		models.EphemeralMessage{SenderRole: models.SenderUser, TextContent: "Who is KS?"},
		models.PersistedMessage{SenderRole: models.SenderAI, TextContent: long},
		models.EphemeralMessage{SenderRole: models.SenderUser, TextContent: "And SKCRF?"},
	}

	got := foldConversation("  What does it do?  ", turns)

	want := "Previous question: Who is KS?\n" +
		"Previous answer: " + strings.Repeat("a", 100) + "...\n" +
		"Previous question: And SKCRF?\n" +
		"\nCurrent question:   What does it do?  "
	assert.Equal(t, want, got)

	assert.Equal(t, "plain", foldConversation("  plain ", nil))
}

func TestProcessQuery_UsesConversationForEmbedding(t *testing.T) {
	f := newRAGFixture(t)
	turns := []models.Turn{models.EphemeralMessage{SenderRole: models.SenderUser, TextContent: "Who is KS?"}}

	f.svc.ProcessQuery(context.Background(), "Where was he born?", "Politics", models.LanguageEnglish, turns)

	assert.Equal(t, "Previous question: Who is KS?\n\nCurrent question: Where was he born?", f.embedder.lastText)
}

func TestCollectionForTopic(t *testing.T) {
	assert.Equal(t, "ks_politics", CollectionForTopic("Politics"))
	assert.Equal(t, "ks_environment", CollectionForTopic("Environmentalism"))
	assert.Equal(t, "ks_skcrf", CollectionForTopic("SKCRF"))
	assert.Equal(t, "ks_education", CollectionForTopic("Educational Trust"))
	assert.Equal(t, GeneralCollection, CollectionForTopic("politics"))
	assert.Equal(t, []string{"Politics", "Environmentalism", "SKCRF", "Educational Trust"}, Topics())
}
