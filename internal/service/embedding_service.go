package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ks-ai/internal/models"
	"ks-ai/pkg/config"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxEmbeddingBatch caps the number of inputs sent in a single request.
const maxEmbeddingBatch = 100

// embeddingClient is the subset of the OpenAI client used for embeddings.
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type EmbeddingService struct {
	client  embeddingClient
	model   string
	chunker *Chunker
	overlap int
	cache   EmbeddingCache
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

type EmbeddingOption func(*EmbeddingService)

func WithEmbeddingCache(cache EmbeddingCache) EmbeddingOption {
	return func(s *EmbeddingService) { s.cache = cache }
}

// WithRateLimit throttles outgoing requests; rps <= 0 leaves them unthrottled.
func WithRateLimit(rps float64) EmbeddingOption {
	return func(s *EmbeddingService) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func WithChunkOverlap(overlap int) EmbeddingOption {
	return func(s *EmbeddingService) { s.overlap = overlap }
}

func WithEmbeddingTimeout(d time.Duration) EmbeddingOption {
	return func(s *EmbeddingService) { s.timeout = d }
}

// NewEmbeddingService builds the service from configuration. Without an API
// key the service is constructed but reports itself unavailable.
func NewEmbeddingService(cfg *config.OpenAIConfig, chunker *Chunker, logger *zap.Logger, opts ...EmbeddingOption) *EmbeddingService {
	var client embeddingClient
	if cfg.APIKey != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(clientConfig)
		logger.Info("OpenAI embedding service initialized", zap.String("model", cfg.EmbeddingModel))
	} else {
		logger.Warn("OpenAI API key not provided - embedding service disabled")
	}

	return newEmbeddingService(client, cfg.EmbeddingModel, chunker, logger, opts...)
}

func newEmbeddingService(client embeddingClient, model string, chunker *Chunker, logger *zap.Logger, opts ...EmbeddingOption) *EmbeddingService {
	s := &EmbeddingService{
		client:  client,
		model:   model,
		chunker: chunker,
		overlap: DefaultChunkOverlap,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EmbeddingService) IsAvailable() bool {
	return s.client != nil
}

// Embed returns one vector per non-blank input, in input order. Blank inputs
// are dropped. Any backend failure yields an empty result.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) [][]float32 {
	if s.client == nil {
		s.logger.Error("Embedding requested but no backend is configured")
		return nil
	}

	valid := make([]string, 0, len(texts))
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	vectors := make([][]float32, len(valid))
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, s.model, valid)
		if err != nil {
			s.logger.Warn("Embedding cache lookup failed", zap.Error(err))
		} else {
			copy(vectors, cached)
		}
	}

	var missing []int
	for i, v := range vectors {
		if v == nil {
			missing = append(missing, i)
		}
	}

	for start := 0; start < len(missing); start += maxEmbeddingBatch {
		batch := missing[start:min(start+maxEmbeddingBatch, len(missing))]
		inputs := make([]string, len(batch))
		for i, idx := range batch {
			inputs[i] = valid[idx]
		}

		embedded, err := s.embedBatch(ctx, inputs)
		if err != nil {
			s.logger.Error("Failed to generate embeddings", zap.Int("batch_size", len(inputs)), zap.Error(err))
			return nil
		}
		for i, idx := range batch {
			vectors[idx] = embedded[i]
		}

		if s.cache != nil {
			if err := s.cache.Put(ctx, s.model, inputs, embedded); err != nil {
				s.logger.Warn("Embedding cache write failed", zap.Error(err))
			}
		}
	}

	s.logger.Debug("Generated embeddings",
		zap.Int("count", len(vectors)),
		zap.Int("cache_hits", len(vectors)-len(missing)),
	)

	return vectors
}

func (s *EmbeddingService) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := s.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(s.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", models.ErrEmbeddingUnavailable, len(resp.Data), len(inputs))
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedQuery embeds a single text, returning nil on failure.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) []float32 {
	vectors := s.Embed(ctx, []string{text})
	if len(vectors) == 0 {
		return nil
	}
	return vectors[0]
}

// Preprocess collapses all whitespace into single spaces and drops lines of
// ten characters or fewer.
func Preprocess(text string) string {
	if text == "" {
		return ""
	}

	text = strings.Join(strings.Fields(text), " ")

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len([]rune(line)) > 10 {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

// ProcessDocument preprocesses, chunks and embeds a document. Each chunk's
// metadata is the document metadata plus its position in the token stream.
// An empty result means nothing should be stored.
func (s *EmbeddingService) ProcessDocument(ctx context.Context, text string, metadata models.Payload, chunkSize int) []models.EmbeddedChunk {
	cleaned := Preprocess(text)
	if cleaned == "" {
		s.logger.Warn("No content after preprocessing")
		return nil
	}

	chunks, err := s.chunker.Chunk(cleaned, chunkSize, s.overlap)
	if err != nil {
		s.logger.Error("Failed to chunk document", zap.Error(err))
		return nil
	}
	if len(chunks) == 0 {
		s.logger.Warn("No chunks generated")
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings := s.Embed(ctx, texts)
	if len(embeddings) != len(chunks) {
		s.logger.Error("Embedding count mismatch",
			zap.Int("embeddings", len(embeddings)),
			zap.Int("chunks", len(chunks)),
		)
		return nil
	}

	result := make([]models.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		meta := make(models.Payload, len(metadata)+4)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["chunk_id"] = c.Index
		meta["token_count"] = c.TokenCount
		meta["start_token"] = c.StartToken
		meta["end_token"] = c.EndToken

		result[i] = models.EmbeddedChunk{
			Chunk:     c,
			Embedding: embeddings[i],
			Metadata:  meta,
		}
	}

	s.logger.Info("Processed document", zap.Int("chunks", len(result)))
	return result
}
