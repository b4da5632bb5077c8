package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"testing"

	"ks-ai/internal/models"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testDimension = 8

// fakeEmbedder returns deterministic vectors derived from the input text and
// records request sizes.
type fakeEmbedder struct {
	mu       sync.Mutex
	batches  []int
	err      error
	shortBy  int
	reversed bool
}

func textVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, testDimension)
	for i := range v {
		v[i] = float32((seed>>(i*8))&0xff) + 1
	}
	return v
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	req := conv.Convert()
	inputs := req.Input.([]string)

	f.mu.Lock()
	f.batches = append(f.batches, len(inputs))
	f.mu.Unlock()

	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}

	n := len(inputs) - f.shortBy
	data := make([]openai.Embedding, 0, n)
	for i := 0; i < n; i++ {
		data = append(data, openai.Embedding{Index: i, Embedding: textVector(inputs[i])})
	}
	if f.reversed {
		for i, j := 0, len(data)-1; i < j; i, j = i+1, j-1 {
			data[i], data[j] = data[j], data[i]
		}
	}
	return openai.EmbeddingResponse{Data: data}, nil
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]float32
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string][]float32)} }

func (c *mapCache) Get(ctx context.Context, model string, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = c.entries[model+"|"+t]
	}
	return out, nil
}

func (c *mapCache) Put(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, t := range texts {
		c.entries[model+"|"+t] = vectors[i]
	}
	return nil
}

func newTestEmbeddingService(client embeddingClient, opts ...EmbeddingOption) *EmbeddingService {
	return newEmbeddingService(client, "test-model", NewChunker(NewWordTokenizer()), zap.NewNop(), opts...)
}

func TestEmbed_DropsBlanksAndKeepsOrder(t *testing.T) {
	svc := newTestEmbeddingService(&fakeEmbedder{reversed: true})

	vectors := svc.Embed(context.Background(), []string{"alpha", "  ", "beta", "", "gamma"})

	require.Len(t, vectors, 3)
	assert.Equal(t, textVector("alpha"), vectors[0])
	assert.Equal(t, textVector("beta"), vectors[1])
	assert.Equal(t, textVector("gamma"), vectors[2])
}

func TestEmbed_Unavailable(t *testing.T) {
	svc := newTestEmbeddingService(nil)
	assert.False(t, svc.IsAvailable())
	assert.Empty(t, svc.Embed(context.Background(), []string{"alpha"}))
	assert.Nil(t, svc.EmbedQuery(context.Background(), "alpha"))
}

func TestEmbed_EmptyInputSkipsBackend(t *testing.T) {
	client := &fakeEmbedder{}
	svc := newTestEmbeddingService(client)
	assert.Empty(t, svc.Embed(context.Background(), []string{" ", "\n"}))
	assert.Empty(t, client.batches)
}

func TestEmbed_BackendFailure(t *testing.T) {
	svc := newTestEmbeddingService(&fakeEmbedder{err: errors.New("quota exceeded")})
	assert.Empty(t, svc.Embed(context.Background(), []string{"alpha"}))
}

func TestEmbed_Batches(t *testing.T) {
	client := &fakeEmbedder{}
	svc := newTestEmbeddingService(client)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = words(i + 1)
	}
	vectors := svc.Embed(context.Background(), texts)

	require.Len(t, vectors, 250)
	assert.Equal(t, []int{100, 100, 50}, client.batches)
	assert.Equal(t, textVector(texts[249]), vectors[249])
}

func TestEmbed_UsesCache(t *testing.T) {
	client := &fakeEmbedder{}
	cache := newMapCache()
	svc := newTestEmbeddingService(client, WithEmbeddingCache(cache))

	first := svc.Embed(context.Background(), []string{"alpha", "beta"})
	second := svc.Embed(context.Background(), []string{"beta", "gamma"})

	require.Len(t, first, 2)
	require.Len(t, second, 2)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, []int{2, 1}, client.batches)
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses whitespace", "  The   quick\n\nbrown\tfox jumps  ", "The quick brown fox jumps"},
		{"drops short result", "  tiny  ", ""},
		{"ten characters is dropped", "abcde fghi", ""},
		{"eleven characters is kept", "abcde fghij", "abcde fghij"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preprocess(tt.in))
		})
	}
}

func TestProcessDocument_Parity(t *testing.T) {
	svc := newTestEmbeddingService(&fakeEmbedder{})
	meta := models.Payload{"content_id": "c1", "title": "Doc"}

	chunks := svc.ProcessDocument(context.Background(), words(3000), meta, DefaultChunkSize)

	require.Len(t, chunks, 7)
	for i, c := range chunks {
		assert.Len(t, c.Embedding, testDimension)
		assert.Equal(t, "c1", c.Metadata.String("content_id"))
		assert.Equal(t, i, c.Metadata.Int("chunk_id"))
		assert.Equal(t, c.Chunk.TokenCount, c.Metadata.Int("token_count"))
		assert.Equal(t, c.Chunk.StartToken, c.Metadata.Int("start_token"))
		assert.Equal(t, c.Chunk.EndToken, c.Metadata.Int("end_token"))
	}
	_, leaked := meta["chunk_id"]
	assert.False(t, leaked)
}

func TestProcessDocument_CountMismatchYieldsNothing(t *testing.T) {
	svc := newTestEmbeddingService(&fakeEmbedder{shortBy: 1})
	assert.Empty(t, svc.ProcessDocument(context.Background(), words(3000), models.Payload{}, DefaultChunkSize))
}

func TestProcessDocument_BlankText(t *testing.T) {
	client := &fakeEmbedder{}
	svc := newTestEmbeddingService(client)
	assert.Empty(t, svc.ProcessDocument(context.Background(), "   short  ", models.Payload{}, DefaultChunkSize))
	assert.Empty(t, client.batches)
}

func TestVectorCodec(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
