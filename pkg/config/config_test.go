package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 50, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, time.Second, cfg.Ingestion.ItemPause)
	assert.Equal(t, 1536, cfg.OpenAI.EmbeddingDimension)
	assert.Equal(t, 5, cfg.RAG.TopK)
	assert.InDelta(t, 0.6, cfg.RAG.ScoreThreshold, 1e-9)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, BackendPGVector, cfg.VectorStore.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHUNK_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "30")
	t.Setenv("RAG_SCORE_THRESHOLD", "0.75")
	t.Setenv("VECTOR_STORE_BACKEND", "memory")
	t.Setenv("EXTRACTION_TIMEOUT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 300, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 30, cfg.Ingestion.ChunkOverlap)
	assert.InDelta(t, 0.75, cfg.RAG.ScoreThreshold, 1e-9)
	assert.Equal(t, BackendMemory, cfg.VectorStore.Backend)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Extraction)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"overlap not below chunk size", map[string]string{"CHUNK_SIZE": "50", "CHUNK_OVERLAP": "50"}},
		{"threshold above one", map[string]string{"RAG_SCORE_THRESHOLD": "1.5"}},
		{"unknown provider", map[string]string{"LLM_PROVIDER": "bard"}},
		{"unknown backend", map[string]string{"VECTOR_STORE_BACKEND": "faiss"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
