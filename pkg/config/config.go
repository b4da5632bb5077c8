package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	OpenAI      OpenAIConfig
	GigaChat    GigaChatConfig
	LLM         LLMConfig
	VectorStore VectorStoreConfig
	Redis       RedisConfig
	Ingestion   IngestionConfig
	RAG         RAGConfig
	Timeouts    TimeoutConfig
	Logger      LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Pool sizing; the ingestion worker and HTTP handlers share one pool.
	MaxConns        int
	MinConns        int
	MaxConnIdleTime time.Duration
}

// JWTConfig holds the shared secret used to validate tokens issued by the auth service.
type JWTConfig struct {
	SecretKey string
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
	// EmbeddingRPS throttles embedding requests; 0 disables the limiter.
	EmbeddingRPS float64
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

const (
	ProviderOpenAI   = "openai"
	ProviderGigaChat = "gigachat"
)

type LLMConfig struct {
	Provider string
}

const (
	BackendPGVector = "pgvector"
	BackendMemory   = "memory"
)

type VectorStoreConfig struct {
	Backend string
}

type RedisConfig struct {
	URL      string
	CacheTTL time.Duration
}

type IngestionConfig struct {
	UploadDir    string
	ChunkSize    int
	ChunkOverlap int
	QueueSize    int
	ItemPause    time.Duration
	PassTimeout  time.Duration
}

type RAGConfig struct {
	TopK           int
	ScoreThreshold float64
	QueryTimeout   time.Duration
}

// TimeoutConfig bounds every call to an external backend.
type TimeoutConfig struct {
	Extraction  time.Duration
	Embedding   time.Duration
	VectorStore time.Duration
	Generation  time.Duration
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work for containers
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8000"),
			ReadTimeout:  getEnvSeconds("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvSeconds("SERVER_WRITE_TIMEOUT", 120),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ks_ai"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:        getEnvInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvInt("DB_MIN_CONNS", 1),
			MaxConnIdleTime: getEnvSeconds("DB_MAX_CONN_IDLE_TIME", 300),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 1536),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-3.5-turbo"),
			EmbeddingRPS:       getEnvFloat("OPENAI_EMBEDDING_RPS", 3),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "false") == "true",
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
		},
		VectorStore: VectorStoreConfig{
			Backend: getEnv("VECTOR_STORE_BACKEND", BackendPGVector),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", ""),
			CacheTTL: time.Duration(getEnvInt("EMBEDDING_CACHE_TTL_HOURS", 168)) * time.Hour,
		},
		Ingestion: IngestionConfig{
			UploadDir:    getEnv("UPLOAD_DIR", "uploads"),
			ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
			ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),
			QueueSize:    getEnvInt("INGESTION_QUEUE_SIZE", 100),
			ItemPause:    getEnvMillis("INGESTION_ITEM_PAUSE_MS", 1000),
			PassTimeout:  getEnvSeconds("INGESTION_PASS_TIMEOUT", 600),
		},
		RAG: RAGConfig{
			TopK:           getEnvInt("RAG_TOP_K", 5),
			ScoreThreshold: getEnvFloat("RAG_SCORE_THRESHOLD", 0.6),
			QueryTimeout:   getEnvSeconds("RAG_QUERY_TIMEOUT", 60),
		},
		Timeouts: TimeoutConfig{
			Extraction:  getEnvSeconds("EXTRACTION_TIMEOUT", 120),
			Embedding:   getEnvSeconds("EMBEDDING_TIMEOUT", 60),
			VectorStore: getEnvSeconds("VECTOR_STORE_TIMEOUT", 15),
			Generation:  getEnvSeconds("GENERATION_TIMEOUT", 60),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Ingestion.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Ingestion.ChunkSize)
	}
	if c.Ingestion.ChunkOverlap < 0 || c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, %d), got %d", c.Ingestion.ChunkSize, c.Ingestion.ChunkOverlap)
	}
	if c.Ingestion.QueueSize <= 0 {
		return fmt.Errorf("INGESTION_QUEUE_SIZE must be positive, got %d", c.Ingestion.QueueSize)
	}
	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.OpenAI.EmbeddingDimension)
	}
	if c.RAG.TopK <= 0 {
		return fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAG.TopK)
	}
	if c.RAG.ScoreThreshold < 0 || c.RAG.ScoreThreshold > 1 {
		return fmt.Errorf("RAG_SCORE_THRESHOLD must be within [0, 1], got %v", c.RAG.ScoreThreshold)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGigaChat:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	switch c.VectorStore.Backend {
	case BackendPGVector, BackendMemory:
	default:
		return fmt.Errorf("unknown VECTOR_STORE_BACKEND %q", c.VectorStore.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Millisecond
}
