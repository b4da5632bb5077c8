package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmbeddingCache stores vectors by model and exact input text.
type EmbeddingCache interface {
	// Get returns one entry per text; misses are nil.
	Get(ctx context.Context, model string, texts []string) ([][]float32, error)
	Put(ctx context.Context, model string, texts []string, vectors [][]float32) error
}

type RedisEmbeddingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisEmbeddingCache(ctx context.Context, url string, ttl time.Duration, logger *zap.Logger) (*RedisEmbeddingCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Embedding cache connected", zap.String("addr", opts.Addr), zap.Duration("ttl", ttl))

	return &RedisEmbeddingCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "ks-ai:emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = cacheKey(model, t)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := decodeVector([]byte(s))
		if err != nil {
			c.logger.Warn("Dropping corrupt cache entry", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (c *RedisEmbeddingCache) Put(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return errors.New("texts and vectors length mismatch")
	}

	pipe := c.client.Pipeline()
	for i, t := range texts {
		pipe.Set(ctx, cacheKey(model, t), encodeVector(vectors[i]), c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector length %d", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
