package repository

import (
	"context"
	"math"
	"reflect"
	"sort"
	"sync"

	"ks-ai/internal/models"
)

type memoryCollection struct {
	dimension int
	records   []VectorRecord
}

// MemoryVectorRepository is a brute-force cosine store for tests and
// single-process deployments.
type MemoryVectorRepository struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

func NewMemoryVectorRepository() *MemoryVectorRepository {
	return &MemoryVectorRepository{collections: make(map[string]*memoryCollection)}
}

func (r *MemoryVectorRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryVectorRepository) ListCollections(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collections))
	for name := range r.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *MemoryVectorRepository) CreateCollection(ctx context.Context, name string, dimension int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.collections[name]; !ok {
		r.collections[name] = &memoryCollection{dimension: dimension}
	}
	return nil
}

func (r *MemoryVectorRepository) CollectionDimension(ctx context.Context, name string) (int, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return 0, false, nil
	}
	return c.dimension, true, nil
}

func (r *MemoryVectorRepository) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collections[collection]
	if !ok {
		return ErrCollectionNotFound
	}
	for _, rec := range records {
		if len(rec.Vector) != c.dimension {
			return ErrDimensionMismatch
		}
	}

	index := make(map[string]int, len(c.records))
	for i, rec := range c.records {
		index[rec.ID] = i
	}
	for _, rec := range records {
		if i, ok := index[rec.ID]; ok {
			c.records[i] = rec
			continue
		}
		c.records = append(c.records, rec)
	}
	return nil
}

func (r *MemoryVectorRepository) Search(ctx context.Context, collection string, vector []float32, limit int, threshold float64, filters map[string]any) ([]models.SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[collection]
	if !ok {
		return nil, ErrCollectionNotFound
	}

	var results []models.SearchResult
	for _, rec := range c.records {
		if !matchesFilters(rec.Payload, filters) {
			continue
		}
		score := cosineSimilarity(rec.Vector, vector)
		if score < threshold {
			continue
		}
		results = append(results, models.SearchResult{ID: rec.ID, Score: score, Payload: rec.Payload})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *MemoryVectorRepository) DeleteByField(ctx context.Context, collection, field, value string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.collections[collection]
	if !ok {
		return 0, ErrCollectionNotFound
	}

	kept := c.records[:0]
	var deleted int64
	for _, rec := range c.records {
		if rec.Payload.String(field) == value {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	c.records = kept
	return deleted, nil
}

func (r *MemoryVectorRepository) Count(ctx context.Context, collection string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[collection]
	if !ok {
		return 0, ErrCollectionNotFound
	}
	return int64(len(c.records)), nil
}

func matchesFilters(payload models.Payload, filters map[string]any) bool {
	for key, want := range filters {
		if !reflect.DeepEqual(payload[key], want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
