package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ks-ai/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
)

// VectorRecord is one point written to a collection.
type VectorRecord struct {
	ID      string
	Vector  []float32
	Payload models.Payload
}

// VectorBackend is the storage contract behind the vector store gateway.
// Collections use cosine distance; scores are cosine similarity.
type VectorBackend interface {
	Ping(ctx context.Context) error
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, dimension int) error
	// CollectionDimension reports the dimension of an existing collection.
	// The bool is false when the collection does not exist.
	CollectionDimension(ctx context.Context, name string) (int, bool, error)
	Upsert(ctx context.Context, collection string, records []VectorRecord) error
	Search(ctx context.Context, collection string, vector []float32, limit int, threshold float64, filters map[string]any) ([]models.SearchResult, error)
	DeleteByField(ctx context.Context, collection, field, value string) (int64, error)
	Count(ctx context.Context, collection string) (int64, error)
}

const collectionsTable = "vector_collections"

// PGVectorRepository keeps each collection in its own table with a
// vector(N) column and a JSONB payload.
type PGVectorRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPGVectorRepository(db *pgxpool.Pool, logger *zap.Logger) *PGVectorRepository {
	return &PGVectorRepository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the collection registry.
func (r *PGVectorRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+collectionsTable+` (
		name       TEXT PRIMARY KEY,
		dimension  INTEGER NOT NULL,
		distance   TEXT NOT NULL DEFAULT 'cosine',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("failed to create collection registry: %w", err)
	}
	return nil
}

func tableName(collection string) string {
	return pgx.Identifier{"vec_" + collection}.Sanitize()
}

func (r *PGVectorRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PGVectorRepository) ListCollections(ctx context.Context) ([]string, error) {
	query := squirrel.Select("name").
		From(collectionsTable).
		OrderBy("name").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

func (r *PGVectorRepository) CreateCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	insert := squirrel.Insert(collectionsTable).
		Columns("name", "dimension", "distance").
		Values(name, dimension, "cosine").
		Suffix("ON CONFLICT (name) DO NOTHING").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return err
	}

	table := tableName(name)
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         UUID PRIMARY KEY,
			embedding  vector(%d) NOT NULL,
			payload    JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`,
			pgx.Identifier{"vec_" + name + "_embedding_idx"}.Sanitize(), table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING gin (payload jsonb_path_ops)`,
			pgx.Identifier{"vec_" + name + "_payload_idx"}.Sanitize(), table),
	}
	for _, stmt := range ddl {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGVectorRepository) CollectionDimension(ctx context.Context, name string) (int, bool, error) {
	query := squirrel.Select("dimension").
		From(collectionsTable).
		Where(squirrel.Eq{"name": name}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, false, err
	}

	var dimension int
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&dimension); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}

	return dimension, true, nil
}

func (r *PGVectorRepository) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := squirrel.Insert(tableName(collection)).
		Columns("id", "embedding", "payload").
		Suffix("ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload").
		PlaceholderFormat(squirrel.Dollar)

	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		query = query.Values(
			rec.ID,
			squirrel.Expr("?::vector", pgvector.NewVector(rec.Vector)),
			squirrel.Expr("?::jsonb", string(payload)),
		)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *PGVectorRepository) Search(ctx context.Context, collection string, vector []float32, limit int, threshold float64, filters map[string]any) ([]models.SearchResult, error) {
	vec := pgvector.NewVector(vector)

	query := squirrel.Select("id::text", "payload").
		Column(squirrel.Expr("1 - (embedding <=> ?::vector) AS score", vec)).
		From(tableName(collection)).
		Where(squirrel.Expr("1 - (embedding <=> ?::vector) >= ?", vec, threshold)).
		OrderByClause("embedding <=> ?::vector", vec).
		Limit(uint64(limit)).
		PlaceholderFormat(squirrel.Dollar)

	if len(filters) > 0 {
		filter, err := json.Marshal(filters)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}
		query = query.Where(squirrel.Expr("payload @> ?::jsonb", string(filter)))
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []models.SearchResult
	for rows.Next() {
		var res models.SearchResult
		var payload map[string]any
		if err := rows.Scan(&res.ID, &payload, &res.Score); err != nil {
			return nil, err
		}
		res.Payload = payload
		results = append(results, res)
	}

	return results, rows.Err()
}

func (r *PGVectorRepository) DeleteByField(ctx context.Context, collection, field, value string) (int64, error) {
	query := squirrel.Delete(tableName(collection)).
		Where(squirrel.Expr("payload->>? = ?", field, value)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGVectorRepository) Count(ctx context.Context, collection string) (int64, error) {
	query := squirrel.Select("COUNT(*)").
		From(tableName(collection)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
