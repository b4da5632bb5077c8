package repository

import (
	"context"
	"errors"

	"ks-ai/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var contentColumns = []string{
	"id", "title", "source_url", "source_type::text", "language::text", "category",
	"needs_translation", "status::text", "status_message", "created_at", "updated_at",
}

// ContentRepository reads and updates the content table. The table itself is
// owned by the upload service.
type ContentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewContentRepository(db *pgxpool.Pool, logger *zap.Logger) *ContentRepository {
	return &ContentRepository{
		db:     db,
		logger: logger,
	}
}

// Migrate adds the diagnostic column used for failed items.
func (r *ContentRepository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `ALTER TABLE content ADD COLUMN IF NOT EXISTS status_message TEXT NOT NULL DEFAULT ''`)
	return err
}

func (r *ContentRepository) Create(ctx context.Context, c *models.Content) error {
	query := squirrel.Insert("content").
		Columns("id", "title", "source_url", "source_type", "language", "category", "needs_translation", "status", "status_message", "created_at", "updated_at").
		Values(c.ID, c.Title, c.SourceURL, string(c.SourceType), string(c.Language), c.Category, c.NeedsTranslation, string(c.Status), c.StatusMessage, c.CreatedAt, c.UpdatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ContentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Content, error) {
	query := squirrel.Select(contentColumns...).
		From("content").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	c, err := scanContent(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrContentNotFound
		}
		return nil, err
	}

	return c, nil
}

// TransitionStatus moves an item from one status to another only if it is
// currently in the expected state. It reports whether the row was updated.
func (r *ContentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.ContentStatus, message string) (bool, error) {
	query := squirrel.Update("content").
		Set("status", string(to)).
		Set("status_message", message).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Expr("status::text = ?", string(from))).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ContentRepository) ListByStatus(ctx context.Context, status models.ContentStatus, limit int) ([]*models.Content, error) {
	query := squirrel.Select(contentColumns...).
		From("content").
		Where(squirrel.Expr("status::text = ?", string(status))).
		OrderBy("updated_at ASC").
		Limit(uint64(limit)).
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

	var items []*models.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}

	return items, rows.Err()
}

func (r *ContentRepository) CountByStatus(ctx context.Context) (map[models.ContentStatus]int, error) {
	query := squirrel.Select("status::text", "COUNT(*)").
		From("content").
		GroupBy("status").
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

	counts := make(map[models.ContentStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[models.ContentStatus(status)] = count
	}

	return counts, rows.Err()
}

func scanContent(row pgx.Row) (*models.Content, error) {
	var c models.Content
	var sourceType, language, status string
	err := row.Scan(
		&c.ID, &c.Title, &c.SourceURL, &sourceType, &language, &c.Category,
		&c.NeedsTranslation, &status, &c.StatusMessage, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.SourceType = models.ContentType(sourceType)
	c.Language = models.Language(language)
	c.Status = models.ContentStatus(status)
	return &c, nil
}
