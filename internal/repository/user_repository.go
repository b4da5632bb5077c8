package repository

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// UserRepository reads roles from the users table owned by the auth service.
type UserRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// UserRole returns the user's role in lower case, or "" for an unknown user.
func (r *UserRepository) UserRole(ctx context.Context, userID string) (string, error) {
	query := squirrel.Select("lower(role::text)").
		From("users").
		Where(squirrel.Expr("id::text = ?", userID)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return "", err
	}

	var role string
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return role, nil
}
