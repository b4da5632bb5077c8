package repository

import (
	"context"
	"time"

	"ks-ai/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ConversationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewConversationRepository(db *pgxpool.Pool, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{
		db:     db,
		logger: logger,
	}
}

// CreateConversation starts a conversation for the user on a topic.
func (r *ConversationRepository) CreateConversation(ctx context.Context, userID, topic string) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now().UTC()

	query := squirrel.Insert("conversations").
		Columns("id", "user_id", "topic", "created_at", "updated_at").
		Values(id, squirrel.Expr("?::uuid", userID), topic, now, now).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return uuid.Nil, err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return uuid.Nil, err
	}

	r.logger.Debug("Conversation created", zap.String("conversation_id", id.String()), zap.String("topic", topic))
	return id, nil
}

// SaveMessage appends a message to a conversation.
func (r *ConversationRepository) SaveMessage(ctx context.Context, conversationID uuid.UUID, sender models.Sender, text string) (*models.PersistedMessage, error) {
	msg := &models.PersistedMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderRole:     sender,
		TextContent:    text,
		CreatedAt:      time.Now().UTC(),
	}

	query := squirrel.Insert("messages").
		Columns("id", "conversation_id", "sender", "text_content", "created_at").
		Values(msg.ID, msg.ConversationID, squirrel.Expr("?::message_sender", string(sender)), msg.TextContent, msg.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns the last limit messages of a conversation, oldest first.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.PersistedMessage, error) {
	inner := squirrel.Select("id", "conversation_id", "sender::text AS sender", "text_content", "created_at").
		From("messages").
		Where(squirrel.Eq{"conversation_id": conversationID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))

	query := squirrel.Select("id", "conversation_id", "sender", "text_content", "created_at").
		FromSelect(inner, "recent").
		OrderBy("created_at ASC").
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

	var messages []models.PersistedMessage
	for rows.Next() {
		var m models.PersistedMessage
		var sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.TextContent, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.SenderRole = models.Sender(sender)
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// BelongsTo reports whether the conversation is owned by the user.
func (r *ConversationRepository) BelongsTo(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error) {
	query := squirrel.Select("1").
		Prefix("SELECT EXISTS (").
		From("conversations").
		Where(squirrel.Eq{"id": conversationID}).
		Where(squirrel.Expr("user_id::text = ?", userID)).
		Suffix(")").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
