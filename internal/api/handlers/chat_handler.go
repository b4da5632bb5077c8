package handlers

import (
	"context"
	"strings"

	"ks-ai/internal/dto"
	"ks-ai/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Only the most recent turns are folded into the query.
const historyTurns = 3

type RAGEngine interface {
	ProcessQuery(ctx context.Context, query, topic string, language models.Language, turns []models.Turn) *models.RAGResponse
	Topics() []string
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, topic string) (uuid.UUID, error)
	SaveMessage(ctx context.Context, conversationID uuid.UUID, sender models.Sender, text string) (*models.PersistedMessage, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.PersistedMessage, error)
	BelongsTo(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error)
}

type ChatHandler struct {
	rag           RAGEngine
	conversations ConversationStore
	logger        *zap.Logger
}

func NewChatHandler(rag RAGEngine, conversations ConversationStore, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		rag:           rag,
		conversations: conversations,
		logger:        logger,
	}
}

// Topics returns the topics a question can be asked about.
func (h *ChatHandler) Topics(c *fiber.Ctx) error {
	return c.JSON(dto.TopicsResponse{Topics: h.rag.Topics()})
}

// Chat answers a question and stores both sides of the exchange. Context
// comes from the stored conversation when conversation_id is given,
// otherwise from the history in the request. When the conversation store
// fails the request still gets an answer, without a conversation_id.
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(req.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}
	if req.Topic == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Topic is required",
		})
	}

	conversation, status, msg := h.openConversation(c, &req)
	if status != 0 {
		return c.Status(status).JSON(fiber.Map{
			"error": msg,
		})
	}
	conversation.save(c.Context(), models.SenderUser, req.Query)

	resp := h.rag.ProcessQuery(c.Context(), req.Query, req.Topic, models.ParseLanguage(req.Language), conversation.turns)

	if resp.Answer != "" {
		conversation.save(c.Context(), models.SenderAI, resp.Answer)
	}

	out := dto.ChatResponse{RAGResponse: resp}
	if conversation.persisted() {
		out.ConversationID = conversation.id.String()
	}

	if !resp.Success {
		return c.Status(fiber.StatusServiceUnavailable).JSON(out)
	}
	return c.JSON(out)
}

// chatConversation is the conversation a request is answered in. A zero id
// means nothing is persisted and turns only come from the request.
type chatConversation struct {
	id     uuid.UUID
	turns  []models.Turn
	store  ConversationStore
	logger *zap.Logger
}

func (cc *chatConversation) persisted() bool {
	return cc.id != uuid.Nil
}

func (cc *chatConversation) save(ctx context.Context, sender models.Sender, text string) {
	if !cc.persisted() {
		return
	}
	if _, err := cc.store.SaveMessage(ctx, cc.id, sender, text); err != nil {
		cc.logger.Error("Failed to save message",
			zap.String("conversation_id", cc.id.String()),
			zap.String("sender", string(sender)),
			zap.Error(err),
		)
	}
}

// openConversation finds the requested conversation or starts a new one.
// Store failures degrade to an ephemeral conversation built from the
// request history.
func (h *ChatHandler) openConversation(c *fiber.Ctx, req *dto.ChatRequest) (*chatConversation, int, string) {
	ephemeral := &chatConversation{turns: historyToTurns(req.History), logger: h.logger}
	if h.conversations == nil {
		return ephemeral, 0, ""
	}

	userID, _ := c.Locals("userID").(string)

	if req.ConversationID == "" {
		id, err := h.conversations.CreateConversation(c.Context(), userID, req.Topic)
		if err != nil {
			h.logger.Error("Failed to create conversation, continuing without history storage", zap.Error(err))
			return ephemeral, 0, ""
		}
		return &chatConversation{id: id, turns: ephemeral.turns, store: h.conversations, logger: h.logger}, 0, ""
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		return nil, fiber.StatusBadRequest, "Invalid conversation ID"
	}

	owned, err := h.conversations.BelongsTo(c.Context(), conversationID, userID)
	if err != nil {
		h.logger.Error("Failed to check conversation owner, continuing without history storage", zap.Error(err))
		return ephemeral, 0, ""
	}
	if !owned {
		return nil, fiber.StatusNotFound, "Conversation not found"
	}

	messages, err := h.conversations.RecentMessages(c.Context(), conversationID, historyTurns)
	if err != nil {
		h.logger.Error("Failed to load conversation, using request history",
			zap.String("conversation_id", req.ConversationID),
			zap.Error(err),
		)
		return &chatConversation{id: conversationID, turns: ephemeral.turns, store: h.conversations, logger: h.logger}, 0, ""
	}

	turns := make([]models.Turn, len(messages))
	for i, m := range messages {
		turns[i] = m
	}
	return &chatConversation{id: conversationID, turns: turns, store: h.conversations, logger: h.logger}, 0, ""
}

func historyToTurns(history []dto.HistoryMessage) []models.Turn {
	turns := make([]models.Turn, 0, len(history))
	for _, m := range history {
		sender := models.Sender(m.Sender)
		if sender != models.SenderUser && sender != models.SenderAI {
			continue
		}
		turns = append(turns, models.EphemeralMessage{SenderRole: sender, TextContent: m.Text})
	}
	return turns
}
