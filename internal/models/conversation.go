package models

import (
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Turn is the read-only view of a conversation message used by the RAG
// pipeline. Both stored and request-supplied messages satisfy it.
type Turn interface {
	Sender() Sender
	Text() string
}

// PersistedMessage is a row of the messages table.
type PersistedMessage struct {
	ID             uuid.UUID `db:"id"`
	ConversationID uuid.UUID `db:"conversation_id"`
	SenderRole     Sender    `db:"sender"`
	TextContent    string    `db:"text_content"`
	CreatedAt      time.Time `db:"created_at"`
}

func (m PersistedMessage) Sender() Sender { return m.SenderRole }
func (m PersistedMessage) Text() string   { return m.TextContent }

// EphemeralMessage is a turn that only exists for the current request,
// e.g. history sent by the client when no conversation is stored.
type EphemeralMessage struct {
	SenderRole  Sender
	TextContent string
}

func (m EphemeralMessage) Sender() Sender { return m.SenderRole }
func (m EphemeralMessage) Text() string   { return m.TextContent }
