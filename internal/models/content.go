package models

import (
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentTypePDF     ContentType = "pdf"
	ContentTypeYouTube ContentType = "youtube"
)

type ContentStatus string

const (
	ContentStatusPending    ContentStatus = "pending"
	ContentStatusProcessing ContentStatus = "processing"
	ContentStatusCompleted  ContentStatus = "completed"
	ContentStatusFailed     ContentStatus = "failed"
)

type Language string

const (
	LanguageEnglish Language = "en"
	LanguageTamil   Language = "ta"
)

// ParseLanguage maps free-form input to a supported language, defaulting to English.
func ParseLanguage(s string) Language {
	if Language(s) == LanguageTamil {
		return LanguageTamil
	}
	return LanguageEnglish
}

// Content is a unit of ingestible knowledge. Rows are created by the upload
// flow; only the ingestion service changes Status afterwards.
type Content struct {
	ID               uuid.UUID     `db:"id"`
	Title            string        `db:"title"`
	SourceURL        string        `db:"source_url"`
	SourceType       ContentType   `db:"source_type"`
	Language         Language      `db:"language"`
	Category         string        `db:"category"`
	NeedsTranslation bool          `db:"needs_translation"`
	Status           ContentStatus `db:"status"`
	StatusMessage    string        `db:"status_message"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// ProcessingStatus is the dashboard snapshot of the ingestion pipeline.
type ProcessingStatus struct {
	Total        int  `json:"total"`
	Pending      int  `json:"pending"`
	Processing   int  `json:"processing"`
	Completed    int  `json:"completed"`
	Failed       int  `json:"failed"`
	QueueSize    int  `json:"queue_size"`
	IsProcessing bool `json:"is_processing"`
}
