package models

import "errors"

var (
	ErrExtraction           = errors.New("extraction failed")
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")
	ErrValidation           = errors.New("validation failed")
	ErrVectorStore          = errors.New("vector store error")
	ErrGeneration           = errors.New("generation failed")
	ErrEmptyContent         = errors.New("no text extracted from content")
	ErrContentNotFound      = errors.New("content not found")
	ErrQueueFull            = errors.New("ingestion queue is full")
)
