package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ks-ai/internal/models"

	"go.uber.org/zap"
)

// TextExtractor produces plain text and metadata for a content source.
type TextExtractor interface {
	Extract(ctx context.Context, sourceRef string, sourceType models.ContentType) (string, models.Payload, error)
}

// SourceExtractor handles a single source type.
type SourceExtractor interface {
	Extract(ctx context.Context, sourceRef string) (string, models.Payload, error)
}

// ExtractorService dispatches on source type and bounds every extraction
// with a timeout.
type ExtractorService struct {
	extractors map[models.ContentType]SourceExtractor
	timeout    time.Duration
	logger     *zap.Logger
}

func NewExtractorService(pdf, youtube SourceExtractor, timeout time.Duration, logger *zap.Logger) *ExtractorService {
	return &ExtractorService{
		extractors: map[models.ContentType]SourceExtractor{
			models.ContentTypePDF:     pdf,
			models.ContentTypeYouTube: youtube,
		},
		timeout: timeout,
		logger:  logger,
	}
}

func (s *ExtractorService) Extract(ctx context.Context, sourceRef string, sourceType models.ContentType) (string, models.Payload, error) {
	extractor, ok := s.extractors[sourceType]
	if !ok || extractor == nil {
		return "", nil, fmt.Errorf("%w: unsupported content type %q", models.ErrExtraction, sourceType)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, meta, err := extractor.Extract(ctx, sourceRef)
	if err != nil {
		s.logger.Warn("Extraction failed",
			zap.String("source", sourceRef),
			zap.String("type", string(sourceType)),
			zap.Error(err),
		)
		return "", nil, err
	}

	text = strings.TrimSpace(cleanText(text))
	if meta == nil {
		meta = models.Payload{}
	}

	s.logger.Info("Extraction completed",
		zap.String("source", sourceRef),
		zap.String("type", string(sourceType)),
		zap.Int("text_length", len(text)),
		zap.Duration("duration", time.Since(start)),
	)

	return text, meta, nil
}
