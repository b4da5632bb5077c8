package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"ks-ai/internal/models"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// pdfDocument is the part of a go-fitz document the extractor reads.
type pdfDocument interface {
	NumPage() int
	Text(pageNumber int) (string, error)
	Metadata() map[string]string
	Close() error
}

func openFitz(path string) (pdfDocument, error) {
	return fitz.New(path)
}

var pdfInfoKeys = map[string]string{
	"title":        "title",
	"author":       "author",
	"subject":      "subject",
	"creator":      "creator",
	"producer":     "producer",
	"creationDate": "creation_date",
	"modDate":      "modification_date",
}

type PDFExtractor struct {
	uploadDir string
	open      func(path string) (pdfDocument, error)
	logger    *zap.Logger
}

// NewPDFExtractor resolves relative source paths under uploadDir.
func NewPDFExtractor(uploadDir string, logger *zap.Logger) *PDFExtractor {
	return &PDFExtractor{
		uploadDir: uploadDir,
		open:      openFitz,
		logger:    logger,
	}
}

func (e *PDFExtractor) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.uploadDir, path)
}

func (e *PDFExtractor) Extract(ctx context.Context, sourceRef string) (string, models.Payload, error) {
	path := e.resolve(sourceRef)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		return "", nil, fmt.Errorf("%w: unsupported file format %q", models.ErrExtraction, ext)
	}

	doc, err := e.open(path)
	if err != nil {
		return "", nil, fmt.Errorf("%w: failed to open PDF: %v", models.ErrExtraction, err)
	}
	defer doc.Close()

	meta := models.Payload{
		"page_count": doc.NumPage(),
		"file_name":  filepath.Base(path),
	}
	for fitzKey, key := range pdfInfoKeys {
		if v := strings.TrimSpace(doc.Metadata()[fitzKey]); v != "" {
			meta[key] = v
		}
	}

	var textBuilder strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
		}

		pageText, err := doc.Text(i)
		if err != nil {
			e.logger.Warn("Failed to extract text from page",
				zap.Int("page", i+1),
				zap.String("file", path),
				zap.Error(err),
			)
			continue
		}
		if strings.TrimSpace(pageText) == "" {
			continue
		}

		fmt.Fprintf(&textBuilder, "\n--- Page %d ---\n", i+1)
		textBuilder.WriteString(pageText)
		textBuilder.WriteString("\n")
	}

	text := strings.TrimSpace(textBuilder.String())
	if text == "" {
		return "", nil, fmt.Errorf("%w: no readable text found in PDF", models.ErrExtraction)
	}

	e.logger.Info("PDF text extracted using go-fitz",
		zap.String("file", path),
		zap.Int("pages", doc.NumPage()),
		zap.Int("text_length", len(text)),
	)

	return text, meta, nil
}
