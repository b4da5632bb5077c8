package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ks-ai/internal/models"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
}

// transcriptLanguages is the caption preference order.
var transcriptLanguages = []string{"en", "ta"}

// ExtractVideoID returns the 11-character video id of a YouTube URL, or ""
// when none is found. Spaces are stripped before matching.
func ExtractVideoID(url string) string {
	url = strings.ReplaceAll(url, " ", "")
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

// FormatTranscript renders segments as "[MM:SS] text" lines. Empty segments
// are skipped.
func FormatTranscript(segments youtube.VideoTranscript) string {
	var b strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(strings.ReplaceAll(seg.Text, "\n", " "))
		if text == "" {
			continue
		}
		start := seg.StartMs / 1000
		fmt.Fprintf(&b, "[%02d:%02d] %s\n", start/60, start%60, text)
	}
	return strings.TrimSpace(b.String())
}

// videoClient is the part of the YouTube client used for extraction.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetTranscriptCtx(ctx context.Context, video *youtube.Video, lang string) (youtube.VideoTranscript, error)
}

type YouTubeExtractor struct {
	client videoClient
	logger *zap.Logger
}

func NewYouTubeExtractor(logger *zap.Logger) *YouTubeExtractor {
	return &YouTubeExtractor{
		client: &youtube.Client{},
		logger: logger,
	}
}

func (e *YouTubeExtractor) Extract(ctx context.Context, sourceRef string) (string, models.Payload, error) {
	url := strings.ReplaceAll(sourceRef, " ", "")
	videoID := ExtractVideoID(url)
	if videoID == "" {
		return "", nil, fmt.Errorf("%w: could not extract video ID from URL %q", models.ErrExtraction, url)
	}

	video, err := e.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", nil, fmt.Errorf("%w: video %s unavailable: %v", models.ErrExtraction, videoID, err)
	}

	var transcript youtube.VideoTranscript
	var lastErr error
	for _, lang := range transcriptLanguages {
		transcript, err = e.client.GetTranscriptCtx(ctx, video, lang)
		if err == nil && len(transcript) > 0 {
			break
		}
		if errors.Is(err, youtube.ErrTranscriptDisabled) {
			return "", nil, fmt.Errorf("%w: captions are disabled for video %s", models.ErrExtraction, videoID)
		}
		lastErr = err
		e.logger.Debug("Transcript not available in language",
			zap.String("video_id", videoID),
			zap.String("lang", lang),
			zap.Error(err),
		)
	}

	text := FormatTranscript(transcript)
	if text == "" {
		if lastErr == nil {
			lastErr = errors.New("empty transcript")
		}
		return "", nil, fmt.Errorf("%w: no transcript for video %s: %v", models.ErrExtraction, videoID, lastErr)
	}

	meta := models.Payload{
		"video_id":         videoID,
		"title":            video.Title,
		"author":           video.Author,
		"duration_seconds": int(video.Duration.Seconds()),
		"video_url":        url,
	}

	e.logger.Info("Extracted YouTube transcript",
		zap.String("video_id", videoID),
		zap.Int("segments", len(transcript)),
		zap.Int("text_length", len(text)),
	)

	return text, meta, nil
}
