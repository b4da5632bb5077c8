package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ks-ai/internal/models"
	"ks-ai/pkg/config"

	"github.com/Role1776/gigago"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Answers must stay close to the retrieved context.
const (
	generationTemperature = 0.1
	generationMaxTokens   = 1000
)

// Generator produces an answer from a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
	Model() string
	IsAvailable() bool
}

// NewGenerator picks the backend configured by LLM_PROVIDER. A provider
// without credentials yields an unavailable generator rather than an error.
func NewGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Generator, error) {
	switch cfg.LLM.Provider {
	case config.ProviderGigaChat:
		g, err := NewGigaChatGenerator(ctx, &cfg.GigaChat, cfg.Timeouts.Generation, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return NewOpenAIGenerator(&cfg.OpenAI, cfg.Timeouts.Generation, logger), nil
	}
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type OpenAIGenerator struct {
	client  chatClient
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewOpenAIGenerator(cfg *config.OpenAIConfig, timeout time.Duration, logger *zap.Logger) *OpenAIGenerator {
	g := &OpenAIGenerator{
		model:   cfg.ChatModel,
		timeout: timeout,
		logger:  logger,
	}
	if cfg.APIKey == "" {
		logger.Warn("OpenAI API key not provided - generation disabled")
		return g
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	g.client = openai.NewClientWithConfig(clientConfig)
	logger.Info("Using OpenAI chat model", zap.String("model", cfg.ChatModel))
	return g
}

func (g *OpenAIGenerator) Model() string { return g.model }

func (g *OpenAIGenerator) IsAvailable() bool { return g.client != nil }

func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: OpenAI client not configured", models.ErrGeneration)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: generationTemperature,
		MaxTokens:   generationMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from LLM", models.ErrGeneration)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type GigaChatGenerator struct {
	client  *gigago.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewGigaChatGenerator(ctx context.Context, cfg *config.GigaChatConfig, timeout time.Duration, logger *zap.Logger) (*GigaChatGenerator, error) {
	g := &GigaChatGenerator{
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
	}
	if cfg.APIKey == "" {
		logger.Warn("GigaChat API key not provided - generation disabled")
		return g, nil
	}

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}

	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}
	g.client = client

	logger.Info("Using GigaChat model", zap.String("model", cfg.Model))
	return g, nil
}

func (g *GigaChatGenerator) Model() string { return g.model }

func (g *GigaChatGenerator) IsAvailable() bool { return g.client != nil }

func (g *GigaChatGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: GigaChat client not configured", models.ErrGeneration)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	// A model per call keeps concurrent requests from sharing instructions.
	model := g.client.GenerativeModel(g.model)
	model.SystemInstruction = system
	model.Temperature = generationTemperature

	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := model.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrGeneration, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no response from LLM", models.ErrGeneration)
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (g *GigaChatGenerator) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}
