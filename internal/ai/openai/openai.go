// Package openai adapts OpenAI-compatible endpoints through langchaingo.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/ai"
	"github.com/spigell/candidate-ranker/internal/logger"
	"github.com/spigell/candidate-ranker/internal/requirements"
)

const (
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultModel          = "gpt-4o-mini"
	defaultMaxLogLength   = 200
	// Malformed JSON answers are retried this many times in total.
	parseAttempts = 3
)

// Config describes an OpenAI-compatible endpoint.
type Config struct {
	BaseURL        string
	Token          string
	Model          string
	EmbeddingModel string
	MaxLogLength   int
}

func (c Config) options(model string) []openai.Option {
	opts := []openai.Option{openai.WithModel(model)}
	if c.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(c.BaseURL))
	}
	token := c.Token
	if token == "" {
		// Local OpenAI-compatible services accept any token.
		token = "none"
	}
	return append(opts, openai.WithToken(token))
}

// Embedder implements ai.Embedder on langchaingo embeddings.
type Embedder struct {
	embedder embeddings.Embedder
	taskType string
	logger   *zap.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder embeds queries or documents depending on taskType.
func NewEmbedder(cfg Config, taskType string, log *zap.Logger) (*Embedder, error) {
	model := strings.TrimSpace(cfg.EmbeddingModel)
	if model == "" {
		model = defaultEmbeddingModel
	}

	client, err := openai.New(append(cfg.options(defaultModel), openai.WithEmbeddingModel(model))...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return newEmbedder(embedder, taskType, logger.WithProvider(log, "openai", model)), nil
}

func newEmbedder(embedder embeddings.Embedder, taskType string, log *zap.Logger) *Embedder {
	if taskType == "" {
		taskType = ai.TaskQuery
	}
	return &Embedder{embedder: embedder, taskType: taskType, logger: logger.WithFields(log)}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text to embed must not be empty")
	}

	var vector []float32
	if e.taskType == ai.TaskDocument {
		vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed document: %w", err)
		}
		if len(vectors) > 0 {
			vector = vectors[0]
		}
	} else {
		v, err := e.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		vector = v
	}

	if len(vector) == 0 {
		return nil, errors.New("embedder returned empty result")
	}

	e.logger.Debug("embedded text", zap.Int("dimension", len(vector)), zap.String("task", e.taskType))
	return vector, nil
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Extractor implements ai.Extractor with a JSON-mode chat completion.
type Extractor struct {
	client    contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Extractor = (*Extractor)(nil)

func NewExtractor(cfg Config, log *zap.Logger) (*Extractor, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	client, err := openai.New(cfg.options(model)...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	return newExtractor(client, logger.WithProvider(log, "openai", model), cfg.MaxLogLength), nil
}

func newExtractor(client contentGenerator, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Extractor{client: client, logger: logger.WithFields(log), maxLogLen: maxLogLength}
}

func (e *Extractor) Extract(ctx context.Context, text string) (*requirements.Set, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("requisition text is empty")
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ai.ExtractionPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, ai.ExtractionMessage(text)),
	}

	var lastErr error
	for attempt := 1; attempt <= parseAttempts; attempt++ {
		resp, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0), llms.WithJSONMode())
		if err != nil {
			return nil, fmt.Errorf("generate content: %w", err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return nil, errors.New("openai api returned no choices")
		}

		raw := resp.Choices[0].Content
		e.logger.Debug("openai extraction response",
			zap.Int("attempt", attempt),
			zap.Int("response_length", utf8.RuneCountInString(raw)),
			zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
		)

		set, err := requirements.ParseJSON([]byte(ai.ExtractJSON(raw)))
		if err == nil {
			return set, nil
		}

		lastErr = err
		e.logger.Warn("error parsing extraction response", zap.Int("attempt", attempt), zap.Error(err))
	}

	return nil, fmt.Errorf("parse openai response: %w", lastErr)
}
