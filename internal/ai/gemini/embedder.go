package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/candidate-ranker/internal/ai"
	"github.com/spigell/candidate-ranker/internal/logger"
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder produces embeddings through the Gemini embedding endpoint.
type Embedder struct {
	models    contentEmbedder
	model     string
	taskType  string
	dimension int
	logger    *zap.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder embeds with taskType (ai.TaskQuery or ai.TaskDocument).
func NewEmbedder(client *genai.Client, model, taskType string, dimension int, log *zap.Logger) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	return newEmbedder(client.Models, model, taskType, dimension, log), nil
}

func newEmbedder(models contentEmbedder, model, taskType string, dimension int, log *zap.Logger) *Embedder {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultEmbeddingModel
	}
	if taskType == "" {
		taskType = ai.TaskQuery
	}
	return &Embedder{
		models:    models,
		model:     model,
		taskType:  taskType,
		dimension: dimension,
		logger:    logger.WithProvider(log, "gemini", model),
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("text to embed must not be empty")
	}

	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if e.dimension > 0 {
		d := int32(e.dimension)
		cfg.OutputDimensionality = &d
	}

	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini api returned no embedding")
	}

	values := resp.Embeddings[0].Values
	e.logger.Debug("embedded text", zap.Int("dimension", len(values)), zap.String("task", e.taskType))
	return values, nil
}
