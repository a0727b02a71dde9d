package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/ai"
	"github.com/spigell/candidate-ranker/internal/logger"
	"github.com/spigell/candidate-ranker/internal/requirements"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

const defaultMaxLogLength = 200

// Extractor asks Gemini for a requirement set and validates the answer against its schema.
type Extractor struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

var _ ai.Extractor = (*Extractor)(nil)

func NewExtractor(generator contentGenerator, log *zap.Logger, maxLogLength int) *Extractor {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Extractor{
		generator: generator,
		logger:    logger.WithFields(log),
		maxLogLen: maxLogLength,
	}
}

func (e *Extractor) Extract(ctx context.Context, text string) (*requirements.Set, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("requisition text is empty")
	}

	message := ai.ExtractionMessage(text)

	e.logger.Debug("gemini extraction request",
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", logger.TruncateForLog(message, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, ai.ExtractionPrompt, message)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("gemini extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, e.maxLogLen)),
	)

	set, err := requirements.ParseJSON([]byte(ai.ExtractJSON(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	return set, nil
}
