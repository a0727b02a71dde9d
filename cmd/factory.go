package cmd

import (
	"context"
	"fmt"
	stdlog "log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/ai"
	"github.com/spigell/candidate-ranker/internal/ai/gemini"
	"github.com/spigell/candidate-ranker/internal/ai/openai"
	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/logger"
	"github.com/spigell/candidate-ranker/internal/retrieval"
	"github.com/spigell/candidate-ranker/internal/retrieval/local"
	"github.com/spigell/candidate-ranker/internal/retrieval/pinecone"
	"github.com/spigell/candidate-ranker/internal/secrets"
)

// providers bundles the AI collaborators built from one configuration.
type providers struct {
	extractor ai.Extractor
	query     ai.Embedder
	document  ai.Embedder
}

func newProviders(ctx context.Context, cfg *Config, log *zap.Logger) (*providers, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.AI.Provider))

	switch provider {
	case "", "gemini":
		return newGeminiProviders(ctx, cfg, log)
	case "openai":
		return newOpenAIProviders(cfg, log)
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.AI.Provider)
	}
}

func newGeminiProviders(ctx context.Context, cfg *Config, log *zap.Logger) (*providers, error) {
	g := cfg.AI.Gemini
	if g == nil {
		g = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: g.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	gc := gemini.Config{
		APIKey:         apiKey,
		Model:          g.Model,
		EmbeddingModel: g.EmbeddingModel,
		MaxRetries:     g.MaxRetries,
		MaxLogLength:   g.MaxLogLength,
		Dimension:      cfg.Retrieval.Dimension,
	}

	client, err := gemini.NewClient(ctx, gc.APIKey)
	if err != nil {
		return nil, err
	}

	genLogger := log.With(zap.Int("ai_retry_attempts", gc.MaxRetries))
	generator, err := gemini.NewGenerator(client, gc.Model, gc.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	query, err := gemini.NewEmbedder(client, gc.EmbeddingModel, ai.TaskQuery, gc.Dimension, log)
	if err != nil {
		return nil, err
	}
	document, err := gemini.NewEmbedder(client, gc.EmbeddingModel, ai.TaskDocument, gc.Dimension, log)
	if err != nil {
		return nil, err
	}

	return &providers{
		extractor: gemini.NewExtractor(generator, log, gc.MaxLogLength),
		query:     query,
		document:  document,
	}, nil
}

func newOpenAIProviders(cfg *Config, log *zap.Logger) (*providers, error) {
	o := cfg.AI.OpenAI
	if o == nil {
		o = &OpenAIConfig{}
	}

	oc := openai.Config{
		BaseURL:        o.BaseURL,
		Model:          o.Model,
		EmbeddingModel: o.EmbeddingModel,
		MaxLogLength:   o.MaxLogLength,
	}

	// Self-hosted endpoints usually run without a token.
	if o.TokenFile != "" {
		token, err := secrets.Load(secrets.Source{Name: "openai token", File: o.TokenFile})
		if err != nil {
			return nil, err
		}
		oc.Token = token
	}

	extractor, err := openai.NewExtractor(oc, log)
	if err != nil {
		return nil, err
	}
	query, err := openai.NewEmbedder(oc, ai.TaskQuery, log)
	if err != nil {
		return nil, err
	}
	document, err := openai.NewEmbedder(oc, ai.TaskDocument, log)
	if err != nil {
		return nil, err
	}

	return &providers{extractor: extractor, query: query, document: document}, nil
}

func newIndex(cfg *RetrievalConfig, log *zap.Logger) (retrieval.Index, error) {
	switch cfg.Backend {
	case "local":
		path := ""
		if cfg.Local != nil {
			path = cfg.Local.Path
		}
		index, err := local.Open(path, log)
		if err != nil {
			return nil, err
		}
		return index, nil
	case "", "pinecone":
		if cfg.Pinecone == nil || cfg.Pinecone.Host == "" {
			return nil, fmt.Errorf("retrieval.pinecone.host is required (or set PINECONE_HOST)")
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name: "pinecone api key",
			File: cfg.Pinecone.APIKeyFile,
			Env:  "PINECONE_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set retrieval.pinecone.api-key-file or PINECONE_API_KEY_FILE)", err)
		}
		client, err := pinecone.New(cfg.Pinecone.Host, apiKey, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported retrieval backend: %s", cfg.Backend)
	}
}

func newFeedbackStore(cfg *FeedbackConfig, log *zap.Logger) (feedback.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		store, err := feedback.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "", "file":
		store, err := feedback.NewFileStore(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported feedback backend: %s", cfg.Backend)
	}
}

func snapshotOptions(cfg *FeedbackConfig, log *zap.Logger) feedback.SnapshotOptions {
	return feedback.SnapshotOptions{
		HalfLifeDays: cfg.HalfLifeDays,
		GlobalWeight: cfg.GlobalWeight,
		Logger:       log,
	}
}

// setup builds the logger and the validated config every command starts from.
func setup() (*zap.Logger, *Config) {
	log, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		stdlog.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		log.Fatal("getting a config", zap.Error(err))
	}

	return log, config
}
