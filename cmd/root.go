package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/candidate-ranker/internal/strategy"
)

const (
	app = "candidate-ranker"
)

type Config struct {
	Retrieval *RetrievalConfig `mapstructure:"retrieval" validate:"required"`
	AI        *AIConfig        `mapstructure:"ai" validate:"required"`
	Feedback  *FeedbackConfig  `mapstructure:"feedback" validate:"required"`
	Ranking   *RankingConfig   `mapstructure:"ranking" validate:"required"`
	Strategy  *StrategyConfig  `mapstructure:"strategy"`
}

type RetrievalConfig struct {
	Backend   string         `mapstructure:"backend" validate:"oneof=pinecone local"`
	Timeout   time.Duration  `mapstructure:"timeout" validate:"gt=0"`
	Namespace string         `mapstructure:"namespace"`
	Dimension int            `mapstructure:"dimension" validate:"gte=0"`
	Filter    map[string]any `mapstructure:"filter"`
	Pinecone  *struct {
		Host       string `mapstructure:"host"`
		APIKeyFile string `mapstructure:"api-key-file"`
	} `mapstructure:"pinecone"`
	Local *struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"local"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider" validate:"oneof=gemini openai"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries" validate:"gte=0"`
	MaxLogLength   int    `mapstructure:"max-log-length" validate:"gte=0"`
}

type OpenAIConfig struct {
	BaseURL        string `mapstructure:"base-url"`
	TokenFile      string `mapstructure:"token-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxLogLength   int    `mapstructure:"max-log-length" validate:"gte=0"`
}

type FeedbackConfig struct {
	Backend         string  `mapstructure:"backend" validate:"oneof=file sqlite"`
	Path            string  `mapstructure:"path" validate:"required"`
	HalfLifeDays    float64 `mapstructure:"half-life-days" validate:"gte=0"`
	PointsPerWeight float64 `mapstructure:"points-per-weight"`
	GlobalWeight    float64 `mapstructure:"global-weight" validate:"gte=0"`
	ExcludeRejected bool    `mapstructure:"exclude-rejected"`
}

type RankingConfig struct {
	Mode             string  `mapstructure:"mode" validate:"oneof=hybrid matrix"`
	MinKeep          int     `mapstructure:"min-keep" validate:"gte=0"`
	ExplainThreshold float64 `mapstructure:"explain-threshold" validate:"gte=0,lte=100"`
	ScoreWorkers     int     `mapstructure:"score-workers" validate:"gt=0"`
	ExplainWorkers   int     `mapstructure:"explain-workers" validate:"gt=0"`
	LexiconFile      string  `mapstructure:"lexicon-file"`
	ExcludeFile      string  `mapstructure:"exclude-file"`
}

// StrategyConfig overrides the precision and recall presets field by field.
type StrategyConfig struct {
	Precision *strategy.Config `mapstructure:"precision"`
	Recall    *strategy.Config `mapstructure:"recall"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "candidate-ranker retrieves, filters and ranks candidate profiles against a job requisition",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	envs := map[string]string{
		"ai.gemini.api-key-file":          "GEMINI_API_KEY_FILE",
		"ai.openai.token-file":            "OPENAI_TOKEN_FILE",
		"retrieval.pinecone.api-key-file": "PINECONE_API_KEY_FILE",
		"retrieval.pinecone.host":         "PINECONE_HOST",
	}
	for key, env := range envs {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	setDefaults()
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is candidate-ranker.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	viper.SetDefault("retrieval.backend", "pinecone")
	viper.SetDefault("retrieval.timeout", 10*time.Second)
	viper.SetDefault("retrieval.local.path", "")

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)

	viper.SetDefault("feedback.backend", "file")
	viper.SetDefault("feedback.path", "feedback.jsonl")
	viper.SetDefault("feedback.half-life-days", 90)
	viper.SetDefault("feedback.points-per-weight", 10)
	viper.SetDefault("feedback.global-weight", 1)
	viper.SetDefault("feedback.exclude-rejected", false)

	viper.SetDefault("ranking.mode", "hybrid")
	viper.SetDefault("ranking.min-keep", 50)
	viper.SetDefault("ranking.explain-threshold", 40)
	viper.SetDefault("ranking.score-workers", 8)
	viper.SetDefault("ranking.explain-workers", 4)
}

func initConfig() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	if versionCmd.CalledAs() != "" {
		return
	}

	viper.SetEnvPrefix("RANKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// Defaults are enough when no config file exists, but a broken one is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return config, nil
}
