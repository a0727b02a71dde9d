// Package strategy maps requirement confidence onto retrieval breadth and scoring strictness.
package strategy

// Mode is either precision or recall.
type Mode string

const (
	Precision Mode = "precision"
	Recall    Mode = "recall"
)

// PrecisionThreshold is the lowest confidence that selects precision mode.
const PrecisionThreshold = 0.7

// MatchWeights distributes the composite score between signal families.
type MatchWeights struct {
	Vector float64 `mapstructure:"vector" json:"vector"`
	Skills float64 `mapstructure:"skills" json:"skills"`
	Domain float64 `mapstructure:"domain" json:"domain"`
}

// Config is the retrieval and scoring configuration for one run.
type Config struct {
	Mode         Mode         `mapstructure:"-" json:"mode"`
	TopK         int          `mapstructure:"top-k" json:"top_k"`
	RerankTopN   int          `mapstructure:"rerank-top-n" json:"rerank_top_n"`
	ScoreCutoff  float64      `mapstructure:"score-cutoff" json:"score_cutoff"`
	MatchWeights MatchWeights `mapstructure:"match-weights" json:"match_weights"`
}

// Selector holds the two presets. The zero value is not usable; use NewSelector.
type Selector struct {
	precision Config
	recall    Config
}

// DefaultPrecision favors structured signals and cuts harder.
func DefaultPrecision() Config {
	return Config{
		Mode:         Precision,
		TopK:         150,
		RerankTopN:   50,
		ScoreCutoff:  60,
		MatchWeights: MatchWeights{Vector: 0.40, Skills: 0.35, Domain: 0.25},
	}
}

// DefaultRecall retrieves wider and leans on vector similarity.
func DefaultRecall() Config {
	return Config{
		Mode:         Recall,
		TopK:         300,
		RerankTopN:   100,
		ScoreCutoff:  30,
		MatchWeights: MatchWeights{Vector: 0.70, Skills: 0.15, Domain: 0.15},
	}
}

// NewSelector fills unset fields of the overrides from the defaults.
func NewSelector(precision, recall *Config) *Selector {
	return &Selector{
		precision: merge(DefaultPrecision(), precision),
		recall:    merge(DefaultRecall(), recall),
	}
}

// Select is a pure function of confidence (0–1). The boundary is inclusive on the precision side.
func (s *Selector) Select(confidence float64) Config {
	if confidence >= PrecisionThreshold {
		return s.precision
	}
	return s.recall
}

// Select uses the default presets.
func Select(confidence float64) Config {
	if confidence >= PrecisionThreshold {
		return DefaultPrecision()
	}
	return DefaultRecall()
}

func merge(def Config, override *Config) Config {
	if override == nil {
		return def
	}
	out := def
	if override.TopK > 0 {
		out.TopK = override.TopK
	}
	if override.RerankTopN > 0 {
		out.RerankTopN = override.RerankTopN
	}
	if override.ScoreCutoff > 0 {
		out.ScoreCutoff = override.ScoreCutoff
	}
	if w := override.MatchWeights; w.Vector+w.Skills+w.Domain > 0 {
		out.MatchWeights = w
	}
	return out
}
