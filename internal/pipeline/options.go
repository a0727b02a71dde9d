package pipeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/explain"
	"github.com/spigell/candidate-ranker/internal/filtering"
	"github.com/spigell/candidate-ranker/internal/scoring"
)

// Mode selects the SCORE stage implementation.
type Mode string

const (
	ModeHybrid Mode = "hybrid"
	ModeMatrix Mode = "matrix"
)

// ParseMode accepts an empty string as hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeMatrix:
		return ModeMatrix, nil
	default:
		return "", fmt.Errorf("unknown ranking mode %q", s)
	}
}

const (
	DefaultMinKeep          = 50
	DefaultExplainThreshold = 40
	DefaultScoreWorkers     = 8
	DefaultExplainWorkers   = 4
	DefaultPointsPerWeight  = 10
	DefaultRetrievalTimeout = 10 * time.Second
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

func WithMode(mode Mode) Option {
	return func(p *Pipeline) error {
		if mode != ModeHybrid && mode != ModeMatrix {
			return fmt.Errorf("unknown ranking mode %q", mode)
		}
		p.mode = mode
		return nil
	}
}

// WithMinKeep sets how many top candidates SCORE always retains.
func WithMinKeep(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			return fmt.Errorf("min-keep must not be negative, got %d", n)
		}
		p.minKeep = n
		return nil
	}
}

func WithExplainThreshold(score float64) Option {
	return func(p *Pipeline) error {
		p.explainThreshold = score
		return nil
	}
}

func WithScoreWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("score workers must be positive, got %d", n)
		}
		p.scoreWorkers = n
		return nil
	}
}

func WithExplainWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("explain workers must be positive, got %d", n)
		}
		p.explainWorkers = n
		return nil
	}
}

func WithPointsPerWeight(points float64) Option {
	return func(p *Pipeline) error {
		p.pointsPerWeight = points
		return nil
	}
}

// WithRetrieval sets the retrieval deadline, the preferred namespace and the index dimension.
func WithRetrieval(timeout time.Duration, namespace string, dimension int) Option {
	return func(p *Pipeline) error {
		if timeout > 0 {
			p.timeout = timeout
		}
		p.namespace = namespace
		p.dimension = dimension
		return nil
	}
}

// WithMetadataFilter is passed through to every retrieval query.
func WithMetadataFilter(filter map[string]any) Option {
	return func(p *Pipeline) error {
		p.filter = filter
		return nil
	}
}

// WithFilters replaces the steps run between RETRIEVE and SCORE.
func WithFilters(filters ...filtering.Filter) Option {
	return func(p *Pipeline) error {
		p.filters = filters
		return nil
	}
}

func WithExplainer(e explain.Explainer) Option {
	return func(p *Pipeline) error {
		p.explainer = e
		return nil
	}
}

func WithScorer(s *scoring.Scorer) Option {
	return func(p *Pipeline) error {
		if s == nil {
			return fmt.Errorf("scorer must not be nil")
		}
		p.scorer = s
		return nil
	}
}
