package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/ranking"
)

type disqualifyFilter struct {
	toggle
}

// NewDisqualify creates the hard filter that removes candidates whose metadata
// mentions one of the explicit disqualifiers.
func NewDisqualify() Filter {
	return &disqualifyFilter{}
}

func (f *disqualifyFilter) Name() string { return "disqualify" }

func (f *disqualifyFilter) Validate() error { return nil }

func (f *disqualifyFilter) Apply(_ context.Context, deps Deps, rc *ranking.Context, in []candidate.Scored) ([]candidate.Scored, Step, error) {
	initial := len(in)

	var terms []string
	if rc != nil {
		for _, d := range rc.Requirements.ExplicitDisqualifiers {
			if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
				terms = append(terms, d)
			}
		}
	}
	if len(terms) == 0 {
		return in, Step{Initial: initial, Left: initial}, nil
	}

	out, drops := partition(in, func(c candidate.Scored) string {
		for _, term := range terms {
			if strings.Contains(c.Text, term) {
				return "disqualified: " + term
			}
		}
		return ""
	})

	if len(drops) > 0 {
		deps.logger().Info("excluding candidates by explicit disqualifiers",
			zap.Strings("disqualifiers", terms),
			zap.Strings("excluded_candidates", dropIDs(drops)),
			zap.Int("candidates_left", len(out)),
		)
	}

	return out, dropStep(initial, out, drops), nil
}

func (f *disqualifyFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
