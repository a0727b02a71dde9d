package filtering

import (
	"context"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/ranking"
)

type rejectedFilter struct {
	toggle
}

// NewRejected creates a filter that removes candidates with net-negative
// feedback for the current requisition. It is disabled unless enabled is set.
func NewRejected(enabled bool) Filter {
	f := &rejectedFilter{}
	if !enabled {
		f.Disable("feedback.exclude-rejected is off")
	}
	return f
}

func (f *rejectedFilter) Name() string { return "rejected_in_context" }

func (f *rejectedFilter) Validate() error { return nil }

func (f *rejectedFilter) Apply(_ context.Context, deps Deps, rc *ranking.Context, in []candidate.Scored) ([]candidate.Scored, Step, error) {
	initial := len(in)
	if rc == nil || rc.Feedback.Empty() {
		return in, Step{Initial: initial, Left: initial}, nil
	}

	out, drops := partition(in, func(c candidate.Scored) string {
		if rc.Feedback.Rejected(c.ID, c.Profile.Name) {
			return "rejected for this requisition"
		}
		return ""
	})

	if len(drops) > 0 {
		deps.logger().Info("excluding candidates rejected for this requisition",
			zap.String("context_id", rc.ContextID),
			zap.Strings("excluded_candidates", dropIDs(drops)),
			zap.Int("candidates_left", len(out)),
		)
	}

	return out, dropStep(initial, out, drops), nil
}

func (f *rejectedFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
