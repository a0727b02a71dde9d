// Package filtering holds the pipeline stages that narrow or penalize the
// candidate set before final ranking.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/ranking"
)

// Filter represents a single step applied to the candidate set.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate() error
	Apply(ctx context.Context, deps Deps, rc *ranking.Context, in []candidate.Scored) ([]candidate.Scored, Step, error)
}

// Deps aggregates dependencies shared across all steps.
type Deps struct {
	Logger *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Drop is a candidate removed by a step, kept so later stages can rescue it.
type Drop struct {
	Candidate candidate.Scored
	Reason    string
}

// Issue is a per-candidate problem that did not stop the step.
type Issue struct {
	CandidateID string
	Err         error
}

// Step describes the result of executing a step.
type Step struct {
	Initial int
	Dropped int
	Left    int

	Drops   []Drop
	Issues  []Issue
	Entries []string
}

// Report is the outcome of one step inside Run.
type Report struct {
	Name string
	Step Step
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially. It stops early when a step leaves nothing.
func Run(ctx context.Context, deps Deps, rc *ranking.Context, steps []Filter, in []candidate.Scored) ([]candidate.Scored, []Report, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	log := deps.logger()
	reports := make([]Report, 0, len(steps))

	for _, step := range steps {
		if len(in) == 0 {
			break
		}
		if !step.IsEnabled() {
			log.Info("filter disabled", zap.String("name", step.Name()))
			continue
		}
		if err := ctx.Err(); err != nil {
			return in, reports, err
		}

		next, info, err := step.Apply(ctx, deps, rc, in)
		if err != nil {
			return in, reports, fmt.Errorf("%s: %w", step.Name(), err)
		}

		log.Info("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		reports = append(reports, Report{Name: step.Name(), Step: info})
		in = next
	}

	return in, reports, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// toggle is embedded by filters that can be switched off at runtime.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool { return !t.disabled }

// partition keeps candidates for which keep returns an empty reason.
func partition(in []candidate.Scored, keep func(c candidate.Scored) string) ([]candidate.Scored, []Drop) {
	out := make([]candidate.Scored, 0, len(in))
	var drops []Drop
	for _, c := range in {
		if reason := keep(c); reason != "" {
			drops = append(drops, Drop{Candidate: c, Reason: reason})
			continue
		}
		out = append(out, c)
	}
	return out, drops
}

func dropStep(initial int, out []candidate.Scored, drops []Drop) Step {
	return Step{Initial: initial, Dropped: len(drops), Left: len(out), Drops: drops}
}

func dropIDs(drops []Drop) []string {
	ids := make([]string, 0, len(drops))
	for _, d := range drops {
		ids = append(ids, d.Candidate.ID)
	}
	return ids
}
