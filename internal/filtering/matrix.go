package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/matrix"
	"github.com/spigell/candidate-ranker/internal/ranking"
)

type matrixFilter struct {
	toggle
	workers int
}

// NewMatrix creates the competency matrix stage. It scores every candidate
// against the run's matrix and cuts below the confidence-adjusted threshold.
func NewMatrix(workers int) Filter {
	if workers <= 0 {
		workers = DefaultSoftConfig().Workers
	}
	return &matrixFilter{workers: workers}
}

func (f *matrixFilter) Name() string { return "matrix" }

func (f *matrixFilter) Validate() error { return nil }

func (f *matrixFilter) Apply(ctx context.Context, deps Deps, rc *ranking.Context, in []candidate.Scored) ([]candidate.Scored, Step, error) {
	initial := len(in)
	if rc == nil {
		return in, Step{Initial: initial, Left: initial}, nil
	}

	m := rc.Matrix
	log := deps.logger()

	if len(m.Competencies) == 0 {
		entry := fmt.Sprintf("matrix %s has no competencies; nothing to cut", m.Name)
		log.Info(entry)
		return in, Step{Initial: initial, Left: initial, Entries: []string{entry}}, nil
	}

	threshold := matrix.AdjustThreshold(m.BaseThreshold, rc.ConfidencePercent)

	scored := make([]candidate.Scored, len(in))
	errs := make([]error, len(in))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, c := range in {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			eval, err := m.Evaluate(c.Profile)
			errs[i] = err
			scored[i] = c.WithMatrix(eval.Score, eval.Matched)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return in, Step{}, err
	}

	step := Step{
		Initial: initial,
		Entries: []string{fmt.Sprintf("matrix %s threshold %d (base %d, confidence %d)", m.Name, threshold, m.BaseThreshold, rc.ConfidencePercent)},
	}

	out := make([]candidate.Scored, 0, len(scored))
	for i, c := range scored {
		if errs[i] != nil {
			step.Issues = append(step.Issues, Issue{CandidateID: c.ID, Err: errs[i]})
			log.Warn("matrix evaluation failed",
				zap.String("candidate_id", c.ID),
				zap.Error(errs[i]),
			)
		}
		if c.MatrixScore < threshold {
			step.Drops = append(step.Drops, Drop{
				Candidate: c,
				Reason:    fmt.Sprintf("Score %d < %d", c.MatrixScore, threshold),
			})
			continue
		}
		step.Entries = append(step.Entries, fmt.Sprintf("MATRIX: %s %d %v", c.ID, c.MatrixScore, c.MatrixReasons))
		out = append(out, c)
	}

	step.Dropped = len(step.Drops)
	step.Left = len(out)

	log.Info("matrix cut",
		zap.String("matrix", m.Name),
		zap.Int("threshold", threshold),
		zap.Int("passed", len(out)),
		zap.Int("below", step.Dropped),
	)

	return out, step, nil
}

func (f *matrixFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"workers": fmt.Sprint(f.workers)},
	}
}
