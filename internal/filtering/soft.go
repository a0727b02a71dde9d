package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/lexicon"
	"github.com/spigell/candidate-ranker/internal/ranking"
)

// SoftConfig holds the penalty points of the soft filter.
type SoftConfig struct {
	YearsBelowPoints     int `mapstructure:"years-below"`
	YearsAbovePoints     int `mapstructure:"years-above"`
	RoleMismatchPoints   int `mapstructure:"role-mismatch"`
	NegativeSignalPoints int `mapstructure:"negative-signal"`
	Workers              int `mapstructure:"-"`
}

func DefaultSoftConfig() SoftConfig {
	return SoftConfig{
		YearsBelowPoints:     10,
		YearsAbovePoints:     5,
		RoleMismatchPoints:   5,
		NegativeSignalPoints: 15,
		Workers:              8,
	}
}

type softFilter struct {
	toggle
	cfg SoftConfig
}

// NewSoft creates the soft filter. It only adds penalties and never drops a candidate.
func NewSoft(cfg SoftConfig) Filter {
	def := DefaultSoftConfig()
	if cfg.YearsBelowPoints <= 0 {
		cfg.YearsBelowPoints = def.YearsBelowPoints
	}
	if cfg.YearsAbovePoints <= 0 {
		cfg.YearsAbovePoints = def.YearsAbovePoints
	}
	if cfg.RoleMismatchPoints <= 0 {
		cfg.RoleMismatchPoints = def.RoleMismatchPoints
	}
	if cfg.NegativeSignalPoints <= 0 {
		cfg.NegativeSignalPoints = def.NegativeSignalPoints
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &softFilter{cfg: cfg}
}

func (f *softFilter) Name() string { return "soft" }

func (f *softFilter) Validate() error { return nil }

func (f *softFilter) Apply(ctx context.Context, deps Deps, rc *ranking.Context, in []candidate.Scored) ([]candidate.Scored, Step, error) {
	initial := len(in)
	if rc == nil {
		return in, Step{Initial: initial, Left: initial}, nil
	}

	lex := rc.Lexicon
	if lex == nil {
		lex = lexicon.Default()
	}
	log := deps.logger()

	out := make([]candidate.Scored, len(in))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)

	for i, c := range in {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = f.penalize(rc, lex, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return in, Step{}, err
	}

	step := Step{Initial: initial, Left: len(out)}
	penalized := 0
	for _, c := range out {
		if c.ProfileErr != nil {
			step.Issues = append(step.Issues, Issue{CandidateID: c.ID, Err: c.ProfileErr})
			log.Warn("soft filter skipped malformed profile",
				zap.String("candidate_id", c.ID),
				zap.Error(c.ProfileErr),
			)
			continue
		}
		if c.FilterPenalty == 0 {
			continue
		}
		penalized++
		entry := fmt.Sprintf("PENALTY: %s -%d %v", c.ID, c.FilterPenalty, c.PenaltyReasons)
		step.Entries = append(step.Entries, entry)
		log.Debug("soft filter penalty",
			zap.String("candidate_id", c.ID),
			zap.Int("penalty", c.FilterPenalty),
			zap.Strings("reasons", c.PenaltyReasons),
		)
	}

	log.Info("Soft Filter: penalized candidates",
		zap.Int("penalized", penalized),
		zap.Int("candidates", len(out)),
	)

	return out, step, nil
}

func (f *softFilter) penalize(rc *ranking.Context, lex *lexicon.Lexicon, c candidate.Scored) candidate.Scored {
	if c.ProfileErr != nil {
		return c
	}

	req := rc.Requirements
	p := c.Profile

	if _, known := c.Metadata["total_years"]; known {
		if yr := req.YearsRange.Min; yr != nil && p.TotalYears < *yr-1 {
			c = c.WithPenalty(f.cfg.YearsBelowPoints, fmt.Sprintf("Years < %d", *yr))
		}
		if yr := req.YearsRange.Max; yr != nil && p.TotalYears > *yr+2 {
			c = c.WithPenalty(f.cfg.YearsAbovePoints, fmt.Sprintf("Years > %d", *yr))
		}
	}

	target := firstNonEmpty(req.RoleFamily, req.CanonicalRole)
	role := firstNonEmpty(p.RoleCluster, p.Title)
	if target != "" && role != "" && !lex.RolesCompatible(target, role) {
		c = c.WithPenalty(f.cfg.RoleMismatchPoints, fmt.Sprintf("Role Mismatch (%s)", role))
	}

	if title := firstNonEmpty(p.Title, p.RoleCluster); title != "" {
		if _, hit := lex.Disqualified(req.ExplicitDisqualifiers, title); hit {
			c = c.WithPenalty(f.cfg.NegativeSignalPoints, "Negative Signal")
		}
	}

	return c
}

func (f *softFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"workers": fmt.Sprint(f.cfg.Workers)},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
