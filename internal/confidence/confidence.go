// Package confidence estimates how well specified a requirement set is.
package confidence

import (
	"fmt"
	"strings"

	"github.com/spigell/candidate-ranker/internal/requirements"
)

const (
	penaltyFewSkills     = 0.25
	penaltyNoTitle       = 0.20
	penaltyGenericTitle  = 0.15
	penaltyNoDomain      = 0.15
	penaltyNoSeniority   = 0.15
	minimumExplicitSkill = 2
)

// Input carries the four clarity signals.
type Input struct {
	ExplicitSkills  []string
	TitleCandidates []string
	DomainClues     []string
	SeniorityClues  []string
}

// Result is the score with the penalties that produced it.
type Result struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// Percent is the score on the 0–100 scale.
func (r Result) Percent() int {
	return int(r.Score*100 + 0.5)
}

// GenericChecker reports whether a title is a bare generic term.
type GenericChecker interface {
	IsGenericTitle(title string) bool
}

// Estimator subtracts independent penalties from 1.0 for each missing clarity signal.
type Estimator struct {
	generic GenericChecker
}

func NewEstimator(generic GenericChecker) *Estimator {
	return &Estimator{generic: generic}
}

func (e *Estimator) Estimate(in Input) Result {
	score := 1.0
	var reasons []string

	penalize := func(p float64, why string) {
		score -= p
		reasons = append(reasons, fmt.Sprintf("%s (-%.2f)", why, p))
	}

	if countNonEmpty(in.ExplicitSkills) < minimumExplicitSkill {
		penalize(penaltyFewSkills, "Lack of explicit skills")
	}

	titles := nonEmpty(in.TitleCandidates)
	switch {
	case len(titles) == 0:
		penalize(penaltyNoTitle, "No title candidates")
	case e.anyGeneric(titles):
		penalize(penaltyGenericTitle, "Generic title")
	}

	if countNonEmpty(in.DomainClues) == 0 {
		penalize(penaltyNoDomain, "No domain clues")
	}

	if countNonEmpty(in.SeniorityClues) == 0 {
		penalize(penaltyNoSeniority, "No seniority clues")
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Result{Score: score, Reasons: reasons}
}

func (e *Estimator) anyGeneric(titles []string) bool {
	if e.generic == nil {
		return false
	}
	for _, t := range titles {
		if e.generic.IsGenericTitle(t) {
			return true
		}
	}
	return false
}

// FromRequirements maps a requirement set onto the four clarity signals.
func FromRequirements(set requirements.Set) Input {
	in := Input{
		ExplicitSkills: set.CoreSignals,
		DomainClues:    set.ContextSignals,
	}

	for _, t := range []string{set.CanonicalRole, set.RoleFamily} {
		if t = strings.TrimSpace(t); t != "" {
			in.TitleCandidates = append(in.TitleCandidates, t)
		}
	}

	switch yr := set.YearsRange; {
	case yr.Min != nil && yr.Max != nil:
		in.SeniorityClues = []string{fmt.Sprintf("%d-%d years", *yr.Min, *yr.Max)}
	case yr.Min != nil:
		in.SeniorityClues = []string{fmt.Sprintf("%d+ years", *yr.Min)}
	case yr.Max != nil:
		in.SeniorityClues = []string{fmt.Sprintf("up to %d years", *yr.Max)}
	}

	return in
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func countNonEmpty(in []string) int {
	return len(nonEmpty(in))
}
