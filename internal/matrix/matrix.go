// Package matrix implements declarative competency matrices: weighted, named
// checks evaluated against a candidate profile.
package matrix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/candidate-ranker/internal/candidate"
)

// Competency is one weighted check.
type Competency struct {
	Name      string    `toml:"name" json:"name"`
	Weight    int       `toml:"weight" json:"weight"`
	Predicate Predicate `toml:"predicate" json:"predicate"`
}

// ScoreMatrix is immutable for the duration of a ranking run.
type ScoreMatrix struct {
	Name          string       `toml:"name" json:"name"`
	Competencies  []Competency `toml:"competencies" json:"competencies"`
	BaseThreshold int          `toml:"base_threshold" json:"base_threshold"`
}

// Evaluation is the outcome of running a matrix against one profile.
type Evaluation struct {
	Score   int
	Matched []string
}

// Evaluate sums the weights of every competency whose predicate holds.
func (m ScoreMatrix) Evaluate(profile candidate.Profile) (Evaluation, error) {
	var eval Evaluation
	for _, c := range m.Competencies {
		ok, err := c.Predicate.Eval(profile)
		if err != nil {
			return Evaluation{}, fmt.Errorf("competency %q: %w", c.Name, err)
		}
		if ok {
			eval.Score += c.Weight
			eval.Matched = append(eval.Matched, c.Name)
		}
	}
	return eval, nil
}

// MaxScore is the score of a profile matching every competency.
func (m ScoreMatrix) MaxScore() int {
	total := 0
	for _, c := range m.Competencies {
		total += c.Weight
	}
	return total
}

// Validate rejects matrices that cannot be evaluated.
func (m ScoreMatrix) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("matrix name is required")
	}
	if len(m.Competencies) == 0 {
		return fmt.Errorf("matrix %s has no competencies", m.Name)
	}
	for _, c := range m.Competencies {
		if c.Weight <= 0 {
			return fmt.Errorf("matrix %s: competency %q must have a positive weight", m.Name, c.Name)
		}
		if err := c.Predicate.Validate(); err != nil {
			return fmt.Errorf("matrix %s: competency %q: %w", m.Name, c.Name, err)
		}
	}
	return nil
}

// AdjustThreshold tightens the threshold for confident requirement sets and
// relaxes it for vague ones. confidence is on the 0–100 scale.
func AdjustThreshold(base, confidence int) int {
	threshold := base
	switch {
	case confidence >= 80:
		threshold++
	case confidence < 50:
		threshold--
	}
	if threshold < 1 {
		threshold = 1
	}
	return threshold
}
