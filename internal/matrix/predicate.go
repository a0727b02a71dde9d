package matrix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spigell/candidate-ranker/internal/candidate"
)

// PredicateKind names one variant of Predicate.
type PredicateKind string

const (
	// KindKeyword matches a skill entry exactly or a substring of the summary.
	KindKeyword PredicateKind = "keyword"
	// KindRole matches the title (spaces ignored) or the role cluster.
	KindRole PredicateKind = "role"
	// KindSummary matches a substring of the summary only.
	KindSummary PredicateKind = "summary"
	// KindAll is true when every operand is true.
	KindAll PredicateKind = "all"
	// KindAny is true when at least one operand is true.
	KindAny PredicateKind = "any"
)

var ErrUnknownPredicate = errors.New("unknown predicate kind")

// Predicate is a serializable check against a candidate profile.
// Leaf kinds use Keywords, composite kinds use Operands.
type Predicate struct {
	Kind     PredicateKind `toml:"kind" json:"kind"`
	Keywords []string      `toml:"keywords,omitempty" json:"keywords,omitempty"`
	Operands []Predicate   `toml:"operands,omitempty" json:"operands,omitempty"`
}

func Keyword(keywords ...string) Predicate {
	return Predicate{Kind: KindKeyword, Keywords: keywords}
}

func Role(keywords ...string) Predicate {
	return Predicate{Kind: KindRole, Keywords: keywords}
}

func Summary(keywords ...string) Predicate {
	return Predicate{Kind: KindSummary, Keywords: keywords}
}

func All(operands ...Predicate) Predicate {
	return Predicate{Kind: KindAll, Operands: operands}
}

func Any(operands ...Predicate) Predicate {
	return Predicate{Kind: KindAny, Operands: operands}
}

// Eval evaluates the predicate. Leaf predicates without keywords and
// composites without operands are false.
func (p Predicate) Eval(profile candidate.Profile) (bool, error) {
	switch p.Kind {
	case KindKeyword:
		return matchAny(p.Keywords, func(kw string) bool {
			return profile.HasSkill(kw) || strings.Contains(strings.ToLower(profile.Summary), kw)
		}), nil
	case KindRole:
		title := squash(profile.Title)
		cluster := strings.ToLower(profile.RoleCluster)
		return matchAny(p.Keywords, func(kw string) bool {
			k := squash(kw)
			return (title != "" && strings.Contains(title, k)) || (cluster != "" && strings.Contains(cluster, kw))
		}), nil
	case KindSummary:
		summary := strings.ToLower(profile.Summary)
		return matchAny(p.Keywords, func(kw string) bool {
			return strings.Contains(summary, kw)
		}), nil
	case KindAll:
		if len(p.Operands) == 0 {
			return false, nil
		}
		for _, op := range p.Operands {
			ok, err := op.Eval(profile)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case KindAny:
		for _, op := range p.Operands {
			ok, err := op.Eval(profile)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownPredicate, p.Kind)
	}
}

// Validate checks the predicate tree for unknown kinds and empty nodes.
func (p Predicate) Validate() error {
	switch p.Kind {
	case KindKeyword, KindRole, KindSummary:
		if len(p.Keywords) == 0 {
			return fmt.Errorf("%s predicate has no keywords", p.Kind)
		}
		return nil
	case KindAll, KindAny:
		if len(p.Operands) == 0 {
			return fmt.Errorf("%s predicate has no operands", p.Kind)
		}
		for i, op := range p.Operands {
			if err := op.Validate(); err != nil {
				return fmt.Errorf("operand %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPredicate, p.Kind)
	}
}

func matchAny(keywords []string, match func(kw string) bool) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if match(kw) {
			return true
		}
	}
	return false
}

func squash(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}
