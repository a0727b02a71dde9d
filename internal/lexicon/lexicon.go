// Package lexicon holds the hand-tuned keyword data used by the filters and
// scorers. Everything here is data: the defaults can be replaced from a TOML file.
package lexicon

import (
	"strings"

	"github.com/spigell/candidate-ranker/internal/matrix"
)

// RoleGroup is a family of role keywords. Two roles that both mention a
// group keyword are compatible. When Strict is set, a target in the group
// requires a candidate in the group.
type RoleGroup struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
	Strict   bool     `toml:"strict"`
}

// DisqualifierRule fires when a disqualifier mentions Signal and the candidate
// title mentions Title but not Unless.
type DisqualifierRule struct {
	Signal string `toml:"signal"`
	Title  string `toml:"title"`
	Unless string `toml:"unless,omitempty"`
}

// BonusTier awards Points once when any of Terms is present.
type BonusTier struct {
	Points int      `toml:"points"`
	Terms  []string `toml:"terms"`
}

// DomainBonus applies to requirement sets whose canonical role mentions one of RoleKeywords.
type DomainBonus struct {
	Name         string      `toml:"name"`
	RoleKeywords []string    `toml:"role_keywords"`
	Tiers        []BonusTier `toml:"tiers"`
	Cap          int         `toml:"cap"`
}

// RoleCluster classifies free-text titles.
type RoleCluster struct {
	Name     string   `toml:"name"`
	Keywords []string `toml:"keywords"`
}

type Lexicon struct {
	GenericTitles     []string            `toml:"generic_titles"`
	RoleGroups        []RoleGroup         `toml:"role_groups"`
	DisqualifierRules []DisqualifierRule  `toml:"disqualifier_rules"`
	DomainBonuses     []DomainBonus       `toml:"domain_bonuses"`
	RoleClusters      []RoleCluster       `toml:"role_clusters"`
	RoleAliases       map[string][]string `toml:"role_aliases"`
	Archetypes        []matrix.Archetype  `toml:"archetypes"`
}

// IsGenericTitle reports whether title is a bare generic term such as "engineer".
func (l *Lexicon) IsGenericTitle(title string) bool {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return false
	}
	for _, g := range l.GenericTitles {
		if strings.EqualFold(title, strings.TrimSpace(g)) {
			return true
		}
	}
	return false
}

// RolesCompatible is a commutative containment test followed by the role groups.
// Uncertain pairs are compatible.
func (l *Lexicon) RolesCompatible(target, cand string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	c := strings.ToLower(strings.TrimSpace(cand))

	if t == "" || (c != "" && (strings.Contains(t, c) || strings.Contains(c, t))) {
		return true
	}

	for _, g := range l.RoleGroups {
		inTarget := containsAny(t, g.Keywords)
		if !inTarget {
			continue
		}
		inCand := containsAny(c, g.Keywords)
		if g.Strict {
			return inCand
		}
		if inCand {
			return true
		}
	}

	return true
}

// Disqualified reports whether any disqualifier rule fires for the given
// disqualifier statements and candidate title.
func (l *Lexicon) Disqualified(disqualifiers []string, title string) (DisqualifierRule, bool) {
	title = strings.ToLower(title)
	for _, d := range disqualifiers {
		d = strings.ToLower(d)
		for _, r := range l.DisqualifierRules {
			if r.Signal == "" || r.Title == "" {
				continue
			}
			if !strings.Contains(d, strings.ToLower(r.Signal)) || !strings.Contains(title, strings.ToLower(r.Title)) {
				continue
			}
			if r.Unless != "" && strings.Contains(title, strings.ToLower(r.Unless)) {
				continue
			}
			return r, true
		}
	}
	return DisqualifierRule{}, false
}

// BonusFor returns the first domain bonus family that applies to role.
func (l *Lexicon) BonusFor(role string) (DomainBonus, bool) {
	role = strings.ToLower(role)
	if role == "" {
		return DomainBonus{}, false
	}
	for _, b := range l.DomainBonuses {
		if containsAny(role, b.RoleKeywords) {
			return b, true
		}
	}
	return DomainBonus{}, false
}

// Points sums the tiers present in text, capped at Cap when Cap is positive.
func (b DomainBonus) Points(text string) int {
	total := 0
	for _, tier := range b.Tiers {
		if containsAny(text, tier.Terms) {
			total += tier.Points
		}
	}
	if b.Cap > 0 && total > b.Cap {
		total = b.Cap
	}
	return total
}

// RoleCluster classifies title into the first cluster with a matching keyword.
func (l *Lexicon) RoleCluster(title string) string {
	title = strings.ToLower(title)
	if strings.TrimSpace(title) == "" {
		return ""
	}
	for _, c := range l.RoleClusters {
		if containsAny(title, c.Keywords) {
			return c.Name
		}
	}
	return ""
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
