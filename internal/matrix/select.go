package matrix

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spigell/candidate-ranker/internal/requirements"
)

// Archetype is a hand-authored matrix chosen when the inferred role contains
// one of the Match keywords.
type Archetype struct {
	Match  []string    `toml:"match" json:"match"`
	Matrix ScoreMatrix `toml:"matrix" json:"matrix"`
}

const (
	contractThreshold  = 3
	universalThreshold = 2
)

// DefaultArchetypes returns the built-in product and systems archetypes.
func DefaultArchetypes() []Archetype {
	return []Archetype{
		{
			Match: []string{"product", "pm", "기획"},
			Matrix: ScoreMatrix{
				Name:          "PM_PO",
				BaseThreshold: 4,
				Competencies: []Competency{
					{Name: "Core Role", Weight: 3, Predicate: Role("Product Owner", "PM", "Service Planner", "기획", "Product Manager")},
					{Name: "Tech Collab", Weight: 2, Predicate: Summary("development", "engineering", "devs", "개발자", "엔지니어", "협업")},
					{Name: "Data Driven", Weight: 1, Predicate: Keyword("sql", "data analysis", "ab test", "데이터", "지표", "ga4", "amplitude")},
					{Name: "Strategy", Weight: 1, Predicate: Keyword("roadmap", "strategy", "kpi", "go-to-market", "로드맵", "전략", "사업")},
				},
			},
		},
		{
			Match: []string{"npu", "system", "compiler"},
			Matrix: ScoreMatrix{
				Name:          "NPU_System_SW",
				BaseThreshold: 5,
				Competencies: []Competency{
					{Name: "Core Hard Skill", Weight: 3, Predicate: Keyword("c++", "c language", "system programming", "systems engineer", "embedded")},
					{Name: "Domain Keyword", Weight: 3, Predicate: Keyword("npu", "ai accelerator", "gpu", "compiler", "on-device ai")},
					{Name: "System Layer", Weight: 2, Predicate: Keyword("driver", "kernel", "linux", "bsp", "operating system")},
					{Name: "Frameworks", Weight: 1, Predicate: Keyword("pytorch", "tensorflow", "cuda", "opencl")},
				},
			},
		},
	}
}

// DefaultRoleAliases expands product role families for the role alignment check.
func DefaultRoleAliases() map[string][]string {
	pm := []string{"Product Owner", "PM", "Service Planner", "기획", "Product Manager"}
	return map[string][]string{
		"pm/po": pm,
		"pm":    pm,
	}
}

// FromContract builds a matrix from a structured search contract.
func FromContract(c *requirements.Contract, aliases map[string][]string) ScoreMatrix {
	comps := make([]Competency, 0, len(c.MustCore)+len(c.Nice)+len(c.DomainOptional)+1)

	for _, kw := range c.MustCore {
		comps = append(comps, Competency{Name: "Must: " + kw, Weight: 3, Predicate: Keyword(kw)})
	}
	for _, kw := range c.Nice {
		comps = append(comps, Competency{Name: "Nice: " + kw, Weight: 1, Predicate: Keyword(kw)})
	}
	for _, kw := range c.DomainOptional {
		comps = append(comps, Competency{Name: "Domain: " + kw, Weight: 2, Predicate: Keyword(kw)})
	}

	if family := strings.TrimSpace(c.RoleFamily); family != "" {
		roles := append([]string{family}, aliases[strings.ToLower(family)]...)
		comps = append(comps, Competency{Name: "Role Alignment", Weight: 2, Predicate: Role(roles...)})
	}

	return ScoreMatrix{
		Name:          fmt.Sprintf("Dynamic_%d", len(comps)),
		Competencies:  comps,
		BaseThreshold: contractThreshold,
	}
}

// Universal is the fallback matrix: role relevance plus any core skill overlap.
func Universal(req requirements.Set) ScoreMatrix {
	comps := make([]Competency, 0, 2)

	if role := firstNonEmpty(req.CanonicalRole, req.RoleFamily); role != "" {
		comps = append(comps, Competency{Name: "Role Relevance", Weight: 3, Predicate: Role(role)})
	}
	if len(req.CoreSignals) > 0 {
		comps = append(comps, Competency{Name: "Skill Overlap", Weight: 2, Predicate: Keyword(req.CoreSignals...)})
	}

	return ScoreMatrix{
		Name:          "Universal",
		Competencies:  comps,
		BaseThreshold: universalThreshold,
	}
}

// Select picks the matrix for a requirement set: the contract matrix when a
// usable contract is present, then the first matching archetype, then Universal.
func Select(req requirements.Set, archetypes []Archetype, aliases map[string][]string) ScoreMatrix {
	if req.Contract.Usable() {
		return FromContract(req.Contract, aliases)
	}

	words := roleWords(firstNonEmpty(req.CanonicalRole, req.RoleFamily))
	for _, a := range archetypes {
		for _, kw := range a.Match {
			if hasWordPrefix(words, kw) {
				return a.Matrix
			}
		}
	}

	return Universal(req)
}

// roleWords splits a role title into lowercase words.
func roleWords(role string) []string {
	return strings.FieldsFunc(strings.ToLower(role), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+'
	})
}

// hasWordPrefix reports whether any word starts with kw, so "pm" matches
// "pm" and "기획" matches "기획자" but "pm" does not match "development".
func hasWordPrefix(words []string, kw string) bool {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return false
	}
	for _, w := range words {
		if strings.HasPrefix(w, kw) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
