// Package requirements holds the structured requirement set produced by the
// extraction step and consumed by every ranking stage.
package requirements

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GlobalContext is the context identifier used when no requirement text is known.
const GlobalContext = "global"

// YearsRange is an optional experience window. Nil bounds mean no constraint.
type YearsRange struct {
	Min *int `json:"min,omitempty" toml:"min,omitempty"`
	Max *int `json:"max,omitempty" toml:"max,omitempty"`
}

// Contract is the structured search contract some extraction runs produce.
// When present it drives dynamic competency matrix generation.
type Contract struct {
	RoleFamily     string   `json:"role_family,omitempty"`
	MustCore       []string `json:"must_core,omitempty"`
	Nice           []string `json:"nice,omitempty"`
	DomainOptional []string `json:"domain_optional,omitempty"`
}

// Usable reports whether the contract carries enough structure to build a matrix from.
func (c *Contract) Usable() bool {
	if c == nil {
		return false
	}
	return len(c.MustCore) > 0 || strings.TrimSpace(c.RoleFamily) != ""
}

// Set is a normalized requirement set. Absent lists mean "no constraint".
type Set struct {
	CoreSignals           []string   `json:"core_signals,omitempty"`
	SupportingSignals     []string   `json:"supporting_signals,omitempty"`
	ContextSignals        []string   `json:"context_signals,omitempty"`
	ExplicitDisqualifiers []string   `json:"explicit_disqualifiers,omitempty"`
	InterviewCheckpoints  []string   `json:"interview_checkpoints,omitempty"`
	YearsRange            YearsRange `json:"years_range"`
	RoleFamily            string     `json:"role_family,omitempty"`
	CanonicalRole         string     `json:"canonical_role,omitempty"`
	ConfidenceScore       int        `json:"confidence_score,omitempty"`
	Contract              *Contract  `json:"search_contract,omitempty"`
}

// Normalize returns a copy where every list is trimmed, whitespace-collapsed,
// de-duplicated case-insensitively and free of empty entries.
func (s Set) Normalize() Set {
	out := s
	out.CoreSignals = normalizeList(s.CoreSignals)
	out.SupportingSignals = normalizeList(s.SupportingSignals)
	out.ContextSignals = normalizeList(s.ContextSignals)
	out.ExplicitDisqualifiers = normalizeList(s.ExplicitDisqualifiers)
	out.InterviewCheckpoints = normalizeList(s.InterviewCheckpoints)
	out.RoleFamily = collapse(s.RoleFamily)
	out.CanonicalRole = collapse(s.CanonicalRole)

	switch {
	case out.ConfidenceScore < 0:
		out.ConfidenceScore = 0
	case out.ConfidenceScore > 100:
		out.ConfidenceScore = 100
	}

	out.YearsRange = YearsRange{
		Min: nonNegative(s.YearsRange.Min),
		Max: nonNegative(s.YearsRange.Max),
	}

	if s.Contract != nil {
		out.Contract = &Contract{
			RoleFamily:     collapse(s.Contract.RoleFamily),
			MustCore:       normalizeList(s.Contract.MustCore),
			Nice:           normalizeList(s.Contract.Nice),
			DomainOptional: normalizeList(s.Contract.DomainOptional),
		}
	}

	return out
}

// Empty reports whether the set carries no usable signal at all.
func (s Set) Empty() bool {
	return len(s.CoreSignals) == 0 &&
		len(s.SupportingSignals) == 0 &&
		len(s.ContextSignals) == 0 &&
		s.CanonicalRole == "" &&
		s.RoleFamily == ""
}

// QueryText renders the set as plain text suitable for embedding.
func (s Set) QueryText() string {
	parts := make([]string, 0, 4)
	if role := firstNonEmpty(s.CanonicalRole, s.RoleFamily); role != "" {
		parts = append(parts, role)
	}
	if len(s.CoreSignals) > 0 {
		parts = append(parts, "Must: "+strings.Join(s.CoreSignals, ", "))
	}
	if len(s.SupportingSignals) > 0 {
		parts = append(parts, "Nice: "+strings.Join(s.SupportingSignals, ", "))
	}
	if len(s.ContextSignals) > 0 {
		parts = append(parts, "Domain: "+strings.Join(s.ContextSignals, ", "))
	}
	return strings.Join(parts, "\n")
}

// ContextID hashes the requirement text so that feedback can be scoped to it.
func ContextID(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return GlobalContext
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// IntPtr is a small helper for building YearsRange literals.
func IntPtr(v int) *int { return &v }

func normalizeList(in []string) []string {
	if len(in) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = collapse(item)
		if item == "" {
			continue
		}
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func nonNegative(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	n := *v
	return &n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
