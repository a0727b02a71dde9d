// Package scoring computes the hybrid resume pass likelihood (RPL) score.
package scoring

import (
	"math"
	"strings"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/lexicon"
	"github.com/spigell/candidate-ranker/internal/requirements"
)

const (
	MinScore = 10
	MaxScore = 100

	corePoints       = 60.0
	keywordShare     = 0.7
	semanticShare    = 0.3
	semanticFloor    = 0.65
	semanticCeiling  = 0.85
	supportPerHit    = 5.0
	supportCap       = 25.0
	contextPerHit    = 3.0
	contextCap       = 10.0
	riskPenalty      = 20.0
	riskKeywordFloor = 0.2
)

// Scorer blends literal keyword evidence with vector similarity.
type Scorer struct {
	lex *lexicon.Lexicon
}

func NewScorer(lex *lexicon.Lexicon) *Scorer {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Scorer{lex: lex}
}

// Score returns the RPL breakdown for one candidate. text is the flattened
// candidate metadata. The total is always within [MinScore, MaxScore].
func (s *Scorer) Score(req requirements.Set, text string, vectorScore float64) candidate.Breakdown {
	text = strings.ToLower(text)

	var b candidate.Breakdown

	if len(req.CoreSignals) > 0 {
		b.KeywordRate = float64(len(Matched(req.CoreSignals, text))) / float64(len(req.CoreSignals))
	}
	b.SemanticRate = SemanticRate(vectorScore)

	coreRate := keywordShare*b.KeywordRate + semanticShare*b.SemanticRate

	role := req.CanonicalRole
	if role == "" {
		role = req.RoleFamily
	}
	if bonus, ok := s.lex.BonusFor(role); ok {
		b.Bonus = float64(bonus.Points(text))
		coreRate = math.Min(1, coreRate+b.Bonus/100)
	}

	b.Core = coreRate * corePoints
	b.Support = math.Min(float64(len(Matched(req.SupportingSignals, text)))*supportPerHit, supportCap)
	b.Context = math.Min(float64(len(Matched(req.ContextSignals, text)))*contextPerHit, contextCap)

	if len(req.CoreSignals) > 0 && b.KeywordRate < riskKeywordFloor {
		b.Risk = riskPenalty
	}

	total := int(math.Round(b.Core + b.Support + b.Context - b.Risk))
	b.Total = clamp(total, MinScore, MaxScore)

	return b
}

// SemanticRate remaps similarity from [0.65, 0.85] onto [0, 1].
func SemanticRate(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	rate := (v - semanticFloor) / (semanticCeiling - semanticFloor)
	return math.Max(0, math.Min(1, rate))
}

// Matched returns the signals present in text as case-insensitive substrings, in signal order.
func Matched(signals []string, text string) []string {
	if len(signals) == 0 || text == "" {
		return nil
	}
	text = strings.ToLower(text)

	var out []string
	for _, sig := range signals {
		s := strings.ToLower(strings.TrimSpace(sig))
		if s != "" && strings.Contains(text, s) {
			out = append(out, sig)
		}
	}
	return out
}

// PassProbability maps an RPL score to a calibrated percentage.
func PassProbability(score int) int {
	switch {
	case score < 30:
		return 10
	case score < 45:
		return 30
	case score < 60:
		return 55
	case score < 75:
		return 75
	default:
		return 90
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
