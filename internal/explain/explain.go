// Package explain renders human-readable justifications for ranked candidates.
package explain

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/requirements"
	"github.com/spigell/candidate-ranker/internal/scoring"
)

const (
	topN = 3

	strongRecommend    = 70
	interviewRecommend = 55
)

// Explainer produces the justification for one scored candidate.
type Explainer interface {
	Explain(ctx context.Context, req requirements.Set, c candidate.Scored) (string, error)
}

// Template is the deterministic Explainer. It never fails and makes no external calls.
type Template struct{}

// Explain uses the RPL score when present and the composite score otherwise.
func (Template) Explain(_ context.Context, req requirements.Set, c candidate.Scored) (string, error) {
	score := int(math.Round(c.FinalScore))
	if c.RPLScored {
		score = c.RPL.Total
	}
	return Generate(req, c.Text, score), nil
}

// Generate assembles matched core and supporting signals, interview
// checkpoints and a banded conclusion. Empty sections are stated, never omitted.
func Generate(req requirements.Set, text string, score int) string {
	var b strings.Builder

	writeSection(&b, "Core", req.CoreSignals, scoring.Matched(req.CoreSignals, text),
		"No core requirements specified.", "Core requirements not found in profile.")
	writeSection(&b, "Supporting", req.SupportingSignals, scoring.Matched(req.SupportingSignals, text),
		"No supporting requirements specified.", "Supporting requirements not found in profile.")
	writeSection(&b, "Checkpoints", req.InterviewCheckpoints, req.InterviewCheckpoints,
		"No interview checkpoints defined.", "No interview checkpoints defined.")

	fmt.Fprintf(&b, "Conclusion: %s (score %d, pass likelihood %d%%).",
		Conclusion(score), score, scoring.PassProbability(score))

	return b.String()
}

// Conclusion bands a score into a recommendation.
func Conclusion(score int) string {
	switch {
	case score >= strongRecommend:
		return "Strong recommend"
	case score >= interviewRecommend:
		return "Interview recommend"
	default:
		return "Contextual review"
	}
}

func writeSection(b *strings.Builder, title string, wanted, matched []string, noneWanted, noneMatched string) {
	b.WriteString(title)
	b.WriteString(": ")

	switch {
	case len(wanted) == 0:
		b.WriteString(noneWanted)
	case len(matched) == 0:
		b.WriteString(noneMatched)
	default:
		if len(matched) > topN {
			matched = matched[:topN]
		}
		b.WriteString(strings.Join(matched, ", "))
	}

	b.WriteString("\n")
}
