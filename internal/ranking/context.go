// Package ranking defines the per-run state shared by every pipeline stage.
package ranking

import (
	"github.com/spigell/candidate-ranker/internal/confidence"
	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/lexicon"
	"github.com/spigell/candidate-ranker/internal/matrix"
	"github.com/spigell/candidate-ranker/internal/requirements"
	"github.com/spigell/candidate-ranker/internal/strategy"
)

// Context is built once per run and never modified afterwards.
type Context struct {
	RunID     string
	ContextID string

	Requirements requirements.Set
	Confidence   confidence.Result
	// ConfidencePercent is the 0–100 value thresholds are tuned against.
	// It is the extraction step's score when present, the estimate otherwise.
	ConfidencePercent int
	Strategy          strategy.Config
	Matrix            matrix.ScoreMatrix
	Feedback          feedback.Snapshot
	Lexicon           *lexicon.Lexicon
}

// Build derives confidence, strategy and matrix from the requirement set.
func Build(runID, contextID string, req requirements.Set, lex *lexicon.Lexicon, selector *strategy.Selector, snapshot feedback.Snapshot) Context {
	if lex == nil {
		lex = lexicon.Default()
	}
	if selector == nil {
		selector = strategy.NewSelector(nil, nil)
	}

	req = req.Normalize()
	est := confidence.NewEstimator(lex).Estimate(confidence.FromRequirements(req))

	percent := est.Percent()
	if req.ConfidenceScore > 0 {
		percent = req.ConfidenceScore
	}

	return Context{
		RunID:             runID,
		ContextID:         contextID,
		Requirements:      req,
		Confidence:        est,
		ConfidencePercent: percent,
		Strategy:          selector.Select(float64(percent) / 100),
		Matrix:            matrix.Select(req, lex.Archetypes, lex.RoleAliases),
		Feedback:          snapshot,
		Lexicon:           lex,
	}
}
