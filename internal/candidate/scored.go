package candidate

import "slices"

// Breakdown is the component view of a hybrid pass-likelihood score.
type Breakdown struct {
	Total        int     `json:"total"`
	Core         float64 `json:"core"`
	Support      float64 `json:"support"`
	Context      float64 `json:"context"`
	Risk         float64 `json:"risk"`
	Bonus        float64 `json:"bonus"`
	KeywordRate  float64 `json:"keyword_rate"`
	SemanticRate float64 `json:"semantic_rate"`
}

// Scored is the per-run working value for one candidate. Stages never mutate
// a Scored in place; each With method returns an extended copy.
type Scored struct {
	ID       string         `json:"id"`
	Rank     int            `json:"rank"`
	Metadata map[string]any `json:"-"`
	Profile  Profile        `json:"profile"`
	// ProfileErr is set when metadata could not be fully decoded.
	ProfileErr error  `json:"-"`
	Text       string `json:"-"`

	VectorScore float64 `json:"vector_score"`

	FilterPenalty  int      `json:"filter_penalty"`
	PenaltyReasons []string `json:"penalty_reasons,omitempty"`

	MatrixScored  bool     `json:"-"`
	MatrixScore   int      `json:"matrix_score,omitempty"`
	MatrixReasons []string `json:"matrix_reasons,omitempty"`

	RPLScored bool      `json:"-"`
	RPL       Breakdown `json:"rpl"`

	FeedbackWeight float64 `json:"feedback_weight,omitempty"`
	FeedbackDelta  float64 `json:"feedback_delta,omitempty"`

	FinalScore  float64 `json:"final_score"`
	Explanation string  `json:"explanation,omitempty"`
}

// New converts a retrieval match into its pipeline form.
func New(id string, vectorScore float64, metadata map[string]any, rank int) Scored {
	profile, err := Decode(id, metadata)

	return Scored{
		ID:          id,
		Rank:        rank,
		Metadata:    metadata,
		Profile:     profile,
		ProfileErr:  err,
		Text:        Flatten(metadata),
		VectorScore: vectorScore,
	}
}

// WithPenalty adds a non-negative penalty and its reason.
func (s Scored) WithPenalty(points int, reason string) Scored {
	if points <= 0 {
		return s
	}
	s.FilterPenalty += points
	s.PenaltyReasons = appendCopy(s.PenaltyReasons, reason)
	return s
}

// WithMatrix records the competency matrix outcome.
func (s Scored) WithMatrix(score int, matched []string) Scored {
	s.MatrixScored = true
	s.MatrixScore = score
	s.MatrixReasons = slices.Clone(matched)
	return s
}

// WithRPL records the hybrid pass-likelihood outcome.
func (s Scored) WithRPL(b Breakdown) Scored {
	s.RPLScored = true
	s.RPL = b
	return s
}

// WithFeedback records the decayed feedback weight and the score delta derived from it.
func (s Scored) WithFeedback(weight, delta float64) Scored {
	s.FeedbackWeight = weight
	s.FeedbackDelta = delta
	return s
}

func (s Scored) WithFinal(score float64) Scored {
	s.FinalScore = score
	return s
}

func (s Scored) WithExplanation(text string) Scored {
	s.Explanation = text
	return s
}

// StageScore is the score of the most recent scoring stage:
// RPL, then matrix score, then the raw vector similarity scaled to 0–100.
func (s Scored) StageScore() float64 {
	switch {
	case s.RPLScored:
		return float64(s.RPL.Total)
	case s.MatrixScored:
		return float64(s.MatrixScore)
	default:
		return s.VectorScore * 100
	}
}

func appendCopy(in []string, v string) []string {
	out := make([]string, len(in), len(in)+1)
	copy(out, in)
	return append(out, v)
}
