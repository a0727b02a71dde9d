package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/matrix"
	"github.com/spigell/candidate-ranker/internal/ranking"
	"github.com/spigell/candidate-ranker/internal/requirements"
	"github.com/spigell/candidate-ranker/internal/retrieval"
	"github.com/spigell/candidate-ranker/internal/strategy"
)

type fakeRetriever struct {
	mu        sync.Mutex
	responses map[string][]retrieval.Match
	errs      map[string]error
	block     bool
	queried   []string
}

func (f *fakeRetriever) Query(ctx context.Context, q retrieval.Query) (*retrieval.Response, error) {
	label := retrieval.NamespaceLabel(q.Namespace)

	f.mu.Lock()
	f.queried = append(f.queried, label)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := f.errs[label]; err != nil {
		return nil, err
	}
	matches := append([]retrieval.Match(nil), f.responses[label]...)
	return &retrieval.Response{Matches: matches}, nil
}

type failingExplainer struct{}

func (failingExplainer) Explain(context.Context, requirements.Set, candidate.Scored) (string, error) {
	return "", errors.New("explainer unavailable")
}

func defaultNamespace(matches ...retrieval.Match) *fakeRetriever {
	return &fakeRetriever{responses: map[string][]retrieval.Match{"<default>": matches}}
}

func newPipeline(t *testing.T, r retrieval.Retriever, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := New(r, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func ids(in []candidate.Scored) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, c.ID)
	}
	return out
}

func stages(tr *Trace) []string {
	out := make([]string, 0, len(tr.Steps))
	for _, s := range tr.Steps {
		out = append(out, s.Stage)
	}
	return out
}

func TestRunPythonDjangoAWS(t *testing.T) {
	t.Parallel()

	req := requirements.Set{
		CoreSignals: []string{"Python", "Django", "AWS"},
		YearsRange:  requirements.YearsRange{Min: requirements.IntPtr(5)},
	}
	rc := ranking.Build("run-1", "ctx-1", req, nil, nil, feedback.Snapshot{})

	r := defaultNamespace(retrieval.Match{
		ID:       "c1",
		Score:    0.75,
		Metadata: map[string]any{"total_years": 2, "summary": "Python Django developer"},
	})
	p := newPipeline(t, r)

	res, err := p.Run(context.Background(), Request{Context: rc, Vector: []float32{1, 0}})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Equal(t, 37, c.RPL.Total)
	assert.Equal(t, 10, c.FilterPenalty)
	assert.Equal(t, []string{"Years < 5"}, c.PenaltyReasons)
	assert.InDelta(t, 27, c.FinalScore, 1e-9)
	assert.Contains(t, c.Explanation, "Conclusion")

	assert.Equal(t, []string{"c1"}, res.Trace.Rescued)
	assert.Empty(t, res.Trace.Errors)
	assert.Empty(t, res.Trace.ExitStage)
	assert.Subset(t, stages(res.Trace), []string{StageRetrieve, StageDisqualify, StageSoft, StageScore, StageExplain, StageAdjust, StageSort})
}

func TestRunEmptyDisqualifiersKeepEveryone(t *testing.T) {
	t.Parallel()

	rc := ranking.Build("run", "ctx", requirements.Set{CoreSignals: []string{"go"}}, nil, nil, feedback.Snapshot{})
	r := defaultNamespace(
		retrieval.Match{ID: "a", Score: 0.8, Metadata: map[string]any{"summary": "go developer"}},
		retrieval.Match{ID: "b", Score: 0.8, Metadata: map[string]any{"summary": "junior go developer"}},
	)
	p := newPipeline(t, r)

	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(res.Candidates))
}

func TestRunDisqualifyEverybodyExitsEarly(t *testing.T) {
	t.Parallel()

	rc := ranking.Build("run", "ctx", requirements.Set{ExplicitDisqualifiers: []string{"intern"}}, nil, nil, feedback.Snapshot{})
	r := defaultNamespace(retrieval.Match{ID: "a", Score: 0.8, Metadata: map[string]any{"title": "Intern"}})
	p := newPipeline(t, r)

	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, StageDisqualify, res.Trace.ExitStage)
	assert.Equal(t, "disqualified: intern", res.Trace.Dropped["a"])
}

func TestRunNamespaceFallback(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{
		errs: map[string]error{"ns1": errors.New("namespace not found")},
		responses: map[string][]retrieval.Match{
			"<unset>": {{ID: "a", Score: 0.8, Metadata: map[string]any{"summary": "go"}}},
		},
	}
	p := newPipeline(t, r, WithRetrieval(time.Second, "ns1", 0))

	res, err := p.Run(context.Background(), Request{Context: ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{})})
	require.NoError(t, err)

	assert.Equal(t, []string{"ns1", "<default>", "<unset>"}, r.queried)
	assert.Equal(t, "<unset>", res.Trace.Namespace)
	require.Len(t, res.Trace.Attempts, 3)
	assert.Error(t, res.Trace.Attempts[0].Err)
	assert.Equal(t, "namespace not found", res.Trace.Attempts[0].Error)
	assert.Equal(t, []string{"a"}, ids(res.Candidates))
	require.Len(t, res.Trace.Errors, 1)
	assert.Equal(t, StageRetrieve, res.Trace.Errors[0].Stage)
}

func TestRunNamespaceErrorThenNoMatches(t *testing.T) {
	t.Parallel()

	unavailable := errors.New("503 service unavailable")
	r := &fakeRetriever{errs: map[string]error{"ns1": unavailable}}
	p := newPipeline(t, r, WithRetrieval(time.Second, "ns1", 0))

	res, err := p.Run(context.Background(), Request{Context: ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{})})
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.Equal(t, "no matches in any namespace", res.Trace.ExitReason)
	require.Len(t, res.Trace.Errors, 1)
	assert.Equal(t, StageRetrieve, res.Trace.Errors[0].Stage)
	assert.ErrorIs(t, res.Trace.Errors[0], unavailable)
	assert.Contains(t, res.Trace.Errors[0].Error(), "namespace ns1")

	path := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, res.Trace.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error": "503 service unavailable"`)
	assert.Contains(t, string(data), `"stage": "retrieve"`)
}

func TestRunRequestIssuesReachTrace(t *testing.T) {
	t.Parallel()

	extractErr := errors.New("extracting requirements: gemini: 503 unavailable")
	p := newPipeline(t, defaultNamespace(retrieval.Match{ID: "a", Score: 0.8, Metadata: map[string]any{"summary": "go"}}))

	res, err := p.Run(context.Background(), Request{
		Context: ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{}),
		Issues:  []*StageError{{Stage: StageExtract, Err: extractErr}},
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Trace.Errors)
	assert.Equal(t, StageExtract, res.Trace.Errors[0].Stage)
	assert.ErrorIs(t, res.Trace.Errors[0], extractErr)
	require.Len(t, res.Trace.Warnings, 1)
	assert.Contains(t, res.Trace.Warnings[0], "extract")
	assert.Equal(t, []string{"a"}, ids(res.Candidates))
}

func TestRunNoMatches(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeRetriever{})

	res, err := p.Run(context.Background(), Request{Context: ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{})})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, StageRetrieve, res.Trace.ExitStage)
	assert.Empty(t, res.Trace.Errors)
}

func TestRunRetrievalTimeout(t *testing.T) {
	t.Parallel()

	p := newPipeline(t, &fakeRetriever{block: true}, WithRetrieval(20*time.Millisecond, "", 0))

	res, err := p.Run(context.Background(), Request{Context: ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{})})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, StageRetrieve, res.Trace.ExitStage)
	require.Len(t, res.Trace.Errors, 1)
	assert.ErrorIs(t, res.Trace.Errors[0], context.DeadlineExceeded)
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPipeline(t, defaultNamespace(retrieval.Match{ID: "a", Score: 0.8}))
	_, err := p.Run(ctx, Request{Context: ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{})})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunVectorDimension(t *testing.T) {
	t.Parallel()

	rc := ranking.Build("run", "ctx", requirements.Set{}, nil, nil, feedback.Snapshot{})

	t.Run("short vector is an upstream error", func(t *testing.T) {
		t.Parallel()
		p := newPipeline(t, defaultNamespace(retrieval.Match{ID: "a", Score: 0.8}), WithRetrieval(time.Second, "", 4))

		res, err := p.Run(context.Background(), Request{Context: rc, Vector: []float32{1, 2}})
		require.NoError(t, err)
		assert.Empty(t, res.Candidates)
		require.Len(t, res.Trace.Errors, 1)
		assert.Equal(t, StageRetrieve, res.Trace.Errors[0].Stage)
	})

	t.Run("long vector is truncated with a warning", func(t *testing.T) {
		t.Parallel()
		p := newPipeline(t, defaultNamespace(retrieval.Match{ID: "a", Score: 0.8}), WithRetrieval(time.Second, "", 2))

		res, err := p.Run(context.Background(), Request{Context: rc, Vector: []float32{1, 2, 3}})
		require.NoError(t, err)
		assert.Len(t, res.Candidates, 1)
		assert.Len(t, res.Trace.Warnings, 1)
	})
}

func TestRunTiebreakByID(t *testing.T) {
	t.Parallel()

	md := map[string]any{"summary": "go developer"}
	r := defaultNamespace(
		retrieval.Match{ID: "c", Score: 0.8, Metadata: md},
		retrieval.Match{ID: "a", Score: 0.8, Metadata: md},
		retrieval.Match{ID: "b", Score: 0.8, Metadata: md},
	)
	p := newPipeline(t, r)

	rc := ranking.Build("run", "ctx", requirements.Set{CoreSignals: []string{"go"}}, nil, nil, feedback.Snapshot{})
	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(res.Candidates))
}

func TestRunFeedbackAdjustment(t *testing.T) {
	t.Parallel()

	now := time.Now()
	records := []feedback.Record{
		{ID: "r1", Timestamp: feedback.FormatTimestamp(now), CandidateID: "b", ContextID: "ctx", Type: feedback.Positive},
		{ID: "r2", Timestamp: feedback.FormatTimestamp(now), CandidateName: "Alice", ContextID: "ctx", Type: feedback.Negative},
	}
	snap := feedback.BuildSnapshot(records, "ctx", feedback.SnapshotOptions{HalfLifeDays: 90, GlobalWeight: 1, Now: now})

	md := map[string]any{"summary": "go developer"}
	r := defaultNamespace(
		retrieval.Match{ID: "a", Score: 0.8, Metadata: md},
		retrieval.Match{ID: "b", Score: 0.8, Metadata: md},
		retrieval.Match{ID: "c", Score: 0.8, Metadata: map[string]any{"name": "Alice", "summary": "go developer"}},
	)
	p := newPipeline(t, r)

	rc := ranking.Build("run", "ctx", requirements.Set{CoreSignals: []string{"go"}}, nil, nil, snap)
	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a", "c"}, ids(res.Candidates))

	base := res.Candidates[1].FinalScore
	assert.InDelta(t, 10, res.Candidates[0].FeedbackDelta, 0.01)
	assert.InDelta(t, base+10, res.Candidates[0].FinalScore, 0.01)
	assert.InDelta(t, -10, res.Candidates[2].FeedbackDelta, 0.01)
	assert.InDelta(t, base-10, res.Candidates[2].FinalScore, 0.01)
}

func TestRunRerankTopN(t *testing.T) {
	t.Parallel()

	r := defaultNamespace(
		retrieval.Match{ID: "a", Score: 0.85, Metadata: map[string]any{"summary": "go"}},
		retrieval.Match{ID: "b", Score: 0.80, Metadata: map[string]any{"summary": "go"}},
		retrieval.Match{ID: "c", Score: 0.70, Metadata: map[string]any{"summary": "go"}},
	)
	p := newPipeline(t, r)

	rc := ranking.Build("run", "ctx", requirements.Set{CoreSignals: []string{"go"}}, nil, nil, feedback.Snapshot{})
	rc.Strategy.RerankTopN = 2

	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Candidates))
	assert.Equal(t, "below rerank top 2", res.Trace.Dropped["c"])
}

func TestRunHybridCutoff(t *testing.T) {
	t.Parallel()

	r := defaultNamespace(
		retrieval.Match{ID: "strong", Score: 0.85, Metadata: map[string]any{"summary": "go kubernetes"}},
		retrieval.Match{ID: "weak", Score: 0.5, Metadata: map[string]any{"summary": "php"}},
	)
	p := newPipeline(t, r, WithMinKeep(1))

	rc := ranking.Build("run", "ctx", requirements.Set{CoreSignals: []string{"go", "kubernetes"}}, nil, nil, feedback.Snapshot{})
	rc.Strategy = strategy.DefaultPrecision()

	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)
	assert.Equal(t, []string{"strong"}, ids(res.Candidates))
	assert.Equal(t, "Score 10 < 60", res.Trace.Dropped["weak"])
	assert.Empty(t, res.Trace.Rescued)
}

func TestRunMatrixModeRescuesTopSet(t *testing.T) {
	t.Parallel()

	md := func(summary string) map[string]any { return map[string]any{"summary": summary} }
	r := defaultNamespace(
		retrieval.Match{ID: "a", Score: 0.8, Metadata: md("golang and kubernetes")},
		retrieval.Match{ID: "b", Score: 0.8, Metadata: md("golang")},
		retrieval.Match{ID: "c", Score: 0.8, Metadata: md("kubernetes")},
		retrieval.Match{ID: "d", Score: 0.8, Metadata: md("python")},
	)
	p := newPipeline(t, r, WithMode(ModeMatrix), WithMinKeep(3))

	rc := ranking.Context{
		RunID:             "run",
		ContextID:         "ctx",
		ConfidencePercent: 60,
		Strategy:          strategy.DefaultPrecision(),
		Matrix: matrix.ScoreMatrix{
			Name:          "platform",
			BaseThreshold: 2,
			Competencies: []matrix.Competency{
				{Name: "go", Weight: 2, Predicate: matrix.Keyword("golang")},
				{Name: "k8s", Weight: 1, Predicate: matrix.Keyword("kubernetes")},
			},
		},
	}

	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)

	require.Equal(t, []string{"a", "b", "c"}, ids(res.Candidates))
	assert.InDelta(t, 92, res.Candidates[0].FinalScore, 1e-9)
	assert.InDelta(t, 72, res.Candidates[1].FinalScore, 1e-9)
	assert.InDelta(t, 52, res.Candidates[2].FinalScore, 1e-9)

	assert.Equal(t, []string{"c"}, res.Trace.Rescued)
	assert.Contains(t, res.Trace.Dropped, "d")
	assert.NotContains(t, res.Trace.Dropped, "c")
	assert.Equal(t, 2, res.Trace.MatrixThreshold)
	assert.Equal(t, "platform", res.Trace.Matrix)
}

func TestRunExplainerFailureKeepsCandidate(t *testing.T) {
	t.Parallel()

	r := defaultNamespace(retrieval.Match{ID: "a", Score: 0.85, Metadata: map[string]any{"summary": "go"}})
	p := newPipeline(t, r, WithExplainer(failingExplainer{}))

	rc := ranking.Build("run", "ctx", requirements.Set{CoreSignals: []string{"go"}}, nil, nil, feedback.Snapshot{})
	res, err := p.Run(context.Background(), Request{Context: rc})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	assert.Empty(t, res.Candidates[0].Explanation)
	require.Len(t, res.Trace.Errors, 1)
	assert.Equal(t, StageExplain, res.Trace.Errors[0].Stage)
	assert.Equal(t, "a", res.Trace.Errors[0].CandidateID)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&fakeRetriever{}, WithMode("fuzzy"))
	assert.Error(t, err)

	_, err = New(&fakeRetriever{}, WithExplainWorkers(0))
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": ModeHybrid, "hybrid": ModeHybrid, "matrix": ModeMatrix} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("vector")
	assert.Error(t, err)
}
