// Package pipeline sequences the ranking stages: retrieval, filtering,
// scoring, explanation, feedback adjustment and sorting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/explain"
	"github.com/spigell/candidate-ranker/internal/filtering"
	"github.com/spigell/candidate-ranker/internal/logger"
	"github.com/spigell/candidate-ranker/internal/matrix"
	"github.com/spigell/candidate-ranker/internal/ranking"
	"github.com/spigell/candidate-ranker/internal/retrieval"
	"github.com/spigell/candidate-ranker/internal/scoring"
)

// RankingContext is the immutable per-run state handed to every stage.
type RankingContext = ranking.Context

// Request is one ranking run.
type Request struct {
	Context RankingContext
	// Vector is the embedded requisition.
	Vector []float32
	// Issues happened while preparing the request and are copied into the trace.
	Issues []*StageError
}

// Result is the ordered shortlist plus the trace of how it was produced.
type Result struct {
	Candidates []candidate.Scored `json:"candidates"`
	Trace      *Trace             `json:"trace"`
}

type Pipeline struct {
	retriever retrieval.Retriever
	explainer explain.Explainer
	scorer    *scoring.Scorer
	filters   []filtering.Filter
	logger    *zap.Logger

	mode             Mode
	minKeep          int
	explainThreshold float64
	scoreWorkers     int
	explainWorkers   int
	pointsPerWeight  float64

	timeout   time.Duration
	namespace string
	dimension int
	filter    map[string]any

	explainPool *ants.Pool
}

// New builds a pipeline around retriever. Release must be called when done.
func New(retriever retrieval.Retriever, opts ...Option) (*Pipeline, error) {
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}

	p := &Pipeline{
		retriever:        retriever,
		explainer:        explain.Template{},
		logger:           zap.NewNop(),
		mode:             ModeHybrid,
		minKeep:          DefaultMinKeep,
		explainThreshold: DefaultExplainThreshold,
		scoreWorkers:     DefaultScoreWorkers,
		explainWorkers:   DefaultExplainWorkers,
		pointsPerWeight:  DefaultPointsPerWeight,
		timeout:          DefaultRetrievalTimeout,
		filters: []filtering.Filter{
			filtering.NewDisqualify(),
			filtering.NewExcludeFile(""),
			filtering.NewRejected(false),
			filtering.NewSoft(filtering.DefaultSoftConfig()),
		},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.explainWorkers)
	if err != nil {
		return nil, fmt.Errorf("creating explanation pool: %w", err)
	}
	p.explainPool = pool

	return p, nil
}

// Release frees the explanation workers.
func (p *Pipeline) Release() {
	if p.explainPool != nil {
		p.explainPool.Release()
	}
}

// Run executes one ranking. Upstream failures and empty stages are reported
// in the trace with an empty result; only cancellation of ctx is returned as an error.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	rc := req.Context
	trace := &Trace{
		RunID:             rc.RunID,
		ContextID:         rc.ContextID,
		StartedAt:         time.Now(),
		Mode:              p.mode,
		Strategy:          rc.Strategy,
		Confidence:        rc.ConfidencePercent,
		ConfidenceReasons: rc.Confidence.Reasons,
		Matrix:            rc.Matrix.Name,
	}
	result := &Result{Trace: trace}
	log := logger.WithRun(p.logger, rc.RunID, rc.ContextID)

	for _, issue := range req.Issues {
		trace.fail(issue.Stage, issue.CandidateID, issue.Err)
		trace.warn("%s", issue.Error())
	}

	defer func() {
		trace.Duration = time.Since(trace.StartedAt)
	}()

	log.Info("ranking started",
		zap.String("mode", string(p.mode)),
		zap.String("strategy", string(rc.Strategy.Mode)),
		zap.Int("confidence", rc.ConfidencePercent),
		zap.String("matrix", rc.Matrix.Name),
	)

	cands, err := p.retrieve(ctx, log, rc, req.Vector, trace)
	if err != nil {
		return result, err
	}
	if len(cands) == 0 {
		return result, nil
	}

	cands, err = p.applyFilters(ctx, log, &rc, cands, trace)
	if err != nil {
		return result, err
	}
	if len(cands) == 0 {
		return result, nil
	}

	cands, guaranteed, err := p.score(ctx, log, &rc, cands, trace)
	if err != nil {
		return result, err
	}
	if len(cands) == 0 {
		trace.exit(StageScore, "no candidates scored")
		return result, nil
	}

	cands, err = p.explain(ctx, log, rc, cands, guaranteed, trace)
	if err != nil {
		return result, err
	}

	cands = p.adjust(rc, cands, trace)
	cands = p.order(rc, cands, trace)

	log.Info("ranking finished", zap.Int("candidates", len(cands)))

	result.Candidates = cands
	return result, nil
}

func (p *Pipeline) retrieve(ctx context.Context, log *zap.Logger, rc RankingContext, vector []float32, trace *Trace) ([]candidate.Scored, error) {
	vector, truncated, err := retrieval.FitDimension(vector, p.dimension)
	if err != nil {
		trace.fail(StageRetrieve, "", err)
		trace.exit(StageRetrieve, "invalid query vector")
		log.Error("invalid query vector", zap.Error(err))
		return nil, nil
	}
	if truncated {
		trace.warn("query vector truncated to %d dimensions", p.dimension)
	}

	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q := retrieval.Query{Vector: vector, TopK: rc.Strategy.TopK, Filter: p.filter}
	resp, attempts, err := retrieval.QueryWithFallback(rctx, log, p.retriever, q, p.namespace)
	trace.Attempts = attempts

	if err == nil || errors.Is(err, retrieval.ErrNoMatches) {
		for _, a := range attempts {
			if a.Err != nil {
				trace.fail(StageRetrieve, "", fmt.Errorf("namespace %s: %w", a.Namespace, a.Err))
			}
		}
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		trace.fail(StageRetrieve, "", fmt.Errorf("retrieval timed out after %s: %w", p.timeout, err))
		trace.exit(StageRetrieve, "retrieval timed out")
		log.Warn("retrieval timed out", zap.Duration("timeout", p.timeout))
		return nil, nil
	case errors.Is(err, retrieval.ErrNoMatches):
		trace.step(StageRetrieve, "", 0, 0)
		trace.exit(StageRetrieve, "no matches in any namespace")
		log.Info("retrieval returned no matches")
		return nil, nil
	default:
		trace.fail(StageRetrieve, "", err)
		trace.exit(StageRetrieve, "retrieval unavailable")
		log.Error("retrieval failed", zap.Error(err))
		return nil, nil
	}

	trace.Namespace = attempts[len(attempts)-1].Namespace

	cands := make([]candidate.Scored, 0, len(resp.Matches))
	for i, m := range resp.Matches {
		cands = append(cands, candidate.New(m.ID, m.Score, m.Metadata, i+1))
	}

	trace.step(StageRetrieve, trace.Namespace, len(cands), len(cands))
	log.Info("filter step",
		zap.String("name", StageRetrieve),
		zap.Int("initial", len(cands)),
		zap.Int("dropped", 0),
		zap.Int("left", len(cands)),
	)

	return cands, nil
}

func (p *Pipeline) applyFilters(ctx context.Context, log *zap.Logger, rc *RankingContext, cands []candidate.Scored, trace *Trace) ([]candidate.Scored, error) {
	out, reports, err := filtering.Run(ctx, filtering.Deps{Logger: log}, rc, p.filters, cands)
	for _, r := range reports {
		trace.report(stageFor(r.Name), r)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stage := failedStage(p.filters, reports)
		trace.fail(stage, "", err)
		trace.exit(stage, "filter failed")
		log.Error("filtering failed", zap.Error(err))
		return nil, nil
	}

	if len(out) == 0 && len(reports) > 0 {
		last := reports[len(reports)-1]
		trace.exit(stageFor(last.Name), fmt.Sprintf("%s left no candidates", last.Name))
	}
	return out, nil
}

// failedStage is the stage of the first enabled filter without a report.
func failedStage(filters []filtering.Filter, reports []filtering.Report) string {
	done := make(map[string]bool, len(reports))
	for _, r := range reports {
		done[r.Name] = true
	}
	for _, f := range filters {
		if f.IsEnabled() && !done[f.Name()] {
			return stageFor(f.Name())
		}
	}
	return StageSoft
}

func stageFor(filterName string) string {
	switch filterName {
	case "disqualify":
		return StageDisqualify
	case "soft":
		return StageSoft
	case "matrix":
		return StageScore
	default:
		return StageExclude
	}
}

// score runs the configured scorer and returns the survivors plus the IDs of
// the guaranteed top set.
func (p *Pipeline) score(ctx context.Context, log *zap.Logger, rc *RankingContext, cands []candidate.Scored, trace *Trace) ([]candidate.Scored, map[string]bool, error) {
	var (
		kept, dropped []candidate.Scored
		reasons       = make(map[string]string)
	)

	switch p.mode {
	case ModeMatrix:
		passed, step, err := filtering.NewMatrix(p.scoreWorkers).Apply(ctx, filtering.Deps{Logger: log}, rc, cands)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			trace.fail(StageScore, "", err)
			return nil, nil, nil
		}
		trace.MatrixThreshold = matrix.AdjustThreshold(rc.Matrix.BaseThreshold, rc.ConfidencePercent)
		for _, issue := range step.Issues {
			trace.fail(StageScore, issue.CandidateID, issue.Err)
		}
		for _, e := range step.Entries {
			trace.entry("%s", e)
		}

		kept = compositeAll(rc, passed)
		for _, d := range step.Drops {
			c := composite(rc, d.Candidate)
			dropped = append(dropped, c)
			reasons[c.ID] = d.Reason
		}

	default:
		scored, err := p.scoreHybrid(ctx, rc, cands)
		if err != nil {
			return nil, nil, err
		}
		cutoff := rc.Strategy.ScoreCutoff
		for _, c := range scored {
			if c.FinalScore < cutoff {
				dropped = append(dropped, c)
				reasons[c.ID] = fmt.Sprintf("Score %.0f < %.0f", c.FinalScore, cutoff)
				continue
			}
			kept = append(kept, c)
		}
	}

	out, guaranteed, rescued := rescue(kept, dropped, p.minKeep)
	for _, c := range dropped {
		if guaranteed[c.ID] {
			continue
		}
		trace.drop(c.ID, reasons[c.ID])
	}
	for _, id := range rescued {
		trace.Rescued = append(trace.Rescued, id)
		trace.entry("RESCUED: %s (%s)", id, reasons[id])
	}
	trace.step(StageScore, string(p.mode), len(cands), len(out))

	log.Info("filter step",
		zap.String("name", StageScore),
		zap.Int("initial", len(cands)),
		zap.Int("dropped", len(cands)-len(out)),
		zap.Int("left", len(out)),
		zap.Int("rescued", len(rescued)),
	)

	return out, guaranteed, nil
}

func (p *Pipeline) scoreHybrid(ctx context.Context, rc *RankingContext, cands []candidate.Scored) ([]candidate.Scored, error) {
	scorer := p.scorer
	if scorer == nil {
		scorer = scoring.NewScorer(rc.Lexicon)
	}

	out := make([]candidate.Scored, len(cands))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.scoreWorkers)

	for i, c := range cands {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b := scorer.Score(rc.Requirements, c.Text, c.VectorScore)
			out[i] = c.WithRPL(b).WithFinal(clamp(float64(b.Total-c.FilterPenalty), 0, 100))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func compositeAll(rc *RankingContext, in []candidate.Scored) []candidate.Scored {
	out := make([]candidate.Scored, len(in))
	for i, c := range in {
		out[i] = composite(rc, c)
	}
	return out
}

// composite blends vector similarity, matrix coverage and context coverage
// with the strategy's match weights. Without context signals the domain weight
// moves to skills.
func composite(rc *RankingContext, c candidate.Scored) candidate.Scored {
	w := rc.Strategy.MatchWeights
	skills, domain := w.Skills, w.Domain

	contextRate := 0.0
	if signals := rc.Requirements.ContextSignals; len(signals) > 0 {
		contextRate = float64(len(scoring.Matched(signals, c.Text))) / float64(len(signals))
	} else {
		skills += domain
		domain = 0
	}

	matrixRate := 0.0
	if maxScore := rc.Matrix.MaxScore(); maxScore > 0 {
		matrixRate = float64(c.MatrixScore) / float64(maxScore)
	}

	vector := clamp(c.VectorScore, 0, 1)
	score := 100*(w.Vector*vector+skills*matrixRate+domain*contextRate) - float64(c.FilterPenalty)
	return c.WithFinal(clamp(score, 0, 100))
}

// rescue returns kept plus the dropped candidates that fall inside the top
// minKeep of the combined set, ordered by score.
func rescue(kept, dropped []candidate.Scored, minKeep int) ([]candidate.Scored, map[string]bool, []string) {
	all := make([]candidate.Scored, 0, len(kept)+len(dropped))
	all = append(all, kept...)
	all = append(all, dropped...)
	sortCandidates(all)

	guaranteed := make(map[string]bool, minKeep)
	for i := 0; i < len(all) && i < minKeep; i++ {
		guaranteed[all[i].ID] = true
	}

	out := append([]candidate.Scored(nil), kept...)
	var rescued []string
	for _, c := range dropped {
		if guaranteed[c.ID] {
			out = append(out, c)
			rescued = append(rescued, c.ID)
		}
	}
	return out, guaranteed, rescued
}

func (p *Pipeline) explain(ctx context.Context, log *zap.Logger, rc RankingContext, cands []candidate.Scored, guaranteed map[string]bool, trace *Trace) ([]candidate.Scored, error) {
	if p.explainer == nil {
		return cands, nil
	}

	out := make([]candidate.Scored, len(cands))
	copy(out, cands)

	var (
		wg        sync.WaitGroup
		submitted int
	)

	for i, c := range cands {
		if c.FinalScore < p.explainThreshold && !guaranteed[c.ID] {
			continue
		}
		submitted++
		wg.Add(1)

		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			text, err := p.explainer.Explain(ctx, rc.Requirements, c)
			if err != nil {
				trace.fail(StageExplain, c.ID, err)
				log.Warn("explanation failed", zap.String(logger.FieldCandidateID, c.ID), zap.Error(err))
				return
			}
			out[i] = c.WithExplanation(text)
		}

		if err := p.explainPool.Submit(task); err != nil {
			wg.Done()
			trace.fail(StageExplain, c.ID, fmt.Errorf("submitting explanation: %w", err))
		}
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace.step(StageExplain, "", len(cands), len(cands))
	trace.entry("explained %d of %d candidates", submitted, len(cands))
	return out, nil
}

func (p *Pipeline) adjust(rc RankingContext, cands []candidate.Scored, trace *Trace) []candidate.Scored {
	out := make([]candidate.Scored, len(cands))
	for i, c := range cands {
		adj := rc.Feedback.For(c.ID, c.Profile.Name).Total()
		if adj == 0 {
			out[i] = c
			continue
		}
		delta := adj * p.pointsPerWeight
		out[i] = c.WithFeedback(adj, delta).WithFinal(clamp(c.FinalScore+delta, 0, 100))
		trace.entry("FEEDBACK: %s %+.2f (weight %+.3f)", c.ID, delta, adj)
	}
	trace.step(StageAdjust, "", len(cands), len(out))
	return out
}

func (p *Pipeline) order(rc RankingContext, cands []candidate.Scored, trace *Trace) []candidate.Scored {
	out := make([]candidate.Scored, len(cands))
	copy(out, cands)
	sortCandidates(out)

	if n := rc.Strategy.RerankTopN; n > 0 && len(out) > n {
		for _, c := range out[n:] {
			trace.drop(c.ID, fmt.Sprintf("below rerank top %d", n))
		}
		out = out[:n]
	}

	trace.step(StageSort, "", len(cands), len(out))
	return out
}

// sortCandidates orders by final score descending, then ID ascending.
func sortCandidates(in []candidate.Scored) {
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].FinalScore != in[j].FinalScore {
			return in[i].FinalScore > in[j].FinalScore
		}
		return in[i].ID < in[j].ID
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
