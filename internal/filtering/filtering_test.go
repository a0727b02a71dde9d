package filtering

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/lexicon"
	"github.com/spigell/candidate-ranker/internal/matrix"
	"github.com/spigell/candidate-ranker/internal/ranking"
	"github.com/spigell/candidate-ranker/internal/requirements"
)

func newCandidate(id string, score float64, md map[string]any) candidate.Scored {
	return candidate.New(id, score, md, 0)
}

func ids(in []candidate.Scored) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, c.ID)
	}
	return out
}

func TestSoftPreservesLength(t *testing.T) {
	t.Parallel()

	rc := &ranking.Context{
		Requirements: requirements.Set{
			CanonicalRole:         "Backend Engineer",
			YearsRange:            requirements.YearsRange{Min: requirements.IntPtr(5), Max: requirements.IntPtr(8)},
			ExplicitDisqualifiers: []string{"junior developers"},
		},
		Lexicon: lexicon.Default(),
	}

	in := []candidate.Scored{
		newCandidate("a", 0.8, map[string]any{"total_years": 2, "title": "Junior Backend Developer", "role_cluster": "TECH_PLATFORM"}),
		newCandidate("b", 0.8, map[string]any{"total_years": "6", "title": "Product Manager", "role_cluster": "PRODUCT_PLANNING"}),
		newCandidate("c", 0.8, map[string]any{"total_years": "many", "title": "Backend Developer"}),
		newCandidate("d", 0.8, map[string]any{"total_years": 7, "title": "Backend Developer", "role_cluster": "TECH_PLATFORM"}),
		newCandidate("e", 0.8, map[string]any{"total_years": 12, "title": "Backend Developer"}),
		newCandidate("f", 0.8, map[string]any{"title": "Backend Developer"}),
	}

	out, step, err := NewSoft(SoftConfig{}).Apply(context.Background(), Deps{}, rc, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) || step.Left != len(in) || step.Dropped != 0 {
		t.Fatalf("soft filter changed the candidate count: %d -> %d (%+v)", len(in), len(out), step)
	}

	want := map[string]struct {
		penalty int
		reasons []string
	}{
		"a": {25, []string{"Years < 5", "Negative Signal"}},
		"b": {5, []string{"Role Mismatch (PRODUCT_PLANNING)"}},
		"c": {0, nil},
		"d": {0, nil},
		"e": {5, []string{"Years > 8"}},
		"f": {0, nil},
	}

	for i, c := range out {
		if c.ID != in[i].ID {
			t.Fatalf("order changed at %d: %s", i, c.ID)
		}
		w := want[c.ID]
		if c.FilterPenalty != w.penalty {
			t.Fatalf("%s: expected penalty %d, got %d (%v)", c.ID, w.penalty, c.FilterPenalty, c.PenaltyReasons)
		}
		if strings.Join(c.PenaltyReasons, ";") != strings.Join(w.reasons, ";") {
			t.Fatalf("%s: expected reasons %v, got %v", c.ID, w.reasons, c.PenaltyReasons)
		}
		if in[i].FilterPenalty != 0 {
			t.Fatalf("%s: input was mutated", c.ID)
		}
	}

	if len(step.Issues) != 1 || step.Issues[0].CandidateID != "c" {
		t.Fatalf("expected one issue for the malformed profile, got %+v", step.Issues)
	}
}

func TestSoftLogsPenalties(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	rc := &ranking.Context{
		Requirements: requirements.Set{YearsRange: requirements.YearsRange{Min: requirements.IntPtr(5)}},
	}
	in := []candidate.Scored{newCandidate("a", 0.8, map[string]any{"total_years": 1})}

	if _, _, err := NewSoft(SoftConfig{}).Apply(context.Background(), Deps{Logger: zap.New(core)}, rc, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	penalties := logs.FilterMessage("soft filter penalty").All()
	if len(penalties) != 1 {
		t.Fatalf("expected one penalty log, got %d", len(penalties))
	}
	if got := penalties[0].ContextMap()["candidate_id"]; got != "a" {
		t.Fatalf("expected candidate_id a, got %v", got)
	}
}

func TestDisqualify(t *testing.T) {
	t.Parallel()

	in := []candidate.Scored{
		newCandidate("a", 0.9, map[string]any{"summary": "Visa sponsorship required"}),
		newCandidate("b", 0.8, map[string]any{"summary": "Remote only"}),
		newCandidate("c", 0.7, map[string]any{"summary": "Python backend"}),
	}

	tests := []struct {
		name          string
		disqualifiers []string
		want          []string
	}{
		{name: "empty disqualifiers drop nothing", want: []string{"a", "b", "c"}},
		{name: "case insensitive substring", disqualifiers: []string{"VISA SPONSORSHIP"}, want: []string{"b", "c"}},
		{name: "several terms", disqualifiers: []string{"visa", "remote only"}, want: []string{"c"}},
		{name: "blank terms ignored", disqualifiers: []string{"  "}, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := &ranking.Context{Requirements: requirements.Set{ExplicitDisqualifiers: tt.disqualifiers}}
			out, step, err := NewDisqualify().Apply(context.Background(), Deps{}, rc, in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(ids(out), ",") != strings.Join(tt.want, ",") {
				t.Fatalf("expected %v, got %v", tt.want, ids(out))
			}
			if step.Dropped != len(in)-len(tt.want) || len(step.Drops) != step.Dropped {
				t.Fatalf("unexpected step %+v", step)
			}
		})
	}
}

func TestExcludeFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "excluded.json")
	if err := os.WriteFile(path, []byte(`{"items":[{"id":"b","reason":"placed"},{"id":""}]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	in := []candidate.Scored{
		newCandidate("a", 0.9, nil),
		newCandidate("b", 0.8, nil),
	}

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{name: "no path", want: []string{"a", "b"}},
		{name: "listed id removed", path: path, want: []string{"a"}},
		{name: "empty file", path: empty, want: []string{"a", "b"}},
		{name: "missing file", path: filepath.Join(dir, "missing.json"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, step, err := NewExcludeFile(tt.path).Apply(context.Background(), Deps{}, nil, in)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(ids(out), ",") != strings.Join(tt.want, ",") {
				t.Fatalf("expected %v, got %v", tt.want, ids(out))
			}
			for _, d := range step.Drops {
				if d.Reason != "excluded by file" {
					t.Fatalf("unexpected reason %q", d.Reason)
				}
			}
		})
	}
}

func TestRejected(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	records := []feedback.Record{
		{ID: "1", Timestamp: "2026-01-09T00:00:00Z", CandidateID: "a", ContextID: "ctx", Type: feedback.Negative},
		{ID: "2", Timestamp: "2026-01-09T00:00:00Z", CandidateID: "b", ContextID: "other", Type: feedback.Negative},
		{ID: "3", Timestamp: "2026-01-09T00:00:00Z", CandidateName: "Kim", ContextID: "ctx", Type: feedback.Negative},
	}
	rc := &ranking.Context{
		ContextID: "ctx",
		Feedback:  feedback.BuildSnapshot(records, "ctx", feedback.SnapshotOptions{Now: now, GlobalWeight: 1}),
	}

	in := []candidate.Scored{
		newCandidate("a", 0.9, nil),
		newCandidate("b", 0.8, nil),
		newCandidate("c", 0.7, map[string]any{"name": "Kim"}),
	}

	out, _, err := NewRejected(true).Apply(context.Background(), Deps{}, rc, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(ids(out), ","); got != "b" {
		t.Fatalf("expected only b to survive, got %s", got)
	}

	if NewRejected(false).IsEnabled() {
		t.Fatal("expected the filter to be disabled by default")
	}
}

func TestMatrix(t *testing.T) {
	t.Parallel()

	req := requirements.Set{CanonicalRole: "Backend Engineer", CoreSignals: []string{"python"}}
	in := []candidate.Scored{
		newCandidate("a", 0.9, map[string]any{"title": "Senior Backend Engineer", "skills": "python, go"}),
		newCandidate("b", 0.8, map[string]any{"title": "Designer", "skills": []string{"Python"}}),
		newCandidate("c", 0.7, map[string]any{"title": "Designer", "skills": "figma"}),
	}

	tests := []struct {
		name       string
		confidence int
		want       []string
		dropped    []string
	}{
		{name: "base threshold", confidence: 60, want: []string{"a", "b"}, dropped: []string{"c"}},
		{name: "confident tightens", confidence: 85, want: []string{"a"}, dropped: []string{"b", "c"}},
		{name: "vague relaxes", confidence: 30, want: []string{"a", "b"}, dropped: []string{"c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := &ranking.Context{Requirements: req, Matrix: matrix.Universal(req), ConfidencePercent: tt.confidence}
			out, step, err := NewMatrix(2).Apply(context.Background(), Deps{}, rc, in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(ids(out), ",") != strings.Join(tt.want, ",") {
				t.Fatalf("expected %v, got %v", tt.want, ids(out))
			}
			var dropped []string
			for _, d := range step.Drops {
				dropped = append(dropped, d.Candidate.ID)
				if !d.Candidate.MatrixScored {
					t.Fatalf("dropped candidate %s carries no matrix score", d.Candidate.ID)
				}
			}
			if strings.Join(dropped, ",") != strings.Join(tt.dropped, ",") {
				t.Fatalf("expected drops %v, got %v", tt.dropped, dropped)
			}
		})
	}
}

func TestMatrixUnknownPredicateIsIssue(t *testing.T) {
	t.Parallel()

	rc := &ranking.Context{
		Matrix: matrix.ScoreMatrix{
			Name:          "broken",
			BaseThreshold: 1,
			Competencies:  []matrix.Competency{{Name: "Regex", Weight: 1, Predicate: matrix.Predicate{Kind: "regex"}}},
		},
		ConfidencePercent: 60,
	}
	in := []candidate.Scored{newCandidate("a", 0.9, nil)}

	out, step, err := NewMatrix(1).Apply(context.Background(), Deps{}, rc, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected the candidate to fall below the threshold")
	}
	if len(step.Issues) != 1 || !errors.Is(step.Issues[0].Err, matrix.ErrUnknownPredicate) {
		t.Fatalf("expected an unknown predicate issue, got %+v", step.Issues)
	}
}

func TestMatrixWithoutCompetenciesKeepsAll(t *testing.T) {
	t.Parallel()

	rc := &ranking.Context{Matrix: matrix.Universal(requirements.Set{})}
	in := []candidate.Scored{newCandidate("a", 0.9, nil)}

	out, _, err := NewMatrix(1).Apply(context.Background(), Deps{}, rc, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected the candidate to be kept, got %d", len(out))
	}
}

func TestRunSkipsDisabledAndStopsWhenEmpty(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	rc := &ranking.Context{Requirements: requirements.Set{ExplicitDisqualifiers: []string{"python"}}}
	in := []candidate.Scored{newCandidate("a", 0.9, map[string]any{"skills": "python"})}

	rejected := NewRejected(false)
	steps := []Filter{rejected, NewDisqualify(), NewSoft(SoftConfig{})}

	out, reports, err := Run(context.Background(), Deps{Logger: zap.New(core)}, rc, steps, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no candidates, got %d", len(out))
	}
	if len(reports) != 1 || reports[0].Name != "disqualify" {
		t.Fatalf("expected only the disqualify report, got %+v", reports)
	}
	if logs.FilterMessage("filter disabled").Len() != 1 {
		t.Fatal("expected the disabled filter to be logged")
	}

	statuses := Describe(steps)
	if statuses[0].Enabled || statuses[0].Reason == "" {
		t.Fatalf("expected a disabled status with a reason, got %+v", statuses[0])
	}
}
