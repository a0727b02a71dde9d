package candidate

import (
	"reflect"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	metadata := map[string]any{
		"name":         "Kim",
		"summary":      "Python Django developer",
		"skills":       "python, django , ,aws",
		"total_years":  "7",
		"role_cluster": "TECH_PLATFORM",
		"title":        "Backend Engineer",
		"unrelated":    map[string]any{"x": 1},
	}

	profile, err := Decode("c-1", metadata)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if profile.ID != "c-1" {
		t.Fatalf("expected id from match, got %q", profile.ID)
	}
	if profile.TotalYears != 7 {
		t.Fatalf("expected weakly typed years 7, got %d", profile.TotalYears)
	}
	if want := []string{"python", "django", "aws"}; !reflect.DeepEqual(profile.Skills, want) {
		t.Fatalf("expected skills %v, got %v", want, profile.Skills)
	}
	if !profile.HasSkill("Django") {
		t.Fatalf("expected case-insensitive skill lookup")
	}
}

func TestDecodeMalformedKeepsPartialProfile(t *testing.T) {
	t.Parallel()

	profile, err := Decode("c-2", map[string]any{
		"title":       "PM",
		"total_years": "many",
		"skills":      []any{"sql", "roadmap"},
	})
	if err == nil {
		t.Fatalf("expected decode error for non-numeric years")
	}
	if profile.Title != "PM" || len(profile.Skills) != 2 {
		t.Fatalf("expected remaining fields to decode, got %+v", profile)
	}
	if profile.TotalYears != 0 {
		t.Fatalf("expected zero years on failure, got %d", profile.TotalYears)
	}
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	text := Flatten(map[string]any{
		"summary": "Python Django Developer",
		"skills":  []any{"AWS", "Docker"},
		"years":   float64(5),
		"empty":   nil,
	})

	for _, want := range []string{"python django developer", "aws", "docker", "5"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
	if strings.Contains(text, "summary") {
		t.Fatalf("keys must not be part of the flattened text: %q", text)
	}
}

func TestScoredIsCopyOnWrite(t *testing.T) {
	t.Parallel()

	base := New("c-1", 0.8, map[string]any{"title": "Engineer"}, 0)
	first := base.WithPenalty(10, "Years < 5")
	second := first.WithPenalty(5, "Role Mismatch (design)")
	ignored := second.WithPenalty(-3, "negative")

	if base.FilterPenalty != 0 || len(base.PenaltyReasons) != 0 {
		t.Fatalf("base value was mutated: %+v", base)
	}
	if first.FilterPenalty != 10 || len(first.PenaltyReasons) != 1 {
		t.Fatalf("unexpected first stage value: %+v", first)
	}
	if second.FilterPenalty != 15 || len(second.PenaltyReasons) != 2 {
		t.Fatalf("unexpected second stage value: %+v", second)
	}
	if ignored.FilterPenalty != 15 {
		t.Fatalf("negative penalties must be ignored")
	}

	matched := []string{"Core Role"}
	withMatrix := second.WithMatrix(3, matched)
	matched[0] = "changed"
	if withMatrix.MatrixReasons[0] != "Core Role" {
		t.Fatalf("matrix reasons must not alias the caller slice")
	}
}

func TestStageScore(t *testing.T) {
	t.Parallel()

	s := New("c", 0.5, nil, 0)
	if s.StageScore() != 50 {
		t.Fatalf("expected vector fallback 50, got %v", s.StageScore())
	}

	s = s.WithMatrix(6, nil)
	if s.StageScore() != 6 {
		t.Fatalf("expected matrix score 6, got %v", s.StageScore())
	}

	s = s.WithRPL(Breakdown{Total: 42})
	if s.StageScore() != 42 {
		t.Fatalf("expected rpl score 42, got %v", s.StageScore())
	}
}
