package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spigell/candidate-ranker/internal/filtering"
	"github.com/spigell/candidate-ranker/internal/retrieval"
	"github.com/spigell/candidate-ranker/internal/strategy"
)

// Stage names as they appear in the trace.
const (
	StageExtract    = "extract"
	StageRetrieve   = "retrieve"
	StageDisqualify = "disqualify"
	StageExclude    = "exclude"
	StageSoft       = "soft"
	StageScore      = "score"
	StageExplain    = "explain"
	StageAdjust     = "adjust"
	StageSort       = "sort"
)

// StageError is a non-fatal failure attributed to a stage and, optionally, a candidate.
type StageError struct {
	Stage       string
	CandidateID string
	Err         error
}

func (e *StageError) Error() string {
	if e.CandidateID == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: candidate %s: %v", e.Stage, e.CandidateID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Stage       string `json:"stage"`
		CandidateID string `json:"candidate_id,omitempty"`
		Error       string `json:"error"`
	}{e.Stage, e.CandidateID, msg})
}

// StepRecord is the size bookkeeping of one stage.
type StepRecord struct {
	Stage   string `json:"stage"`
	Name    string `json:"name,omitempty"`
	Initial int    `json:"initial"`
	Dropped int    `json:"dropped"`
	Left    int    `json:"left"`
}

// Trace is the structured record of one ranking run.
type Trace struct {
	mu sync.Mutex

	RunID             string          `json:"run_id"`
	ContextID         string          `json:"context_id"`
	StartedAt         time.Time       `json:"started_at"`
	Duration          time.Duration   `json:"duration"`
	Mode              Mode            `json:"mode"`
	Strategy          strategy.Config `json:"strategy"`
	Confidence        int             `json:"confidence"`
	ConfidenceReasons []string        `json:"confidence_reasons,omitempty"`
	Matrix            string          `json:"matrix"`
	MatrixThreshold   int             `json:"matrix_threshold,omitempty"`

	Namespace string              `json:"namespace,omitempty"`
	Attempts  []retrieval.Attempt `json:"attempts,omitempty"`

	Steps    []StepRecord      `json:"steps"`
	Entries  []string          `json:"entries,omitempty"`
	Dropped  map[string]string `json:"dropped,omitempty"`
	Rescued  []string          `json:"rescued,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []*StageError     `json:"errors,omitempty"`

	// ExitReason is set when a stage left nothing to rank.
	ExitStage  string `json:"exit_stage,omitempty"`
	ExitReason string `json:"exit_reason,omitempty"`
}

func (t *Trace) step(stage, name string, initial, left int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Steps = append(t.Steps, StepRecord{Stage: stage, Name: name, Initial: initial, Dropped: initial - left, Left: left})
}

func (t *Trace) entry(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Entries = append(t.Entries, fmt.Sprintf(format, args...))
}

func (t *Trace) warn(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Warnings = append(t.Warnings, fmt.Sprintf(format, args...))
}

func (t *Trace) fail(stage, candidateID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Errors = append(t.Errors, &StageError{Stage: stage, CandidateID: candidateID, Err: err})
}

func (t *Trace) drop(id, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Dropped == nil {
		t.Dropped = make(map[string]string)
	}
	t.Dropped[id] = reason
}

func (t *Trace) exit(stage, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ExitStage = stage
	t.ExitReason = reason
}

// report copies a filtering step into the trace.
func (t *Trace) report(stage string, r filtering.Report) {
	t.step(stage, r.Name, r.Step.Initial, r.Step.Left)
	for _, d := range r.Step.Drops {
		t.drop(d.Candidate.ID, d.Reason)
	}
	for _, issue := range r.Step.Issues {
		t.fail(stage, issue.CandidateID, issue.Err)
	}
	for _, e := range r.Step.Entries {
		t.entry("%s", e)
	}
}

// Save writes the trace as indented JSON.
func (t *Trace) Save(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing trace: %w", err)
	}
	return nil
}
