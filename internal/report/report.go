// Package report renders ranking results for the terminal.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/feedback"
	"github.com/spigell/candidate-ranker/internal/pipeline"
	"github.com/spigell/candidate-ranker/internal/scoring"
)

const maxNameLength = 32

// Candidates writes the shortlist as a table. Identities in approved are
// marked as previously approved for this requisition.
func Candidates(w io.Writer, cands []candidate.Scored, approved []string) error {
	if len(cands) == 0 {
		fmt.Fprintln(w, "No candidates left after ranking.")
		return nil
	}

	seen := make(map[string]bool, len(approved))
	for _, id := range approved {
		seen[id] = true
	}

	table := tablewriter.NewWriter(w)
	table.Header("Rank", "ID", "Name", "Final", "RPL/Matrix", "Penalty", "Feedback", "Pass %", "Note")

	for i, c := range cands {
		note := ""
		if seen[c.ID] || (c.Profile.Name != "" && seen[c.Profile.Name]) {
			note = "previously approved"
		}

		if err := table.Append(
			fmt.Sprint(i+1),
			c.ID,
			truncate(c.Profile.Name, maxNameLength),
			fmt.Sprintf("%.1f", c.FinalScore),
			stageScore(c),
			penalty(c),
			feedbackDelta(c),
			passProbability(c),
			note,
		); err != nil {
			return fmt.Errorf("appending row for %s: %w", c.ID, err)
		}
	}

	return table.Render()
}

// Explanations prints each non-empty explanation under its candidate.
func Explanations(w io.Writer, cands []candidate.Scored) {
	printed := 0
	for i, c := range cands {
		if c.Explanation == "" {
			continue
		}
		printed++
		fmt.Fprintln(w, strings.Repeat("-", 60))
		fmt.Fprintf(w, "#%d %s", i+1, c.ID)
		if c.Profile.Name != "" {
			fmt.Fprintf(w, " (%s)", c.Profile.Name)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, c.Explanation)
	}
	if printed == 0 {
		fmt.Fprintln(w, "No explanations were generated.")
	}
}

// Summary writes the per-stage counts and the run outcome.
func Summary(w io.Writer, tr *pipeline.Trace) error {
	fmt.Fprintf(w, "Run %s: mode %s, strategy %s, confidence %d%%, matrix %s\n",
		tr.RunID, tr.Mode, tr.Strategy.Mode, tr.Confidence, tr.Matrix)

	table := tablewriter.NewWriter(w)
	table.Header("Stage", "Name", "Initial", "Dropped", "Left")
	for _, s := range tr.Steps {
		if err := table.Append(s.Stage, s.Name, fmt.Sprint(s.Initial), fmt.Sprint(s.Dropped), fmt.Sprint(s.Left)); err != nil {
			return fmt.Errorf("appending step %s: %w", s.Stage, err)
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if tr.ExitReason != "" {
		fmt.Fprintf(w, "Stopped at %s: %s\n", tr.ExitStage, tr.ExitReason)
	}
	for _, warn := range tr.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	for _, err := range tr.Errors {
		fmt.Fprintf(w, "error: %s\n", err)
	}
	return nil
}

// Feedback lists records, newest last, as stored.
func Feedback(w io.Writer, records []feedback.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No feedback recorded.")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Time", "Candidate", "Name", "Type", "Context", "Reason")
	for _, r := range records {
		if err := table.Append(r.Timestamp, r.CandidateID, r.CandidateName, string(r.Type), shortContext(r.ContextID), r.Reason); err != nil {
			return fmt.Errorf("appending record %s: %w", r.ID, err)
		}
	}
	return table.Render()
}

func shortContext(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func stageScore(c candidate.Scored) string {
	switch {
	case c.RPLScored:
		return fmt.Sprint(c.RPL.Total)
	case c.MatrixScored:
		return fmt.Sprintf("%d (m)", c.MatrixScore)
	default:
		return "-"
	}
}

func penalty(c candidate.Scored) string {
	if c.FilterPenalty == 0 {
		return "-"
	}
	return fmt.Sprintf("-%d", c.FilterPenalty)
}

func feedbackDelta(c candidate.Scored) string {
	if c.FeedbackDelta == 0 {
		return "-"
	}
	return fmt.Sprintf("%+.1f", c.FeedbackDelta)
}

func passProbability(c candidate.Scored) string {
	if !c.RPLScored {
		return "-"
	}
	return fmt.Sprintf("%d%%", scoring.PassProbability(c.RPL.Total))
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
