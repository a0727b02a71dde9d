package filtering

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/ranking"
)

// ExcludedCandidates is the on-disk exclusion list.
type ExcludedCandidates struct {
	Items []ExcludedCandidate `json:"items"`
}

type ExcludedCandidate struct {
	ID     string `json:"id"`
	Reason string `json:"reason,omitempty"`
}

// IDs returns the non-empty candidate IDs of the list.
func (e *ExcludedCandidates) IDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		if id := strings.TrimSpace(item.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ReadExcludedFile reads an exclusion list. An empty file is an empty list.
func ReadExcludedFile(path string) (*ExcludedCandidates, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedCandidates{}, nil
	}

	var excluded ExcludedCandidates
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

type excludeFileFilter struct {
	toggle
	path string
}

// NewExcludeFile creates a filter that removes candidates listed in an exclusion file.
// An empty path turns the filter into a no-op.
func NewExcludeFile(path string) Filter {
	return &excludeFileFilter{path: strings.TrimSpace(path)}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Validate() error { return nil }

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, _ *ranking.Context, in []candidate.Scored) ([]candidate.Scored, Step, error) {
	initial := len(in)
	if f.path == "" {
		return in, Step{Initial: initial, Left: initial}, nil
	}

	excluded, err := ReadExcludedFile(f.path)
	if err != nil {
		return in, Step{}, fmt.Errorf("getting excluded candidates from file: %w", err)
	}

	ids := make(map[string]struct{})
	for _, id := range excluded.IDs() {
		ids[id] = struct{}{}
	}

	out, drops := partition(in, func(c candidate.Scored) string {
		if _, ok := ids[c.ID]; ok {
			return "excluded by file"
		}
		return ""
	})

	if len(drops) > 0 {
		deps.logger().Info("excluding candidates based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_candidates", dropIDs(drops)),
			zap.Int("candidates_left", len(out)),
		)
	}

	return out, dropStep(initial, out, drops), nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
