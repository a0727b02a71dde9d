// Package retrieval defines the vector-search collaborator and the helpers the
// pipeline wraps around it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ErrNoMatches is returned when every namespace came back empty.
var ErrNoMatches = errors.New("no matches")

// Match is one nearest-neighbor hit.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Response struct {
	Matches   []Match `json:"matches"`
	Namespace string  `json:"namespace,omitempty"`
}

// Query is a nearest-neighbor request. A nil Namespace means the backend default.
type Query struct {
	Vector    []float32
	TopK      int
	Namespace *string
	Filter    map[string]any
}

type Retriever interface {
	Query(ctx context.Context, q Query) (*Response, error)
}

// Vector is a stored embedding with its profile metadata.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Upserter writes vectors into an index.
type Upserter interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
}

// Index is a backend that can both be searched and written to.
type Index interface {
	Retriever
	Upserter
	Close() error
}

// Attempt records one namespace tried by QueryWithFallback.
type Attempt struct {
	Namespace string `json:"namespace"`
	Matches   int    `json:"matches"`
	Err       error  `json:"-"`
	Error     string `json:"error,omitempty"`
}

// NamespaceLabel renders a namespace for logs and traces.
func NamespaceLabel(ns *string) string {
	switch {
	case ns == nil:
		return "<unset>"
	case *ns == "":
		return "<default>"
	default:
		return *ns
	}
}

// Namespaces returns the fallback order: the configured one, then the empty
// namespace, then no namespace at all.
func Namespaces(configured string) []*string {
	empty := ""
	out := make([]*string, 0, 3)
	if configured != "" {
		out = append(out, &configured)
	}
	return append(out, &empty, nil)
}

// QueryWithFallback tries every namespace of Namespaces(configured) until one
// returns matches. Errors and empty responses move on to the next namespace.
// Matches are deduplicated by ID.
func QueryWithFallback(ctx context.Context, logger *zap.Logger, r Retriever, q Query, configured string) (*Response, []Attempt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		attempts []Attempt
		errs     []error
	)

	for _, ns := range Namespaces(configured) {
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}

		q.Namespace = ns
		label := NamespaceLabel(ns)

		resp, err := r.Query(ctx, q)
		if err != nil {
			attempts = append(attempts, Attempt{Namespace: label, Err: err, Error: err.Error()})
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, attempts, ctxErr
			}
			errs = append(errs, fmt.Errorf("namespace %s: %w", label, err))
			logger.Warn("retrieval failed, trying next namespace",
				zap.String("namespace", label),
				zap.Error(err),
			)
			continue
		}

		n := 0
		if resp != nil {
			n = len(resp.Matches)
		}
		attempts = append(attempts, Attempt{Namespace: label, Matches: n})
		logger.Debug("retrieval attempt", zap.String("namespace", label), zap.Int("matches", n))

		if n == 0 {
			continue
		}

		resp.Matches = Dedupe(resp.Matches)
		if ns != nil {
			resp.Namespace = *ns
		}
		return resp, attempts, nil
	}

	if len(errs) == len(attempts) && len(errs) > 0 {
		return nil, attempts, errors.Join(errs...)
	}
	return nil, attempts, ErrNoMatches
}

// Dedupe keeps the highest-scoring match per ID, ordered by score descending
// and then by first appearance.
func Dedupe(matches []Match) []Match {
	index := make(map[string]int, len(matches))
	out := make([]Match, 0, len(matches))

	for _, m := range matches {
		if i, ok := index[m.ID]; ok {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// FitDimension truncates vectors longer than dim. A shorter vector is an error.
// dim <= 0 disables the check.
func FitDimension(vector []float32, dim int) ([]float32, bool, error) {
	if dim <= 0 || len(vector) == dim {
		return vector, false, nil
	}
	if len(vector) < dim {
		return nil, false, fmt.Errorf("query vector has %d dimensions, index expects %d", len(vector), dim)
	}
	return vector[:dim], true, nil
}
