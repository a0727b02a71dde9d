// Package ingest loads candidate profiles from JSON lines into a vector index.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/candidate-ranker/internal/ai"
	"github.com/spigell/candidate-ranker/internal/candidate"
	"github.com/spigell/candidate-ranker/internal/lexicon"
	"github.com/spigell/candidate-ranker/internal/retrieval"
)

const (
	defaultWorkers = 4
	maxLineBytes   = 4 << 20
)

// Line is one profile record of the input file.
type Line struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector,omitempty"`
	Metadata map[string]any `json:"metadata"`
}

// Read decodes JSON lines. Blank lines are skipped; a malformed line fails the read.
func Read(r io.Reader) ([]Line, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		lines []Line
		n     int
	)
	for scanner.Scan() {
		n++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var line Line
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if strings.TrimSpace(line.ID) == "" {
			return nil, fmt.Errorf("line %d: id is required", n)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading profiles: %w", err)
	}

	return lines, nil
}

// Ingester turns lines into vectors and writes them to an index.
type Ingester struct {
	index    retrieval.Upserter
	embedder ai.Embedder
	lexicon  *lexicon.Lexicon
	workers  int
	logger   *zap.Logger
}

// New returns an Ingester. embedder may be nil when every line carries a vector.
func New(index retrieval.Upserter, embedder ai.Embedder, lex *lexicon.Lexicon, workers int, log *zap.Logger) *Ingester {
	if lex == nil {
		lex = lexicon.Default()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{index: index, embedder: embedder, lexicon: lex, workers: workers, logger: log}
}

// Prepare fills missing vectors and role clusters.
func (i *Ingester) Prepare(ctx context.Context, lines []Line) ([]retrieval.Vector, error) {
	out := make([]retrieval.Vector, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.workers)

	for n, line := range lines {
		g.Go(func() error {
			metadata := i.enrich(line)

			values := line.Vector
			if len(values) == 0 {
				if i.embedder == nil {
					return fmt.Errorf("profile %s has no vector and no embedder is configured", line.ID)
				}
				text := DocumentText(line.ID, metadata)
				if text == "" {
					return fmt.Errorf("profile %s has no vector and nothing to embed", line.ID)
				}
				v, err := i.embedder.Embed(gctx, text)
				if err != nil {
					return fmt.Errorf("embedding profile %s: %w", line.ID, err)
				}
				values = v
			}

			out[n] = retrieval.Vector{ID: line.ID, Values: values, Metadata: metadata}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Run prepares lines and upserts them into namespace.
func (i *Ingester) Run(ctx context.Context, namespace string, lines []Line) (int, error) {
	if len(lines) == 0 {
		return 0, errors.New("no profiles to ingest")
	}

	vectors, err := i.Prepare(ctx, lines)
	if err != nil {
		return 0, err
	}

	if err := i.index.Upsert(ctx, namespace, vectors); err != nil {
		return 0, fmt.Errorf("upserting profiles: %w", err)
	}

	i.logger.Info("profiles ingested",
		zap.Int("count", len(vectors)),
		zap.String("namespace", namespace),
	)
	return len(vectors), nil
}

func (i *Ingester) enrich(line Line) map[string]any {
	metadata := make(map[string]any, len(line.Metadata)+1)
	for k, v := range line.Metadata {
		metadata[k] = v
	}

	if cluster, _ := metadata["role_cluster"].(string); cluster != "" {
		return metadata
	}
	if title, _ := metadata["title"].(string); title != "" {
		if cluster := i.lexicon.RoleCluster(title); cluster != "" {
			metadata["role_cluster"] = cluster
			i.logger.Debug("role cluster assigned",
				zap.String("candidate_id", line.ID),
				zap.String("title", title),
				zap.String("role_cluster", cluster),
			)
		}
	}
	return metadata
}

// DocumentText is the text embedded for a profile without a vector:
// summary, title and skills.
func DocumentText(id string, metadata map[string]any) string {
	profile, _ := candidate.Decode(id, metadata)

	parts := make([]string, 0, 3)
	if profile.Summary != "" {
		parts = append(parts, profile.Summary)
	}
	if profile.Title != "" {
		parts = append(parts, profile.Title)
	}
	if len(profile.Skills) > 0 {
		parts = append(parts, strings.Join(profile.Skills, ", "))
	}
	return strings.Join(parts, "\n")
}
