// Package local is an embedded brute-force vector index backed by badger.
// Namespaces are key prefixes; queries scan the namespace and rank by cosine similarity.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"reflect"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/spigell/candidate-ranker/internal/logger"
	"github.com/spigell/candidate-ranker/internal/retrieval"
)

const vectorPrefix = "vec"

type Index struct {
	db     *badger.DB
	logger *zap.Logger
}

// badgerLogger adapts zap to the badger.Logger interface.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.sugar.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.sugar.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.sugar.Debugf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.sugar.Debugf(msg, items...) }

// Open opens the index stored in dir, creating it when missing.
// An empty dir opens an in-memory index.
func Open(dir string, log *zap.Logger) (*Index, error) {
	log = logger.WithFields(log, zap.String("backend", "local"))

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}

	opts.Logger = &badgerLogger{sugar: log.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening local index: %w", err)
	}

	return &Index{db: db, logger: log}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

// Upsert stores vectors under namespace, replacing existing IDs.
func (i *Index) Upsert(ctx context.Context, namespace string, vectors []retrieval.Vector) error {
	wb := i.db.NewWriteBatch()
	defer wb.Cancel()

	for _, v := range vectors {
		if err := ctx.Err(); err != nil {
			return err
		}
		if v.ID == "" {
			return fmt.Errorf("vector without id")
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding vector %s: %w", v.ID, err)
		}
		if err := wb.Set(vectorKey(namespace, v.ID), data); err != nil {
			return fmt.Errorf("writing vector %s: %w", v.ID, err)
		}
	}

	if err := wb.Flush(); err != nil {
		return err
	}

	i.logger.Debug("upserted vectors", zap.String("namespace", namespace), zap.Int("count", len(vectors)))
	return nil
}

// Query ranks every vector of the namespace by cosine similarity.
// A nil namespace scans all namespaces.
func (i *Index) Query(ctx context.Context, q retrieval.Query) (*retrieval.Response, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	prefix := []byte(vectorPrefix + ":")
	if q.Namespace != nil {
		prefix = namespacePrefix(*q.Namespace)
	}

	var matches []retrieval.Match
	err := i.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var v retrieval.Vector
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			}); err != nil {
				i.logger.Warn("skipping undecodable vector", zap.ByteString("key", it.Item().KeyCopy(nil)), zap.Error(err))
				continue
			}

			if !matchesFilter(v.Metadata, q.Filter) {
				continue
			}

			matches = append(matches, retrieval.Match{
				ID:       v.ID,
				Score:    cosine(q.Vector, v.Values),
				Metadata: v.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if q.TopK > 0 && len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}

	resp := &retrieval.Response{Matches: matches}
	if q.Namespace != nil {
		resp.Namespace = *q.Namespace
	}
	return resp, nil
}

// namespacePrefix is length-prefixed so that "a" never matches keys of "a:b".
func namespacePrefix(namespace string) []byte {
	return []byte(fmt.Sprintf("%s:%d:%s:", vectorPrefix, len(namespace), namespace))
}

func vectorKey(namespace, id string) []byte {
	return append(namespacePrefix(namespace), id...)
}

// cosine returns 0 for mismatched or zero-length vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for k := range a {
		x, y := float64(a[k]), float64(b[k])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// matchesFilter supports plain equality plus the $eq and $in operators.
func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !matchesValue(got, want) {
			return false
		}
	}
	return true
}

func matchesValue(got, want any) bool {
	op, ok := want.(map[string]any)
	if !ok {
		return equal(got, want)
	}
	for name, arg := range op {
		switch name {
		case "$eq":
			if !equal(got, arg) {
				return false
			}
		case "$in":
			list, ok := arg.([]any)
			if !ok {
				return false
			}
			found := false
			for _, item := range list {
				if equal(got, item) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// equal compares JSON-decoded values, treating all numbers as float64.
func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
