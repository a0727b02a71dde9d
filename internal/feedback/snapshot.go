package feedback

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// SnapshotOptions tunes how records are decayed and combined.
type SnapshotOptions struct {
	HalfLifeDays float64
	// GlobalWeight scales feedback left on other requirement contexts.
	GlobalWeight float64
	Now          time.Time
	Logger       *zap.Logger
}

// Snapshot is the immutable feedback view read once per ranking run.
type Snapshot struct {
	ContextID string
	Records   int
	Malformed int

	globalWeight float64
	contextual   map[string]float64
	global       map[string]float64
}

// Adjustment is the decayed feedback attributed to one candidate.
type Adjustment struct {
	Contextual float64
	Global     float64
}

// Total is the contextual sum plus the scaled global sum.
func (a Adjustment) Total() float64 {
	return a.Contextual + a.Global
}

// BuildSnapshot aggregates records by candidate identity. Records left on
// contextID count fully, all others are scaled by GlobalWeight.
func BuildSnapshot(records []Record, contextID string, opts SnapshotOptions) Snapshot {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	s := Snapshot{
		ContextID:    contextID,
		Records:      len(records),
		globalWeight: opts.GlobalWeight,
		contextual:   make(map[string]float64),
		global:       make(map[string]float64),
	}

	for _, r := range records {
		key := r.Identity()
		if key == "" {
			continue
		}

		w, err := Decay(r.Type.BaseWeight(), r.Timestamp, opts.HalfLifeDays, now)
		if err != nil {
			s.Malformed++
			logger.Warn("using full feedback weight",
				zap.String("record_id", r.ID),
				zap.String("candidate", key),
				zap.Error(err),
			)
		}

		if contextID != "" && r.ContextID == contextID {
			s.contextual[key] += w
			continue
		}
		s.global[key] += w
	}

	return s
}

// LoadSnapshot reads every record from store and builds the snapshot.
func LoadSnapshot(ctx context.Context, store Store, contextID string, opts SnapshotOptions) (Snapshot, error) {
	records, err := store.List(ctx, Filter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing feedback: %w", err)
	}
	return BuildSnapshot(records, contextID, opts), nil
}

// For returns the adjustment for a candidate known by id and display name.
// Records keyed by name only are added when the name differs from the id.
func (s Snapshot) For(id, name string) Adjustment {
	var adj Adjustment
	for _, key := range identities(id, name) {
		adj.Contextual += s.contextual[key]
		adj.Global += s.global[key] * s.globalWeight
	}
	return adj
}

// Rejected reports net-negative feedback on the snapshot's own context.
func (s Snapshot) Rejected(id, name string) bool {
	total := 0.0
	seen := false
	for _, key := range identities(id, name) {
		if w, ok := s.contextual[key]; ok {
			total += w
			seen = true
		}
	}
	return seen && total < 0
}

// Empty reports whether the snapshot carries any feedback.
func (s Snapshot) Empty() bool {
	return len(s.contextual) == 0 && len(s.global) == 0
}

// SuccessfulFor returns the identities with positive feedback on contextID, sorted.
func SuccessfulFor(records []Record, contextID string) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		if r.ContextID != contextID || r.Type != Positive || r.Identity() == "" {
			continue
		}
		seen[r.Identity()] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func identities(id, name string) []string {
	switch {
	case id == "" && name == "":
		return nil
	case id == "":
		return []string{name}
	case name == "" || name == id:
		return []string{id}
	default:
		return []string{id, name}
	}
}
