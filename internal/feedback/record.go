package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type is the polarity of a feedback record.
type Type string

const (
	Positive Type = "positive"
	Negative Type = "negative"
)

// ParseType accepts the polarity names plus a few common synonyms.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "pos", "+", "up", "like":
		return Positive, nil
	case "negative", "neg", "-", "down", "dislike":
		return Negative, nil
	default:
		return "", fmt.Errorf("unknown feedback type %q", s)
	}
}

// BaseWeight is the undecayed contribution of a record.
func (t Type) BaseWeight() float64 {
	switch t {
	case Positive:
		return 1
	case Negative:
		return -1
	default:
		return 0
	}
}

// Record is one immutable entry of the feedback log.
type Record struct {
	ID            string `json:"id"`
	Timestamp     string `json:"timestamp"`
	CandidateID   string `json:"candidate_id,omitempty"`
	CandidateName string `json:"candidate,omitempty"`
	ContextID     string `json:"context_id"`
	Type          Type   `json:"type"`
	Reason        string `json:"reason,omitempty"`
}

// NewRecord stamps a record with a fresh ID and the current time.
func NewRecord(candidateID, candidateName, contextID string, typ Type, reason string) Record {
	return Record{
		ID:            uuid.NewString(),
		Timestamp:     FormatTimestamp(time.Now()),
		CandidateID:   strings.TrimSpace(candidateID),
		CandidateName: strings.TrimSpace(candidateName),
		ContextID:     strings.TrimSpace(contextID),
		Type:          typ,
		Reason:        strings.TrimSpace(reason),
	}
}

// Identity is the key records aggregate under: the ID, falling back to the name.
func (r Record) Identity() string {
	if r.CandidateID != "" {
		return r.CandidateID
	}
	return r.CandidateName
}

// Validate rejects records that can never be attributed to a candidate.
func (r Record) Validate() error {
	if r.Identity() == "" {
		return errors.New("feedback record needs a candidate id or name")
	}
	if r.Type != Positive && r.Type != Negative {
		return fmt.Errorf("feedback record has invalid type %q", r.Type)
	}
	return nil
}

// Filter narrows List results. A zero Filter returns every record.
type Filter struct {
	ContextID string
}

// Store is an append-only feedback log.
type Store interface {
	Append(ctx context.Context, r Record) error
	List(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}
