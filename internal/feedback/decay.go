// Package feedback stores recruiter feedback on candidates and turns it into
// time-decayed ranking adjustments.
package feedback

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultHalfLifeDays is the decay constant used when none is configured.
const DefaultHalfLifeDays = 90.0

var ErrMalformedTimestamp = errors.New("malformed feedback timestamp")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

// Decay returns base*exp(-days/halfLifeDays) where days is the fractional time
// elapsed between timestamp and now, clamped at zero. An empty timestamp
// returns base. A malformed timestamp returns base and ErrMalformedTimestamp.
func Decay(base float64, timestamp string, halfLifeDays float64, now time.Time) (float64, error) {
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return base, nil
	}

	at, err := ParseTimestamp(timestamp)
	if err != nil {
		return base, err
	}

	return DecayAt(base, at, halfLifeDays, now), nil
}

// DecayAt is Decay for an already parsed time.
func DecayAt(base float64, at time.Time, halfLifeDays float64, now time.Time) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = DefaultHalfLifeDays
	}

	days := now.Sub(at).Hours() / 24
	if days < 0 {
		days = 0
	}

	return base * math.Exp(-days/halfLifeDays)
}

// ParseTimestamp accepts RFC3339 and the "YYYY-MM-DD HH:MM:SS" layouts the
// feedback log has used historically. Layouts without a zone are read as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, value)
}

// FormatTimestamp is the layout records are written with.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
