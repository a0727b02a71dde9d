package requirements

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

var schemaLoader = gojsonschema.NewStringLoader(schemaJSON)

// ErrInvalidSchema is returned when a payload does not match the requirement set schema.
var ErrInvalidSchema = errors.New("requirement set does not match schema")

// ParseJSON validates data against the requirement set schema and returns the normalized set.
// Absent fields default to their zero values.
func ParseJSON(data []byte) (*Set, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errors.New("requirement set payload is empty")
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validating requirement set: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(msgs, "; "))
	}

	var w wireSet
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decoding requirement set: %w", err)
	}

	set := w.Set
	set.ConfidenceScore = percent(w.ConfidenceScore)
	set.YearsRange = YearsRange{Min: round(w.YearsRange.Min), Max: round(w.YearsRange.Max)}

	normalized := set.Normalize()
	return &normalized, nil
}

// wireSet accepts fractional numbers where models tend to emit them.
type wireSet struct {
	Set
	YearsRange struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	} `json:"years_range"`
	ConfidenceScore *float64 `json:"confidence_score"`
}

// percent reads values in (0, 1] as fractions and rounds everything else.
func percent(v *float64) int {
	if v == nil {
		return 0
	}
	if *v > 0 && *v <= 1 {
		return int(math.Round(*v * 100))
	}
	return int(math.Round(*v))
}

func round(v *float64) *int {
	if v == nil {
		return nil
	}
	return IntPtr(int(math.Round(*v)))
}
