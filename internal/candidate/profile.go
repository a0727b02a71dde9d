// Package candidate models candidate profiles as returned by retrieval and the
// per-run scored values built from them.
package candidate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Profile is the typed view of a retrieval metadata bag. It is read-only.
type Profile struct {
	ID          string   `mapstructure:"id" json:"id"`
	Name        string   `mapstructure:"name" json:"name,omitempty"`
	Summary     string   `mapstructure:"summary" json:"summary,omitempty"`
	Skills      []string `mapstructure:"skills" json:"skills,omitempty"`
	TotalYears  int      `mapstructure:"total_years" json:"total_years,omitempty"`
	RoleCluster string   `mapstructure:"role_cluster" json:"role_cluster,omitempty"`
	Title       string   `mapstructure:"title" json:"title,omitempty"`
}

// Decode converts metadata into a Profile. Values are weakly typed so that
// "5" decodes as 5 and "go, sql" decodes as a two-element skill list.
// On error the partially decoded profile is still returned.
func Decode(id string, metadata map[string]any) (Profile, error) {
	var profile Profile

	cfg := &mapstructure.DecoderConfig{
		Result:           &profile,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return profile, fmt.Errorf("building metadata decoder: %w", err)
	}

	decodeErr := decoder.Decode(metadata)

	if id != "" {
		profile.ID = id
	}
	profile.Skills = trimAll(profile.Skills)

	if decodeErr != nil {
		return profile, fmt.Errorf("decoding metadata of %s: %w", profile.ID, decodeErr)
	}

	return profile, nil
}

// HasSkill reports whether the skill list contains kw, ignoring case.
func (p Profile) HasSkill(kw string) bool {
	for _, skill := range p.Skills {
		if strings.EqualFold(skill, kw) {
			return true
		}
	}
	return false
}

// DisplayName is the name when present, the ID otherwise.
func (p Profile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return p.ID
}

// Flatten renders every metadata value as lowercase text, keys excluded,
// in key order.
func Flatten(metadata map[string]any) string {
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		writeValue(&b, metadata[k])
	}

	return strings.ToLower(strings.TrimSpace(b.String()))
}

func writeValue(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		return
	case string:
		if val == "" {
			return
		}
		b.WriteString(val)
	case []string:
		for _, item := range val {
			writeValue(b, item)
		}
		return
	case []any:
		for _, item := range val {
			writeValue(b, item)
		}
		return
	case map[string]any:
		b.WriteString(Flatten(val))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	case bool:
		b.WriteString(strconv.FormatBool(val))
	default:
		fmt.Fprintf(b, "%v", val)
	}
	b.WriteString(" ")
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
