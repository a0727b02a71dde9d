package ai

import (
	_ "embed"
	"strings"
	"unicode/utf8"
)

// ExtractionPrompt is the system instruction for requirement extraction.
//
//go:embed prompt.md
var ExtractionPrompt string

// MaxRequisitionRunes bounds the requisition text sent to a model.
const MaxRequisitionRunes = 4000

// ExtractionMessage is the user message carrying the requisition.
func ExtractionMessage(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxRequisitionRunes {
		text = string([]rune(text)[:MaxRequisitionRunes])
	}
	return "Analyze this job description:\n" + text
}

// ExtractJSON strips markdown fences and any prose around the outermost object.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		raw = raw[start : end+1]
	}
	return strings.TrimSpace(raw)
}
