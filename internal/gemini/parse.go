package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON tolerates the model wrapping its JSON answer in code fences
// or stray prose and returns the outermost array literal.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// parseTranslation decodes a positional string array; a length mismatch is
// a failure (callers fall back to the originals).
func parseTranslation(raw string, want int) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(extractJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("parse translation response: %w", err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("translation length mismatch: got %d, want %d", len(out), want)
	}
	return out, nil
}

// parseClassification decodes [{"id": n, "tags": [...]}] into a slice
// indexed by id. Ids the model omitted keep a nil tag list; ids outside
// 0..n-1 are dropped.
func parseClassification(raw string, n int) ([][]string, error) {
	var entries []struct {
		ID   int      `json:"id"`
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &entries); err != nil {
		return nil, fmt.Errorf("parse classification response: %w", err)
	}

	tags := make([][]string, n)
	for _, e := range entries {
		if e.ID < 0 || e.ID >= n {
			continue
		}
		tags[e.ID] = e.Tags
	}
	return tags, nil
}
