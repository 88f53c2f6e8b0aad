package extraction

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// parseCandidatesJSON parses a model reply into candidate records.
// The reply should be a JSON array of objects; a lone object is accepted too.
func parseCandidatesJSON(text string) ([]Candidate, error) {
	text = stripCodeFence(text)

	start := strings.IndexAny(text, "[{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON found in response")
	}

	closer := "]"
	if text[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(text, closer)
	if end < start {
		return nil, fmt.Errorf("invalid JSON in response")
	}
	text = text[start : end+1]

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	switch v := parsed.(type) {
	case map[string]any:
		return []Candidate{Candidate(v)}, nil
	case []any:
		candidates := make([]Candidate, 0, len(v))
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				slog.Warn("Dropping malformed candidate", "index", i, "type", fmt.Sprintf("%T", item))
				continue
			}
			candidates = append(candidates, Candidate(obj))
		}
		return candidates, nil
	default:
		return nil, fmt.Errorf("unexpected JSON type %T", parsed)
	}
}

// stripCodeFence removes Markdown code fences the model may wrap around JSON
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx != -1 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```json")
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
