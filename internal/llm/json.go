package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSON is returned when a response holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

// DecodeJSON unmarshals model output into v. Code fences are stripped and,
// if the text still is not valid JSON, the outermost {...} span is tried.
func DecodeJSON(text string, v any) error {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return ErrNoJSON
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines)
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx <= 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
