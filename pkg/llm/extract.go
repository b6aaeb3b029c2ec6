package llm

import "strings"

// ExtractJSON pulls the JSON document out of a model completion. Models
// frequently wrap output in markdown code fences or add prose around the
// object; this trims to the outermost braces. If no object is found the text
// is returned as-is and the schema validator reports invalid_json.
func ExtractJSON(text string) []byte {
	s := strings.TrimSpace(text)

	// Strip a markdown code fence if the whole document is fenced.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return []byte(s)
}
