package llm

import "strings"

// ExtractJSON returns the outermost {...} block of text. Providers sometimes
// wrap the object in prose or a ```json fence even when asked not to.
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
