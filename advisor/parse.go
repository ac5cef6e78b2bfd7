package advisor

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// ParseSuggestions keeps the trimmed lines of text that start with a digit
// from 1 to 9, in order, with any HTML markup removed. "10." and later
// items match through their leading "1".
func ParseSuggestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '1' || line[0] > '9' {
			continue
		}
		clean := strings.TrimSpace(html.UnescapeString(strict.Sanitize(line)))
		if clean == "" {
			continue
		}
		out = append(out, clean)
	}
	return out
}
