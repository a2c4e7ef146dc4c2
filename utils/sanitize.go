package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// CleanText strips all markup from admin-entered free text and trims it to max
// runes. The result is plain text, so entities the sanitizer emits are decoded.
func CleanText(input string, max int) string {
	out := strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(input)))
	if max > 0 {
		if r := []rune(out); len(r) > max {
			out = string(r[:max])
		}
	}
	return out
}
