package grading

import "strings"

// normalize trims surrounding whitespace and casefolds for fill-in-blank
// comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// equalFold compares trimmed strings case-insensitively.
func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
