package utils

import "strings"

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// SingleLine collapses newlines and runs of whitespace so previews stay on one log line.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
