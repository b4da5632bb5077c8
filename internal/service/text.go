package service

import "strings"

// cleanText drops invalid UTF-8 and NUL bytes, neither of which PostgreSQL
// accepts in text columns.
func cleanText(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.ReplaceAll(s, "\x00", "")
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n < 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
