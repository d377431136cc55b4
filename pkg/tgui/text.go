package tgui

import "unicode/utf8"

// TruncRunes returns s cut to at most n runes, appending tail when cut.
func TruncRunes(s string, n int, tail string) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + tail
		}
		count++
	}
	return s
}

// RuneLen is utf8.RuneCountInString, kept here so callers need one import.
func RuneLen(s string) int { return utf8.RuneCountInString(s) }
