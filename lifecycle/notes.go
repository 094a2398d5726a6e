package lifecycle

import (
	"strings"
	"unicode/utf8"
)

// DetailedNotes reports whether notes are substantial enough to stand in for
// missing documentation. Whitespace-only padding does not count.
func DetailedNotes(notes string, minLength, minWords int) bool {
	trimmed := strings.TrimSpace(notes)
	if trimmed == "" {
		return false
	}
	if utf8.RuneCountInString(trimmed) < minLength {
		return false
	}
	return len(strings.Fields(trimmed)) >= minWords
}
