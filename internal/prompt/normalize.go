package prompt

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize returns the comparison key for a category name:
// trimmed, lowercased, internal whitespace collapsed to single spaces.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
