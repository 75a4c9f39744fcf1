package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeKey folds a query string or platform identifier into a stable
// cache key: lowercased, trimmed, inner whitespace collapsed to single spaces.
func NormalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.Trim(key, " \n\t")
	key = whitespaceRegex.ReplaceAllString(key, " ")
	return key
}

// CollapseSpace trims a scraped text node and collapses runs of whitespace,
// keeping the original casing.
func CollapseSpace(s string) string {
	s = strings.Trim(s, " \n\t")
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// MatchAny reports whether the normalized form of s contains any of the
// given markers.
func MatchAny(s string, markers []string) bool {
	s = NormalizeKey(s)
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
