package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeTag lowercases and trims a tag the way the extraction
// layer expects: no surrounding whitespace, single spaces inside.
func NormalizeTag(tag string) string {
	tag = strings.ToLower(tag)
	tag = strings.Trim(tag, " \n\t")
	return whitespaceRegex.ReplaceAllString(tag, " ")
}

// NormalizeName flattens a display name for matching purposes,
// removing all whitespace entirely.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	return whitespaceRegex.ReplaceAllString(name, "")
}

// ContainsAny reports whether text contains any of the keywords,
// case-insensitively.
func ContainsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(text, strings.ToLower(k)) {
			return true
		}
	}
	return false
}
