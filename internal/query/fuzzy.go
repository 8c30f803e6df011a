package query

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxEdits returns the edit distance Elasticsearch's "AUTO" fuzziness
// allows for a term: exact match up to two characters, one edit up to five,
// two beyond that.
func MaxEdits(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// Terms lowercases s and splits it on anything that is not a letter or digit.
func Terms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
