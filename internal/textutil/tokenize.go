package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Tokens shorter than minLen runes are dropped.
func Tokenize(text string, minLen int) []string {
	raw := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if minLen <= 1 {
		return raw
	}
	terms := raw[:0]
	for _, token := range raw {
		if utf8.RuneCountInString(token) < minLen {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}
