package core

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase words on any non letter/digit rune.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
