package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase words of letters and digits.
// snake_case and kebab-case identifiers split into their parts.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

// ftsQuery turns free text into an FTS5 MATCH expression: every token is
// quoted, so FTS5 operators in user input are matched literally. Returns ""
// when text holds no tokens.
func ftsQuery(text string) string {
	tokens := Tokenize(text)
	for i, t := range tokens {
		tokens[i] = `"` + t + `"`
	}
	return strings.Join(tokens, " ")
}
