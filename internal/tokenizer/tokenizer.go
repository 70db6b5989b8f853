// Package tokenizer normalizes raw text into a positional token stream.
// It only performs the structural half of normalization (lowercasing and
// splitting on non-alphanumeric boundaries); significance filtering
// (stopwords, short tokens, all-digit tokens) is the lexicon's concern,
// since which tokens are "significant" depends on a stopword set that can
// be loaded from a file at runtime.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token is a single normalized term and its 0-based position within the
// stream it was extracted from (title or body, counted independently).
type Token struct {
	Term     string
	Position int
}

// Tokenize lower-cases text and splits it on runs of non-alphanumeric
// characters, returning every resulting token with its position in the
// stream. Nothing is filtered out here: doc_length counts every token
// this function returns, whether or not it ends up in the lexicon.
func Tokenize(text string) []Token {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, len(fields))
	for i, f := range fields {
		tokens[i] = Token{Term: f, Position: i}
	}
	return tokens
}

// Terms returns just the term strings from Tokenize, in order.
func Terms(text string) []string {
	toks := Tokenize(text)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Term
	}
	return out
}

// IsAllDigits reports whether every rune in s is a decimal digit. An empty
// string is not considered all-digit.
func IsAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
