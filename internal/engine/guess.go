package engine

import "strings"

// NormalizeGuess canonicalizes a guess or secret answer for comparison:
// surrounding whitespace is ignored and matching is case-insensitive.
// Interior whitespace is significant ("einste in" != "einstein").
func NormalizeGuess(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatchGuess reports whether a submitted guess matches the secret answer.
func MatchGuess(guess, secret string) bool {
	return NormalizeGuess(guess) == NormalizeGuess(secret)
}
