package capability

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Canonicalize normalizes text for comparison and de-duplication: NFKC,
// lower case, apostrophes removed, whitespace collapsed, trailing
// punctuation stripped.
func Canonicalize(text string) string {
	s := norm.NFKC.String(text)
	// Casers are stateful; one per call keeps this safe for concurrent use.
	s = cases.Lower(language.Und).String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// Tokens splits canonical text into letter/digit runs.
func Tokens(text string) []string {
	return strings.FieldsFunc(Canonicalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet returns the set of tokens.
func TokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// SharesToken reports whether any of tokens is in set.
func SharesToken(tokens []string, set map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}
