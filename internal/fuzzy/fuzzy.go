// Package fuzzy provides the normalised string similarity scores used to
// pair entities and glossary terms.
//
// All scores lie in [0, 1] and are built on Levenshtein edit distance:
//
//   - [Ratio] compares two strings after lower-casing and collapsing
//     punctuation to spaces.
//   - [TokenSortRatio] additionally sorts the tokens, so word order does not
//     matter ("Draghi Mario" scores 1 against "Mario Draghi").
//   - [WeightedRatio] is the larger of the two.
package fuzzy

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Normalize lower-cases s, turns every rune that is not a letter or digit
// into a space, and collapses runs of spaces.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Ratio returns 1 - distance/maxLen on the normalised strings. Two strings
// that normalise to empty score 0.
func Ratio(a, b string) float64 {
	return ratio(Normalize(a), Normalize(b))
}

// TokenSortRatio is [Ratio] computed over the alphabetically sorted tokens
// of each string.
func TokenSortRatio(a, b string) float64 {
	return ratio(sortTokens(a), sortTokens(b))
}

// WeightedRatio returns the larger of [Ratio] and [TokenSortRatio].
func WeightedRatio(a, b string) float64 {
	return max(Ratio(a, b), TokenSortRatio(a, b))
}

func ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(longest)
}

func sortTokens(s string) string {
	toks := strings.Fields(Normalize(s))
	slices.Sort(toks)
	return strings.Join(toks, " ")
}

// ExtractOne returns the index of the choice with the highest
// [TokenSortRatio] against query, provided it reaches floor. Ties keep the
// earliest choice.
func ExtractOne(query string, choices []string, floor float64) (int, float64, bool) {
	best, bestScore := -1, 0.0
	for i, c := range choices {
		if s := TokenSortRatio(query, c); s >= floor && s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return -1, 0, false
	}
	return best, bestScore, true
}

// Windows returns every run of n consecutive whitespace-separated tokens of
// text, joined by single spaces.
func Windows(text string, n int) []string {
	toks := strings.Fields(text)
	if n <= 0 || n > len(toks) {
		return nil
	}
	out := make([]string, 0, len(toks)-n+1)
	for i := 0; i+n <= len(toks); i++ {
		out = append(out, strings.Join(toks[i:i+n], " "))
	}
	return out
}
