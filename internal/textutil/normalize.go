// Package textutil provides the normalization and similarity primitives
// shared by the merge and propose stages. Normalization folds German
// umlauts and strips filler words so that surface variants of the same
// term ("Drohnen steigen lassen" / "drohnen-steigen-lassen") compare
// equal or near-equal.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	snakeSepRe   = regexp.MustCompile(`[\s-]+`)
)

// German filler words removed before comparison. Removal happens on
// whole tokens only; substring replacement would mangle words like
// "Randstreifen" (contains "and").
var fillerWords = map[string]struct{}{
	"und": {}, "oder": {}, "sowie": {}, "bzw": {},
	"mit": {}, "ohne": {}, "von": {}, "zu": {}, "bei": {},
	"in": {}, "an": {}, "auf": {}, "unter": {}, "ueber": {},
}

var umlautReplacer = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
)

// Normalize lowercases, folds umlauts, strips punctuation and filler
// words, and collapses whitespace. Used for catalog comparison and
// candidate clustering.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = umlautReplacer.Replace(s)
	s = nonWordRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, filler := fillerWords[f]; !filler {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

// SnakeKey derives a stable snake_case key from a term.
func SnakeKey(s string) string {
	s = Normalize(s)
	s = snakeSepRe.ReplaceAllString(s, "_")

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s != "" && unicode.IsDigit(rune(s[0])) {
		s = "_" + s
	}
	return s
}

// Ratio returns a similarity score between 0 and 100 based on
// normalized Levenshtein edit distance over runes. 100 means equal.
func Ratio(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 && len(br) == 0 {
		return 100
	}
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein(ar, br)
	return int(100 * (1 - float64(dist)/float64(maxLen)))
}

// levenshtein computes edit distance with a rolling two-row matrix.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
