package engine

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopwords are excluded from term extraction so that scoring runs on the
// distinctive vocabulary of a title rather than on filler.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "from": {}, "as": {}, "into": {}, "over": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "should": {}, "can": {}, "could": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {},
}

// Similarity returns a [0,1] similarity score between two strings using
// normalized Levenshtein distance. Inputs are compared case-insensitively
// with surrounding whitespace trimmed. Two empty strings are identical
// (1.0); exactly one empty string scores 0.0. The function is symmetric and
// total: it never fails.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	distance := levenshtein(a, b)
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return 1.0 - float64(distance)/float64(longest)
}

// levenshtein computes the edit distance between two strings over runes,
// keeping only two DP rows so memory stays proportional to the shorter
// input.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for i := range prev {
		prev[i] = i
	}

	for j := 1; j <= len(rb); j++ {
		curr[0] = j
		for i := 1; i <= len(ra); i++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[i] = min(prev[i]+1, min(curr[i-1]+1, prev[i-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

// ExtractTerms returns the distinctive terms of a text: lowercased,
// punctuation stripped, split on whitespace, with stopwords and terms of
// two characters or fewer dropped. The result is deduplicated and preserves
// first-appearance order, which title merging relies on.
func ExtractTerms(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	seen := make(map[string]struct{})
	var terms []string
	for _, field := range strings.Fields(b.String()) {
		if utf8.RuneCountInString(field) <= 2 {
			continue
		}
		if _, stop := stopwords[field]; stop {
			continue
		}
		if _, dup := seen[field]; dup {
			continue
		}
		seen[field] = struct{}{}
		terms = append(terms, field)
	}
	return terms
}

// TermOverlap returns the shared-term ratio |a ∩ b| / max(|a|, |b|, 1).
// Two empty term sets overlap not at all (0.0), by the max-with-1 floor.
func TermOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	common := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			common++
		}
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(common) / float64(longest)
}
