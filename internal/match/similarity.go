package match

import (
	"github.com/adrg/strutil/metrics"
)

var levenshtein = metrics.NewLevenshtein()

// Similarity scores two strings in [0, 1] by Levenshtein ratio over their
// normalized keys. Two empty keys score 1.0; one empty key scores 0.0.
//
// Catalog titles often carry trailing qualifiers ("- Remastered 2009",
// "(Live)"), so when the keys differ in length the longer one is also
// truncated to the shorter's length and re-scored, keeping the higher of the
// two ratios. Truncation only forgives suffix noise: strings that differ
// early still score low.
func Similarity(a, b string) float64 {
	ra := []rune(Normalize(a))
	rb := []rune(Normalize(b))

	maxLen := max(len(ra), len(rb))
	if maxLen == 0 {
		return 1.0
	}

	score := ratio(ra, rb, maxLen)

	minLen := min(len(ra), len(rb))
	if minLen > 0 && maxLen > minLen {
		if t := ratio(ra[:minLen], rb[:minLen], minLen); t > score {
			score = t
		}
	}

	return score
}

func ratio(a, b []rune, length int) float64 {
	d := levenshtein.Distance(string(a), string(b))
	return 1 - float64(d)/float64(length)
}
