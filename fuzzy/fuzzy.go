// Package fuzzy scores the similarity of two strings on a 0-100 scale.
package fuzzy

import "math"

// Ratio returns the normalized indel similarity of a and b as an integer
// percentage:
//
//	round(100 * (len(a) + len(b) - indel(a, b)) / (len(a) + len(b)))
//
// where indel is the number of single-rune insertions and deletions needed to
// turn a into b. Lengths are measured in runes and rounding is half-to-even.
// Ratio is case-sensitive and returns 0 when either string is empty.
func Ratio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	total := len(ra) + len(rb)
	// indel = total - 2*lcs, so the similarity reduces to 2*lcs/total.
	lcs := commonSubsequence(ra, rb)
	return int(math.RoundToEven(100 * float64(2*lcs) / float64(total)))
}

// commonSubsequence returns the length of the longest common subsequence
// of a and b.
func commonSubsequence(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
