// Package relocate finds an entity inside a translated sentence by
// approximate matching and splices in its localized label.
package relocate

import (
	"unicode"

	"github.com/eamt-tools/entsub/fuzzy"
)

// Span is a half-open rune range [Start, End) of a sentence.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether o lies within s.
func (s Span) Contains(o Span) bool {
	return s.Start <= o.Start && o.End <= s.End
}

// Match describes where Find placed an entity.
type Match struct {
	// Window is the best fixed-width window, as scored.
	Window Span `json:"window"`
	// Expanded is Window grown outwards to whitespace boundaries.
	Expanded Span `json:"expanded"`
	// Score is the fuzzy ratio of Window against the entity, 0 when no
	// window scored above zero.
	Score int `json:"score"`
}

// Find slides a window as wide as ne across sentence and returns the first
// window with the highest fuzzy ratio, expanded to whole words. When no
// window scores above zero, the zero-width window at the start is used.
func Find(ne, sentence string) Match {
	s := []rune(sentence)
	width := len([]rune(ne))

	var m Match
	for i := 0; i+width <= len(s); i++ {
		score := fuzzy.Ratio(string(s[i:i+width]), ne)
		if score > m.Score {
			m.Score = score
			m.Window = Span{Start: i, End: i + width}
		}
	}

	m.Expanded = m.Window
	for m.Expanded.Start > 0 && !isBoundary(s[m.Expanded.Start-1]) {
		m.Expanded.Start--
	}
	for m.Expanded.End < len(s) && !isBoundary(s[m.Expanded.End]) {
		m.Expanded.End++
	}
	return m
}

// Relocate replaces the best match for ne inside sentence with label and
// returns the new sentence. It never fails: when the sentence holds no
// recognizable rendering of ne, some low-scoring word is replaced anyway.
//
// When the label already stands at the match the sentence is returned
// unchanged.
func Relocate(ne, sentence, label string) string {
	m := Find(ne, sentence)
	if Placed(m, sentence, label) {
		return sentence
	}
	return Replace(sentence, m.Expanded, label)
}

// Placed reports whether label occurs in sentence as a whole word that
// overlaps the expanded span of m. Occurrences inside longer words, or
// away from the match, do not count.
func Placed(m Match, sentence, label string) bool {
	s, l := []rune(sentence), []rune(label)
	if len(l) == 0 {
		return false
	}
	for i := 0; i+len(l) <= len(s); i++ {
		end := i + len(l)
		if string(s[i:end]) != label {
			continue
		}
		if (i > 0 && isWordRune(s[i-1])) || (end < len(s) && isWordRune(s[end])) {
			continue
		}
		if i < m.Expanded.End && m.Expanded.Start < end {
			return true
		}
	}
	return false
}

// Replace substitutes label for the runes of sentence covered by span.
func Replace(sentence string, span Span, label string) string {
	s := []rune(sentence)
	out := make([]rune, 0, len(s)-(span.End-span.Start)+len(label))
	out = append(out, s[:span.Start]...)
	out = append(out, []rune(label)...)
	out = append(out, s[span.End:]...)
	return string(out)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isBoundary(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
