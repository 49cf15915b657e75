// Package normalize strips decorations from knowledge-base labels and
// entity mentions so they can be compared or spliced into a sentence.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Bracketed annotations such as "Paris (capital)" or "Tokyo [city]".
	// Runs may span lines.
	asciiBracketsRe = regexp.MustCompile(`(?s)\(.*?\)|\[.*?\]|\{.*?\}`)
	wideBracketsRe  = regexp.MustCompile(`(?s)（.*?）|【.*?】`)

	quoteReplacer  = strings.NewReplacer(`"`, "", `'`, "", "“", "", "”", "", "‘", "", "’", "")
	symbolReplacer = strings.NewReplacer("#", "", "$", "", "%", "", "@", "", "&", "")
	punctReplacer  = strings.NewReplacer(".", "", ",", "", ";", "", "!", "", "?", "")

	spaceBeforePunctRe = regexp.MustCompile(`\s+([.,;!?()\[\]{}])`)
	spaceAfterPunctRe  = regexp.MustCompile(`([.,;!?()\[\]{}])\s+`)
)

// Clean removes bracketed runs, quotation marks, the symbols # $ % @ & and
// the sentence punctuation . , ; ! ? from s, and collapses whitespace.
//
// An empty input yields an empty result. Clean is idempotent:
// Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	if s == "" {
		return ""
	}

	s = norm.NFC.String(s)
	s = asciiBracketsRe.ReplaceAllString(s, "")
	s = wideBracketsRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = quoteReplacer.Replace(s)
	s = collapseSpace(s)
	s = symbolReplacer.Replace(s)
	s = punctReplacer.Replace(s)

	// Removals above can leave doubled or edge spaces ("a . b") and
	// uncomposed sequences; settle both so a second pass is a no-op.
	return norm.NFC.String(collapseSpace(s))
}

// StripPunctSpacing removes whitespace immediately before or after any of
// . , ; ! ? ( ) [ ] { }, undoing the spacing a sub-word tokenizer puts
// around punctuation inside a mention.
func StripPunctSpacing(s string) string {
	s = spaceBeforePunctRe.ReplaceAllString(s, "$1")
	return spaceAfterPunctRe.ReplaceAllString(s, "$1")
}

// collapseSpace trims s and replaces every run of Unicode whitespace with a
// single ASCII space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
