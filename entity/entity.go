// Package entity merges per-token BIO tags into whole entity mentions.
package entity

import "strings"

// ContinuationMarker prefixes a sub-word fragment of the previous token,
// as produced by WordPiece tokenizers ("Fr", "##ance").
const ContinuationMarker = "##"

// Token is one tagged word from a token classifier.
type Token struct {
	Word string
	// Tag is "O", "B-<TYPE>" or "I-<TYPE>". Anything else is treated as "O".
	Tag string
	// Continuation marks Word as a fragment of the previous token even when
	// it does not carry ContinuationMarker.
	Continuation bool
}

// Mention is a contiguous entity span found in a sentence.
type Mention struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// Merge folds a tagged token sequence into mentions, in order.
//
// A continuation fragment is glued onto the last buffered word without a
// separator. A B- tag flushes the buffer and starts a new mention; an I- tag
// extends the buffer only while a type is active. O tags neither flush nor
// contribute. Malformed sequences degrade instead of failing: a continuation
// with nothing buffered and an I- tag with no active type are dropped.
func Merge(tokens []Token) []Mention {
	var (
		mentions []Mention
		words    []string
		current  string
	)

	flush := func() {
		if len(words) > 0 {
			mentions = append(mentions, Mention{Text: strings.Join(words, " "), Type: current})
		}
	}

	for _, tok := range tokens {
		word, cont := splitContinuation(tok)
		if cont {
			if len(words) > 0 {
				words[len(words)-1] += word
			}
			continue
		}

		switch {
		case strings.HasPrefix(tok.Tag, "B-"):
			flush()
			words = []string{word}
			current = tok.Tag[2:]
		case strings.HasPrefix(tok.Tag, "I-") && current != "":
			words = append(words, word)
		}
	}
	flush()

	return mentions
}

// NormalizeType strips a B- or I- prefix from a tag.
func NormalizeType(tag string) string {
	if strings.HasPrefix(tag, "B-") || strings.HasPrefix(tag, "I-") {
		return tag[2:]
	}
	return tag
}

func splitContinuation(tok Token) (string, bool) {
	if strings.HasPrefix(tok.Word, ContinuationMarker) {
		return tok.Word[len(ContinuationMarker):], true
	}
	return tok.Word, tok.Continuation
}

// Texts returns the surface text of each mention.
func Texts(mentions []Mention) []string {
	out := make([]string, len(mentions))
	for i, m := range mentions {
		out[i] = m.Text
	}
	return out
}
