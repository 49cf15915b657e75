// Package ner finds entity mentions in source sentences, either with a
// token-classification model or by asking a language model.
package ner

import (
	"context"
	"fmt"
	"strings"

	"github.com/eamt-tools/entsub/entity"
)

// Tagger labels each token of a text with a BIO tag.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]entity.Token, error)
}

// Extractor returns the entity mentions of a text in order of appearance.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]entity.Mention, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string) ([]entity.Mention, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, text string) ([]entity.Mention, error) {
	return f(ctx, text)
}

// None finds no mentions. It disables substitution.
var None Extractor = ExtractorFunc(func(context.Context, string) ([]entity.Mention, error) {
	return nil, nil
})

// BIOExtractor tags a text and merges the tags into mentions.
type BIOExtractor struct {
	Tagger Tagger
}

// Extract implements Extractor.
func (e BIOExtractor) Extract(ctx context.Context, text string) ([]entity.Mention, error) {
	tokens, err := e.Tagger.Tag(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("tagging: %w", err)
	}
	return entity.Merge(tokens), nil
}

// ---------------------------------------------------------------------------
// LLM extraction
// ---------------------------------------------------------------------------

// EntityLister asks a model for the named entities of a text.
// translate.Client implements it.
type EntityLister interface {
	ExtractEntities(ctx context.Context, text string) ([]string, error)
}

// MiscType is the type given to mentions whose class is unknown.
const MiscType = "MISC"

// LLMExtractor extracts mentions with a language model. Entities the model
// reports that do not occur in the text are dropped, and the rest are
// ordered by first occurrence.
type LLMExtractor struct {
	Lister EntityLister
}

// Extract implements Extractor.
func (e LLMExtractor) Extract(ctx context.Context, text string) ([]entity.Mention, error) {
	names, err := e.Lister.ExtractEntities(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}

	type found struct {
		name string
		pos  int
	}
	var hits []found
	for _, n := range names {
		if pos := strings.Index(text, n); pos >= 0 {
			hits = append(hits, found{n, pos})
		}
	}
	// Stable insertion sort keeps model order among equal positions.
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	mentions := make([]entity.Mention, len(hits))
	for i, h := range hits {
		mentions[i] = entity.Mention{Text: h.name, Type: MiscType}
	}
	return mentions, nil
}

// ---------------------------------------------------------------------------
// Static tags
// ---------------------------------------------------------------------------

// StaticTagger replays hand-written tags of the form "word/TAG", separated
// by whitespace. Words without a tag are tagged O. The text passed to Tag
// is ignored.
type StaticTagger struct {
	Tokens []entity.Token
}

// ParseTags reads "What/O is/O Fr/B-LOC ##ance/I-LOC" into tokens.
func ParseTags(s string) (StaticTagger, error) {
	var toks []entity.Token
	for _, field := range strings.Fields(s) {
		i := strings.LastIndexByte(field, '/')
		if i < 0 {
			toks = append(toks, entity.Token{Word: field, Tag: "O"})
			continue
		}
		word, tag := field[:i], field[i+1:]
		if word == "" {
			return StaticTagger{}, fmt.Errorf("empty word in %q", field)
		}
		if tag == "" {
			tag = "O"
		}
		toks = append(toks, entity.Token{Word: word, Tag: tag})
	}
	return StaticTagger{Tokens: toks}, nil
}

// Tag implements Tagger.
func (s StaticTagger) Tag(context.Context, string) ([]entity.Token, error) {
	return s.Tokens, nil
}

// Text reassembles the tagged words into a sentence.
func (s StaticTagger) Text() string {
	var b strings.Builder
	for i, t := range s.Tokens {
		w, cont := strings.CutPrefix(t.Word, entity.ContinuationMarker)
		if i > 0 && !cont && !t.Continuation {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}
	return b.String()
}
