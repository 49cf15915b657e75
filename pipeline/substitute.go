// Package pipeline wires extraction, resolution and relocation into the
// per-sentence entity substitution step, and runs it over record batches
// together with a translator.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eamt-tools/entsub/dict"
	"github.com/eamt-tools/entsub/ner"
	"github.com/eamt-tools/entsub/normalize"
	"github.com/eamt-tools/entsub/relocate"
	"github.com/eamt-tools/entsub/resolve"
	"github.com/eamt-tools/entsub/translate"
)

// Skip reasons recorded on a Substitution that was not applied.
const (
	ReasonNotFound      = "not found"
	ReasonNoSourceLabel = "empty source label"
	ReasonNoLocalized   = "empty localized label"
	ReasonUntranslated  = "label contains the mention"
	ReasonAbandoned     = "sentence abandoned"
)

// Substitution is the outcome for one mention of a sentence.
type Substitution struct {
	Mention        string `json:"mention"`
	Type           string `json:"type,omitempty"`
	SourceLabel    string `json:"source_label,omitempty"`
	LocalizedLabel string `json:"localized_label,omitempty"`
	Applied        bool   `json:"applied"`
	Reason         string `json:"reason,omitempty"`
}

// Substituter replaces entity mentions of a translated sentence with their
// localized knowledge-base labels.
type Substituter struct {
	Extractor ner.Extractor
	Source    resolve.Source
	// Cache is shared by every sentence of a run. Nil disables caching.
	Cache *resolve.Cache
	// SkipEntity keeps going with the next mention when one cannot be
	// substituted. By default the first such mention ends substitution for
	// the whole sentence.
	SkipEntity bool
	OnLog      func(format string, args ...any)
}

func (s *Substituter) log(format string, args ...any) {
	if s.OnLog != nil {
		s.OnLog(format, args...)
	}
}

// resolve looks mention up through the cache, keyed by the raw mention and
// queried with its punctuation-tidied form.
func (s *Substituter) resolve(ctx context.Context, raw, locale string) (resolve.Entity, error) {
	query := normalize.StripPunctSpacing(raw)
	if s.Cache == nil {
		return s.Source.Resolve(ctx, query, locale)
	}
	src := resolve.SourceFunc(func(ctx context.Context, _, locale string) (resolve.Entity, error) {
		return s.Source.Resolve(ctx, query, locale)
	})
	return s.Cache.Resolve(ctx, src, raw, locale)
}

// skipReason reports why ent cannot be substituted for mention, or "".
func skipReason(mention string, ent resolve.Entity) string {
	switch {
	case strings.TrimSpace(ent.SourceLabel) == "":
		return ReasonNoSourceLabel
	case strings.TrimSpace(ent.LocalizedLabel) == "":
		return ReasonNoLocalized
	case strings.Contains(ent.LocalizedLabel, mention):
		return ReasonUntranslated
	}
	return ""
}

// Substitute extracts the mentions of source and relocates each localized
// label inside target, in extraction order, each step working on the text
// left by the previous one. It returns the rewritten target and one
// Substitution per mention.
//
// A mention that is not found, or whose labels are empty or untranslated,
// stops substitution: the text as rewritten so far is returned. With
// SkipEntity set the mention is skipped instead. Errors other than
// not-found resolutions, and any failure once ctx is done, are returned
// together with the text so far.
func (s *Substituter) Substitute(ctx context.Context, source, target, locale string) (string, []Substitution, error) {
	mentions, err := s.Extractor.Extract(ctx, source)
	if err != nil {
		return target, nil, &StageError{Stage: StageExtract, Err: err}
	}

	text := target
	subs := make([]Substitution, 0, len(mentions))
	for i, m := range mentions {
		sub := Substitution{Mention: m.Text, Type: m.Type}
		stripped := normalize.StripPunctSpacing(m.Text)

		ent, err := s.resolve(ctx, m.Text, locale)
		if err != nil && (!resolve.IsNotFound(err) || ctx.Err() != nil) {
			return text, subs, &StageError{Stage: StageResolve, Err: err}
		}
		if err != nil {
			sub.Reason = ReasonNotFound
			s.log("%s: %q: %v", locale, m.Text, err)
		} else {
			sub.SourceLabel, sub.LocalizedLabel = ent.SourceLabel, ent.LocalizedLabel
			sub.Reason = skipReason(stripped, ent)
		}

		if sub.Reason != "" {
			subs = append(subs, sub)
			if s.SkipEntity {
				continue
			}
			for _, rest := range mentions[i+1:] {
				subs = append(subs, Substitution{Mention: rest.Text, Type: rest.Type, Reason: ReasonAbandoned})
			}
			return text, subs, nil
		}

		text = relocate.Relocate(normalize.Clean(ent.SourceLabel), text, ent.LocalizedLabel)
		sub.Applied = true
		subs = append(subs, sub)
	}
	return text, subs, nil
}

// Glossary resolves the mentions of source and returns the usable
// localized labels as translation hints. Dictionary entries occurring in
// the sentence come first and take precedence.
func (s *Substituter) Glossary(ctx context.Context, d *dict.Dictionary, source, locale string) ([]translate.GlossaryEntry, []Substitution, error) {
	var (
		out  []translate.GlossaryEntry
		seen = make(map[string]bool)
	)
	if d != nil {
		for _, m := range d.Match(source, locale) {
			out = append(out, translate.GlossaryEntry{Source: m.NE, Target: m.Label})
			seen[m.NE] = true
		}
	}

	mentions, err := s.Extractor.Extract(ctx, source)
	if err != nil {
		return out, nil, &StageError{Stage: StageExtract, Err: err}
	}

	subs := make([]Substitution, 0, len(mentions))
	for _, m := range mentions {
		sub := Substitution{Mention: m.Text, Type: m.Type}
		stripped := normalize.StripPunctSpacing(m.Text)
		if seen[stripped] {
			continue
		}

		ent, err := s.resolve(ctx, m.Text, locale)
		if err != nil && (!resolve.IsNotFound(err) || ctx.Err() != nil) {
			return out, subs, &StageError{Stage: StageResolve, Err: err}
		}
		if err != nil {
			sub.Reason = ReasonNotFound
		} else {
			sub.SourceLabel, sub.LocalizedLabel = ent.SourceLabel, ent.LocalizedLabel
			sub.Reason = skipReason(stripped, ent)
		}
		if sub.Reason == "" {
			sub.Applied = true
			seen[stripped] = true
			out = append(out, translate.GlossaryEntry{Source: stripped, Target: ent.LocalizedLabel})
		}
		subs = append(subs, sub)
	}
	return out, subs, nil
}

// ---------------------------------------------------------------------------
// Stages
// ---------------------------------------------------------------------------

// Stage names the pipeline step a sentence failed in.
type Stage string

const (
	StageExtract    Stage = "extract"
	StageResolve    Stage = "resolve"
	StageTranslate  Stage = "translate"
	StageSubstitute Stage = "substitute"
)

// StageError attaches the failing stage to an error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageOf returns the stage recorded on err, or fallback.
func stageOf(err error, fallback Stage) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return fallback
}
