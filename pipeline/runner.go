package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eamt-tools/entsub/checkpoint"
	"github.com/eamt-tools/entsub/dict"
	"github.com/eamt-tools/entsub/records"
	"github.com/eamt-tools/entsub/resolve"
	"github.com/eamt-tools/entsub/translate"
)

// Strategy decides where entity substitution happens relative to
// translation.
type Strategy string

const (
	// PostEdit translates first, then relocates localized labels inside
	// the translation.
	PostEdit Strategy = "post-edit"
	// PreEdit replaces mentions in the source with localized labels, then
	// translates the edited source.
	PreEdit Strategy = "pre-edit"
	// Hint passes the localized labels to the translator as a glossary.
	Hint Strategy = "hint"
)

// Strategies lists the accepted strategy names.
func Strategies() []Strategy { return []Strategy{PostEdit, PreEdit, Hint} }

// ParseStrategy accepts a strategy name. An empty name means PostEdit.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return PostEdit, nil
	}
	for _, st := range Strategies() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q (want post-edit, pre-edit or hint)", s)
}

// Result is the outcome for one record. Exactly one of Prediction and Err
// is meaningful.
type Result struct {
	Record        records.Record
	Prediction    string
	Substitutions []Substitution
	// Resumed marks a prediction taken from the checkpoint.
	Resumed bool
	Stage   Stage
	Err     error
}

// Ok reports whether the record produced a prediction.
func (r Result) Ok() bool { return r.Err == nil }

// Failure is one entry of the failure log.
type Failure struct {
	ID           string `json:"id"`
	TargetLocale string `json:"target_locale"`
	Source       string `json:"source"`
	Stage        Stage  `json:"stage"`
	Reason       string `json:"reason"`
}

// Stats summarizes a run.
type Stats struct {
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Resumed     int                `json:"resumed"`
	Substituted int                `json:"substituted"`
	Skipped     int                `json:"skipped_entities"`
	Cache       resolve.CacheStats `json:"cache"`
	Interrupted bool               `json:"interrupted"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// Report is what Run returns: the predictions of successful records in
// input order, the failure log and counts.
type Report struct {
	Predictions []records.Prediction
	Failures    []Failure
	Stats       Stats
}

// Runner translates records one at a time.
type Runner struct {
	Translator  translate.Translator
	Substituter *Substituter
	// Dict adds dictionary hints in the Hint strategy.
	Dict     *dict.Dictionary
	Strategy Strategy

	// Checkpoint records every prediction. With Resume set, records whose
	// source is unchanged reuse the stored prediction.
	Checkpoint *checkpoint.File
	Resume     bool

	OnLog func(format string, args ...any)
	// OnResult is called after each record with its 1-based position.
	OnResult func(n, total int, r Result)
}

func (r *Runner) log(format string, args ...any) {
	if r.OnLog != nil {
		r.OnLog(format, args...)
	}
}

// Run processes recs sequentially. A failing record is logged and skipped;
// it never stops the batch. Cancelling ctx stops before the next record and
// sets Stats.Interrupted.
func (r *Runner) Run(ctx context.Context, recs []records.Record) Report {
	start := time.Now()
	rep := Report{Stats: Stats{Total: len(recs)}}

	for i, rec := range recs {
		if ctx.Err() != nil {
			rep.Stats.Interrupted = true
			break
		}

		res := r.Process(ctx, rec)
		if res.Err != nil && ctx.Err() != nil {
			rep.Stats.Interrupted = true
			break
		}

		for _, s := range res.Substitutions {
			if s.Applied {
				rep.Stats.Substituted++
			} else {
				rep.Stats.Skipped++
			}
		}
		if res.Ok() {
			rep.Stats.Succeeded++
			if res.Resumed {
				rep.Stats.Resumed++
			}
			rep.Predictions = append(rep.Predictions, records.NewPrediction(rec, res.Prediction))
		} else {
			rep.Stats.Failed++
			rep.Failures = append(rep.Failures, Failure{
				ID:           rec.ID,
				TargetLocale: rec.TargetLocale,
				Source:       rec.Source,
				Stage:        res.Stage,
				Reason:       res.Err.Error(),
			})
			r.log("%s: %s failed: %v", rec.ID, res.Stage, res.Err)
		}

		if r.OnResult != nil {
			r.OnResult(i+1, len(recs), res)
		}
	}

	if r.Substituter != nil && r.Substituter.Cache != nil {
		rep.Stats.Cache = r.Substituter.Cache.Stats()
	}
	rep.Stats.Elapsed = time.Since(start)
	return rep
}

// Process runs one record through the configured strategy.
func (r *Runner) Process(ctx context.Context, rec records.Record) Result {
	res := Result{Record: rec}
	locale := rec.TargetLocale

	if r.Checkpoint != nil && r.Resume {
		if pred, ok := r.Checkpoint.Lookup(locale, rec.ID, rec.Source); ok {
			res.Prediction, res.Resumed = pred, true
			return res
		}
	}

	var err error
	switch r.Strategy {
	case PreEdit:
		res.Prediction, res.Substitutions, err = r.preEdit(ctx, rec)
	case Hint:
		res.Prediction, res.Substitutions, err = r.hint(ctx, rec)
	default:
		res.Prediction, res.Substitutions, err = r.postEdit(ctx, rec)
	}
	if err != nil {
		res.Stage = stageOf(err, StageSubstitute)
		res.Err = err
		res.Prediction = ""
		return res
	}

	res.Prediction = strings.TrimSpace(res.Prediction)
	if r.Checkpoint != nil {
		r.Checkpoint.Record(locale, rec.ID, rec.Source, res.Prediction)
	}
	return res
}

func (r *Runner) translate(ctx context.Context, text, srcLang, tgtLang string, glossary []translate.GlossaryEntry) (string, error) {
	if r.Translator == nil {
		return "", &StageError{Stage: StageTranslate, Err: errors.New("no translator configured")}
	}
	out, err := r.Translator.Translate(ctx, translate.Request{
		Text:       text,
		SourceLang: srcLang,
		TargetLang: tgtLang,
		Glossary:   glossary,
	})
	if err != nil {
		return "", &StageError{Stage: StageTranslate, Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return "", &StageError{Stage: StageTranslate, Err: errors.New("empty translation")}
	}
	return out, nil
}

func (r *Runner) postEdit(ctx context.Context, rec records.Record) (string, []Substitution, error) {
	translated, err := r.translate(ctx, rec.Source, rec.SourceLocale, rec.TargetLocale, nil)
	if err != nil {
		return "", nil, err
	}
	if r.Substituter == nil {
		return translated, nil, nil
	}
	text, subs, err := r.Substituter.Substitute(ctx, rec.Source, translated, rec.TargetLocale)
	if r.extractionFailed(rec, err) {
		return translated, nil, nil
	}
	return text, subs, err
}

// extractionFailed reports an extraction error, after which the record
// continues without substitution.
func (r *Runner) extractionFailed(rec records.Record, err error) bool {
	if err == nil || stageOf(err, "") != StageExtract || ctxDone(err) {
		return false
	}
	r.log("%s: no entities extracted: %v", rec.ID, err)
	return true
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (r *Runner) preEdit(ctx context.Context, rec records.Record) (string, []Substitution, error) {
	edited := rec.Source
	var subs []Substitution
	if r.Substituter != nil {
		var err error
		edited, subs, err = r.Substituter.Substitute(ctx, rec.Source, rec.Source, rec.TargetLocale)
		if r.extractionFailed(rec, err) {
			edited, subs = rec.Source, nil
		} else if err != nil {
			return "", subs, err
		}
	}
	translated, err := r.translate(ctx, edited, rec.SourceLocale, rec.TargetLocale, nil)
	return translated, subs, err
}

func (r *Runner) hint(ctx context.Context, rec records.Record) (string, []Substitution, error) {
	var (
		glossary []translate.GlossaryEntry
		subs     []Substitution
	)
	if r.Substituter != nil {
		var err error
		glossary, subs, err = r.Substituter.Glossary(ctx, r.Dict, rec.Source, rec.TargetLocale)
		if r.extractionFailed(rec, err) {
			subs = nil
		} else if err != nil {
			return "", subs, err
		}
	}
	translated, err := r.translate(ctx, rec.Source, rec.SourceLocale, rec.TargetLocale, glossary)
	return translated, subs, err
}
