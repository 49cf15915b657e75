package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamt-tools/entsub/checkpoint"
	"github.com/eamt-tools/entsub/dict"
	"github.com/eamt-tools/entsub/entity"
	"github.com/eamt-tools/entsub/ner"
	"github.com/eamt-tools/entsub/records"
	"github.com/eamt-tools/entsub/resolve"
	"github.com/eamt-tools/entsub/translate"
)

// mentions returns an extractor that reports the given mentions when they
// occur in the text.
func mentions(names ...string) ner.Extractor {
	return ner.ExtractorFunc(func(_ context.Context, text string) ([]entity.Mention, error) {
		var out []entity.Mention
		for _, n := range names {
			if strings.Contains(text, n) {
				out = append(out, entity.Mention{Text: n, Type: "LOC"})
			}
		}
		return out, nil
	})
}

type stubSource struct {
	entities map[string]resolve.Entity
	calls    atomic.Int32
	queries  []string
}

func (s *stubSource) Resolve(_ context.Context, mention, _ string) (resolve.Entity, error) {
	s.calls.Add(1)
	s.queries = append(s.queries, mention)
	if e, ok := s.entities[mention]; ok {
		return e, nil
	}
	return resolve.Entity{}, fmt.Errorf("%w: %q", resolve.ErrNoResults, mention)
}

func fixed(out string) translate.Translator {
	return translate.TranslatorFunc(func(context.Context, translate.Request) (string, error) {
		return out, nil
	})
}

func rec(id, source, locale string) records.Record {
	return records.Record{ID: id, Source: source, SourceLocale: "en", TargetLocale: locale}
}

func TestEndToEndLabelAlreadyPresent(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"France": {SourceLabel: "France", LocalizedLabel: "Frankreich"},
	}}
	r := &Runner{
		Translator:  fixed("Was ist die Hauptstadt von Frankreich?"),
		Substituter: &Substituter{Extractor: mentions("France"), Source: src, Cache: resolve.NewCache()},
	}

	rep := r.Run(context.Background(), []records.Record{rec("Q1", "What is the capital of France?", "de_DE")})
	require.Len(t, rep.Predictions, 1)
	assert.Equal(t, "Was ist die Hauptstadt von Frankreich?", rep.Predictions[0].Prediction)
	assert.Equal(t, "What is the capital of France?", rep.Predictions[0].Text)
	assert.Equal(t, 1, rep.Stats.Substituted)
	assert.Empty(t, rep.Failures)
}

func TestSubstituteEmptyLabelBailsOut(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"Atlantis": {SourceLabel: "Atlantis", LocalizedLabel: ""},
	}}
	s := &Substituter{Extractor: mentions("Atlantis"), Source: src}

	in := "Wo liegt Atlantis?"
	out, subs, err := s.Substitute(context.Background(), "Where is Atlantis?", in, "de_DE")
	require.NoError(t, err)
	assert.Equal(t, in, out)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].Applied)
	assert.Equal(t, ReasonNoLocalized, subs[0].Reason)
}

func TestSubstituteUntranslatedLabelBailsOut(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"Berlin": {SourceLabel: "Berlin", LocalizedLabel: "Berlin"},
	}}
	s := &Substituter{Extractor: mentions("Berlin"), Source: src}

	out, subs, err := s.Substitute(context.Background(), "Where is Berlin?", "Wo ist Berlinn?", "de_DE")
	require.NoError(t, err)
	assert.Equal(t, "Wo ist Berlinn?", out)
	assert.Equal(t, ReasonUntranslated, subs[0].Reason)
}

func TestSubstituteAppliesInOrder(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"Paris":  {SourceLabel: "Paris", LocalizedLabel: "París"},
		"Munich": {SourceLabel: "Munich", LocalizedLabel: "München"},
	}}
	s := &Substituter{Extractor: mentions("Paris", "Munich"), Source: src}

	out, subs, err := s.Substitute(context.Background(), "I love Paris and Munich", "Ich liebe Paris und Munchen", "de_DE")
	require.NoError(t, err)
	assert.Equal(t, "Ich liebe París und München", out)
	require.Len(t, subs, 2)
	assert.True(t, subs[0].Applied)
	assert.True(t, subs[1].Applied)
}

func TestSubstituteAbandonsSentence(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"Paris": {SourceLabel: "Paris", LocalizedLabel: "París"},
	}}
	ctx := context.Background()
	source, target := "From Gotham to Paris", "Von Gotham nach Paris"

	s := &Substituter{Extractor: mentions("Gotham", "Paris"), Source: src}
	out, subs, err := s.Substitute(ctx, source, target, "de_DE")
	require.NoError(t, err)
	assert.Equal(t, target, out)
	require.Len(t, subs, 2)
	assert.Equal(t, ReasonNotFound, subs[0].Reason)
	assert.Equal(t, ReasonAbandoned, subs[1].Reason)

	s.SkipEntity = true
	out, subs, err = s.Substitute(ctx, source, target, "de_DE")
	require.NoError(t, err)
	assert.Equal(t, "Von Gotham nach París", out)
	assert.True(t, subs[1].Applied)
}

func TestSubstituteCachesByRawMention(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"Rome": {SourceLabel: "Rome", LocalizedLabel: "Roma"},
	}}
	cache := resolve.NewCache()
	s := &Substituter{Extractor: mentions("Rome"), Source: src, Cache: cache}
	r := &Runner{Translator: fixed("Benvenuti a Rome"), Substituter: s}

	rep := r.Run(context.Background(), []records.Record{
		rec("1", "Welcome to Rome", "it_IT"),
		rec("2", "Rome again", "it_IT"),
	})
	require.Len(t, rep.Predictions, 2)
	assert.Equal(t, "Benvenuti a Roma", rep.Predictions[0].Prediction)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, 1, rep.Stats.Cache.Hits)
	assert.Equal(t, 1, rep.Stats.Cache.Misses)
}

func TestSubstituteQueriesStrippedMention(t *testing.T) {
	src := &stubSource{entities: map[string]resolve.Entity{
		"St.Louis": {SourceLabel: "St. Louis", LocalizedLabel: "Saint-Louis"},
	}}
	s := &Substituter{Extractor: mentions("St . Louis"), Source: src, Cache: resolve.NewCache()}

	_, _, err := s.Substitute(context.Background(), "Is St . Louis big?", "St Louis est-elle grande ?", "fr_FR")
	require.NoError(t, err)
	assert.Equal(t, []string{"St.Louis"}, src.queries)
	cached, err := s.Cache.Resolve(context.Background(), resolve.SourceFunc(func(context.Context, string, string) (resolve.Entity, error) {
		t.Fatal("raw mention should be served from the cache")
		return resolve.Entity{}, nil
	}), "St . Louis", "fr_FR")
	require.NoError(t, err)
	assert.Equal(t, "Saint-Louis", cached.LocalizedLabel)
}

func TestSubstituteResolveErrorIsReturned(t *testing.T) {
	boom := errors.New("boom")
	s := &Substituter{
		Extractor: mentions("Paris"),
		Source: resolve.SourceFunc(func(context.Context, string, string) (resolve.Entity, error) {
			return resolve.Entity{}, boom
		}),
	}
	out, _, err := s.Substitute(context.Background(), "Paris", "Parigi", "it_IT")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StageResolve, stageOf(err, ""))
	assert.Equal(t, "Parigi", out)
}

func TestRunSkipsFailedRecords(t *testing.T) {
	tr := translate.TranslatorFunc(func(_ context.Context, req translate.Request) (string, error) {
		if req.Text == "bad" {
			return "", errors.New("provider unavailable")
		}
		return strings.ToUpper(req.Text), nil
	})
	var seen []int
	r := &Runner{
		Translator: tr,
		OnResult:   func(n, total int, _ Result) { seen = append(seen, n) },
	}

	rep := r.Run(context.Background(), []records.Record{
		rec("a", "one", "fr_FR"),
		rec("b", "bad", "fr_FR"),
		rec("c", "three", "fr_FR"),
	})
	require.Len(t, rep.Predictions, 2)
	assert.Equal(t, "a", rep.Predictions[0].ID)
	assert.Equal(t, "THREE", rep.Predictions[1].Prediction)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, Failure{
		ID: "b", TargetLocale: "fr_FR", Source: "bad", Stage: StageTranslate,
		Reason: "translate: provider unavailable",
	}, rep.Failures[0])
	assert.Equal(t, Stats{Total: 3, Succeeded: 2, Failed: 1}, withoutElapsed(rep.Stats))
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func withoutElapsed(s Stats) Stats {
	s.Elapsed = 0
	return s
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := translate.TranslatorFunc(func(ctx context.Context, req translate.Request) (string, error) {
		if req.Text == "two" {
			cancel()
			return "", ctx.Err()
		}
		return req.Text, nil
	})
	r := &Runner{Translator: tr}

	rep := r.Run(ctx, []records.Record{rec("1", "one", "de_DE"), rec("2", "two", "de_DE"), rec("3", "three", "de_DE")})
	assert.True(t, rep.Stats.Interrupted)
	assert.Len(t, rep.Predictions, 1)
	assert.Empty(t, rep.Failures)
}

// cancellingKB cancels the run from inside a search and reports the
// failure the way an HTTP client would.
type cancellingKB struct{ cancel context.CancelFunc }

func (k cancellingKB) Search(ctx context.Context, _, _ string) ([]resolve.Candidate, error) {
	k.cancel()
	return nil, fmt.Errorf("wikidata: %w", ctx.Err())
}

func (k cancellingKB) FetchLabel(context.Context, string, string) (string, error) {
	return "", errors.New("unreachable")
}

func TestRunCancelDuringResolveIsNotCheckpointed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cp := checkpoint.New(filepath.Join(t.TempDir(), checkpoint.FileName))
	r := &Runner{
		Translator: fixed("Was ist die Hauptstadt von Frankreich?"),
		Substituter: &Substituter{
			Extractor: mentions("France"),
			Source:    resolve.New(cancellingKB{cancel: cancel}),
			Cache:     resolve.NewCache(),
		},
		Checkpoint: cp,
	}

	rep := r.Run(ctx, []records.Record{
		rec("Q1", "What is the capital of France?", "de_DE"),
		rec("Q2", "Where is France?", "de_DE"),
	})
	assert.True(t, rep.Stats.Interrupted)
	assert.Empty(t, rep.Predictions)
	assert.Empty(t, rep.Failures)
	_, ok := cp.Lookup("de_DE", "Q1", "What is the capital of France?")
	assert.False(t, ok)
}

func TestGlossaryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &Substituter{Extractor: mentions("France"), Source: resolve.New(cancellingKB{cancel: cancel})}

	_, _, err := s.Glossary(ctx, nil, "Where is France?", "de_DE")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StageResolve, stageOf(err, ""))
}

func TestRunExtractionFailureKeepsTranslation(t *testing.T) {
	var logged []string
	r := &Runner{
		Translator: fixed("Bonjour"),
		Substituter: &Substituter{
			Extractor: ner.ExtractorFunc(func(context.Context, string) ([]entity.Mention, error) {
				return nil, errors.New("model crashed")
			}),
			Source: &stubSource{},
		},
		OnLog: func(format string, args ...any) { logged = append(logged, fmt.Sprintf(format, args...)) },
	}
	rep := r.Run(context.Background(), []records.Record{rec("1", "Hello", "fr_FR")})
	require.Len(t, rep.Predictions, 1)
	assert.Equal(t, "Bonjour", rep.Predictions[0].Prediction)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "model crashed")
}

func TestRunPreEdit(t *testing.T) {
	var got string
	tr := translate.TranslatorFunc(func(_ context.Context, req translate.Request) (string, error) {
		got = req.Text
		return "Wo ist München", nil
	})
	src := &stubSource{entities: map[string]resolve.Entity{
		"Munich": {SourceLabel: "Munich", LocalizedLabel: "München"},
	}}
	r := &Runner{
		Translator:  tr,
		Substituter: &Substituter{Extractor: mentions("Munich"), Source: src},
		Strategy:    PreEdit,
	}
	rep := r.Run(context.Background(), []records.Record{rec("1", "Where is Munich?", "de_DE")})
	require.Len(t, rep.Predictions, 1)
	assert.Equal(t, "Where is München", got)
}

func TestRunHint(t *testing.T) {
	d, err := dict.Read(strings.NewReader(`{"ne": "The Hobbit", "it_IT": "Lo Hobbit"}`))
	require.NoError(t, err)

	var glossary []translate.GlossaryEntry
	tr := translate.TranslatorFunc(func(_ context.Context, req translate.Request) (string, error) {
		glossary = req.Glossary
		return "Chi ha scritto Lo Hobbit?", nil
	})
	src := &stubSource{entities: map[string]resolve.Entity{
		"Tolkien": {SourceLabel: "J. R. R. Tolkien", LocalizedLabel: "Tolkien"},
		"Oxford":  {SourceLabel: "Oxford", LocalizedLabel: "Oxford (Inghilterra)"},
	}}
	r := &Runner{
		Translator:  tr,
		Substituter: &Substituter{Extractor: mentions("The Hobbit", "Tolkien", "Oxford"), Source: src},
		Dict:        d,
		Strategy:    Hint,
	}

	rep := r.Run(context.Background(), []records.Record{rec("1", "Did Tolkien write The Hobbit?", "it_IT")})
	require.Len(t, rep.Predictions, 1)
	assert.Equal(t, []translate.GlossaryEntry{{Source: "The Hobbit", Target: "Lo Hobbit"}}, glossary)
	assert.Equal(t, []string{"Tolkien"}, src.queries)
	assert.Equal(t, 1, rep.Stats.Skipped)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	cp := checkpoint.New(filepath.Join(t.TempDir(), checkpoint.FileName))
	cp.Record("de_DE", "1", "one", "eins")
	cp.Record("de_DE", "2", "old source", "alt")

	var calls int
	tr := translate.TranslatorFunc(func(_ context.Context, req translate.Request) (string, error) {
		calls++
		return "neu", nil
	})
	r := &Runner{Translator: tr, Checkpoint: cp, Resume: true}

	rep := r.Run(context.Background(), []records.Record{rec("1", "one", "de_DE"), rec("2", "two", "de_DE")})
	require.Len(t, rep.Predictions, 2)
	assert.Equal(t, "eins", rep.Predictions[0].Prediction)
	assert.Equal(t, "neu", rep.Predictions[1].Prediction)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rep.Stats.Resumed)

	pred, ok := cp.Lookup("de_DE", "2", "two")
	assert.True(t, ok)
	assert.Equal(t, "neu", pred)
}

func TestRunWithoutTranslator(t *testing.T) {
	rep := (&Runner{}).Run(context.Background(), []records.Record{rec("1", "x", "de_DE")})
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StageTranslate, rep.Failures[0].Stage)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, PostEdit, s)

	s, err = ParseStrategy("hint")
	require.NoError(t, err)
	assert.Equal(t, Hint, s)

	_, err = ParseStrategy("mid-edit")
	assert.Error(t, err)
}
