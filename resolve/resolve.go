// Package resolve turns an entity mention into its canonical label and the
// label localized into a target language, using an external knowledge base.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/eamt-tools/entsub/fuzzy"
	"github.com/eamt-tools/entsub/normalize"
)

// Resolution failures. All three mean "not found" to callers; see IsNotFound.
var (
	// ErrNetwork reports that a knowledge-base request did not succeed.
	ErrNetwork = errors.New("knowledge base request failed")
	// ErrNoResults reports an empty search, or no candidate scoring above zero.
	ErrNoResults = errors.New("no matching entity")
	// ErrNoLocalizedLabel reports a detail page without a localized title.
	ErrNoLocalizedLabel = errors.New("no localized label")
)

// IsNotFound reports whether err is one of the resolution failures that
// callers should treat as "skip this entity" rather than as fatal.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrNoResults) ||
		errors.Is(err, ErrNoLocalizedLabel)
}

// Candidate is one knowledge-base search hit.
type Candidate struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Statements int     `json:"statements"`
	Sitelinks  int     `json:"sitelinks"`
	Score      float64 `json:"score,omitempty"`
}

// Entity is a resolved mention.
type Entity struct {
	// SourceLabel is the cleaned label of the winning candidate.
	SourceLabel string `json:"source_label"`
	// LocalizedLabel is the candidate's title in the target language.
	LocalizedLabel string `json:"localized_label"`
}

// KnowledgeBase searches an entity repository and reads localized titles.
type KnowledgeBase interface {
	// Search returns the result rows for query, in ranking order.
	Search(ctx context.Context, query, locale string) ([]Candidate, error)
	// FetchLabel returns the title of entity id rendered in locale. An empty
	// string means the page has no localized title.
	FetchLabel(ctx context.Context, id, locale string) (string, error)
}

// Source resolves mentions. Resolver, Chain and dictionary sources all
// implement it.
type Source interface {
	Resolve(ctx context.Context, mention, locale string) (Entity, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, mention, locale string) (Entity, error)

// Resolve calls f.
func (f SourceFunc) Resolve(ctx context.Context, mention, locale string) (Entity, error) {
	return f(ctx, mention, locale)
}

// ---------------------------------------------------------------------------
// Scoring
// ---------------------------------------------------------------------------

// Score weighs a candidate by popularity and by how closely its label
// matches the mention, case-insensitively.
func Score(mention, label string, statements, sitelinks int) float64 {
	ratio := fuzzy.Ratio(strings.ToLower(mention), strings.ToLower(label))
	return 0.2*float64(statements) + 0.3*float64(sitelinks) + 0.5*float64(ratio)
}

// Best cleans and scores every candidate and returns the first one whose
// score is strictly greater than all before it and than zero. The returned
// candidate carries the cleaned label and its score. ok is false when no
// candidate scores above zero.
func Best(mention string, cands []Candidate) (best Candidate, ok bool) {
	var top float64
	for _, c := range cands {
		c.Label = normalize.Clean(c.Label)
		c.Score = Score(mention, c.Label, c.Statements, c.Sitelinks)
		if c.Score > top {
			top = c.Score
			best, ok = c, true
		}
	}
	return best, ok
}

// ---------------------------------------------------------------------------
// Resolver
// ---------------------------------------------------------------------------

// Resolver resolves mentions against a KnowledgeBase.
type Resolver struct {
	KB KnowledgeBase
	// OnLog receives diagnostics about failed resolutions.
	OnLog func(format string, args ...any)
}

// New returns a Resolver backed by kb.
func New(kb KnowledgeBase) *Resolver {
	return &Resolver{KB: kb}
}

func (r *Resolver) log(format string, args ...any) {
	if r.OnLog != nil {
		r.OnLog(format, args...)
	}
}

// Resolve searches for mention, picks the best candidate and fetches its
// label in locale. It issues at most one search and one detail request.
// Failures wrap ErrNetwork, ErrNoResults or ErrNoLocalizedLabel, except
// when ctx is done: then the context error is returned as is.
func (r *Resolver) Resolve(ctx context.Context, mention, locale string) (Entity, error) {
	cands, err := r.KB.Search(ctx, mention, locale)
	if err != nil {
		if ctx.Err() != nil {
			return Entity{}, ctx.Err()
		}
		r.log("search %q failed: %v", mention, err)
		return Entity{}, fmt.Errorf("%w: searching %q: %w", ErrNetwork, mention, err)
	}
	if len(cands) == 0 {
		r.log("no results for %q", mention)
		return Entity{}, fmt.Errorf("%w: %q", ErrNoResults, mention)
	}

	best, ok := Best(mention, cands)
	if !ok {
		r.log("no candidate for %q scored above zero (%d rows)", mention, len(cands))
		return Entity{}, fmt.Errorf("%w: %q (%d candidates, none scored)", ErrNoResults, mention, len(cands))
	}

	label, err := r.KB.FetchLabel(ctx, best.ID, locale)
	if err != nil {
		if ctx.Err() != nil {
			return Entity{}, ctx.Err()
		}
		r.log("fetching %s for %q failed: %v", best.ID, mention, err)
		return Entity{}, fmt.Errorf("%w: fetching %s: %w", ErrNetwork, best.ID, err)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		r.log("no %s label for %q (%s)", locale, mention, best.ID)
		return Entity{}, fmt.Errorf("%w: %s in %s", ErrNoLocalizedLabel, best.ID, locale)
	}

	return Entity{SourceLabel: best.Label, LocalizedLabel: label}, nil
}

// ---------------------------------------------------------------------------
// Chain
// ---------------------------------------------------------------------------

// Chain tries each source in order and returns the first success. A
// not-found failure moves on to the next source; any other error stops.
type Chain []Source

// Resolve implements Source.
func (c Chain) Resolve(ctx context.Context, mention, locale string) (Entity, error) {
	err := fmt.Errorf("%w: %q", ErrNoResults, mention)
	for _, src := range c {
		ent, serr := src.Resolve(ctx, mention, locale)
		if serr == nil {
			return ent, nil
		}
		if !IsNotFound(serr) {
			return Entity{}, serr
		}
		err = serr
	}
	return Entity{}, err
}
