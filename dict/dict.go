// Package dict loads a local entity dictionary: one JSON object per line,
// keyed by "ne" (the English entity string), with one field per locale
// holding the pre-supplied localized label.
//
//	{"ne": "France", "de_DE": "Frankreich", "zh_TW": "法國"}
package dict

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/eamt-tools/entsub/langmeta"
	"github.com/eamt-tools/entsub/resolve"
)

// KeyField names the entity field of a dictionary line.
const KeyField = "ne"

// Entry is one dictionary line.
type Entry struct {
	NE string
	// Labels maps a locale code, as written in the file, to a label.
	Labels map[string]string
}

// Label returns the label for locale, trying the exact code, then its
// canonical form, then the base language.
func (e Entry) Label(locale string) (string, bool) {
	if l, ok := e.Labels[locale]; ok && l != "" {
		return l, true
	}
	want := langmeta.Canonical(locale)
	for k, l := range e.Labels {
		if l != "" && langmeta.Canonical(k) == want {
			return l, true
		}
	}
	base := langmeta.Base(locale)
	for k, l := range e.Labels {
		if l != "" && langmeta.Canonical(k) == base {
			return l, true
		}
	}
	return "", false
}

// Dictionary is an ordered set of entries.
type Dictionary struct {
	entries []Entry
	index   map[string]int
}

// Load reads a dictionary file.
func Load(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dictionary: %w", err)
	}
	defer f.Close()

	d, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Read parses dictionary lines from r. Blank lines and lines without an
// "ne" field are skipped; malformed JSON fails with its line number. A
// repeated "ne" replaces the earlier entry's labels but keeps its position.
func Read(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{index: make(map[string]int)}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		e, ok := decodeEntry(raw)
		if !ok {
			continue
		}
		d.add(e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	return d, nil
}

func decodeEntry(raw map[string]json.RawMessage) (Entry, bool) {
	var ne string
	if err := json.Unmarshal(raw[KeyField], &ne); err != nil || ne == "" {
		return Entry{}, false
	}
	e := Entry{NE: ne, Labels: make(map[string]string, len(raw)-1)}
	for k, v := range raw {
		if k == KeyField {
			continue
		}
		var label string
		if json.Unmarshal(v, &label) == nil {
			e.Labels[k] = label
		}
	}
	return e, true
}

func (d *Dictionary) add(e Entry) {
	if i, ok := d.index[e.NE]; ok {
		d.entries[i] = e
		return
	}
	d.index[e.NE] = len(d.entries)
	d.entries = append(d.entries, e)
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Entries returns the entries in file order.
func (d *Dictionary) Entries() []Entry { return d.entries }

// Lookup returns the label of ne in locale.
func (d *Dictionary) Lookup(ne, locale string) (string, bool) {
	i, ok := d.index[ne]
	if !ok {
		return "", false
	}
	return d.entries[i].Label(locale)
}

// Match is a dictionary entry found in a sentence.
type Match struct {
	NE    string `json:"ne"`
	Label string `json:"label"`
}

// Match returns, in file order, the entries whose "ne" occurs in sentence
// and that have a label for locale.
func (d *Dictionary) Match(sentence, locale string) []Match {
	var out []Match
	for _, e := range d.entries {
		if !strings.Contains(sentence, e.NE) {
			continue
		}
		if l, ok := e.Label(locale); ok {
			out = append(out, Match{NE: e.NE, Label: l})
		}
	}
	return out
}

// Source resolves mentions from a dictionary. The entity string doubles as
// the source label.
type Source struct {
	Dict *Dictionary
}

var _ resolve.Source = Source{}

// Resolve implements resolve.Source. Unknown mentions report
// resolve.ErrNoResults, missing locales resolve.ErrNoLocalizedLabel.
func (s Source) Resolve(_ context.Context, mention, locale string) (resolve.Entity, error) {
	if s.Dict == nil {
		return resolve.Entity{}, fmt.Errorf("%w: no dictionary", resolve.ErrNoResults)
	}
	if _, ok := s.Dict.index[mention]; !ok {
		return resolve.Entity{}, fmt.Errorf("%w: %q not in dictionary", resolve.ErrNoResults, mention)
	}
	label, ok := s.Dict.Lookup(mention, locale)
	if !ok {
		return resolve.Entity{}, fmt.Errorf("%w: %q has no %s entry", resolve.ErrNoLocalizedLabel, mention, locale)
	}
	return resolve.Entity{SourceLabel: mention, LocalizedLabel: label}, nil
}
