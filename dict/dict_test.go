package dict

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eamt-tools/entsub/resolve"
)

const sample = `{"ne": "France", "de_DE": "Frankreich", "zh_TW": "法國", "ja": "フランス"}

{"ne": "Paris", "fr_FR": "Paris", "de_DE": ""}
{"id": 7, "note": "no entity field"}
{"ne": "Mount Fuji", "ja_JP": "富士山", "wikidata_id": "Q39231"}
`

func TestRead(t *testing.T) {
	d, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	var names []string
	for _, e := range d.Entries() {
		names = append(names, e.NE)
	}
	assert.Equal(t, []string{"France", "Paris", "Mount Fuji"}, names)
}

func TestReadMalformed(t *testing.T) {
	_, err := Read(strings.NewReader("{\"ne\": \"A\"}\n{broken\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadDuplicateKeepsPosition(t *testing.T) {
	d, err := Read(strings.NewReader(`{"ne":"A","de":"eins"}
{"ne":"B","de":"zwei"}
{"ne":"A","de":"neu"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "A", d.Entries()[0].NE)
	l, _ := d.Lookup("A", "de")
	assert.Equal(t, "neu", l)
}

func TestLookup(t *testing.T) {
	d, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	tests := []struct {
		ne, locale string
		want       string
		ok         bool
	}{
		{"France", "de_DE", "Frankreich", true},
		{"France", "de-DE", "Frankreich", true},
		{"France", "zh_TW", "法國", true},
		{"France", "ja_JP", "フランス", true},
		{"France", "ko_KR", "", false},
		{"Paris", "de_DE", "", false},
		{"Paris", "fr_FR", "Paris", true},
		{"Berlin", "de_DE", "", false},
	}
	for _, tt := range tests {
		got, ok := d.Lookup(tt.ne, tt.locale)
		assert.Equal(t, tt.ok, ok, "Lookup(%q, %q)", tt.ne, tt.locale)
		assert.Equal(t, tt.want, got, "Lookup(%q, %q)", tt.ne, tt.locale)
	}
}

func TestMatch(t *testing.T) {
	d, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	got := d.Match("Is Mount Fuji visible from France or Paris?", "ja_JP")
	assert.Equal(t, []Match{
		{NE: "France", Label: "フランス"},
		{NE: "Mount Fuji", Label: "富士山"},
	}, got)

	assert.Empty(t, d.Match("Nothing relevant", "ja_JP"))
}

func TestSource(t *testing.T) {
	d, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	src := Source{Dict: d}
	ctx := context.Background()

	ent, err := src.Resolve(ctx, "France", "de_DE")
	require.NoError(t, err)
	assert.Equal(t, resolve.Entity{SourceLabel: "France", LocalizedLabel: "Frankreich"}, ent)

	_, err = src.Resolve(ctx, "Berlin", "de_DE")
	assert.ErrorIs(t, err, resolve.ErrNoResults)

	_, err = src.Resolve(ctx, "France", "ko_KR")
	assert.ErrorIs(t, err, resolve.ErrNoLocalizedLabel)

	_, err = Source{}.Resolve(ctx, "France", "de_DE")
	assert.True(t, resolve.IsNotFound(err))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ner.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
