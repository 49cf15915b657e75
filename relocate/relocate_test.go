package relocate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelocate(t *testing.T) {
	tests := []struct {
		name     string
		ne       string
		sentence string
		label    string
		want     string
	}{
		{
			name:     "exact match",
			ne:       "Paris",
			sentence: "Ich liebe Paris sehr",
			label:    "París",
			want:     "Ich liebe París sehr",
		},
		{
			name:     "label already present",
			ne:       "France",
			sentence: "Was ist die Hauptstadt von Frankreich?",
			label:    "Frankreich",
			want:     "Was ist die Hauptstadt von Frankreich?",
		},
		{
			name:     "label inside a longer word is not a placement",
			ne:       "Rome",
			sentence: "Sie las Romane in Rome",
			label:    "Rom",
			want:     "Sie las Romane in Rom",
		},
		{
			name:     "label elsewhere in the sentence",
			ne:       "Georgia",
			sentence: "Georgien grenzt an Georgia",
			label:    "Georgien",
			want:     "Georgien grenzt an Georgien",
		},
		{
			name:     "partial word grows to whole word",
			ne:       "Berlin",
			sentence: "nach Berlino morgen",
			label:    "Berlín",
			want:     "nach Berlín morgen",
		},
		{
			name:     "approximate rendering",
			ne:       "Munich",
			sentence: "Wo liegt Munchen genau",
			label:    "München",
			want:     "Wo liegt München genau",
		},
		{
			name:     "first window wins ties",
			ne:       "ab",
			sentence: "ab ab",
			label:    "X",
			want:     "X ab",
		},
		{
			name:     "trailing punctuation is part of the word",
			ne:       "Rome",
			sentence: "Welcome to Rome!",
			label:    "Roma",
			want:     "Welcome to Roma",
		},
		{
			name:     "sentence shorter than entity",
			ne:       "Washington",
			sentence: "Hi there",
			label:    "X",
			want:     "X there",
		},
		{
			name:     "empty sentence",
			ne:       "France",
			sentence: "",
			label:    "Frankreich",
			want:     "Frankreich",
		},
		{
			name:     "no whitespace grows to whole sentence",
			ne:       "東京",
			sentence: "私は東京に住んでいます",
			label:    "Tokyo",
			want:     "Tokyo",
		},
		{
			name:     "newline and tab are boundaries",
			ne:       "Oslo",
			sentence: "a\tOslo\nb",
			label:    "Christiania",
			want:     "a\tChristiania\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Relocate(tt.ne, tt.sentence, tt.label))
		})
	}
}

func TestFindExpansionNeverShrinks(t *testing.T) {
	cases := [][2]string{
		{"France", "Was ist die Hauptstadt von Frankreich?"},
		{"Berlin", "nach Berlino morgen"},
		{"Washington", "Hi"},
		{"", "anything goes here"},
		{"x", ""},
		{"New York", "Ich war in Nueva York und New-York-City"},
		{"東京", "私は東京に住んでいます"},
	}
	for _, c := range cases {
		m := Find(c[0], c[1])
		assert.True(t, m.Expanded.Contains(m.Window), "Find(%q, %q) = %+v", c[0], c[1], m)
		assert.LessOrEqual(t, m.Expanded.End, len([]rune(c[1])))
	}
}

func TestFindScore(t *testing.T) {
	m := Find("Paris", "Ich liebe Paris sehr")
	assert.Equal(t, 100, m.Score)
	assert.Equal(t, Span{Start: 10, End: 15}, m.Window)
	assert.Equal(t, m.Window, m.Expanded)

	m = Find("Paris", "")
	assert.Equal(t, 0, m.Score)
	assert.Equal(t, Span{}, m.Expanded)
}

func TestPlaced(t *testing.T) {
	sentence := "Was ist die Hauptstadt von Frankreich?"
	m := Find("France", sentence)
	assert.Equal(t, "von Frankreich?", string([]rune(sentence)[m.Expanded.Start:m.Expanded.End]))
	assert.True(t, Placed(m, sentence, "Frankreich"))
	assert.False(t, Placed(m, sentence, "Frank"))
	assert.False(t, Placed(m, sentence, ""))

	sentence = "Ich lese Romane in Roma"
	assert.False(t, Placed(Find("Rome", sentence), sentence, "Rom"))
	assert.NotEqual(t, sentence, Relocate("Rome", sentence, "Rom"))
}

func TestReplace(t *testing.T) {
	assert.Equal(t, "aXd", Replace("abcd", Span{Start: 1, End: 3}, "X"))
	assert.Equal(t, "Xabcd", Replace("abcd", Span{}, "X"))
	assert.Equal(t, "東X", Replace("東京", Span{Start: 1, End: 2}, "X"))
}
