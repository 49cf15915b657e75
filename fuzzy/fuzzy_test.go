package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"France", "France", 100},
		{"France", "Frankreich", 62}, // 62.5 rounds to even
		{"kitten", "sitting", 62},
		{"abc", "abd", 67},
		{"abc", "xyz", 0},
		{"a", "A", 0},
		{"", "France", 0},
		{"France", "", 0},
		{"", "", 0},
		{"東京", "東京都", 80},
		{"ab", "abab", 67},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ratio(tt.a, tt.b), "Ratio(%q, %q)", tt.a, tt.b)
	}
}

func TestRatioSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"Paris", "Parigi"},
		{"New York", "Nueva York"},
		{"Zürich", "Zurich"},
	}
	for _, p := range pairs {
		assert.Equal(t, Ratio(p[0], p[1]), Ratio(p[1], p[0]))
	}
}

func TestRatioBounds(t *testing.T) {
	for _, s := range []string{"a", "hello world", "ünïcödé"} {
		r := Ratio(s, "hello")
		assert.GreaterOrEqual(t, r, 0)
		assert.LessOrEqual(t, r, 100)
	}
}
