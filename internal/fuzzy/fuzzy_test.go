package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},        // substitution
		{"abc", "abcd", 1},       // insertion
		{"abcd", "abc", 1},       // deletion
		{"kitten", "sitting", 3}, // classic example
		{"trek100", "trek1oo", 2},
		{"télé", "tele", 2}, // runes, not bytes
	}

	for _, tc := range tests {
		got := LevenshteinDistance(tc.a, tc.b)
		assert.Equal(t, tc.want, got, "LevenshteinDistance(%q, %q)", tc.a, tc.b)
	}
}

func TestRatio(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, Ratio("", ""), 1e-9)
	assert.InDelta(t, 2.0/7.0, Ratio("trek100", "trek1oo"), 1e-9)
	assert.InDelta(t, 1.0, Ratio("abc", "xyz"), 1e-9)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		target    any
		candidate any
		exact     bool
		want      bool
	}{
		{"identical", "Trek100", "Trek100", false, true},
		{"case and whitespace", "  TREK100 ", "trek100", true, true},
		{"fuzzy within threshold", "Trek100", "Trek1OO", false, true},
		{"fuzzy rejected when exact", "Trek100", "Trek1OO", true, false},
		{"short strings never fuzzy", "ab", "abc", false, false},
		{"short strings equal", "ab", " AB", false, true},
		{"far apart", "trek", "giant", false, false},
		{"numbers equal", 42, 42.0, false, true},
		{"numbers differ", 42, 43, false, false},
		{"numbers ignore fuzz", 100, 101, false, false},
		{"mixed operands", "42", 42, false, false},
		{"nil target", nil, "abc", false, false},
		{"nil candidate", "abc", nil, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Match(tc.target, tc.candidate, tc.exact))
		})
	}
}

func TestMatch_Reflexive(t *testing.T) {
	t.Parallel()

	for _, v := range []any{"a", "ab", "Trek 100", "  padded  ", 0, 3.5, int64(7)} {
		assert.True(t, Match(v, v, false), "Match(%v, %v) should be reflexive", v, v)
	}
}

func TestMatcher_Threshold(t *testing.T) {
	t.Parallel()

	// "trek1" vs "trek2" has ratio 0.2.
	assert.True(t, NewMatcher(0.3).Match("trek1", "trek2", false))
	assert.False(t, NewMatcher(0.2).Match("trek1", "trek2", false))

	// Out-of-range thresholds fall back to the default.
	assert.InDelta(t, DefaultThreshold, NewMatcher(0).Threshold, 1e-9)
	assert.InDelta(t, DefaultThreshold, NewMatcher(1.5).Threshold, 1e-9)
	assert.True(t, Matcher{}.Match("Trek100", "Trek1OO", false))
}

func TestMatcher_Best(t *testing.T) {
	t.Parallel()

	candidates := []Candidate{
		{Keys: []string{"Trek 100", "BK-41"}, Index: 0},
		{Keys: []string{"Trek 101", "BK-42"}, Index: 1},
		{Keys: []string{"Giant Escape", "BK-43"}, Index: 2},
	}
	m := NewMatcher(DefaultThreshold)

	idx, ok := m.Best("bk-42", candidates)
	assert.True(t, ok)
	assert.Equal(t, 1, idx, "exact hash match wins")

	idx, ok = m.Best("trek 101", candidates)
	assert.True(t, ok)
	assert.Equal(t, 1, idx, "exact name match wins over earlier fuzzy match")

	idx, ok = m.Best("giant escap", candidates)
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = m.Best("trek 10x", candidates)
	assert.True(t, ok)
	assert.Equal(t, 0, idx, "ties keep the earliest candidate")

	_, ok = m.Best("specialized", candidates)
	assert.False(t, ok)

	_, ok = m.Best("   ", candidates)
	assert.False(t, ok)
}
