// Package fuzzy reconciles free-text form input against canonical records.
//
// Strings are compared after trimming and lower-casing. Non-exact comparisons
// fall back to a bounded Levenshtein ratio; numbers always compare exactly.
package fuzzy

import (
	"strings"
)

const (
	// DefaultThreshold is the edit ratio below which two strings match.
	DefaultThreshold = 0.3

	// MinFuzzyLength is the shortest normalized string eligible for
	// edit-distance matching. Shorter strings only match when equal.
	MinFuzzyLength = 3
)

// Matcher compares form values with a fixed threshold.
// The zero value uses DefaultThreshold.
type Matcher struct {
	Threshold float64
}

// NewMatcher returns a Matcher using threshold, or DefaultThreshold when
// threshold is outside (0, 1].
func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

func (m Matcher) threshold() float64 {
	if m.Threshold <= 0 || m.Threshold > 1 {
		return DefaultThreshold
	}
	return m.Threshold
}

// Match reports whether target and candidate refer to the same value.
//
// Numeric operands match only on exact numeric equality, regardless of exact.
// String operands are trimmed and lower-cased; with exact set they must then
// be equal, otherwise they match when equal or when both are at least
// MinFuzzyLength runes long and their edit ratio is below the threshold.
// Mixed or nil operands never match.
func (m Matcher) Match(target, candidate any, exact bool) bool {
	if tn, ok := toNumber(target); ok {
		cn, ok := toNumber(candidate)
		return ok && tn == cn
	}

	ts, ok := target.(string)
	if !ok {
		return false
	}
	cs, ok := candidate.(string)
	if !ok {
		return false
	}

	a := Normalize(ts)
	b := Normalize(cs)
	if a == b {
		return true
	}
	if exact {
		return false
	}
	if len([]rune(a)) < MinFuzzyLength || len([]rune(b)) < MinFuzzyLength {
		return false
	}
	return Ratio(a, b) < m.threshold()
}

// Score returns the normalized edit ratio between two strings after
// normalization. Lower is closer; 0 means equal.
func (m Matcher) Score(target, candidate string) float64 {
	return Ratio(Normalize(target), Normalize(candidate))
}

// Candidate is one canonical record offered to Best.
type Candidate struct {
	// Keys are the identifiers the record answers to (name, hash, etc.).
	Keys []string
	// Index is returned to the caller to locate the record.
	Index int
}

// Best returns the index of the candidate that best matches input, or
// false when nothing matches. An exact normalized match on any key wins
// outright; otherwise the lowest matching ratio wins and ties keep the
// earliest candidate.
func (m Matcher) Best(input string, candidates []Candidate) (int, bool) {
	norm := Normalize(input)
	if norm == "" {
		return 0, false
	}

	for _, c := range candidates {
		for _, k := range c.Keys {
			if k != "" && Normalize(k) == norm {
				return c.Index, true
			}
		}
	}

	bestIdx := 0
	bestScore := 2.0
	found := false
	for _, c := range candidates {
		for _, k := range c.Keys {
			if k == "" || !m.Match(input, k, false) {
				continue
			}
			if s := m.Score(input, k); s < bestScore {
				bestScore = s
				bestIdx = c.Index
				found = true
			}
		}
	}
	return bestIdx, found
}

// Match is Matcher.Match with DefaultThreshold.
func Match(target, candidate any, exact bool) bool {
	return Matcher{}.Match(target, candidate, exact)
}

// Normalize trims surrounding whitespace and lower-cases s.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
