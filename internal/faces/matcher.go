// Package faces clusters unassigned face embeddings into people. The
// matcher is a pure similarity decision; the grouping engine applies it
// greedily over a bounded batch of faces.
package faces

import (
	"github.com/jcalado/lumina-sub001/internal/database"
)

// Matcher decides whether two face embeddings belong to the same
// person. Pure, no I/O.
type Matcher struct {
	threshold float64
}

// NewMatcher creates a matcher with the given similarity threshold in
// [0, 1].
func NewMatcher(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured similarity threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Score computes the cosine similarity between two embeddings. Invalid
// input (mismatched length, zero vector) scores -1 and never matches.
func (m *Matcher) Score(a, b []float32) float64 {
	return database.CosineSimilarity(a, b)
}

// IsMatch reports whether the two embeddings score at or above the
// threshold.
func (m *Matcher) IsMatch(a, b []float32) bool {
	return m.Score(a, b) >= m.threshold
}
