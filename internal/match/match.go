package match

import (
	"fmt"
	"math"
)

// EmbeddingDim is the vector length produced by the face model.
const EmbeddingDim = 128

// Candidate is a stored embedding eligible for matching.
type Candidate struct {
	StudentID string
	Embedding []float64
}

// Result describes the closest stored embedding for a query.
type Result struct {
	StudentID string
	Index     int
	Distance  float64
}

// EuclideanDistance returns the L2 distance between two vectors.
// Mismatched or empty vectors yield +Inf so they can never win a scan.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Nearest scans all candidates and returns the one closest to query.
// The second return is false when candidates is empty.
func Nearest(query []float64, candidates []Candidate) (Result, bool) {
	best := Result{Index: -1, Distance: math.Inf(1)}
	for i, c := range candidates {
		d := EuclideanDistance(query, c.Embedding)
		if d < best.Distance {
			best = Result{StudentID: c.StudentID, Index: i, Distance: d}
		}
	}
	return best, best.Index >= 0
}

// Matcher applies a fixed accept threshold to nearest-neighbor results.
type Matcher struct {
	Threshold float64
}

// DefaultThreshold mirrors the tolerance the face model is tuned for.
const DefaultThreshold = 0.5

// Match returns the nearest candidate and whether it clears the threshold.
// Accept requires distance strictly below the threshold; there is no
// second-best margin check.
func (m Matcher) Match(query []float64, candidates []Candidate) (Result, bool) {
	t := m.Threshold
	if t <= 0 {
		t = DefaultThreshold
	}
	res, ok := Nearest(query, candidates)
	if !ok {
		return res, false
	}
	return res, res.Distance < t
}

// Confidence converts a distance into a display percentage, (1-d)*100
// clamped to [0,100]. Cosmetic only; never part of the accept decision.
func Confidence(distance float64) float64 {
	c := (1 - distance) * 100
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}

// FormatConfidence renders a distance as a percentage string, e.g. "97.53%".
func FormatConfidence(distance float64) string {
	return fmt.Sprintf("%.2f%%", Confidence(distance))
}

// Mean returns the coordinate-wise mean of the given vectors. All vectors
// must share the same length; nil is returned when they do not or when the
// input is empty.
func Mean(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	out := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil
		}
		for i, x := range v {
			out[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}
