// Package distance provides vector distance calculations and metric selection.
package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var ret float32
	for i := range a {
		d := a[i] - b[i]
		ret += d * d
	}

	return ret
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}

	norm2 := Dot(v, v)
	if norm2 == 0 {
		return false
	}

	inv := 1 / float32(math.Sqrt(float64(norm2)))
	for i := range v {
		v[i] *= inv
	}

	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}

	return dst, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "L2"
	case MetricCosine:
		return "Cosine"
	case MetricDot:
		return "Dot"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// ParseMetric converts a metric name to a Metric. Matching is case-insensitive
// and accepts the common aliases "ip" and "inner-product" for MetricDot.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(s) {
	case "l2", "euclidean":
		return MetricL2, nil
	case "cosine":
		return MetricCosine, nil
	case "dot", "ip", "inner-product":
		return MetricDot, nil
	default:
		return 0, fmt.Errorf("unknown metric: %q", s)
	}
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric. The returned
// function yields smaller values for closer vectors regardless of metric:
// cosine assumes unit vectors (0.5 * squared L2 equals 1 - cos for those), and
// dot is negated so that higher similarity sorts first.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine:
		return func(a, b []float32) float32 {
			return 0.5 * SquaredL2(a, b)
		}, nil
	case MetricDot:
		return func(a, b []float32) float32 {
			return -Dot(a, b)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Similarity converts a distance produced by Provider(m) into a similarity
// score where higher means more alike. L2 distances map into (0, 1] via
// 1/(1+d), cosine distances map to 1-d, and dot distances map back to the raw
// dot product. Used by near-duplicate suppression thresholds.
func Similarity(m Metric, d float32) float32 {
	switch m {
	case MetricCosine:
		return 1 - d
	case MetricDot:
		return -d
	default:
		return 1 / (1 + d)
	}
}

// NeedsNormalization reports whether vectors must be L2-normalized before
// insertion and search under the given metric.
func NeedsNormalization(m Metric) bool {
	return m == MetricCosine
}
