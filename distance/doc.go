// Package distance provides vector distance calculations and metric helpers.
//
// # Supported Metrics
//
//   - MetricL2: Squared Euclidean distance (default)
//   - MetricCosine: Cosine distance over unit vectors
//   - MetricDot: Dot product (inner product), negated into a distance
//
// # Usage
//
//	dist := distance.SquaredL2(a, b)
//	fn, _ := distance.Provider(distance.MetricCosine)
//	d := fn(a, b)
//	sim := distance.Similarity(distance.MetricCosine, d)
package distance
