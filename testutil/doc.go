// Package testutil provides testing utilities for korpus.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vec := make([]float32, 128)
//	rng.FillUniform(vec) // uniform [0, 1)
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.BruteForceSearch(dataset, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approxResults)
package testutil
