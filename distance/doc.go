// Package distance provides the float32 vector kernels used throughout
// the trainer: dot products, squared L2 distances and the in-place
// accumulator operations that build centroids.
//
// # The distance-minus-norm trick
//
// When ranking centroids by distance to a fixed point x, the term
// ||x||^2 is constant and can be dropped:
//
//	||x - c||^2 = ||x||^2 - 2<x,c> + ||c||^2
//
// PointScore returns -2<x,c> + ||c||^2; callers that need the true
// squared distance add NormSquared(x) back once.
package distance
