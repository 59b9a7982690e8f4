package distance

import (
	"github.com/clusterkit/clusterkit/internal/math32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	return math32.Dot(a, b)
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	return math32.SquaredL2(a, b)
}

// NormSquared calculates the squared L2 norm of v.
func NormSquared(v []float32) float32 {
	return math32.NormSquared(v)
}

// PointScore returns -2*<x,c> + centroidNormSq, the squared distance from
// x to the centroid c minus the constant ||x||^2 term. Smaller is closer.
// centroidNormSq must be NormSquared(c); it is passed in because callers
// cache centroid norms across many points.
func PointScore(x, c []float32, centroidNormSq float32) float32 {
	return -2*math32.Dot(x, c) + centroidNormSq
}

// PointScoreSparse is PointScore for a sparse point given as parallel
// value/index slices.
func PointScoreSparse(values []float32, indices []int32, c []float32, centroidNormSq float32) float32 {
	return -2*math32.DotSparse(values, indices, c) + centroidNormSq
}

// Add accumulates src into dst in place. Lengths must match.
func Add(dst, src []float32) {
	math32.Add(dst, src)
}

// AddSparse accumulates a sparse vector given as parallel value/index
// slices into the dense accumulator dst.
func AddSparse(dst, values []float32, indices []int32) {
	math32.AddSparse(dst, values, indices)
}

// AddScaled accumulates src*factor into dst in place. Lengths must match.
func AddScaled(dst, src []float32, factor float32) {
	math32.AddScaled(dst, src, factor)
}

// ScaleInPlace multiplies all elements of dst by factor.
func ScaleInPlace(dst []float32, factor float32) {
	math32.ScaleInPlace(dst, factor)
}
