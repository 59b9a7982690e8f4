// Package math32 provides float32 vector kernels used by the distance
// package and the centroid accumulators. This is an internal package -
// external users should go through the distance package.
package math32

// Dot calculates the dot product of two equal-length vectors.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 calculates the squared L2 distance between two equal-length vectors.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		distance += (a[i] - b[i]) * (a[i] - b[i])
	}

	return distance
}

// NormSquared calculates the sum of squares of v.
func NormSquared(v []float32) float32 {
	var ret float32
	for i := range v {
		ret += v[i] * v[i]
	}

	return ret
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}

// Add accumulates src into dst element-wise. Lengths must match;
// a mismatch is a caller bug and panics via the bounds check.
func Add(dst, src []float32) {
	_ = dst[len(src)-1]
	for i := range src {
		dst[i] += src[i]
	}
}

// AddScaled accumulates src*factor into dst element-wise.
func AddScaled(dst, src []float32, factor float32) {
	_ = dst[len(src)-1]
	for i := range src {
		dst[i] += src[i] * factor
	}
}

// DotSparse calculates the dot product of a sparse vector (values at
// the given indices, zero elsewhere) with a dense vector.
func DotSparse(values []float32, indices []int32, dense []float32) float32 {
	var ret float32
	for i, idx := range indices {
		ret += values[i] * dense[idx]
	}

	return ret
}

// AddSparse accumulates a sparse vector into a dense accumulator.
func AddSparse(dst []float32, values []float32, indices []int32) {
	for i, idx := range indices {
		dst[idx] += values[i]
	}
}

// AddScaledSparse accumulates a sparse vector scaled by factor into a
// dense accumulator.
func AddScaledSparse(dst []float32, values []float32, indices []int32, factor float32) {
	for i, idx := range indices {
		dst[idx] += values[i] * factor
	}
}
