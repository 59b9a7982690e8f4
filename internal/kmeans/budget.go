package kmeans

import "math"

// Per-accelerated-instance byte costs: a cached cluster index (int32)
// plus two float32 distance bounds, and for identifier-keyed maps the
// hash table entry (16-byte RowID, 4-byte index, bucket overhead).
const (
	instanceBytesSequential = 4 + 4 + 4
	instanceBytesParallel   = instanceBytesSequential + 16 + 4 + 24
)

// AccelInstanceCap solves the shared memory calculus for both the
// k-means|| candidate cache and the Yin-Yang training loop: given a
// byte budget, subtract the fixed per-cluster overhead (movement deltas
// plus per-worker accumulator arrays) and divide what remains by the
// per-instance cost. The result is capped at the total row count and
// the maximum array size.
func AccelInstanceCap(budgetBytes int64, k, dim, workers int, totalRows int64, parallel bool) int64 {
	if budgetBytes <= 0 || totalRows <= 0 {
		return 0
	}
	if workers < 1 {
		workers = 1
	}

	// delta + norm cache, plus sums and counts per worker.
	perCluster := int64(4+4) + int64(dim*4+8)*int64(workers)

	perInstance := int64(instanceBytesSequential)
	if parallel {
		perInstance = instanceBytesParallel
	}

	m := (budgetBytes - perCluster*int64(k)) / perInstance
	if m < 0 {
		m = 0
	}
	if m > totalRows {
		m = totalRows
	}
	if m > math.MaxInt32 {
		m = math.MaxInt32
	}
	return m
}

// AccelBytes returns the bytes the per-instance acceleration state for
// m instances costs, for reservation against a resource controller.
func AccelBytes(m int64, parallel bool) int64 {
	if parallel {
		return m * instanceBytesParallel
	}
	return m * instanceBytesSequential
}
