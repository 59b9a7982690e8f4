package kmeans

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccelInstanceCap(t *testing.T) {
	t.Run("zero budget disables acceleration", func(t *testing.T) {
		assert.EqualValues(t, 0, AccelInstanceCap(0, 10, 128, 4, 1_000_000, false))
		assert.EqualValues(t, 0, AccelInstanceCap(-1, 10, 128, 4, 1_000_000, false))
	})

	t.Run("zero rows", func(t *testing.T) {
		assert.EqualValues(t, 0, AccelInstanceCap(1<<30, 10, 128, 4, 0, false))
	})

	t.Run("per cluster overhead can exhaust the budget", func(t *testing.T) {
		// 1000 clusters of 128 dims across 8 workers dwarf a 1 KiB budget.
		assert.EqualValues(t, 0, AccelInstanceCap(1024, 1000, 128, 8, 1_000_000, false))
	})

	t.Run("large budget caps at total rows", func(t *testing.T) {
		assert.EqualValues(t, 500, AccelInstanceCap(1<<30, 5, 8, 2, 500, false))
		assert.EqualValues(t, 500, AccelInstanceCap(1<<30, 5, 8, 2, 500, true))
	})

	t.Run("exact division", func(t *testing.T) {
		// budget = perCluster*k + perInstance*m exactly.
		k, dim, workers := 3, 4, 2
		perCluster := int64(4+4) + int64(dim*4+8)*int64(workers)
		budget := perCluster*int64(k) + instanceBytesSequential*100
		assert.EqualValues(t, 100, AccelInstanceCap(budget, k, dim, workers, 1_000_000, false))
	})

	t.Run("parallel instances cost more", func(t *testing.T) {
		budget := int64(1 << 20)
		seq := AccelInstanceCap(budget, 5, 16, 4, math.MaxInt64/2, false)
		par := AccelInstanceCap(budget, 5, 16, 4, math.MaxInt64/2, true)
		assert.Greater(t, seq, par)
	})

	t.Run("never exceeds MaxInt32", func(t *testing.T) {
		m := AccelInstanceCap(math.MaxInt64/4, 1, 1, 1, math.MaxInt64/4, false)
		assert.LessOrEqual(t, m, int64(math.MaxInt32))
	})
}

func TestAccelBytes(t *testing.T) {
	assert.EqualValues(t, 100*instanceBytesSequential, AccelBytes(100, false))
	assert.EqualValues(t, 100*instanceBytesParallel, AccelBytes(100, true))
	assert.EqualValues(t, 0, AccelBytes(0, true))
}

func TestVerifyCentroids(t *testing.T) {
	assert.NoError(t, verifyCentroids([]float32{1, 2, 3, 4}, 2))

	err := verifyCentroids([]float32{1, 2, float32(math.NaN()), 4}, 2)
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.ErrorContains(t, err, "centroid 1 coordinate 0")

	err = verifyCentroids([]float32{1, 2, 3, float32(math.Inf(-1))}, 2)
	assert.ErrorIs(t, err, ErrNonFinite)
}
