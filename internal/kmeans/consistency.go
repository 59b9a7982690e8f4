package kmeans

import (
	"errors"
	"fmt"
	"math"
)

// ErrNonFinite means a centroid picked up a NaN or infinite coordinate.
// This indicates numerical divergence and is never recoverable.
var ErrNonFinite = errors.New("non-finite coordinates generated")

// verifyCentroids asserts that every coordinate of every centroid is
// finite. Called after each initialization stage, every 100 training
// iterations and once more before the model is returned.
func verifyCentroids(coords []float32, dim int) error {
	for i, x := range coords {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: centroid %d coordinate %d", ErrNonFinite, i/dim, i%dim)
		}
	}
	return nil
}
