// Package kmeans implements the clustering core: the three
// initialization strategies (k-means++, k-means|| and uniform random)
// and the Yin-Yang accelerated Lloyd refinement loop.
package kmeans

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/distance"
	"github.com/clusterkit/clusterkit/internal/rowmap"
)

// coincidentEpsilon is the sampling weight below which a point is
// considered coincident with an already-chosen centroid and excluded
// from candidate selection.
const coincidentEpsilon = 1e-38

// Config carries the trainer settings the core algorithms need.
type Config struct {
	K             int
	Dim           int
	Workers       int
	Seed          int64
	MaxIterations int
	Tolerance     float64

	// MemoryBudgetBytes bounds the acceleration structures; see budget.go.
	MemoryBudgetBytes int64

	// StrictScore includes triangle-inequality-filtered points in the
	// convergence score denominator. The historical behavior (false)
	// excludes them; see lloyd.go.
	StrictScore bool

	// LongRunThreshold is the projected k-means++ duration above which a
	// warning suggesting k-means|| is logged. Advisory only.
	LongRunThreshold time.Duration

	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

// Initializer produces the K starting centroids from a data source and
// reports the row statistics observed while doing so.
type Initializer interface {
	Initialize(ctx context.Context, src dataset.Source, cfg Config) ([]float32, dataset.RowStats, error)
}

// centroids is the arena of per-cluster parallel arrays: flattened
// coordinates plus the cached squared L2 norm per cluster. The norm
// cache is refreshed via refreshNorm whenever coordinates change.
type centroids struct {
	k, dim int
	coords []float32
	normSq []float32
}

func newCentroids(k, dim int) *centroids {
	return &centroids{
		k:      k,
		dim:    dim,
		coords: make([]float32, k*dim),
		normSq: make([]float32, k),
	}
}

func (c *centroids) at(i int) []float32 {
	return c.coords[i*c.dim : (i+1)*c.dim]
}

func (c *centroids) refreshNorm(i int) {
	c.normSq[i] = distance.NormSquared(c.at(i))
}

// nearest returns the closest of the first n clusters to v together
// with its distance-minus-norm score.
func (c *centroids) nearest(v dataset.Vector, n int) (int, float32) {
	best, bestScore := -1, float32(0)
	for i := 0; i < n; i++ {
		score := v.Score(c.at(i), c.normSq[i])
		if best == -1 || score < bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// checkDim validates a row against the configured dimensionality.
func checkDim(v dataset.Vector, dim int) error {
	if v.Length != dim {
		return &dataset.DimensionMismatchError{Expected: dim, Actual: v.Length}
	}
	return nil
}

// openCursors opens one cursor for a sequential pass or a partitioned
// cursor set for a parallel one.
func openCursors(src dataset.Source, workers int) ([]dataset.Cursor, error) {
	if workers <= 1 {
		cur, err := src.Cursor()
		if err != nil {
			return nil, err
		}
		return []dataset.Cursor{cur}, nil
	}
	return src.CursorSet(workers)
}

// accelIndexFunc adapts a row map to cursor coordinates. A nil map
// disables acceleration entirely.
func accelIndexFunc(m *rowmap.Map) func(pos int64, id dataset.RowID) int32 {
	if m == nil {
		return func(int64, dataset.RowID) int32 { return rowmap.NotMapped }
	}
	return m.IndexOf
}
