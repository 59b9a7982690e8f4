package kmeans

import (
	"context"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/internal/sampling"
)

// Random initializes centroids by drawing K rows uniformly at random,
// the degenerate case of the weighted reservoir with weight 1 everywhere.
type Random struct{}

// Initialize implements Initializer.
func (Random) Initialize(ctx context.Context, src dataset.Source, cfg Config) ([]float32, dataset.RowStats, error) {
	cands, stats, err := sampling.Sample(ctx, src, cfg.K, sampling.Uniform, sampling.Options{
		Workers: cfg.Workers,
		Seed:    cfg.Seed,
	})
	if err != nil {
		return nil, stats, err
	}

	cs := newCentroids(cfg.K, cfg.Dim)
	for i, c := range cands {
		if len(c.Features) != cfg.Dim {
			return nil, stats, &dataset.DimensionMismatchError{Expected: cfg.Dim, Actual: len(c.Features)}
		}
		copy(cs.at(i), c.Features)
		cs.refreshNorm(i)
	}

	if err := verifyCentroids(cs.coords, cfg.Dim); err != nil {
		return nil, stats, err
	}
	return cs.coords, stats, nil
}
