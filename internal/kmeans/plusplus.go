package kmeans

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/internal/sampling"
)

// PlusPlus is the k-means++ initializer: each new centroid is drawn
// with probability proportional to its squared distance from the
// centroids already chosen.
//
// Selection is a strictly sequential accumulation, so this initializer
// always runs single-threaded regardless of the configured worker
// count. It makes K full passes over the data; for large K prefer
// Scalable (k-means||).
type PlusPlus struct{}

// Initialize implements Initializer.
func (PlusPlus) Initialize(ctx context.Context, src dataset.Source, cfg Config) ([]float32, dataset.RowStats, error) {
	cs := newCentroids(cfg.K, cfg.Dim)
	var stats dataset.RowStats

	rng := rand.New(rand.NewSource(cfg.Seed))

	// A one-row reservoir needs no heap: track the best key seen and
	// keep two row buffers, swapping instead of reallocating.
	bestBuf := make([]float32, cfg.Dim)
	spare := make([]float32, cfg.Dim)

	start := time.Now()
	warned := false

	for i := 0; i < cfg.K; i++ {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		cur, err := src.Cursor()
		if err != nil {
			return nil, stats, err
		}

		bestKey := math.Inf(-1)
		rows := 0
		for cur.MoveNext() {
			rows++
			if rows%4096 == 0 {
				if err := ctx.Err(); err != nil {
					cur.Close()
					return nil, stats, err
				}
			}

			v := cur.Features()
			if i == 0 {
				if err := checkDim(v, cfg.Dim); err != nil {
					cur.Close()
					return nil, stats, err
				}
			}

			w := float64(cur.Weight())
			if i > 0 {
				_, score := cs.nearest(v, i)
				d := float64(v.NormSquared() + score)
				if d < 0 {
					d = 0 // rounding in the minus-norm trick
				}
				w *= d
				if w <= coincidentEpsilon {
					// Coincides with a chosen centroid; never re-select.
					continue
				}
			}
			if w == 0 {
				w = math.SmallestNonzeroFloat64
			}

			u := rng.Float64()
			for u == 0 {
				u = rng.Float64()
			}
			if key := math.Log(u) / w; key > bestKey {
				bestKey = key
				v.CopyTo(spare)
				spare, bestBuf = bestBuf, spare
			}
		}

		if i == 0 {
			stats = cur.Stats()
		}
		if err := cur.Close(); err != nil {
			return nil, stats, err
		}

		if math.IsInf(bestKey, -1) {
			return nil, stats, sampling.ErrInsufficientRows
		}

		copy(cs.at(i), bestBuf)
		cs.refreshNorm(i)

		if !warned && i == 4 && cfg.LongRunThreshold > 0 {
			warned = true
			projected := time.Since(start) / 5 * time.Duration(cfg.K)
			if projected > cfg.LongRunThreshold {
				cfg.logger().Warn("k-means++ initialization is projected to run long; consider the k-means|| initializer",
					"projected", projected, "threshold", cfg.LongRunThreshold, "k", cfg.K)
			}
		}
	}

	if err := verifyCentroids(cs.coords, cfg.Dim); err != nil {
		return nil, stats, err
	}
	return cs.coords, stats, nil
}
