package clusterkit

import (
	"context"
	"runtime"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/internal/kmeans"
	"github.com/clusterkit/clusterkit/internal/rowmap"
)

// Result is a trained clustering model.
type Result struct {
	// Centroids holds the K cluster centers, each of the source's
	// dimensionality. Every coordinate is finite.
	Centroids [][]float32
	// Iterations is the number of refinement passes performed.
	Iterations int
	// Converged reports whether the mean score settled within the
	// tolerance before the iteration cap.
	Converged bool
	// AvgScore is the final iteration's mean distance-minus-norm score.
	AvgScore float64
	// Stats are the row counters from the first full data pass.
	Stats dataset.RowStats
}

// Train computes k cluster centroids from src.
//
// Initialization (k-means|| by default) seeds the centroids, then the
// Yin-Yang accelerated Lloyd loop refines them one full data pass per
// iteration until the mean score stabilizes or the iteration cap is
// reached. Rows with non-finite features are skipped and counted in
// Result.Stats; fewer distinct points than k is a fatal error.
func Train(ctx context.Context, src dataset.Source, k int, opts ...Option) (*Result, error) {
	o := options{
		initialization:   InitKMeansParallel,
		maxIterations:    DefaultMaxIterations,
		tolerance:        DefaultTolerance,
		memoryBudgetMB:   DefaultMemoryBudgetMB,
		concurrency:      defaultConcurrency(),
		seed:             42,
		longRunThreshold: DefaultLongRunThreshold,
		logger:           NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if k <= 0 {
		return nil, ErrInvalidK
	}
	if o.maxIterations <= 0 {
		return nil, ErrInvalidIterations
	}
	if o.tolerance <= 0 {
		return nil, ErrInvalidTolerance
	}
	if o.memoryBudgetMB < 0 {
		return nil, ErrInvalidMemoryBudget
	}
	if o.concurrency <= 0 {
		return nil, ErrInvalidConcurrency
	}
	dim := src.Dimension()
	if dim <= 0 {
		return nil, ErrInvalidDimension
	}

	cfg := kmeans.Config{
		K:                 k,
		Dim:               dim,
		Workers:           o.concurrency,
		Seed:              o.seed,
		MaxIterations:     o.maxIterations,
		Tolerance:         o.tolerance,
		MemoryBudgetBytes: o.memoryBudgetMB << 20,
		StrictScore:       o.strictScore,
		LongRunThreshold:  o.longRunThreshold,
		Logger:            o.logger.Logger,
	}

	var init kmeans.Initializer
	switch o.initialization {
	case InitKMeansPlusPlus:
		init = kmeans.PlusPlus{}
	case InitRandom:
		init = kmeans.Random{}
	default:
		init = kmeans.Scalable{}
	}

	o.logger.Debug("initializing centroids",
		"strategy", o.initialization.String(), "k", k, "dim", dim, "workers", o.concurrency)

	coords, stats, err := init.Initialize(ctx, src, cfg)
	if err != nil {
		return nil, translateError(err)
	}

	rmap, reserved, err := buildRowMap(ctx, src, cfg, stats.KeptRows, &o)
	if err != nil {
		return nil, translateError(err)
	}
	defer o.controller.ReleaseMemory(reserved)

	outcome, err := kmeans.Lloyd(ctx, src, cfg, coords, rmap)
	if err != nil {
		return nil, translateError(err)
	}

	o.logger.Debug("training finished",
		"iterations", outcome.Iterations, "converged", outcome.Converged, "avgScore", outcome.AvgScore)

	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = outcome.Coords[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return &Result{
		Centroids:  centroids,
		Iterations: outcome.Iterations,
		Converged:  outcome.Converged,
		AvgScore:   outcome.AvgScore,
		Stats:      stats,
	}, nil
}

// buildRowMap sizes the acceleration state against the memory budget
// and, when configured, reserves it with the resource controller,
// halving the instance cap until the reservation fits.
func buildRowMap(ctx context.Context, src dataset.Source, cfg kmeans.Config, totalRows int64, o *options) (*rowmap.Map, int64, error) {
	parallel := cfg.Workers > 1
	capM := kmeans.AccelInstanceCap(cfg.MemoryBudgetBytes, cfg.K, cfg.Dim, cfg.Workers, totalRows, parallel)

	var reserved int64
	if o.controller != nil {
		for capM > 0 {
			bytes := kmeans.AccelBytes(capM, parallel)
			if o.controller.TryAcquireMemory(bytes) {
				reserved = bytes
				break
			}
			capM /= 2
		}
		if reserved == 0 {
			o.logger.Warn("resource controller denied acceleration memory; training unaccelerated")
		}
	}

	if !parallel {
		return rowmap.Sequential(capM), reserved, nil
	}
	m, err := rowmap.BuildParallel(ctx, src, capM)
	if err != nil {
		o.controller.ReleaseMemory(reserved)
		return nil, 0, err
	}
	return m, reserved, nil
}

func defaultConcurrency() int {
	n := runtime.GOMAXPROCS(0) / 2
	if n < 1 {
		n = 1
	}
	return n
}
