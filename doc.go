// Package clusterkit trains K-Means cluster centroids from streams of
// weighted feature vectors.
//
// The trainer combines three interchangeable initialization strategies
// (k-means++, k-means|| and uniform random) with a Yin-Yang accelerated
// Lloyd refinement loop that uses cached triangle-inequality distance
// bounds to skip most nearest-centroid scans once centroids settle.
//
// # Quick start
//
//	src, _ := dataset.NewMemoryDense(2, points)
//	result, err := clusterkit.Train(ctx, src, 8,
//	    clusterkit.WithInitialization(clusterkit.InitKMeansPlusPlus),
//	    clusterkit.WithTolerance(1e-6),
//	)
//
// Data is consumed through the dataset.Source abstraction: a sequential
// or partitioned cursor over feature vectors that can be re-iterated
// once per training pass. dataset.Memory serves in-memory slices and
// dataset.FileSource streams from (optionally zstd- or lz4-compressed)
// dataset files, memory-mapping uncompressed ones.
//
// # Determinism
//
// Results are reproducible for a fixed seed AND a fixed concurrency,
// because partition boundaries and per-worker random draws depend on
// the worker count.
package clusterkit
