// Package sampling implements weighted reservoir sampling over dataset
// cursors using the A-Res scheme: each row gets the key log(U)/w for a
// uniform U, and the n rows with the largest keys form a sample whose
// selection probability is proportional to w.
package sampling

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/clusterkit/clusterkit/dataset"
)

// ErrInsufficientRows means fewer rows with usable weight exist than
// the requested sample size.
var ErrInsufficientRows = errors.New("not enough distinct instances to sample from")

// Candidate is one sampled row.
type Candidate struct {
	// Features is a dense copy of the row, owned by the caller.
	Features []float32
	// Weight is the row's example weight as reported by the cursor.
	Weight float32
	// ID is the row's stable identifier.
	ID dataset.RowID
}

// WeightFunc returns the sampling weight of the current row. Must be
// >= 0; negative values are clamped.
type WeightFunc func(v dataset.Vector, pos int64, id dataset.RowID) float64

// Uniform weights every row equally.
func Uniform(dataset.Vector, int64, dataset.RowID) float64 { return 1 }

// Options tune a sampling pass.
type Options struct {
	// Workers is the partition fan-out; <= 1 means one sequential pass.
	Workers int
	// Seed is the base RNG seed. Worker i draws from seed+i, so results
	// reproduce only for a fixed worker count.
	Seed int64
	// ExcludeBelow drops rows whose weight is at or below this threshold
	// instead of sampling them. Zero keeps every row: a weight of exactly
	// zero is then bumped to the smallest positive float so its key stays
	// finite.
	ExcludeBelow float64
}

// Sample selects n rows from src with probability proportional to
// weightFn, merging per-partition reservoirs into a single top-n result.
// It also returns the row statistics observed during the pass, since
// sampling is often the first full scan of the data.
func Sample(ctx context.Context, src dataset.Source, n int, weightFn WeightFunc, opts Options) ([]Candidate, dataset.RowStats, error) {
	var stats dataset.RowStats
	if n <= 0 {
		return nil, stats, nil
	}

	cursors, err := openCursors(src, opts.Workers)
	if err != nil {
		return nil, stats, err
	}

	heaps := make([]*reservoirHeap, len(cursors))
	partStats := make([]dataset.RowStats, len(cursors))

	g, gctx := errgroup.WithContext(ctx)
	for i, cur := range cursors {
		i, cur := i, cur
		g.Go(func() error {
			defer cur.Close()
			rng := rand.New(rand.NewSource(opts.Seed + int64(i)))
			h := newReservoirHeap(n)

			rows := 0
			for cur.MoveNext() {
				rows++
				if rows%4096 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}

				w := weightFn(cur.Features(), cur.Position(), cur.ID())
				if w < 0 {
					w = 0
				}
				if opts.ExcludeBelow > 0 && w <= opts.ExcludeBelow {
					continue
				}
				if w == 0 {
					w = math.SmallestNonzeroFloat64
				}

				u := rng.Float64()
				for u == 0 {
					u = rng.Float64()
				}
				key := math.Log(u) / w

				if h.len() == n && key <= h.items[0].key {
					continue
				}
				h.pushBounded(reservoirItem{
					key: key,
					candidate: Candidate{
						Features: cur.Features().Clone(),
						Weight:   cur.Weight(),
						ID:       cur.ID(),
					},
				}, n)
			}

			heaps[i] = h
			partStats[i] = cur.Stats()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	var merged []reservoirItem
	for i, h := range heaps {
		merged = append(merged, h.items...)
		stats.Merge(partStats[i])
	}
	if len(merged) < n {
		return nil, stats, ErrInsufficientRows
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].key > merged[j].key })

	out := make([]Candidate, n)
	for i := range out {
		out[i] = merged[i].candidate
	}
	return out, stats, nil
}

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
