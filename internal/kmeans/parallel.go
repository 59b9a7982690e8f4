package kmeans

import (
	"context"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/distance"
	"github.com/clusterkit/clusterkit/internal/rowmap"
	"github.com/clusterkit/clusterkit/internal/sampling"
)

// Scalable is the k-means|| initializer: several rounds of parallel
// weighted reservoir sampling oversample a candidate set, every row
// then votes for its nearest candidate, and the weighted candidates are
// reduced to exactly K centroids.
type Scalable struct{}

// scalableSchedule returns the round count and per-round sample size.
// Small K degenerates to one candidate per round, which matches
// k-means++ selection but keeps each round parallelizable.
func scalableSchedule(k int) (rounds, perRound int) {
	if k < 60 {
		return k - 1, 1
	}
	return 5, 2 * k
}

// candidateSet is a growable arena of dense candidate points with
// cached squared norms.
type candidateSet struct {
	dim    int
	coords []float32
	normSq []float32
}

func (c *candidateSet) add(v []float32) {
	c.coords = append(c.coords, v...)
	c.normSq = append(c.normSq, distance.NormSquared(v))
}

func (c *candidateSet) count() int { return len(c.normSq) }

func (c *candidateSet) at(i int) []float32 {
	return c.coords[i*c.dim : (i+1)*c.dim]
}

// scan returns the nearest candidate in [from, to) and its true squared
// distance to v. normX is v's cached squared norm.
func (c *candidateSet) scan(v dataset.Vector, normX float32, from, to int) (int32, float32) {
	best, bestScore := int32(-1), float32(0)
	for i := from; i < to; i++ {
		score := v.Score(c.at(i), c.normSq[i])
		if best == -1 || score < bestScore {
			best, bestScore = int32(i), score
		}
	}
	d := normX + bestScore
	if d < 0 {
		d = 0
	}
	return best, d
}

// Initialize implements Initializer.
func (Scalable) Initialize(ctx context.Context, src dataset.Source, cfg Config) ([]float32, dataset.RowStats, error) {
	rounds, perRound := scalableSchedule(cfg.K)

	// The very first candidate is a plain uniform pick. This pass also
	// yields the dataset's row statistics and, because it visits every
	// row, validates dimensionality before anything scores against the
	// candidate set.
	var dimErr atomic.Pointer[dataset.DimensionMismatchError]
	uniform := func(v dataset.Vector, _ int64, _ dataset.RowID) float64 {
		if v.Length != cfg.Dim {
			dimErr.CompareAndSwap(nil, &dataset.DimensionMismatchError{Expected: cfg.Dim, Actual: v.Length})
			return 0
		}
		return 1
	}
	first, stats, err := sampling.Sample(ctx, src, 1, uniform, sampling.Options{
		Workers: cfg.Workers,
		Seed:    cfg.Seed,
	})
	if err != nil {
		return nil, stats, err
	}
	if e := dimErr.Load(); e != nil {
		return nil, stats, e
	}

	cand := &candidateSet{dim: cfg.Dim}
	cand.add(first[0].Features)

	accel, err := newScalableAccel(ctx, src, cfg, stats.KeptRows)
	if err != nil {
		return nil, stats, err
	}

	for round := 0; round < rounds; round++ {
		accel.beginRound(cand)

		weightFn := func(v dataset.Vector, pos int64, id dataset.RowID) float64 {
			return accel.distanceToNearest(v, pos, id, cand)
		}
		picked, _, err := sampling.Sample(ctx, src, perRound, weightFn, sampling.Options{
			Workers:      cfg.Workers,
			Seed:         cfg.Seed + int64(round+1)*104729,
			ExcludeBelow: coincidentEpsilon,
		})
		if err != nil {
			return nil, stats, err
		}
		for _, p := range picked {
			cand.add(p.Features)
		}
	}

	votes, err := voteForCandidates(ctx, src, cfg, cand)
	if err != nil {
		return nil, stats, err
	}

	coords, err := reduceCandidates(ctx, cfg, cand, votes)
	if err != nil {
		return nil, stats, err
	}

	if err := verifyCentroids(coords, cfg.Dim); err != nil {
		return nil, stats, err
	}
	return coords, stats, nil
}

// voteForCandidates makes one full pass assigning every row a weight-1
// vote to its nearest candidate.
func voteForCandidates(ctx context.Context, src dataset.Source, cfg Config, cand *candidateSet) ([]float32, error) {
	cursors, err := openCursors(src, cfg.Workers)
	if err != nil {
		return nil, err
	}

	perWorker := make([][]float32, len(cursors))
	g, gctx := errgroup.WithContext(ctx)
	for i, cur := range cursors {
		i, cur := i, cur
		g.Go(func() error {
			defer cur.Close()
			votes := make([]float32, cand.count())
			rows := 0
			for cur.MoveNext() {
				rows++
				if rows%4096 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				v := cur.Features()
				best, _ := cand.scan(v, v.NormSquared(), 0, cand.count())
				votes[best]++
			}
			perWorker[i] = votes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := make([]float32, cand.count())
	for _, votes := range perWorker {
		distance.Add(total, votes)
	}
	return total, nil
}

// reduceCandidates turns the weighted candidate set into exactly K
// centroids: a direct copy when the counts line up, otherwise k-means++
// over the candidates as a small weighted in-memory dataset.
func reduceCandidates(ctx context.Context, cfg Config, cand *candidateSet, votes []float32) ([]float32, error) {
	if cand.count() == cfg.K {
		coords := make([]float32, cfg.K*cfg.Dim)
		copy(coords, cand.coords)
		return coords, nil
	}

	rows := make([]dataset.Vector, cand.count())
	for i := range rows {
		rows[i] = dataset.Vector{Values: cand.at(i), Length: cfg.Dim}
	}
	mem, err := dataset.NewMemory(cfg.Dim, rows, dataset.WithWeights(votes))
	if err != nil {
		return nil, err
	}

	subCfg := cfg
	subCfg.Workers = 1
	subCfg.Seed = cfg.Seed + 1
	subCfg.LongRunThreshold = 0

	coords, _, err := PlusPlus{}.Initialize(ctx, mem, subCfg)
	return coords, err
}

// scalableAccel caches each accelerated row's nearest candidate and its
// squared distance, so later rounds only score a row against candidates
// added since the cache was written - and the new-to-old candidate
// distance cache lets the triangle inequality skip most of those.
type scalableAccel struct {
	indexOf     func(pos int64, id dataset.RowID) int32
	bestCluster []int32
	bestDistSq  []float32

	// newStart..known-1 are the candidates added since the per-instance
	// caches were last written; cached bestCluster values are < newStart.
	newStart int
	known    int
	// newToOld[(i-newStart)*newStart + o] is the distance between new
	// candidate i and old candidate o; nil when over the cache budget.
	newToOld []float32
	maxCache int
}

func newScalableAccel(ctx context.Context, src dataset.Source, cfg Config, totalRows int64) (*scalableAccel, error) {
	capM := AccelInstanceCap(cfg.MemoryBudgetBytes, cfg.K, cfg.Dim, cfg.Workers, totalRows, cfg.Workers > 1)

	var m *rowmap.Map
	if cfg.Workers > 1 {
		var err error
		m, err = rowmap.BuildParallel(ctx, src, capM)
		if err != nil {
			return nil, err
		}
	} else {
		m = rowmap.Sequential(capM)
	}

	a := &scalableAccel{
		indexOf:     accelIndexFunc(m),
		bestCluster: make([]int32, m.Cap()),
		bestDistSq:  make([]float32, m.Cap()),
		// The candidate distance cache gets a quarter of the byte budget.
		maxCache: int(cfg.MemoryBudgetBytes / 4 / 4),
	}
	for i := range a.bestCluster {
		a.bestCluster[i] = -1
	}
	return a, nil
}

// beginRound moves the candidate watermark forward and precomputes
// distances from candidates added last round to all older ones.
func (a *scalableAccel) beginRound(cand *candidateSet) {
	total := cand.count()
	newCount := total - a.known

	a.newToOld = nil
	if a.known > 0 && newCount > 0 && newCount*a.known <= a.maxCache {
		cache := make([]float32, newCount*a.known)
		for n := 0; n < newCount; n++ {
			nv := cand.at(a.known + n)
			for o := 0; o < a.known; o++ {
				cache[n*a.known+o] = float32(math.Sqrt(float64(distance.SquaredL2(nv, cand.at(o)))))
			}
		}
		a.newToOld = cache
	}

	a.newStart = a.known
	a.known = total
}

// distanceToNearest returns the squared distance from v to its nearest
// candidate, refreshing the per-instance cache. Concurrent calls are
// safe because the row map guarantees no two workers share a row slot.
func (a *scalableAccel) distanceToNearest(v dataset.Vector, pos int64, id dataset.RowID, cand *candidateSet) float64 {
	normX := v.NormSquared()

	n := a.indexOf(pos, id)
	if n == rowmap.NotMapped {
		_, d := cand.scan(v, normX, 0, a.known)
		return float64(d)
	}
	if a.bestCluster[n] < 0 || a.newStart == 0 {
		best, d := cand.scan(v, normX, 0, a.known)
		a.bestCluster[n], a.bestDistSq[n] = best, d
		return float64(d)
	}

	// Old candidates did not move, so the cached nearest-of-the-old
	// stands; only candidates in [newStart, known) can improve on it.
	best, bestD := a.bestCluster[n], a.bestDistSq[n]
	bestDist := float32(math.Sqrt(float64(bestD)))

	for i := a.newStart; i < a.known; i++ {
		if a.newToOld != nil && int(best) < a.newStart {
			// d(x, c_new) >= d(c_best, c_new) - d(x, c_best): a candidate
			// at least twice as far from the cached best cannot win.
			if a.newToOld[(i-a.newStart)*a.newStart+int(best)] >= 2*bestDist {
				continue
			}
		}
		score := v.Score(cand.at(i), cand.normSq[i])
		if d := normX + score; d < bestD {
			best, bestD = int32(i), d
			if bestD < 0 {
				bestD = 0
			}
			bestDist = float32(math.Sqrt(float64(bestD)))
		}
	}

	a.bestCluster[n], a.bestDistSq[n] = best, bestD
	return float64(bestD)
}
