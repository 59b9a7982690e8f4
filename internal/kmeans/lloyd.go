package kmeans

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/distance"
	"github.com/clusterkit/clusterkit/internal/rowmap"
)

// Outcome is the result of the refinement loop.
type Outcome struct {
	// Coords holds the flattened K*Dim centroids.
	Coords []float32
	// Iterations is the number of full data passes performed.
	Iterations int
	// Converged reports whether the score delta fell below the tolerance
	// before the iteration cap.
	Converged bool
	// AvgScore is the final iteration's mean distance-minus-norm score.
	AvgScore float64
}

// accumulator is one worker's private per-cluster state for a single
// pass. Workers never share accumulators; a sequential reduce merges
// them after the barrier.
type accumulator struct {
	k, dim   int
	sums     []float32 // k*dim
	counts   []int64   // k
	scoreSum float64
	scored   int64
	filtered int64
	changed  int64
}

func newAccumulator(k, dim int) *accumulator {
	return &accumulator{
		k:      k,
		dim:    dim,
		sums:   make([]float32, k*dim),
		counts: make([]int64, k),
	}
}

func (a *accumulator) sum(c int32) []float32 {
	return a.sums[int(c)*a.dim : (int(c)+1)*a.dim]
}

func (a *accumulator) reset() {
	clear(a.sums)
	clear(a.counts)
	a.scoreSum, a.scored, a.filtered, a.changed = 0, 0, 0, 0
}

func (a *accumulator) merge(other *accumulator) {
	distance.Add(a.sums, other.sums)
	for c := range a.counts {
		a.counts[c] += other.counts[c]
	}
	a.scoreSum += other.scoreSum
	a.scored += other.scored
	a.filtered += other.filtered
	a.changed += other.changed
}

// Lloyd runs the Yin-Yang accelerated refinement loop: one full pass
// per iteration reassigning every point to its nearest centroid and
// re-averaging, with cached distance bounds letting most points skip
// the scan once centroids settle down.
func Lloyd(ctx context.Context, src dataset.Source, cfg Config, initial []float32, rmap *rowmap.Map) (*Outcome, error) {
	log := cfg.logger()

	// Two centroid arenas swapped each iteration; nothing is reallocated
	// inside the loop.
	cur := newCentroids(cfg.K, cfg.Dim)
	next := newCentroids(cfg.K, cfg.Dim)
	copy(cur.coords, initial)
	for c := 0; c < cfg.K; c++ {
		cur.refreshNorm(c)
	}

	m := int(rmap.Cap())
	upper := make([]float32, m)
	lower := make([]float32, m)
	bestCluster := make([]int32, m)
	for i := range bestCluster {
		bestCluster[i] = -1
	}
	indexOf := accelIndexFunc(rmap)

	delta := make([]float32, cfg.K)
	var maxDelta float32

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	accs := make([]*accumulator, workers)
	total := newAccumulator(cfg.K, cfg.Dim)

	out := &Outcome{Converged: false}
	prevAvg := math.Inf(1)

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		cursors, err := openCursors(src, workers)
		if err != nil {
			return nil, err
		}

		// Parallel region: centroids, norms, delta and the row map are
		// published read-only; bound arrays are slot-partitioned.
		g, gctx := errgroup.WithContext(ctx)
		for wi, c := range cursors {
			if accs[wi] == nil {
				accs[wi] = newAccumulator(cfg.K, cfg.Dim)
			}
			acc := accs[wi]
			acc.reset()
			cursor := c

			g.Go(func() error {
				defer cursor.Close()
				rows := 0
				for cursor.MoveNext() {
					rows++
					if rows%4096 == 0 {
						if err := gctx.Err(); err != nil {
							return err
						}
					}

					v := cursor.Features()
					if iter == 0 {
						if err := checkDim(v, cfg.Dim); err != nil {
							return err
						}
					}

					n := indexOf(cursor.Position(), cursor.ID())
					if iter > 0 && n != rowmap.NotMapped && bestCluster[n] >= 0 {
						b := bestCluster[n]
						upper[n] += delta[b]
						lower[n] -= maxDelta
						if upper[n] < lower[n] {
							// Globally filtered: the triangle inequality
							// proves cluster b is still closest.
							v.AddTo(acc.sum(b))
							acc.counts[b]++
							acc.filtered++
							if cfg.StrictScore {
								acc.scoreSum += float64(v.Score(cur.at(int(b)), cur.normSq[b]))
								acc.scored++
							}
							continue
						}
					}

					normX := v.NormSquared()
					best, bestScore, secondScore := scanBestTwo(v, cur)

					if n != rowmap.NotMapped {
						if bestCluster[n] != best {
							acc.changed++
						}
						bestCluster[n] = best
						upper[n] = sqrtClamp(normX + bestScore)
						lower[n] = sqrtClamp(normX + secondScore)
					}

					v.AddTo(acc.sum(best))
					acc.counts[best]++
					acc.scoreSum += float64(bestScore)
					acc.scored++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		// Reduce: merge worker accumulators, re-average, compute movement.
		total.reset()
		for _, acc := range accs[:len(cursors)] {
			total.merge(acc)
		}

		maxDelta = 0
		for c := 0; c < cfg.K; c++ {
			dst := next.at(c)
			copy(dst, total.sum(int32(c)))
			if n := total.counts[c]; n > 1 {
				distance.ScaleInPlace(dst, 1/float32(n))
			}
			delta[c] = float32(math.Sqrt(float64(distance.SquaredL2(dst, cur.at(c)))))
			if delta[c] > maxDelta {
				maxDelta = delta[c]
			}
			next.refreshNorm(c)
		}
		cur, next = next, cur

		out.Iterations = iter + 1

		// The mean score historically excludes filtered points. When
		// everything was filtered no score exists at all; carrying the
		// previous average forward makes that register as converged
		// instead of dividing by zero. Strict score mode scores filtered
		// points too, so its denominator never collapses.
		avg := prevAvg
		if total.scored > 0 {
			avg = total.scoreSum / float64(total.scored)
		} else {
			log.Warn("every point was triangle-inequality filtered; treating score as unchanged",
				"iteration", out.Iterations)
		}
		out.AvgScore = avg

		log.Debug("k-means iteration",
			"iteration", out.Iterations,
			"avgScore", avg,
			"filtered", total.filtered,
			"reassigned", total.changed,
			"maxDelta", maxDelta)

		if (iter+1)%100 == 0 {
			if err := verifyCentroids(cur.coords, cfg.Dim); err != nil {
				return nil, err
			}
		}

		if math.Abs(prevAvg-avg) < cfg.Tolerance {
			out.Converged = true
			break
		}
		prevAvg = avg
	}

	if err := verifyCentroids(cur.coords, cfg.Dim); err != nil {
		return nil, err
	}
	out.Coords = cur.coords
	return out, nil
}

// scanBestTwo brute-force scans all clusters for the nearest and second
// nearest, returning their distance-minus-norm scores. With a single
// cluster the second score is effectively infinite.
func scanBestTwo(v dataset.Vector, cs *centroids) (best int32, bestScore, secondScore float32) {
	best, bestScore, secondScore = -1, 0, float32(math.MaxFloat32)
	for c := 0; c < cs.k; c++ {
		score := v.Score(cs.at(c), cs.normSq[c])
		switch {
		case best == -1:
			best, bestScore = int32(c), score
		case score < bestScore:
			best, bestScore, secondScore = int32(c), score, bestScore
		case score < secondScore:
			secondScore = score
		}
	}
	return best, bestScore, secondScore
}

func sqrtClamp(x float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}
