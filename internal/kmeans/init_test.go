package kmeans

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/clusterkit/dataset"
	"github.com/clusterkit/clusterkit/internal/sampling"
)

func identicalRowsSource(t *testing.T, n int) *dataset.Memory {
	t.Helper()
	values := make([]float32, 0, n*2)
	for i := 0; i < n; i++ {
		values = append(values, 1, 2)
	}
	src, err := dataset.NewMemoryDense(2, values)
	require.NoError(t, err)
	return src
}

func TestPlusPlusInitialize(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	src := gaussianSource(t, rng, [][]float32{{0, 0}, {10, 10}}, 50, 0.5)

	coords, stats, err := PlusPlus{}.Initialize(context.Background(), src, testCfg(2, 2, 1))
	require.NoError(t, err)
	require.Len(t, coords, 4)
	assert.EqualValues(t, 100, stats.KeptRows)

	// Squared-distance weighting all but guarantees one pick per blob.
	d0 := float64(coords[0]*coords[0] + coords[1]*coords[1])
	d1 := float64((coords[2]-10)*(coords[2]-10) + (coords[3]-10)*(coords[3]-10))
	if coords[0] > 5 {
		d0 = float64((coords[0]-10)*(coords[0]-10) + (coords[1]-10)*(coords[1]-10))
		d1 = float64(coords[2]*coords[2] + coords[3]*coords[3])
	}
	assert.Less(t, d0, 9.0)
	assert.Less(t, d1, 9.0)
}

func TestPlusPlusInsufficientDistinct(t *testing.T) {
	src := identicalRowsSource(t, 3)
	_, _, err := PlusPlus{}.Initialize(context.Background(), src, testCfg(5, 2, 1))
	assert.ErrorIs(t, err, sampling.ErrInsufficientRows)
}

func TestPlusPlusDimensionMismatch(t *testing.T) {
	rows := []dataset.Vector{
		{Values: []float32{1, 2, 3}, Length: 3},
	}
	src, err := dataset.NewMemory(2, rows)
	require.NoError(t, err)

	_, _, err = PlusPlus{}.Initialize(context.Background(), src, testCfg(1, 2, 1))
	var dm *dataset.DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestPlusPlusDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	src := gaussianSource(t, rng, randomCenters(rng, 4, 3, 12), 30, 0.7)

	a, _, err := PlusPlus{}.Initialize(context.Background(), src, testCfg(4, 3, 1))
	require.NoError(t, err)
	b, _, err := PlusPlus{}.Initialize(context.Background(), src, testCfg(4, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRandomInitialize(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	src := gaussianSource(t, rng, randomCenters(rng, 3, 2, 10), 20, 0.5)

	coords, stats, err := Random{}.Initialize(context.Background(), src, testCfg(3, 2, 1))
	require.NoError(t, err)
	require.Len(t, coords, 6)
	assert.EqualValues(t, 60, stats.KeptRows)

	// Every centroid is an actual row.
	for c := 0; c < 3; c++ {
		found := false
		cur, err := src.Cursor()
		require.NoError(t, err)
		for cur.MoveNext() {
			v := cur.Features()
			if v.Values[0] == coords[c*2] && v.Values[1] == coords[c*2+1] {
				found = true
				break
			}
		}
		require.NoError(t, cur.Close())
		assert.True(t, found, "centroid %d is not a dataset row", c)
	}
}

func TestRandomInsufficientRows(t *testing.T) {
	src := identicalRowsSource(t, 3)
	_, _, err := Random{}.Initialize(context.Background(), src, testCfg(5, 2, 1))
	assert.ErrorIs(t, err, sampling.ErrInsufficientRows)
}

func TestScalableSchedule(t *testing.T) {
	tests := []struct {
		k, rounds, perRound int
	}{
		{2, 1, 1},
		{10, 9, 1},
		{59, 58, 1},
		{60, 5, 120},
		{200, 5, 400},
	}
	for _, tt := range tests {
		rounds, perRound := scalableSchedule(tt.k)
		assert.Equal(t, tt.rounds, rounds, "k=%d", tt.k)
		assert.Equal(t, tt.perRound, perRound, "k=%d", tt.k)
	}
}

func TestCandidateSetScan(t *testing.T) {
	cs := &candidateSet{dim: 2}
	cs.add([]float32{0, 0})
	cs.add([]float32{4, 0})
	cs.add([]float32{0, 4})
	require.Equal(t, 3, cs.count())
	assert.Equal(t, []float32{4, 0}, cs.at(1))

	v := dataset.Vector{Values: []float32{3, 0}, Length: 2}
	best, d := cs.scan(v, v.NormSquared(), 0, cs.count())
	assert.Equal(t, int32(1), best)
	assert.InDelta(t, 1, d, 1e-5)

	// A restricted range ignores better candidates outside it.
	best, d = cs.scan(v, v.NormSquared(), 2, 3)
	assert.Equal(t, int32(2), best)
	assert.InDelta(t, 25, d, 1e-5)
}

func TestScalableSmallK(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	src := gaussianSource(t, rng, randomCenters(rng, 4, 2, 15), 30, 0.4)

	coords, stats, err := Scalable{}.Initialize(context.Background(), src, testCfg(4, 2, 1))
	require.NoError(t, err)
	require.Len(t, coords, 8)
	assert.EqualValues(t, 120, stats.KeptRows)

	// Below the oversampling cutoff the schedule yields exactly K
	// candidates, each of which is a dataset row.
	for c := 0; c < 4; c++ {
		found := false
		cur, err := src.Cursor()
		require.NoError(t, err)
		for cur.MoveNext() {
			v := cur.Features()
			if v.Values[0] == coords[c*2] && v.Values[1] == coords[c*2+1] {
				found = true
				break
			}
		}
		require.NoError(t, cur.Close())
		assert.True(t, found, "centroid %d is not a dataset row", c)
	}
}

func TestScalableOversampled(t *testing.T) {
	// K >= 60 switches to 5 rounds of 2K samples plus a vote-weighted
	// k-means++ reduction.
	rng := rand.New(rand.NewSource(14))
	values := make([]float32, 2000*3)
	for i := range values {
		values[i] = float32(rng.NormFloat64() * 10)
	}
	src, err := dataset.NewMemoryDense(3, values)
	require.NoError(t, err)

	cfg := testCfg(60, 3, 1)
	coords, _, err := Scalable{}.Initialize(context.Background(), src, cfg)
	require.NoError(t, err)
	require.Len(t, coords, 60*3)
	require.NoError(t, verifyCentroids(coords, 3))
}

func TestScalableParallelWorkers(t *testing.T) {
	rng := rand.New(rand.NewSource(15))
	src := gaussianSource(t, rng, randomCenters(rng, 6, 3, 20), 50, 0.6)

	coords, stats, err := Scalable{}.Initialize(context.Background(), src, testCfg(6, 3, 4))
	require.NoError(t, err)
	require.Len(t, coords, 18)
	assert.EqualValues(t, 300, stats.KeptRows)
	require.NoError(t, verifyCentroids(coords, 3))
}

func TestScalableDimensionMismatch(t *testing.T) {
	// A short or long row must surface as a data error from the first
	// full pass, not crash a later scoring pass.
	rows := []dataset.Vector{
		{Values: []float32{0, 0}, Length: 2},
		{Values: []float32{1, 0}, Length: 2},
		{Values: []float32{0, 1}, Length: 2},
		{Values: []float32{4, 4}, Length: 2},
		{Values: []float32{5, 5}, Length: 2},
		{Values: []float32{1, 2, 3}, Length: 3},
	}
	src, err := dataset.NewMemory(2, rows)
	require.NoError(t, err)

	for _, workers := range []int{1, 4} {
		_, _, err = Scalable{}.Initialize(context.Background(), src, testCfg(2, 2, workers))
		var dm *dataset.DimensionMismatchError
		require.ErrorAs(t, err, &dm, "workers=%d", workers)
		assert.Equal(t, 2, dm.Expected)
		assert.Equal(t, 3, dm.Actual)
	}
}

func TestScalableInsufficientDistinct(t *testing.T) {
	src := identicalRowsSource(t, 3)
	_, _, err := Scalable{}.Initialize(context.Background(), src, testCfg(5, 2, 1))
	assert.ErrorIs(t, err, sampling.ErrInsufficientRows)
}

func TestScalableAccelMatchesBruteForce(t *testing.T) {
	// distanceToNearest with the cache must agree with a full scan.
	rng := rand.New(rand.NewSource(16))

	cand := &candidateSet{dim: 3}
	for i := 0; i < 8; i++ {
		cand.add([]float32{
			float32(rng.NormFloat64() * 5),
			float32(rng.NormFloat64() * 5),
			float32(rng.NormFloat64() * 5),
		})
	}

	rows := make([]float32, 100*3)
	for i := range rows {
		rows[i] = float32(rng.NormFloat64() * 5)
	}
	src, err := dataset.NewMemoryDense(3, rows)
	require.NoError(t, err)

	accel, err := newScalableAccel(context.Background(), src, testCfg(8, 3, 1), 100)
	require.NoError(t, err)

	// Simulate two rounds: candidates 0..3 first, then 4..7.
	half := &candidateSet{dim: 3}
	for i := 0; i < 4; i++ {
		half.add(cand.at(i))
	}
	accel.beginRound(half)

	cur, err := src.Cursor()
	require.NoError(t, err)
	for cur.MoveNext() {
		accel.distanceToNearest(cur.Features(), cur.Position(), cur.ID(), half)
	}
	require.NoError(t, cur.Close())

	accel.beginRound(cand)

	cur, err = src.Cursor()
	require.NoError(t, err)
	defer cur.Close()
	for cur.MoveNext() {
		v := cur.Features()
		got := accel.distanceToNearest(v, cur.Position(), cur.ID(), cand)
		_, want := cand.scan(v, v.NormSquared(), 0, cand.count())
		assert.InDelta(t, float64(want), got, math.Max(1e-4, float64(want)*1e-4))
	}
}
