// Package dataset defines the data access boundary of the trainer: a
// Source hands out sequential or partitioned Cursors over weighted
// feature vectors. Sources are re-iterable; the trainer makes one full
// pass per training iteration.
package dataset

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/clusterkit/clusterkit/distance"
)

// RowID is a stable 128-bit row identifier. It identifies the same row
// across repeated cursorings of the same source, including partitioned
// ones where visit order is not stable.
type RowID struct {
	Lo, Hi uint64
}

// Vector is a dense or sparse feature vector of fixed length. For a
// dense vector Indices is nil and len(Values) == Length. For a sparse
// vector Values holds the non-zero entries at strictly increasing
// positions Indices[i] in [0, Length).
//
// Vectors handed out by a Cursor are only valid until the next
// MoveNext; callers copy what they keep.
type Vector struct {
	Values  []float32
	Indices []int32
	Length  int
}

// IsSparse reports whether v uses the sparse representation.
func (v Vector) IsSparse() bool { return v.Indices != nil }

// NormSquared returns the squared L2 norm of v. The representation does
// not matter: implicit zeros contribute nothing.
func (v Vector) NormSquared() float32 {
	return distance.NormSquared(v.Values)
}

// Score returns the distance-minus-norm score of v against a dense
// centroid c with cached squared norm cNormSq. Smaller is closer.
func (v Vector) Score(c []float32, cNormSq float32) float32 {
	if v.Indices != nil {
		return distance.PointScoreSparse(v.Values, v.Indices, c, cNormSq)
	}
	return distance.PointScore(v.Values, c, cNormSq)
}

// CopyTo densifies v into dst, which must have length v.Length.
func (v Vector) CopyTo(dst []float32) {
	if v.Indices == nil {
		copy(dst, v.Values)
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	for i, idx := range v.Indices {
		dst[idx] = v.Values[i]
	}
}

// Clone returns a dense copy of v.
func (v Vector) Clone() []float32 {
	dst := make([]float32, v.Length)
	v.CopyTo(dst)
	return dst
}

// AddTo accumulates v into the dense accumulator dst.
func (v Vector) AddTo(dst []float32) {
	if v.Indices != nil {
		distance.AddSparse(dst, v.Values, v.Indices)
		return
	}
	distance.Add(dst, v.Values)
}

// IsFinite reports whether every explicit value of v is finite.
// Rows with NaN or infinite features are skipped during cursoring.
func (v Vector) IsFinite() bool {
	for _, x := range v.Values {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return false
		}
	}
	return true
}

// RowStats aggregates per-pass row counters.
type RowStats struct {
	// SkippedRows counts rows dropped for missing or non-finite features.
	SkippedRows int64
	// KeptRows counts valid rows seen.
	KeptRows int64
	// SkippedSet holds the ordinals of skipped rows when the source was
	// opened with skipped-row collection enabled; nil otherwise.
	SkippedSet *roaring64.Bitmap
}

// Merge folds other into s. Used to combine per-partition stats after a
// parallel pass.
func (s *RowStats) Merge(other RowStats) {
	s.SkippedRows += other.SkippedRows
	s.KeptRows += other.KeptRows
	if other.SkippedSet != nil {
		if s.SkippedSet == nil {
			s.SkippedSet = roaring64.New()
		}
		s.SkippedSet.Or(other.SkippedSet)
	}
}

// Cursor iterates the rows of one partition of a Source. Implementations
// skip rows with non-finite features and count them; Stats is valid once
// MoveNext has returned false.
//
// A Cursor is not safe for concurrent use; parallel passes give each
// worker its own Cursor from CursorSet.
type Cursor interface {
	// MoveNext advances to the next valid row, returning false when the
	// partition is exhausted.
	MoveNext() bool
	// Features returns the current row's feature vector, valid until the
	// next MoveNext.
	Features() Vector
	// Weight returns the current row's example weight, clamped to >= 0.
	Weight() float32
	// ID returns the current row's stable identifier.
	ID() RowID
	// Position returns the current row's ordinal within the whole dataset.
	Position() int64
	// Stats returns the counters accumulated by this cursor.
	Stats() RowStats
	// Close releases cursor resources.
	Close() error
}

// Source is a re-iterable collection of weighted feature vectors with a
// fixed dimensionality.
type Source interface {
	// Dimension returns the fixed feature dimensionality.
	Dimension() int
	// Cursor opens a sequential cursor over the entire dataset.
	Cursor() (Cursor, error)
	// CursorSet opens up to n cursors over disjoint partitions whose
	// union is the entire dataset. Sources that cannot partition may
	// return fewer than n cursors.
	CursorSet(n int) ([]Cursor, error)
}
