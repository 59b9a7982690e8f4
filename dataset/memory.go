package dataset

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Memory is an in-memory Source over a slice of vectors with optional
// per-row weights. It supports true n-way partitioning.
type Memory struct {
	dim            int
	rows           []Vector
	weights        []float32
	collectSkipped bool
}

// MemoryOption configures a Memory source.
type MemoryOption func(*Memory)

// WithWeights attaches per-row example weights. Must match the row count.
func WithWeights(weights []float32) MemoryOption {
	return func(m *Memory) {
		m.weights = weights
	}
}

// WithSkippedRowSet enables collection of skipped row ordinals into
// RowStats.SkippedSet.
func WithSkippedRowSet() MemoryOption {
	return func(m *Memory) {
		m.collectSkipped = true
	}
}

// NewMemory creates an in-memory source over rows of the given
// dimensionality.
func NewMemory(dim int, rows []Vector, opts ...MemoryOption) (*Memory, error) {
	m := &Memory{dim: dim, rows: rows}
	for _, opt := range opts {
		opt(m)
	}
	if m.weights != nil && len(m.weights) != len(rows) {
		return nil, fmt.Errorf("dataset: %d weights for %d rows", len(m.weights), len(rows))
	}
	return m, nil
}

// NewMemoryDense creates an in-memory source over row-major flattened
// dense values of length rows*dim. The vectors alias values.
func NewMemoryDense(dim int, values []float32, opts ...MemoryOption) (*Memory, error) {
	if dim <= 0 || len(values)%dim != 0 {
		return nil, fmt.Errorf("dataset: %d values do not form rows of dimension %d", len(values), dim)
	}
	rows := make([]Vector, len(values)/dim)
	for i := range rows {
		rows[i] = Vector{Values: values[i*dim : (i+1)*dim], Length: dim}
	}
	return NewMemory(dim, rows, opts...)
}

// Len returns the total number of rows, including ones that cursors will
// skip for non-finite features.
func (m *Memory) Len() int { return len(m.rows) }

// Dimension implements Source.
func (m *Memory) Dimension() int { return m.dim }

// Cursor implements Source.
func (m *Memory) Cursor() (Cursor, error) {
	return m.newCursor(0, len(m.rows)), nil
}

// CursorSet implements Source. Partitions are contiguous row ranges.
func (m *Memory) CursorSet(n int) ([]Cursor, error) {
	if n < 1 {
		n = 1
	}
	if n > len(m.rows) && len(m.rows) > 0 {
		n = len(m.rows)
	}
	cursors := make([]Cursor, 0, n)
	for p := 0; p < n; p++ {
		start := p * len(m.rows) / n
		end := (p + 1) * len(m.rows) / n
		cursors = append(cursors, m.newCursor(start, end))
	}
	return cursors, nil
}

func (m *Memory) newCursor(start, end int) *memoryCursor {
	c := &memoryCursor{src: m, pos: start - 1, end: end}
	if m.collectSkipped {
		c.stats.SkippedSet = roaring64.New()
	}
	return c
}

type memoryCursor struct {
	src   *Memory
	pos   int
	end   int
	stats RowStats
}

func (c *memoryCursor) MoveNext() bool {
	for c.pos+1 < c.end {
		c.pos++
		if !c.src.rows[c.pos].IsFinite() {
			c.stats.SkippedRows++
			if c.stats.SkippedSet != nil {
				c.stats.SkippedSet.Add(uint64(c.pos))
			}
			continue
		}
		c.stats.KeptRows++
		return true
	}
	c.pos = c.end
	return false
}

func (c *memoryCursor) Features() Vector { return c.src.rows[c.pos] }

func (c *memoryCursor) Weight() float32 {
	if c.src.weights == nil {
		return 1
	}
	w := c.src.weights[c.pos]
	if w < 0 {
		return 0
	}
	return w
}

func (c *memoryCursor) ID() RowID {
	return RowID{Lo: uint64(c.pos)}
}

func (c *memoryCursor) Position() int64 { return int64(c.pos) }

func (c *memoryCursor) Stats() RowStats { return c.stats }

func (c *memoryCursor) Close() error { return nil }
