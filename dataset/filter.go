package dataset

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Filtered wraps a Source and hides the rows whose ordinals appear in
// an exclusion bitmap. Typical uses are holdout splits and re-running a
// trainer without rows a previous pass flagged as bad.
type Filtered struct {
	src     Source
	exclude *roaring64.Bitmap
}

// NewFiltered creates a filtered view of src. The bitmap is read-only
// for the lifetime of the view.
func NewFiltered(src Source, exclude *roaring64.Bitmap) *Filtered {
	return &Filtered{src: src, exclude: exclude}
}

// Dimension implements Source.
func (f *Filtered) Dimension() int { return f.src.Dimension() }

// Cursor implements Source.
func (f *Filtered) Cursor() (Cursor, error) {
	c, err := f.src.Cursor()
	if err != nil {
		return nil, err
	}
	return &filteredCursor{inner: c, exclude: f.exclude}, nil
}

// CursorSet implements Source.
func (f *Filtered) CursorSet(n int) ([]Cursor, error) {
	inner, err := f.src.CursorSet(n)
	if err != nil {
		return nil, err
	}
	cursors := make([]Cursor, len(inner))
	for i, c := range inner {
		cursors[i] = &filteredCursor{inner: c, exclude: f.exclude}
	}
	return cursors, nil
}

type filteredCursor struct {
	inner   Cursor
	exclude *roaring64.Bitmap
	kept    int64
}

func (c *filteredCursor) MoveNext() bool {
	for c.inner.MoveNext() {
		if c.exclude != nil && c.exclude.Contains(uint64(c.inner.Position())) {
			continue
		}
		c.kept++
		return true
	}
	return false
}

func (c *filteredCursor) Features() Vector { return c.inner.Features() }
func (c *filteredCursor) Weight() float32  { return c.inner.Weight() }
func (c *filteredCursor) ID() RowID        { return c.inner.ID() }
func (c *filteredCursor) Position() int64  { return c.inner.Position() }

// Stats reports rows actually surfaced by this cursor; rows hidden by
// the exclusion bitmap count as neither kept nor skipped.
func (c *filteredCursor) Stats() RowStats {
	st := c.inner.Stats()
	st.KeptRows = c.kept
	return st
}

func (c *filteredCursor) Close() error { return c.inner.Close() }
