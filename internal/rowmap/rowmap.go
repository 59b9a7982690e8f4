// Package rowmap maps data rows to stable small indices 0..M-1 so that
// per-instance trainer state (cached assignments, distance bounds) can
// live in flat arrays. Rows past the cap map to -1 and train without
// acceleration.
package rowmap

import (
	"context"
	"math"

	"github.com/clusterkit/clusterkit/dataset"
)

// NotMapped is returned by IndexOf for rows without an accelerated slot.
const NotMapped int32 = -1

// Map is a read-only row-to-index mapping built once before training.
//
// Sequential mode maps by cursor position and needs no storage. Parallel
// mode maps by stable RowID, because partitioned cursors do not promise
// a stable visit order across passes.
type Map struct {
	cap    int32
	lookup map[dataset.RowID]int32 // nil in sequential mode
}

func clampCap(capInstances int64) int32 {
	if capInstances <= 0 {
		return 0
	}
	if capInstances > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(capInstances)
}

// Sequential creates a positional mapping for single-cursor training:
// row at position p gets index p while p < cap.
func Sequential(capInstances int64) *Map {
	return &Map{cap: clampCap(capInstances)}
}

// BuildParallel creates an identifier-keyed mapping for partitioned
// training. It makes one sequential warm-up pass and assigns indices to
// the first cap valid rows in plain cursor order.
func BuildParallel(ctx context.Context, src dataset.Source, capInstances int64) (*Map, error) {
	m := &Map{cap: clampCap(capInstances)}
	if m.cap == 0 {
		return m, nil
	}

	cur, err := src.Cursor()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	m.lookup = make(map[dataset.RowID]int32, m.cap)
	for next := int32(0); next < m.cap && cur.MoveNext(); next++ {
		if next%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		m.lookup[cur.ID()] = next
	}
	if int32(len(m.lookup)) < m.cap {
		// Fewer rows than budgeted slots; shrink to what exists.
		m.cap = int32(len(m.lookup))
	}
	return m, nil
}

// Cap returns the number of accelerated slots M.
func (m *Map) Cap() int32 { return m.cap }

// IndexOf returns the accelerated index of the row at the given cursor
// position with the given identifier, or NotMapped.
func (m *Map) IndexOf(pos int64, id dataset.RowID) int32 {
	if m.cap == 0 {
		return NotMapped
	}
	if m.lookup == nil {
		if pos >= 0 && pos < int64(m.cap) {
			return int32(pos)
		}
		return NotMapped
	}
	if idx, ok := m.lookup[id]; ok {
		return idx
	}
	return NotMapped
}
