package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterkit/clusterkit/resource"
)

func writeTestFile(t *testing.T, dim int, values []float32, comp Compression) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.ckds")
	require.NoError(t, WriteFile(path, dim, values, comp))
	return path
}

func collectRows(t *testing.T, c Cursor) [][]float32 {
	t.Helper()
	var rows [][]float32
	for c.MoveNext() {
		rows = append(rows, c.Features().Clone())
	}
	require.NoError(t, c.Close())
	return rows
}

func TestFileRoundtrip(t *testing.T) {
	values := []float32{
		1, 2,
		3, 4,
		-5, 6.5,
	}
	want := [][]float32{{1, 2}, {3, 4}, {-5, 6.5}}

	tests := []struct {
		name string
		comp Compression
	}{
		{"None", CompressionNone},
		{"Zstd", CompressionZstd},
		{"LZ4", CompressionLZ4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTestFile(t, 2, values, tt.comp)

			src, err := OpenFile(path)
			require.NoError(t, err)
			defer src.Close()

			assert.Equal(t, 2, src.Dimension())
			assert.Equal(t, int64(3), src.Len())

			c, err := src.Cursor()
			require.NoError(t, err)
			assert.Equal(t, want, collectRows(t, c))

			// Sources are re-iterable: a second pass sees the same rows.
			c, err = src.Cursor()
			require.NoError(t, err)
			assert.Equal(t, want, collectRows(t, c))
		})
	}
}

func TestFileCursorSetMapped(t *testing.T) {
	values := make([]float32, 101*3)
	for i := range values {
		values[i] = float32(i)
	}
	path := writeTestFile(t, 3, values, CompressionNone)

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	cursors, err := src.CursorSet(4)
	require.NoError(t, err)
	require.Len(t, cursors, 4)

	seen := map[int64]bool{}
	for _, c := range cursors {
		for c.MoveNext() {
			pos := c.Position()
			assert.False(t, seen[pos], "row %d visited twice", pos)
			seen[pos] = true
			assert.Equal(t, values[pos*3], c.Features().Values[0])
		}
		require.NoError(t, c.Close())
	}
	assert.Len(t, seen, 101)
}

func TestFileCursorSetCompressedSinglePartition(t *testing.T) {
	path := writeTestFile(t, 1, []float32{1, 2, 3, 4}, CompressionZstd)

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	cursors, err := src.CursorSet(8)
	require.NoError(t, err)
	require.Len(t, cursors, 1)

	rows := collectRows(t, cursors[0])
	assert.Len(t, rows, 4)
}

func TestFileSkipsNonFiniteRows(t *testing.T) {
	values := []float32{
		1, 1,
		float32(math.NaN()), 0,
		2, 2,
	}

	for _, comp := range []Compression{CompressionNone, CompressionLZ4} {
		path := writeTestFile(t, 2, values, comp)

		src, err := OpenFile(path, WithFileSkippedRowSet())
		require.NoError(t, err)

		c, err := src.Cursor()
		require.NoError(t, err)
		rows := collectRows(t, c)

		assert.Len(t, rows, 2)
		assert.Equal(t, int64(1), c.Stats().SkippedRows)
		require.NotNil(t, c.Stats().SkippedSet)
		assert.True(t, c.Stats().SkippedSet.Contains(1))
		require.NoError(t, src.Close())
	}
}

func TestFileThrottledRead(t *testing.T) {
	path := writeTestFile(t, 1, []float32{1, 2, 3}, CompressionZstd)

	// Generous limit: just exercises the rate-limited reader path.
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	src, err := OpenFile(path, WithController(rc))
	require.NoError(t, err)
	defer src.Close()

	c, err := src.Cursor()
	require.NoError(t, err)
	assert.Len(t, collectRows(t, c), 3)
}

func TestOpenFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.ckds")
	require.NoError(t, os.WriteFile(path, []byte("not a dataset file at all, not even close"), 0o600))

	_, err := OpenFile(path)
	assert.ErrorIs(t, err, ErrBadDatasetFile)
}
