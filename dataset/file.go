package dataset

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/clusterkit/clusterkit/internal/mmap"
	"github.com/clusterkit/clusterkit/resource"
)

// Compression selects the body compression of a dataset file.
type Compression uint32

const (
	// CompressionNone stores raw little-endian float32 rows. Such files
	// are memory-mapped and support zero-copy partitioned cursors.
	CompressionNone Compression = iota
	// CompressionZstd compresses the row data with zstd.
	CompressionZstd
	// CompressionLZ4 compresses the row data with lz4.
	CompressionLZ4
)

// Dataset file layout: a fixed 32-byte header followed by rows*dim
// little-endian float32 values, compressed per the header's codec.
//
//	[0:4)   magic "CKDS"
//	[4:8)   format version (1)
//	[8:12)  compression codec
//	[12:16) dimension
//	[16:24) row count
//	[24:32) reserved
const (
	fileMagic      = "CKDS"
	fileVersion    = 1
	fileHeaderSize = 32
)

// ErrBadDatasetFile indicates a malformed or unsupported dataset file.
var ErrBadDatasetFile = errors.New("malformed dataset file")

// WriteFile writes rows*dim flattened dense values as a dataset file.
func WriteFile(path string, dim int, values []float32, comp Compression) error {
	if dim <= 0 || len(values)%dim != 0 {
		return fmt.Errorf("dataset: %d values do not form rows of dimension %d", len(values), dim)
	}
	rows := uint64(len(values) / dim)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, fileHeaderSize)
	copy(header, fileMagic)
	binary.LittleEndian.PutUint32(header[4:], fileVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(comp))
	binary.LittleEndian.PutUint32(header[12:], uint32(dim))
	binary.LittleEndian.PutUint64(header[16:], rows)
	if _, err := f.Write(header); err != nil {
		return err
	}

	var body io.Writer
	var finish func() error

	switch comp {
	case CompressionNone:
		bw := bufio.NewWriter(f)
		body, finish = bw, bw.Flush
	case CompressionZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return err
		}
		body, finish = zw, zw.Close
	case CompressionLZ4:
		lw := lz4.NewWriter(f)
		body, finish = lw, lw.Close
	default:
		return fmt.Errorf("dataset: unknown compression %d", comp)
	}

	buf := make([]byte, 4)
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
		if _, err := body.Write(buf); err != nil {
			return err
		}
	}
	if err := finish(); err != nil {
		return err
	}
	return f.Sync()
}

// FileSource is a Source backed by a dataset file. Uncompressed files
// are memory-mapped and partition across cursors with zero copying;
// compressed files stream sequentially, so CursorSet degrades to a
// single partition.
type FileSource struct {
	path string
	dim  int
	rows int64
	comp Compression

	m      *mmap.File // nil for compressed files
	floats []float32

	rc             *resource.Controller
	collectSkipped bool
}

// FileOption configures a FileSource.
type FileOption func(*FileSource)

// WithController throttles streaming reads through the controller's IO
// budget. It has no effect on memory-mapped (uncompressed) files.
func WithController(rc *resource.Controller) FileOption {
	return func(s *FileSource) {
		s.rc = rc
	}
}

// WithFileSkippedRowSet enables collection of skipped row ordinals into
// RowStats.SkippedSet.
func WithFileSkippedRowSet() FileOption {
	return func(s *FileSource) {
		s.collectSkipped = true
	}
}

// OpenFile opens a dataset file written by WriteFile.
func OpenFile(path string, opts ...FileOption) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	header := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %w", ErrBadDatasetFile, err)
	}
	f.Close()

	if string(header[:4]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadDatasetFile)
	}
	if v := binary.LittleEndian.Uint32(header[4:]); v != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadDatasetFile, v)
	}

	s := &FileSource{
		path: path,
		comp: Compression(binary.LittleEndian.Uint32(header[8:])),
		dim:  int(binary.LittleEndian.Uint32(header[12:])),
		rows: int64(binary.LittleEndian.Uint64(header[16:])),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dim <= 0 || s.rows < 0 {
		return nil, fmt.Errorf("%w: dim=%d rows=%d", ErrBadDatasetFile, s.dim, s.rows)
	}

	if s.comp == CompressionNone {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, err
		}
		want := fileHeaderSize + s.rows*int64(s.dim)*4
		if int64(len(m.Data)) < want {
			m.Close()
			return nil, fmt.Errorf("%w: truncated body", ErrBadDatasetFile)
		}
		s.m = m
		s.floats = m.Float32s(fileHeaderSize, int(s.rows)*s.dim)
	}

	return s, nil
}

// Len returns the total row count recorded in the file header.
func (s *FileSource) Len() int64 { return s.rows }

// Dimension implements Source.
func (s *FileSource) Dimension() int { return s.dim }

// Close releases the mapping, if any. Outstanding cursors over a mapped
// file must not be used after Close.
func (s *FileSource) Close() error {
	if s.m != nil {
		return s.m.Close()
	}
	return nil
}

// Cursor implements Source.
func (s *FileSource) Cursor() (Cursor, error) {
	if s.m != nil {
		return s.newMappedCursor(0, s.rows), nil
	}
	return s.newStreamCursor()
}

// CursorSet implements Source.
func (s *FileSource) CursorSet(n int) ([]Cursor, error) {
	if s.m == nil {
		// Compressed bodies only decode front to back.
		c, err := s.newStreamCursor()
		if err != nil {
			return nil, err
		}
		return []Cursor{c}, nil
	}

	if n < 1 {
		n = 1
	}
	if int64(n) > s.rows && s.rows > 0 {
		n = int(s.rows)
	}
	cursors := make([]Cursor, 0, n)
	for p := 0; p < n; p++ {
		start := int64(p) * s.rows / int64(n)
		end := int64(p+1) * s.rows / int64(n)
		cursors = append(cursors, s.newMappedCursor(start, end))
	}
	return cursors, nil
}

func (s *FileSource) newStats() RowStats {
	var st RowStats
	if s.collectSkipped {
		st.SkippedSet = roaring64.New()
	}
	return st
}

func (s *FileSource) newMappedCursor(start, end int64) *mappedCursor {
	return &mappedCursor{src: s, pos: start - 1, end: end, stats: s.newStats()}
}

type mappedCursor struct {
	src   *FileSource
	pos   int64
	end   int64
	cur   Vector
	stats RowStats
}

func (c *mappedCursor) MoveNext() bool {
	dim := int64(c.src.dim)
	for c.pos+1 < c.end {
		c.pos++
		c.cur = Vector{Values: c.src.floats[c.pos*dim : (c.pos+1)*dim], Length: c.src.dim}
		if !c.cur.IsFinite() {
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

func (c *mappedCursor) Features() Vector { return c.cur }
func (c *mappedCursor) Weight() float32  { return 1 }
func (c *mappedCursor) ID() RowID        { return RowID{Lo: uint64(c.pos)} }
func (c *mappedCursor) Position() int64  { return c.pos }
func (c *mappedCursor) Stats() RowStats  { return c.stats }
func (c *mappedCursor) Close() error     { return nil }

func (s *FileSource) newStreamCursor() (*streamCursor, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(fileHeaderSize, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	var r io.Reader = bufio.NewReaderSize(f, 1<<16)
	if s.rc != nil {
		r = resource.NewRateLimitedReader(context.Background(), r, s.rc)
	}

	c := &streamCursor{
		src:    s,
		f:      f,
		pos:    -1,
		rowBuf: make([]byte, s.dim*4),
		vals:   make([]float32, s.dim),
		stats:  s.newStats(),
	}

	switch s.comp {
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			f.Close()
			return nil, err
		}
		c.r, c.release = zr, zr.Close
	case CompressionLZ4:
		c.r = lz4.NewReader(r)
	default:
		f.Close()
		return nil, fmt.Errorf("dataset: unknown compression %d", s.comp)
	}

	return c, nil
}

type streamCursor struct {
	src     *FileSource
	f       *os.File
	r       io.Reader
	release func()
	pos     int64
	rowBuf  []byte
	vals    []float32
	cur     Vector
	stats   RowStats
}

func (c *streamCursor) MoveNext() bool {
	for c.pos+1 < c.src.rows {
		c.pos++
		if _, err := io.ReadFull(c.r, c.rowBuf); err != nil {
			// Truncated body: treat the remainder as exhausted. The row
			// count mismatch shows up in Stats.
			c.pos = c.src.rows
			return false
		}
		for i := range c.vals {
			c.vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(c.rowBuf[i*4:]))
		}
		c.cur = Vector{Values: c.vals, Length: c.src.dim}
		if !c.cur.IsFinite() {
			c.stats.SkippedRows++
			if c.stats.SkippedSet != nil {
				c.stats.SkippedSet.Add(uint64(c.pos))
			}
			continue
		}
		c.stats.KeptRows++
		return true
	}
	c.pos = c.src.rows
	return false
}

func (c *streamCursor) Features() Vector { return c.cur }
func (c *streamCursor) Weight() float32  { return 1 }
func (c *streamCursor) ID() RowID        { return RowID{Lo: uint64(c.pos)} }
func (c *streamCursor) Position() int64  { return c.pos }
func (c *streamCursor) Stats() RowStats  { return c.stats }

func (c *streamCursor) Close() error {
	if c.release != nil {
		c.release()
		c.release = nil
	}
	if c.f != nil {
		err := c.f.Close()
		c.f = nil
		return err
	}
	return nil
}
