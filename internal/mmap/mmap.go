// Package mmap provides read-only memory mapping for dataset files.
// Mapped data backs zero-copy feature vectors handed out by partitioned
// cursors, so a mapping must outlive every cursor reading from it.
package mmap

import (
	"errors"
	"os"
	"unsafe"
)

// File represents a read-only memory-mapped file.
type File struct {
	Data []byte
	f    *os.File
}

// Open maps the file at path into memory as read-only.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := fi.Size()
	if size < 0 {
		f.Close()
		return nil, errors.New("mmap: file size is negative")
	}
	if size == 0 {
		return &File{Data: nil, f: f}, nil
	}

	data, err := mmap(f, int(size))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{Data: data, f: f}, nil
}

// Float32s reinterprets count float32 values starting at byte offset off.
// off must be 4-byte aligned and the range must lie within the mapping.
func (m *File) Float32s(off int, count int) []float32 {
	if count == 0 {
		return nil
	}
	if off < 0 || off%4 != 0 || off+count*4 > len(m.Data) {
		panic("mmap: float32 view out of range")
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&m.Data[off])), count)
}

// Close unmaps the memory and closes the underlying file.
func (m *File) Close() error {
	if m == nil {
		return nil
	}
	var err error
	if m.Data != nil {
		err = munmap(m.Data)
		m.Data = nil
	}
	if m.f != nil {
		if closeErr := m.f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		m.f = nil
	}
	return err
}
