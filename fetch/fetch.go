// Copyright 2025 <developmentseed.org>. All rights reserved.

// Package fetch provides ranged byte sources for the tiff engine: in-memory
// buffers, local files, and HTTP range requests with block caching.
package fetch

import (
	"context"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when the backing object does not exist.
var ErrNotFound = errors.New("fetch: not found")

// BytesSource serves ranged reads from an in-memory buffer.
type BytesSource struct {
	data []byte
}

func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

// ReadRange returns the bytes in [offset, offset+length), shortened at the
// end of the buffer.
func (s *BytesSource) ReadRange(_ context.Context, offset, length uint64) ([]byte, error) {
	size := uint64(len(s.data))
	if offset >= size {
		return nil, io.EOF
	}
	end := offset + length
	if end > size {
		end = size
	}
	out := make([]byte, end-offset)
	copy(out, s.data[offset:end])
	return out, nil
}

// Size returns the buffer length.
func (s *BytesSource) Size() uint64 { return uint64(len(s.data)) }

// FileSource serves ranged reads from a local file via pread, so it is safe
// for concurrent use.
type FileSource struct {
	f    *os.File
	size uint64
}

func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSource{f: f, size: uint64(info.Size())}, nil
}

// ReadRange returns the bytes in [offset, offset+length), shortened at the
// end of the file.
func (s *FileSource) ReadRange(_ context.Context, offset, length uint64) ([]byte, error) {
	if offset >= s.size {
		return nil, io.EOF
	}
	if offset+length > s.size {
		length = s.size - offset
	}
	buf := make([]byte, length)
	n, err := s.f.ReadAt(buf, int64(offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Size returns the file size at open time.
func (s *FileSource) Size() uint64 { return s.size }

// Close closes the underlying file.
func (s *FileSource) Close() error { return s.f.Close() }
