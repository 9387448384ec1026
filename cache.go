// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"context"
	"fmt"
	"sync"
)

// Source is the byte store a TIFF is read from. Implementations translate
// ranged reads into whatever the backing store supports: a file pread, an
// HTTP Range request, an object store GET.
//
// ReadRange may return fewer than length bytes when the range extends past
// the end of the object; it must not return more. Implementations must be
// safe for concurrent use.
type Source interface {
	ReadRange(ctx context.Context, offset, length uint64) ([]byte, error)
}

// Sizer is optionally implemented by Sources that know the total object
// size. When available it is used to clamp speculative reads.
type Sizer interface {
	Size() uint64
}

const (
	defaultReadahead = 32 * 1024
	readaheadCeiling = 1024 * 1024
	readaheadGrowth  = 2
	minReadahead     = 4 * 1024
)

// readCache layers a single sliding read-ahead window over a Source. Header
// and IFD parsing issue many small, mostly forward reads; the cache turns
// those into a handful of ranged requests by over-fetching and doubling the
// over-fetch on every miss.
//
// The window is one contiguous buffer. A request fully inside it is served
// from memory; anything else, including a straddling request, discards the
// window and fetches a fresh one starting at the requested offset.
type readCache struct {
	src Source

	mu        sync.Mutex
	offset    uint64
	buf       []byte
	prefetch  uint64
	ceiling   uint64
	knownSize uint64 // 0 when the source size is unknown

	// stats for the efficiency metrics, guarded by mu
	ioCalls        uint64
	requestedBytes uint64
	fetchedBytes   uint64
}

func newReadCache(src Source, initial, ceiling uint64) *readCache {
	if initial < minReadahead {
		initial = minReadahead
	}
	if ceiling < initial {
		ceiling = initial
	}
	c := &readCache{src: src, prefetch: initial, ceiling: ceiling}
	if s, ok := src.(Sizer); ok {
		c.knownSize = s.Size()
	}
	return c
}

// read returns exactly length bytes at offset, fetching through the window on
// a miss. A short read from the underlying source is a format error at this
// layer: metadata structures never extend past the end of the file.
func (c *readCache) read(ctx context.Context, offset, length uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestedBytes += length

	if !c.contains(offset, length) {
		if err := c.fill(ctx, offset, length); err != nil {
			return nil, err
		}
	}
	start := offset - c.offset
	if start+length > uint64(len(c.buf)) {
		return nil, formatErrorf(offset, "read of %d bytes extends past end of source", length)
	}
	out := make([]byte, length)
	copy(out, c.buf[start:start+length])
	return out, nil
}

func (c *readCache) contains(offset, length uint64) bool {
	return offset >= c.offset && offset+length <= c.offset+uint64(len(c.buf))
}

func (c *readCache) fill(ctx context.Context, offset, length uint64) error {
	fetch := length
	if c.prefetch > fetch {
		fetch = c.prefetch
	}
	if c.knownSize > 0 && offset+fetch > c.knownSize {
		if offset >= c.knownSize {
			return formatErrorf(offset, "read past end of source (size %d)", c.knownSize)
		}
		fetch = c.knownSize - offset
	}

	buf, err := c.src.ReadRange(ctx, offset, fetch)
	if err != nil {
		return fmt.Errorf("fetching %d bytes at offset %d: %w", fetch, offset, err)
	}

	c.ioCalls++
	c.fetchedBytes += uint64(len(buf))
	c.offset = offset
	c.buf = buf

	if c.prefetch < c.ceiling {
		c.prefetch *= readaheadGrowth
		if c.prefetch > c.ceiling {
			c.prefetch = c.ceiling
		}
	}
	return nil
}

// stats returns the I/O call count and the requested/fetched byte totals
// accumulated so far.
func (c *readCache) stats() (ioCalls, requested, fetched uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ioCalls, c.requestedBytes, c.fetchedBytes
}
