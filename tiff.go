// Copyright 2025 <developmentseed.org>. All rights reserved.

// Package tiff reads TIFF, BigTIFF, and GeoTIFF images from latency-bound
// byte stores. Metadata parsing runs through a doubling read-ahead cache so
// opening a remote file costs a handful of ranged reads, and tile fetches are
// merged into as few reads as the layout allows.
package tiff

import (
	"context"

	"go.uber.org/zap"
)

const (
	defaultMergeGap           = 64 * 1024
	defaultMaxConcurrentReads = 8
)

// TIFF is an open image: the parsed IFD chain plus the source tiles are
// fetched from. All methods are safe for concurrent use.
type TIFF struct {
	src      Source
	hdr      Header
	ifds     []*IFD
	registry *DecoderRegistry
	pool     *decodePool

	mergeGap           uint64
	maxConcurrentReads int
	readaheadInitial   uint64
	readaheadCeiling   uint64
	decodeWorkers      int

	log     *zap.SugaredLogger
	metrics *Metrics
}

// Option configures Open.
type Option func(*TIFF)

// WithLogger attaches a structured logger. Without one the engine is silent.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *TIFF) { t.log = log }
}

// WithMetrics attaches engine metrics.
func WithMetrics(m *Metrics) Option {
	return func(t *TIFF) { t.metrics = m }
}

// WithDecoderRegistry replaces the default codec set.
func WithDecoderRegistry(r *DecoderRegistry) Option {
	return func(t *TIFF) { t.registry = r }
}

// WithDecodeWorkers sets the decode pool size. Defaults to GOMAXPROCS.
func WithDecodeWorkers(n int) Option {
	return func(t *TIFF) { t.decodeWorkers = n }
}

// WithMergeGap sets how many bytes of unwanted data a merged read may span.
// Zero merges only adjacent ranges.
func WithMergeGap(gap uint64) Option {
	return func(t *TIFF) { t.mergeGap = gap }
}

// WithReadahead sets the initial and maximum size of the metadata read-ahead
// window. The window doubles on every miss until it hits the ceiling.
func WithReadahead(initial, ceiling uint64) Option {
	return func(t *TIFF) {
		t.readaheadInitial = initial
		t.readaheadCeiling = ceiling
	}
}

// WithMaxConcurrentReads bounds the reads a tile batch issues in parallel.
func WithMaxConcurrentReads(n int) Option {
	return func(t *TIFF) {
		if n > 0 {
			t.maxConcurrentReads = n
		}
	}
}

// Open parses the header and the full IFD chain, including sub-IFDs, from
// src. It reads metadata only; tile payloads are fetched on demand.
func Open(ctx context.Context, src Source, opts ...Option) (*TIFF, error) {
	t := &TIFF{
		src:                src,
		mergeGap:           defaultMergeGap,
		maxConcurrentReads: defaultMaxConcurrentReads,
		readaheadInitial:   defaultReadahead,
		readaheadCeiling:   readaheadCeiling,
	}
	for _, opt := range opts {
		opt(t)
	}

	cache := newReadCache(src, t.readaheadInitial, t.readaheadCeiling)
	hdr, err := parseHeader(ctx, cache)
	if err != nil {
		return nil, err
	}
	t.hdr = hdr

	reader := newMetadataReader(cache, hdr, t.log)
	ifds, err := reader.readChain(ctx, hdr.FirstIFD)
	if err != nil {
		return nil, err
	}
	t.ifds = ifds

	ioCalls, requested, fetched := cache.stats()
	t.observeMetadata(ioCalls, requested, fetched)
	if t.log != nil {
		t.log.Infow("opened tiff",
			"bigtiff", hdr.BigTIFF,
			"ifds", len(ifds),
			"metadata_io_calls", ioCalls,
			"metadata_bytes_fetched", fetched,
		)
	}

	if t.registry == nil {
		t.registry = NewDecoderRegistry(nil)
	}
	t.pool = newDecodePool(t.decodeWorkers)
	return t, nil
}

// Header returns the parsed file header.
func (t *TIFF) Header() Header { return t.hdr }

// IFDs returns the top-level IFD chain in file order. Reduced-resolution
// overviews of a cloud-optimized GeoTIFF appear here as later entries.
func (t *TIFF) IFDs() []*IFD { return t.ifds }

// Close drains the decode pool. The source remains owned by the caller. The
// TIFF must not be used after Close.
func (t *TIFF) Close() error {
	if t.pool != nil {
		t.pool.close()
	}
	return nil
}
