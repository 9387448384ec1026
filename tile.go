// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Chunk grid geometry. Strips are modeled as a one-column grid so tiled and
// striped images share the same addressing.

// chunkWidth is the physical width of one chunk in pixels.
func (d *IFD) chunkWidth() uint64 {
	if d.Tiled() {
		return d.TileWidth
	}
	return d.ImageWidth
}

// chunkHeight is the physical height of one chunk in pixels. A missing or
// oversized RowsPerStrip means the whole image is a single strip.
func (d *IFD) chunkHeight() uint64 {
	if d.Tiled() {
		return d.TileLength
	}
	if d.RowsPerStrip == 0 || d.RowsPerStrip > d.ImageLength {
		return d.ImageLength
	}
	return d.RowsPerStrip
}

// ChunksAcross is the number of chunk columns. Always 1 for striped images.
func (d *IFD) ChunksAcross() int {
	return int((d.ImageWidth + d.chunkWidth() - 1) / d.chunkWidth())
}

// ChunksDown is the number of chunk rows.
func (d *IFD) ChunksDown() int {
	return int((d.ImageLength + d.chunkHeight() - 1) / d.chunkHeight())
}

// ChunkPixelWidth is the logical width of the chunk in column x: the physical
// chunk width except in the rightmost column, which is cropped to the image
// edge.
func (d *IFD) ChunkPixelWidth(x int) int {
	cw := d.chunkWidth()
	if rem := d.ImageWidth - uint64(x)*cw; rem < cw {
		return int(rem)
	}
	return int(cw)
}

// ChunkPixelHeight is the logical height of the chunk in row y.
func (d *IFD) ChunkPixelHeight(y int) int {
	ch := d.chunkHeight()
	if rem := d.ImageLength - uint64(y)*ch; rem < ch {
		return int(rem)
	}
	return int(ch)
}

// bandChunks is the number of chunks each (x, y) position maps to: one per
// sample for planar images, one total for chunky.
func (d *IFD) bandChunks() int {
	if d.Planar == PlanarPlanar {
		return int(d.SamplesPerPixel)
	}
	return 1
}

func (d *IFD) chunkOffsets() (offsets, counts []uint64) {
	if d.Tiled() {
		return d.TileOffsets, d.TileByteCounts
	}
	return d.StripOffsets, d.StripByteCounts
}

// chunkRange is the byte range of the chunk at (x, y) for one band. Planar
// files store all chunks of band 0, then band 1, and so on.
func (d *IFD) chunkRange(x, y, band int) (byteRange, error) {
	offsets, counts := d.chunkOffsets()
	if len(offsets) == 0 {
		return byteRange{}, rangeErrorf("IFD has no tile or strip layout")
	}
	idx := (band*d.ChunksDown()+y)*d.ChunksAcross() + x
	if idx >= len(offsets) || idx >= len(counts) {
		return byteRange{}, formatErrorf(d.offset, "chunk index %d beyond %d recorded offsets", idx, len(offsets))
	}
	return byteRange{offset: offsets[idx], length: counts[idx]}, nil
}

type byteRange struct {
	offset uint64
	length uint64
}

func (r byteRange) end() uint64 { return r.offset + r.length }

// mergedRange is one physical read covering several requested ranges.
// members index the input slice of mergeRanges.
type mergedRange struct {
	byteRange
	members []int
}

// mergeRanges coalesces byte ranges that are within gap bytes of each other
// into single reads. Zero-length inputs are dropped; overlapping inputs are
// covered by one read. The function is pure, making the merge plan easy to
// test against a latency model.
func mergeRanges(ranges []byteRange, gap uint64) []mergedRange {
	idx := make([]int, 0, len(ranges))
	for i, r := range ranges {
		if r.length > 0 {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool { return ranges[idx[a]].offset < ranges[idx[b]].offset })

	var merged []mergedRange
	for _, i := range idx {
		r := ranges[i]
		if n := len(merged); n > 0 && r.offset <= merged[n-1].end()+gap {
			cur := &merged[n-1]
			if r.end() > cur.end() {
				cur.length = r.end() - cur.offset
			}
			cur.members = append(cur.members, i)
			continue
		}
		merged = append(merged, mergedRange{byteRange: r, members: []int{i}})
	}
	return merged
}

// Tile is one chunk position with its compressed payloads fetched but not yet
// decoded. For planar images it carries one payload per band.
type Tile struct {
	X, Y int

	ifd      *IFD
	engine   *TIFF
	payloads [][]byte
}

// IFD returns the directory this tile was fetched from.
func (t *Tile) IFD() *IFD { return t.ifd }

// CompressedSize is the total byte size of the undecoded payloads.
func (t *Tile) CompressedSize() int {
	var n int
	for _, p := range t.payloads {
		n += len(p)
	}
	return n
}

// TileResult pairs a requested coordinate with its fetched tile or the error
// that kept it from being fetched.
type TileResult struct {
	X, Y int
	Tile *Tile
	Err  error
}

// TileResults is the outcome of a batch fetch, in request order.
type TileResults []TileResult

// Err combines the per-tile errors, or returns nil when every tile was
// fetched.
func (rs TileResults) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("tile (%d, %d): %w", r.X, r.Y, r.Err))
		}
	}
	return multierr.Combine(errs...)
}

// FetchTile fetches the compressed payload of a single chunk.
func (t *TIFF) FetchTile(ctx context.Context, ifd *IFD, x, y int) (*Tile, error) {
	results, err := t.FetchTiles(ctx, ifd, [][2]int{{x, y}})
	if err != nil {
		return nil, err
	}
	return results[0].Tile, results[0].Err
}

// FetchTiles fetches a batch of chunks in as few ranged reads as possible:
// nearby ranges are merged within the configured gap and the merged reads run
// concurrently. Coordinates are validated up front, before any I/O; a read
// failure is reported on the affected tiles only and does not abort the rest
// of the batch.
func (t *TIFF) FetchTiles(ctx context.Context, ifd *IFD, coords [][2]int) (TileResults, error) {
	across, down := ifd.ChunksAcross(), ifd.ChunksDown()
	for _, c := range coords {
		if c[0] < 0 || c[0] >= across || c[1] < 0 || c[1] >= down {
			return nil, rangeErrorf("tile (%d, %d) outside %dx%d chunk grid", c[0], c[1], across, down)
		}
	}

	bands := ifd.bandChunks()
	ranges := make([]byteRange, len(coords)*bands)
	for i, c := range coords {
		for b := 0; b < bands; b++ {
			r, err := ifd.chunkRange(c[0], c[1], b)
			if err != nil {
				return nil, err
			}
			ranges[i*bands+b] = r
		}
	}

	merged := mergeRanges(ranges, t.mergeGap)
	payloads := make([][]byte, len(ranges))
	memberErrs := make([]error, len(ranges))

	g := &errgroup.Group{}
	g.SetLimit(t.maxConcurrentReads)
	for _, m := range merged {
		m := m
		g.Go(func() error {
			buf, err := t.src.ReadRange(ctx, m.offset, m.length)
			if err == nil && uint64(len(buf)) < m.length {
				err = fmt.Errorf("tiff: short read: got %d of %d bytes at offset %d", len(buf), m.length, m.offset)
			}
			// Disjoint member sets per merged range, so these writes race
			// with nothing.
			for _, i := range m.members {
				if err != nil {
					memberErrs[i] = err
					continue
				}
				start := ranges[i].offset - m.offset
				payloads[i] = buf[start : start+ranges[i].length]
			}
			return nil
		})
	}
	g.Wait()

	t.observeFetch(len(merged), ranges, merged)

	results := make(TileResults, len(coords))
	for i, c := range coords {
		res := TileResult{X: c[0], Y: c[1]}
		tilePayloads := make([][]byte, bands)
		for b := 0; b < bands; b++ {
			if err := memberErrs[i*bands+b]; err != nil {
				res.Err = multierr.Append(res.Err, err)
				continue
			}
			tilePayloads[b] = payloads[i*bands+b]
		}
		if res.Err == nil {
			res.Tile = &Tile{X: c[0], Y: c[1], ifd: ifd, engine: t, payloads: tilePayloads}
		}
		results[i] = res
	}
	return results, nil
}

// Decode decompresses the tile, reverses its predictor, and crops border
// tiles to the image edge. Tiles are stored padded to their full physical
// extent; the padding is discarded here so the array shape is always the
// logical chunk size. Strips are stored unpadded and need no crop.
func (t *Tile) Decode() (*Array, error) {
	d := t.ifd
	dec, ok := t.engine.registry.Get(d.Compression)
	if !ok {
		return nil, &UnsupportedCompressionError{Method: d.Compression}
	}

	bits := int(d.BitsPerSample[0])
	for _, b := range d.BitsPerSample {
		if int(b) != bits && d.Predictor != PredictorNone {
			return nil, formatErrorf(d.offset, "predictor with mixed bit depths")
		}
	}

	physW := int(d.chunkWidth())
	physH := int(d.chunkHeight())
	if !d.Tiled() {
		physH = d.ChunkPixelHeight(t.Y)
	}
	logicalW := d.ChunkPixelWidth(t.X)
	logicalH := d.ChunkPixelHeight(t.Y)
	spp := int(d.SamplesPerPixel)
	bandSpp := spp
	if d.Planar == PlanarPlanar {
		bandSpp = 1
	}
	rowBytes := (physW*bandSpp*bits + 7) / 8
	bandSize := physH * rowBytes

	var data []byte
	if len(t.payloads) == 1 {
		var err error
		data, err = t.decodeBand(dec, t.payloads[0], physW, physH, bandSpp, bits, bandSize)
		if err != nil {
			return nil, err
		}
		data = cropBand(data, physW, logicalW, logicalH, bandSpp, bits)
	} else {
		data = make([]byte, 0, bandSize*len(t.payloads))
		for _, payload := range t.payloads {
			band, err := t.decodeBand(dec, payload, physW, physH, bandSpp, bits, bandSize)
			if err != nil {
				return nil, err
			}
			data = append(data, cropBand(band, physW, logicalW, logicalH, bandSpp, bits)...)
		}
	}

	outW, outH := logicalW, logicalH
	if bits%8 != 0 {
		// Sub-byte rows cannot be cropped on byte boundaries.
		outW, outH = physW, physH
	}
	shape := [3]int{outH, outW, spp}
	if d.Planar == PlanarPlanar {
		shape = [3]int{spp, outH, outW}
	}
	return &Array{Data: data, Shape: shape, DataType: d.dataType, ByteOrder: d.order}, nil
}

// cropBand drops the physical tile's right and bottom padding, keeping the
// top-left logicalW x logicalH pixels. Sub-byte sample widths are returned
// uncropped since their rows do not fall on byte boundaries.
func cropBand(data []byte, physW, logicalW, logicalH, spp, bits int) []byte {
	if bits%8 != 0 {
		return data
	}
	pixelBytes := spp * bits / 8
	srcRow := physW * pixelBytes
	dstRow := logicalW * pixelBytes
	if dstRow == srcRow && len(data) <= logicalH*srcRow {
		return data
	}
	out := make([]byte, 0, logicalH*dstRow)
	for r := 0; r < logicalH; r++ {
		out = append(out, data[r*srcRow:r*srcRow+dstRow]...)
	}
	return out
}

func (t *Tile) decodeBand(dec Decoder, payload []byte, physW, physH, bandSpp, bits, bandSize int) ([]byte, error) {
	// A zero-length payload marks a sparse chunk; it decodes to all zeros.
	if len(payload) == 0 {
		return make([]byte, bandSize), nil
	}
	out, err := dec.Decode(payload, DecodeInfo{
		ExpectedSize: bandSize,
		Photometric:  t.ifd.Photometric,
		JPEGTables:   t.ifd.JPEGTables,
	})
	if err != nil {
		return nil, err
	}
	if len(out) < bandSize {
		return nil, &DecodeError{
			Method: t.ifd.Compression,
			Err:    fmt.Errorf("decoded %d bytes, expected %d", len(out), bandSize),
		}
	}
	if t.ifd.Predictor != PredictorNone && bits < 8 {
		return nil, formatErrorf(t.ifd.offset, "predictor with %d-bit samples", bits)
	}
	return unpredict(out, t.ifd.Predictor, t.ifd.order, physW, physH, bandSpp, bits)
}

// DecodeWithMask decodes the tile and, when the IFD declares a GDAL nodata
// sentinel, additionally returns a per-element validity mask. The mask is nil
// when no sentinel is present.
func (t *Tile) DecodeWithMask() (*Array, []bool, error) {
	arr, err := t.Decode()
	if err != nil {
		return nil, nil, err
	}
	nodata, ok := t.ifd.NoData()
	if !ok {
		return arr, nil, nil
	}
	mask, err := arr.validityMask(nodata)
	if err != nil {
		return nil, nil, err
	}
	return arr, mask, nil
}

// DecodeAsync queues the decode on the engine's worker pool. A context
// cancelled before the task runs resolves the future with the context error;
// once a decode has started it runs to completion and its result is kept.
func (t *Tile) DecodeAsync(ctx context.Context) *DecodeFuture {
	future := newDecodeFuture()
	t.engine.pool.submit(func() {
		if err := ctx.Err(); err != nil {
			future.resolve(nil, err)
			return
		}
		future.resolve(t.Decode())
	})
	return future
}
