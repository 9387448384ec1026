// Copyright 2025 <developmentseed.org>. All rights reserved.
// Test helpers: an in-memory TIFF writer and an instrumented source.

package tiff

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"
)

// memSource serves ranged reads from a byte slice and records every request,
// so tests can assert on I/O call counts and request sizes.
type memSource struct {
	data []byte

	mu      sync.Mutex
	calls   int
	lengths []uint64
	failAt  map[uint64]error // offset -> error to inject
}

func newMemSource(data []byte) *memSource {
	return &memSource{data: data, failAt: map[uint64]error{}}
}

func (s *memSource) ReadRange(_ context.Context, offset, length uint64) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.lengths = append(s.lengths, length)
	err := s.failAt[offset]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	size := uint64(len(s.data))
	if offset >= size {
		return nil, fmt.Errorf("offset %d past end of %d byte source", offset, size)
	}
	end := offset + length
	if end > size {
		end = size
	}
	out := make([]byte, end-offset)
	copy(out, s.data[offset:end])
	return out, nil
}

func (s *memSource) Size() uint64 { return uint64(len(s.data)) }

func (s *memSource) stats() (calls int, lengths []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]uint64(nil), s.lengths...)
}

func (s *memSource) resetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = 0
	s.lengths = nil
}

// tagEntry is one IFD entry queued on a fileBuilder.
type tagEntry struct {
	tag  Tag
	typ  FieldType
	n    uint64
	data []byte
}

// fileBuilder assembles classic and BigTIFF files in either byte order.
// IFDs chain in the order they are added; values too large for the inline
// slot are written to an overflow area after each IFD.
type fileBuilder struct {
	order      binary.ByteOrder
	big        bool
	buf        []byte
	nextPtrPos int
}

func newFileBuilder(order binary.ByteOrder, big bool) *fileBuilder {
	b := &fileBuilder{order: order, big: big}
	mark := byte('I')
	if order == binary.BigEndian {
		mark = 'M'
	}
	if big {
		b.buf = make([]byte, 16)
		b.buf[0], b.buf[1] = mark, mark
		order.PutUint16(b.buf[2:], 43)
		order.PutUint16(b.buf[4:], 8)
		order.PutUint16(b.buf[6:], 0)
		b.nextPtrPos = 8
	} else {
		b.buf = make([]byte, 8)
		b.buf[0], b.buf[1] = mark, mark
		order.PutUint16(b.buf[2:], 42)
		b.nextPtrPos = 4
	}
	return b
}

func (b *fileBuilder) offsetSize() int {
	if b.big {
		return 8
	}
	return 4
}

func (b *fileBuilder) putOffset(pos int, v uint64) {
	if b.big {
		b.order.PutUint64(b.buf[pos:], v)
	} else {
		b.order.PutUint32(b.buf[pos:], uint32(v))
	}
}

// appendBytes places raw data (tile payloads, nested IFD targets) in the file
// and returns its offset.
func (b *fileBuilder) appendBytes(data []byte) uint64 {
	off := uint64(len(b.buf))
	b.buf = append(b.buf, data...)
	return off
}

// addIFD appends an IFD holding entries and links it into the chain. Returns
// the IFD's offset.
func (b *fileBuilder) addIFD(entries []tagEntry) uint64 {
	return b.writeIFD(entries, true)
}

// addDetachedIFD appends an IFD without linking it into the chain, for
// targets referenced through the SubIFDs tag.
func (b *fileBuilder) addDetachedIFD(entries []tagEntry) uint64 {
	return b.writeIFD(entries, false)
}

func (b *fileBuilder) writeIFD(entries []tagEntry, linked bool) uint64 {
	sorted := append([]tagEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].tag < sorted[j].tag })

	countSize, entrySize, inline := 2, classicIFDEntry, 4
	if b.big {
		countSize, entrySize, inline = 8, bigIFDEntry, 8
	}

	ifdOff := uint64(len(b.buf))
	if linked {
		b.putOffset(b.nextPtrPos, ifdOff)
	}

	blockLen := countSize + len(sorted)*entrySize + b.offsetSize()
	block := make([]byte, blockLen)
	if b.big {
		b.order.PutUint64(block, uint64(len(sorted)))
	} else {
		b.order.PutUint16(block, uint16(len(sorted)))
	}

	valueAreaOff := ifdOff + uint64(blockLen)
	var overflow []byte
	for i, e := range sorted {
		entry := block[countSize+i*entrySize:]
		b.order.PutUint16(entry, uint16(e.tag))
		b.order.PutUint16(entry[2:], uint16(e.typ))
		var value []byte
		if b.big {
			b.order.PutUint64(entry[4:], e.n)
			value = entry[12:20]
		} else {
			b.order.PutUint32(entry[4:], uint32(e.n))
			value = entry[8:12]
		}
		if len(e.data) <= inline {
			copy(value, e.data)
		} else {
			off := valueAreaOff + uint64(len(overflow))
			if b.big {
				b.order.PutUint64(value, off)
			} else {
				b.order.PutUint32(value, uint32(off))
			}
			overflow = append(overflow, e.data...)
		}
	}

	if linked {
		b.nextPtrPos = int(ifdOff) + countSize + len(sorted)*entrySize
	}
	b.buf = append(b.buf, block...)
	b.buf = append(b.buf, overflow...)
	return ifdOff
}

func (b *fileBuilder) bytes() []byte { return b.buf }

// Entry constructors. Offsets in classic files use LONG, in BigTIFF LONG8.

func (b *fileBuilder) shorts(tag Tag, vals ...uint16) tagEntry {
	data := make([]byte, len(vals)*2)
	for i, v := range vals {
		b.order.PutUint16(data[i*2:], v)
	}
	return tagEntry{tag: tag, typ: TypeShort, n: uint64(len(vals)), data: data}
}

func (b *fileBuilder) longs(tag Tag, vals ...uint32) tagEntry {
	data := make([]byte, len(vals)*4)
	for i, v := range vals {
		b.order.PutUint32(data[i*4:], v)
	}
	return tagEntry{tag: tag, typ: TypeLong, n: uint64(len(vals)), data: data}
}

func (b *fileBuilder) offsets(tag Tag, vals ...uint64) tagEntry {
	if !b.big {
		small := make([]uint32, len(vals))
		for i, v := range vals {
			small[i] = uint32(v)
		}
		return b.longs(tag, small...)
	}
	data := make([]byte, len(vals)*8)
	for i, v := range vals {
		b.order.PutUint64(data[i*8:], v)
	}
	return tagEntry{tag: tag, typ: TypeLong8, n: uint64(len(vals)), data: data}
}

func (b *fileBuilder) ascii(tag Tag, s string) tagEntry {
	data := append([]byte(s), 0)
	return tagEntry{tag: tag, typ: TypeASCII, n: uint64(len(data)), data: data}
}

func (b *fileBuilder) doubles(tag Tag, vals ...float64) tagEntry {
	data := make([]byte, len(vals)*8)
	for i, v := range vals {
		b.order.PutUint64(data[i*8:], math.Float64bits(v))
	}
	return tagEntry{tag: tag, typ: TypeDouble, n: uint64(len(vals)), data: data}
}

// grayImage is a synthetic single-band uint8 image plus its file bytes.
type grayImage struct {
	file   []byte
	chunks [][]byte
}

// buildTiledGray writes a width x height uint8 image cut into tw x th tiles.
// Each tile is filled with its linear tile index so decoded content is easy
// to check.
func buildTiledGray(order binary.ByteOrder, big bool, width, height, tw, th int, extra ...tagEntry) grayImage {
	b := newFileBuilder(order, big)
	across := (width + tw - 1) / tw
	down := (height + th - 1) / th

	var offsets, counts []uint64
	var chunks [][]byte
	for i := 0; i < across*down; i++ {
		tile := make([]byte, tw*th)
		for j := range tile {
			tile[j] = byte(i)
		}
		off := b.appendBytes(tile)
		offsets = append(offsets, off)
		counts = append(counts, uint64(len(tile)))
		chunks = append(chunks, tile)
	}

	entries := []tagEntry{
		b.longs(TagImageWidth, uint32(width)),
		b.longs(TagImageLength, uint32(height)),
		b.shorts(TagBitsPerSample, 8),
		b.shorts(TagCompression, uint16(CompressionNone)),
		b.shorts(TagPhotometricInterpretation, uint16(PhotometricBlackIsZero)),
		b.shorts(TagSamplesPerPixel, 1),
		b.longs(TagTileWidth, uint32(tw)),
		b.longs(TagTileLength, uint32(th)),
		b.offsets(TagTileOffsets, offsets...),
		b.offsets(TagTileByteCounts, counts...),
	}
	entries = append(entries, extra...)
	b.addIFD(entries)
	return grayImage{file: b.bytes(), chunks: chunks}
}

// buildStripedGray writes a width x height uint8 image in strips of rps
// rows. The last strip is shorter when rps does not divide height. Each
// strip is filled with its strip index.
func buildStripedGray(order binary.ByteOrder, big bool, width, height, rps int, extra ...tagEntry) grayImage {
	b := newFileBuilder(order, big)
	down := (height + rps - 1) / rps

	var offsets, counts []uint64
	var chunks [][]byte
	for i := 0; i < down; i++ {
		rows := rps
		if rem := height - i*rps; rem < rows {
			rows = rem
		}
		strip := make([]byte, rows*width)
		for j := range strip {
			strip[j] = byte(i)
		}
		off := b.appendBytes(strip)
		offsets = append(offsets, off)
		counts = append(counts, uint64(len(strip)))
		chunks = append(chunks, strip)
	}

	entries := []tagEntry{
		b.longs(TagImageWidth, uint32(width)),
		b.longs(TagImageLength, uint32(height)),
		b.shorts(TagBitsPerSample, 8),
		b.shorts(TagCompression, uint16(CompressionNone)),
		b.shorts(TagPhotometricInterpretation, uint16(PhotometricBlackIsZero)),
		b.shorts(TagSamplesPerPixel, 1),
		b.longs(TagRowsPerStrip, uint32(rps)),
		b.offsets(TagStripOffsets, offsets...),
		b.offsets(TagStripByteCounts, counts...),
	}
	entries = append(entries, extra...)
	b.addIFD(entries)
	return grayImage{file: b.bytes(), chunks: chunks}
}
