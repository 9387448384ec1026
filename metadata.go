// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"context"
	"encoding/binary"

	"go.uber.org/zap"
)

// Parser safety limits. Metadata structures beyond these sizes are treated as
// corrupt rather than fetched, so a hostile or damaged file cannot drive
// unbounded reads or allocations.
const (
	maxIFDEntries   = 10_000
	maxIFDCount     = 1_000
	maxEntryValue   = 10 * 1024 * 1024
	classicIFDEntry = 12
	bigIFDEntry     = 20
)

// Header is the 8 byte (classic) or 16 byte (BigTIFF) file header.
type Header struct {
	ByteOrder binary.ByteOrder
	BigTIFF   bool
	FirstIFD  uint64
}

// offsetSize is the width of offsets and IFD counts in this variant.
func (h Header) offsetSize() int {
	if h.BigTIFF {
		return 8
	}
	return 4
}

// inlineSize is how many value bytes fit inside an IFD entry.
func (h Header) inlineSize() int { return h.offsetSize() }

func (h Header) entrySize() int {
	if h.BigTIFF {
		return bigIFDEntry
	}
	return classicIFDEntry
}

func parseHeader(ctx context.Context, c *readCache) (Header, error) {
	buf, err := c.read(ctx, 0, 8)
	if err != nil {
		return Header{}, err
	}

	var h Header
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		h.ByteOrder = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		h.ByteOrder = binary.BigEndian
	default:
		return Header{}, formatErrorf(0, "bad byte order mark %q", buf[:2])
	}

	switch version := h.ByteOrder.Uint16(buf[2:4]); version {
	case 42:
		h.FirstIFD = uint64(h.ByteOrder.Uint32(buf[4:8]))
	case 43:
		h.BigTIFF = true
		if offsetSize := h.ByteOrder.Uint16(buf[4:6]); offsetSize != 8 {
			return Header{}, formatErrorf(4, "bigtiff offset size %d, want 8", offsetSize)
		}
		if reserved := h.ByteOrder.Uint16(buf[6:8]); reserved != 0 {
			return Header{}, formatErrorf(6, "bigtiff reserved field %d, want 0", reserved)
		}
		rest, err := c.read(ctx, 8, 8)
		if err != nil {
			return Header{}, err
		}
		h.FirstIFD = h.ByteOrder.Uint64(rest)
	default:
		return Header{}, formatErrorf(2, "bad version %d", version)
	}

	if h.FirstIFD == 0 {
		return Header{}, formatErrorf(4, "empty IFD chain")
	}
	return h, nil
}

// metadataReader walks the IFD chain through the read cache. It is only used
// during Open; afterwards the parsed IFDs are immutable and the cache is
// dropped.
type metadataReader struct {
	c    *readCache
	hdr  Header
	log  *zap.SugaredLogger
	seen map[uint64]struct{}
	read int // total IFDs parsed, including sub-IFDs
}

func newMetadataReader(c *readCache, hdr Header, log *zap.SugaredLogger) *metadataReader {
	return &metadataReader{c: c, hdr: hdr, log: log, seen: map[uint64]struct{}{}}
}

// readChain parses the IFD chain rooted at offset, recursing into sub-IFD
// chains. Shared cycle detection across the recursion means a loop anywhere
// in the graph surfaces as a FormatError instead of a hang.
func (r *metadataReader) readChain(ctx context.Context, offset uint64) ([]*IFD, error) {
	var ifds []*IFD
	for offset != 0 {
		if _, ok := r.seen[offset]; ok {
			return nil, formatErrorf(offset, "IFD cycle")
		}
		r.seen[offset] = struct{}{}
		if r.read++; r.read > maxIFDCount {
			return nil, formatErrorf(offset, "more than %d IFDs", maxIFDCount)
		}

		fields, next, err := r.readFields(ctx, offset)
		if err != nil {
			return nil, err
		}
		ifd, err := newIFD(offset, fields, r.hdr.ByteOrder, r.log)
		if err != nil {
			return nil, err
		}
		for _, sub := range ifd.subIFDOffsets {
			children, err := r.readChain(ctx, sub)
			if err != nil {
				return nil, err
			}
			ifd.SubIFDs = append(ifd.SubIFDs, children...)
		}
		ifds = append(ifds, ifd)
		offset = next
	}
	return ifds, nil
}

// readFields parses one IFD: the entry count, the contiguous entry block, the
// next-IFD pointer, and any out-of-line values. The whole entry block is read
// in a single cache request so a well-laid-out header costs one ranged read.
func (r *metadataReader) readFields(ctx context.Context, offset uint64) ([]Field, uint64, error) {
	order := r.hdr.ByteOrder

	countBuf, err := r.c.read(ctx, offset, uint64(r.hdr.offsetSize()))
	if err != nil {
		return nil, 0, err
	}
	var count uint64
	if r.hdr.BigTIFF {
		count = order.Uint64(countBuf)
	} else {
		count = uint64(order.Uint16(countBuf[:2]))
	}
	if count > maxIFDEntries {
		return nil, 0, formatErrorf(offset, "IFD declares %d entries, limit %d", count, maxIFDEntries)
	}

	countSize := uint64(2)
	if r.hdr.BigTIFF {
		countSize = 8
	}
	entrySize := uint64(r.hdr.entrySize())
	blockLen := count*entrySize + uint64(r.hdr.offsetSize())
	block, err := r.c.read(ctx, offset+countSize, blockLen)
	if err != nil {
		return nil, 0, err
	}

	fields := make([]Field, 0, count)
	for i := uint64(0); i < count; i++ {
		entry := block[i*entrySize : (i+1)*entrySize]
		f, err := r.parseEntry(ctx, offset+countSize+i*entrySize, entry)
		if err != nil {
			return nil, 0, err
		}
		fields = append(fields, f)
	}

	var next uint64
	if r.hdr.BigTIFF {
		next = order.Uint64(block[count*entrySize:])
	} else {
		next = uint64(order.Uint32(block[count*entrySize:]))
	}
	return fields, next, nil
}

func (r *metadataReader) parseEntry(ctx context.Context, entryOffset uint64, entry []byte) (Field, error) {
	order := r.hdr.ByteOrder

	tag := Tag(order.Uint16(entry[0:2]))
	typ := FieldType(order.Uint16(entry[2:4]))

	var count uint64
	var value []byte
	if r.hdr.BigTIFF {
		count = order.Uint64(entry[4:12])
		value = entry[12:20]
	} else {
		count = uint64(order.Uint32(entry[4:8]))
		value = entry[8:12]
	}

	typeSize := typ.Size()
	if typeSize == 0 {
		// Unknown field type: the value cannot be sized, so keep the raw
		// inline bytes and let callers that recognize the type deal with it.
		if r.log != nil {
			r.log.Warnw("skipping entry with unknown field type", "tag", uint16(tag), "type", uint16(typ))
		}
		data := make([]byte, len(value))
		copy(data, value)
		return newField(tag, typ, count, data, order), nil
	}

	// Bound the count before multiplying so a hostile 64-bit count cannot
	// wrap byteLen past the limit check.
	if count > maxEntryValue/uint64(typeSize) {
		return Field{}, formatErrorf(entryOffset, "tag %d value is %d x %d bytes, limit %d", tag, count, typeSize, maxEntryValue)
	}
	byteLen := count * uint64(typeSize)

	if byteLen <= uint64(r.hdr.inlineSize()) {
		data := make([]byte, byteLen)
		copy(data, value[:byteLen])
		return newField(tag, typ, count, data, order), nil
	}

	var valueOffset uint64
	if r.hdr.BigTIFF {
		valueOffset = order.Uint64(value)
	} else {
		valueOffset = uint64(order.Uint32(value))
	}
	data, err := r.c.read(ctx, valueOffset, byteLen)
	if err != nil {
		return Field{}, err
	}
	return newField(tag, typ, count, data, order), nil
}
