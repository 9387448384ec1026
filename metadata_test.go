// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openHeader(t *testing.T, data []byte) (Header, error) {
	t.Helper()
	c := newReadCache(newMemSource(data), 4*1024, 4*1024)
	return parseHeader(context.Background(), c)
}

func TestParseHeaderVariants(t *testing.T) {
	little := buildTiledGray(binary.LittleEndian, false, 16, 16, 16, 16)
	hdr, err := openHeader(t, little.file)
	require.NoError(t, err)
	assert.Equal(t, binary.ByteOrder(binary.LittleEndian), hdr.ByteOrder)
	assert.False(t, hdr.BigTIFF)

	big := buildTiledGray(binary.BigEndian, true, 16, 16, 16, 16)
	hdr, err = openHeader(t, big.file)
	require.NoError(t, err)
	assert.Equal(t, binary.ByteOrder(binary.BigEndian), hdr.ByteOrder)
	assert.True(t, hdr.BigTIFF)
}

func TestParseHeaderRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"bad byte order":       {'X', 'X', 42, 0, 8, 0, 0, 0},
		"bad version":          {'I', 'I', 44, 0, 8, 0, 0, 0},
		"bad bigtiff offsets":  {'I', 'I', 43, 0, 4, 0, 0, 0, 16, 0, 0, 0, 0, 0, 0, 0},
		"bad bigtiff reserved": {'I', 'I', 43, 0, 8, 0, 1, 0, 16, 0, 0, 0, 0, 0, 0, 0},
		"zero first IFD":       {'I', 'I', 42, 0, 0, 0, 0, 0},
		"truncated":            {'I', 'I'},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := openHeader(t, data)
			var ferr *FormatError
			assert.ErrorAs(t, err, &ferr)
		})
	}
}

func TestOpenParsesTypedFields(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, big := range []bool{false, true} {
			img := buildTiledGray(order, big, 48, 32, 16, 16)
			tf, err := Open(context.Background(), newMemSource(img.file))
			require.NoError(t, err)
			defer tf.Close()

			require.Len(t, tf.IFDs(), 1)
			ifd := tf.IFDs()[0]
			assert.Equal(t, uint64(48), ifd.ImageWidth)
			assert.Equal(t, uint64(32), ifd.ImageLength)
			assert.Equal(t, []uint16{8}, ifd.BitsPerSample)
			assert.Equal(t, CompressionNone, ifd.Compression)
			assert.Equal(t, uint16(1), ifd.SamplesPerPixel)
			assert.True(t, ifd.Tiled())
			assert.Equal(t, 3, ifd.ChunksAcross())
			assert.Equal(t, 2, ifd.ChunksDown())
			assert.Equal(t, DataTypeUint8, ifd.DataType())
			assert.Len(t, ifd.TileOffsets, 6)
		}
	}
}

func TestOpenSmallFileIsOneRead(t *testing.T) {
	img := buildTiledGray(binary.LittleEndian, false, 32, 32, 16, 16)
	src := newMemSource(img.file)
	tf, err := Open(context.Background(), src)
	require.NoError(t, err)
	defer tf.Close()

	calls, _ := src.stats()
	assert.Equal(t, 1, calls)
}

func TestOpenFollowsIFDChain(t *testing.T) {
	b := newFileBuilder(binary.LittleEndian, false)
	payload := b.appendBytes(make([]byte, 16))
	full := []tagEntry{
		b.longs(TagImageWidth, 4),
		b.longs(TagImageLength, 4),
		b.shorts(TagBitsPerSample, 8),
		b.longs(TagRowsPerStrip, 4),
		b.offsets(TagStripOffsets, payload),
		b.offsets(TagStripByteCounts, 16),
	}
	b.addIFD(full)
	overview := []tagEntry{
		b.longs(TagImageWidth, 2),
		b.longs(TagImageLength, 2),
		b.shorts(TagBitsPerSample, 8),
		b.longs(TagRowsPerStrip, 2),
		b.offsets(TagStripOffsets, payload),
		b.offsets(TagStripByteCounts, 4),
	}
	b.addIFD(overview)

	tf, err := Open(context.Background(), newMemSource(b.bytes()))
	require.NoError(t, err)
	defer tf.Close()

	require.Len(t, tf.IFDs(), 2)
	assert.Equal(t, uint64(4), tf.IFDs()[0].ImageWidth)
	assert.Equal(t, uint64(2), tf.IFDs()[1].ImageWidth)
}

func TestOpenParsesSubIFDs(t *testing.T) {
	b := newFileBuilder(binary.LittleEndian, false)
	payload := b.appendBytes(make([]byte, 16))

	// The reduced-resolution child is written detached, reachable only
	// through the primary's SubIFDs tag.
	childOff := b.addDetachedIFD([]tagEntry{
		b.longs(TagImageWidth, 2),
		b.longs(TagImageLength, 2),
		b.shorts(TagBitsPerSample, 8),
		b.longs(TagRowsPerStrip, 2),
		b.offsets(TagStripOffsets, payload),
		b.offsets(TagStripByteCounts, 4),
	})
	b.addIFD([]tagEntry{
		b.longs(TagImageWidth, 4),
		b.longs(TagImageLength, 4),
		b.shorts(TagBitsPerSample, 8),
		b.longs(TagRowsPerStrip, 4),
		b.offsets(TagStripOffsets, payload),
		b.offsets(TagStripByteCounts, 16),
		{tag: TagSubIFDs, typ: TypeIFD, n: 1, data: leUint32(uint32(childOff))},
	})

	tf, err := Open(context.Background(), newMemSource(b.bytes()))
	require.NoError(t, err)
	defer tf.Close()

	require.Len(t, tf.IFDs(), 1)
	require.Len(t, tf.IFDs()[0].SubIFDs, 1)
	assert.Equal(t, uint64(2), tf.IFDs()[0].SubIFDs[0].ImageWidth)
}

func TestOpenDetectsIFDCycle(t *testing.T) {
	b := newFileBuilder(binary.LittleEndian, false)
	payload := b.appendBytes(make([]byte, 4))
	ifdOff := b.addIFD([]tagEntry{
		b.longs(TagImageWidth, 2),
		b.longs(TagImageLength, 2),
		b.shorts(TagBitsPerSample, 8),
		b.longs(TagRowsPerStrip, 2),
		b.offsets(TagStripOffsets, payload),
		b.offsets(TagStripByteCounts, 4),
	})
	// Point the next-IFD pointer back at this IFD.
	b.putOffset(b.nextPtrPos, ifdOff)

	_, err := Open(context.Background(), newMemSource(b.bytes()))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Reason, "cycle")
}

func TestOpenRejectsHugeEntryCount(t *testing.T) {
	data := make([]byte, 32)
	copy(data, []byte{'I', 'I', 42, 0, 8, 0, 0, 0})
	binary.LittleEndian.PutUint16(data[8:], 60000)

	_, err := Open(context.Background(), newMemSource(data))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Reason, "entries")
}

func TestOpenRejectsHugeEntryValue(t *testing.T) {
	b := newFileBuilder(binary.LittleEndian, false)
	huge := tagEntry{tag: Tag(50_000), typ: TypeLong, n: 5_000_000, data: make([]byte, 8)}
	b.addIFD([]tagEntry{
		b.longs(TagImageWidth, 2),
		b.longs(TagImageLength, 2),
		huge,
	})

	_, err := Open(context.Background(), newMemSource(b.bytes()))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Reason, "limit")
}

func TestOpenRejectsWrappingEntryCount(t *testing.T) {
	// A 64-bit count chosen so count*typeSize wraps to a tiny value. The
	// entry must trip the value limit, not slip past it and allocate.
	b := newFileBuilder(binary.LittleEndian, true)
	wrap := tagEntry{tag: TagImageWidth, typ: TypeLong8, n: 0x2000_0000_0000_0000, data: make([]byte, 8)}
	b.addIFD([]tagEntry{
		wrap,
		b.longs(TagImageLength, 2),
	})

	_, err := Open(context.Background(), newMemSource(b.bytes()))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
	assert.Contains(t, ferr.Reason, "limit")
}

func TestOpenRetainsUnknownTags(t *testing.T) {
	b := newFileBuilder(binary.LittleEndian, false)
	payload := b.appendBytes(make([]byte, 4))
	custom := b.shorts(Tag(50_000), 7)
	b.addIFD([]tagEntry{
		b.longs(TagImageWidth, 2),
		b.longs(TagImageLength, 2),
		b.shorts(TagBitsPerSample, 8),
		b.longs(TagRowsPerStrip, 2),
		b.offsets(TagStripOffsets, payload),
		b.offsets(TagStripByteCounts, 4),
		custom,
	})

	tf, err := Open(context.Background(), newMemSource(b.bytes()))
	require.NoError(t, err)
	defer tf.Close()

	f, ok := tf.IFDs()[0].Other[Tag(50_000)]
	require.True(t, ok)
	v, ok := f.Uint()
	require.True(t, ok)
	assert.Equal(t, uint64(7), v)
}

func TestOpenRequiresImageDimensions(t *testing.T) {
	b := newFileBuilder(binary.LittleEndian, false)
	b.addIFD([]tagEntry{b.shorts(TagBitsPerSample, 8)})

	_, err := Open(context.Background(), newMemSource(b.bytes()))
	var ferr *FormatError
	require.ErrorAs(t, err, &ferr)
}

func leUint32(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}
