// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldUints(t *testing.T) {
	order := binary.BigEndian
	data := make([]byte, 6)
	order.PutUint16(data[0:], 10)
	order.PutUint16(data[2:], 20)
	order.PutUint16(data[4:], 30)

	f := newField(TagBitsPerSample, TypeShort, 3, data, order)
	vs, ok := f.Uints()
	require.True(t, ok)
	assert.Equal(t, []uint64{10, 20, 30}, vs)

	v, ok := f.Uint()
	require.True(t, ok)
	assert.Equal(t, uint64(10), v)
}

func TestFieldSignedInts(t *testing.T) {
	order := binary.LittleEndian
	data := make([]byte, 4)
	order.PutUint32(data, uint32(0xFFFFFFFF)) // -1 as SLONG

	f := newField(Tag(40_000), TypeSLong, 1, data, order)
	vs, ok := f.Ints()
	require.True(t, ok)
	assert.Equal(t, []int64{-1}, vs)

	// Signed types do not read as unsigned.
	_, ok = f.Uints()
	assert.False(t, ok)
}

func TestFieldRationals(t *testing.T) {
	order := binary.LittleEndian
	data := make([]byte, 8)
	order.PutUint32(data[0:], 300)
	order.PutUint32(data[4:], 4)

	f := newField(TagXResolution, TypeRational, 1, data, order)
	vs, ok := f.Floats()
	require.True(t, ok)
	assert.Equal(t, []float64{75}, vs)

	// A zero denominator is rejected rather than producing Inf.
	order.PutUint32(data[4:], 0)
	f = newField(TagXResolution, TypeRational, 1, data, order)
	_, ok = f.Floats()
	assert.False(t, ok)
}

func TestFieldDoubles(t *testing.T) {
	order := binary.BigEndian
	data := make([]byte, 16)
	order.PutUint64(data[0:], math.Float64bits(1.25))
	order.PutUint64(data[8:], math.Float64bits(-3))

	f := newField(TagModelPixelScale, TypeDouble, 2, data, order)
	vs, ok := f.Floats()
	require.True(t, ok)
	assert.Equal(t, []float64{1.25, -3}, vs)
}

func TestFieldASCII(t *testing.T) {
	f := newField(TagSoftware, TypeASCII, 6, []byte("gdal\x00\x00"), binary.LittleEndian)
	s, ok := f.ASCII()
	require.True(t, ok)
	assert.Equal(t, "gdal", s)

	short := newField(TagCompression, TypeShort, 1, []byte{1, 0}, binary.LittleEndian)
	_, ok = short.ASCII()
	assert.False(t, ok)
}

func TestFieldIntegerFloatsConversion(t *testing.T) {
	order := binary.LittleEndian
	data := make([]byte, 2)
	order.PutUint16(data, 42)

	f := newField(Tag(40_001), TypeShort, 1, data, order)
	vs, ok := f.Floats()
	require.True(t, ok)
	assert.Equal(t, []float64{42}, vs)
}

func TestFieldTruncatedData(t *testing.T) {
	// Count claims more values than the data holds.
	f := newField(TagBitsPerSample, TypeShort, 4, []byte{8, 0}, binary.LittleEndian)
	_, ok := f.Uints()
	assert.False(t, ok)
}

func TestFieldWrappingCount(t *testing.T) {
	// A count whose byte length wraps 64-bit arithmetic must not defeat the
	// truncation check or reach the allocation.
	order := binary.LittleEndian
	for _, typ := range []FieldType{TypeLong8, TypeSLong8, TypeDouble, TypeRational} {
		f := newField(Tag(50_001), typ, 0x2000_0000_0000_0000, make([]byte, 8), order)
		_, ok := f.Uints()
		assert.False(t, ok, "type %d", typ)
		_, ok = f.Ints()
		assert.False(t, ok, "type %d", typ)
		_, ok = f.Floats()
		assert.False(t, ok, "type %d", typ)
	}
}
