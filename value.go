// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"encoding/binary"
	"math"
	"strings"
)

// Field is a fully materialized IFD entry: the tag, the on-disk type, the
// value count, and the raw value bytes in the file's byte order. Out-of-line
// values have already been fetched by the metadata reader; Data always holds
// Count values.
type Field struct {
	Tag   Tag
	Type  FieldType
	Count uint64
	Data  []byte

	order binary.ByteOrder
}

// ByteOrder returns the byte order the value bytes are encoded with.
func (f Field) ByteOrder() binary.ByteOrder { return f.order }

// holds reports whether Data carries at least Count values of the given
// element size. Division keeps the comparison exact for any 64-bit Count.
func (f Field) holds(size int) bool {
	return size > 0 && f.Count <= uint64(len(f.Data))/uint64(size)
}

// Uints interprets the field as unsigned integers. Signed and rational types
// are rejected.
func (f Field) Uints() ([]uint64, bool) {
	size := f.Type.Size()
	if !f.holds(size) {
		return nil, false
	}
	out := make([]uint64, f.Count)
	for i := range out {
		v := f.Data[i*size:]
		switch f.Type {
		case TypeByte, TypeUndefined:
			out[i] = uint64(v[0])
		case TypeShort:
			out[i] = uint64(f.order.Uint16(v))
		case TypeLong, TypeIFD:
			out[i] = uint64(f.order.Uint32(v))
		case TypeLong8, TypeIFD8:
			out[i] = f.order.Uint64(v)
		default:
			return nil, false
		}
	}
	return out, true
}

// Uint returns the first value of a single- or multi-valued unsigned field.
func (f Field) Uint() (uint64, bool) {
	vs, ok := f.Uints()
	if !ok || len(vs) == 0 {
		return 0, false
	}
	return vs[0], true
}

// Ints interprets the field as signed integers. Unsigned types are also
// accepted when they fit.
func (f Field) Ints() ([]int64, bool) {
	size := f.Type.Size()
	if !f.holds(size) {
		return nil, false
	}
	out := make([]int64, f.Count)
	for i := range out {
		v := f.Data[i*size:]
		switch f.Type {
		case TypeSByte:
			out[i] = int64(int8(v[0]))
		case TypeSShort:
			out[i] = int64(int16(f.order.Uint16(v)))
		case TypeSLong:
			out[i] = int64(int32(f.order.Uint32(v)))
		case TypeSLong8:
			out[i] = int64(f.order.Uint64(v))
		case TypeByte, TypeUndefined:
			out[i] = int64(v[0])
		case TypeShort:
			out[i] = int64(f.order.Uint16(v))
		case TypeLong, TypeIFD:
			out[i] = int64(f.order.Uint32(v))
		default:
			return nil, false
		}
	}
	return out, true
}

// Floats interprets the field as floating point values. Integer and rational
// types are converted.
func (f Field) Floats() ([]float64, bool) {
	switch f.Type {
	case TypeFloat:
		if !f.holds(4) {
			return nil, false
		}
		out := make([]float64, f.Count)
		for i := range out {
			out[i] = float64(math.Float32frombits(f.order.Uint32(f.Data[i*4:])))
		}
		return out, true
	case TypeDouble:
		if !f.holds(8) {
			return nil, false
		}
		out := make([]float64, f.Count)
		for i := range out {
			out[i] = math.Float64frombits(f.order.Uint64(f.Data[i*8:]))
		}
		return out, true
	case TypeRational:
		if !f.holds(8) {
			return nil, false
		}
		out := make([]float64, f.Count)
		for i := range out {
			num := f.order.Uint32(f.Data[i*8:])
			den := f.order.Uint32(f.Data[i*8+4:])
			if den == 0 {
				return nil, false
			}
			out[i] = float64(num) / float64(den)
		}
		return out, true
	case TypeSRational:
		if !f.holds(8) {
			return nil, false
		}
		out := make([]float64, f.Count)
		for i := range out {
			num := int32(f.order.Uint32(f.Data[i*8:]))
			den := int32(f.order.Uint32(f.Data[i*8+4:]))
			if den == 0 {
				return nil, false
			}
			out[i] = float64(num) / float64(den)
		}
		return out, true
	default:
		if vs, ok := f.Uints(); ok {
			out := make([]float64, len(vs))
			for i, v := range vs {
				out[i] = float64(v)
			}
			return out, true
		}
		if vs, ok := f.Ints(); ok {
			out := make([]float64, len(vs))
			for i, v := range vs {
				out[i] = float64(v)
			}
			return out, true
		}
		return nil, false
	}
}

// ASCII interprets the field as a string, dropping the trailing NUL. Interior
// NULs are preserved; callers needing the multi-string convention can split
// on them.
func (f Field) ASCII() (string, bool) {
	if f.Type != TypeASCII && f.Type != TypeByte && f.Type != TypeUndefined {
		return "", false
	}
	s := string(f.Data)
	return strings.TrimRight(s, "\x00"), true
}

func newField(tag Tag, typ FieldType, count uint64, data []byte, order binary.ByteOrder) Field {
	return Field{Tag: tag, Type: typ, Count: count, Data: data, order: order}
}
