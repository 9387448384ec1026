// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Array is a decoded chunk: predictor-reversed sample bytes plus the shape
// and element type needed to interpret them. Data stays in the file byte
// order; the typed accessors decode on the way out.
//
// Shape is [height, width, samples] for chunky images and
// [bands, height, width] for planar ones.
type Array struct {
	Data      []byte
	Shape     [3]int
	DataType  DataType
	ByteOrder binary.ByteOrder
}

// Len is the element count implied by the shape.
func (a *Array) Len() int { return a.Shape[0] * a.Shape[1] * a.Shape[2] }

func (a *Array) check(want DataType) error {
	if a.DataType != want {
		return fmt.Errorf("tiff: array holds %s, not %s", a.DataType, want)
	}
	if size := want.Size(); len(a.Data) < a.Len()*size {
		return fmt.Errorf("tiff: array has %d bytes for %d %s elements", len(a.Data), a.Len(), want)
	}
	return nil
}

// Uint8s returns the elements of a uint8 array.
func (a *Array) Uint8s() ([]uint8, error) {
	if err := a.check(DataTypeUint8); err != nil {
		return nil, err
	}
	out := make([]uint8, a.Len())
	copy(out, a.Data)
	return out, nil
}

// Uint16s returns the elements of a uint16 array.
func (a *Array) Uint16s() ([]uint16, error) {
	if err := a.check(DataTypeUint16); err != nil {
		return nil, err
	}
	out := make([]uint16, a.Len())
	for i := range out {
		out[i] = a.ByteOrder.Uint16(a.Data[i*2:])
	}
	return out, nil
}

// Int16s returns the elements of an int16 array.
func (a *Array) Int16s() ([]int16, error) {
	if err := a.check(DataTypeInt16); err != nil {
		return nil, err
	}
	out := make([]int16, a.Len())
	for i := range out {
		out[i] = int16(a.ByteOrder.Uint16(a.Data[i*2:]))
	}
	return out, nil
}

// Uint32s returns the elements of a uint32 array.
func (a *Array) Uint32s() ([]uint32, error) {
	if err := a.check(DataTypeUint32); err != nil {
		return nil, err
	}
	out := make([]uint32, a.Len())
	for i := range out {
		out[i] = a.ByteOrder.Uint32(a.Data[i*4:])
	}
	return out, nil
}

// Int32s returns the elements of an int32 array.
func (a *Array) Int32s() ([]int32, error) {
	if err := a.check(DataTypeInt32); err != nil {
		return nil, err
	}
	out := make([]int32, a.Len())
	for i := range out {
		out[i] = int32(a.ByteOrder.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

// Float32s returns the elements of a float32 array.
func (a *Array) Float32s() ([]float32, error) {
	if err := a.check(DataTypeFloat32); err != nil {
		return nil, err
	}
	out := make([]float32, a.Len())
	for i := range out {
		out[i] = math.Float32frombits(a.ByteOrder.Uint32(a.Data[i*4:]))
	}
	return out, nil
}

// Float64s converts the elements of any numeric array to float64.
func (a *Array) Float64s() ([]float64, error) {
	size := a.DataType.Size()
	if size == 0 {
		return nil, fmt.Errorf("tiff: cannot convert %s array to float64", a.DataType)
	}
	n := a.Len()
	if len(a.Data) < n*size {
		return nil, fmt.Errorf("tiff: array has %d bytes for %d %s elements", len(a.Data), n, a.DataType)
	}
	out := make([]float64, n)
	for i := range out {
		v := a.Data[i*size:]
		switch a.DataType {
		case DataTypeBool, DataTypeUint8:
			out[i] = float64(v[0])
		case DataTypeInt8:
			out[i] = float64(int8(v[0]))
		case DataTypeUint16:
			out[i] = float64(a.ByteOrder.Uint16(v))
		case DataTypeInt16:
			out[i] = float64(int16(a.ByteOrder.Uint16(v)))
		case DataTypeUint32:
			out[i] = float64(a.ByteOrder.Uint32(v))
		case DataTypeInt32:
			out[i] = float64(int32(a.ByteOrder.Uint32(v)))
		case DataTypeUint64:
			out[i] = float64(a.ByteOrder.Uint64(v))
		case DataTypeInt64:
			out[i] = float64(int64(a.ByteOrder.Uint64(v)))
		case DataTypeFloat32:
			out[i] = float64(math.Float32frombits(a.ByteOrder.Uint32(v)))
		case DataTypeFloat64:
			out[i] = math.Float64frombits(a.ByteOrder.Uint64(v))
		}
	}
	return out, nil
}

// validityMask returns true per element where the value differs from the
// nodata sentinel.
func (a *Array) validityMask(nodata float64) ([]bool, error) {
	vs, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	mask := make([]bool, len(vs))
	nan := math.IsNaN(nodata)
	for i, v := range vs {
		if nan {
			mask[i] = !math.IsNaN(v)
		} else {
			mask[i] = v != nodata
		}
	}
	return mask, nil
}
