// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import "fmt"

// FormatError indicates the byte stream is not a structurally valid TIFF, or
// violates one of the parser's safety limits. The offset, when known, points
// at the offending structure.
type FormatError struct {
	Offset uint64
	Reason string
}

func (e *FormatError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("tiff: invalid format at offset %d: %s", e.Offset, e.Reason)
	}
	return "tiff: invalid format: " + e.Reason
}

func formatErrorf(offset uint64, format string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// RangeError indicates a tile or strip request that does not address this
// image: coordinates outside the chunk grid, a band outside the sample count,
// or strip-style access to a tiled image (and vice versa).
type RangeError struct {
	Reason string
}

func (e *RangeError) Error() string {
	return "tiff: out of range: " + e.Reason
}

func rangeErrorf(format string, args ...any) *RangeError {
	return &RangeError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedCompressionError indicates the IFD's compression method has no
// decoder registered.
type UnsupportedCompressionError struct {
	Method CompressionMethod
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("tiff: no decoder registered for compression %s", e.Method)
}

// UnsupportedPredictorError indicates a predictor value the engine cannot
// reverse.
type UnsupportedPredictorError struct {
	Predictor Predictor
}

func (e *UnsupportedPredictorError) Error() string {
	return fmt.Sprintf("tiff: unsupported predictor %s", e.Predictor)
}

// DecodeError indicates a registered decoder failed on a chunk payload.
type DecodeError struct {
	Method CompressionMethod
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tiff: decoding %s payload: %v", e.Method, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
