// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"
)

// DecodeInfo carries the IFD context a codec needs beyond the raw payload.
type DecodeInfo struct {
	// ExpectedSize is the decompressed byte size of the full physical chunk.
	// Codecs that know their output size use it to allocate; it is not
	// enforced here because the last strip of an image is legitimately
	// shorter.
	ExpectedSize int
	Photometric  PhotometricInterpretation
	// JPEGTables is the shared quantization/Huffman table stream for
	// JPEG-in-TIFF, or nil.
	JPEGTables []byte
}

// Decoder decompresses one chunk payload.
type Decoder interface {
	Decode(buf []byte, info DecodeInfo) ([]byte, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(buf []byte, info DecodeInfo) ([]byte, error)

func (f DecoderFunc) Decode(buf []byte, info DecodeInfo) ([]byte, error) { return f(buf, info) }

// DecoderRegistry maps compression methods to codecs. It is immutable after
// construction and safe for concurrent use.
type DecoderRegistry struct {
	decoders map[CompressionMethod]Decoder
}

// NewDecoderRegistry returns the default codec set with overrides applied on
// top. An override with a nil Decoder removes the method.
func NewDecoderRegistry(overrides map[CompressionMethod]Decoder) *DecoderRegistry {
	m := map[CompressionMethod]Decoder{
		CompressionNone:       DecoderFunc(decodeNone),
		CompressionLZW:        DecoderFunc(decodeLZW),
		CompressionDeflate:    DecoderFunc(decodeDeflate),
		CompressionOldDeflate: DecoderFunc(decodeDeflate),
		CompressionPackBits:   DecoderFunc(decodePackBits),
		CompressionZSTD:       newZSTDDecoder(),
		CompressionModernJPEG: DecoderFunc(decodeJPEG),
	}
	for method, dec := range overrides {
		if dec == nil {
			delete(m, method)
		} else {
			m[method] = dec
		}
	}
	return &DecoderRegistry{decoders: m}
}

// Get returns the codec for a compression method.
func (r *DecoderRegistry) Get(method CompressionMethod) (Decoder, bool) {
	d, ok := r.decoders[method]
	return d, ok
}

func decodeNone(buf []byte, _ DecodeInfo) ([]byte, error) {
	return buf, nil
}

func decodeLZW(buf []byte, info DecodeInfo) ([]byte, error) {
	rc := lzw.NewReader(bytes.NewReader(buf), lzw.MSB, 8)
	defer rc.Close()
	out, err := readAllSized(rc, info.ExpectedSize)
	if err != nil {
		return nil, &DecodeError{Method: CompressionLZW, Err: err}
	}
	return out, nil
}

func decodeDeflate(buf []byte, info DecodeInfo) ([]byte, error) {
	rc, err := zlib.NewReader(bytes.NewReader(buf))
	if err != nil {
		return nil, &DecodeError{Method: CompressionDeflate, Err: err}
	}
	defer rc.Close()
	out, err := readAllSized(rc, info.ExpectedSize)
	if err != nil {
		return nil, &DecodeError{Method: CompressionDeflate, Err: err}
	}
	return out, nil
}

// decodePackBits expands the PackBits run-length encoding: a control byte n
// in [0,127] copies n+1 literals, in [129,255] repeats the next byte 257-n
// times, and 128 is a no-op.
func decodePackBits(buf []byte, info DecodeInfo) ([]byte, error) {
	out := make([]byte, 0, info.ExpectedSize)
	for i := 0; i < len(buf); {
		n := int(buf[i])
		i++
		switch {
		case n < 128:
			if i+n+1 > len(buf) {
				return nil, &DecodeError{Method: CompressionPackBits, Err: io.ErrUnexpectedEOF}
			}
			out = append(out, buf[i:i+n+1]...)
			i += n + 1
		case n > 128:
			if i >= len(buf) {
				return nil, &DecodeError{Method: CompressionPackBits, Err: io.ErrUnexpectedEOF}
			}
			for j := 0; j < 257-n; j++ {
				out = append(out, buf[i])
			}
			i++
		}
	}
	return out, nil
}

type zstdDecoder struct {
	dec *zstd.Decoder
}

func newZSTDDecoder() *zstdDecoder {
	// A nil-reader decoder only serves DecodeAll, which is safe for
	// concurrent use.
	dec, _ := zstd.NewReader(nil)
	return &zstdDecoder{dec: dec}
}

func (z *zstdDecoder) Decode(buf []byte, info DecodeInfo) ([]byte, error) {
	out, err := z.dec.DecodeAll(buf, make([]byte, 0, info.ExpectedSize))
	if err != nil {
		return nil, &DecodeError{Method: CompressionZSTD, Err: err}
	}
	return out, nil
}

// decodeJPEG handles JPEG-in-TIFF. When the IFD carries a shared JPEGTables
// stream, the chunk payload is an abbreviated JPEG; the tables are spliced in
// between the payload's SOI marker and its first scan segment to form a
// standalone stream.
func decodeJPEG(buf []byte, info DecodeInfo) ([]byte, error) {
	stream := buf
	if t := info.JPEGTables; len(t) > 4 {
		if len(buf) < 2 || buf[0] != 0xFF || buf[1] != 0xD8 {
			return nil, &DecodeError{Method: CompressionModernJPEG, Err: fmt.Errorf("payload missing SOI marker")}
		}
		// Drop the tables' SOI and EOI markers, keep the payload's SOI.
		spliced := make([]byte, 0, len(t)+len(buf)-4)
		spliced = append(spliced, buf[:2]...)
		spliced = append(spliced, t[2:len(t)-2]...)
		spliced = append(spliced, buf[2:]...)
		stream = spliced
	}

	img, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, &DecodeError{Method: CompressionModernJPEG, Err: err}
	}
	out, err := imageSamples(img, info.Photometric)
	if err != nil {
		return nil, &DecodeError{Method: CompressionModernJPEG, Err: err}
	}
	return out, nil
}

// imageSamples flattens a decoded JPEG into interleaved 8-bit samples in
// row-major order. The IFD's photometric interpretation decides the sample
// space of a color stream: a YCbCr IFD keeps the raw upsampled Y'CbCr
// triples, anything else converts to RGB.
func imageSamples(img image.Image, photometric PhotometricInterpretation) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch src := img.(type) {
	case *image.Gray:
		out := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(out[y*w:], src.Pix[y*src.Stride:y*src.Stride+w])
		}
		return out, nil
	case *image.CMYK:
		out := make([]byte, w*h*4)
		for y := 0; y < h; y++ {
			copy(out[y*w*4:], src.Pix[y*src.Stride:y*src.Stride+w*4])
		}
		return out, nil
	case *image.YCbCr:
		out := make([]byte, 0, w*h*3)
		if photometric == PhotometricYCbCr {
			for y := b.Min.Y; y < b.Max.Y; y++ {
				for x := b.Min.X; x < b.Max.X; x++ {
					yi := src.YOffset(x, y)
					ci := src.COffset(x, y)
					out = append(out, src.Y[yi], src.Cb[ci], src.Cr[ci])
				}
			}
			return out, nil
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := src.YCbCrAt(x, y)
				r8, g8, b8, _ := c.RGBA()
				out = append(out, byte(r8>>8), byte(g8>>8), byte(b8>>8))
			}
		}
		return out, nil
	default:
		out := make([]byte, 0, w*h*3)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r8, g8, b8, _ := img.At(x, y).RGBA()
				out = append(out, byte(r8>>8), byte(g8>>8), byte(b8>>8))
			}
		}
		return out, nil
	}
}

// readAllSized drains r into a buffer pre-sized for the expected output. A
// short stream is not an error here; strip chunks may legally decode to less
// than a full chunk.
func readAllSized(r io.Reader, expected int) ([]byte, error) {
	if expected <= 0 {
		return io.ReadAll(r)
	}
	out := bytes.NewBuffer(make([]byte, 0, expected))
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
