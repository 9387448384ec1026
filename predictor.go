// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"encoding/binary"
)

// unpredict reverses the predictor transform on a decompressed chunk, in
// place. The chunk is width pixels across and rows high with spp interleaved
// samples per pixel, each bits wide, encoded with the file byte order. Tiles
// always span their full physical width, so width is the tile width even for
// border tiles.
func unpredict(data []byte, pred Predictor, order binary.ByteOrder, width, rows, spp, bits int) ([]byte, error) {
	switch pred {
	case PredictorNone:
		return data, nil
	case PredictorHorizontal:
		return data, unpredictHorizontal(data, order, width, rows, spp, bits)
	case PredictorFloatingPoint:
		return data, unpredictFloat(data, order, width, rows, spp, bits)
	default:
		return nil, &UnsupportedPredictorError{Predictor: pred}
	}
}

// unpredictHorizontal undoes horizontal differencing: each sample was stored
// as the delta from the same channel in the previous pixel.
func unpredictHorizontal(data []byte, order binary.ByteOrder, width, rows, spp, bits int) error {
	samplesPerRow := width * spp
	rowBytes := samplesPerRow * bits / 8
	if len(data) < rows*rowBytes {
		return formatErrorf(0, "chunk is %d bytes, need %d for %dx%d pixels", len(data), rows*rowBytes, width, rows)
	}

	for r := 0; r < rows; r++ {
		row := data[r*rowBytes : (r+1)*rowBytes]
		switch bits {
		case 8:
			for i := spp; i < samplesPerRow; i++ {
				row[i] += row[i-spp]
			}
		case 16:
			for i := spp; i < samplesPerRow; i++ {
				v := order.Uint16(row[i*2:]) + order.Uint16(row[(i-spp)*2:])
				order.PutUint16(row[i*2:], v)
			}
		case 32:
			for i := spp; i < samplesPerRow; i++ {
				v := order.Uint32(row[i*4:]) + order.Uint32(row[(i-spp)*4:])
				order.PutUint32(row[i*4:], v)
			}
		case 64:
			for i := spp; i < samplesPerRow; i++ {
				v := order.Uint64(row[i*8:]) + order.Uint64(row[(i-spp)*8:])
				order.PutUint64(row[i*8:], v)
			}
		default:
			return formatErrorf(0, "horizontal predictor with %d-bit samples", bits)
		}
	}
	return nil
}

// unpredictFloat undoes the floating point predictor: within each row the
// bytes were split into per-significance planes, most significant first, and
// then byte-differenced. Reversal accumulates the deltas and re-interleaves
// the planes into whole samples in the file byte order.
func unpredictFloat(data []byte, order binary.ByteOrder, width, rows, spp, bits int) error {
	if bits != 32 && bits != 64 {
		return formatErrorf(0, "floating point predictor with %d-bit samples", bits)
	}
	bytesPerSample := bits / 8
	samplesPerRow := width * spp
	rowBytes := samplesPerRow * bytesPerSample
	if len(data) < rows*rowBytes {
		return formatErrorf(0, "chunk is %d bytes, need %d for %dx%d pixels", len(data), rows*rowBytes, width, rows)
	}

	tmp := make([]byte, rowBytes)
	for r := 0; r < rows; r++ {
		row := data[r*rowBytes : (r+1)*rowBytes]
		for i := 1; i < rowBytes; i++ {
			row[i] += row[i-1]
		}
		for p := 0; p < bytesPerSample; p++ {
			plane := row[p*samplesPerRow : (p+1)*samplesPerRow]
			for e, b := range plane {
				if order == binary.BigEndian {
					tmp[e*bytesPerSample+p] = b
				} else {
					tmp[e*bytesPerSample+bytesPerSample-1-p] = b
				}
			}
		}
		copy(row, tmp)
	}
	return nil
}
