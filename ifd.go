// Copyright 2025 <developmentseed.org>. All rights reserved.

package tiff

import (
	"encoding/binary"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// IFD is one parsed image file directory. Commonly used tags are decoded into
// typed fields; everything else is retained raw in Other so no metadata is
// lost between file and caller.
//
// An IFD is immutable after Open and safe to share between goroutines.
type IFD struct {
	ImageWidth  uint64
	ImageLength uint64

	BitsPerSample   []uint16
	Compression     CompressionMethod
	Photometric     PhotometricInterpretation
	SamplesPerPixel uint16
	SampleFormat    []SampleFormat
	ExtraSamples    []uint16
	Planar          PlanarConfiguration
	Predictor       Predictor
	Orientation     uint16

	// Exactly one of the strip and tile layouts is populated.
	RowsPerStrip    uint64
	StripOffsets    []uint64
	StripByteCounts []uint64
	TileWidth       uint64
	TileLength      uint64
	TileOffsets     []uint64
	TileByteCounts  []uint64

	JPEGTables []byte
	ColorMap   []uint16

	MinSampleValue []uint16
	MaxSampleValue []uint16

	NewSubfileType uint64
	SubIFDs        []*IFD

	XResolution    float64
	YResolution    float64
	ResolutionUnit ResolutionUnit

	DocumentName     string
	ImageDescription string
	Software         string
	DateTime         string
	Artist           string
	HostComputer     string
	Copyright        string

	// GeoTIFF georeferencing.
	ModelPixelScale     []float64
	ModelTiepoint       []float64
	ModelTransformation []float64
	GeoKeys             *GeoKeyDirectory

	// GDAL extension metadata. GDALNoData is the tag's raw string form; use
	// NoData for the parsed value.
	GDALMetadata string
	GDALNoData   string

	// Other holds every tag not decoded above, keyed by tag number.
	Other map[Tag]Field

	offset        uint64
	order         binary.ByteOrder
	subIFDOffsets []uint64
	dataType      DataType
}

// Offset is the file offset this IFD was parsed from.
func (d *IFD) Offset() uint64 { return d.offset }

// ByteOrder is the byte order of the containing file. Chunk payloads and tag
// values are encoded with it.
func (d *IFD) ByteOrder() binary.ByteOrder { return d.order }

// DataType is the logical element type derived from SampleFormat and
// BitsPerSample, or DataTypeUnknown when the combination is unsupported.
func (d *IFD) DataType() DataType { return d.dataType }

// Tiled reports whether this IFD uses the tiled layout.
func (d *IFD) Tiled() bool { return d.TileWidth > 0 }

// NoData returns the parsed GDAL_NODATA sentinel value.
func (d *IFD) NoData() (float64, bool) {
	s := strings.TrimSpace(d.GDALNoData)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func newIFD(offset uint64, fields []Field, order binary.ByteOrder, log *zap.SugaredLogger) (*IFD, error) {
	d := &IFD{
		offset:          offset,
		order:           order,
		Compression:     CompressionNone,
		Photometric:     PhotometricBlackIsZero,
		SamplesPerPixel: 1,
		Planar:          PlanarChunky,
		Predictor:       PredictorNone,
		ResolutionUnit:  ResolutionUnitInch,
		Other:           map[Tag]Field{},
	}

	var geoDir []uint16
	var geoDoubles []float64
	var geoAscii string

	for _, f := range fields {
		if !d.applyField(f, &geoDir, &geoDoubles, &geoAscii) {
			if log != nil {
				log.Infow("retaining unrecognized tag", "tag", uint16(f.Tag), "type", uint16(f.Type), "count", f.Count)
			}
			d.Other[f.Tag] = f
		}
	}

	if d.ImageWidth == 0 || d.ImageLength == 0 {
		return nil, formatErrorf(offset, "IFD missing image dimensions")
	}
	if len(d.TileOffsets) > 0 && d.TileWidth == 0 {
		return nil, formatErrorf(offset, "tile offsets without tile dimensions")
	}

	if len(d.BitsPerSample) == 0 {
		d.BitsPerSample = []uint16{1}
	}
	if len(d.SampleFormat) == 0 {
		d.SampleFormat = make([]SampleFormat, len(d.BitsPerSample))
		for i := range d.SampleFormat {
			d.SampleFormat[i] = SampleFormatUint
		}
	}
	d.dataType = dataTypeFromTags(d.SampleFormat, d.BitsPerSample)

	if len(geoDir) > 0 {
		keys, err := parseGeoKeys(geoDir, geoDoubles, geoAscii, log)
		if err != nil {
			return nil, err
		}
		d.GeoKeys = keys
	}
	return d, nil
}

// applyField decodes one entry into its typed slot. It returns false when the
// tag is not recognized or its value has an unexpected shape, in which case
// the caller retains the raw field.
func (d *IFD) applyField(f Field, geoDir *[]uint16, geoDoubles *[]float64, geoAscii *string) bool {
	switch f.Tag {
	case TagImageWidth:
		return setUint(f, &d.ImageWidth)
	case TagImageLength:
		return setUint(f, &d.ImageLength)
	case TagBitsPerSample:
		return setUint16s(f, &d.BitsPerSample)
	case TagCompression:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.Compression = CompressionMethod(v)
		return true
	case TagPhotometricInterpretation:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.Photometric = PhotometricInterpretation(v)
		return true
	case TagSamplesPerPixel:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.SamplesPerPixel = uint16(v)
		return true
	case TagSampleFormat:
		vs, ok := f.Uints()
		if !ok {
			return false
		}
		d.SampleFormat = make([]SampleFormat, len(vs))
		for i, v := range vs {
			d.SampleFormat[i] = SampleFormat(v)
		}
		return true
	case TagExtraSamples:
		return setUint16s(f, &d.ExtraSamples)
	case TagPlanarConfiguration:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.Planar = PlanarConfiguration(v)
		return true
	case TagPredictor:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.Predictor = Predictor(v)
		return true
	case TagOrientation:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.Orientation = uint16(v)
		return true
	case TagRowsPerStrip:
		return setUint(f, &d.RowsPerStrip)
	case TagStripOffsets:
		return setUints(f, &d.StripOffsets)
	case TagStripByteCounts:
		return setUints(f, &d.StripByteCounts)
	case TagTileWidth:
		return setUint(f, &d.TileWidth)
	case TagTileLength:
		return setUint(f, &d.TileLength)
	case TagTileOffsets:
		return setUints(f, &d.TileOffsets)
	case TagTileByteCounts:
		return setUints(f, &d.TileByteCounts)
	case TagJPEGTables:
		d.JPEGTables = f.Data
		return true
	case TagColorMap:
		return setUint16s(f, &d.ColorMap)
	case TagMinSampleValue:
		return setUint16s(f, &d.MinSampleValue)
	case TagMaxSampleValue:
		return setUint16s(f, &d.MaxSampleValue)
	case TagNewSubfileType:
		return setUint(f, &d.NewSubfileType)
	case TagSubIFDs:
		return setUints(f, &d.subIFDOffsets)
	case TagXResolution:
		return setFloat(f, &d.XResolution)
	case TagYResolution:
		return setFloat(f, &d.YResolution)
	case TagResolutionUnit:
		var v uint64
		if !setUint(f, &v) {
			return false
		}
		d.ResolutionUnit = ResolutionUnit(v)
		return true
	case TagDocumentName:
		return setString(f, &d.DocumentName)
	case TagImageDescription:
		return setString(f, &d.ImageDescription)
	case TagSoftware:
		return setString(f, &d.Software)
	case TagDateTime:
		return setString(f, &d.DateTime)
	case TagArtist:
		return setString(f, &d.Artist)
	case TagHostComputer:
		return setString(f, &d.HostComputer)
	case TagCopyright:
		return setString(f, &d.Copyright)
	case TagModelPixelScale:
		return setFloats(f, &d.ModelPixelScale)
	case TagModelTiepoint:
		return setFloats(f, &d.ModelTiepoint)
	case TagModelTransformation:
		return setFloats(f, &d.ModelTransformation)
	case TagGeoKeyDirectory:
		return setUint16s(f, geoDir)
	case TagGeoDoubleParams:
		return setFloats(f, geoDoubles)
	case TagGeoAsciiParams:
		return setString(f, geoAscii)
	case TagGDALMetadata:
		return setString(f, &d.GDALMetadata)
	case TagGDALNoData:
		return setString(f, &d.GDALNoData)
	default:
		return false
	}
}

func setUint(f Field, dst *uint64) bool {
	v, ok := f.Uint()
	if ok {
		*dst = v
	}
	return ok
}

func setUints(f Field, dst *[]uint64) bool {
	vs, ok := f.Uints()
	if ok {
		*dst = vs
	}
	return ok
}

func setUint16s(f Field, dst *[]uint16) bool {
	vs, ok := f.Uints()
	if !ok {
		return false
	}
	out := make([]uint16, len(vs))
	for i, v := range vs {
		out[i] = uint16(v)
	}
	*dst = out
	return true
}

func setFloat(f Field, dst *float64) bool {
	vs, ok := f.Floats()
	if !ok || len(vs) == 0 {
		return false
	}
	*dst = vs[0]
	return true
}

func setFloats(f Field, dst *[]float64) bool {
	vs, ok := f.Floats()
	if ok {
		*dst = vs
	}
	return ok
}

func setString(f Field, dst *string) bool {
	s, ok := f.ASCII()
	if ok {
		*dst = s
	}
	return ok
}
