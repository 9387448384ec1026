// Copyright 2025 <developmentseed.org>. All rights reserved.
// TIFF tag, field type, and enum definitions.

package tiff

import "strconv"

// Tag identifies an IFD entry. Values follow the TIFF 6.0 specification, the
// BigTIFF extension, the OGC GeoTIFF specification, and the GDAL extension
// tags.
type Tag uint16

// Baseline and extension tags.
const (
	TagNewSubfileType            Tag = 254
	TagSubfileType               Tag = 255
	TagImageWidth                Tag = 256
	TagImageLength               Tag = 257
	TagBitsPerSample             Tag = 258
	TagCompression               Tag = 259
	TagPhotometricInterpretation Tag = 262
	TagThreshholding             Tag = 263
	TagCellWidth                 Tag = 264
	TagCellLength                Tag = 265
	TagFillOrder                 Tag = 266
	TagDocumentName              Tag = 269
	TagImageDescription          Tag = 270
	TagMake                      Tag = 271
	TagModel                     Tag = 272
	TagStripOffsets              Tag = 273
	TagOrientation               Tag = 274
	TagSamplesPerPixel           Tag = 277
	TagRowsPerStrip              Tag = 278
	TagStripByteCounts           Tag = 279
	TagMinSampleValue            Tag = 280
	TagMaxSampleValue            Tag = 281
	TagXResolution               Tag = 282
	TagYResolution               Tag = 283
	TagPlanarConfiguration       Tag = 284
	TagFreeOffsets               Tag = 288
	TagFreeByteCounts            Tag = 289
	TagGrayResponseUnit          Tag = 290
	TagGrayResponseCurve         Tag = 291
	TagResolutionUnit            Tag = 296
	TagSoftware                  Tag = 305
	TagDateTime                  Tag = 306
	TagArtist                    Tag = 315
	TagHostComputer              Tag = 316
	TagPredictor                 Tag = 317
	TagColorMap                  Tag = 320
	TagTileWidth                 Tag = 322
	TagTileLength                Tag = 323
	TagTileOffsets               Tag = 324
	TagTileByteCounts            Tag = 325
	TagSubIFDs                   Tag = 330
	TagExtraSamples              Tag = 338
	TagSampleFormat              Tag = 339
	TagSMinSampleValue           Tag = 340
	TagSMaxSampleValue           Tag = 341
	TagJPEGTables                Tag = 347
	TagCopyright                 Tag = 33432

	// GeoTIFF tags.
	TagModelPixelScale     Tag = 33550
	TagModelTiepoint       Tag = 33922
	TagModelTransformation Tag = 34264
	TagGeoKeyDirectory     Tag = 34735
	TagGeoDoubleParams     Tag = 34736
	TagGeoAsciiParams      Tag = 34737

	// GDAL extension tags.
	TagGDALMetadata Tag = 42112
	TagGDALNoData   Tag = 42113
)

// FieldType is the on-disk type of an IFD entry (a 2 byte field).
type FieldType uint16

const (
	// TypeByte is an 8-bit unsigned integer.
	TypeByte FieldType = 1
	// TypeASCII is a 7-bit ASCII byte; the last byte must be zero.
	TypeASCII FieldType = 2
	// TypeShort is a 16-bit unsigned integer.
	TypeShort FieldType = 3
	// TypeLong is a 32-bit unsigned integer.
	TypeLong FieldType = 4
	// TypeRational is a fraction stored as two 32-bit unsigned integers.
	TypeRational FieldType = 5
	// TypeSByte is an 8-bit signed integer.
	TypeSByte FieldType = 6
	// TypeUndefined is an 8-bit byte that may contain anything.
	TypeUndefined FieldType = 7
	// TypeSShort is a 16-bit signed integer.
	TypeSShort FieldType = 8
	// TypeSLong is a 32-bit signed integer.
	TypeSLong FieldType = 9
	// TypeSRational is a fraction stored as two 32-bit signed integers.
	TypeSRational FieldType = 10
	// TypeFloat is a 32-bit IEEE floating point value.
	TypeFloat FieldType = 11
	// TypeDouble is a 64-bit IEEE floating point value.
	TypeDouble FieldType = 12
	// TypeIFD is a 32-bit IFD offset.
	TypeIFD FieldType = 13
	// TypeLong8 is a BigTIFF 64-bit unsigned integer.
	TypeLong8 FieldType = 16
	// TypeSLong8 is a BigTIFF 64-bit signed integer.
	TypeSLong8 FieldType = 17
	// TypeIFD8 is a BigTIFF 64-bit IFD offset.
	TypeIFD8 FieldType = 18
)

// Size returns the byte size of one value of this type, or 0 for an unknown
// type code.
func (t FieldType) Size() int {
	switch t {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1
	case TypeShort, TypeSShort:
		return 2
	case TypeLong, TypeSLong, TypeFloat, TypeIFD:
		return 4
	case TypeRational, TypeSRational, TypeDouble, TypeLong8, TypeSLong8, TypeIFD8:
		return 8
	default:
		return 0
	}
}

// CompressionMethod identifies how tile/strip payloads are compressed.
//
// See the TIFF compression tag registry for reference. Values not listed here
// are carried through unchanged so codecs for private methods can be
// registered.
type CompressionMethod uint16

const (
	CompressionNone       CompressionMethod = 1
	CompressionHuffman    CompressionMethod = 2
	CompressionFax3       CompressionMethod = 3
	CompressionFax4       CompressionMethod = 4
	CompressionLZW        CompressionMethod = 5
	CompressionOldJPEG    CompressionMethod = 6
	CompressionModernJPEG CompressionMethod = 7
	CompressionDeflate    CompressionMethod = 8
	CompressionJPEG2000   CompressionMethod = 34712
	CompressionLZMA       CompressionMethod = 34925
	CompressionZSTD       CompressionMethod = 50000
	CompressionWebP       CompressionMethod = 50001
	CompressionPackBits   CompressionMethod = 32773
	CompressionOldDeflate CompressionMethod = 32946
)

func (c CompressionMethod) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionHuffman:
		return "Huffman"
	case CompressionFax3:
		return "Fax3"
	case CompressionFax4:
		return "Fax4"
	case CompressionLZW:
		return "LZW"
	case CompressionOldJPEG:
		return "OldJPEG"
	case CompressionModernJPEG:
		return "JPEG"
	case CompressionDeflate:
		return "Deflate"
	case CompressionOldDeflate:
		return "OldDeflate"
	case CompressionPackBits:
		return "PackBits"
	case CompressionJPEG2000:
		return "JPEG2000"
	case CompressionLZMA:
		return "LZMA"
	case CompressionZSTD:
		return "ZSTD"
	case CompressionWebP:
		return "WebP"
	default:
		return "CompressionMethod(" + strconv.Itoa(int(c)) + ")"
	}
}

// PhotometricInterpretation is the color space of the image data.
type PhotometricInterpretation uint16

const (
	PhotometricWhiteIsZero      PhotometricInterpretation = 0
	PhotometricBlackIsZero      PhotometricInterpretation = 1
	PhotometricRGB              PhotometricInterpretation = 2
	PhotometricPalette          PhotometricInterpretation = 3
	PhotometricTransparencyMask PhotometricInterpretation = 4
	PhotometricCMYK             PhotometricInterpretation = 5
	PhotometricYCbCr            PhotometricInterpretation = 6
	PhotometricCIELab           PhotometricInterpretation = 8
)

// PlanarConfiguration describes how pixel components are stored: contiguously
// (chunky) or in separate planes (planar).
type PlanarConfiguration uint16

const (
	PlanarChunky PlanarConfiguration = 1
	PlanarPlanar PlanarConfiguration = 2
)

// Predictor is a reversible transform applied to sample data before
// compression to improve compression ratios.
type Predictor uint16

const (
	PredictorNone          Predictor = 1
	PredictorHorizontal    Predictor = 2
	PredictorFloatingPoint Predictor = 3
)

func (p Predictor) String() string {
	switch p {
	case PredictorNone:
		return "None"
	case PredictorHorizontal:
		return "Horizontal"
	case PredictorFloatingPoint:
		return "FloatingPoint"
	default:
		return "Predictor(" + strconv.Itoa(int(p)) + ")"
	}
}

// SampleFormat is the numeric interpretation of sample values.
type SampleFormat uint16

const (
	SampleFormatUint  SampleFormat = 1
	SampleFormatInt   SampleFormat = 2
	SampleFormatFloat SampleFormat = 3
	SampleFormatVoid  SampleFormat = 4
)

// ResolutionUnit is the unit of the X/Y resolution tags.
type ResolutionUnit uint16

const (
	ResolutionUnitNone       ResolutionUnit = 1
	ResolutionUnitInch       ResolutionUnit = 2
	ResolutionUnitCentimeter ResolutionUnit = 3
)

// DataType is the logical element type of a decoded array, derived from the
// SampleFormat and BitsPerSample tags.
type DataType int

const (
	// DataTypeUnknown means the sample format / bit depth combination is
	// unsupported or inconsistent across channels.
	DataTypeUnknown DataType = iota
	DataTypeBool
	DataTypeUint8
	DataTypeUint16
	DataTypeUint32
	DataTypeUint64
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeFloat32
	DataTypeFloat64
)

// Size returns the byte size of one element, or 0 for DataTypeUnknown.
func (d DataType) Size() int {
	switch d {
	case DataTypeBool, DataTypeUint8, DataTypeInt8:
		return 1
	case DataTypeUint16, DataTypeInt16:
		return 2
	case DataTypeUint32, DataTypeInt32, DataTypeFloat32:
		return 4
	case DataTypeUint64, DataTypeInt64, DataTypeFloat64:
		return 8
	default:
		return 0
	}
}

func (d DataType) String() string {
	switch d {
	case DataTypeBool:
		return "bool"
	case DataTypeUint8:
		return "uint8"
	case DataTypeUint16:
		return "uint16"
	case DataTypeUint32:
		return "uint32"
	case DataTypeUint64:
		return "uint64"
	case DataTypeInt8:
		return "int8"
	case DataTypeInt16:
		return "int16"
	case DataTypeInt32:
		return "int32"
	case DataTypeInt64:
		return "int64"
	case DataTypeFloat32:
		return "float32"
	case DataTypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// dataTypeFromTags derives a DataType from the per-channel sample format and
// bit depth tags. All channels must agree, otherwise DataTypeUnknown is
// returned rather than an error: the raw bytes are still usable by callers
// that know what they are looking at.
func dataTypeFromTags(formats []SampleFormat, bits []uint16) DataType {
	if len(formats) == 0 || len(bits) == 0 {
		return DataTypeUnknown
	}
	for _, f := range formats {
		if f != formats[0] {
			return DataTypeUnknown
		}
	}
	for _, b := range bits {
		if b != bits[0] {
			return DataTypeUnknown
		}
	}
	switch {
	case formats[0] == SampleFormatUint && bits[0] == 1:
		return DataTypeBool
	case formats[0] == SampleFormatUint && bits[0] == 8:
		return DataTypeUint8
	case formats[0] == SampleFormatUint && bits[0] == 16:
		return DataTypeUint16
	case formats[0] == SampleFormatUint && bits[0] == 32:
		return DataTypeUint32
	case formats[0] == SampleFormatUint && bits[0] == 64:
		return DataTypeUint64
	case formats[0] == SampleFormatInt && bits[0] == 8:
		return DataTypeInt8
	case formats[0] == SampleFormatInt && bits[0] == 16:
		return DataTypeInt16
	case formats[0] == SampleFormatInt && bits[0] == 32:
		return DataTypeInt32
	case formats[0] == SampleFormatInt && bits[0] == 64:
		return DataTypeInt64
	case formats[0] == SampleFormatFloat && bits[0] == 32:
		return DataTypeFloat32
	case formats[0] == SampleFormatFloat && bits[0] == 64:
		return DataTypeFloat64
	default:
		return DataTypeUnknown
	}
}
