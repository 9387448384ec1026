// Copyright 2025 <developmentseed.org>. All rights reserved.
// GeoTIFF key directory parsing and georeferencing transforms.

package tiff

import (
	"strings"

	"go.uber.org/zap"
)

// GeoKey identifies a GeoTIFF key stored in the GeoKeyDirectory tag.
type GeoKey uint16

// GeoTIFF configuration, geographic CRS, projected CRS, and vertical CRS
// keys, per OGC GeoTIFF 1.1.
const (
	KeyGTModelType  GeoKey = 1024
	KeyGTRasterType GeoKey = 1025
	KeyGTCitation   GeoKey = 1026

	KeyGeographicType        GeoKey = 2048
	KeyGeogCitation          GeoKey = 2049
	KeyGeogGeodeticDatum     GeoKey = 2050
	KeyGeogPrimeMeridian     GeoKey = 2051
	KeyGeogLinearUnits       GeoKey = 2052
	KeyGeogLinearUnitSize    GeoKey = 2053
	KeyGeogAngularUnits      GeoKey = 2054
	KeyGeogAngularUnitSize   GeoKey = 2055
	KeyGeogEllipsoid         GeoKey = 2056
	KeyGeogSemiMajorAxis     GeoKey = 2057
	KeyGeogSemiMinorAxis     GeoKey = 2058
	KeyGeogInvFlattening     GeoKey = 2059
	KeyGeogAzimuthUnits      GeoKey = 2060
	KeyGeogPrimeMeridianLong GeoKey = 2061
	KeyGeogTOWGS84           GeoKey = 2062

	KeyProjectedCSType          GeoKey = 3072
	KeyPCSCitation              GeoKey = 3073
	KeyProjection               GeoKey = 3074
	KeyProjCoordTrans           GeoKey = 3075
	KeyProjLinearUnits          GeoKey = 3076
	KeyProjLinearUnitSize       GeoKey = 3077
	KeyProjStdParallel1         GeoKey = 3078
	KeyProjStdParallel2         GeoKey = 3079
	KeyProjNatOriginLong        GeoKey = 3080
	KeyProjNatOriginLat         GeoKey = 3081
	KeyProjFalseEasting         GeoKey = 3082
	KeyProjFalseNorthing        GeoKey = 3083
	KeyProjFalseOriginLong      GeoKey = 3084
	KeyProjFalseOriginLat       GeoKey = 3085
	KeyProjFalseOriginEasting   GeoKey = 3086
	KeyProjFalseOriginNorthing  GeoKey = 3087
	KeyProjCenterLong           GeoKey = 3088
	KeyProjCenterLat            GeoKey = 3089
	KeyProjCenterEasting        GeoKey = 3090
	KeyProjCenterNorthing       GeoKey = 3091
	KeyProjScaleAtNatOrigin     GeoKey = 3092
	KeyProjScaleAtCenter        GeoKey = 3093
	KeyProjAzimuthAngle         GeoKey = 3094
	KeyProjStraightVertPoleLong GeoKey = 3095
	KeyProjRectifiedGridAngle   GeoKey = 3096

	KeyVerticalCSType   GeoKey = 4096
	KeyVerticalCitation GeoKey = 4097
	KeyVerticalDatum    GeoKey = 4098
	KeyVerticalUnits    GeoKey = 4099
)

// Model type values for KeyGTModelType.
const (
	ModelTypeProjected  = 1
	ModelTypeGeographic = 2
	ModelTypeGeocentric = 3
)

// Raster type values for KeyGTRasterType.
const (
	RasterPixelIsArea  = 1
	RasterPixelIsPoint = 2
)

var knownGeoKeys = map[GeoKey]struct{}{}

func init() {
	for _, k := range []GeoKey{
		KeyGTModelType, KeyGTRasterType, KeyGTCitation,
		KeyGeographicType, KeyGeogCitation, KeyGeogGeodeticDatum,
		KeyGeogPrimeMeridian, KeyGeogLinearUnits, KeyGeogLinearUnitSize,
		KeyGeogAngularUnits, KeyGeogAngularUnitSize, KeyGeogEllipsoid,
		KeyGeogSemiMajorAxis, KeyGeogSemiMinorAxis, KeyGeogInvFlattening,
		KeyGeogAzimuthUnits, KeyGeogPrimeMeridianLong, KeyGeogTOWGS84,
		KeyProjectedCSType, KeyPCSCitation, KeyProjection, KeyProjCoordTrans,
		KeyProjLinearUnits, KeyProjLinearUnitSize, KeyProjStdParallel1,
		KeyProjStdParallel2, KeyProjNatOriginLong, KeyProjNatOriginLat,
		KeyProjFalseEasting, KeyProjFalseNorthing, KeyProjFalseOriginLong,
		KeyProjFalseOriginLat, KeyProjFalseOriginEasting,
		KeyProjFalseOriginNorthing, KeyProjCenterLong, KeyProjCenterLat,
		KeyProjCenterEasting, KeyProjCenterNorthing, KeyProjScaleAtNatOrigin,
		KeyProjScaleAtCenter, KeyProjAzimuthAngle,
		KeyProjStraightVertPoleLong, KeyProjRectifiedGridAngle,
		KeyVerticalCSType, KeyVerticalCitation, KeyVerticalDatum,
		KeyVerticalUnits,
	} {
		knownGeoKeys[k] = struct{}{}
	}
}

// GeoKeyDirectory is the parsed GeoTIFF key set: shorts, doubles, and ASCII
// values keyed by GeoKey. Keys with IDs this package does not recognize are
// skipped during parsing.
type GeoKeyDirectory struct {
	Version       uint16
	Revision      uint16
	MinorRevision uint16

	Shorts  map[GeoKey]uint16
	Doubles map[GeoKey][]float64
	Asciis  map[GeoKey]string
}

// Short returns a short-valued key.
func (g *GeoKeyDirectory) Short(key GeoKey) (uint16, bool) {
	v, ok := g.Shorts[key]
	return v, ok
}

// Double returns the first value of a double-valued key.
func (g *GeoKeyDirectory) Double(key GeoKey) (float64, bool) {
	vs, ok := g.Doubles[key]
	if !ok || len(vs) == 0 {
		return 0, false
	}
	return vs[0], true
}

// Ascii returns an ASCII-valued key.
func (g *GeoKeyDirectory) Ascii(key GeoKey) (string, bool) {
	v, ok := g.Asciis[key]
	return v, ok
}

// EPSGCode returns the coordinate reference system code: the projected CRS
// when present, the geographic CRS otherwise.
func (g *GeoKeyDirectory) EPSGCode() (uint16, bool) {
	if v, ok := g.Short(KeyProjectedCSType); ok {
		return v, true
	}
	return g.Short(KeyGeographicType)
}

// Citation returns the most specific citation string present.
func (g *GeoKeyDirectory) Citation() (string, bool) {
	for _, k := range []GeoKey{KeyPCSCitation, KeyGeogCitation, KeyGTCitation} {
		if v, ok := g.Ascii(k); ok {
			return v, true
		}
	}
	return "", false
}

// PixelIsPoint reports whether the raster type declares point (rather than
// area) pixel anchoring.
func (g *GeoKeyDirectory) PixelIsPoint() bool {
	v, ok := g.Short(KeyGTRasterType)
	return ok && v == RasterPixelIsPoint
}

// parseGeoKeys decodes the GeoKeyDirectory short array plus its companion
// double and ASCII parameter tags. The directory is a 4-short header followed
// by one 4-short record per key.
func parseGeoKeys(dir []uint16, doubles []float64, ascii string, log *zap.SugaredLogger) (*GeoKeyDirectory, error) {
	if len(dir) < 4 {
		return nil, formatErrorf(0, "geokey directory has %d shorts, want at least 4", len(dir))
	}
	g := &GeoKeyDirectory{
		Version:       dir[0],
		Revision:      dir[1],
		MinorRevision: dir[2],
		Shorts:        map[GeoKey]uint16{},
		Doubles:       map[GeoKey][]float64{},
		Asciis:        map[GeoKey]string{},
	}
	if g.Version != 1 {
		return nil, formatErrorf(0, "geokey directory version %d, want 1", g.Version)
	}
	numKeys := int(dir[3])
	if len(dir) < 4+numKeys*4 {
		return nil, formatErrorf(0, "geokey directory declares %d keys but holds %d shorts", numKeys, len(dir))
	}

	for i := 0; i < numKeys; i++ {
		rec := dir[4+i*4 : 8+i*4]
		key := GeoKey(rec[0])
		location := Tag(rec[1])
		count := int(rec[2])
		value := rec[3]

		if _, ok := knownGeoKeys[key]; !ok {
			if log != nil {
				log.Warnw("skipping unknown geokey", "key", uint16(key))
			}
			continue
		}

		switch location {
		case 0:
			g.Shorts[key] = value
		case TagGeoDoubleParams:
			start, end := int(value), int(value)+count
			if end > len(doubles) {
				return nil, formatErrorf(0, "geokey %d indexes doubles [%d:%d] of %d", key, start, end, len(doubles))
			}
			g.Doubles[key] = doubles[start:end]
		case TagGeoAsciiParams:
			start, end := int(value), int(value)+count
			if end > len(ascii) {
				return nil, formatErrorf(0, "geokey %d indexes ascii [%d:%d] of %d", key, start, end, len(ascii))
			}
			// Values terminate with a pipe, or a NUL from writers that
			// treat the params block as a C string. Non-UTF-8 bytes are
			// replaced rather than failing the directory.
			v := strings.TrimRight(ascii[start:end], "|\x00")
			g.Asciis[key] = strings.ToValidUTF8(v, "�")
		default:
			return nil, formatErrorf(0, "geokey %d has unknown location tag %d", key, location)
		}
	}
	return g, nil
}

// AffineTransform maps pixel coordinates to model space:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type AffineTransform struct {
	A, B, C float64
	D, E, F float64
}

// Apply transforms a pixel coordinate to model space.
func (t AffineTransform) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Origin is the model-space position of pixel (0, 0).
func (t AffineTransform) Origin() (x, y float64) { return t.C, t.F }

// Resolution is the pixel size in model units. The y resolution is negative
// for north-up rasters.
func (t AffineTransform) Resolution() (xres, yres float64) { return t.A, t.E }

// GeoTransform derives the pixel-to-model transform from the georeferencing
// tags. ModelTransformation wins when present; otherwise ModelPixelScale and
// the first ModelTiepoint are combined. Returns false when the IFD carries
// neither.
func (d *IFD) GeoTransform() (AffineTransform, bool) {
	if m := d.ModelTransformation; len(m) >= 16 {
		return AffineTransform{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}, true
	}
	if len(d.ModelPixelScale) >= 2 && len(d.ModelTiepoint) >= 6 {
		sx, sy := d.ModelPixelScale[0], d.ModelPixelScale[1]
		i, j := d.ModelTiepoint[0], d.ModelTiepoint[1]
		x, y := d.ModelTiepoint[3], d.ModelTiepoint[4]
		return AffineTransform{A: sx, C: x - i*sx, E: -sy, F: y + j*sy}, true
	}
	return AffineTransform{}, false
}
