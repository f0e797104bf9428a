package shadows

import "errors"

var errParse = errors.New("parse error")

// A GeoKey is a key in a GeoTIFF GeoKeyDirectoryTag.
type GeoKey uint16

const (
	GeoKeyGTModelType   GeoKey = 1024
	GeoKeyGTRasterType  GeoKey = 1025
	GeoKeyGTCitation    GeoKey = 1026
	GeoKeyGeodeticCRS   GeoKey = 2048
	GeoKeyGeogCitation  GeoKey = 2049
	GeoKeyProjectedCRS  GeoKey = 3072
	GeoKeyPCSCitation   GeoKey = 3073
	GeoKeyLinearUnits   GeoKey = 3076
	GeoKeyVerticalCRS   GeoKey = 4096
	GeoKeyVerticalUnits GeoKey = 4099
)

const (
	geoDoubleParamsTag = 34736
	geoASCIIParamsTag  = 34737

	// userDefined is the GeoKey value for a CRS that is not an EPSG code.
	userDefined = 32767
)

// ParsedGeoKeys are the values of a GeoKeyDirectoryTag, grouped by where
// they are stored.
type ParsedGeoKeys struct {
	Params       map[GeoKey]int
	DoubleParams map[GeoKey]float64
	ASCIIParams  map[GeoKey]string
}

// ParseGeoKeys parses a GeoKeyDirectoryTag and the double and ASCII params
// that it refers to.
func ParseGeoKeys(directory []uint16, doubleParams []float64, asciiParams []byte) (*ParsedGeoKeys, error) {
	if len(directory) < 4 {
		return nil, errParse
	}
	if version, revision := directory[0], directory[1]; version != 1 || revision != 1 {
		return nil, errParse
	}
	if minorRevision := directory[2]; minorRevision > 1 {
		return nil, errParse
	}
	numberOfKeys := int(directory[3])
	if len(directory) != 4+4*numberOfKeys {
		return nil, errParse
	}

	parsedGeoKeys := &ParsedGeoKeys{
		Params:       make(map[GeoKey]int),
		DoubleParams: make(map[GeoKey]float64),
		ASCIIParams:  make(map[GeoKey]string),
	}
	for i := range numberOfKeys {
		entry := directory[4+4*i : 4+4*(i+1)]
		key := GeoKey(entry[0])
		location, count, value := int(entry[1]), int(entry[2]), int(entry[3])
		switch location {
		case 0:
			if count != 1 {
				return nil, errParse
			}
			parsedGeoKeys.Params[key] = value
		case geoDoubleParamsTag:
			if count != 1 {
				return nil, errors.ErrUnsupported
			}
			if value >= len(doubleParams) {
				return nil, errParse
			}
			parsedGeoKeys.DoubleParams[key] = doubleParams[value]
		case geoASCIIParamsTag:
			if value+count > len(asciiParams) {
				return nil, errParse
			}
			parsedGeoKeys.ASCIIParams[key] = string(asciiParams[value : value+count])
		default:
			return nil, errors.ErrUnsupported
		}
	}
	return parsedGeoKeys, nil
}

// EPSG returns the EPSG code of the projected CRS, falling back to the
// geodetic CRS. It returns zero if neither is an EPSG code.
func (k *ParsedGeoKeys) EPSG() int {
	for _, key := range []GeoKey{GeoKeyProjectedCRS, GeoKeyGeodeticCRS} {
		if code, ok := k.Params[key]; ok && code != userDefined {
			return code
		}
	}
	return 0
}
