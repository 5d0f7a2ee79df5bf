// Package crs resolves the coordinate reference systems Sentinel-2 Zarr
// products are delivered in (WGS84 geographic coordinates, the UTM zones on
// WGS84 and Web Mercator) and projects through their proj4 definitions.
package crs

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/terrascope/geometry"
	"github.com/terrascope/proj4go"
)

var (
	// ErrUnknownCRS is returned for EPSG codes and WKT strings that do not
	// describe a supported CRS.
	ErrUnknownCRS = errors.New("unknown CRS")
	// ErrProjection is returned when a coordinate has no image under a
	// projection, e.g. a pole in Web Mercator.
	ErrProjection = errors.New("projection failed")
)

type Kind int

const (
	Geographic Kind = iota
	TransverseMercator
	WebMercator
)

func (k Kind) String() string {
	switch k {
	case Geographic:
		return "geographic"
	case TransverseMercator:
		return "transverse mercator"
	case WebMercator:
		return "web mercator"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

const (
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

// CRS is a supported coordinate reference system. Map coordinates are
// (easting, northing) in metres for projected systems and (lon, lat) in
// degrees for Geographic. The zero value is not valid; use DecodeEPSG,
// ParseWKT or WGS84.
type CRS struct {
	EPSG int
	Name string
	Kind Kind
	// Zone and South are only set for TransverseMercator.
	Zone  int
	South bool
}

// WGS84 is the geographic CRS every GeoCoding converts to.
var WGS84 = CRS{EPSG: EPSGWGS84, Name: "WGS 84", Kind: Geographic}

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d (%s)", c.EPSG, c.Name)
}

// DecodeEPSG resolves a numeric EPSG code.
func DecodeEPSG(code int) (CRS, error) {
	switch {
	case code == EPSGWGS84:
		return WGS84, nil
	case code == EPSGWebMercator:
		return CRS{EPSG: code, Name: "WGS 84 / Pseudo-Mercator", Kind: WebMercator}, nil
	case code > 32600 && code <= 32660:
		return utm(code-32600, false), nil
	case code > 32700 && code <= 32760:
		return utm(code-32700, true), nil
	}
	return CRS{}, fmt.Errorf("%w: EPSG:%d", ErrUnknownCRS, code)
}

func utm(zone int, south bool) CRS {
	hemi, base := "N", 32600
	if south {
		hemi, base = "S", 32700
	}
	return CRS{
		EPSG:  base + zone,
		Name:  fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi),
		Kind:  TransverseMercator,
		Zone:  zone,
		South: south,
	}
}

var (
	wkt2ID     = regexp.MustCompile(`ID\[\s*"EPSG"\s*,\s*(\d+)\s*\]`)
	wkt1ID     = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"(\d+)"\s*\]`)
	utmZone    = regexp.MustCompile(`(?i)UTM zone (\d{1,2})\s*([NS])`)
	geographic = regexp.MustCompile(`^\s*(GEOGCRS|GEOGCS|GEODCRS|GEOGRAPHICCRS)\[`)
)

// ParseWKT resolves a WKT1 or WKT2 CRS definition. The outermost EPSG
// identifier wins; without one the CRS name is matched against the UTM and
// WGS84 naming conventions.
func ParseWKT(wkt string) (CRS, error) {
	if strings.TrimSpace(wkt) == "" {
		return CRS{}, fmt.Errorf("%w: empty WKT", ErrUnknownCRS)
	}
	for _, re := range []*regexp.Regexp{wkt2ID, wkt1ID} {
		if m := re.FindAllStringSubmatch(wkt, -1); len(m) > 0 {
			code, err := strconv.Atoi(m[len(m)-1][1])
			if err != nil {
				return CRS{}, fmt.Errorf("%w: %s", ErrUnknownCRS, err)
			}
			return DecodeEPSG(code)
		}
	}
	if m := utmZone.FindStringSubmatch(wkt); m != nil {
		zone, _ := strconv.Atoi(m[1])
		if zone >= 1 && zone <= 60 {
			return utm(zone, strings.EqualFold(m[2], "S")), nil
		}
	}
	if geographic.MatchString(wkt) && (strings.Contains(wkt, "WGS 84") || strings.Contains(wkt, "WGS84")) {
		return WGS84, nil
	}
	return CRS{}, fmt.Errorf("%w: %.60q", ErrUnknownCRS, wkt)
}

const (
	webMercatorProj4 = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
	wgs84Proj4       = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"
)

// Proj4 returns the proj4 definition of c.
func (c CRS) Proj4() string {
	switch c.Kind {
	case Geographic:
		return wgs84Proj4
	case WebMercator:
		return webMercatorProj4
	case TransverseMercator:
		south := ""
		if c.South {
			south = " +south"
		}
		return fmt.Sprintf("+proj=utm +zone=%d%s +datum=WGS84 +units=m +no_defs", c.Zone, south)
	}
	return ""
}

// ToGeo converts map coordinates to geographic latitude and longitude in
// degrees.
func (c CRS) ToGeo(x, y float64) (lat, lon float64, err error) {
	switch c.Kind {
	case Geographic:
		return y, x, nil
	case WebMercator, TransverseMercator:
		p, err := c.project(proj4go.Inverse, x, y)
		return p.Y, p.X, err
	}
	return math.NaN(), math.NaN(), fmt.Errorf("%w: %v", ErrUnknownCRS, c)
}

// FromGeo converts geographic latitude and longitude in degrees to map
// coordinates.
func (c CRS) FromGeo(lat, lon float64) (x, y float64, err error) {
	switch c.Kind {
	case Geographic:
		return lon, lat, nil
	case WebMercator, TransverseMercator:
		p, err := c.project(proj4go.Forwards, lon, lat)
		return p.X, p.Y, err
	}
	return math.NaN(), math.NaN(), fmt.Errorf("%w: %v", ErrUnknownCRS, c)
}

func (c CRS) project(fn func(string, []geometry.Point) error, x, y float64) (geometry.Point, error) {
	nan := geometry.Point{X: math.NaN(), Y: math.NaN()}
	if !finite(x) || !finite(y) {
		return nan, fmt.Errorf("%w: (%g, %g) in %v", ErrProjection, x, y, c)
	}
	pts := []geometry.Point{{X: x, Y: y}}
	if err := fn(c.Proj4(), pts); err != nil {
		return nan, fmt.Errorf("%w: (%g, %g) in %v: %v", ErrProjection, x, y, c, err)
	}
	if !finite(pts[0].X) || !finite(pts[0].Y) {
		return nan, fmt.Errorf("%w: (%g, %g) in %v", ErrProjection, x, y, c)
	}
	return pts[0], nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
