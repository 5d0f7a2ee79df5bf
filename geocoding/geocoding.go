// Package geocoding maps between raster pixel positions and geographic
// positions. A GeoCoding is either a UniformGrid, an affine grid in a map
// CRS, or a PixelLookup, a per-pixel latitude/longitude table.
package geocoding

import (
	"errors"
	"fmt"
	"math"

	"github.com/qri-io/zarr-geo/crs"
	"github.com/qri-io/zarr-geo/raster"
)

// Point is a pixel position; (0,0) is the upper left corner of the upper
// left pixel and (0.5,0.5) its centre.
type Point struct {
	X, Y float64
}

// IsNaN reports whether either coordinate is NaN.
func (p Point) IsNaN() bool { return math.IsNaN(p.X) || math.IsNaN(p.Y) }

// GeoPos is a WGS84 position in degrees.
type GeoPos struct {
	Lat, Lon float64
}

// IsNaN reports whether either coordinate is NaN.
func (g GeoPos) IsNaN() bool { return math.IsNaN(g.Lat) || math.IsNaN(g.Lon) }

var nanPoint = Point{math.NaN(), math.NaN()}
var nanGeo = GeoPos{math.NaN(), math.NaN()}

// GeoCoding is implemented by *UniformGrid and *PixelLookup only.
type GeoCoding interface {
	// Shape is the spatial shape the GeoCoding was built for.
	Shape() raster.Shape
	// MapCRS is the CRS of the model coordinates.
	MapCRS() crs.CRS
	geoCoding()
}

// UniformGrid is an axis-aligned affine grid: pixel (0,0) has its upper left
// corner at (Easting, Northing) and rows run south.
type UniformGrid struct {
	CRS        crs.CRS
	Grid       raster.Shape
	PixelSizeX float64
	PixelSizeY float64
	Easting    float64
	Northing   float64
}

func (g *UniformGrid) Shape() raster.Shape { return g.Grid }
func (g *UniformGrid) MapCRS() crs.CRS     { return g.CRS }
func (*UniformGrid) geoCoding()            {}

func (g *UniformGrid) String() string {
	return fmt.Sprintf("UniformGrid{%s %s size=(%g,%g) origin=(%g,%g)}",
		g.CRS, g.Grid, g.PixelSizeX, g.PixelSizeY, g.Easting, g.Northing)
}

// ImageToMap is the affine from pixel to map coordinates.
func (g *UniformGrid) ImageToMap() Affine {
	return Affine{g.PixelSizeX, 0, g.Easting, 0, -g.PixelSizeY, g.Northing}
}

// PixelToGeo returns the geographic position of pixel p, or NaNs when it has
// none.
func PixelToGeo(gc GeoCoding, p Point) GeoPos {
	if p.IsNaN() {
		return nanGeo
	}
	switch g := gc.(type) {
	case *UniformGrid:
		m := g.ImageToMap().Apply(p)
		lat, lon, err := g.CRS.ToGeo(m.X, m.Y)
		if err != nil {
			return nanGeo
		}
		return GeoPos{Lat: lat, Lon: lon}
	case *PixelLookup:
		return g.pixelToGeo(p)
	}
	return nanGeo
}

// GeoToPixel returns the pixel position of geo, or NaNs when it cannot be
// resolved.
func GeoToPixel(gc GeoCoding, geo GeoPos) Point {
	if geo.IsNaN() {
		return nanPoint
	}
	switch g := gc.(type) {
	case *UniformGrid:
		x, y, err := g.CRS.FromGeo(geo.Lat, geo.Lon)
		if err != nil || math.IsNaN(x) || math.IsNaN(y) {
			return nanPoint
		}
		return Point{
			X: (x - g.Easting) / g.PixelSizeX,
			Y: (g.Northing - y) / g.PixelSizeY,
		}
	case *PixelLookup:
		return g.geoToPixel(geo)
	}
	return nanPoint
}

// ImageToModel is the affine from pixel coordinates to the coordinate model
// a band lives in: map coordinates for a UniformGrid, pixel coordinates for
// a PixelLookup.
func ImageToModel(gc GeoCoding) Affine {
	if g, ok := gc.(*UniformGrid); ok {
		return g.ImageToMap()
	}
	return Identity
}

// Affine is the 2x3 matrix [a b c; d e f] mapping (x,y) to
// (a*x + b*y + c, d*x + e*y + f).
type Affine [6]float64

var Identity = Affine{1, 0, 0, 0, 1, 0}

var errSingular = errors.New("affine transform is not invertible")

func (t Affine) Apply(p Point) Point {
	return Point{
		X: t[0]*p.X + t[1]*p.Y + t[2],
		Y: t[3]*p.X + t[4]*p.Y + t[5],
	}
}

func (t Affine) Inverse() (Affine, error) {
	det := t[0]*t[4] - t[1]*t[3]
	if det == 0 || math.IsNaN(det) {
		return Affine{}, errSingular
	}
	a := t[4] / det
	b := -t[1] / det
	d := -t[3] / det
	e := t[0] / det
	return Affine{a, b, -(a*t[2] + b*t[5]), d, e, -(d*t[2] + e*t[5])}, nil
}
