package geocoding

import (
	"errors"
	"fmt"
	"math"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	zarr "github.com/qri-io/zarr-geo"
	"github.com/qri-io/zarr-geo/crs"
	"github.com/qri-io/zarr-geo/logging"
	"github.com/qri-io/zarr-geo/raster"
)

// Attribute names read from array attributes.
const (
	AttrWKT       = "proj:wkt2"
	AttrTransform = "proj:transform"
)

// ErrConstructionFailed is returned when no GeoCoding could be built for a
// spatial shape. Bands of that shape stay ungeoreferenced.
var ErrConstructionFailed = errors.New("geocoding construction failed")

// ConstructionError carries the spatial shape a construction failed for.
// It matches both ErrConstructionFailed and the underlying cause.
type ConstructionError struct {
	Shape raster.Shape
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("%s for shape %s: %s", ErrConstructionFailed, e.Shape, e.Err)
}

func (e *ConstructionError) Unwrap() []error {
	return []error{ErrConstructionFailed, e.Err}
}

// AxisPair names the two 1-D coordinate arrays spanning a raster.
type AxisPair struct {
	X string `toml:"x"`
	Y string `toml:"y"`
	// Geographic is set for longitude/latitude axes.
	Geographic bool `toml:"geographic"`
}

var (
	CartesianAxes  = AxisPair{X: "x", Y: "y"}
	GeographicAxes = AxisPair{X: "longitude", Y: "latitude", Geographic: true}
)

// CoordinateSource reads 1-D coordinate arrays next to the array a
// GeoCoding is built for. n < 1 requests every sample.
type CoordinateSource interface {
	Samples(name string, n int) ([]float64, error)
}

// Request holds what the builder needs to pick a strategy.
type Request struct {
	Shape raster.Shape
	Axes  AxisPair
	// WKT and Transform come from the array attributes; either may be empty.
	WKT       string
	Transform []float64
	// EPSG is the product level code, zero when unknown.
	EPSG        int
	Coordinates CoordinateSource
}

// RequestFromAttributes fills the CRS definition and affine transform from
// array attributes, looking inside the nested mapping at fallback for keys
// missing at the top level.
func RequestFromAttributes(shape raster.Shape, axes AxisPair, attrs zarr.Attributes, fallback string) Request {
	if fallback != "" {
		attrs = attrs.Merged(fallback)
	}
	req := Request{Shape: shape, Axes: axes}
	req.WKT, _ = attrs.String(AttrWKT)
	req.Transform, _ = attrs.Float64s(AttrTransform)
	return req
}

// NorthingOffset chooses the sign of the half pixel shift applied to the
// first y sample when deriving a grid origin from coordinate samples.
type NorthingOffset string

const (
	// NorthingUp places the origin half a pixel north of the first sample.
	NorthingUp NorthingOffset = "up"
	// NorthingDown places it half a pixel south.
	NorthingDown NorthingOffset = "down"
)

// Builder constructs GeoCodings. CRS services are injectable so callers can
// plug in a fuller CRS database.
type Builder struct {
	ParseCRS       func(wkt string) (crs.CRS, error)
	DecodeEPSG     func(code int) (crs.CRS, error)
	NorthingOffset NorthingOffset
	Log            logging.Logger
}

func NewBuilder() *Builder {
	return &Builder{
		ParseCRS:       crs.ParseWKT,
		DecodeEPSG:     crs.DecodeEPSG,
		NorthingOffset: NorthingUp,
		Log:            logging.Prefixed("geocoding"),
	}
}

// Build picks the first applicable strategy: an affine transform from the
// attributes, an affine grid derived from x/y coordinate samples, or a
// per-pixel lookup over latitude/longitude axes. Failures are returned as
// *ConstructionError.
func (b *Builder) Build(req Request) (GeoCoding, error) {
	gc, err := b.build(req)
	if err != nil {
		return nil, &ConstructionError{Shape: req.Shape, Err: err}
	}
	return gc, nil
}

func (b *Builder) build(req Request) (GeoCoding, error) {
	switch {
	case req.WKT != "" && len(req.Transform) >= 6:
		return b.fromTransform(req)
	case !req.Axes.Geographic:
		return b.fromSamples(req)
	default:
		return b.fromLatLon(req)
	}
}

func (b *Builder) fromTransform(req Request) (*UniformGrid, error) {
	c, err := b.ParseCRS(req.WKT)
	if err != nil {
		return nil, err
	}
	t := req.Transform
	g := &UniformGrid{
		CRS:        c,
		Grid:       req.Shape,
		PixelSizeX: math.Abs(t[0]),
		PixelSizeY: math.Abs(t[4]),
		Easting:    t[2],
		Northing:   t[5],
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	b.Log.Debugf("affine geocoding from attributes: %s", g)
	return g, nil
}

func (b *Builder) fromSamples(req Request) (*UniformGrid, error) {
	if req.EPSG == 0 {
		return nil, fmt.Errorf("%w: no product EPSG code", crs.ErrUnknownCRS)
	}
	c, err := b.DecodeEPSG(req.EPSG)
	if err != nil {
		return nil, err
	}
	if req.Coordinates == nil {
		return nil, errors.New("no coordinate arrays available")
	}
	xs, err := firstTwo(req.Coordinates, req.Axes.X)
	if err != nil {
		return nil, err
	}
	ys, err := firstTwo(req.Coordinates, req.Axes.Y)
	if err != nil {
		return nil, err
	}

	g := &UniformGrid{
		CRS:        c,
		Grid:       req.Shape,
		PixelSizeX: xs[1] - xs[0],
		PixelSizeY: ys[0] - ys[1],
	}
	g.Easting = xs[0] - g.PixelSizeX/2
	switch b.NorthingOffset {
	case NorthingDown:
		g.Northing = ys[0] - g.PixelSizeY/2
	default:
		g.Northing = ys[0] + g.PixelSizeY/2
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	b.Log.Debugf("affine geocoding from coordinate samples: %s", g)
	return g, nil
}

func firstTwo(src CoordinateSource, name string) ([]float64, error) {
	v, err := src.Samples(name, 2)
	if err != nil {
		return nil, fmt.Errorf("reading coordinate %q: %w", name, err)
	}
	if len(v) < 2 {
		return nil, fmt.Errorf("coordinate %q has %d samples, need 2", name, len(v))
	}
	return v, nil
}

func (b *Builder) fromLatLon(req Request) (*PixelLookup, error) {
	if req.Coordinates == nil {
		return nil, errors.New("no coordinate arrays available")
	}
	lon1d, err := req.Coordinates.Samples(req.Axes.X, 0)
	if err != nil {
		return nil, fmt.Errorf("reading coordinate %q: %w", req.Axes.X, err)
	}
	lat1d, err := req.Coordinates.Samples(req.Axes.Y, 0)
	if err != nil {
		return nil, fmt.Errorf("reading coordinate %q: %w", req.Axes.Y, err)
	}
	if len(lon1d) != req.Shape.Cols || len(lat1d) != req.Shape.Rows {
		return nil, fmt.Errorf("coordinate axes of length %d x %d do not span shape %s", len(lat1d), len(lon1d), req.Shape)
	}

	tl := logging.NewTimeLog()
	lat, lon := OuterProduct(lat1d, lon1d)
	pl, err := NewPixelLookup(req.Shape, lat, lon)
	if err != nil {
		return nil, err
	}
	tl.Debugf("pixel lookup geocoding %s", pl)
	b.Log.Infof("per-pixel geocoding for shape %s holds %s", req.Shape, humanize.Bytes(uint64(size.Of(pl))))
	return pl, nil
}

func (g *UniformGrid) validate() error {
	for _, v := range []float64{g.PixelSizeX, g.PixelSizeY, g.Easting, g.Northing} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite grid parameter in %s", g)
		}
	}
	if g.PixelSizeX <= 0 || g.PixelSizeY <= 0 {
		return fmt.Errorf("non-positive pixel size (%g, %g)", g.PixelSizeX, g.PixelSizeY)
	}
	return nil
}
