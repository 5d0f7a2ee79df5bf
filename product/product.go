// Package product assembles a Zarr store into a raster product: named 2-D
// bands with their geocodings, sample codings and masks.
package product

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/twinj/uuid"

	zarr "github.com/qri-io/zarr-geo"
	"github.com/qri-io/zarr-geo/coding"
	"github.com/qri-io/zarr-geo/flatten"
	"github.com/qri-io/zarr-geo/geocoding"
	"github.com/qri-io/zarr-geo/logging"
	"github.com/qri-io/zarr-geo/raster"
	"github.com/qri-io/zarr-geo/scene"
)

// Attribute names read from the store.
const (
	AttrArrayDimensions   = "_ARRAY_DIMENSIONS"
	AttrLongName          = "long_name"
	AttrScaleFactor       = "scale_factor"
	AttrAddOffset         = "add_offset"
	AttrFillValue         = "fill_value"
	AttrBandwidth         = "bandwidth"
	AttrCentralWavelength = "central_wavelength"
	AttrEPSG              = "proj:epsg"
	AttrBBox              = "proj:bbox"
)

// Band is one 2-D band of a product.
type Band struct {
	raster.BandDescriptor

	// Key is the store key of the source array.
	Key string
	// GeoCoding is nil when no geocoding could be built for the band shape.
	GeoCoding geocoding.GeoCoding
	// Scene relates the band to the product scene raster. It is nil for
	// bands on the scene grid and for ungeoreferenced bands.
	Scene *scene.Provider

	Coding *coding.Coding
	Masks  []coding.Mask

	Description string
	ScaleFactor float64
	AddOffset   float64
	NoData      float64
	NoDataUsed  bool
	Wavelength  float64
	Bandwidth   float64
}

// Quicklook groups the bands flattened from one preview array.
type Quicklook struct {
	Name  string
	Bands []string
}

// Product is the result of reading a store.
type Product struct {
	// ID is the id of the session that read the product.
	ID   string
	Name string
	Type string
	// Start and End are zero when the store does not carry sensing times.
	Start time.Time
	End   time.Time
	EPSG  int

	AutoGrouping string
	RGBProfiles  []RGBProfile

	Bands      []*Band
	Masks      []coding.Mask
	Codings    []*coding.Coding
	Quicklooks []Quicklook

	GeoCodings     *geocoding.Registry
	SceneGeoCoding geocoding.GeoCoding

	// Auxiliary lists non-spatial arrays that were not turned into bands.
	Auxiliary []string
	// Metadata is the root attribute set.
	Metadata zarr.Attributes
	// Problems collects the array, band and geocoding failures met while
	// reading. None of them prevented the rest of the product from loading.
	Problems []error

	tileWorkers int
}

// Band returns the band called name.
func (p *Product) Band(name string) (*Band, bool) {
	for _, b := range p.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// ReadTiles reads rects of the named band with the configured parallelism.
func (p *Product) ReadTiles(ctx context.Context, name string, rects []raster.Rect) ([][]float64, error) {
	b, ok := p.Band(name)
	if !ok {
		return nil, fmt.Errorf("%w: no band %q", zarr.ErrNotfound, name)
	}
	return raster.ReadTiles(ctx, b.BandDescriptor, rects, p.tileWorkers)
}

// Session carries the state of reading one product: the geocoding registry,
// the coding builder and the mask color sequence. A Session reads a single
// product and is not safe for concurrent use.
type Session struct {
	ID         string
	Config     Config
	Log        logging.Logger
	GeoCodings *geocoding.Registry
	Codings    *coding.Builder

	geo       *geocoding.Builder
	flattener flatten.Flattener
}

func NewSession(cfg Config) *Session {
	id := fmt.Sprintf("%x", uuid.NewV4().Bytes())
	log := logging.Prefixed(id[:8])

	gb := geocoding.NewBuilder()
	gb.NorthingOffset = geocoding.NorthingOffset(cfg.NorthingOffset)
	gb.Log = log

	cb := coding.NewBuilder(cfg.FlagCodings, cfg.IndexCodings)
	cb.Opacity = cfg.MaskOpacity
	cb.DetectorCount = cfg.DetectorCount
	cb.Log = log

	return &Session{
		ID:         id,
		Config:     cfg,
		Log:        log,
		GeoCodings: geocoding.NewRegistry(gb),
		Codings:    cb,
		geo:        gb,
		flattener:  flatten.Flattener{Separator: "_"},
	}
}

// Read validates cfg and reads the product rooted at the top of store.
// name is the product folder name, e.g. "S2B_MSIL2A_20230815T102609.zarr".
func Read(store zarr.Store, name string, cfg Config) (*Product, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewSession(cfg).Read(store, name)
}

// Read walks the arrays of store once. It fails only when the root group
// cannot be opened or listed; every other failure is logged and recorded in
// Product.Problems.
func (s *Session) Read(store zarr.Store, name string) (*Product, error) {
	root, err := zarr.OpenGroup(store, "")
	if err != nil {
		return nil, fmt.Errorf("opening product %q: %w", name, err)
	}
	keys, err := root.ArrayKeys()
	if err != nil {
		return nil, fmt.Errorf("listing arrays of %q: %w", name, err)
	}

	tl := logging.NewTimeLog()
	p := &Product{
		ID:           s.ID,
		Name:         strings.TrimSuffix(name, ".zarr"),
		AutoGrouping: s.Config.AutoGrouping,
		RGBProfiles:  s.Config.RGBProfiles,
		GeoCodings:   s.GeoCodings,
		Metadata:     root.Attributes(),
		tileWorkers:  s.Config.TileWorkers,
	}
	p.Type = productType(p.Name)
	s.readProperties(p)

	for _, key := range keys {
		s.readArray(p, root, key)
	}
	// bands read before their shape could be georeferenced
	for _, b := range p.Bands {
		if b.GeoCoding == nil {
			b.GeoCoding, _ = s.GeoCodings.Lookup(b.SpatialShape)
		}
	}
	s.setScene(p)
	p.Codings = s.Codings.Codings()

	var pixels uint64
	for _, b := range p.Bands {
		pixels += uint64(b.SpatialShape.Pixels())
	}
	tl.Infof("Read product %q: %d bands, %d masks, %s pixels, %d problems",
		p.Name, len(p.Bands), len(p.Masks), humanize.Comma(int64(pixels)), len(p.Problems))
	return p, nil
}

func (s *Session) problem(p *Product, err error) {
	s.Log.Warningf("%v", err)
	p.Problems = append(p.Problems, err)
}

// productType derives "S2_MSI_Level-2A_ZARR" from a name such as
// "S2B_MSIL2A_...".
func productType(name string) string {
	tokens := strings.Split(name, "_")
	if len(tokens) < 2 || len(tokens[1]) < 2 {
		return ""
	}
	level := tokens[1][len(tokens[1])-2:]
	return "S2_MSI_Level-" + level + "_ZARR"
}

func (s *Session) readProperties(p *Product) {
	props, ok := p.Metadata.Path("stac_discovery", "properties")
	if !ok {
		return
	}
	p.EPSG, _ = props.Int(AttrEPSG)
	times := []struct {
		attr string
		dst  *time.Time
	}{{"start_datetime", &p.Start}, {"end_datetime", &p.End}}
	for _, t := range times {
		v, ok := props.String(t.attr)
		if !ok {
			continue
		}
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.problem(p, fmt.Errorf("unparseable %s %q: %w", t.attr, v, err))
			continue
		}
		*t.dst = parsed
	}
}

// bandName is "<name>_<parent>_<grand>" for arrays in resolution folders
// and "<name>_<parent>" otherwise.
func (s *Session) bandName(parts []string) string {
	n := len(parts)
	switch {
	case n == 1:
		return parts[0]
	case n >= 3 && slices.Contains(s.Config.Resolutions, parts[n-2]):
		return parts[n-1] + "_" + parts[n-2] + "_" + parts[n-3]
	default:
		return parts[n-1] + "_" + parts[n-2]
	}
}

// spatialAxes returns the first configured axis pair named by the array
// dimensions.
func (s *Session) spatialAxes(attrs zarr.Attributes) (geocoding.AxisPair, bool) {
	dims, ok := attrs.Strings(AttrArrayDimensions)
	if !ok {
		return geocoding.AxisPair{}, false
	}
	for _, pair := range s.Config.Axes {
		if slices.Contains(dims, pair.X) && slices.Contains(dims, pair.Y) {
			return pair, true
		}
	}
	return geocoding.AxisPair{}, false
}

func (s *Session) readArray(p *Product, root *zarr.Group, key string) {
	a, err := root.OpenArray(key)
	if err != nil {
		s.problem(p, fmt.Errorf("could not read array %q: %w", key, err))
		return
	}
	s.Log.Debugf("reading %s", a.Info())
	parts := strings.Split(key, "/")
	orig := parts[len(parts)-1]
	parent := strings.Join(parts[:len(parts)-1], "/")
	attrs := a.Attributes()

	axes, ok := s.spatialAxes(attrs)
	if !ok {
		if !slices.Contains(s.Config.Ignored, orig) {
			p.Auxiliary = append(p.Auxiliary, key)
		}
		return
	}
	shape := a.Shape()
	sp, ok := raster.SpatialShape(shape)
	if !ok {
		s.problem(p, fmt.Errorf("array %q names spatial dimensions but has rank %d", key, len(shape)))
		return
	}

	gc := s.resolveGeoCoding(p, root, parent, sp, axes, attrs)

	name := s.bandName(parts)
	var descs []raster.BandDescriptor
	if len(shape) == 2 {
		descs, err = s.flattener.Flatten(a, name, nil)
	} else {
		base := name
		if b, ok := s.Config.BaseNames[orig]; ok {
			base = b
		}
		descs, err = s.flattener.Flatten(a, base, s.Config.Labels[orig])
	}
	if err != nil {
		s.problem(p, fmt.Errorf("skipping array %q: %w", key, err))
		return
	}

	merged := attrs
	if s.Config.AttributesFallback != "" {
		merged = attrs.Merged(s.Config.AttributesFallback)
	}
	spectral, _ := p.Metadata.Path("other_metadata", "band_description", orig)

	names := make([]string, 0, len(descs))
	for _, d := range descs {
		b := &Band{BandDescriptor: d, Key: key, GeoCoding: gc, ScaleFactor: 1}
		applyAttributes(b, merged, spectral)
		b.Coding, b.Masks = s.Codings.Decorate(b.Name, merged)
		p.Bands = append(p.Bands, b)
		p.Masks = append(p.Masks, b.Masks...)
		names = append(names, b.Name)
	}
	if len(shape) > 2 && s.Config.Quicklook != "" && strings.Contains(name, s.Config.Quicklook) {
		p.Quicklooks = append(p.Quicklooks, Quicklook{Name: name, Bands: names})
	}
}

// resolveGeoCoding returns the geocoding of shape sp, building it until a
// construction succeeds. A failure is recorded once per shape.
func (s *Session) resolveGeoCoding(p *Product, root *zarr.Group, parent string, sp raster.Shape,
	axes geocoding.AxisPair, attrs zarr.Attributes) geocoding.GeoCoding {
	seen := s.GeoCodings.Seen(sp)
	req := geocoding.RequestFromAttributes(sp, axes, attrs, s.Config.AttributesFallback)
	req.EPSG = p.EPSG
	req.Coordinates = siblings{group: root, parent: parent}
	gc, err := s.GeoCodings.Resolve(req)
	if err != nil {
		if !seen {
			s.problem(p, err)
		}
		return nil
	}
	return gc
}

func applyAttributes(b *Band, attrs, spectral zarr.Attributes) {
	if spectral != nil {
		if v, ok := spectral.Float64(AttrBandwidth); ok {
			b.Bandwidth = v
		}
		if v, ok := spectral.Float64(AttrCentralWavelength); ok {
			b.Wavelength = v
		}
	}
	if v, ok := attrs[AttrLongName]; ok && v != nil {
		b.Description = fmt.Sprint(v)
	}
	if v, ok := attrs.Float64(AttrScaleFactor); ok {
		b.ScaleFactor = v
	}
	if v, ok := attrs.Float64(AttrAddOffset); ok {
		b.AddOffset = v
	}
	if v, ok := attrs.Float64(AttrFillValue); ok {
		b.NoData = v
		b.NoDataUsed = true
	}
}

var errNoFootprint = errors.New("no product footprint")

// setScene picks the finest affine grid as the scene geocoding, falling
// back to the product footprint, and wires every other georeferenced band
// to it.
func (s *Session) setScene(p *Product) {
	if g, ok := s.GeoCodings.Finest(); ok {
		p.SceneGeoCoding = g
	} else {
		g, err := s.footprintScene(p)
		switch {
		case errors.Is(err, errNoFootprint):
			s.Log.Debugf("product %q has no affine grid and no footprint", p.Name)
		case err != nil:
			s.problem(p, fmt.Errorf("building scene geocoding: %w", err))
		default:
			p.SceneGeoCoding = g
		}
	}
	if p.SceneGeoCoding == nil {
		return
	}
	for _, b := range p.Bands {
		if b.GeoCoding != nil && b.GeoCoding != p.SceneGeoCoding {
			b.Scene = scene.NewProvider(p.SceneGeoCoding, b.GeoCoding)
		}
	}
}

func (s *Session) footprintScene(p *Product) (*geocoding.UniformGrid, error) {
	props, _ := p.Metadata.Path("stac_discovery", "properties")
	bbox, ok := props.Float64s(AttrBBox)
	if p.EPSG == 0 || !ok {
		return nil, errNoFootprint
	}
	if len(bbox) != 4 {
		return nil, fmt.Errorf("%s has %d values", AttrBBox, len(bbox))
	}
	c, err := s.geo.DecodeEPSG(p.EPSG)
	if err != nil {
		return nil, err
	}
	res := s.Config.SceneResolution
	grid := raster.Shape{
		Rows: int(math.Round((bbox[3] - bbox[1]) / res)),
		Cols: int(math.Round((bbox[2] - bbox[0]) / res)),
	}
	if grid.Rows < 1 || grid.Cols < 1 {
		return nil, fmt.Errorf("%s %v is empty at %g map units per pixel", AttrBBox, bbox, res)
	}
	return &geocoding.UniformGrid{
		CRS:        c,
		Grid:       grid,
		PixelSizeX: res,
		PixelSizeY: res,
		Easting:    bbox[0],
		Northing:   bbox[3],
	}, nil
}
