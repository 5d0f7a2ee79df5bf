package product

import (
	"context"
	"errors"
	"image/color"
	"testing"
	"time"

	zarr "github.com/qri-io/zarr-geo"
	"github.com/qri-io/zarr-geo/flatten"
	"github.com/qri-io/zarr-geo/geocoding"
	"github.com/qri-io/zarr-geo/raster"
	"github.com/stretchr/testify/require"
)

const (
	fixtureName = "S2B_MSIL2A_20230815T102609.zarr"
	utm32WKT    = `PROJCRS["WGS 84 / UTM zone 32N",ID["EPSG",32632]]`
)

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func putArray(t *testing.T, s zarr.Store, key, dtype string, shape, chunks []int, attrs zarr.Attributes, data []float64) {
	t.Helper()
	dt, err := zarr.ParseDtype(dtype)
	require.NoError(t, err)
	if chunks == nil {
		chunks = shape
	}
	a, err := zarr.Create(s, key, &zarr.ArrayMeta{
		Shape:  shape,
		Chunks: chunks,
		Dtype:  zarr.StructuredType{Dtype: dt},
	})
	require.NoError(t, err)
	require.NoError(t, a.SetAttributes(attrs))
	if data == nil {
		n := 1
		for _, d := range shape {
			n *= d
		}
		data = ramp(n)
	}
	require.NoError(t, a.Write(data))
}

func dims(names ...string) zarr.Attributes {
	return zarr.Attributes{AttrArrayDimensions: names}
}

func transformAttrs(res, easting, northing float64) zarr.Attributes {
	return zarr.Attributes{
		AttrArrayDimensions:     []string{"y", "x"},
		geocoding.AttrWKT:       utm32WKT,
		geocoding.AttrTransform: []float64{res, 0, easting, 0, -res, northing},
	}
}

// s2Fixture lays out a small product the way Sentinel-2 Zarr stores do:
// 10, 20 and 60 m bands with affine transforms, sun angles on a coarse grid
// described by x/y coordinate arrays, a lat/lon gridded band, a detector
// footprint, a classification with flags and a three band preview.
func s2Fixture(t *testing.T) (*zarr.MemoryStore, *zarr.Group) {
	t.Helper()
	s := zarr.NewMemoryStore()
	root, err := zarr.CreateGroup(s, "", zarr.Attributes{
		"stac_discovery": map[string]interface{}{
			"properties": map[string]interface{}{
				AttrEPSG:         32632,
				AttrBBox:         []float64{300000, 4999940, 300060, 5000000},
				"start_datetime": "2023-08-15T10:26:09.024000Z",
				"end_datetime":   "2023-08-15T10:26:09.024000+00:00",
			},
		},
		"other_metadata": map[string]interface{}{
			"band_description": map[string]interface{}{
				"b02": map[string]interface{}{AttrBandwidth: 66.0, AttrCentralWavelength: 492.4},
			},
		},
	})
	require.NoError(t, err)

	putArray(t, s, "conditions/geometry/angle", "<f8", []int{2}, nil, dims("angle"), nil)
	putArray(t, s, "conditions/geometry/sun_angles", "<f8", []int{2, 2, 2}, nil, dims("angle", "y", "x"), nil)
	putArray(t, s, "conditions/geometry/unknown_cube", "<f8", []int{2, 2, 2}, nil, dims("k", "y", "x"), nil)
	putArray(t, s, "conditions/geometry/x", "<f8", []int{2}, nil, dims("x"), []float64{302500, 307500})
	putArray(t, s, "conditions/geometry/y", "<f8", []int{2}, nil, dims("y"), []float64{4997500, 4992500})

	putArray(t, s, "conditions/mask/detector_footprint/r60m/b01", "|u1", []int{4, 4}, nil,
		transformAttrs(60, 300000, 5000000), nil)

	scl := transformAttrs(20, 300000, 5000000)
	scl["flag_meanings"] = []string{"saturated", "dark"}
	scl["flag_masks"] = []int{1, 2}
	scl["flag_descriptions"] = []string{"saturated or defective", "dark area"}
	putArray(t, s, "conditions/mask/l2a_classification/r20m/scl", "|u1", []int{3, 3}, nil, scl, nil)

	putArray(t, s, "conditions/meteorology/cams/aod550", "<f4", []int{3, 4}, nil, dims("latitude", "longitude"), nil)
	putArray(t, s, "conditions/meteorology/cams/latitude", "<f8", []int{3}, nil, dims("latitude"), []float64{45.1, 45.0, 44.9})
	putArray(t, s, "conditions/meteorology/cams/longitude", "<f8", []int{4}, nil, dims("longitude"), []float64{8.0, 8.1, 8.2, 8.3})

	putArray(t, s, "measurements/reflectance/r10m/b02", "<u2", []int{6, 6}, []int{4, 4}, zarr.Attributes{
		AttrArrayDimensions: []string{"y", "x"},
		AttrLongName:        "BOA reflectance b02",
		"_eopf_attrs": map[string]interface{}{
			AttrScaleFactor:         0.0001,
			AttrAddOffset:           -0.1,
			AttrFillValue:           0,
			geocoding.AttrWKT:       utm32WKT,
			geocoding.AttrTransform: []float64{10, 0, 300000, 0, -10, 5000000},
		},
	}, nil)
	putArray(t, s, "measurements/reflectance/r20m/b05", "<u2", []int{3, 3}, nil, dims("y", "x"), nil)

	putArray(t, s, "quality/l1c_quicklook/r10m/tci", "|u1", []int{3, 6, 6}, []int{1, 6, 6}, dims("band", "y", "x"), nil)
	return s, root
}

func bandNames(p *Product) []string {
	var out []string
	for _, b := range p.Bands {
		out = append(out, b.Name)
	}
	return out
}

var fixtureBands = []string{
	"sun_zenith_geometry",
	"sun_azimuth_geometry",
	"b01_r60m_detector_footprint",
	"scl_r20m_l2a_classification",
	"aod550_cams",
	"b02_r10m_reflectance",
	"b05_r20m_reflectance",
	"1_tci_r10m_l1c_quicklook",
	"2_tci_r10m_l1c_quicklook",
	"3_tci_r10m_l1c_quicklook",
}

func TestReadProduct(t *testing.T) {
	s, _ := s2Fixture(t)
	p, err := Read(s, fixtureName, DefaultConfig())
	require.NoError(t, err)

	require.NotEmpty(t, p.ID)
	require.Equal(t, "S2B_MSIL2A_20230815T102609", p.Name)
	require.Equal(t, "S2_MSI_Level-2A_ZARR", p.Type)
	require.Equal(t, 32632, p.EPSG)
	sensing := time.Date(2023, 8, 15, 10, 26, 9, 24000000, time.UTC)
	require.True(t, p.Start.Equal(sensing), p.Start.String())
	require.True(t, p.End.Equal(sensing), p.End.String())
	require.Equal(t, DefaultConfig().AutoGrouping, p.AutoGrouping)
	require.Len(t, p.RGBProfiles, 3)

	require.Equal(t, fixtureBands, bandNames(p))
	require.Equal(t, []string{"conditions/geometry/angle"}, p.Auxiliary)

	require.Len(t, p.Problems, 1)
	require.True(t, errors.Is(p.Problems[0], flatten.ErrUnknownDimensionLabeling))

	require.Equal(t, []Quicklook{{
		Name:  "tci_r10m_l1c_quicklook",
		Bands: []string{"1_tci_r10m_l1c_quicklook", "2_tci_r10m_l1c_quicklook", "3_tci_r10m_l1c_quicklook"},
	}}, p.Quicklooks)
}

func TestBandAttributes(t *testing.T) {
	s, _ := s2Fixture(t)
	p, err := Read(s, fixtureName, DefaultConfig())
	require.NoError(t, err)

	b02, ok := p.Band("b02_r10m_reflectance")
	require.True(t, ok)
	require.Equal(t, "measurements/reflectance/r10m/b02", b02.Key)
	require.Equal(t, "BOA reflectance b02", b02.Description)
	require.Equal(t, 0.0001, b02.ScaleFactor)
	require.Equal(t, -0.1, b02.AddOffset)
	require.True(t, b02.NoDataUsed)
	require.Equal(t, 0.0, b02.NoData)
	require.Equal(t, 492.4, b02.Wavelength)
	require.Equal(t, 66.0, b02.Bandwidth)
	require.Nil(t, b02.Coding)

	b05, _ := p.Band("b05_r20m_reflectance")
	require.Equal(t, 1.0, b05.ScaleFactor)
	require.False(t, b05.NoDataUsed)
	require.Zero(t, b05.Wavelength)

	sun, _ := p.Band("sun_azimuth_geometry")
	require.Equal(t, []int{1}, sun.FixedIndices)
	require.Equal(t, raster.Shape{Rows: 2, Cols: 2}, sun.SpatialShape)
}

func TestGeoCodingsAndScene(t *testing.T) {
	s, _ := s2Fixture(t)
	p, err := Read(s, fixtureName, DefaultConfig())
	require.NoError(t, err)

	b02, _ := p.Band("b02_r10m_reflectance")
	tci, _ := p.Band("1_tci_r10m_l1c_quicklook")
	scl, _ := p.Band("scl_r20m_l2a_classification")
	b05, _ := p.Band("b05_r20m_reflectance")
	sun, _ := p.Band("sun_zenith_geometry")
	aod, _ := p.Band("aod550_cams")

	// bands sharing a shape share the geocoding instance
	require.Same(t, b02.GeoCoding, tci.GeoCoding)
	require.Same(t, scl.GeoCoding, b05.GeoCoding)

	require.Equal(t, b02.GeoCoding, p.SceneGeoCoding)
	require.Nil(t, b02.Scene)
	require.Nil(t, tci.Scene)
	require.NotNil(t, b05.Scene)
	require.NotNil(t, aod.Scene)

	g := sun.GeoCoding.(*geocoding.UniformGrid)
	require.Equal(t, 5000.0, g.PixelSizeX)
	require.Equal(t, 300000.0, g.Easting)
	require.Equal(t, 5000000.0, g.Northing)

	_, isLookup := aod.GeoCoding.(*geocoding.PixelLookup)
	require.True(t, isLookup)
	require.Len(t, p.GeoCodings.Shapes(), 5)

	pt := geocoding.Point{X: 300030, Y: 4999970}
	sc, err := b05.Scene.ModelToScene(pt)
	require.NoError(t, err)
	require.InDelta(t, pt.X, sc.X, 1e-6)
	require.InDelta(t, pt.Y, sc.Y, 1e-6)
	back, err := b05.Scene.SceneToModel(sc)
	require.NoError(t, err)
	require.InDelta(t, pt.X, back.X, 1e-6)
	require.InDelta(t, pt.Y, back.Y, 1e-6)
}

func TestCodingsAndMasks(t *testing.T) {
	s, _ := s2Fixture(t)
	p, err := Read(s, fixtureName, DefaultConfig())
	require.NoError(t, err)

	require.Len(t, p.Codings, 2)
	require.Equal(t, "detector_footprint", p.Codings[0].Name)
	require.Equal(t, "l2a_classification", p.Codings[1].Name)
	require.Len(t, p.Masks, 13+2)

	det, _ := p.Band("b01_r60m_detector_footprint")
	require.Same(t, p.Codings[0], det.Coding)
	require.Len(t, det.Masks, 13)
	require.Equal(t, "b01_r60m_detector_footprint == 12", det.Masks[12].Expression)

	scl, _ := p.Band("scl_r20m_l2a_classification")
	require.Equal(t, "scl_r20m_l2a_classification_dark", scl.Masks[1].Name)
	require.Equal(t, "scl_r20m_l2a_classification.dark", scl.Masks[1].Expression)
	require.Equal(t, "dark area", scl.Coding.Categories[1].Description)
	require.Equal(t, 2, scl.Coding.Categories[1].Value)

	seen := map[color.RGBA]bool{}
	for _, m := range p.Masks {
		require.False(t, seen[m.Color], "duplicate mask color %v", m.Color)
		seen[m.Color] = true
	}
}

func TestReadTiles(t *testing.T) {
	s, _ := s2Fixture(t)
	p, err := Read(s, fixtureName, DefaultConfig())
	require.NoError(t, err)

	tiles, err := p.ReadTiles(context.Background(), "b02_r10m_reflectance", []raster.Rect{
		{X: 1, Y: 2, W: 2, H: 2},
		{X: 3, Y: 3, W: 3, H: 1},
	})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{13, 14, 19, 20}, {21, 22, 23}}, tiles)

	tiles, err = p.ReadTiles(context.Background(), "2_tci_r10m_l1c_quicklook", []raster.Rect{{W: 2, H: 1}})
	require.NoError(t, err)
	require.Equal(t, [][]float64{{36, 37}}, tiles)

	_, err = p.ReadTiles(context.Background(), "b02_r10m_reflectance", []raster.Rect{{X: 5, W: 2, H: 1}})
	require.True(t, errors.Is(err, zarr.ErrInvalidWindow))

	_, err = p.ReadTiles(context.Background(), "b99", nil)
	require.True(t, errors.Is(err, zarr.ErrNotfound))
}

func TestReadConsolidated(t *testing.T) {
	s, root := s2Fixture(t)
	require.NoError(t, root.Consolidate())
	p, err := Read(s, fixtureName, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, fixtureBands, bandNames(p))
	require.Equal(t, 32632, p.EPSG)
}

func TestUngeoreferencedBands(t *testing.T) {
	s := zarr.NewMemoryStore()
	_, err := zarr.CreateGroup(s, "", nil)
	require.NoError(t, err)
	putArray(t, s, "measurements/a", "<u2", []int{2, 3}, nil, dims("y", "x"), nil)
	putArray(t, s, "measurements/b", "<u2", []int{2, 3}, nil, dims("y", "x"), nil)

	p, err := Read(s, "plain.zarr", DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, "", p.Type)
	require.Equal(t, []string{"a_measurements", "b_measurements"}, bandNames(p))
	require.Len(t, p.Problems, 1)
	require.True(t, errors.Is(p.Problems[0], geocoding.ErrConstructionFailed))
	require.Nil(t, p.SceneGeoCoding)
	for _, b := range p.Bands {
		require.Nil(t, b.GeoCoding)
		require.Nil(t, b.Scene)
	}

	tiles, err := p.ReadTiles(context.Background(), "b_measurements", []raster.Rect{{W: 3, H: 2}})
	require.NoError(t, err)
	require.Equal(t, ramp(6), tiles[0])
}

func TestShapeGeoreferencedByLaterArray(t *testing.T) {
	s := zarr.NewMemoryStore()
	_, err := zarr.CreateGroup(s, "", nil)
	require.NoError(t, err)
	putArray(t, s, "measurements/a", "<u2", []int{4, 4}, nil, dims("y", "x"), nil)
	putArray(t, s, "measurements/b", "<u2", []int{4, 4}, nil, transformAttrs(60, 300000, 5000040), nil)

	p, err := Read(s, "plain.zarr", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, p.Problems, 1)
	require.True(t, errors.Is(p.Problems[0], geocoding.ErrConstructionFailed))

	a, ok := p.Band("a_measurements")
	require.True(t, ok)
	b, ok := p.Band("b_measurements")
	require.True(t, ok)
	require.NotNil(t, b.GeoCoding)
	require.Same(t, b.GeoCoding, a.GeoCoding)
	require.Same(t, b.GeoCoding, p.SceneGeoCoding)
	require.Nil(t, a.Scene)
}

func TestFootprintScene(t *testing.T) {
	s := zarr.NewMemoryStore()
	_, err := zarr.CreateGroup(s, "", zarr.Attributes{
		"stac_discovery": map[string]interface{}{
			"properties": map[string]interface{}{
				AttrEPSG: 32632,
				AttrBBox: []float64{390000, 4990000, 400000, 5000000},
			},
		},
	})
	require.NoError(t, err)
	putArray(t, s, "cams/aod550", "<f4", []int{3, 4}, nil, dims("latitude", "longitude"), nil)
	putArray(t, s, "cams/latitude", "<f8", []int{3}, nil, dims("latitude"), []float64{45.1, 45.0, 44.9})
	putArray(t, s, "cams/longitude", "<f8", []int{4}, nil, dims("longitude"), []float64{8.0, 8.1, 8.2, 8.3})

	cfg := DefaultConfig()
	cfg.SceneResolution = 100
	p, err := Read(s, "S2A_MSIL1C_x.zarr", cfg)
	require.NoError(t, err)
	require.Equal(t, "S2_MSI_Level-1C_ZARR", p.Type)
	require.Empty(t, p.Problems)

	g, ok := p.SceneGeoCoding.(*geocoding.UniformGrid)
	require.True(t, ok)
	require.Equal(t, raster.Shape{Rows: 100, Cols: 100}, g.Grid)
	require.Equal(t, 390000.0, g.Easting)
	require.Equal(t, 5000000.0, g.Northing)
	require.Equal(t, 32632, g.CRS.EPSG)

	aod, _ := p.Band("aod550_cams")
	require.NotNil(t, aod.Scene)
}

func TestReadFailures(t *testing.T) {
	_, err := Read(zarr.NewMemoryStore(), "empty.zarr", DefaultConfig())
	require.True(t, errors.Is(err, zarr.ErrNotfound))

	cfg := DefaultConfig()
	cfg.TileWorkers = 0
	s, _ := s2Fixture(t)
	_, err = Read(s, fixtureName, cfg)
	require.True(t, errors.Is(err, errInvalidConfig))
}

func TestProductType(t *testing.T) {
	cases := map[string]string{
		"S2B_MSIL2A_20230815T102609": "S2_MSI_Level-2A_ZARR",
		"S2A_MSIL1C":                 "S2_MSI_Level-1C_ZARR",
		"S2A":                        "",
		"S2A_X_":                     "",
	}
	for name, want := range cases {
		require.Equal(t, want, productType(name), name)
	}
}

func TestBandName(t *testing.T) {
	s := NewSession(DefaultConfig())
	require.Equal(t, "b02_r10m_reflectance", s.bandName([]string{"measurements", "reflectance", "r10m", "b02"}))
	require.Equal(t, "sun_angles_geometry", s.bandName([]string{"conditions", "geometry", "sun_angles"}))
	require.Equal(t, "b02_r10m", s.bandName([]string{"r10m", "b02"}))
	require.Equal(t, "b02", s.bandName([]string{"b02"}))
}
