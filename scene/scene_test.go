package scene

import (
	"errors"
	"testing"

	"github.com/qri-io/zarr-geo/crs"
	"github.com/qri-io/zarr-geo/geocoding"
	"github.com/qri-io/zarr-geo/raster"
	"github.com/stretchr/testify/require"
)

func utmGrid(t *testing.T, res float64, n int) *geocoding.UniformGrid {
	t.Helper()
	c, err := crs.DecodeEPSG(32632)
	require.NoError(t, err)
	return &geocoding.UniformGrid{
		CRS:        c,
		Grid:       raster.Shape{Rows: n, Cols: n},
		PixelSizeX: res,
		PixelSizeY: res,
		Easting:    300000,
		Northing:   5000040,
	}
}

func TestRoundTripUTMResolutions(t *testing.T) {
	p := NewProvider(utmGrid(t, 10, 10980), utmGrid(t, 60, 1830))
	for _, pt := range []geocoding.Point{{X: 300030, Y: 5000010}, {X: 354321.5, Y: 4950000.25}, {X: 409000, Y: 4891000}} {
		s, err := p.ModelToScene(pt)
		require.NoError(t, err)
		require.InDelta(t, pt.X, s.X, 1e-6)
		require.InDelta(t, pt.Y, s.Y, 1e-6)

		back, err := p.SceneToModel(s)
		require.NoError(t, err)
		require.InDelta(t, pt.X, back.X, 1e-6)
		require.InDelta(t, pt.Y, back.Y, 1e-6)
	}
}

func TestRoundTripGeographicModel(t *testing.T) {
	model := &geocoding.UniformGrid{
		CRS:        crs.WGS84,
		Grid:       raster.Shape{Rows: 100, Cols: 100},
		PixelSizeX: 0.01,
		PixelSizeY: 0.01,
		Easting:    8.5,
		Northing:   45.2,
	}
	p := NewProvider(utmGrid(t, 10, 10980), model)
	pt := geocoding.Point{X: 8.7312, Y: 44.9876}
	s, err := p.ModelToScene(pt)
	require.NoError(t, err)
	back, err := p.SceneToModel(s)
	require.NoError(t, err)
	require.InDelta(t, pt.X, back.X, 1e-6)
	require.InDelta(t, pt.Y, back.Y, 1e-6)
}

func lookup(t *testing.T) *geocoding.PixelLookup {
	t.Helper()
	var lat1d, lon1d []float64
	for r := 0; r < 40; r++ {
		lat1d = append(lat1d, 45.1-0.005*float64(r))
	}
	for c := 0; c < 40; c++ {
		lon1d = append(lon1d, 7.6+0.005*float64(c))
	}
	lat, lon := geocoding.OuterProduct(lat1d, lon1d)
	pl, err := geocoding.NewPixelLookup(raster.Shape{Rows: 40, Cols: 40}, lat, lon)
	require.NoError(t, err)
	return pl
}

func TestRoundTripPixelLookupModel(t *testing.T) {
	p := NewProvider(utmGrid(t, 10, 10980), lookup(t))
	for _, pt := range []geocoding.Point{{X: 0.5, Y: 0.5}, {X: 12.5, Y: 30.5}, {X: 39.5, Y: 7.5}} {
		s, err := p.ModelToScene(pt)
		require.NoError(t, err)
		back, err := p.SceneToModel(s)
		require.NoError(t, err)
		require.InDelta(t, pt.X, back.X, 1e-6)
		require.InDelta(t, pt.Y, back.Y, 1e-6)
	}
}

func TestNonTransformable(t *testing.T) {
	p := NewProvider(utmGrid(t, 10, 10980), lookup(t))

	_, err := p.ModelToScene(geocoding.Point{X: -3, Y: 2})
	require.True(t, errors.Is(err, ErrNonTransformable))

	// far outside the lookup footprint
	_, err = p.SceneToModel(geocoding.Point{X: 700000, Y: 4000000})
	require.True(t, errors.Is(err, ErrNonTransformable))

	_, err = NewProvider(nil, lookup(t)).ModelToScene(geocoding.Point{X: 1, Y: 1})
	require.True(t, errors.Is(err, ErrNonTransformable))
}
