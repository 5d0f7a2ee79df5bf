package crs

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEPSG(t *testing.T) {
	c, err := DecodeEPSG(32632)
	require.NoError(t, err)
	require.Equal(t, TransverseMercator, c.Kind)
	require.Equal(t, 32, c.Zone)
	require.False(t, c.South)
	require.Equal(t, "WGS 84 / UTM zone 32N", c.Name)

	c, err = DecodeEPSG(32734)
	require.NoError(t, err)
	require.True(t, c.South)
	require.Equal(t, 34, c.Zone)

	c, err = DecodeEPSG(4326)
	require.NoError(t, err)
	require.Equal(t, WGS84, c)

	for _, code := range []int{0, 32600, 32661, 2154, 27700} {
		_, err := DecodeEPSG(code)
		require.True(t, errors.Is(err, ErrUnknownCRS), "code %d", code)
	}
}

const utm32NWKT2 = `PROJCRS["WGS 84 / UTM zone 32N",
  BASEGEOGCRS["WGS 84",
    DATUM["World Geodetic System 1984",
      ELLIPSOID["WGS 84",6378137,298.257223563,LENGTHUNIT["metre",1]]],
    PRIMEM["Greenwich",0,ANGLEUNIT["degree",0.0174532925199433]],
    ID["EPSG",4326]],
  CONVERSION["UTM zone 32N",
    METHOD["Transverse Mercator",ID["EPSG",9807]]],
  CS[Cartesian,2],
  ID["EPSG",32632]]`

const utm33SWKT1 = `PROJCS["WGS 84 / UTM zone 33S",GEOGCS["WGS 84",DATUM["WGS_1984",
  SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],
  AUTHORITY["EPSG","4326"]],PROJECTION["Transverse_Mercator"],AUTHORITY["EPSG","32733"]]`

func TestParseWKT(t *testing.T) {
	c, err := ParseWKT(utm32NWKT2)
	require.NoError(t, err)
	require.Equal(t, 32632, c.EPSG)

	c, err = ParseWKT(utm33SWKT1)
	require.NoError(t, err)
	require.Equal(t, 32733, c.EPSG)
	require.True(t, c.South)

	c, err = ParseWKT(`PROJCRS["WGS 84 / UTM zone 31N",BASEGEOGCRS["WGS 84"]]`)
	require.NoError(t, err)
	require.Equal(t, 32631, c.EPSG)

	c, err = ParseWKT(`GEOGCRS["WGS 84",DATUM["World Geodetic System 1984"]]`)
	require.NoError(t, err)
	require.Equal(t, WGS84, c)

	for _, bad := range []string{"", "   ", `PROJCRS["RGF93 / Lambert-93"]`, "not a crs"} {
		_, err := ParseWKT(bad)
		require.True(t, errors.Is(err, ErrUnknownCRS), "wkt %q", bad)
	}
}

func TestUTMKnownPoints(t *testing.T) {
	c, _ := DecodeEPSG(32632)
	x, y, err := c.FromGeo(0, 9)
	require.NoError(t, err)
	require.InDelta(t, 500000, x, 1e-6)
	require.InDelta(t, 0, y, 1e-6)

	lat, lon, err := c.ToGeo(500000, 0)
	require.NoError(t, err)
	require.InDelta(t, 0, lat, 1e-8)
	require.InDelta(t, 9, lon, 1e-8)

	// Eiffel tower, zone 31N
	c, _ = DecodeEPSG(32631)
	x, y, _ = c.FromGeo(48.8584, 2.2945)
	require.InDelta(t, 448252.0, x, 0.5)
	require.InDelta(t, 5411954.9, y, 0.5)
}

func TestRoundTrips(t *testing.T) {
	cases := []struct {
		epsg     int
		lat, lon float64
	}{
		{32632, 45.1, 10.3},
		{32632, 60.5, 5.2},
		{32734, -33.9, 18.4},
		{32601, 10, -179},
		{3857, 51.5, -0.12},
		{4326, -12.5, 130.25},
	}
	for _, c := range cases {
		crs, err := DecodeEPSG(c.epsg)
		require.NoError(t, err)
		x, y, err := crs.FromGeo(c.lat, c.lon)
		require.NoError(t, err)
		lat, lon, err := crs.ToGeo(x, y)
		require.NoError(t, err)
		require.InDelta(t, c.lat, lat, 1e-8, "EPSG:%d", c.epsg)
		require.InDelta(t, c.lon, lon, 1e-8, "EPSG:%d", c.epsg)
	}
}

func TestProj4(t *testing.T) {
	cases := map[int]string{
		4326:  "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs",
		32632: "+proj=utm +zone=32 +datum=WGS84 +units=m +no_defs",
		32734: "+proj=utm +zone=34 +south +datum=WGS84 +units=m +no_defs",
	}
	for code, want := range cases {
		c, err := DecodeEPSG(code)
		require.NoError(t, err)
		require.Equal(t, want, c.Proj4())
	}
	c, _ := DecodeEPSG(3857)
	require.Contains(t, c.Proj4(), "+proj=merc")
	require.Empty(t, CRS{Kind: Kind(42)}.Proj4())
}

func TestProjectionFailures(t *testing.T) {
	c, _ := DecodeEPSG(32632)
	x, y, err := c.FromGeo(math.NaN(), 9)
	require.True(t, errors.Is(err, ErrProjection))
	require.True(t, math.IsNaN(x) && math.IsNaN(y))

	lat, lon, err := c.ToGeo(500000, math.Inf(1))
	require.True(t, errors.Is(err, ErrProjection))
	require.True(t, math.IsNaN(lat) && math.IsNaN(lon))
}

func TestZeroCRS(t *testing.T) {
	var c CRS
	c.Kind = Kind(42)
	_, _, err := c.ToGeo(0, 0)
	require.True(t, errors.Is(err, ErrUnknownCRS))
	_, _, err = c.FromGeo(0, 0)
	require.True(t, errors.Is(err, ErrUnknownCRS))
}
