package geocoding

import (
	"fmt"
	"math"
	"slices"

	"github.com/qri-io/zarr-geo/crs"
	"github.com/qri-io/zarr-geo/raster"
)

const earthRadiusKm = 6371.0088

// PixelLookup geolocates every pixel through a latitude/longitude table.
// The inverse is a nearest neighbour search over the table.
type PixelLookup struct {
	Grid raster.Shape
	// Lat and Lon hold one value per pixel in row-major order.
	Lat, Lon []float64
	// ResolutionKm is the nominal ground sampling distance.
	ResolutionKm float64

	tree *kdTree
}

// NewPixelLookup builds a lookup over per-pixel coordinate rasters. NaN
// entries are left out of the inverse search.
func NewPixelLookup(shape raster.Shape, lat, lon []float64) (*PixelLookup, error) {
	n := shape.Pixels()
	if n == 0 || len(lat) != n || len(lon) != n {
		return nil, fmt.Errorf("coordinate rasters hold %d/%d values, shape %s needs %d", len(lat), len(lon), shape, n)
	}
	pl := &PixelLookup{
		Grid: shape,
		Lat:  lat,
		Lon:  lon,
	}
	pl.ResolutionKm = resolutionKm(shape, lat, lon)
	pl.tree = newKDTree(lat, lon)
	return pl, nil
}

// OuterProduct materializes separable 1-D axes: longitude varies along
// columns and latitude along rows.
func OuterProduct(lat1d, lon1d []float64) (lat, lon []float64) {
	rows, cols := len(lat1d), len(lon1d)
	lat = make([]float64, rows*cols)
	lon = make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lat[r*cols+c] = lat1d[r]
			lon[r*cols+c] = lon1d[c]
		}
	}
	return lat, lon
}

func (pl *PixelLookup) Shape() raster.Shape { return pl.Grid }
func (pl *PixelLookup) MapCRS() crs.CRS     { return crs.WGS84 }
func (*PixelLookup) geoCoding()             {}

func (pl *PixelLookup) String() string {
	return fmt.Sprintf("PixelLookup{%s resolution=%.3fkm}", pl.Grid, pl.ResolutionKm)
}

func (pl *PixelLookup) pixelToGeo(p Point) GeoPos {
	x, y := math.Floor(p.X), math.Floor(p.Y)
	if x < 0 || y < 0 || x >= float64(pl.Grid.Cols) || y >= float64(pl.Grid.Rows) {
		return nanGeo
	}
	i := int(y)*pl.Grid.Cols + int(x)
	return GeoPos{Lat: pl.Lat[i], Lon: pl.Lon[i]}
}

func (pl *PixelLookup) geoToPixel(g GeoPos) Point {
	i, chord := pl.tree.nearest(unitVector(g.Lat, g.Lon))
	if i < 0 {
		return nanPoint
	}
	dist := 2 * math.Asin(math.Min(1, chord/2)) * earthRadiusKm
	if pl.ResolutionKm > 0 && dist > 2*pl.ResolutionKm {
		return nanPoint
	}
	return Point{
		X: float64(i%pl.Grid.Cols) + 0.5,
		Y: float64(i/pl.Grid.Cols) + 0.5,
	}
}

// resolutionKm averages great circle distances between neighbouring pixels
// along the centre row and the centre column.
func resolutionKm(shape raster.Shape, lat, lon []float64) float64 {
	var sum float64
	var n int
	add := func(i, j int) {
		d := greatCircleKm(lat[i], lon[i], lat[j], lon[j])
		if !math.IsNaN(d) {
			sum += d
			n++
		}
	}
	row := shape.Rows / 2
	for c := 1; c < shape.Cols; c++ {
		add(row*shape.Cols+c-1, row*shape.Cols+c)
	}
	col := shape.Cols / 2
	for r := 1; r < shape.Rows; r++ {
		add((r-1)*shape.Cols+col, r*shape.Cols+col)
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1, p2 := lat1*math.Pi/180, lat2*math.Pi/180
	dp := p2 - p1
	dl := (lon2 - lon1) * math.Pi / 180
	h := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

type vec3 [3]float64

func unitVector(lat, lon float64) vec3 {
	p, l := lat*math.Pi/180, lon*math.Pi/180
	return vec3{math.Cos(p) * math.Cos(l), math.Cos(p) * math.Sin(l), math.Sin(p)}
}

func (v vec3) dist2(w vec3) float64 {
	dx, dy, dz := v[0]-w[0], v[1]-w[1], v[2]-w[2]
	return dx*dx + dy*dy + dz*dz
}

// kdTree is a static 3-d tree over unit vectors. Nodes are laid out
// implicitly: the median of idx[lo:hi] sits at (lo+hi)/2.
type kdTree struct {
	pts []vec3
	idx []int
}

func newKDTree(lat, lon []float64) *kdTree {
	t := &kdTree{pts: make([]vec3, len(lat))}
	for i := range lat {
		if math.IsNaN(lat[i]) || math.IsNaN(lon[i]) {
			continue
		}
		t.pts[i] = unitVector(lat[i], lon[i])
		t.idx = append(t.idx, i)
	}
	t.build(0, len(t.idx), 0)
	return t
}

func (t *kdTree) build(lo, hi, axis int) {
	if hi-lo <= 1 {
		return
	}
	sub := t.idx[lo:hi]
	slices.SortFunc(sub, func(a, b int) int {
		switch pa, pb := t.pts[a][axis], t.pts[b][axis]; {
		case pa < pb:
			return -1
		case pa > pb:
			return 1
		}
		return a - b
	})
	mid := (lo + hi) / 2
	next := (axis + 1) % 3
	t.build(lo, mid, next)
	t.build(mid+1, hi, next)
}

// nearest returns the pixel index closest to q and the chord distance to it,
// or -1 when the tree is empty.
func (t *kdTree) nearest(q vec3) (int, float64) {
	best, bestD := -1, math.Inf(1)
	var search func(lo, hi, axis int)
	search = func(lo, hi, axis int) {
		if lo >= hi {
			return
		}
		mid := (lo + hi) / 2
		i := t.idx[mid]
		if d := t.pts[i].dist2(q); d < bestD || (d == bestD && i < best) {
			best, bestD = i, d
		}
		diff := q[axis] - t.pts[i][axis]
		next := (axis + 1) % 3
		if diff < 0 {
			search(lo, mid, next)
			if diff*diff <= bestD {
				search(mid+1, hi, next)
			}
		} else {
			search(mid+1, hi, next)
			if diff*diff <= bestD {
				search(lo, mid, next)
			}
		}
	}
	search(0, len(t.idx), 0)
	if best < 0 {
		return -1, math.NaN()
	}
	return best, math.Sqrt(bestD)
}
