// Package raster maps 2-D pixel rectangles of a band onto N-dimensional read
// windows of the array the band was flattened from.
package raster

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	zarr "github.com/qri-io/zarr-geo"
	"golang.org/x/sync/errgroup"
)

// ArrayHandle is a read-only view of a stored N-dimensional array. The last
// two dimensions are always rows and columns.
type ArrayHandle interface {
	Path() string
	Shape() []int
	Chunks() []int
	Attributes() zarr.Attributes
	Read(dst []float64, shape, offset []int) error
}

var _ ArrayHandle = (*zarr.Array)(nil)

// ErrInvalidBand flags a band descriptor whose fixed indices do not fit its
// source array.
var ErrInvalidBand = errors.New("invalid band descriptor")

// Shape is the spatial extent of a 2-D raster.
type Shape struct {
	Rows, Cols int
}

// SpatialShape returns the trailing two dimensions of an array shape.
func SpatialShape(shape []int) (Shape, bool) {
	if len(shape) < 2 {
		return Shape{}, false
	}
	return Shape{Rows: shape[len(shape)-2], Cols: shape[len(shape)-1]}, true
}

func (s Shape) String() string {
	return strconv.Itoa(s.Rows) + "_" + strconv.Itoa(s.Cols)
}

// Pixels is the number of pixels covered by the shape.
func (s Shape) Pixels() int { return s.Rows * s.Cols }

// Rect is a pixel rectangle: X is the column, Y the row of its upper left
// corner.
type Rect struct {
	X, Y, W, H int
}

// Full returns the rectangle covering the whole shape.
func (s Shape) Full() Rect { return Rect{W: s.Cols, H: s.Rows} }

// Window is an N-dimensional read request against an array.
type Window struct {
	Offset []int
	Shape  []int
}

// WindowFor builds the read window for rectangle r of a band whose leading
// dimensions are pinned to fixed. Leading dimensions are read with extent 1.
func WindowFor(fixed []int, r Rect) Window {
	n := len(fixed) + 2
	w := Window{
		Offset: make([]int, n),
		Shape:  make([]int, n),
	}
	copy(w.Offset, fixed)
	for i := range fixed {
		w.Shape[i] = 1
	}
	w.Offset[n-2], w.Offset[n-1] = r.Y, r.X
	w.Shape[n-2], w.Shape[n-1] = r.H, r.W
	return w
}

// BandDescriptor is one named 2-D band of a source array. FixedIndices pins
// every leading non-spatial dimension; it is empty for plain 2-D arrays.
type BandDescriptor struct {
	Name         string
	Source       ArrayHandle
	FixedIndices []int
	SpatialShape Shape
}

// NewBandDescriptor checks that fixed addresses exactly the leading
// dimensions of src and that every index is in range.
func NewBandDescriptor(name string, src ArrayHandle, fixed []int) (BandDescriptor, error) {
	shape := src.Shape()
	sp, ok := SpatialShape(shape)
	if !ok {
		return BandDescriptor{}, fmt.Errorf("%w: array %q has rank %d", ErrInvalidBand, src.Path(), len(shape))
	}
	if len(fixed) != len(shape)-2 {
		return BandDescriptor{}, fmt.Errorf("%w: %d fixed indices for array %q of rank %d",
			ErrInvalidBand, len(fixed), src.Path(), len(shape))
	}
	for i, ix := range fixed {
		if ix < 0 || ix >= shape[i] {
			return BandDescriptor{}, fmt.Errorf("%w: index %d out of range [0,%d) in dimension %d of %q",
				ErrInvalidBand, ix, shape[i], i, src.Path())
		}
	}
	return BandDescriptor{
		Name:         name,
		Source:       src,
		FixedIndices: append([]int(nil), fixed...),
		SpatialShape: sp,
	}, nil
}

// Window returns the source read window for rectangle r of the band.
func (b BandDescriptor) Window(r Rect) Window {
	return WindowFor(b.FixedIndices, r)
}

// ReadTile reads rectangle r of the band in row-major order. Errors of the
// source array, ErrInvalidWindow included, are returned unchanged.
func (b BandDescriptor) ReadTile(r Rect) ([]float64, error) {
	if r.W < 0 || r.H < 0 {
		return nil, fmt.Errorf("%w: negative tile extent %dx%d", zarr.ErrInvalidWindow, r.W, r.H)
	}
	w := b.Window(r)
	dst := make([]float64, r.W*r.H)
	if err := b.Source.Read(dst, w.Shape, w.Offset); err != nil {
		return nil, err
	}
	return dst, nil
}

// ReadTiles reads rects of band concurrently with at most workers reads in
// flight. Tiles are returned in request order. The first failure cancels
// the reads that have not started yet.
func ReadTiles(ctx context.Context, band BandDescriptor, rects []Rect, workers int) ([][]float64, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([][]float64, len(rects))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, r := range rects {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tile, err := band.ReadTile(r)
			if err != nil {
				return fmt.Errorf("reading tile %v of band %q: %w", r, band.Name, err)
			}
			out[i] = tile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Tiles splits the shape into tiles of at most tileRows x tileCols pixels,
// row by row.
func (s Shape) Tiles(tileRows, tileCols int) []Rect {
	if tileRows < 1 || tileCols < 1 {
		return nil
	}
	var out []Rect
	for y := 0; y < s.Rows; y += tileRows {
		for x := 0; x < s.Cols; x += tileCols {
			out = append(out, Rect{X: x, Y: y, W: min(tileCols, s.Cols-x), H: min(tileRows, s.Rows-y)})
		}
	}
	return out
}
