package geocoding

import (
	"slices"

	"github.com/qri-io/zarr-geo/raster"
)

// Registry memoizes one GeoCoding per spatial shape for a single assembly
// session. Only successful constructions are kept: a shape whose build
// failed is rebuilt on the next request, so a later array carrying usable
// georeferencing can still place it. A Registry is not safe for concurrent
// use.
type Registry struct {
	builder *Builder
	built   map[raster.Shape]GeoCoding
	failed  map[raster.Shape]error
	order   []raster.Shape
}

func NewRegistry(b *Builder) *Registry {
	if b == nil {
		b = NewBuilder()
	}
	return &Registry{
		builder: b,
		built:   map[raster.Shape]GeoCoding{},
		failed:  map[raster.Shape]error{},
	}
}

// Resolve returns the GeoCoding for req.Shape, building it from req until
// one construction for the shape succeeds.
func (r *Registry) Resolve(req Request) (GeoCoding, error) {
	if gc, ok := r.built[req.Shape]; ok {
		return gc, nil
	}
	gc, err := r.builder.Build(req)
	if err != nil {
		r.failed[req.Shape] = err
		return nil, err
	}
	delete(r.failed, req.Shape)
	r.built[req.Shape] = gc
	r.order = append(r.order, req.Shape)
	return gc, nil
}

// Lookup returns the GeoCoding registered for shape, if one was built.
func (r *Registry) Lookup(shape raster.Shape) (GeoCoding, bool) {
	gc, ok := r.built[shape]
	return gc, ok
}

// Seen reports whether a construction was attempted for shape.
func (r *Registry) Seen(shape raster.Shape) bool {
	_, built := r.built[shape]
	_, failed := r.failed[shape]
	return built || failed
}

// Err returns the last construction failure of a shape that has no
// GeoCoding yet.
func (r *Registry) Err(shape raster.Shape) error {
	return r.failed[shape]
}

// Shapes lists the shapes with a GeoCoding in registration order.
func (r *Registry) Shapes() []raster.Shape {
	return slices.Clone(r.order)
}

// Finest returns the UniformGrid with the smallest pixel area. Ties go to
// the grid registered first.
func (r *Registry) Finest() (*UniformGrid, bool) {
	var grids []*UniformGrid
	for _, s := range r.Shapes() {
		if g, ok := r.built[s].(*UniformGrid); ok {
			grids = append(grids, g)
		}
	}
	if len(grids) == 0 {
		return nil, false
	}
	return slices.MinFunc(grids, func(a, b *UniformGrid) int {
		aa, ba := a.PixelSizeX*a.PixelSizeY, b.PixelSizeX*b.PixelSizeY
		switch {
		case aa < ba:
			return -1
		case aa > ba:
			return 1
		}
		return 0
	}), true
}
