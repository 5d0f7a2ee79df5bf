// Package flatten turns arrays with leading non-spatial dimensions into a
// named family of 2-D bands.
package flatten

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/qri-io/zarr-geo/raster"
)

// ErrUnknownDimensionLabeling is returned when the label table does not
// cover some dimension or index of the array being flattened.
var ErrUnknownDimensionLabeling = errors.New("unknown dimension labeling")

// LabelError names the array and the dimension/index lacking a label.
// Index is -1 when the whole dimension is missing from the table.
type LabelError struct {
	Array string
	Dim   int
	Index int
}

func (e *LabelError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: array %q has no labels for dimension %d", ErrUnknownDimensionLabeling, e.Array, e.Dim)
	}
	return fmt.Sprintf("%s: array %q has no label for index %d of dimension %d",
		ErrUnknownDimensionLabeling, e.Array, e.Index, e.Dim)
}

func (e *LabelError) Unwrap() error { return ErrUnknownDimensionLabeling }

// Indices enumerates every index vector of a mixed-radix space in odometer
// order: the last digit moves fastest and carries into earlier digits.
// The sequence is finite and may be ranged over repeatedly. Yielded slices
// are fresh and may be retained. No vector is produced when any radix is
// below 1; an empty radix list produces one empty vector.
func Indices(radices []int) iter.Seq[[]int] {
	radices = append([]int(nil), radices...)
	return func(yield func([]int) bool) {
		for _, r := range radices {
			if r < 1 {
				return
			}
		}
		idx := make([]int, len(radices))
		for {
			v := make([]int, len(idx))
			copy(v, idx)
			if !yield(v) {
				return
			}
			d := len(idx) - 1
			for ; d >= 0; d-- {
				idx[d]++
				if idx[d] < radices[d] {
					break
				}
				idx[d] = 0
			}
			if d < 0 {
				return
			}
		}
	}
}

// Flattener names bands by joining the label of each leading dimension,
// in dimension order, followed by the base name. Separator goes between
// the labels; the base name is always attached with "_".
type Flattener struct {
	Separator string
}

// Flatten returns one band per combination of leading indices of src in
// odometer order. labels[d][i] names index i of leading dimension d. A 2-D
// array yields a single band called base. The label table is checked in
// full before anything is produced.
func (f Flattener) Flatten(src raster.ArrayHandle, base string, labels [][]string) ([]raster.BandDescriptor, error) {
	shape := src.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("flattening %q: %w", src.Path(), raster.ErrInvalidBand)
	}
	lead := shape[:len(shape)-2]
	if len(lead) == 0 {
		b, err := raster.NewBandDescriptor(base, src, nil)
		if err != nil {
			return nil, err
		}
		return []raster.BandDescriptor{b}, nil
	}

	for d, n := range lead {
		if d >= len(labels) {
			return nil, &LabelError{Array: src.Path(), Dim: d, Index: -1}
		}
		if len(labels[d]) < n {
			return nil, &LabelError{Array: src.Path(), Dim: d, Index: len(labels[d])}
		}
	}

	bands := make([]raster.BandDescriptor, 0, product(lead))
	parts := make([]string, len(lead))
	for idx := range Indices(lead) {
		for d, i := range idx {
			parts[d] = labels[d][i]
		}
		b, err := raster.NewBandDescriptor(strings.Join(parts, f.Separator)+"_"+base, src, idx)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	return bands, nil
}

// Flatten uses a Flattener with no separator between labels.
func Flatten(src raster.ArrayHandle, base string, labels [][]string) ([]raster.BandDescriptor, error) {
	return Flattener{}.Flatten(src, base, labels)
}

func product(ns []int) int {
	p := 1
	for _, n := range ns {
		p *= n
	}
	return p
}
