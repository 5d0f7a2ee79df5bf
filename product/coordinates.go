package product

import (
	"fmt"

	zarr "github.com/qri-io/zarr-geo"
)

// siblings reads 1-D coordinate arrays stored next to a data array.
type siblings struct {
	group  *zarr.Group
	parent string
}

func (s siblings) Samples(name string, n int) ([]float64, error) {
	key := name
	if s.parent != "" {
		key = s.parent + "/" + name
	}
	a, err := s.group.OpenArray(key)
	if err != nil {
		return nil, err
	}
	shape := a.Shape()
	if len(shape) != 1 {
		return nil, fmt.Errorf("coordinate array %q has rank %d", key, len(shape))
	}
	count := shape[0]
	if n > 0 && n < count {
		count = n
	}
	dst := make([]float64, count)
	if err := a.Read(dst, []int{count}, []int{0}); err != nil {
		return nil, fmt.Errorf("reading coordinate array %q: %w", key, err)
	}
	return dst, nil
}
