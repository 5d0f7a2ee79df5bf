package zarr

import (
	"fmt"
	"strconv"
	"strings"
)

type chunkDimProjection struct {
	// Index of chunk.
	DimChunkIX int
	// First selected item within the chunk.
	DimChunkSel int
	// First item in the target (output) array.
	DimOutSel int
	// Number of items selected from this chunk.
	Len int
}

// A mapping of items from chunk to output array. Can be used to extract items
// from the chunk array for loading into an output array. Can also be used to
// extract items from a value array for setting/updating in a chunk array.
type chunkProjection struct {
	// Indices of chunk
	ChunkCoords []int
	// Selection of items from chunk array.
	ChunkSelection []int
	// Selection of items in target (output) array.
	OutSelection []int
	// Extent of the selection in each dimension.
	Lens []int
}

// dimProjections splits the range [offset, offset+length) of one dimension
// into per-chunk pieces.
func dimProjections(offset, length, chunkLen int) []chunkDimProjection {
	if length == 0 {
		return nil
	}
	first := offset / chunkLen
	last := (offset + length - 1) / chunkLen
	ps := make([]chunkDimProjection, 0, last-first+1)
	for ix := first; ix <= last; ix++ {
		start := ix * chunkLen
		lo := max(offset, start)
		hi := min(offset+length, start+chunkLen)
		ps = append(ps, chunkDimProjection{
			DimChunkIX:  ix,
			DimChunkSel: lo - start,
			DimOutSel:   lo - offset,
			Len:         hi - lo,
		})
	}
	return ps
}

// projections returns one chunkProjection per chunk touched by the window,
// in C order of chunk coordinates.
func projections(shape, offset, chunks []int) []chunkProjection {
	dims := make([][]chunkDimProjection, len(shape))
	for d := range shape {
		dims[d] = dimProjections(offset[d], shape[d], chunks[d])
		if len(dims[d]) == 0 {
			return nil
		}
	}

	var out []chunkProjection
	pos := make([]int, len(dims))
	for {
		p := chunkProjection{
			ChunkCoords:    make([]int, len(dims)),
			ChunkSelection: make([]int, len(dims)),
			OutSelection:   make([]int, len(dims)),
			Lens:           make([]int, len(dims)),
		}
		for d, i := range pos {
			dp := dims[d][i]
			p.ChunkCoords[d] = dp.DimChunkIX
			p.ChunkSelection[d] = dp.DimChunkSel
			p.OutSelection[d] = dp.DimOutSel
			p.Lens[d] = dp.Len
		}
		out = append(out, p)

		d := len(pos) - 1
		for ; d >= 0; d-- {
			pos[d]++
			if pos[d] < len(dims[d]) {
				break
			}
			pos[d] = 0
		}
		if d < 0 {
			return out
		}
	}
}

// GridShape calculates the number of chunks in each dimension.
func GridShape(shape, chunks []int) []int {
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = (shape[i] + chunks[i] - 1) / chunks[i]
	}
	return grid
}

// ChunkKey joins chunk grid coordinates with the array's dimension
// separator. A zero-dimensional array has the single chunk "0".
func ChunkKey(coords []int, sep string) string {
	if len(coords) == 0 {
		return "0"
	}
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, sep)
}

// strides returns element strides for a buffer of the given shape laid out
// in C (row-major) or F (column-major) order.
func strides(shape []int, order string) ([]int, error) {
	st := make([]int, len(shape))
	acc := 1
	switch order {
	case "C", "":
		for d := len(shape) - 1; d >= 0; d-- {
			st[d] = acc
			acc *= shape[d]
		}
	case "F":
		for d := 0; d < len(shape); d++ {
			st[d] = acc
			acc *= shape[d]
		}
	default:
		return nil, fmt.Errorf("%w order %q", ErrUnsupported, order)
	}
	return st, nil
}

// validateWindow checks a read window against the array shape.
func validateWindow(arrShape, shape, offset []int) error {
	if len(shape) != len(arrShape) || len(offset) != len(arrShape) {
		return fmt.Errorf("%w: window rank %d/%d does not match array rank %d",
			ErrInvalidWindow, len(shape), len(offset), len(arrShape))
	}
	for d := range arrShape {
		if shape[d] < 0 || offset[d] < 0 {
			return fmt.Errorf("%w: negative extent in dimension %d (offset=%d, shape=%d)",
				ErrInvalidWindow, d, offset[d], shape[d])
		}
		if offset[d]+shape[d] > arrShape[d] {
			return fmt.Errorf("%w: selection out of bounds in dimension %d: offset=%d + shape=%d > size=%d",
				ErrInvalidWindow, d, offset[d], shape[d], arrShape[d])
		}
	}
	return nil
}
