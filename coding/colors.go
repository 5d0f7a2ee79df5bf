package coding

import (
	"image/color"
	"math"
)

// Colors yields an endless sequence of distinct opaque colors. It samples
// ever finer equally spaced grids of the RGB cube; points of a coarser grid
// sit at the all-even indices of the next one and are skipped there.
// Colors is not safe for concurrent use.
type Colors struct {
	counter      int
	intermediate int
	total        int
	ceiling      int
}

func NewColors() *Colors {
	c := &Colors{total: 2}
	c.ceiling = c.total * c.total * c.total
	return c
}

// Next returns a color not returned before by this generator. That holds
// while grids have at most 129 samples per axis, about 2.1 million colors;
// finer grids step below one 8-bit level and rounding may repeat colors.
func (c *Colors) Next() color.RGBA {
	for {
		if c.counter > c.ceiling {
			c.intermediate = 2*c.intermediate + 1
			c.total = c.intermediate + 2
			c.ceiling = c.total * c.total * c.total
			c.counter = 0
		}
		t := c.total
		r := (c.counter / (t * t)) % t
		g := (c.counter / t) % t
		b := c.counter % t
		c.counter++
		if r%2 == 0 && g%2 == 0 && b%2 == 0 {
			continue
		}
		step := 255 / float64(c.intermediate+1)
		return color.RGBA{
			R: uint8(math.Round(float64(r) * step)),
			G: uint8(math.Round(float64(g) * step)),
			B: uint8(math.Round(float64(b) * step)),
			A: 0xff,
		}
	}
}

// GridSize is the number of samples per axis of the current grid.
func (c *Colors) GridSize() int { return c.total }
