package coding

import (
	"image/color"
	"testing"

	zarr "github.com/qri-io/zarr-geo"
	"github.com/stretchr/testify/require"
)

func TestColorsDistinct(t *testing.T) {
	c := NewColors()
	seen := map[color.RGBA]int{}
	for i := 0; i < 500; i++ {
		col := c.Next()
		prev, dup := seen[col]
		require.False(t, dup, "color %v at %d repeats call %d", col, i, prev)
		require.Equal(t, uint8(0xff), col.A)
		require.NotEqual(t, color.RGBA{A: 0xff}, col)
		seen[col] = i
	}
}

func TestColorsDistinctAcrossGrids(t *testing.T) {
	c := NewColors()
	seen := map[color.RGBA]bool{}
	for {
		col := c.Next()
		if c.GridSize() > 33 {
			break
		}
		require.False(t, seen[col], "color %v repeats after %d calls", col, len(seen))
		seen[col] = true
	}
	// every point of the 33 samples per axis grid except black
	require.Len(t, seen, 33*33*33-1)
}

func TestColorsGridRefinement(t *testing.T) {
	c := NewColors()
	require.Equal(t, color.RGBA{B: 255, A: 255}, c.Next())
	for i := 1; i < 7; i++ {
		c.Next()
	}
	require.Equal(t, 2, c.GridSize())

	// the first color of the 3 samples per axis grid
	require.Equal(t, color.RGBA{B: 128, A: 255}, c.Next())
	require.Equal(t, 3, c.GridSize())
	for i := 1; i < 19; i++ {
		c.Next()
	}
	require.Equal(t, 3, c.GridSize())
	c.Next()
	require.Equal(t, 5, c.GridSize())
}

var (
	flagRules = []NameRule{
		{Fragment: "l1c_classification", Coding: "l1c_classification"},
		{Fragment: "l2a_classification", Coding: "l2a_classification"},
		{Fragment: "mask", Coding: "quality"},
	}
	indexRules = []NameRule{{Fragment: "detector_footprint", Coding: DetectorCodingName}}
)

func flagAttrs() zarr.Attributes {
	return zarr.Attributes{
		AttrFlagMeanings:     "saturated dark cloud",
		AttrFlagMasks:        []interface{}{1.0, 2.0, 4.0},
		AttrFlagDescriptions: []interface{}{"saturated pixel", "dark area"},
	}
}

func TestFlagCodingShared(t *testing.T) {
	b := NewBuilder(flagRules, indexRules)
	c, masks := b.Decorate("l2a_classification_r20m", flagAttrs())
	require.NotNil(t, c)
	require.Equal(t, "l2a_classification", c.Name)
	require.Equal(t, FlagKind, c.Kind)
	require.Equal(t, []Category{
		{Name: "saturated", Value: 1, Description: "saturated pixel"},
		{Name: "dark", Value: 2, Description: "dark area"},
		{Name: "cloud", Value: 4},
	}, c.Categories)

	require.Len(t, masks, 3)
	require.Equal(t, "l2a_classification_r20m_dark", masks[1].Name)
	require.Equal(t, "l2a_classification_r20m.dark", masks[1].Expression)
	require.Equal(t, masks[1].Expression, masks[1].Description)
	require.Equal(t, 0.5, masks[1].Opacity)

	// a second band with the same coding reuses it, whatever its attributes
	c2, masks2 := b.Decorate("l2a_classification_r60m", zarr.Attributes{AttrFlagMeanings: "x"})
	require.Same(t, c, c2)
	require.Len(t, masks2, 3)
	require.NotEqual(t, masks[0].Color, masks2[0].Color)
	require.Len(t, b.Codings(), 1)
}

func TestFlagCodingRejected(t *testing.T) {
	b := NewBuilder(flagRules, indexRules)
	c, masks := b.Decorate("reflectance_b02", flagAttrs())
	require.Nil(t, c)
	require.Nil(t, masks)

	c, _ = b.Decorate("mask_r10m", zarr.Attributes{AttrFlagMeanings: "a b"})
	require.Nil(t, c)

	c, _ = b.Decorate("b02_r10m", zarr.Attributes{})
	require.Nil(t, c)
	require.Empty(t, b.Codings())
}

func TestDetectorIndexCoding(t *testing.T) {
	b := NewBuilder(flagRules, indexRules)
	b.DetectorCount = 3
	c, masks := b.Decorate("b01_detector_footprint_r60m", zarr.Attributes{})
	require.NotNil(t, c)
	require.Equal(t, IndexKind, c.Kind)
	require.Equal(t, []Category{
		{Name: "no_detector", Value: 0, Description: "no detector"},
		{Name: "detector_1", Value: 1, Description: "detector 1"},
		{Name: "detector_2", Value: 2, Description: "detector 2"},
		{Name: "detector_3", Value: 3, Description: "detector 3"},
	}, c.Categories)
	require.Equal(t, "b01_detector_footprint_r60m_detector_2", masks[2].Name)
	require.Equal(t, "b01_detector_footprint_r60m == 2", masks[2].Expression)

	require.Len(t, DetectorCoding(12).Categories, 13)
}

func TestIndexOverridesFlag(t *testing.T) {
	b := NewBuilder(flagRules, []NameRule{{Fragment: "scl", Coding: "scene_classification"}})
	attrs := zarr.Attributes{
		AttrFlagMeanings: "no_data saturated",
		AttrFlagValues:   []interface{}{0.0, 1.0},
		AttrFlagMasks:    []interface{}{1.0, 2.0},
	}
	c, masks := b.Decorate("scl_mask", attrs)
	require.Equal(t, "scene_classification", c.Name)
	require.Equal(t, IndexKind, c.Kind)
	require.Equal(t, "scl_mask == 1", masks[1].Expression)
	// the flag coding was still registered
	require.Len(t, b.Codings(), 2)

	c2, masks := b.Decorate("scl_other", zarr.Attributes{AttrFlagMeanings: "a"})
	require.Same(t, c, c2)
	require.Len(t, masks, 2)

	b2 := NewBuilder(nil, []NameRule{{Fragment: "scl", Coding: "scl"}})
	c, _ = b2.Decorate("scl", zarr.Attributes{AttrFlagMeanings: "a b", AttrFlagValues: []interface{}{1.0}})
	require.Nil(t, c)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "flag", FlagKind.String())
	require.Equal(t, "index", IndexKind.String())
}
