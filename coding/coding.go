// Package coding builds the categorical sample codings of bands and the
// overlay masks that visualize each category.
package coding

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	zarr "github.com/qri-io/zarr-geo"
	"github.com/qri-io/zarr-geo/logging"
)

// CF attribute names
const (
	AttrFlagMeanings     = "flag_meanings"
	AttrFlagMasks        = "flag_masks"
	AttrFlagValues       = "flag_values"
	AttrFlagDescriptions = "flag_descriptions"
)

// DetectorCodingName is the index coding built without attributes.
const DetectorCodingName = "detector_footprint"

type Kind int

const (
	FlagKind Kind = iota
	IndexKind
)

func (k Kind) String() string {
	if k == IndexKind {
		return "index"
	}
	return "flag"
}

// Category is one flag (Value is its bit mask) or one index value.
type Category struct {
	Name        string
	Value       int
	Description string
}

// Coding is shared by every band of a product referencing the same name.
type Coding struct {
	Name       string
	Kind       Kind
	Categories []Category
}

// Mask is an overlay selecting one category of a band.
type Mask struct {
	Name        string
	Band        string
	Expression  string
	Description string
	Color       color.RGBA
	Opacity     float64
}

// NameRule maps bands whose name contains Fragment to the coding Coding.
type NameRule struct {
	Fragment string `toml:"fragment"`
	Coding   string `toml:"coding"`
}

// match returns the coding of the first rule whose fragment band contains.
func match(rules []NameRule, band string) (string, bool) {
	for _, r := range rules {
		if strings.Contains(band, r.Fragment) {
			return r.Coding, true
		}
	}
	return "", false
}

// Builder derives codings and masks for the bands of one product. Codings
// are created once per name and shared afterwards. A Builder is not safe
// for concurrent use.
type Builder struct {
	FlagRules     []NameRule
	IndexRules    []NameRule
	Opacity       float64
	DetectorCount int
	Colors        *Colors
	Log           logging.Logger

	flags   map[string]*Coding
	indices map[string]*Coding
	order   []*Coding
}

func NewBuilder(flagRules, indexRules []NameRule) *Builder {
	return &Builder{
		FlagRules:     flagRules,
		IndexRules:    indexRules,
		Opacity:       0.5,
		DetectorCount: 12,
		Colors:        NewColors(),
		Log:           logging.Prefixed("coding"),
		flags:         map[string]*Coding{},
		indices:       map[string]*Coding{},
	}
}

// Codings lists the codings created so far in creation order.
func (b *Builder) Codings() []*Coding {
	return append([]*Coding(nil), b.order...)
}

// Decorate resolves the coding of band from its name and attributes and
// builds one mask per category. An index coding takes precedence over a flag
// coding. A band without a coding gets no masks.
func (b *Builder) Decorate(band string, attrs zarr.Attributes) (*Coding, []Mask) {
	c := b.flagCoding(band, attrs)
	if ic := b.indexCoding(band, attrs); ic != nil {
		c = ic
	}
	if c == nil {
		return nil, nil
	}
	return c, b.masks(band, c)
}

func (b *Builder) flagCoding(band string, attrs zarr.Attributes) *Coding {
	meanings, ok := attrs.Strings(AttrFlagMeanings)
	if !ok {
		return nil
	}
	name, ok := match(b.FlagRules, band)
	if !ok {
		b.Log.Warningf("Unexpected flag meanings found for band %q", band)
		return nil
	}
	if c, ok := b.flags[name]; ok {
		return c
	}
	masks, ok := attrs.Float64s(AttrFlagMasks)
	if !ok {
		b.Log.Warningf("Attributes of band %q contain %q but no %q", band, AttrFlagMeanings, AttrFlagMasks)
		return nil
	}
	if len(masks) < len(meanings) {
		b.Log.Warningf("Band %q has %d flag meanings but %d flag masks", band, len(meanings), len(masks))
		return nil
	}
	descriptions, _ := attrs.Strings(AttrFlagDescriptions)
	c := &Coding{Name: name, Kind: FlagKind}
	for i, m := range meanings {
		c.Categories = append(c.Categories, Category{
			Name:        m,
			Value:       int(masks[i]),
			Description: at(descriptions, i),
		})
	}
	b.flags[name] = c
	b.order = append(b.order, c)
	return c
}

func (b *Builder) indexCoding(band string, attrs zarr.Attributes) *Coding {
	name, ok := match(b.IndexRules, band)
	if !ok {
		return nil
	}
	if c, ok := b.indices[name]; ok {
		return c
	}
	var c *Coding
	if name == DetectorCodingName {
		c = DetectorCoding(b.DetectorCount)
	} else {
		var err error
		if c, err = indexFromAttributes(name, attrs); err != nil {
			b.Log.Warningf("Could not create index coding for band %q: %v", band, err)
			return nil
		}
	}
	b.indices[name] = c
	b.order = append(b.order, c)
	return c
}

// DetectorCoding is the index coding of detector footprint bands:
// no_detector followed by detector_1 to detector_n.
func DetectorCoding(n int) *Coding {
	c := &Coding{Name: DetectorCodingName, Kind: IndexKind}
	c.Categories = append(c.Categories, Category{Name: "no_detector", Value: 0, Description: "no detector"})
	for i := 1; i <= n; i++ {
		c.Categories = append(c.Categories, Category{
			Name:        "detector_" + strconv.Itoa(i),
			Value:       i,
			Description: "detector " + strconv.Itoa(i),
		})
	}
	return c
}

func indexFromAttributes(name string, attrs zarr.Attributes) (*Coding, error) {
	meanings, ok := attrs.Strings(AttrFlagMeanings)
	if !ok {
		return nil, fmt.Errorf("no %q attribute", AttrFlagMeanings)
	}
	values, ok := attrs.Float64s(AttrFlagValues)
	if !ok || len(values) < len(meanings) {
		return nil, fmt.Errorf("%q does not cover %q", AttrFlagValues, AttrFlagMeanings)
	}
	descriptions, _ := attrs.Strings(AttrFlagDescriptions)
	c := &Coding{Name: name, Kind: IndexKind}
	for i, m := range meanings {
		c.Categories = append(c.Categories, Category{Name: m, Value: int(values[i]), Description: at(descriptions, i)})
	}
	return c, nil
}

func (b *Builder) masks(band string, c *Coding) []Mask {
	out := make([]Mask, 0, len(c.Categories))
	for _, cat := range c.Categories {
		var expr string
		if c.Kind == FlagKind {
			expr = band + "." + cat.Name
		} else {
			expr = band + " == " + strconv.Itoa(cat.Value)
		}
		out = append(out, Mask{
			Name:        band + "_" + cat.Name,
			Band:        band,
			Expression:  expr,
			Description: expr,
			Color:       b.Colors.Next(),
			Opacity:     b.Opacity,
		})
	}
	return out
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}
