package product

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/qri-io/zarr-geo/coding"
	"github.com/qri-io/zarr-geo/geocoding"
	"github.com/qri-io/zarr-geo/logging"
)

// RGBProfile names three band expressions shown as red, green and blue.
type RGBProfile struct {
	Name     string    `toml:"name"`
	Channels [3]string `toml:"channels"`
}

// Config holds the tables that tell the reader how a product is laid out.
// The zero value is not usable; start from DefaultConfig.
type Config struct {
	// Axes are the coordinate dimension pairs that mark an array as spatial,
	// tried in order.
	Axes []geocoding.AxisPair `toml:"axes"`

	// Resolutions are folder names that take the grandparent folder into
	// the band name.
	Resolutions []string `toml:"resolutions"`

	// Labels names the indices of each leading dimension, keyed by array name.
	Labels map[string][][]string `toml:"labels"`

	// BaseNames replaces the band name after the labels of flattened bands.
	BaseNames map[string]string `toml:"base_names"`

	FlagCodings  []coding.NameRule `toml:"flag_codings"`
	IndexCodings []coding.NameRule `toml:"index_codings"`

	Quicklook    string       `toml:"quicklook"`
	AutoGrouping string       `toml:"auto_grouping"`
	RGBProfiles  []RGBProfile `toml:"rgb_profiles"`

	MaskOpacity   float64 `toml:"mask_opacity"`
	DetectorCount int     `toml:"detector_count"`
	TileWorkers   int     `toml:"tile_workers"`

	// Ignored arrays are coordinate variables; they are neither bands nor
	// auxiliary data.
	Ignored []string `toml:"ignored"`

	// NorthingOffset is "up" or "down", see geocoding.NorthingOffset.
	NorthingOffset string `toml:"northing_offset"`

	// SceneResolution is the pixel size in map units of the scene raster
	// built from the product bounding box when no band has an affine grid.
	SceneResolution float64 `toml:"scene_resolution"`

	// AttributesFallback is the nested attribute mapping consulted for keys
	// missing at the top level of array attributes.
	AttributesFallback string `toml:"attributes_fallback"`

	Logging logging.LogConfig `toml:"logging"`
}

var errInvalidConfig = errors.New("invalid configuration")

func DefaultConfig() Config {
	bands := []string{"b01", "b02", "b03", "b04", "b05", "b06", "b07", "b08", "b8a", "b09", "b10", "b11", "b12"}
	detectors := []string{"detector_2", "detector_3", "detector_4", "detector_5", "detector_6", "detector_7", "detector_8"}
	return Config{
		Axes:        []geocoding.AxisPair{geocoding.CartesianAxes, geocoding.GeographicAxes},
		Resolutions: []string{"r10m", "r20m", "r60m"},
		Labels: map[string][][]string{
			"sun_angles":               {{"sun_zenith", "sun_azimuth"}},
			"viewing_incidence_angles": {bands, detectors, {"view_zenith", "view_azimuth"}},
			"tci":                      {{"1", "2", "3"}},
		},
		BaseNames: map[string]string{
			"sun_angles":               "geometry",
			"viewing_incidence_angles": "geometry",
		},
		FlagCodings: []coding.NameRule{
			{Fragment: "l1c_classification", Coding: "l1c_classification"},
			{Fragment: "l2a_classification", Coding: "l2a_classification"},
			{Fragment: "mask", Coding: "quality"},
		},
		IndexCodings: []coding.NameRule{
			{Fragment: coding.DetectorCodingName, Coding: coding.DetectorCodingName},
		},
		Quicklook:    "quicklook",
		AutoGrouping: "atmosphere:cams:classification:detector_footprint:ecmwf:geometry:probability:quicklook:mask:reflectance",
		RGBProfiles: []RGBProfile{
			{Name: "Sentinel-2 Zarr (10m)", Channels: [3]string{"b02_r10m_reflectance", "b03_r10m_reflectance", "b04_r10m_reflectance"}},
			{Name: "Sentinel-2 Zarr (20m)", Channels: [3]string{"b02_r20m_reflectance", "b03_r20m_reflectance", "b04_r20m_reflectance"}},
			{Name: "Sentinel-2 Zarr (60m)", Channels: [3]string{"b02_r60m_reflectance", "b03_r60m_reflectance", "b04_r60m_reflectance"}},
		},
		MaskOpacity:        0.5,
		DetectorCount:      12,
		TileWorkers:        4,
		Ignored:            []string{"x", "y", "longitude", "latitude", "detector", "band"},
		NorthingOffset:     string(geocoding.NorthingUp),
		SceneResolution:    10,
		AttributesFallback: "_eopf_attrs",
	}
}

// LoadConfig decodes a TOML file over the defaults. Tables present in the
// file replace the default lists; map entries are merged.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, fmt.Errorf("no TOML configuration file provided")
	}
	md, err := toml.DecodeFile(filename, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("could not decode TOML config: %w", err)
	}
	for _, k := range md.Undecoded() {
		logging.Warningf("Ignoring unknown configuration key %q in %s", k.String(), filename)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects inconsistent tables.
func (c Config) Validate() error {
	if len(c.Axes) == 0 {
		return fmt.Errorf("%w: no coordinate axes", errInvalidConfig)
	}
	for i, a := range c.Axes {
		if a.X == "" || a.Y == "" || a.X == a.Y {
			return fmt.Errorf("%w: axis pair %d is (%q, %q)", errInvalidConfig, i, a.X, a.Y)
		}
	}
	for name, dims := range c.Labels {
		for d, labels := range dims {
			if len(labels) == 0 {
				return fmt.Errorf("%w: no labels for dimension %d of %q", errInvalidConfig, d, name)
			}
		}
	}
	for _, rules := range [][]coding.NameRule{c.FlagCodings, c.IndexCodings} {
		for _, r := range rules {
			if r.Fragment == "" || r.Coding == "" {
				return fmt.Errorf("%w: coding rule %+v is incomplete", errInvalidConfig, r)
			}
		}
	}
	for _, p := range c.RGBProfiles {
		if p.Name == "" {
			return fmt.Errorf("%w: unnamed RGB profile", errInvalidConfig)
		}
		for _, ch := range p.Channels {
			if ch == "" {
				return fmt.Errorf("%w: RGB profile %q has an empty channel", errInvalidConfig, p.Name)
			}
		}
	}
	if c.MaskOpacity < 0 || c.MaskOpacity > 1 {
		return fmt.Errorf("%w: mask opacity %g outside [0,1]", errInvalidConfig, c.MaskOpacity)
	}
	if c.DetectorCount < 0 {
		return fmt.Errorf("%w: negative detector count", errInvalidConfig)
	}
	if c.TileWorkers < 1 {
		return fmt.Errorf("%w: tile_workers must be at least 1", errInvalidConfig)
	}
	switch geocoding.NorthingOffset(c.NorthingOffset) {
	case geocoding.NorthingUp, geocoding.NorthingDown:
	default:
		return fmt.Errorf("%w: northing_offset %q is neither %q nor %q",
			errInvalidConfig, c.NorthingOffset, geocoding.NorthingUp, geocoding.NorthingDown)
	}
	if !(c.SceneResolution > 0) {
		return fmt.Errorf("%w: scene_resolution must be positive", errInvalidConfig)
	}
	return nil
}
