// Package scene relates the model coordinates of a band to the scene raster
// of its product when the two are sampled at different resolutions.
package scene

import (
	"errors"
	"fmt"

	"github.com/qri-io/zarr-geo/geocoding"
)

// ErrNonTransformable is returned when a point has no counterpart in the
// other GeoCoding.
var ErrNonTransformable = errors.New("point is not transformable")

// Provider converts between the model coordinates of a band GeoCoding and
// those of the scene GeoCoding by way of geographic positions.
type Provider struct {
	Scene geocoding.GeoCoding
	Model geocoding.GeoCoding
}

func NewProvider(sceneGC, modelGC geocoding.GeoCoding) *Provider {
	return &Provider{Scene: sceneGC, Model: modelGC}
}

// ModelToScene maps a point of the band's coordinate model to the scene's.
func (p *Provider) ModelToScene(pt geocoding.Point) (geocoding.Point, error) {
	return transform(pt, p.Model, p.Scene)
}

// SceneToModel is the inverse of ModelToScene.
func (p *Provider) SceneToModel(pt geocoding.Point) (geocoding.Point, error) {
	return transform(pt, p.Scene, p.Model)
}

func transform(pt geocoding.Point, from, to geocoding.GeoCoding) (geocoding.Point, error) {
	if from == nil || to == nil {
		return geocoding.Point{}, fmt.Errorf("%w: missing geocoding", ErrNonTransformable)
	}
	modelToImage, err := geocoding.ImageToModel(from).Inverse()
	if err != nil {
		modelToImage = geocoding.Identity
	}
	pixel := modelToImage.Apply(pt)
	geo := geocoding.PixelToGeo(from, pixel)
	if geo.IsNaN() {
		return geocoding.Point{}, fmt.Errorf("%w: no geographic position for pixel (%g, %g)", ErrNonTransformable, pixel.X, pixel.Y)
	}
	dst := geocoding.GeoToPixel(to, geo)
	if dst.IsNaN() {
		return geocoding.Point{}, fmt.Errorf("%w: (%g, %g) is outside the target geocoding", ErrNonTransformable, geo.Lat, geo.Lon)
	}
	out := geocoding.ImageToModel(to).Apply(dst)
	if out.IsNaN() {
		return geocoding.Point{}, fmt.Errorf("%w: NaN model coordinate", ErrNonTransformable)
	}
	return out, nil
}
