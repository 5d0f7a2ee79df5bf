package zarr

import "errors"

var (
	// ErrInvalidWindow is returned when a read window has the wrong rank,
	// negative extents, or reaches outside the array.
	ErrInvalidWindow = errors.New("invalid read window")
	// ErrUnsupported flags dtypes, orders and codecs this package cannot decode.
	ErrUnsupported = errors.New("unsupported")
	// ErrInvalidMetadata is returned when a .zarray document fails validation.
	ErrInvalidMetadata = errors.New("invalid array metadata")
)
