package imaging

import "errors"

var (
	// ErrInvalidDimension indicates that neither target dimension was given,
	// or a given dimension is non-positive or exceeds MaxDimension.
	ErrInvalidDimension = errors.New("invalid target dimension")

	// ErrInvalidQuality indicates a quality value outside [MinQuality, MaxQuality].
	ErrInvalidQuality = errors.New("quality outside valid range")

	// ErrUnsupportedFormat indicates source bytes that no registered decoder accepts.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrEncodingFailure indicates that encoding the output image failed.
	ErrEncodingFailure = errors.New("image encoding failed")
)
