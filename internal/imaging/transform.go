package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/disintegration/imaging"
)

const (
	// MinQuality and MaxQuality bound the JPEG quality parameter.
	MinQuality = 1
	MaxQuality = 100

	// DefaultQuality is used when a request carries no quality value.
	DefaultQuality = 75

	// MaxDimension caps a single target axis. Requests beyond this would
	// allocate unbounded memory for hostile width/height values.
	MaxDimension = 8192
)

// ContentType is the MIME type of encoded variants.
const ContentType = "image/jpeg"

// FitDimensions derives the target size from the source size and the
// requested width/height. At least one of w, h must be positive; a zero
// dimension is derived from the source aspect ratio:
//
//	other = round(srcOther * given / srcGiven)
//
// Both-given values pass through unchanged. Returns ErrInvalidDimension if
// neither dimension is given, or if a given or derived dimension falls
// outside (0, MaxDimension].
func FitDimensions(srcW, srcH, w, h int) (int, int, error) {
	if w <= 0 && h <= 0 {
		return 0, 0, fmt.Errorf("%w: no target dimension given", ErrInvalidDimension)
	}
	if w < 0 || h < 0 {
		return 0, 0, fmt.Errorf("%w: negative dimension %dx%d", ErrInvalidDimension, w, h)
	}
	if w == 0 {
		w = int(math.Round(float64(srcW) * float64(h) / float64(srcH)))
	} else if h == 0 {
		h = int(math.Round(float64(srcH) * float64(w) / float64(srcW)))
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if w > MaxDimension || h > MaxDimension {
		return 0, 0, fmt.Errorf("%w: %dx%d exceeds %d", ErrInvalidDimension, w, h, MaxDimension)
	}
	return w, h, nil
}

// Transform decodes source bytes, resizes them to the requested box, and
// re-encodes as JPEG at the given quality.
//
// Quality is validated before any decode work happens. The resize uses a
// Lanczos filter to avoid the artifacts of nearest-neighbor sampling. The
// operation is pure: same inputs produce the same output bytes, and no
// retries happen internally.
func Transform(src []byte, width, height, quality int) ([]byte, error) {
	if quality < MinQuality || quality > MaxQuality {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}
	img, err := Decode(src)
	if err != nil {
		return nil, err
	}
	return ResizeEncode(img, width, height, quality)
}

// ResizeEncode is the resize+encode half of Transform for an already-decoded
// image. Callers that decode once and produce both a variant and a
// placeholder use this to skip the second decode.
func ResizeEncode(img image.Image, width, height, quality int) ([]byte, error) {
	if quality < MinQuality || quality > MaxQuality {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}
	bounds := img.Bounds()
	w, h, err := FitDimensions(bounds.Dx(), bounds.Dy(), width, height)
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, w, h, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return buf.Bytes(), nil
}
