package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

const (
	// placeholderEdge is the longest edge of the embedded thumbnail. A few
	// hundred bytes of JPEG is enough for a blurred preview.
	placeholderEdge = 25

	// placeholderQuality is the encoding quality of the thumbnail. The blur
	// hides compression artifacts, so this stays low.
	placeholderQuality = 80

	// placeholderSigma is the stdDeviation of the SVG feGaussianBlur filter,
	// expressed in viewBox units.
	placeholderSigma = 15
)

// Placeholder produces inline SVG markup embedding a tiny blurred preview of
// img, suitable for use as a low-quality image placeholder while the full
// variant loads.
//
// The markup is self-contained: the preview is a base64 data URI, the blur is
// an SVG filter, and a backdrop rect holds the image's average color so
// something paints before the data URI decodes. The viewBox is
// "0 0 {targetW} {targetH}", so the placeholder occupies the same layout box
// as the final image and no reflow happens when it streams in.
//
// targetW and targetH must be the final variant's dimensions (after aspect
// derivation), both positive.
func Placeholder(img image.Image, targetW, targetH int) (string, error) {
	if targetW <= 0 || targetH <= 0 {
		return "", fmt.Errorf("%w: placeholder box %dx%d", ErrInvalidDimension, targetW, targetH)
	}

	thumb := imaging.Fit(img, placeholderEdge, placeholderEdge, imaging.NearestNeighbor)

	// Soften block edges before encoding; feGaussianBlur alone leaves the
	// thumbnail's pixel grid visible through JPEG ringing.
	softened := blur.Gaussian(thumb, 1.0)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, softened, &jpeg.Options{Quality: placeholderQuality}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}

	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	backdrop := AverageColor(thumb)

	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="100%%" height="100%%" viewBox="0 0 %d %d" preserveAspectRatio="none">`+
			`<filter id="b" filterUnits="userSpaceOnUse" color-interpolation-filters="sRGB">`+
			`<feGaussianBlur stdDeviation="%d" edgeMode="duplicate"/>`+
			`<feComponentTransfer><feFuncA type="discrete" tableValues="1 1"/></feComponentTransfer>`+
			`</filter>`+
			`<rect width="100%%" height="100%%" fill="%s"/>`+
			`<image filter="url(#b)" x="0" y="0" height="100%%" width="100%%" href="%s"/>`+
			`</svg>`,
		targetW, targetH, placeholderSigma, backdrop, uri)

	return svg, nil
}

// PlaceholderFromBytes decodes source bytes and produces placeholder markup
// sized to the target box. Decode failures carry the same classification as
// Transform on the same bytes.
func PlaceholderFromBytes(src []byte, targetW, targetH int) (string, error) {
	img, err := Decode(src)
	if err != nil {
		return "", err
	}
	return Placeholder(img, targetW, targetH)
}
