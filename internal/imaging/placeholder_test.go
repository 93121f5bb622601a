package imaging

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"testing"
)

func TestPlaceholder(t *testing.T) {
	img := createSolidImage(150, 100, color.RGBA{20, 180, 60, 255})

	svg, err := Placeholder(img, 750, 500)
	if err != nil {
		t.Fatalf("Placeholder failed: %v", err)
	}

	if !strings.HasPrefix(svg, "<svg ") || !strings.HasSuffix(svg, "</svg>") {
		t.Error("markup is not a single svg element")
	}
	if !strings.Contains(svg, `viewBox="0 0 750 500"`) {
		t.Errorf("viewBox does not carry target dimensions: %s", svg[:120])
	}
	if !strings.Contains(svg, "data:image/jpeg;base64,") {
		t.Error("markup does not embed a data URI preview")
	}
	if !strings.Contains(svg, "feGaussianBlur") {
		t.Error("markup has no blur filter")
	}
}

func TestPlaceholder_SelfContained(t *testing.T) {
	img := createSolidImage(80, 80, color.RGBA{90, 90, 90, 255})

	svg, err := Placeholder(img, 80, 80)
	if err != nil {
		t.Fatalf("Placeholder failed: %v", err)
	}

	// No external references: everything the placeholder needs must be
	// inline.
	for _, forbidden := range []string{"http://", "https://", "url(//"} {
		if strings.Contains(strings.Replace(svg, "http://www.w3.org", "", -1), forbidden) {
			t.Errorf("markup contains external reference %q", forbidden)
		}
	}
}

func TestPlaceholder_AspectRatioFollowsTarget(t *testing.T) {
	img := createSolidImage(100, 100, color.RGBA{255, 255, 255, 255})

	tests := []struct {
		w, h int
	}{
		{750, 500},
		{500, 750},
		{100, 100},
		{1, 2000},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d", tt.w, tt.h), func(t *testing.T) {
			svg, err := Placeholder(img, tt.w, tt.h)
			if err != nil {
				t.Fatalf("Placeholder failed: %v", err)
			}
			want := fmt.Sprintf(`viewBox="0 0 %d %d"`, tt.w, tt.h)
			if !strings.Contains(svg, want) {
				t.Errorf("markup missing %s", want)
			}
		})
	}
}

func TestPlaceholder_InvalidBox(t *testing.T) {
	img := createSolidImage(10, 10, color.RGBA{0, 0, 0, 255})

	for _, box := range [][2]int{{0, 100}, {100, 0}, {-1, 100}} {
		_, err := Placeholder(img, box[0], box[1])
		if !errors.Is(err, ErrInvalidDimension) {
			t.Errorf("box %v: got %v, want ErrInvalidDimension", box, err)
		}
	}
}

func TestPlaceholderFromBytes_DecodeClassification(t *testing.T) {
	// Placeholder extraction reuses Transform's decode classification: bytes
	// that fail one fail the other the same way.
	garbage := []byte("not an image")

	_, terr := Transform(garbage, 10, 10, 75)
	_, perr := PlaceholderFromBytes(garbage, 10, 10)

	if !errors.Is(terr, ErrUnsupportedFormat) || !errors.Is(perr, ErrUnsupportedFormat) {
		t.Errorf("classification mismatch: transform=%v placeholder=%v", terr, perr)
	}
}

func TestPlaceholderFromBytes(t *testing.T) {
	src := pngBytes(t, createSolidImage(60, 30, color.RGBA{200, 100, 50, 255}))

	svg, err := PlaceholderFromBytes(src, 600, 300)
	if err != nil {
		t.Fatalf("PlaceholderFromBytes failed: %v", err)
	}
	if !strings.Contains(svg, `viewBox="0 0 600 300"`) {
		t.Error("markup missing target-sized viewBox")
	}
}
