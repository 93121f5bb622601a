package optimizer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/imgsrv/imgcache/internal/imaging"
)

// newTestEngine builds an engine over temp dirs with one source image at
// img/ferris.png.
func newTestEngine(t *testing.T, srcW, srcH int) *Engine {
	t.Helper()

	siteRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(siteRoot, "img"), 0o755); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, srcW, srcH))
	for y := 0; y < srcH; y++ {
		for x := 0; x < srcW; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(siteRoot, "img", "ferris.png"), buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	engine, err := New(Config{
		SiteRoot:     siteRoot,
		CacheRoot:    t.TempDir(),
		EndpointPath: "/cache/image",
		Concurrency:  2,
	}, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine
}

func TestEngineGetOrCreate(t *testing.T) {
	engine := newTestEngine(t, 150, 100)
	req := Request{Source: "img/ferris.png", Width: 75, Quality: 85}

	entry, err := engine.GetOrCreate(context.Background(), req)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if entry.ContentType != imaging.ContentType {
		t.Errorf("content type: got %s, want %s", entry.ContentType, imaging.ContentType)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(entry.Data))
	if err != nil {
		t.Fatalf("entry is not valid JPEG: %v", err)
	}
	// Height derived from the 3:2 source.
	if b := decoded.Bounds(); b.Dx() != 75 || b.Dy() != 50 {
		t.Errorf("variant dimensions: got %dx%d, want 75x50", b.Dx(), b.Dy())
	}

	// The placeholder box carries the variant's aspect ratio.
	if !strings.Contains(entry.Placeholder, `viewBox="0 0 75 50"`) {
		t.Error("placeholder viewBox does not match variant dimensions")
	}

	// Round trip: the durable file holds exactly the returned bytes.
	normalized, _ := req.Normalize()
	path := filepath.Join(engine.Store().Root(), string(normalized.Fingerprint())+".jpg")
	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("durable entry missing: %v", err)
	}
	if !bytes.Equal(onDisk, entry.Data) {
		t.Error("disk bytes differ from returned bytes")
	}
}

func TestEngineGetOrCreate_SourceNotFound(t *testing.T) {
	engine := newTestEngine(t, 10, 10)

	_, err := engine.GetOrCreate(context.Background(), Request{Source: "missing.png", Width: 10, Quality: 75})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("got %v, want ErrSourceNotFound", err)
	}

	// Nothing must be cached for the failed request.
	entries, readErr := os.ReadDir(engine.Store().Root())
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("failed request left %d files in the cache root", len(entries))
	}
}

func TestEngineGetOrCreate_InvalidSource(t *testing.T) {
	engine := newTestEngine(t, 10, 10)

	_, err := engine.GetOrCreate(context.Background(), Request{Source: "../../etc/passwd", Width: 10, Quality: 75})
	if !errors.Is(err, ErrInvalidSource) {
		t.Errorf("got %v, want ErrInvalidSource", err)
	}
}

func TestEngineGetOrCreate_UndecodableSource(t *testing.T) {
	engine := newTestEngine(t, 10, 10)
	if err := os.WriteFile(filepath.Join(engine.Config().SiteRoot, "junk.png"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := engine.GetOrCreate(context.Background(), Request{Source: "junk.png", Width: 10, Quality: 75})
	if !errors.Is(err, imaging.ErrUnsupportedFormat) {
		t.Errorf("got %v, want ErrUnsupportedFormat", err)
	}
}

func TestEngineResolve(t *testing.T) {
	engine := newTestEngine(t, 100, 100)

	resolved, err := engine.Resolve(context.Background(), Request{Source: "/img/ferris.png", Width: 50, Height: 50, Quality: 75})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if !strings.HasPrefix(resolved.URL, "/cache/image?") {
		t.Errorf("URL not rooted at endpoint: %s", resolved.URL)
	}
	if !strings.Contains(resolved.URL, "src=img%2Fferris.png") {
		t.Errorf("URL does not carry the normalized source: %s", resolved.URL)
	}
	if !strings.HasPrefix(resolved.Placeholder, "<svg ") {
		t.Error("Resolve returned no placeholder markup")
	}

	// The artifact referenced by the URL must already exist.
	if engine.Store().Len() != 1 {
		t.Errorf("store entries after Resolve: got %d, want 1", engine.Store().Len())
	}
}

func TestEngineSharesDecodeAcrossVariants(t *testing.T) {
	engine := newTestEngine(t, 120, 80)

	for _, w := range []int{30, 60, 90} {
		if _, err := engine.GetOrCreate(context.Background(), Request{Source: "img/ferris.png", Width: w, Quality: 75}); err != nil {
			t.Fatalf("width %d: %v", w, err)
		}
	}

	// One source, three variants: the decode cache holds a single image.
	engine.EvictSources()
	if engine.Store().Len() != 3 {
		t.Errorf("store entries: got %d, want 3", engine.Store().Len())
	}
}
