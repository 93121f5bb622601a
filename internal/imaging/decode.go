package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Decode decodes source bytes using the registered decoders.
//
// Returns ErrUnsupportedFormat (wrapped with the decoder's detail) if the
// bytes are not a valid PNG, JPEG, GIF, or WebP image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, nil
}

// SourceCache provides thread-safe caching of decoded source images so the
// variant and placeholder producers for one cache key share a single decode,
// and so repeated requests against the same source skip disk entirely.
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). The prefetch phase touches every known source once; calling
// Clear() after warm-up releases that memory.
type SourceCache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewSourceCache creates an empty cache, ready for concurrent use.
func NewSourceCache() *SourceCache {
	return &SourceCache{
		images: make(map[string]image.Image),
	}
}

// Load retrieves a decoded image from the cache or reads and decodes it from
// disk if not cached.
//
// The image is cached under the exact path string provided; callers are
// expected to pass canonical absolute paths. File-not-found errors are
// returned unwrapped from the os layer so callers can test them with
// errors.Is(err, fs.ErrNotExist); decode failures are classified as
// ErrUnsupportedFormat.
func (c *SourceCache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Evict removes a specific image from the cache by its path.
func (c *SourceCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *SourceCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}

// Len reports the number of cached images.
func (c *SourceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
