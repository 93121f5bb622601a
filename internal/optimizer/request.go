package optimizer

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/imgsrv/imgcache/internal/cache"
	"github.com/imgsrv/imgcache/internal/imaging"
)

// ErrInvalidSource indicates a source identifier that is not a local,
// non-dynamic, relative path: external URLs, paths escaping the site root,
// and templated route segments all fall here.
var ErrInvalidSource = errors.New("invalid image source")

// Request identifies one optimized variant: a source asset plus its
// transform parameters. Width and Height may each be zero, but not both; the
// missing one is derived from the source aspect ratio at transform time.
type Request struct {
	Source  string
	Width   int
	Height  int
	Quality int
}

// Normalize returns the request with its source in canonical form: leading
// slash trimmed, dot segments collapsed. Returns ErrInvalidSource for
// sources this engine cannot safely enumerate or re-fetch:
//
//   - absolute URLs ("https://..." or anything with a scheme)
//   - paths that escape the site root after cleaning ("../...")
//   - dynamic/templated route segments ("{id}", ":id", "*")
//   - empty sources
//
// Two requests whose sources normalize identically address the same cache
// entry.
func (r Request) Normalize() (Request, error) {
	src := strings.TrimSpace(r.Source)
	if src == "" {
		return r, fmt.Errorf("%w: empty source", ErrInvalidSource)
	}
	if strings.Contains(src, "://") || strings.HasPrefix(src, "//") {
		return r, fmt.Errorf("%w: %q is not a local path", ErrInvalidSource, r.Source)
	}
	if strings.ContainsAny(src, "{}*") {
		return r, fmt.Errorf("%w: %q contains a dynamic segment", ErrInvalidSource, r.Source)
	}
	for _, seg := range strings.Split(src, "/") {
		if strings.HasPrefix(seg, ":") {
			return r, fmt.Errorf("%w: %q contains a dynamic segment", ErrInvalidSource, r.Source)
		}
	}

	// Clean the relative form: cleaning a rooted path would silently drop
	// leading ".." segments instead of exposing the escape.
	cleaned := path.Clean(strings.TrimPrefix(src, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return r, fmt.Errorf("%w: %q escapes the site root", ErrInvalidSource, r.Source)
	}

	r.Source = cleaned
	return r, nil
}

// Fingerprint derives the cache key for a normalized request.
//
// The key is the hex blake3 hash of a canonical parameter string, so it is
// stable across calls and process restarts and changes whenever any
// parameter changes. Keys are derived from the path, not the source bytes: a
// source whose content changes keeps its key, and stale entries must be
// cleared out of band.
func (r Request) Fingerprint() cache.Key {
	canonical := fmt.Sprintf("src=%s|w=%d|h=%d|q=%d|f=jpeg", r.Source, r.Width, r.Height, r.Quality)
	sum := blake3.Sum256([]byte(canonical))
	return cache.Key(fmt.Sprintf("%x", sum))
}

// URL builds the retrieval URL for this request against the configured
// endpoint path. The query encodes every transform input, which is what
// makes the response safely immutable.
func (r Request) URL(endpoint string) string {
	return endpoint + "?" + r.Query().Encode()
}

// Query encodes the request as query parameters. Short keys keep the URLs
// compact: src, w, h, q. Zero dimensions are omitted.
func (r Request) Query() url.Values {
	v := url.Values{}
	v.Set("src", r.Source)
	if r.Width > 0 {
		v.Set("w", strconv.Itoa(r.Width))
	}
	if r.Height > 0 {
		v.Set("h", strconv.Itoa(r.Height))
	}
	v.Set("q", strconv.Itoa(r.Quality))
	return v
}

// ParseQuery is the inverse of Query. Absent dimensions parse as zero;
// an absent quality falls back to imaging.DefaultQuality. Malformed numeric
// values are rejected as imaging.ErrInvalidDimension / ErrInvalidQuality so
// callers reuse the transform-level classification.
func ParseQuery(v url.Values) (Request, error) {
	req := Request{
		Source:  v.Get("src"),
		Quality: imaging.DefaultQuality,
	}
	var err error
	if s := v.Get("w"); s != "" {
		if req.Width, err = strconv.Atoi(s); err != nil {
			return Request{}, fmt.Errorf("%w: width %q", imaging.ErrInvalidDimension, s)
		}
	}
	if s := v.Get("h"); s != "" {
		if req.Height, err = strconv.Atoi(s); err != nil {
			return Request{}, fmt.Errorf("%w: height %q", imaging.ErrInvalidDimension, s)
		}
	}
	if s := v.Get("q"); s != "" {
		if req.Quality, err = strconv.Atoi(s); err != nil {
			return Request{}, fmt.Errorf("%w: quality %q", imaging.ErrInvalidQuality, s)
		}
	}
	return req, nil
}
