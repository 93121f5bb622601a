// Package optimizer ties the cache engine together: it fingerprints
// requests, produces variants and placeholders through the imaging pipeline,
// and persists them through the single-flight store.
//
// One Engine is constructed at startup and passed explicitly to whatever
// needs it (the HTTP handlers, the prefetcher, rendering code); there is no
// package-level instance.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/imgsrv/imgcache/internal/cache"
	"github.com/imgsrv/imgcache/internal/imaging"
	"github.com/imgsrv/imgcache/internal/metrics"
)

// ErrSourceNotFound indicates that a request's source asset does not exist
// under the site root.
var ErrSourceNotFound = errors.New("source image not found")

// Config holds the engine's construction-time settings. It is read-only
// after New and owned by the Engine instance.
type Config struct {
	// SiteRoot is the directory source assets are resolved against.
	SiteRoot string

	// CacheRoot is the durable storage directory for computed variants.
	CacheRoot string

	// EndpointPath is the retrieval route the built URLs point at.
	EndpointPath string

	// Concurrency bounds simultaneous computations during prefetch.
	Concurrency int
}

// Resolved is the rendering-layer handoff for one request: the URL the
// variant is served from and the inline placeholder markup to show until it
// loads.
type Resolved struct {
	URL         string
	Placeholder string
}

// Engine is the image-optimization cache engine. Safe for concurrent use.
type Engine struct {
	cfg     Config
	store   *cache.Store
	sources *imaging.SourceCache
	log     zerolog.Logger
	reg     *metrics.Registry
}

// New creates the cache root and returns an Engine. reg may be nil.
func New(cfg Config, log zerolog.Logger, reg *metrics.Registry) (*Engine, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	store, err := cache.NewStore(cfg.CacheRoot, log, reg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		sources: imaging.NewSourceCache(),
		log:     log,
		reg:     reg,
	}, nil
}

// Config returns the engine's settings.
func (e *Engine) Config() Config { return e.cfg }

// Store exposes the underlying cache store (for out-of-band cleanup and
// tests).
func (e *Engine) Store() *cache.Store { return e.store }

// EvictSources drops the in-memory decoded source images, typically after a
// prefetch run has touched every asset once.
func (e *Engine) EvictSources() { e.sources.Clear() }

// GetOrCreate returns the cached entry for req, computing and persisting it
// on first request. The request is normalized and fingerprinted here;
// concurrent calls for the same fingerprint share one computation.
func (e *Engine) GetOrCreate(ctx context.Context, req Request) (*cache.Entry, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	key := req.Fingerprint()
	return e.store.GetOrCreate(ctx, key, func(ctx context.Context) (*cache.Entry, error) {
		return e.produce(ctx, req)
	})
}

// Resolve returns the retrieval URL and placeholder markup for req,
// computing the entry first if it does not exist yet. Rendering code calls
// this; after a prefetch warm-up it is a pure cache hit.
func (e *Engine) Resolve(ctx context.Context, req Request) (Resolved, error) {
	normalized, err := req.Normalize()
	if err != nil {
		return Resolved{}, err
	}
	entry, err := e.GetOrCreate(ctx, normalized)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{
		URL:         normalized.URL(e.cfg.EndpointPath),
		Placeholder: entry.Placeholder,
	}, nil
}

// produce runs the transform pipeline for one normalized request: decode the
// source once, resize+encode the variant, extract the placeholder at the
// variant's aspect ratio.
func (e *Engine) produce(ctx context.Context, req Request) (*cache.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	srcPath := filepath.Join(e.cfg.SiteRoot, filepath.FromSlash(req.Source))
	img, err := e.sources.Load(srcPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, req.Source)
		}
		return nil, err
	}

	bounds := img.Bounds()
	w, h, err := imaging.FitDimensions(bounds.Dx(), bounds.Dy(), req.Width, req.Height)
	if err != nil {
		return nil, err
	}

	data, err := imaging.ResizeEncode(img, w, h, req.Quality)
	if err != nil {
		e.count(ctx, metrics.TransformErrors)
		return nil, err
	}
	placeholder, err := imaging.Placeholder(img, w, h)
	if err != nil {
		e.count(ctx, metrics.TransformErrors)
		return nil, err
	}
	e.count(ctx, metrics.Transforms)

	e.log.Debug().
		Str("src", req.Source).
		Int("width", w).
		Int("height", h).
		Int("quality", req.Quality).
		Msg("created optimized image")

	return &cache.Entry{
		Data:        data,
		ContentType: imaging.ContentType,
		Placeholder: placeholder,
	}, nil
}

func (e *Engine) count(ctx context.Context, name string) {
	if e.reg != nil {
		e.reg.Inc(ctx, name, nil, 1)
	}
}
