package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/imgsrv/imgcache/internal/cache"
	"github.com/imgsrv/imgcache/internal/imaging"
	"github.com/imgsrv/imgcache/internal/metrics"
	"github.com/imgsrv/imgcache/internal/optimizer"
)

// cacheControl marks responses as immutable: the URL encodes every transform
// input, so the artifact behind it can never change.
const cacheControl = "public, max-age=31536000, immutable"

// handleImage serves one optimized variant.
//
// Validation happens before the store is touched, in order: dimensions,
// quality, source. Only a fully valid request reaches the engine, so an
// invalid request can never trigger a computation or a file write.
func (s *Server) handleImage(c echo.Context) error {
	ctx := c.Request().Context()
	if s.reg != nil {
		s.reg.Inc(ctx, metrics.ImageRequests, nil, 1)
	}

	req, err := optimizer.ParseQuery(c.QueryParams())
	if err != nil {
		return httpError(err)
	}
	if err := validate(req); err != nil {
		return httpError(err)
	}

	key := mustNormalize(req).Fingerprint()
	if match := c.Request().Header.Get("If-None-Match"); match == etag(key) {
		c.Response().Header().Set("Cache-Control", cacheControl)
		return c.NoContent(http.StatusNotModified)
	}

	entry, err := s.engine.GetOrCreate(ctx, req)
	if err != nil {
		return httpError(err)
	}

	h := c.Response().Header()
	h.Set("Cache-Control", cacheControl)
	h.Set("ETag", etag(key))
	return c.Blob(http.StatusOK, entry.ContentType, entry.Data)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextPlainCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	if s.reg == nil {
		return nil
	}
	for _, line := range s.reg.SnapshotLines() {
		if _, err := fmt.Fprintln(c.Response(), line); err != nil {
			return err
		}
	}
	return nil
}

// validate applies the request-level checks in a fixed order: dimensions,
// quality, then source.
func validate(req optimizer.Request) error {
	if req.Width <= 0 && req.Height <= 0 {
		return fmt.Errorf("%w: at least one of w, h required", imaging.ErrInvalidDimension)
	}
	if req.Width < 0 || req.Height < 0 ||
		req.Width > imaging.MaxDimension || req.Height > imaging.MaxDimension {
		return fmt.Errorf("%w: %dx%d", imaging.ErrInvalidDimension, req.Width, req.Height)
	}
	if req.Quality < imaging.MinQuality || req.Quality > imaging.MaxQuality {
		return fmt.Errorf("%w: %d", imaging.ErrInvalidQuality, req.Quality)
	}
	if _, err := req.Normalize(); err != nil {
		return err
	}
	return nil
}

// mustNormalize is validate's companion: the request has already passed
// Normalize, so this cannot fail.
func mustNormalize(req optimizer.Request) optimizer.Request {
	normalized, err := req.Normalize()
	if err != nil {
		panic(err)
	}
	return normalized
}

func etag(key cache.Key) string {
	return `"` + string(key) + `"`
}

// httpError maps engine error kinds onto client-facing status codes:
// validation failures are 400, a missing source asset is 404, and
// decode/encode/storage failures are 500. Echo's HTTPError rendering
// guarantees no partial image bytes reach the client on failure.
func httpError(err error) error {
	switch {
	case errors.Is(err, imaging.ErrInvalidDimension),
		errors.Is(err, imaging.ErrInvalidQuality),
		errors.Is(err, optimizer.ErrInvalidSource):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, optimizer.ErrSourceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create image")
	}
}
