package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/imgsrv/imgcache/internal/metrics"
)

// RequestLogger returns middleware that attaches a request-scoped zerolog
// logger (with a request ID) to the context and logs each request with its
// status and duration.
func RequestLogger(log zerolog.Logger, reg *metrics.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			rid := req.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
				c.Response().Header().Set("X-Request-ID", rid)
			}

			logger := log.With().
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Logger()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context())))

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			duration := time.Since(start)

			if reg != nil {
				reg.Inc(req.Context(), "http_requests_total", map[string]string{
					"method": req.Method,
					"status": statusClass(status),
				}, 1)
			}

			if status >= 500 || (err != nil && status < 400) {
				logger.Error().Err(err).Int("status", status).Dur("duration", duration).Msg("request failed")
			} else {
				logger.Info().Int("status", status).Dur("duration", duration).Msg("request served")
			}
			return err
		}
	}
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
