// Package server exposes the cache engine over HTTP: the retrieval endpoint
// for optimized variants, plus health and metrics routes.
package server

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/imgsrv/imgcache/internal/metrics"
	"github.com/imgsrv/imgcache/internal/optimizer"
)

// Server wires the engine into an echo instance.
type Server struct {
	engine *optimizer.Engine
	reg    *metrics.Registry
	log    zerolog.Logger
	echo   *echo.Echo
}

// New builds the HTTP server around an already-constructed engine. The
// retrieval route is registered at the engine's configured endpoint path.
func New(engine *optimizer.Engine, reg *metrics.Registry, log zerolog.Logger) *Server {
	s := &Server{
		engine: engine,
		reg:    reg,
		log:    log,
		echo:   echo.New(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(echomw.Recover())
	s.echo.Use(RequestLogger(log, reg))

	s.echo.GET(engine.Config().EndpointPath, s.handleImage)
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", s.handleMetrics)

	return s
}

// Echo returns the underlying echo instance, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start begins serving on address and blocks until shutdown or failure.
func (s *Server) Start(address string) error {
	s.log.Info().Str("address", address).Str("endpoint", s.engine.Config().EndpointPath).Msg("listening")
	return s.echo.Start(address)
}
