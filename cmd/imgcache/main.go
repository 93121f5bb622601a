package main

import (
	"context"
	"fmt"
	"os"

	"github.com/imgsrv/imgcache/internal/config"
	"github.com/imgsrv/imgcache/internal/logging"
	"github.com/imgsrv/imgcache/internal/metrics"
	"github.com/imgsrv/imgcache/internal/optimizer"
	"github.com/imgsrv/imgcache/internal/prefetch"
	"github.com/imgsrv/imgcache/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("imgcache %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("imgcache - image-optimization cache server")
			fmt.Println()
			fmt.Println("Usage: imgcache [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  ADDRESS                 HTTP listen address (default :8080)")
			fmt.Println("  SITE_ROOT               directory of source image assets (default public)")
			fmt.Println("  CACHE_ROOT              cache directory (default cache/image)")
			fmt.Println("  ENDPOINT_PATH           retrieval route (default /cache/image)")
			fmt.Println("  PREFETCH                warm the cache before serving (default true)")
			fmt.Println("  PREFETCH_CONCURRENCY    warm-up concurrency bound (default 4)")
			fmt.Println("  PREFETCH_WIDTH          default warmed variant width (default 1024)")
			fmt.Println("  LOG_LEVEL               zerolog level (default info)")
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config failed: %v\n", err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.LogLevel)
	log.Info().Str("version", Version).Msg("starting imgcache")

	reg := metrics.NewRegistry()

	engine, err := optimizer.New(optimizer.Config{
		SiteRoot:     cfg.SiteRoot,
		CacheRoot:    cfg.CacheRoot,
		EndpointPath: cfg.EndpointPath,
		Concurrency:  cfg.PrefetchConcurrency,
	}, log, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	if cfg.Prefetch {
		sources, err := prefetch.ScanAssets(cfg.SiteRoot, cfg.CacheRoot)
		if err != nil {
			log.Fatal().Err(err).Msg("asset scan failed")
		}
		log.Info().Int("count", len(sources)).Msg("warming image cache")

		requests := prefetch.DefaultRequests(sources, cfg.PrefetchWidth)
		results := prefetch.WarmAndReport(context.Background(), engine, reg, requests, cfg.PrefetchConcurrency)
		for _, r := range results {
			if r.Err != nil {
				log.Warn().Err(r.Err).Str("src", r.Request.Source).Msg("prefetch item failed")
			}
		}
		log.Info().
			Int("warmed", len(results)-results.Failed()).
			Int("failed", results.Failed()).
			Msg("cache warm-up complete")

		// Decoded sources are only needed while warming.
		engine.EvictSources()
	}

	srv := server.New(engine, reg, log)
	if err := srv.Start(cfg.Address); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
