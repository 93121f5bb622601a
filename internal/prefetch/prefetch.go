// Package prefetch warms the image cache before a server starts accepting
// traffic, so first requests are cache hits instead of paying transform
// latency.
package prefetch

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/imgsrv/imgcache/internal/cache"
	"github.com/imgsrv/imgcache/internal/metrics"
	"github.com/imgsrv/imgcache/internal/optimizer"
)

// Creator is the slice of the engine the prefetcher drives. Satisfied by
// *optimizer.Engine.
type Creator interface {
	GetOrCreate(ctx context.Context, req optimizer.Request) (*cache.Entry, error)
}

// Result is the per-item outcome of a warm-up run.
type Result struct {
	Request optimizer.Request
	Key     cache.Key
	Err     error
}

// Results collects per-item outcomes in input order.
type Results []Result

// Err aggregates item failures for callers that want warm-up to be
// all-or-nothing. Returns nil when every item succeeded.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Request.Source, r.Err))
		}
	}
	return errors.Join(errs...)
}

// Failed reports how many items failed.
func (rs Results) Failed() int {
	n := 0
	for _, r := range rs {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Warm drives Engine.GetOrCreate for every request with at most limit
// computations in flight, bounding CPU and I/O pressure during startup.
//
// A failing item is recorded in its Result and never aborts the rest of the
// batch; startup should not hinge on one broken asset. Cancelling ctx stops
// new items from starting while already-started computations finish, so work
// done before the cancel is not discarded.
//
// limit must be positive; it is clamped to 1 otherwise.
func Warm(ctx context.Context, eng Creator, requests []optimizer.Request, limit int) Results {
	if limit < 1 {
		limit = 1
	}

	results := make(Results, len(requests))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range requests {
		i, req := i, req
		results[i].Request = req
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			normalized, err := req.Normalize()
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Key = normalized.Fingerprint()
			// Detached from ctx: a started computation runs to completion
			// and its artifact stays cached.
			_, err = eng.GetOrCreate(context.WithoutCancel(ctx), normalized)
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// WarmAndReport runs Warm and records the outcome on the engine's metrics
// registry, one prefetch_items_total increment per item labeled by outcome.
func WarmAndReport(ctx context.Context, eng Creator, reg *metrics.Registry, requests []optimizer.Request, limit int) Results {
	results := Warm(ctx, eng, requests, limit)
	if reg != nil {
		for _, r := range results {
			outcome := "ok"
			if r.Err != nil {
				outcome = "error"
			}
			reg.Inc(ctx, metrics.PrefetchItems, map[string]string{"outcome": outcome}, 1)
		}
	}
	return results
}
