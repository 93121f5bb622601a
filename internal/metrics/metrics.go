// Package metrics keeps the engine's counters and mirrors them to
// OpenTelemetry instruments so any configured meter provider exports them.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Counter names used across the engine.
const (
	ImageRequests   = "image_requests_total"
	CacheHits       = "image_cache_hits_total"
	CacheMisses     = "image_cache_misses_total"
	Transforms      = "image_transforms_total"
	TransformErrors = "image_transform_errors_total"
	PrefetchItems   = "prefetch_items_total"
)

// Registry stores counters for local exposition and mirrors every increment
// to an OTel counter instrument. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64 // key = series(name, labels)
	meter    metric.Meter
	otelCtrs map[string]metric.Int64Counter // base name -> instrument
}

// NewRegistry returns a registry backed by the global meter provider.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[string]*atomic.Int64),
		meter:    otel.GetMeterProvider().Meter("imgcache"),
		otelCtrs: make(map[string]metric.Int64Counter),
	}
}

// series builds the deterministic exposition key for a name and label set.
func series(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// Inc increases the named counter by n with the given labels, locally and on
// the mirrored OTel instrument.
func (r *Registry) Inc(ctx context.Context, name string, labels map[string]string, n int64) {
	key := series(name, labels)

	r.mu.RLock()
	c := r.counters[key]
	inst, haveInst := r.otelCtrs[name]
	r.mu.RUnlock()

	if c == nil || !haveInst {
		r.mu.Lock()
		if c = r.counters[key]; c == nil {
			c = new(atomic.Int64)
			r.counters[key] = c
		}
		if inst = r.otelCtrs[name]; inst == nil {
			inst, _ = r.meter.Int64Counter(name)
			r.otelCtrs[name] = inst
		}
		r.mu.Unlock()
	}

	c.Add(n)
	if inst != nil {
		attrs := make([]attribute.KeyValue, 0, len(labels))
		for k, v := range labels {
			attrs = append(attrs, attribute.String(k, v))
		}
		inst.Add(ctx, n, metric.WithAttributes(attrs...))
	}
}

// Value returns the current value of a series, or zero if it was never
// incremented.
func (r *Registry) Value(name string, labels map[string]string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.counters[series(name, labels)]; c != nil {
		return c.Load()
	}
	return 0
}

// SnapshotLines renders all counters as sorted "series value" text lines.
func (r *Registry) SnapshotLines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.counters))
	for k := range r.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s %d", k, r.counters[k].Load()))
	}
	return lines
}

// SnapshotJSON returns a series->value map for JSON rendering.
func (r *Registry) SnapshotJSON() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int64, len(r.counters))
	for k, v := range r.counters {
		out[k] = v.Load()
	}
	return out
}
