// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package queryopt

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/cardinalhq/edgeview/backend"
	"github.com/cardinalhq/edgeview/internal/logctx"
	"github.com/cardinalhq/edgeview/timewindow"
)

// Runner executes one already-optimized query. The backend adapter
// satisfies this; tests substitute fakes.
type Runner interface {
	Execute(ctx context.Context, query string, opts backend.RawOptions) (*backend.NormalizedResult, error)
}

// Executor is the per-dashboard-session query optimizer. It is an explicit
// object with a construction/teardown lifecycle rather than module-level
// maps, so cache and dedup state never leaks across sessions or tests.
type Executor struct {
	runner Runner

	cache  *ttlcache.Cache[string, []backend.Row]
	flight singleflight.Group

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// defaultCacheCapacity bounds the response cache when the caller does not
// override it.
const defaultCacheCapacity = 10_000

// Option tunes an Executor at construction time.
type Option func(*executorOptions)

type executorOptions struct {
	cacheCapacity int
}

// WithCacheCapacity bounds the number of cached responses.
func WithCacheCapacity(n int) Option {
	return func(o *executorOptions) {
		if n > 0 {
			o.cacheCapacity = n
		}
	}
}

// NewExecutor builds an executor around a runner. Call Close when the
// dashboard session ends.
func NewExecutor(runner Runner, opts ...Option) *Executor {
	o := executorOptions{cacheCapacity: defaultCacheCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Executor{
		runner: runner,
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, []backend.Row](),
			ttlcache.WithCapacity[string, []backend.Row](uint64(o.cacheCapacity)),
		),
	}
	go e.cache.Start()

	meter := otel.Meter("edgeview.queryopt")
	e.cacheHits, _ = meter.Int64Counter("edgeview.query_cache.hits",
		metric.WithDescription("Query response cache hits"))
	e.cacheMisses, _ = meter.Int64Counter("edgeview.query_cache.misses",
		metric.WithDescription("Query response cache misses"))

	return e
}

// Close stops the cache janitor and drops all cached responses.
func (e *Executor) Close() {
	e.cache.Stop()
	e.cache.DeleteAll()
}

// Plan captures the optimizer's decisions for one window so callers can
// display tier/sampling state alongside results.
type Plan struct {
	Tier       timewindow.Tier
	Sample     bool
	SampleRate float64
	TTL        time.Duration
}

// PlanFor decides tier, sampling, and cache TTL for a window and cardinality
// estimate.
func PlanFor(w timewindow.Window, estimatedCardinality int) Plan {
	return Plan{
		Tier:       timewindow.TierFor(w),
		Sample:     timewindow.ShouldSample(w, estimatedCardinality),
		SampleRate: timewindow.SampleRate(w),
		TTL:        timewindow.CacheTTL(w),
	}
}

// Execute runs one query through the cache/dedup path. Concurrent callers
// with an identical key share a single underlying execution and receive the
// same resolved rows. Failed executions are never cached, and their
// in-flight entry is always released so the next caller retries.
func (e *Executor) Execute(ctx context.Context, req QueryRequest) ([]backend.Row, error) {
	key := CacheKey(req)

	if item := e.cache.Get(key); item != nil {
		e.cacheHits.Add(ctx, 1)
		return item.Value(), nil
	}
	e.cacheMisses.Add(ctx, 1)

	w := timewindow.Window{Start: req.Start, End: req.End}
	ttl := timewindow.CacheTTL(w)

	rows, err, _ := e.flight.Do(key, func() (any, error) {
		res, err := e.runner.Execute(ctx, req.Query, backend.RawOptions{
			Tier:  req.Tier,
			Start: req.Start,
			End:   req.End,
			Limit: req.Limit,
		})
		if err != nil {
			return nil, err
		}
		e.cache.Set(key, res.Rows, ttl)
		return res.Rows, nil
	})
	if err != nil {
		logctx.FromContext(ctx).Debug("query execution failed",
			"key", key, "error", err.Error())
		return nil, err
	}
	return rows.([]backend.Row), nil
}

// Cleanup sweeps expired entries immediately instead of waiting for the
// janitor tick.
func (e *Executor) Cleanup() {
	e.cache.DeleteExpired()
}
